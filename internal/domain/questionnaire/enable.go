package questionnaire

import (
	"fmt"
	"strconv"
	"strings"
)

// AnswerLookup resolves the current answer for a question id.
type AnswerLookup interface {
	Get(questionID string) (*SubmitResult, bool)
}

// IsEnabled evaluates q's enable_when rules against the answers visible
// through lookup. Questions without rules are always enabled. Rules that
// reference an unknown link id or use an unknown operator evaluate to false.
func IsEnabled(q *Question, lookup AnswerLookup, links map[string]string) bool {
	if len(q.EnableWhen) == 0 {
		return true
	}

	results := make([]bool, 0, len(q.EnableWhen))
	for _, cond := range q.EnableWhen {
		questionID, ok := links[cond.Question]
		if !ok {
			results = append(results, false)
			continue
		}
		results = append(results, evaluate(cond, firstValue(lookup, questionID)))
	}

	if q.EnableBehavior == "" || q.EnableBehavior == BehaviorAll {
		return allTrue(results)
	}
	return anyTrue(results)
}

// firstValue returns the raw first value of the referenced answer, or nil when
// the question is unanswered or has no values.
func firstValue(lookup AnswerLookup, questionID string) *string {
	res, ok := lookup.Get(questionID)
	if !ok || len(res.Values) == 0 {
		return nil
	}
	return res.Values[0].Value
}

func evaluate(cond EnableWhen, lhs *string) bool {
	switch cond.Operator {
	case OpExists:
		return lhs != nil
	case OpEquals:
		return stringEquals(lhs, cond.Answer)
	case OpNotEquals:
		return !stringEquals(lhs, cond.Answer)
	case OpGreater:
		return compareFloat(lhs, cond.Answer, func(a, b float64) bool { return a > b })
	case OpLess:
		return compareFloat(lhs, cond.Answer, func(a, b float64) bool { return a < b })
	case OpGreaterOrEquals:
		return compareFloat(lhs, cond.Answer, func(a, b float64) bool { return a >= b })
	case OpLessOrEquals:
		return compareFloat(lhs, cond.Answer, func(a, b float64) bool { return a <= b })
	default:
		return false
	}
}

// stringEquals compares without coercion: a non-string answer never equals a
// submitted value, and a missing value never equals anything.
func stringEquals(lhs *string, answer interface{}) bool {
	if lhs == nil {
		return false
	}
	s, ok := answer.(string)
	return ok && *lhs == s
}

func compareFloat(lhs *string, answer interface{}, cmp func(a, b float64) bool) bool {
	if lhs == nil {
		return false
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(*lhs), 64)
	if err != nil {
		return false
	}
	b, ok := toFloat(answer)
	if !ok {
		return false
	}
	return cmp(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func allTrue(results []bool) bool {
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func anyTrue(results []bool) bool {
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}
