//go:build property

package questionnaire

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const chainLength = 8

// chain builds q0..qn where qi, when conditional, is enabled only if q(i-1)
// was answered "true".
func chain(conditional []bool) []Question {
	questions := make([]Question, len(conditional))
	for i := range conditional {
		questions[i] = Question{
			ID:     fmt.Sprintf("q%d", i),
			LinkID: strconv.Itoa(i),
			Type:   TypeBoolean,
			Code:   loinc(fmt.Sprintf("code-%d", i)),
		}
		if i > 0 && conditional[i] {
			questions[i].EnableWhen = []EnableWhen{{Question: strconv.Itoa(i - 1), Operator: OpEquals, Answer: "true"}}
		}
	}
	return questions
}

func chainAnswers(values []bool) []SubmitResult {
	results := make([]SubmitResult, len(values))
	for i, v := range values {
		results[i] = answer(fmt.Sprintf("q%d", i), strconv.FormatBool(v))
	}
	return results
}

func TestPruneProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	properties.Property("prune is idempotent", prop.ForAll(
		func(conditional, values []bool) bool {
			first := Prune(chain(conditional), chainAnswers(values))
			second := Prune(first.Questions, first.Results)
			return reflect.DeepEqual(first.Questions, second.Questions) &&
				reflect.DeepEqual(first.Results, second.Results) &&
				len(second.Disabled()) == 0
		},
		gen.SliceOfN(chainLength, gen.Bool()),
		gen.SliceOfN(chainLength, gen.Bool()),
	))

	properties.Property("no answer survives for a disabled question", prop.ForAll(
		func(conditional, values []bool) bool {
			p := Prune(chain(conditional), chainAnswers(values))
			for _, r := range p.Results {
				if !p.IsActive(r.QuestionID) {
					return false
				}
			}
			return len(p.Results)+len(p.Disabled()) == chainLength
		},
		gen.SliceOfN(chainLength, gen.Bool()),
		gen.SliceOfN(chainLength, gen.Bool()),
	))

	properties.Property("a question is kept iff its whole condition chain holds", prop.ForAll(
		func(conditional, values []bool) bool {
			p := Prune(chain(conditional), chainAnswers(values))
			enabled := true
			for i := 0; i < chainLength; i++ {
				if i > 0 && conditional[i] {
					enabled = enabled && values[i-1]
				} else {
					enabled = true
				}
				if p.IsActive(fmt.Sprintf("q%d", i)) != enabled {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(chainLength, gen.Bool()),
		gen.SliceOfN(chainLength, gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestPipelineProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("accepted submissions yield one observation per kept coded answer", prop.ForAll(
		func(conditional, values []bool) bool {
			q := &Questionnaire{Questions: chain(conditional)}
			res, err := DryRun(context.Background(), q, &SubmitRequest{Results: chainAnswers(values)}, NewValidator(nil), testBuilder())
			if err != nil || len(res.Errors) != 0 {
				return false
			}
			return len(res.Observations) == chainLength-len(res.Disabled)
		},
		gen.SliceOfN(chainLength, gen.Bool()),
		gen.SliceOfN(chainLength, gen.Bool()),
	))

	properties.Property("integer validation accepts exactly the parseable values", prop.ForAll(
		func(n int64, suffix string) bool {
			questions := []Question{{ID: "q1", LinkID: "1", Type: TypeInteger}}
			raw := strconv.FormatInt(n, 10) + suffix
			errs := NewValidator(nil).Validate(context.Background(), questions, NewResponses([]SubmitResult{answer("q1", raw)}))
			_, parseErr := strconv.ParseInt(raw, 10, 64)
			return (len(errs) == 0) == (parseErr == nil)
		},
		gen.Int64(),
		gen.OneConstOf("", ".5", "x", "0"),
	))

	properties.TestingRun(t)
}
