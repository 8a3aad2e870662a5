package questionnaire

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ehr/intake/internal/platform/fhir"
)

// DefaultMaxTextLength is used when no text limit is configured.
const DefaultMaxTextLength = 5000

// CodingValidator checks whether a coding belongs to a value set. An error is
// treated the same as a negative answer.
type CodingValidator interface {
	ValidateCoding(ctx context.Context, valueSetSlug string, coding fhir.Coding) (bool, error)
}

// valueChecker parses one raw answer value for a question type.
type valueChecker interface {
	check(q *Question, raw string) (interface{}, error)
}

type checkerFunc func(q *Question, raw string) (interface{}, error)

func (f checkerFunc) check(q *Question, raw string) (interface{}, error) { return f(q, raw) }

// ValidatorOption customises a Validator.
type ValidatorOption func(*Validator)

// WithMaxTextLength sets the maximum length of text answers.
func WithMaxTextLength(n int) ValidatorOption {
	return func(v *Validator) {
		if n > 0 {
			v.maxTextLength = n
		}
	}
}

// WithRequiredRepetitions makes a required repeating group with no
// repetitions a values_missing error. Off by default.
func WithRequiredRepetitions(enabled bool) ValidatorOption {
	return func(v *Validator) { v.requireRepetitions = enabled }
}

// Validator checks a pruned answer tree against the definition.
type Validator struct {
	codings            CodingValidator
	maxTextLength      int
	requireRepetitions bool
	checkers           map[QuestionType]valueChecker
}

func NewValidator(codings CodingValidator, opts ...ValidatorOption) *Validator {
	v := &Validator{
		codings:       codings,
		maxTextLength: DefaultMaxTextLength,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.checkers = map[QuestionType]valueChecker{
		TypeInteger:  checkerFunc(checkInteger),
		TypeDecimal:  checkerFunc(checkDecimal),
		TypeBoolean:  checkerFunc(checkBoolean),
		TypeDate:     checkerFunc(checkDate),
		TypeDateTime: checkerFunc(checkDateTime),
		TypeTime:     checkerFunc(checkTime),
		TypeChoice:   checkerFunc(checkChoice),
		TypeURL:      checkerFunc(checkURL),
		TypeText:     checkerFunc(v.checkText),
	}
	return v
}

// Validate walks the pruned definition and returns every problem found. An
// empty result means the submission is acceptable.
func (v *Validator) Validate(ctx context.Context, questions []Question, responses Responses) ValidationErrors {
	var errs ValidationErrors
	v.walk(ctx, questions, responses, false, &errs)
	return errs
}

func (v *Validator) walk(ctx context.Context, questions []Question, responses Responses, parentRequired bool, errs *ValidationErrors) {
	for i := range questions {
		q := &questions[i]
		required := isRequired(q, parentRequired)

		switch {
		case q.Type == TypeStructured:
			continue
		case q.IsGroup() && q.Repeats:
			res, ok := responses.Get(q.ID)
			if !ok || len(res.SubResults) == 0 {
				if v.requireRepetitions && required {
					errs.add(ErrTypeValuesMissing, q.ID, "No value provided for question")
				}
				continue
			}
			for _, rep := range res.SubResults {
				v.walk(ctx, q.Questions, NewResponses(rep), groupRequired(q, parentRequired), errs)
			}
		case q.IsGroup():
			v.walk(ctx, q.Questions, responses, groupRequired(q, parentRequired), errs)
		default:
			v.validateLeaf(ctx, q, responses, required, errs)
		}
	}
}

// isRequired resolves the tri-state required flag: an unset flag inherits
// from the enclosing group.
func isRequired(q *Question, parentRequired bool) bool {
	if q.Required != nil {
		return *q.Required
	}
	return parentRequired
}

// groupRequired is the flag a group hands to its children. A group marked
// not required cannot cancel a requirement set further up the tree.
func groupRequired(q *Question, parentRequired bool) bool {
	return parentRequired || (q.Required != nil && *q.Required)
}

func (v *Validator) validateLeaf(ctx context.Context, q *Question, responses Responses, required bool, errs *ValidationErrors) {
	res, ok := responses.Get(q.ID)
	if !ok {
		if required {
			errs.add(ErrTypeValuesMissing, q.ID, "Question not answered")
		}
		return
	}
	if len(res.Values) == 0 {
		if required {
			errs.add(ErrTypeValuesMissing, q.ID, "No value provided for question")
		}
		return
	}

	values := res.Values
	if !q.Repeats {
		values = values[:1]
	}

	if checker, ok := v.checkers[q.Type]; ok {
		for _, val := range values {
			if val.Value == nil {
				continue
			}
			if err := safeCheck(checker, q, *val.Value); err != nil {
				errs.add(ErrTypeTypeError, q.ID, err.Error())
			}
		}
	}

	switch {
	case q.Type == TypeChoice && q.AnswerValueSet != "":
		for _, val := range values {
			if val.Coding == nil {
				errs.add(ErrTypeTypeError, q.ID, "Coding is required")
				return
			}
			v.checkValueSet(ctx, q, val.Coding, errs)
		}
	case q.Type == TypeQuantity:
		for _, val := range values {
			if val.Unit == nil {
				errs.add(ErrTypeTypeError, q.ID, "Quantity is required")
				return
			}
			if q.AnswerValueSet != "" {
				v.checkValueSet(ctx, q, val.Coding, errs)
			}
		}
	}
}

func (v *Validator) checkValueSet(ctx context.Context, q *Question, coding *fhir.Coding, errs *ValidationErrors) {
	ok := false
	if coding != nil && v.codings != nil {
		member, err := v.codings.ValidateCoding(ctx, q.AnswerValueSet, *coding)
		ok = err == nil && member
	}
	if !ok {
		errs.add(ErrTypeValueSetError, q.ID, "Coding does not belong to the valueset")
	}
}

// safeCheck turns a panicking checker into an ordinary type error.
func safeCheck(c valueChecker, q *Question, raw string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = invalid(q.Type)
		}
	}()
	_, err = c.check(q, raw)
	return err
}

func (e *ValidationErrors) add(typ, questionID, msg string) {
	*e = append(*e, ValidationError{Type: typ, QuestionID: questionID, Msg: msg})
}

func invalid(t QuestionType) error {
	return fmt.Errorf("Invalid %s", t)
}

func checkInteger(q *Question, raw string) (interface{}, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, invalid(q.Type)
	}
	return n, nil
}

func checkDecimal(q *Question, raw string) (interface{}, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, invalid(q.Type)
	}
	return f, nil
}

func checkBoolean(q *Question, raw string) (interface{}, error) {
	switch strings.ToLower(raw) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return nil, fmt.Errorf("Invalid boolean value: %s", raw)
}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04",
	"2006-01-02T15Z07:00",
	"2006-01-02T15Z0700",
	"2006-01-02T15",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"20060102",
	"2006-01",
}

// time.Parse tolerates a fractional second the layout does not name.
var timePattern = regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}$`)

func parseISO(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func checkDate(q *Question, raw string) (interface{}, error) {
	t, err := parseISO(raw)
	if err != nil {
		return nil, invalid(q.Type)
	}
	return t.Truncate(24 * time.Hour), nil
}

func checkDateTime(q *Question, raw string) (interface{}, error) {
	t, err := parseISO(raw)
	if err != nil {
		return nil, invalid(q.Type)
	}
	return t, nil
}

func checkTime(q *Question, raw string) (interface{}, error) {
	if !timePattern.MatchString(raw) {
		return nil, invalid(q.Type)
	}
	t, err := time.Parse("15:04:05", raw)
	if err != nil {
		return nil, invalid(q.Type)
	}
	return t, nil
}

// checkChoice validates against answer_option. Choices bound to a value set
// are checked through their coding instead.
func checkChoice(q *Question, raw string) (interface{}, error) {
	if q.AnswerValueSet != "" {
		return raw, nil
	}
	for _, opt := range q.AnswerOption {
		if opt.Value == raw {
			return raw, nil
		}
	}
	return nil, invalid(q.Type)
}

func checkURL(q *Question, raw string) (interface{}, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, invalid(q.Type)
	}
	return u, nil
}

func (v *Validator) checkText(q *Question, raw string) (interface{}, error) {
	limit := v.maxTextLength
	if q.MaxLength != nil && *q.MaxLength > 0 && *q.MaxLength < limit {
		limit = *q.MaxLength
	}
	if utf8.RuneCountInString(raw) > limit {
		return nil, fmt.Errorf("Text too long. Max allowed size is %d", limit)
	}
	return raw, nil
}
