package questionnaire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by repositories and resolvers when a record does not exist.
var ErrNotFound = errors.New("not found")

// Structural error types. These abort a submission before any answer is looked at.
const (
	ErrTypeQuestionnaireInactive = "questionnaire_inactive"
	ErrTypeQuestionnaireEmpty    = "questionnaire_empty"
	ErrTypeObjectNotFound        = "object_not_found"
)

// Validation error types, collected across the whole answer tree.
const (
	ErrTypeTypeError     = "type_error"
	ErrTypeValuesMissing = "values_missing"
	ErrTypeValueSetError = "valueset_error"
)

const msgQuestionnaireNotFound = "Questionnaire not found"

// SubmitError is a structural submission failure.
type SubmitError struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Msg)
}

func newSubmitError(typ, msg string) *SubmitError {
	return &SubmitError{Type: typ, Msg: msg}
}

// ValidationError describes one rejected answer.
type ValidationError struct {
	Type       string `json:"type"`
	QuestionID string `json:"question_id"`
	Msg        string `json:"msg"`
}

// ValidationErrors is the complete list of problems found in a submission.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, fmt.Sprintf("%s (%s): %s", e.QuestionID, e.Type, e.Msg))
	}
	return fmt.Sprintf("%d validation error(s): %s", len(v), strings.Join(msgs, "; "))
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
