package questionnaire

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[-\w]{5,25}$`)

var validStatuses = map[string]bool{
	StatusDraft:   true,
	StatusActive:  true,
	StatusRetired: true,
}

var validSubjectTypes = map[string]bool{
	SubjectPatient:   true,
	SubjectEncounter: true,
}

var validOperators = map[Operator]bool{
	OpExists: true, OpEquals: true, OpNotEquals: true, OpGreater: true,
	OpLess: true, OpGreaterOrEquals: true, OpLessOrEquals: true,
}

// ApplyDefinitionDefaults fills status, subject type and version when unset.
func ApplyDefinitionDefaults(q *Questionnaire) {
	if q.Status == "" {
		q.Status = StatusDraft
	}
	if q.SubjectType == "" {
		q.SubjectType = SubjectPatient
	}
	if q.Version == "" {
		q.Version = "1.0"
	}
}

// ValidateDefinition checks an authored questionnaire before it is stored.
// Title and answer option values are trimmed in place. knownValueSet, when
// not nil, must report whether an answer_value_set slug exists.
func ValidateDefinition(q *Questionnaire, knownValueSet func(slug string) bool) error {
	q.Title = strings.TrimSpace(q.Title)
	if q.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if q.Slug != "" && !slugPattern.MatchString(q.Slug) {
		return fmt.Errorf("slug must be 5-25 letters, digits, '-' or '_'")
	}
	if !validStatuses[q.Status] {
		return fmt.Errorf("invalid status %q", q.Status)
	}
	if !validSubjectTypes[q.SubjectType] {
		return fmt.Errorf("invalid subject_type %q", q.SubjectType)
	}

	seen := definitionIDs{links: map[string]bool{}, ids: map[string]bool{}}
	return validateQuestions(q.Questions, &seen, knownValueSet)
}

type definitionIDs struct {
	links map[string]bool
	ids   map[string]bool
}

func validateQuestions(questions []Question, seen *definitionIDs, knownValueSet func(string) bool) error {
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			return fmt.Errorf("question id is required")
		}
		if q.LinkID == "" {
			return fmt.Errorf("question %s: link_id is required", q.ID)
		}
		if seen.links[q.LinkID] {
			return fmt.Errorf("link IDs must be unique: %q", q.LinkID)
		}
		if seen.ids[q.ID] {
			return fmt.Errorf("question IDs must be unique: %q", q.ID)
		}
		seen.links[q.LinkID] = true
		seen.ids[q.ID] = true

		if !knownQuestionTypes[q.Type] {
			return fmt.Errorf("question %s: invalid type %q", q.ID, q.Type)
		}
		if q.EnableBehavior != "" && q.EnableBehavior != BehaviorAll && q.EnableBehavior != BehaviorAny {
			return fmt.Errorf("question %s: invalid enable_behavior %q", q.ID, q.EnableBehavior)
		}
		for _, cond := range q.EnableWhen {
			if !validOperators[cond.Operator] {
				return fmt.Errorf("question %s: invalid enable_when operator %q", q.ID, cond.Operator)
			}
		}

		for j := range q.AnswerOption {
			q.AnswerOption[j].Value = strings.TrimSpace(q.AnswerOption[j].Value)
			if q.AnswerOption[j].Value == "" {
				return fmt.Errorf("question %s: all the answer option values must be provided for custom choices", q.ID)
			}
		}
		if (q.Type == TypeChoice || q.Type == TypeQuantity) && len(q.AnswerOption) == 0 && q.AnswerValueSet == "" {
			return fmt.Errorf("question %s: either answer options or a value set must be provided for choice type questions", q.ID)
		}
		if q.AnswerValueSet != "" && knownValueSet != nil && !knownValueSet(q.AnswerValueSet) {
			return fmt.Errorf("question %s: value set %q not found", q.ID, q.AnswerValueSet)
		}

		if err := validateQuestions(q.Questions, seen, knownValueSet); err != nil {
			return err
		}
	}
	return nil
}
