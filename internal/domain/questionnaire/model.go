package questionnaire

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ehr/intake/internal/platform/fhir"
)

// QuestionType enumerates the supported question item types.
type QuestionType string

const (
	TypeGroup      QuestionType = "group"
	TypeBoolean    QuestionType = "boolean"
	TypeDecimal    QuestionType = "decimal"
	TypeInteger    QuestionType = "integer"
	TypeString     QuestionType = "string"
	TypeText       QuestionType = "text"
	TypeDisplay    QuestionType = "display"
	TypeDate       QuestionType = "date"
	TypeDateTime   QuestionType = "dateTime"
	TypeTime       QuestionType = "time"
	TypeChoice     QuestionType = "choice"
	TypeURL        QuestionType = "url"
	TypeQuantity   QuestionType = "quantity"
	TypeStructured QuestionType = "structured"
)

var knownQuestionTypes = map[QuestionType]bool{
	TypeGroup: true, TypeBoolean: true, TypeDecimal: true, TypeInteger: true,
	TypeString: true, TypeText: true, TypeDisplay: true, TypeDate: true,
	TypeDateTime: true, TypeTime: true, TypeChoice: true, TypeURL: true,
	TypeQuantity: true, TypeStructured: true,
}

// UnmarshalJSON accepts "datetime" as an alias of "dateTime".
func (t *QuestionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.EqualFold(s, string(TypeDateTime)) {
		s = string(TypeDateTime)
	}
	*t = QuestionType(s)
	return nil
}

// Operator is an enable_when comparison operator.
type Operator string

const (
	OpExists          Operator = "exists"
	OpEquals          Operator = "equals"
	OpNotEquals       Operator = "not_equals"
	OpGreater         Operator = "greater"
	OpLess            Operator = "less"
	OpGreaterOrEquals Operator = "greater_or_equals"
	OpLessOrEquals    Operator = "less_or_equals"
)

// EnableBehavior combines the results of several enable_when rules.
type EnableBehavior string

const (
	BehaviorAll EnableBehavior = "all"
	BehaviorAny EnableBehavior = "any"
)

const (
	StatusDraft   = "draft"
	StatusActive  = "active"
	StatusRetired = "retired"

	SubjectPatient   = "patient"
	SubjectEncounter = "encounter"

	ObservationStatusFinal = "final"
)

// EnableWhen is a single visibility condition. Question holds the link_id of
// the question being tested.
type EnableWhen struct {
	Question string      `json:"question" validate:"required"`
	Operator Operator    `json:"operator" validate:"required"`
	Answer   interface{} `json:"answer,omitempty"`
}

type AnswerOption struct {
	Value           string `json:"value"`
	InitialSelected bool   `json:"initial_selected,omitempty"`
}

// Question is one node of a questionnaire definition tree.
type Question struct {
	ID             string         `json:"id" validate:"required"`
	LinkID         string         `json:"link_id" validate:"required"`
	Text           string         `json:"text,omitempty"`
	Type           QuestionType   `json:"type" validate:"required"`
	Code           *fhir.Coding   `json:"code,omitempty"`
	Category       *fhir.Coding   `json:"category,omitempty"`
	Required       *bool          `json:"required,omitempty"`
	Repeats        bool           `json:"repeats,omitempty"`
	IsComponent    bool           `json:"is_component,omitempty"`
	MaxLength      *int           `json:"max_length,omitempty"`
	EnableWhen     []EnableWhen   `json:"enable_when,omitempty" validate:"dive"`
	EnableBehavior EnableBehavior `json:"enable_behavior,omitempty"`
	AnswerOption   []AnswerOption `json:"answer_option,omitempty"`
	AnswerValueSet string         `json:"answer_value_set,omitempty"`
	Unit           *fhir.Coding   `json:"unit,omitempty"`
	Questions      []Question     `json:"questions,omitempty" validate:"dive"`
}

func (q *Question) IsGroup() bool { return q.Type == TypeGroup }

// Questionnaire maps to the questionnaire table. Questions are stored as JSONB.
type Questionnaire struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Slug        string     `db:"slug" json:"slug"`
	Version     string     `db:"version" json:"version"`
	Title       string     `db:"title" json:"title" validate:"required"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	SubjectType string     `db:"subject_type" json:"subject_type"`
	Questions   []Question `db:"questions" json:"questions" validate:"dive"`
	VersionID   int        `db:"version_id" json:"version_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ResultValue is a single submitted answer value. Unit carries the coded unit
// of a quantity, Coding the selected code of a coded answer.
type ResultValue struct {
	Value  *string      `json:"value,omitempty"`
	Unit   *fhir.Coding `json:"unit,omitempty"`
	Coding *fhir.Coding `json:"coding,omitempty"`
}

// SubmitResult is the answer to one question. SubResults is only populated for
// repeating groups; each inner slice is one repetition.
type SubmitResult struct {
	QuestionID string           `json:"question_id" validate:"required"`
	BodySite   *fhir.Coding     `json:"body_site,omitempty"`
	Method     *fhir.Coding     `json:"method,omitempty"`
	TakenAt    *time.Time       `json:"taken_at,omitempty"`
	Values     []ResultValue    `json:"values,omitempty"`
	Note       *string          `json:"note,omitempty"`
	SubResults [][]SubmitResult `json:"sub_results,omitempty"`
}

// SubmitRequest is the payload accepted by the submit endpoint.
type SubmitRequest struct {
	ResourceID uuid.UUID      `json:"resource_id" validate:"required"`
	Encounter  *uuid.UUID     `json:"encounter,omitempty"`
	Patient    uuid.UUID      `json:"patient" validate:"required"`
	Results    []SubmitResult `json:"results" validate:"dive"`
}

// QuestionnaireResponse maps to the questionnaire_response table.
type QuestionnaireResponse struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	QuestionnaireID uuid.UUID      `db:"questionnaire_id" json:"questionnaire_id"`
	SubjectID       uuid.UUID      `db:"subject_id" json:"subject_id"`
	PatientID       uuid.UUID      `db:"patient_id" json:"patient_id"`
	EncounterID     *uuid.UUID     `db:"encounter_id" json:"encounter_id,omitempty"`
	Responses       []SubmitResult `db:"responses" json:"responses"`
	CreatedBy       string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// ObservationValue is the value payload of a derived observation.
type ObservationValue struct {
	Value  *string      `json:"value,omitempty"`
	Unit   *fhir.Coding `json:"unit,omitempty"`
	Coding *fhir.Coding `json:"coding,omitempty"`
}

type Component struct {
	Value ObservationValue `json:"value"`
	Code  *fhir.Coding     `json:"code,omitempty"`
	Note  string           `json:"note,omitempty"`
}

// ObservationDraft is an observation derived from a validated submission.
// Drafts are built once and never modified afterwards.
type ObservationDraft struct {
	ID                string           `json:"id"`
	Status            string           `json:"status"`
	ValueType         QuestionType     `json:"value_type"`
	Category          *fhir.Coding     `json:"category,omitempty"`
	MainCode          *fhir.Coding     `json:"main_code,omitempty"`
	Value             ObservationValue `json:"value"`
	EffectiveDateTime time.Time        `json:"effective_datetime"`
	Note              *string          `json:"note,omitempty"`
	Parent            *string          `json:"parent,omitempty"`
	Component         []Component      `json:"component,omitempty"`
}
