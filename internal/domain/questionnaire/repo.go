package questionnaire

import (
	"context"

	"github.com/google/uuid"
)

type QuestionnaireRepository interface {
	Create(ctx context.Context, q *Questionnaire) error
	GetByID(ctx context.Context, id uuid.UUID) (*Questionnaire, error)
	Update(ctx context.Context, q *Questionnaire) error
	List(ctx context.Context, limit, offset int) ([]*Questionnaire, int, error)
}

// ResponseStore stores accepted submissions. Persist must write the response
// and every observation atomically.
type ResponseStore interface {
	Persist(ctx context.Context, qr *QuestionnaireResponse, observations []ObservationDraft) error
	GetByID(ctx context.Context, id uuid.UUID) (*QuestionnaireResponse, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, f ResponseFilter, limit, offset int) ([]*QuestionnaireResponse, int, error)
}

// ResponseFilter narrows a patient's response list. Zero fields match all.
type ResponseFilter struct {
	QuestionnaireID    *uuid.UUID
	QuestionnaireSlugs []string
	EncounterID        *uuid.UUID
}

// SubjectResolver maps external patient and encounter identifiers to stored
// records, returning ErrNotFound when there is none.
type SubjectResolver interface {
	ResolvePatient(ctx context.Context, externalID uuid.UUID) (uuid.UUID, error)
	ResolveEncounter(ctx context.Context, externalID uuid.UUID) (uuid.UUID, error)
}

// EventPublisher announces stored submissions to other services.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// SubmissionObserver receives the outcome of every submission attempt.
type SubmissionObserver interface {
	ObserveSubmission(outcome string, seconds float64)
	ObserveValidationErrors(errType string, count int)
}
