package questionnaire

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SubmissionState is a step of the submission pipeline.
type SubmissionState string

const (
	StateReceived          SubmissionState = "received"
	StatePruned            SubmissionState = "pruned"
	StateValidated         SubmissionState = "validated"
	StateBuiltObservations SubmissionState = "built_observations"
	StatePersisted         SubmissionState = "persisted"
	StateRejected          SubmissionState = "rejected"
)

var submissionTransitions = map[SubmissionState][]SubmissionState{
	StateReceived:          {StatePruned},
	StatePruned:            {StateValidated},
	StateValidated:         {StateBuiltObservations, StateRejected},
	StateBuiltObservations: {StatePersisted},
}

// submission carries a single request through the pipeline. It is owned by
// one call to Service.Submit and never shared.
type submission struct {
	state         SubmissionState
	questionnaire *Questionnaire
	request       *SubmitRequest
	patientID     uuid.UUID
	encounterID   *uuid.UUID

	pruned       *PruneResult
	errors       ValidationErrors
	observations []ObservationDraft
}

func newSubmission(q *Questionnaire, req *SubmitRequest) *submission {
	return &submission{state: StateReceived, questionnaire: q, request: req}
}

func (s *submission) advance(to SubmissionState) error {
	for _, next := range submissionTransitions[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid submission transition %s -> %s", s.state, to)
}

func (s *submission) prune() error {
	s.pruned = Prune(s.questionnaire.Questions, s.request.Results)
	return s.advance(StatePruned)
}

// validate reports whether the pruned answers were accepted.
func (s *submission) validate(ctx context.Context, v *Validator) (bool, error) {
	s.errors = v.Validate(ctx, s.pruned.Questions, s.pruned.Responses)
	if err := s.advance(StateValidated); err != nil {
		return false, err
	}
	if len(s.errors) > 0 {
		return false, s.advance(StateRejected)
	}
	return true, nil
}

func (s *submission) build(b *ObservationBuilder) error {
	s.observations = b.Build(s.pruned.Questions, s.pruned.Responses)
	return s.advance(StateBuiltObservations)
}

func (s *submission) response(author string, now time.Time) *QuestionnaireResponse {
	return &QuestionnaireResponse{
		ID:              uuid.New(),
		QuestionnaireID: s.questionnaire.ID,
		SubjectID:       s.request.ResourceID,
		PatientID:       s.patientID,
		EncounterID:     s.encounterID,
		Responses:       s.pruned.Results,
		CreatedBy:       author,
		CreatedAt:       now,
	}
}

// SubmittedEvent is published after a response has been stored.
type SubmittedEvent struct {
	ResponseID       uuid.UUID  `json:"response_id"`
	QuestionnaireID  uuid.UUID  `json:"questionnaire_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	EncounterID      *uuid.UUID `json:"encounter_id,omitempty"`
	ObservationCount int        `json:"observation_count"`
	SubmittedAt      time.Time  `json:"submitted_at"`
}

// EventSubmitted is the routing key of SubmittedEvent.
const EventSubmitted = "questionnaire_response.submitted"

// CheckResult is the outcome of DryRun.
type CheckResult struct {
	Disabled     []string           `json:"disabled,omitempty"`
	Errors       ValidationErrors   `json:"errors,omitempty"`
	Observations []ObservationDraft `json:"observations,omitempty"`
}

// DryRun runs prune, validate and build for q without resolving subjects or
// storing anything. Observations are only built when validation passes.
func DryRun(ctx context.Context, q *Questionnaire, req *SubmitRequest, v *Validator, b *ObservationBuilder) (*CheckResult, error) {
	sub := newSubmission(q, req)
	if err := sub.prune(); err != nil {
		return nil, err
	}
	res := &CheckResult{Disabled: sub.pruned.Disabled()}
	sort.Strings(res.Disabled)

	ok, err := sub.validate(ctx, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		res.Errors = sub.errors
		return res, nil
	}
	if err := sub.build(b); err != nil {
		return nil, err
	}
	res.Observations = sub.observations
	return res, nil
}
