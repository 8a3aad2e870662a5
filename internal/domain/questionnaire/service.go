package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Submission outcomes reported to the SubmissionObserver.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Service struct {
	questionnaires QuestionnaireRepository
	responses      ResponseStore
	subjects       SubjectResolver
	validator      *Validator
	builder        *ObservationBuilder

	events        EventPublisher
	observer      SubmissionObserver
	knownValueSet func(slug string) bool
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(
	questionnaires QuestionnaireRepository,
	responses ResponseStore,
	subjects SubjectResolver,
	validator *Validator,
	builder *ObservationBuilder,
) *Service {
	return &Service{
		questionnaires: questionnaires,
		responses:      responses,
		subjects:       subjects,
		validator:      validator,
		builder:        builder,
		logger:         zerolog.Nop(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher attaches an optional publisher for stored submissions.
func (s *Service) SetEventPublisher(p EventPublisher) { s.events = p }

// SetObserver attaches an optional metrics sink.
func (s *Service) SetObserver(o SubmissionObserver) { s.observer = o }

// SetValueSetCatalog makes definition checks reject unknown value set slugs.
func (s *Service) SetValueSetCatalog(known func(slug string) bool) { s.knownValueSet = known }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// -- Questionnaire --

func (s *Service) CreateQuestionnaire(ctx context.Context, q *Questionnaire) error {
	ApplyDefinitionDefaults(q)
	if err := ValidateDefinition(q, s.knownValueSet); err != nil {
		return err
	}
	if err := s.questionnaires.Create(ctx, q); err != nil {
		return err
	}
	q.VersionID = 1
	return nil
}

func (s *Service) GetQuestionnaire(ctx context.Context, id uuid.UUID) (*Questionnaire, error) {
	return s.questionnaires.GetByID(ctx, id)
}

func (s *Service) UpdateQuestionnaire(ctx context.Context, q *Questionnaire) error {
	if q.ID == uuid.Nil {
		return fmt.Errorf("id is required")
	}
	if err := ValidateDefinition(q, s.knownValueSet); err != nil {
		return err
	}
	return s.questionnaires.Update(ctx, q)
}

func (s *Service) ListQuestionnaires(ctx context.Context, limit, offset int) ([]*Questionnaire, int, error) {
	return s.questionnaires.List(ctx, limit, offset)
}

// -- Questionnaire Response --

func (s *Service) GetQuestionnaireResponse(ctx context.Context, id uuid.UUID) (*QuestionnaireResponse, error) {
	return s.responses.GetByID(ctx, id)
}

func (s *Service) ListQuestionnaireResponsesByPatient(ctx context.Context, patientID uuid.UUID, f ResponseFilter, limit, offset int) ([]*QuestionnaireResponse, int, error) {
	return s.responses.ListByPatient(ctx, patientID, f, limit, offset)
}

// -- Submission --

// Submit runs one submission through prune, validate, build and persist.
// Structural failures are returned as *SubmitError and rejected answers as
// ValidationErrors; nothing is stored on either path.
func (s *Service) Submit(ctx context.Context, questionnaireID uuid.UUID, req *SubmitRequest, author string) (*QuestionnaireResponse, error) {
	start := time.Now()
	qr, err := s.submit(ctx, questionnaireID, req, author)

	outcome := OutcomeAccepted
	var verrs ValidationErrors
	var serr *SubmitError
	switch {
	case err == nil:
		s.logger.Info().
			Str("questionnaire_id", questionnaireID.String()).
			Str("response_id", qr.ID.String()).
			Msg("questionnaire response stored")
	case errors.As(err, &verrs):
		outcome = OutcomeRejected
		s.observeValidation(verrs)
		s.logger.Warn().
			Str("questionnaire_id", questionnaireID.String()).
			Int("error_count", len(verrs)).
			Msg("questionnaire submission rejected")
	case errors.As(err, &serr):
		outcome = OutcomeRejected
		s.logger.Warn().
			Str("questionnaire_id", questionnaireID.String()).
			Str("error_type", serr.Type).
			Msg("questionnaire submission refused")
	default:
		outcome = OutcomeError
		s.logger.Error().Err(err).
			Str("questionnaire_id", questionnaireID.String()).
			Msg("questionnaire submission failed")
	}
	if s.observer != nil {
		s.observer.ObserveSubmission(outcome, time.Since(start).Seconds())
	}
	return qr, err
}

func (s *Service) submit(ctx context.Context, questionnaireID uuid.UUID, req *SubmitRequest, author string) (*QuestionnaireResponse, error) {
	q, err := s.questionnaires.GetByID(ctx, questionnaireID)
	if err != nil {
		if IsNotFound(err) {
			return nil, newSubmitError(ErrTypeObjectNotFound, msgQuestionnaireNotFound)
		}
		return nil, fmt.Errorf("load questionnaire: %w", err)
	}

	sub := newSubmission(q, req)
	if err := s.checkPreconditions(ctx, sub); err != nil {
		return nil, err
	}

	if err := sub.prune(); err != nil {
		return nil, err
	}
	ok, err := sub.validate(ctx, s.validator)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sub.errors
	}
	if err := sub.build(s.builder); err != nil {
		return nil, err
	}

	qr := sub.response(author, s.now())
	if err := s.responses.Persist(ctx, qr, sub.observations); err != nil {
		return nil, fmt.Errorf("persist questionnaire response: %w", err)
	}
	if err := sub.advance(StatePersisted); err != nil {
		return nil, err
	}

	s.publish(ctx, qr, len(sub.observations))
	return qr, nil
}

// checkPreconditions runs the structural checks in a fixed order: status,
// encounter, patient, then emptiness.
func (s *Service) checkPreconditions(ctx context.Context, sub *submission) error {
	if sub.questionnaire.Status != StatusActive {
		return newSubmitError(ErrTypeQuestionnaireInactive, "Questionnaire is inactive")
	}

	if sub.questionnaire.SubjectType != SubjectPatient {
		if sub.request.Encounter == nil {
			return newSubmitError(ErrTypeObjectNotFound, "Encounter not found")
		}
		id, err := s.subjects.ResolveEncounter(ctx, *sub.request.Encounter)
		if err != nil {
			if IsNotFound(err) {
				return newSubmitError(ErrTypeObjectNotFound, "Encounter not found")
			}
			return fmt.Errorf("resolve encounter: %w", err)
		}
		sub.encounterID = &id
	}

	id, err := s.subjects.ResolvePatient(ctx, sub.request.Patient)
	if err != nil {
		if IsNotFound(err) {
			return newSubmitError(ErrTypeObjectNotFound, "Patient not found")
		}
		return fmt.Errorf("resolve patient: %w", err)
	}
	sub.patientID = id

	if len(sub.request.Results) == 0 {
		return newSubmitError(ErrTypeQuestionnaireEmpty, "Empty Questionnaire cannot be submitted")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, qr *QuestionnaireResponse, observations int) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(SubmittedEvent{
		ResponseID:       qr.ID,
		QuestionnaireID:  qr.QuestionnaireID,
		PatientID:        qr.PatientID,
		EncounterID:      qr.EncounterID,
		ObservationCount: observations,
		SubmittedAt:      qr.CreatedAt,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal submitted event")
		return
	}
	if err := s.events.Publish(ctx, EventSubmitted, body); err != nil {
		s.logger.Warn().Err(err).Str("response_id", qr.ID.String()).Msg("publish submitted event")
	}
}

func (s *Service) observeValidation(errs ValidationErrors) {
	if s.observer == nil {
		return
	}
	counts := make(map[string]int)
	for _, e := range errs {
		counts[e.Type]++
	}
	for typ, n := range counts {
		s.observer.ObserveValidationErrors(typ, n)
	}
}
