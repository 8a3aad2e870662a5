package questionnaire

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ehr/intake/internal/platform/fhir"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
func intp(n int) *int       { return &n }

func val(s string) ResultValue { return ResultValue{Value: strp(s)} }

func answer(questionID string, values ...string) SubmitResult {
	r := SubmitResult{QuestionID: questionID}
	for _, v := range values {
		r.Values = append(r.Values, val(v))
	}
	return r
}

func loinc(code string) *fhir.Coding {
	return &fhir.Coding{System: "http://loinc.org", Code: code}
}

// -- questionnaire repository --

type fakeQuestionnaireRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Questionnaire
	gets  int
	err   error
}

func newFakeQuestionnaireRepo(qs ...*Questionnaire) *fakeQuestionnaireRepo {
	r := &fakeQuestionnaireRepo{items: make(map[uuid.UUID]*Questionnaire)}
	for _, q := range qs {
		r.items[q.ID] = q
	}
	return r
}

func (r *fakeQuestionnaireRepo) Create(_ context.Context, q *Questionnaire) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q.ID = uuid.New()
	r.items[q.ID] = q
	return nil
}

func (r *fakeQuestionnaireRepo) GetByID(_ context.Context, id uuid.UUID) (*Questionnaire, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.err != nil {
		return nil, r.err
	}
	q, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return q, nil
}

func (r *fakeQuestionnaireRepo) Update(_ context.Context, q *Questionnaire) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[q.ID]; !ok {
		return ErrNotFound
	}
	q.VersionID++
	r.items[q.ID] = q
	return nil
}

func (r *fakeQuestionnaireRepo) List(_ context.Context, limit, offset int) ([]*Questionnaire, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Questionnaire
	for _, q := range r.items {
		out = append(out, q)
	}
	return out, len(out), nil
}

// -- response store --

type fakeResponseStore struct {
	mu           sync.Mutex
	responses    map[uuid.UUID]*QuestionnaireResponse
	observations map[uuid.UUID][]ObservationDraft
	slugs        map[uuid.UUID]string
	persistErr   error
}

func newFakeResponseStore() *fakeResponseStore {
	return &fakeResponseStore{
		responses:    make(map[uuid.UUID]*QuestionnaireResponse),
		observations: make(map[uuid.UUID][]ObservationDraft),
		slugs:        make(map[uuid.UUID]string),
	}
}

func (s *fakeResponseStore) Persist(_ context.Context, qr *QuestionnaireResponse, obs []ObservationDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	s.responses[qr.ID] = qr
	s.observations[qr.ID] = obs
	return nil
}

func (s *fakeResponseStore) GetByID(_ context.Context, id uuid.UUID) (*QuestionnaireResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, ok := s.responses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return qr, nil
}

func (s *fakeResponseStore) ListByPatient(_ context.Context, patientID uuid.UUID, f ResponseFilter, limit, offset int) ([]*QuestionnaireResponse, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*QuestionnaireResponse
	for _, qr := range s.responses {
		if qr.PatientID != patientID {
			continue
		}
		if f.QuestionnaireID != nil && qr.QuestionnaireID != *f.QuestionnaireID {
			continue
		}
		if f.EncounterID != nil && (qr.EncounterID == nil || *qr.EncounterID != *f.EncounterID) {
			continue
		}
		if len(f.QuestionnaireSlugs) > 0 && !containsString(f.QuestionnaireSlugs, s.slugs[qr.QuestionnaireID]) {
			continue
		}
		out = append(out, qr)
	}
	return out, len(out), nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *fakeResponseStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// -- subject resolver --

type fakeSubjects struct {
	patients   map[uuid.UUID]uuid.UUID
	encounters map[uuid.UUID]uuid.UUID
	calls      []string
}

func newFakeSubjects() *fakeSubjects {
	return &fakeSubjects{patients: map[uuid.UUID]uuid.UUID{}, encounters: map[uuid.UUID]uuid.UUID{}}
}

func (f *fakeSubjects) ResolvePatient(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	f.calls = append(f.calls, "patient")
	if internal, ok := f.patients[id]; ok {
		return internal, nil
	}
	return uuid.Nil, ErrNotFound
}

func (f *fakeSubjects) ResolveEncounter(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	f.calls = append(f.calls, "encounter")
	if internal, ok := f.encounters[id]; ok {
		return internal, nil
	}
	return uuid.Nil, ErrNotFound
}

// -- coding validator --

type fakeCodings struct {
	members map[string][]string
	err     error
}

func (f fakeCodings) ValidateCoding(_ context.Context, slug string, c fhir.Coding) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, code := range f.members[slug] {
		if code == c.Code {
			return true, nil
		}
	}
	return false, nil
}

var errCodingBackend = errors.New("terminology unavailable")

// -- events and metrics --

type fakePublisher struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, body []byte) error {
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, body)
	return p.err
}

type fakeObserver struct {
	outcomes []string
	errors   map[string]int
}

func (o *fakeObserver) ObserveSubmission(outcome string, _ float64) {
	o.outcomes = append(o.outcomes, outcome)
}

func (o *fakeObserver) ObserveValidationErrors(errType string, count int) {
	if o.errors == nil {
		o.errors = map[string]int{}
	}
	o.errors[errType] += count
}
