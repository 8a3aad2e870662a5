package questionnaire

import (
	"time"

	"github.com/google/uuid"
)

// BuilderOption customises an ObservationBuilder.
type BuilderOption func(*ObservationBuilder)

// WithClock overrides the time source used for effective timestamps.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *ObservationBuilder) { b.now = now }
}

// WithIDGenerator overrides how observation ids are minted.
func WithIDGenerator(newID func() string) BuilderOption {
	return func(b *ObservationBuilder) { b.newID = newID }
}

// ObservationBuilder flattens a pruned, validated answer tree into
// observation drafts.
type ObservationBuilder struct {
	now   func() time.Time
	newID func() string
}

func NewObservationBuilder(opts ...BuilderOption) *ObservationBuilder {
	b := &ObservationBuilder{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the drafts for questions in tree pre-order. Every draft of a
// single call shares one effective timestamp unless the answer carries its
// own taken_at.
func (b *ObservationBuilder) Build(questions []Question, responses Responses) []ObservationDraft {
	pass := buildPass{builder: b, stamp: b.now()}
	return pass.build(questions, responses, nil, false)
}

type buildPass struct {
	builder *ObservationBuilder
	stamp   time.Time
}

func (p buildPass) build(questions []Question, responses Responses, parent *string, inComponent bool) []ObservationDraft {
	var out []ObservationDraft
	for i := range questions {
		q := &questions[i]
		res, _ := responses.Get(q.ID)

		if !q.IsGroup() {
			if q.Code != nil {
				out = append(out, p.leaf(q, res, parent)...)
			}
			continue
		}

		switch {
		case q.IsComponent && !inComponent:
			if !q.Repeats {
				out = append(out, p.carrier(q, responses, parent))
				continue
			}
			for _, rep := range repetitions(res) {
				out = append(out, p.carrier(q, NewResponses(rep), parent))
			}
		case q.Repeats && !inComponent:
			for _, rep := range repetitions(res) {
				out = append(out, p.group(q, NewResponses(rep), parent, inComponent)...)
			}
		default:
			out = append(out, p.group(q, responses, parent, inComponent)...)
		}
	}
	return out
}

func repetitions(res *SubmitResult) [][]SubmitResult {
	if res == nil {
		return nil
	}
	return res.SubResults
}

// group emits a structural parent followed by its children. A group whose
// subtree produced nothing is dropped.
func (p buildPass) group(q *Question, responses Responses, parent *string, inComponent bool) []ObservationDraft {
	head := p.groupDraft(q, parent)
	children := p.build(q.Questions, responses, &head.ID, inComponent)
	if len(children) == 0 {
		return nil
	}
	return append([]ObservationDraft{head}, children...)
}

// carrier collapses the coded children of q into components of one draft.
func (p buildPass) carrier(q *Question, responses Responses, parent *string) ObservationDraft {
	head := p.groupDraft(q, parent)
	head.Component = []Component{}
	for _, d := range p.build(q.Questions, responses, nil, true) {
		if d.ValueType == TypeGroup || d.MainCode == nil || d.Value.IsEmpty() {
			continue
		}
		c := Component{Value: d.Value, Code: d.MainCode}
		if d.Note != nil {
			c.Note = *d.Note
		}
		head.Component = append(head.Component, c)
	}
	return head
}

func (p buildPass) groupDraft(q *Question, parent *string) ObservationDraft {
	return ObservationDraft{
		ID:                p.builder.newID(),
		Status:            ObservationStatusFinal,
		ValueType:         q.Type,
		Category:          q.Category,
		MainCode:          q.Code,
		EffectiveDateTime: p.stamp,
		Parent:            copyString(parent),
	}
}

func (p buildPass) leaf(q *Question, res *SubmitResult, parent *string) []ObservationDraft {
	if res == nil || len(res.Values) == 0 {
		return nil
	}
	values := res.Values
	if !q.Repeats {
		values = values[:1]
	}

	effective := p.stamp
	if res.TakenAt != nil {
		effective = res.TakenAt.UTC()
	}

	drafts := make([]ObservationDraft, 0, len(values))
	for _, v := range values {
		drafts = append(drafts, ObservationDraft{
			ID:                p.builder.newID(),
			Status:            ObservationStatusFinal,
			ValueType:         q.Type,
			Category:          q.Category,
			MainCode:          q.Code,
			Value:             observationValue(q, v),
			EffectiveDateTime: effective,
			Note:              copyString(res.Note),
			Parent:            copyString(parent),
		})
	}
	return drafts
}

func observationValue(q *Question, v ResultValue) ObservationValue {
	switch {
	case q.Type == TypeChoice && v.Coding != nil:
		return ObservationValue{Coding: v.Coding}
	case q.Type == TypeQuantity:
		unit := v.Unit
		if unit == nil {
			unit = q.Unit
		}
		return ObservationValue{Value: copyString(v.Value), Unit: unit, Coding: v.Coding}
	default:
		return ObservationValue{Value: copyString(v.Value), Unit: q.Unit}
	}
}

// IsEmpty reports whether the value carries nothing at all.
func (v ObservationValue) IsEmpty() bool {
	return v.Value == nil && v.Unit == nil && v.Coding == nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
