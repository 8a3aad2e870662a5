package questionnaire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEnabled_Operators(t *testing.T) {
	links := map[string]string{"1": "q1"}

	tests := []struct {
		name   string
		op     Operator
		answer interface{}
		values []string
		want   bool
	}{
		{"exists answered", OpExists, nil, []string{"x"}, true},
		{"exists unanswered", OpExists, nil, nil, false},
		{"equals match", OpEquals, "true", []string{"true"}, true},
		{"equals is case sensitive", OpEquals, "true", []string{"True"}, false},
		{"equals non-string answer", OpEquals, true, []string{"true"}, false},
		{"equals unanswered", OpEquals, "true", nil, false},
		{"not_equals differs", OpNotEquals, "true", []string{"false"}, true},
		{"not_equals unanswered", OpNotEquals, "true", nil, true},
		{"greater", OpGreater, float64(5), []string{"6"}, true},
		{"greater equal value", OpGreater, float64(5), []string{"5"}, false},
		{"less", OpLess, float64(5), []string{"4.5"}, true},
		{"greater_or_equals", OpGreaterOrEquals, float64(5), []string{"5"}, true},
		{"less_or_equals", OpLessOrEquals, "5", []string{"5.0"}, true},
		{"numeric compare on text", OpGreater, float64(5), []string{"abc"}, false},
		{"numeric compare on bad answer", OpLess, "abc", []string{"1"}, false},
		{"unknown operator", Operator("contains"), "a", []string{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []SubmitResult
			if tt.values != nil {
				results = append(results, answer("q1", tt.values...))
			}
			q := &Question{ID: "q2", LinkID: "2", EnableWhen: []EnableWhen{{Question: "1", Operator: tt.op, Answer: tt.answer}}}
			assert.Equal(t, tt.want, IsEnabled(q, NewResponses(results), links))
		})
	}
}

func TestIsEnabled_NoRules(t *testing.T) {
	q := &Question{ID: "q1", LinkID: "1"}
	assert.True(t, IsEnabled(q, NewResponses(nil), map[string]string{}))
}

func TestIsEnabled_UnknownLinkID(t *testing.T) {
	q := &Question{ID: "q2", EnableWhen: []EnableWhen{{Question: "missing", Operator: OpExists}}}
	results := []SubmitResult{answer("q1", "x")}
	assert.False(t, IsEnabled(q, NewResponses(results), map[string]string{"1": "q1"}))
}

func TestIsEnabled_FirstValueOnly(t *testing.T) {
	q := &Question{ID: "q2", EnableWhen: []EnableWhen{{Question: "1", Operator: OpEquals, Answer: "b"}}}
	results := []SubmitResult{answer("q1", "a", "b")}
	assert.False(t, IsEnabled(q, NewResponses(results), map[string]string{"1": "q1"}))
}

func TestIsEnabled_Behavior(t *testing.T) {
	links := map[string]string{"1": "q1", "2": "q2"}
	results := NewResponses([]SubmitResult{answer("q1", "yes"), answer("q2", "no")})
	conds := []EnableWhen{
		{Question: "1", Operator: OpEquals, Answer: "yes"},
		{Question: "2", Operator: OpEquals, Answer: "yes"},
	}

	all := &Question{ID: "q3", EnableWhen: conds}
	assert.False(t, IsEnabled(all, results, links), "default behavior is all")

	all.EnableBehavior = BehaviorAll
	assert.False(t, IsEnabled(all, results, links))

	anyQ := &Question{ID: "q3", EnableWhen: conds, EnableBehavior: BehaviorAny}
	assert.True(t, IsEnabled(anyQ, results, links))
}

func TestLinkMap_IncludesNestedGroups(t *testing.T) {
	questions := []Question{
		{ID: "q1", LinkID: "1"},
		{ID: "g1", LinkID: "g", Type: TypeGroup, Questions: []Question{
			{ID: "q2", LinkID: "2"},
			{ID: "g2", LinkID: "gg", Type: TypeGroup, Questions: []Question{{ID: "q3", LinkID: "3"}}},
		}},
	}
	assert.Equal(t, map[string]string{"1": "q1", "g": "g1", "2": "q2", "gg": "g2", "3": "q3"}, LinkMap(questions))
}

func TestResponses_LaterResultWins(t *testing.T) {
	r := NewResponses([]SubmitResult{answer("q1", "a"), answer("q1", "b")})
	got, ok := r.Get("q1")
	assert.True(t, ok)
	assert.Equal(t, "b", *got.Values[0].Value)
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.Has("q2"))
}
