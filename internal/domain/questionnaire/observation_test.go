package questionnaire

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/intake/internal/platform/fhir"
)

var buildTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func testBuilder() *ObservationBuilder {
	n := 0
	return NewObservationBuilder(
		WithClock(func() time.Time { return buildTime }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("obs-%d", n)
		}),
	)
}

func build(questions []Question, results ...SubmitResult) []ObservationDraft {
	return testBuilder().Build(questions, NewResponses(results))
}

func TestBuild_LeafWithCode(t *testing.T) {
	questions := []Question{
		{ID: "q1", LinkID: "1", Type: TypeQuantity, Code: loinc("29463-7"), Category: &fhir.Coding{Code: "vital-signs"}},
		{ID: "q2", LinkID: "2", Type: TypeString},
	}
	res := SubmitResult{QuestionID: "q1", Note: strp("after lunch"), Values: []ResultValue{{Value: strp("72.5"), Unit: &fhir.Coding{Code: "kg"}}}}

	drafts := build(questions, res, answer("q2", "uncoded"))

	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "obs-1", d.ID)
	assert.Equal(t, ObservationStatusFinal, d.Status)
	assert.Equal(t, TypeQuantity, d.ValueType)
	assert.Equal(t, "29463-7", d.MainCode.Code)
	assert.Equal(t, "vital-signs", d.Category.Code)
	assert.Equal(t, "72.5", *d.Value.Value)
	assert.Equal(t, "kg", d.Value.Unit.Code)
	assert.Equal(t, "after lunch", *d.Note)
	assert.Equal(t, buildTime, d.EffectiveDateTime)
	assert.Nil(t, d.Parent)
}

func TestBuild_UnansweredLeafSkipped(t *testing.T) {
	questions := []Question{{ID: "q1", LinkID: "1", Type: TypeInteger, Code: loinc("8867-4")}}
	assert.Empty(t, build(questions))
	assert.Empty(t, build(questions, SubmitResult{QuestionID: "q1"}))
}

func TestBuild_TakenAtOverridesStamp(t *testing.T) {
	taken := time.Date(2024, 4, 30, 22, 0, 0, 0, time.FixedZone("EST", -5*3600))
	questions := []Question{
		{ID: "q1", LinkID: "1", Type: TypeDecimal, Code: loinc("8310-5")},
		{ID: "q2", LinkID: "2", Type: TypeInteger, Code: loinc("8867-4")},
	}
	res := answer("q1", "37.2")
	res.TakenAt = &taken

	drafts := build(questions, res, answer("q2", "80"))

	require.Len(t, drafts, 2)
	assert.Equal(t, taken.UTC(), drafts[0].EffectiveDateTime)
	assert.Equal(t, buildTime, drafts[1].EffectiveDateTime)
}

func TestBuild_RepeatingLeafOneDraftPerValue(t *testing.T) {
	questions := []Question{{ID: "q1", LinkID: "1", Type: TypeInteger, Code: loinc("8867-4"), Repeats: true}}

	drafts := build(questions, answer("q1", "70", "72", "75"))

	require.Len(t, drafts, 3)
	assert.Equal(t, "75", *drafts[2].Value.Value)
}

func TestBuild_ChoiceCoding(t *testing.T) {
	questions := []Question{{ID: "q1", LinkID: "1", Type: TypeChoice, Code: loinc("72166-2"), AnswerValueSet: "smoking"}}
	res := SubmitResult{QuestionID: "q1", Values: []ResultValue{{Value: strp("ignored"), Coding: &fhir.Coding{Code: "LA18976-3"}}}}

	drafts := build(questions, res)

	require.Len(t, drafts, 1)
	assert.Nil(t, drafts[0].Value.Value)
	assert.Equal(t, "LA18976-3", drafts[0].Value.Coding.Code)
}

func TestBuild_GroupParentsPrecedeChildren(t *testing.T) {
	questions := []Question{
		{ID: "g1", LinkID: "g1", Type: TypeGroup, Code: loinc("85353-1"), Questions: []Question{
			{ID: "q1", LinkID: "1", Type: TypeInteger, Code: loinc("8867-4")},
			{ID: "g2", LinkID: "g2", Type: TypeGroup, Questions: []Question{
				{ID: "q2", LinkID: "2", Type: TypeInteger, Code: loinc("9279-1")},
			}},
		}},
	}

	drafts := build(questions, answer("q1", "80"), answer("q2", "16"))

	require.Len(t, drafts, 4)
	assert.Equal(t, TypeGroup, drafts[0].ValueType)
	assert.Nil(t, drafts[0].Parent)
	assert.Equal(t, drafts[0].ID, *drafts[1].Parent)
	assert.Equal(t, TypeGroup, drafts[2].ValueType)
	assert.Equal(t, drafts[0].ID, *drafts[2].Parent)
	assert.Equal(t, drafts[2].ID, *drafts[3].Parent)
}

func TestBuild_EmptyGroupDropped(t *testing.T) {
	questions := []Question{
		{ID: "g1", LinkID: "g1", Type: TypeGroup, Questions: []Question{
			{ID: "q1", LinkID: "1", Type: TypeString},
		}},
	}
	assert.Empty(t, build(questions, answer("q1", "uncoded")))
}

func componentGroup(repeats bool) []Question {
	return []Question{
		{ID: "g1", LinkID: "g1", Type: TypeGroup, Code: loinc("85354-9"), IsComponent: true, Repeats: repeats, Questions: []Question{
			{ID: "q1", LinkID: "1", Type: TypeBoolean, Code: loinc("8480-6")},
			{ID: "q2", LinkID: "2", Type: TypeDecimal, Code: loinc("8462-4")},
		}},
	}
}

func TestBuild_RepeatingComponentGroup(t *testing.T) {
	res := SubmitResult{QuestionID: "g1", SubResults: [][]SubmitResult{
		{answer("q1", "true"), answer("q2", "80.5")},
		{answer("q1", "false"), answer("q2", "78")},
	}}

	drafts := build(componentGroup(true), res)

	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.Equal(t, "85354-9", d.MainCode.Code)
		assert.NotEmpty(t, d.Component)
		assert.Nil(t, d.Value.Value)
	}
	require.Len(t, drafts[1].Component, 2)
	assert.Equal(t, "false", *drafts[1].Component[0].Value.Value)
	assert.Equal(t, "8480-6", drafts[1].Component[0].Code.Code)
	assert.Equal(t, "78", *drafts[1].Component[1].Value.Value)
	assert.NotEqual(t, drafts[0].ID, drafts[1].ID)
}

func TestBuild_ComponentGroupSingle(t *testing.T) {
	note := answer("q2", "80")
	note.Note = strp("sitting")

	drafts := build(componentGroup(false), answer("q1", "true"), note)

	require.Len(t, drafts, 1)
	require.Len(t, drafts[0].Component, 2)
	assert.Equal(t, "sitting", drafts[0].Component[1].Note)
}

func TestBuild_ComponentGroupWithoutRepetitions(t *testing.T) {
	assert.Empty(t, build(componentGroup(true)))
}

func TestBuild_RepeatingGroupPerRepetition(t *testing.T) {
	questions := []Question{
		{ID: "g1", LinkID: "g1", Type: TypeGroup, Repeats: true, Questions: []Question{
			{ID: "q1", LinkID: "1", Type: TypeInteger, Code: loinc("8867-4")},
		}},
	}
	res := SubmitResult{QuestionID: "g1", SubResults: [][]SubmitResult{
		{answer("q1", "70")},
		{answer("q1", "90")},
	}}

	drafts := build(questions, res)

	require.Len(t, drafts, 4)
	assert.Equal(t, drafts[0].ID, *drafts[1].Parent)
	assert.Equal(t, drafts[2].ID, *drafts[3].Parent)
	assert.Equal(t, "90", *drafts[3].Value.Value)
}

func TestBuild_DraftsDoNotAliasInput(t *testing.T) {
	questions := []Question{{ID: "q1", LinkID: "1", Type: TypeString, Code: loinc("x")}}
	res := answer("q1", "before")

	drafts := build(questions, res)
	*res.Values[0].Value = "after"

	assert.Equal(t, "before", *drafts[0].Value.Value)
}

func TestBuild_SharedTimestamp(t *testing.T) {
	calls := 0
	b := NewObservationBuilder(WithClock(func() time.Time {
		calls++
		return buildTime.Add(time.Duration(calls) * time.Second)
	}))
	questions := []Question{
		{ID: "q1", LinkID: "1", Type: TypeInteger, Code: loinc("a")},
		{ID: "q2", LinkID: "2", Type: TypeInteger, Code: loinc("b")},
	}

	drafts := b.Build(questions, NewResponses([]SubmitResult{answer("q1", "1"), answer("q2", "2")}))

	require.Len(t, drafts, 2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, drafts[0].EffectiveDateTime, drafts[1].EffectiveDateTime)
}
