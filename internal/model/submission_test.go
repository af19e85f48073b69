package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionTransitions(t *testing.T) {
	allowed := []struct{ from, to SubmissionStatus }{
		{SubmissionDraft, SubmissionSubmitted},
		{SubmissionSubmitted, SubmissionPartiallyGraded},
		{SubmissionSubmitted, SubmissionGraded},
		{SubmissionPartiallyGraded, SubmissionPartiallyGraded},
		{SubmissionPartiallyGraded, SubmissionGraded},
		{SubmissionGraded, SubmissionPartiallyGraded},
	}
	for _, tr := range allowed {
		assert.True(t, tr.from.CanTransitionTo(tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to SubmissionStatus }{
		{SubmissionDraft, SubmissionGraded},
		{SubmissionGraded, SubmissionGraded},
		{SubmissionGraded, SubmissionDraft},
		{SubmissionSubmitted, SubmissionDraft},
	}
	for _, tr := range denied {
		assert.False(t, tr.from.CanTransitionTo(tr.to), "%s -> %s", tr.from, tr.to)
	}

	assert.True(t, SubmissionGraded.Valid())
	assert.False(t, SubmissionStatus("archived").Valid())
}

func TestValueKindFor(t *testing.T) {
	assert.Equal(t, ValueList, ValueKindFor(Question{Type: MultipleSelect}))
	assert.Equal(t, ValueText, ValueKindFor(Question{Type: FillInBlank, Answer: SingleKey("x")}))
	assert.Equal(t, ValueList, ValueKindFor(Question{Type: FillInBlank, Answer: MultiKey("x", "y")}))
	assert.Equal(t, ValueEssay, ValueKindFor(Question{Type: Essay}))
	assert.Equal(t, ValueText, ValueKindFor(Question{Type: ShortAnswer}))
	assert.Equal(t, ValueText, ValueKindFor(Question{Type: TrueFalse}))
}

func TestDecodeAnswerValue(t *testing.T) {
	v, err := DecodeAnswerValue(ValueText, json.RawMessage(`"B"`))
	require.NoError(t, err)
	assert.Equal(t, TextValue("B"), v)

	v, err = DecodeAnswerValue(ValueList, json.RawMessage(`["A","C"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, v.List)

	v, err = DecodeAnswerValue(ValueEssay, json.RawMessage(`{"text":"hi","files":[{"name":"a.pdf","url":"/u/a.pdf","size":3,"type":"application/pdf"}]}`))
	require.NoError(t, err)
	require.NotNil(t, v.Essay)
	assert.Equal(t, "hi", v.Essay.Text)
	assert.Len(t, v.Essay.Files, 1)

	_, err = DecodeAnswerValue(ValueText, json.RawMessage(`["A"]`))
	assert.Error(t, err)
	_, err = DecodeAnswerValue(ValueList, json.RawMessage(`"A"`))
	assert.Error(t, err)
	_, err = DecodeAnswerValue(ValueText, nil)
	assert.ErrorIs(t, err, ErrEmptyAnswerValue)
}

func TestAnswerJSONUsesKind(t *testing.T) {
	in := Answers{
		{QuestionID: 1, Kind: ValueText, Value: TextValue("B"), Status: AnswerGraded, Score: 2},
		{QuestionID: 2, Kind: ValueList, Value: ListValue("A", "C"), Status: AnswerPending},
		{QuestionID: 3, Kind: ValueEssay, Value: EssayAnswer("text"), Status: AnswerPending},
	}

	v, err := in.Value()
	require.NoError(t, err)

	var out Answers
	require.NoError(t, out.Scan(v.(string)))
	assert.Equal(t, in, out)

	var bad Answer
	assert.Error(t, json.Unmarshal([]byte(`{"question_id":4,"kind":"list","value":"A"}`), &bad))
}

func TestSubmissionHelpers(t *testing.T) {
	sub := Submission{Answers: Answers{
		{QuestionID: 1, Score: 2, Status: AnswerGraded},
		{QuestionID: 2, Score: 0, Status: AnswerPending},
		{QuestionID: 3, Score: 1.5, Status: AnswerGraded},
	}}
	assert.Equal(t, 1, sub.PendingCount())
	assert.Equal(t, 3.5, sub.SumScores())
	require.NotNil(t, sub.AnswerFor(2))
	assert.Nil(t, sub.AnswerFor(7))

	sub.AnswerFor(2).Status = AnswerGraded
	assert.Equal(t, 0, sub.PendingCount())
}
