package service

import (
	"testing"

	"smart_edu_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choice(id int, key string) model.Question {
	return model.Question{
		ID: id, Type: model.MultipleChoice, Score: 2,
		Options: []string{"A. a", "B. b", "C. c"}, Answer: model.SingleKey(key),
	}
}

func TestScoreAnswerObjective(t *testing.T) {
	cases := []struct {
		name    string
		q       model.Question
		value   model.AnswerValue
		correct bool
	}{
		{"choice correct", choice(1, "B"), model.TextValue(" B "), true},
		{"choice wrong", choice(1, "B"), model.TextValue("C"), false},
		{"choice is case sensitive", choice(1, "B"), model.TextValue("b"), false},
		{
			"select ignores order",
			model.Question{ID: 2, Type: model.MultipleSelect, Score: 3, Answer: model.MultiKey("A", "C")},
			model.ListValue("C", "A"), true,
		},
		{
			"select ignores duplicates",
			model.Question{ID: 2, Type: model.MultipleSelect, Score: 3, Answer: model.MultiKey("A", "C")},
			model.ListValue("A", "C", "A"), true,
		},
		{
			"select partial is wrong",
			model.Question{ID: 2, Type: model.MultipleSelect, Score: 3, Answer: model.MultiKey("A", "C")},
			model.ListValue("A"), false,
		},
		{
			"true false folds case",
			model.Question{ID: 3, Type: model.TrueFalse, Score: 1, Answer: model.SingleKey("true")},
			model.TextValue(" TRUE "), true,
		},
		{
			"blank collapses whitespace",
			model.Question{ID: 4, Type: model.FillInBlank, Score: 1, Answer: model.SingleKey("New York")},
			model.TextValue("  new   york "), true,
		},
		{
			"multi blank requires every blank",
			model.Question{ID: 5, Type: model.FillInBlank, Score: 2, Answer: model.MultiKey("red", "blue")},
			model.ListValue("Red", "green"), false,
		},
		{
			"multi blank correct",
			model.Question{ID: 5, Type: model.FillInBlank, Score: 2, Answer: model.MultiKey("red", "blue")},
			model.ListValue("RED", " blue"), true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ScoreAnswer(tc.q, tc.value)
			require.NoError(t, err)
			require.NotNil(t, res.IsCorrect)
			assert.False(t, res.Pending)
			assert.Equal(t, tc.correct, *res.IsCorrect)
			if tc.correct {
				assert.Equal(t, tc.q.Score, res.Score)
			} else {
				assert.Zero(t, res.Score)
			}
		})
	}
}

func TestScoreAnswerIsIdempotent(t *testing.T) {
	q := choice(1, "A")
	first, err := ScoreAnswer(q, model.TextValue("A"))
	require.NoError(t, err)
	second, err := ScoreAnswer(q, model.TextValue("A"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScoreAnswerSubjectiveIsPending(t *testing.T) {
	for _, qt := range []model.QuestionType{model.ShortAnswer, model.Essay} {
		res, err := ScoreAnswer(model.Question{ID: 1, Type: qt, Score: 10}, model.TextValue("anything"))
		require.NoError(t, err)
		assert.True(t, res.Pending)
		assert.Nil(t, res.IsCorrect)
	}
}

func TestScoreAnswerMalformed(t *testing.T) {
	_, err := ScoreAnswer(model.Question{ID: 1, Type: model.MultipleChoice, Score: 1}, model.TextValue("A"))
	assert.ErrorIs(t, err, ErrMalformedQuestion)

	_, err = ScoreAnswer(choice(1, "A"), model.ListValue("A"))
	assert.ErrorIs(t, err, ErrMalformedQuestion)

	bad := choice(1, "A")
	bad.Answer = model.MultiKey("A", "B")
	_, err = ScoreAnswer(bad, model.TextValue("A"))
	assert.ErrorIs(t, err, ErrMalformedQuestion)
}
