package service

import (
	"errors"
	"testing"
	"time"

	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAssessment() *model.Assessment {
	return &model.Assessment{
		Title:    " Week 1 ",
		CourseID: 7,
		Type:     model.AssessmentQuiz,
		Sections: model.Sections{
			{
				Type:             model.MultipleChoice,
				ScorePerQuestion: 2,
				Questions: []model.Question{
					{Stem: "2+2", Type: model.MultipleChoice, Options: []string{"A. 3", "B. 4"}, Answer: model.SingleKey("B")},
					{Stem: "3+3", Type: model.MultipleChoice, Options: []string{"A. 6", "B. 7"}, Answer: model.SingleKey("A")},
				},
			},
			{
				Type:             model.TrueFalse,
				ScorePerQuestion: 1,
				Questions: []model.Question{
					{Stem: "Go is compiled", Type: model.TrueFalse, Answer: model.SingleKey("True")},
				},
			},
			{
				Type:             model.Essay,
				ScorePerQuestion: 5,
				Questions: []model.Question{
					{Stem: "Explain goroutines", Type: model.Essay, ReferenceAnswer: "lightweight threads"},
				},
			},
		},
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var verr *util.ValidationError
	require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
	var fields []string
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	return fields
}

func TestValidateAssessmentNormalizes(t *testing.T) {
	a := validAssessment()
	warnings, err := ValidateAssessment(a)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "Week 1", a.Title)
	ids := []int{}
	for _, q := range a.Questions() {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, ids)

	tf := a.Sections[1].Questions[0]
	assert.Equal(t, []string{"true", "false"}, tf.Options)
	assert.Equal(t, 1.0, tf.Score)
	assert.Equal(t, 10.0, a.TotalScore)
}

func TestValidateAssessmentKeepsExplicitIDs(t *testing.T) {
	a := validAssessment()
	a.Sections[0].Questions[1].ID = 10
	_, err := ValidateAssessment(a)
	require.NoError(t, err)

	assert.Equal(t, 11, a.Sections[0].Questions[0].ID)
	assert.Equal(t, 10, a.Sections[0].Questions[1].ID)
}

func TestValidateAssessmentErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(a *model.Assessment)
		field  string
	}{
		{"missing title", func(a *model.Assessment) { a.Title = "  " }, "title"},
		{"blank stem", func(a *model.Assessment) { a.Sections[0].Questions[0].Stem = "" }, "sections[0].questions[0].stem"},
		{"unknown type", func(a *model.Assessment) { a.Sections[0].Questions[0].Type = "matching" }, "sections[0].questions[0].type"},
		{"key not a label", func(a *model.Assessment) { a.Sections[0].Questions[0].Answer = model.SingleKey("D") }, "sections[0].questions[0].answer"},
		{"missing key", func(a *model.Assessment) { a.Sections[0].Questions[1].Answer = nil }, "sections[0].questions[1].answer"},
		{"options on essay", func(a *model.Assessment) { a.Sections[2].Questions[0].Options = []string{"A. x"} }, "sections[2].questions[0].options"},
		{"true false key", func(a *model.Assessment) { a.Sections[1].Questions[0].Answer = model.SingleKey("maybe") }, "sections[1].questions[0].answer"},
		{"duplicate ids", func(a *model.Assessment) {
			a.Sections[0].Questions[0].ID = 3
			a.Sections[1].Questions[0].ID = 3
		}, "sections[1].questions[0].id"},
		{"due before start", func(a *model.Assessment) {
			start := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
			due := start.Add(-time.Hour)
			a.StartDate, a.DueDate = &start, &due
		}, "due_date"},
		{"no sections", func(a *model.Assessment) { a.Sections = nil }, "sections"},
		{"duplicate labels", func(a *model.Assessment) {
			a.Sections[0].Questions[0].Options = []string{"A. 3", "A. 4"}
			a.Sections[0].Questions[0].Answer = model.SingleKey("A")
		}, "sections[0].questions[0].options"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAssessment()
			tc.mutate(a)
			_, err := ValidateAssessment(a)
			require.Error(t, err)
			assert.Contains(t, fieldsOf(t, err), tc.field)
		})
	}
}

func TestValidateAssessmentCollectsAllErrors(t *testing.T) {
	a := validAssessment()
	a.Title = ""
	a.Sections[0].Questions[0].Answer = model.SingleKey("Z")
	a.Sections[2].Questions[0].Options = []string{"A. x"}

	_, err := ValidateAssessment(a)
	assert.Len(t, fieldsOf(t, err), 3)
}

func TestValidateAssessmentWarnings(t *testing.T) {
	a := validAssessment()
	a.TotalScore = 50
	a.Sections[0].Questions[1].Type = model.TrueFalse
	a.Sections[0].Questions[1].Options = nil
	a.Sections[0].Questions[1].Answer = model.SingleKey("false")
	a.Sections[0].Questions[0].AllowAttachment = true

	warnings, err := ValidateAssessment(a)
	require.NoError(t, err)
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "allow_attachment")
	assert.Contains(t, warnings[1], "differs from section type")
	assert.Contains(t, warnings[2], "total_score")
}
