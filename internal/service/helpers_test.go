package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/repository/inmem"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/pkg/retry"

	"github.com/stretchr/testify/require"
)

var (
	teacher = &model.Session{ID: "t", UserID: 1, Role: model.Teacher}
	other   = &model.Session{ID: "o", UserID: 2, Role: model.Teacher}
	admin   = &model.Session{ID: "a", UserID: 3, Role: model.Admin}
	alice   = &model.Session{ID: "s1", UserID: 10, Role: model.Student}
	bob     = &model.Session{ID: "s2", UserID: 11, Role: model.Student}
)

const manualQuestions = 18

type env struct {
	assessments *inmem.AssessmentStore
	submissions *inmem.SubmissionStore
	jobs        *inmem.AIJobStore

	assessmentSvc *service.AssessmentService
	submissionSvc *service.SubmissionService
	gradingSvc    *service.GradingService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		assessments: inmem.NewAssessmentStore(),
		submissions: inmem.NewSubmissionStore(),
		jobs:        inmem.NewAIJobStore(),
	}
	e.assessmentSvc = service.NewAssessmentService(e.assessments, e.submissions)
	e.submissionSvc = service.NewSubmissionService(e.submissions, e.assessments, false)
	e.gradingSvc = service.NewGradingService(e.submissions, e.assessments)
	return e
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

func raw(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// mixedSections 4 道客观题（id 1-4）和 18 道简答题（id 5-22），每题 5 分
func mixedSections() model.Sections {
	manual := make([]model.Question, 0, manualQuestions)
	for i := 0; i < manualQuestions; i++ {
		manual = append(manual, model.Question{
			ID:              5 + i,
			Stem:            fmt.Sprintf("Explain concept %d", i+1),
			Type:            model.ShortAnswer,
			ReferenceAnswer: "reference",
		})
	}
	return model.Sections{
		{
			Type: model.MultipleChoice, ScorePerQuestion: 5,
			Questions: []model.Question{
				{ID: 1, Stem: "2+2", Type: model.MultipleChoice, Options: []string{"A. 3", "B. 4", "C. 5"}, Answer: model.SingleKey("B")},
			},
		},
		{
			Type: model.MultipleSelect, ScorePerQuestion: 5,
			Questions: []model.Question{
				{ID: 2, Stem: "Primes", Type: model.MultipleSelect, Options: []string{"A. 2", "B. 4", "C. 5"}, Answer: model.MultiKey("A", "C")},
			},
		},
		{
			Type: model.TrueFalse, ScorePerQuestion: 5,
			Questions: []model.Question{
				{ID: 3, Stem: "Go has generics", Type: model.TrueFalse, Answer: model.SingleKey("true")},
			},
		},
		{
			Type: model.FillInBlank, ScorePerQuestion: 5,
			Questions: []model.Question{
				{ID: 4, Stem: "Capital of France", Type: model.FillInBlank, Answer: model.SingleKey("Paris")},
			},
		},
		{Type: model.ShortAnswer, ScorePerQuestion: 5, Questions: manual},
	}
}

func objectiveSections() model.Sections {
	return mixedSections()[:4]
}

func (e *env) createAssessment(t *testing.T, mutate func(in *service.AssessmentInput)) *model.Assessment {
	t.Helper()
	in := service.AssessmentInput{
		Title:       "Unit test",
		CourseID:    100,
		Type:        model.AssessmentQuiz,
		MaxAttempts: intPtr(2),
		IsPublished: true,
		Sections:    mixedSections(),
	}
	if mutate != nil {
		mutate(&in)
	}
	res, err := e.assessmentSvc.Create(context.Background(), teacher, in)
	require.NoError(t, err)
	return res.Assessment
}

// correctAnswers 客观题全对，主观题给出文本
func correctAnswers(sections model.Sections) service.SubmitRequest {
	req := service.SubmitRequest{TimeSpent: 600}
	for _, s := range sections {
		for _, q := range s.Questions {
			var v interface{}
			switch q.Type {
			case model.MultipleChoice:
				v = "B"
			case model.MultipleSelect:
				v = []string{"C", "A"}
			case model.TrueFalse:
				v = "True"
			case model.FillInBlank:
				v = " paris "
			default:
				v = fmt.Sprintf("answer to %d", q.ID)
			}
			req.Answers = append(req.Answers, service.AnswerInput{QuestionID: q.ID, Value: raw(v)})
		}
	}
	return req
}

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(system, user string) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(system, user)
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 1, Backoff: func(int) time.Duration { return 0 }}
}
