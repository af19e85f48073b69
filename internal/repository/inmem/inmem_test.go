package inmem

import (
	"context"
	"testing"
	"time"

	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionStoreUniqueAttempt(t *testing.T) {
	s := NewSubmissionStore()
	ctx := context.Background()

	first := &model.Submission{StudentID: 1, AssessmentID: 2, AttemptNumber: 1, Status: model.SubmissionSubmitted}
	require.NoError(t, s.Create(ctx, first))
	assert.Equal(t, 1, first.Version)

	dup := &model.Submission{StudentID: 1, AssessmentID: 2, AttemptNumber: 1}
	assert.ErrorIs(t, s.Create(ctx, dup), util.ErrDuplicateAttempt)

	require.NoError(t, s.Create(ctx, &model.Submission{StudentID: 1, AssessmentID: 2, AttemptNumber: 2}))
	last, err := s.LastAttempt(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, last)
}

func TestSubmissionStoreOptimisticLock(t *testing.T) {
	s := NewSubmissionStore()
	ctx := context.Background()
	sub := &model.Submission{StudentID: 1, AssessmentID: 1, AttemptNumber: 1, Status: model.SubmissionSubmitted}
	require.NoError(t, s.Create(ctx, sub))

	a, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	b, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)

	a.Score = 10
	require.NoError(t, s.Update(ctx, a, a.Version))
	assert.Equal(t, 2, a.Version)

	b.Score = 20
	assert.ErrorIs(t, s.Update(ctx, b, b.Version), util.ErrVersionConflict)

	stored, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Score)
}

func TestSubmissionStoreReturnsCopies(t *testing.T) {
	s := NewSubmissionStore()
	ctx := context.Background()
	sub := &model.Submission{
		StudentID: 1, AssessmentID: 1, AttemptNumber: 1,
		Answers: model.Answers{{QuestionID: 1, Status: model.AnswerPending}},
	}
	require.NoError(t, s.Create(ctx, sub))

	got, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	got.Answers[0].Status = model.AnswerGraded

	again, err := s.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AnswerPending, again.Answers[0].Status)
}

func TestSubmissionStoreListAndCount(t *testing.T) {
	s := NewSubmissionStore()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Create(ctx, &model.Submission{
			StudentID: uint(i), AssessmentID: 1, AttemptNumber: 1, Status: model.SubmissionGraded,
		}))
	}
	require.NoError(t, s.Create(ctx, &model.Submission{StudentID: 9, AssessmentID: 1, AttemptNumber: 1, Status: model.SubmissionDraft}))
	require.NoError(t, s.Create(ctx, &model.Submission{StudentID: 1, AssessmentID: 2, AttemptNumber: 1, Status: model.SubmissionGraded}))

	n, err := s.CountByAssessment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	page, total, err := s.List(ctx, service.SubmissionFilter{AssessmentID: 1, Status: model.SubmissionGraded, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, uint(3), page[0].StudentID)

	page, _, err = s.List(ctx, service.SubmissionFilter{AssessmentID: 1, Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)

	all, err := s.ListAll(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.Less(t, all[0].ID, all[5].ID)
}

func TestAssessmentStoreFilters(t *testing.T) {
	s := NewAssessmentStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &model.Assessment{Title: "a", CourseID: 1, IsPublished: true, IsActive: true}))
	require.NoError(t, s.Create(ctx, &model.Assessment{Title: "b", CourseID: 1, IsPublished: true, IsActive: false}))
	require.NoError(t, s.Create(ctx, &model.Assessment{Title: "c", CourseID: 2}))

	list, total, err := s.List(ctx, service.AssessmentFilter{VisibleOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "a", list[0].Title)

	published := true
	_, total, err = s.List(ctx, service.AssessmentFilter{Published: &published})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	list, _, err = s.List(ctx, service.AssessmentFilter{CourseID: 1})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Title)

	require.NoError(t, s.Delete(ctx, list[0].ID))
	assert.ErrorIs(t, s.Delete(ctx, list[0].ID), util.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, &list[0]), util.ErrNotFound)
}

func TestUserStoreUniqueEmail(t *testing.T) {
	s := NewUserStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &model.User{Email: "a@example.com"}))
	assert.ErrorIs(t, s.Create(ctx, &model.User{Email: "a@example.com"}), util.ErrEmailRegistered)

	u, err := s.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	at := time.Now()
	require.NoError(t, s.UpdateLastLogin(ctx, u.ID, at))

	got, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.True(t, got.LastLogin.Equal(at))

	_, err = s.GetByEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestSessionStoreExpiry(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &model.Session{ID: "live", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, s.Save(ctx, &model.Session{ID: "dead", ExpiresAt: time.Now().Add(-time.Second)}))

	_, err := s.Get(ctx, "live")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "dead")
	assert.ErrorIs(t, err, util.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "live"))
	_, err = s.Get(ctx, "live")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestAIJobStoreListUnfinished(t *testing.T) {
	s := NewAIJobStore()
	ctx := context.Background()
	for _, status := range []model.AIJobStatus{model.AIJobPending, model.AIJobProcessing, model.AIJobDone, model.AIJobError} {
		require.NoError(t, s.Create(ctx, &model.AIJob{Kind: model.AIJobGenerateAssessment, Status: status}))
	}

	jobs, err := s.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.False(t, j.Status.Terminal())
		assert.NotEmpty(t, j.ID)
	}

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, util.ErrNotFound)
}
