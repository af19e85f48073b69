package service

import (
	"context"
	"smart_edu_backend/internal/model"
	"time"
)

type AssessmentFilter struct {
	CourseID  uint
	Type      model.AssessmentType
	Published *bool
	// VisibleOnly 只返回已发布且启用的测评（学生视角）
	VisibleOnly bool
	Page        int
	Limit       int
}

type AssessmentStore interface {
	Create(ctx context.Context, a *model.Assessment) error
	Get(ctx context.Context, id uint) (*model.Assessment, error)
	List(ctx context.Context, filter AssessmentFilter) ([]model.Assessment, int64, error)
	Update(ctx context.Context, a *model.Assessment) error
	Delete(ctx context.Context, id uint) error
}

type SubmissionFilter struct {
	AssessmentID uint
	StudentID    uint
	Status       model.SubmissionStatus
	Page         int
	Limit        int
}

// SubmissionStore 实现需保证 (student_id, assessment_id, attempt_number) 唯一，冲突时返回 util.ErrDuplicateAttempt
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission) error
	Get(ctx context.Context, id uint) (*model.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, int64, error)
	// ListAll 返回测评下全部提交，不分页
	ListAll(ctx context.Context, assessmentID uint) ([]model.Submission, error)
	LastAttempt(ctx context.Context, studentID, assessmentID uint) (int, error)
	// CountByAssessment 不含草稿
	CountByAssessment(ctx context.Context, assessmentID uint) (int64, error)
	// Update 仅当库中版本等于 expectedVersion 时写入，并将 s.Version 加一；否则返回 util.ErrVersionConflict
	Update(ctx context.Context, s *model.Submission, expectedVersion int) error
}

type AIJobStore interface {
	Create(ctx context.Context, job *model.AIJob) error
	Get(ctx context.Context, id string) (*model.AIJob, error)
	Update(ctx context.Context, job *model.AIJob) error
	// ListUnfinished 返回 pending 和 processing 状态的任务
	ListUnfinished(ctx context.Context) ([]model.AIJob, error)
}

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
}

// SessionStore 登录会话存储，过期的会话视为不存在
type SessionStore interface {
	Save(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}

// Clock 便于测试替换当前时间
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
