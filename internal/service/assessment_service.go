package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"smart_edu_backend/pkg/logger"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// AssessmentInput 创建和修改测评的请求体
type AssessmentInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	CourseID    uint                 `json:"course_id"`
	Type        model.AssessmentType `json:"type"`
	TotalScore  float64              `json:"total_score"`
	Duration    string               `json:"duration"`
	StartDate   *time.Time           `json:"start_date"`
	DueDate     *time.Time           `json:"due_date"`
	// MaxAttempts 省略时为 1，0 表示不限
	MaxAttempts *int           `json:"max_attempts"`
	IsPublished bool           `json:"is_published"`
	IsActive    *bool          `json:"is_active"`
	Sections    model.Sections `json:"sections"`
}

type PublishRequest struct {
	IsPublished *bool `json:"is_published"`
	IsActive    *bool `json:"is_active"`
}

// AssessmentResult 测评及校验警告
type AssessmentResult struct {
	Assessment *model.Assessment `json:"assessment"`
	Warnings   []string          `json:"warnings,omitempty"`
}

type QuestionStats struct {
	QuestionID   int     `json:"question_id"`
	Answered     int     `json:"answered"`
	Graded       int     `json:"graded"`
	Correct      int     `json:"correct"`
	CorrectRate  float64 `json:"correct_rate"`
	AverageScore float64 `json:"average_score"`
}

type AssessmentStats struct {
	AssessmentID uint                           `json:"assessment_id"`
	Total        int                            `json:"total"`
	ByStatus     map[model.SubmissionStatus]int `json:"by_status"`
	Late         int                            `json:"late"`
	AverageScore float64                        `json:"average_score"`
	MaxScore     float64                        `json:"max_score"`
	MinScore     float64                        `json:"min_score"`
	Questions    []QuestionStats                `json:"questions"`
}

type AssessmentService struct {
	assessments AssessmentStore
	submissions SubmissionStore
	now         Clock
}

func NewAssessmentService(assessments AssessmentStore, submissions SubmissionStore) *AssessmentService {
	return &AssessmentService{
		assessments: assessments,
		submissions: submissions,
		now:         systemClock,
	}
}

func (s *AssessmentService) Create(ctx context.Context, sess *model.Session, in AssessmentInput) (*AssessmentResult, error) {
	a := &model.Assessment{}
	if err := copier.Copy(a, &in); err != nil {
		return nil, err
	}
	applyInputDefaults(a, in)
	a.CreatedBy = sess.UserID
	a.Version = 1
	if a.IsPublished {
		now := s.now()
		a.PublishedAt = &now
	}

	warnings, err := ValidateAssessment(a)
	if err != nil {
		return nil, err
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, err
	}

	logger.Log.Info("Assessment created",
		zap.Uint("assessment_id", a.ID),
		zap.Uint("created_by", sess.UserID),
		zap.Int("questions", len(a.Questions())),
		zap.Int("warnings", len(warnings)))
	return &AssessmentResult{Assessment: a, Warnings: warnings}, nil
}

func applyInputDefaults(a *model.Assessment, in AssessmentInput) {
	a.MaxAttempts = 1
	if in.MaxAttempts != nil {
		a.MaxAttempts = *in.MaxAttempts
	}
	a.IsActive = true
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	if a.Type == "" {
		a.Type = model.AssessmentQuiz
	}
}

// Get 学生只能看到已发布且启用的测评，且不含答案
func (s *AssessmentService) Get(ctx context.Context, sess *model.Session, id uint) (*model.Assessment, error) {
	a, err := s.assessments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.IsStaff() {
		return a, nil
	}
	if !a.IsPublished || !a.IsActive {
		return nil, util.ErrNotFound
	}
	view := a.StudentView()
	return &view, nil
}

func (s *AssessmentService) List(ctx context.Context, sess *model.Session, filter AssessmentFilter) ([]model.Assessment, int64, error) {
	filter.Page, filter.Limit = util.NormalizePage(filter.Page, filter.Limit)
	if !sess.IsStaff() {
		filter.VisibleOnly = true
		filter.Published = nil
	}

	list, total, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if !sess.IsStaff() {
		for i := range list {
			list[i] = list[i].StudentView()
		}
	}
	return list, total, nil
}

// Update 修改测评。已有提交时只允许修改内容，不允许增删题目或改变题型和选项数量。
// 题目内容变化时 version 加一，已有提交不会自动重新判分。
func (s *AssessmentService) Update(ctx context.Context, sess *model.Session, id uint, in AssessmentInput) (*AssessmentResult, error) {
	current, err := s.editable(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	next := &model.Assessment{}
	if err := copier.CopyWithOption(next, current, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	if err := copier.Copy(next, &in); err != nil {
		return nil, err
	}
	next.MaxAttempts = current.MaxAttempts
	if in.MaxAttempts != nil {
		next.MaxAttempts = *in.MaxAttempts
	}
	next.IsActive = current.IsActive
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if next.Type == "" {
		next.Type = current.Type
	}
	next.ID = current.ID
	next.CreatedBy = current.CreatedBy
	next.Version = current.Version
	next.IsPublished = current.IsPublished
	next.PublishedAt = current.PublishedAt

	warnings, err := ValidateAssessment(next)
	if err != nil {
		return nil, err
	}

	count, err := s.submissions.CountByAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if count > 0 && !sameStructure(current.Sections, next.Sections) {
		return nil, util.ErrAssessmentFrozen
	}
	if !sameContent(current.Sections, next.Sections) {
		next.Version = current.Version + 1
	}

	if err := s.assessments.Update(ctx, next); err != nil {
		return nil, err
	}
	if next.Version != current.Version && count > 0 {
		logger.Log.Info("Assessment content changed after submissions, regrade required to apply",
			zap.Uint("assessment_id", id),
			zap.Int("version", next.Version),
			zap.Int64("submissions", count))
	}
	return &AssessmentResult{Assessment: next, Warnings: warnings}, nil
}

func (s *AssessmentService) SetPublished(ctx context.Context, sess *model.Session, id uint, req PublishRequest) (*model.Assessment, error) {
	a, err := s.editable(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if req.IsPublished == nil && req.IsActive == nil {
		return nil, util.NewValidationError("is_published", "is_published or is_active is required")
	}
	if req.IsPublished != nil {
		if *req.IsPublished && !a.IsPublished {
			if _, err := ValidateAssessment(a); err != nil {
				return nil, err
			}
			now := s.now()
			a.PublishedAt = &now
		}
		a.IsPublished = *req.IsPublished
	}
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	if err := s.assessments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete 已有提交的测评不能删除
func (s *AssessmentService) Delete(ctx context.Context, sess *model.Session, id uint) error {
	if _, err := s.editable(ctx, sess, id); err != nil {
		return err
	}
	count, err := s.submissions.CountByAssessment(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.ErrAssessmentFrozen
	}
	return s.assessments.Delete(ctx, id)
}

func (s *AssessmentService) SubmissionCount(ctx context.Context, id uint) (int64, error) {
	if _, err := s.assessments.Get(ctx, id); err != nil {
		return 0, err
	}
	return s.submissions.CountByAssessment(ctx, id)
}

// Stats 按状态计数、已评分成绩的均值和极值、每题正确率，草稿不计入
func (s *AssessmentService) Stats(ctx context.Context, id uint) (*AssessmentStats, error) {
	a, err := s.assessments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	subs, err := s.submissions.ListAll(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &AssessmentStats{
		AssessmentID: id,
		ByStatus:     make(map[model.SubmissionStatus]int),
	}
	perQuestion := make(map[int]*QuestionStats)
	questionScore := make(map[int]float64)
	var graded int
	var scoreSum float64

	for _, sub := range subs {
		if sub.Status == model.SubmissionDraft {
			continue
		}
		stats.Total++
		stats.ByStatus[sub.Status]++
		if sub.Late {
			stats.Late++
		}
		if sub.Status == model.SubmissionGraded {
			if graded == 0 || sub.Score > stats.MaxScore {
				stats.MaxScore = sub.Score
			}
			if graded == 0 || sub.Score < stats.MinScore {
				stats.MinScore = sub.Score
			}
			graded++
			scoreSum += sub.Score
		}
		for _, ans := range sub.Answers {
			qs, ok := perQuestion[ans.QuestionID]
			if !ok {
				qs = &QuestionStats{QuestionID: ans.QuestionID}
				perQuestion[ans.QuestionID] = qs
			}
			qs.Answered++
			if ans.Status == model.AnswerGraded {
				qs.Graded++
				questionScore[ans.QuestionID] += ans.Score
				if ans.IsCorrect != nil && *ans.IsCorrect {
					qs.Correct++
				}
			}
		}
	}
	if graded > 0 {
		stats.AverageScore = scoreSum / float64(graded)
	}

	for _, q := range a.Questions() {
		qs, ok := perQuestion[q.ID]
		if !ok {
			qs = &QuestionStats{QuestionID: q.ID}
		}
		if qs.Graded > 0 {
			qs.CorrectRate = float64(qs.Correct) / float64(qs.Graded)
			qs.AverageScore = questionScore[q.ID] / float64(qs.Graded)
		}
		stats.Questions = append(stats.Questions, *qs)
	}
	return stats, nil
}

// editable 教师只能修改自己创建的测评，管理员不受限
func (s *AssessmentService) editable(ctx context.Context, sess *model.Session, id uint) (*model.Assessment, error) {
	a, err := s.assessments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Role != model.Admin && a.CreatedBy != sess.UserID {
		return nil, fmt.Errorf("%w: assessment %d belongs to another teacher", util.ErrPermissionDenied, id)
	}
	return a, nil
}

type questionShape struct {
	ID      int
	Type    model.QuestionType
	Options int
}

func structureOf(sections model.Sections) [][]questionShape {
	shape := make([][]questionShape, len(sections))
	for i, sec := range sections {
		for _, q := range sec.Questions {
			shape[i] = append(shape[i], questionShape{ID: q.ID, Type: q.Type, Options: len(q.Options)})
		}
	}
	return shape
}

func sameStructure(a, b model.Sections) bool {
	return reflect.DeepEqual(structureOf(a), structureOf(b))
}

func sameContent(a, b model.Sections) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
