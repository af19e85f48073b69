package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"smart_edu_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AIJobService 把 AI 出题和 AI 评分包装成后台任务，接口立即返回 request_id
type AIJobService struct {
	runner      *JobRunner
	jobs        AIJobStore
	ai          *AIService
	assessments AssessmentStore
	submissions SubmissionStore
	grading     *GradingService
}

func NewAIJobService(
	runner *JobRunner,
	jobs AIJobStore,
	ai *AIService,
	assessments AssessmentStore,
	submissions SubmissionStore,
	grading *GradingService,
) *AIJobService {
	s := &AIJobService{
		runner:      runner,
		jobs:        jobs,
		ai:          ai,
		assessments: assessments,
		submissions: submissions,
		grading:     grading,
	}
	runner.Register(model.AIJobGenerateAssessment, s.handleGenerate)
	runner.Register(model.AIJobGradeSubmission, s.handleGrade)
	return s
}

// EnqueueGeneration 校验出题参数后创建任务
func (s *AIJobService) EnqueueGeneration(ctx context.Context, sess *model.Session, req model.GenerateRequest) (*model.AIJob, error) {
	if verr := validateStruct(&req); len(verr.Fields) > 0 {
		return nil, verr
	}
	verr := &util.ValidationError{}
	for i, qt := range req.QuestionTypes {
		if !qt.Type.Valid() {
			verr.Addf(fmt.Sprintf("question_types[%d].type", i), "unknown question type %q", qt.Type)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if !s.ai.Available() {
		return nil, util.ErrAIUnavailable
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	job := &model.AIJob{
		Kind:        model.AIJobGenerateAssessment,
		RequestedBy: sess.UserID,
		Payload:     datatypes.JSON(payload),
	}
	if err := s.runner.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueGrading 为提交中待评分的主观题生成评分建议
func (s *AIJobService) EnqueueGrading(ctx context.Context, sess *model.Session, submissionID uint) (*model.AIJob, error) {
	sub, err := s.submissions.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubmissionGraded {
		return nil, util.ErrAlreadyGraded
	}
	if sub.Status == model.SubmissionDraft {
		return nil, util.NewValidationError("status", "draft submissions cannot be graded")
	}
	if sub.PendingCount() == 0 {
		return nil, util.NewValidationError("answers", "no pending answers to grade")
	}
	if !s.ai.Available() {
		return nil, util.ErrAIUnavailable
	}

	job := &model.AIJob{
		Kind:        model.AIJobGradeSubmission,
		RequestedBy: sess.UserID,
		TargetID:    sub.ID,
	}
	if err := s.runner.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob 按 request_id 查询任务，kind 不匹配按不存在处理；学生只能看自己发起的任务
func (s *AIJobService) GetJob(ctx context.Context, sess *model.Session, id string, kind model.AIJobKind) (*model.AIJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Kind != kind {
		return nil, util.ErrNotFound
	}
	if !sess.IsStaff() && job.RequestedBy != sess.UserID {
		return nil, util.ErrNotFound
	}
	return job, nil
}

func (s *AIJobService) handleGenerate(ctx context.Context, job *model.AIJob) (interface{}, error) {
	var req model.GenerateRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}

	sections, err := s.ai.GenerateSections(ctx, req)
	if err != nil {
		return nil, err
	}

	a := &model.Assessment{
		Title:       req.Title,
		Description: req.Topic,
		CourseID:    req.CourseID,
		Type:        req.Type,
		TotalScore:  req.TotalScore,
		MaxAttempts: 1,
		IsActive:    true,
		Sections:    sections,
		CreatedBy:   job.RequestedBy,
		Version:     1,
	}
	warnings, err := ValidateAssessment(a)
	if err != nil {
		return nil, fmt.Errorf("generated assessment failed validation: %w", err)
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, err
	}

	logger.Log.Info("AI assessment generated",
		zap.String("request_id", job.ID),
		zap.Uint("assessment_id", a.ID),
		zap.Int("questions", len(a.Questions())))
	return model.GenerateResult{AssessmentID: a.ID, Warnings: warnings}, nil
}

// handleGrade 单题失败不影响其它题，这些题保持待人工评分；全部失败时任务记为失败
func (s *AIJobService) handleGrade(ctx context.Context, job *model.AIJob) (interface{}, error) {
	sub, err := s.submissions.Get(ctx, job.TargetID)
	if err != nil {
		return nil, err
	}
	assessment, err := s.assessments.Get(ctx, sub.AssessmentID)
	if err != nil {
		return nil, err
	}

	result := model.GradeJobResult{SubmissionID: sub.ID}
	proposals := make(map[int]model.GradeProposal)
	var lastErr error
	for _, ans := range sub.Answers {
		if !ans.Pending() {
			continue
		}
		q, ok := assessment.FindQuestion(ans.QuestionID)
		if !ok || q.Type.IsObjective() {
			continue
		}
		p, err := s.ai.ProposeGrade(ctx, q, ans)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			logger.Log.Warn("AI grading failed for answer, left for manual grading",
				zap.String("request_id", job.ID),
				zap.Uint("submission_id", sub.ID),
				zap.Int("question_id", ans.QuestionID),
				zap.Error(err))
			result.Failed = append(result.Failed, ans.QuestionID)
			lastErr = err
			continue
		}
		proposals[ans.QuestionID] = *p
		result.Proposed = append(result.Proposed, ans.QuestionID)
	}

	if len(proposals) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return result, nil
	}
	if err := s.grading.ApplyAIProposals(ctx, sub.ID, proposals); err != nil {
		return nil, err
	}
	return result, nil
}
