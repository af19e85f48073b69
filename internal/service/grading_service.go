package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"smart_edu_backend/pkg/logger"
	"smart_edu_backend/pkg/monitoring"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	GraderAuto         = "auto"
	regradeConcurrency = 8
)

type AnswerGrade struct {
	QuestionID       int      `json:"question_id" validate:"required"`
	Score            *float64 `json:"score"`
	Feedback         string   `json:"feedback"`
	IsCorrect        *bool    `json:"is_correct"`
	AcceptAIProposal bool     `json:"accept_ai_proposal"`
}

// GradeRequest 两种形式：answers 逐题评分；或只给 score，此时提交中必须恰好有一道待评分题
type GradeRequest struct {
	Score    *float64      `json:"score"`
	Feedback string        `json:"feedback"`
	GradedBy string        `json:"graded_by"`
	Answers  []AnswerGrade `json:"answers" validate:"dive"`
	// Finalize 为 nil 时默认 true：全部题目评完即结束评分
	Finalize *bool `json:"finalize"`
}

type RegradeSummary struct {
	AssessmentID uint   `json:"assessment_id"`
	Regraded     int    `json:"regraded"`
	Skipped      int    `json:"skipped"`
	Failed       []uint `json:"failed,omitempty"`
}

type GradingService struct {
	submissions SubmissionStore
	assessments AssessmentStore
	now         Clock
}

func NewGradingService(submissions SubmissionStore, assessments AssessmentStore) *GradingService {
	return &GradingService{
		submissions: submissions,
		assessments: assessments,
		now:         systemClock,
	}
}

// Grade 教师评分，可同时确认 AI 评分建议
func (s *GradingService) Grade(ctx context.Context, sess *model.Session, submissionID uint, req GradeRequest) (*model.Submission, error) {
	if verr := validateStruct(&req); len(verr.Fields) > 0 {
		return nil, verr
	}

	sub, err := s.submissions.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case model.SubmissionGraded:
		return nil, util.ErrAlreadyGraded
	case model.SubmissionDraft:
		return nil, util.NewValidationError("status", "draft submissions cannot be graded")
	}

	assessment, err := s.assessments.Get(ctx, sub.AssessmentID)
	if err != nil {
		return nil, err
	}

	grades, err := expandGrades(sub, req)
	if err != nil {
		return nil, err
	}

	grader := req.GradedBy
	if grader == "" {
		grader = "user:" + strconv.FormatUint(uint64(sess.UserID), 10)
	}

	verr := &util.ValidationError{}
	for i, g := range grades {
		path := fmt.Sprintf("answers[%d]", i)
		ans := sub.AnswerFor(g.QuestionID)
		if ans == nil {
			verr.Addf(path+".question_id", "no answer for question %d in this submission", g.QuestionID)
			continue
		}
		q, ok := assessment.FindQuestion(g.QuestionID)
		if !ok {
			verr.Addf(path+".question_id", "question %d no longer exists in the assessment", g.QuestionID)
			continue
		}

		score, feedback := 0.0, g.Feedback
		switch {
		case g.AcceptAIProposal:
			if ans.AIProposal == nil {
				verr.Add(path+".accept_ai_proposal", "no AI proposal to accept")
				continue
			}
			score = ans.AIProposal.Score
			if feedback == "" {
				feedback = ans.AIProposal.Feedback
			}
		case g.Score != nil:
			score = *g.Score
		default:
			verr.Add(path+".score", "score is required")
			continue
		}
		if score < 0 || score > q.Score+scoreEpsilon {
			verr.Addf(path+".score", "score must be between 0 and %g", q.Score)
			continue
		}

		ans.Score = score
		ans.Feedback = feedback
		ans.Status = model.AnswerGraded
		ans.GradedBy = grader
		if g.IsCorrect != nil {
			ans.IsCorrect = g.IsCorrect
		} else {
			full := math.Abs(score-q.Score) <= scoreEpsilon
			ans.IsCorrect = &full
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if req.Feedback != "" {
		sub.Feedback = req.Feedback
	}
	graderID := sess.UserID
	sub.GradedBy = &graderID

	finalize := req.Finalize == nil || *req.Finalize
	next := model.SubmissionPartiallyGraded
	if finalize && sub.PendingCount() == 0 {
		next = model.SubmissionGraded
	}
	return s.save(ctx, sub, next)
}

// expandGrades 把整份提交形式的 {score, feedback} 转为单题评分
func expandGrades(sub *model.Submission, req GradeRequest) ([]AnswerGrade, error) {
	if len(req.Answers) > 0 {
		return req.Answers, nil
	}
	if req.Score == nil {
		if req.Feedback != "" {
			return nil, nil
		}
		return nil, util.NewValidationError("answers", "either answers or score is required")
	}

	var pending []int
	for _, a := range sub.Answers {
		if a.Pending() {
			pending = append(pending, a.QuestionID)
		}
	}
	if len(pending) != 1 {
		return nil, util.NewValidationError("score",
			fmt.Sprintf("a single score applies only when exactly one answer is pending (%d pending), use answers", len(pending)))
	}
	return []AnswerGrade{{QuestionID: pending[0], Score: req.Score}}, nil
}

// Finalize 所有题目都有分数后结束评分：score = Σ answer.score，graded_at = now
func (s *GradingService) Finalize(ctx context.Context, sess *model.Session, submissionID uint) (*model.Submission, error) {
	sub, err := s.submissions.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubmissionGraded {
		return nil, util.ErrAlreadyGraded
	}
	if n := sub.PendingCount(); n > 0 {
		return nil, util.NewValidationError("answers", fmt.Sprintf("%d answers are still pending", n))
	}
	graderID := sess.UserID
	sub.GradedBy = &graderID
	return s.save(ctx, sub, model.SubmissionGraded)
}

// Regrade 按当前题目内容重新判客观题，已评分提交回到 partially_graded，需再次 finalize
func (s *GradingService) Regrade(ctx context.Context, sess *model.Session, submissionID uint) (*model.Submission, error) {
	sub, err := s.submissions.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	assessment, err := s.assessments.Get(ctx, sub.AssessmentID)
	if err != nil {
		return nil, err
	}
	return s.regrade(ctx, sub, assessment)
}

func (s *GradingService) regrade(ctx context.Context, sub *model.Submission, assessment *model.Assessment) (*model.Submission, error) {
	if sub.Status == model.SubmissionDraft {
		return nil, util.NewValidationError("status", "draft submissions cannot be regraded")
	}

	index := assessment.QuestionIndex()
	for i := range sub.Answers {
		ans := &sub.Answers[i]
		q, ok := index[ans.QuestionID]
		if !ok {
			logger.Log.Warn("Question removed since submission, answer left pending",
				zap.Uint("submission_id", sub.ID),
				zap.Int("question_id", ans.QuestionID))
			markPending(ans)
			continue
		}
		if !q.Type.IsObjective() {
			continue
		}
		scoreInto(sub.ID, q, ans)
	}
	sub.AssessmentVersion = assessment.Version
	return s.save(ctx, sub, model.SubmissionPartiallyGraded)
}

// RegradeAssessment 对测评下所有已提交的作答重新判分，各提交互相独立
func (s *GradingService) RegradeAssessment(ctx context.Context, sess *model.Session, assessmentID uint) (*RegradeSummary, error) {
	assessment, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	subs, err := s.submissions.ListAll(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	summary := &RegradeSummary{AssessmentID: assessmentID}
	results := make([]error, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(regradeConcurrency)
	for i := range subs {
		if subs[i].Status == model.SubmissionDraft {
			summary.Skipped++
			continue
		}
		g.Go(func() error {
			_, results[i] = s.regrade(gctx, &subs[i], assessment)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		if subs[i].Status == model.SubmissionDraft {
			continue
		}
		if err != nil {
			logger.Log.Error("Regrade failed",
				zap.Uint("submission_id", subs[i].ID),
				zap.Error(err))
			summary.Failed = append(summary.Failed, subs[i].ID)
			continue
		}
		summary.Regraded++
	}
	return summary, nil
}

// ApplyAIProposals 写入 AI 评分建议，不改变分数和状态。版本冲突时重新读取后重试一次。
func (s *GradingService) ApplyAIProposals(ctx context.Context, submissionID uint, proposals map[int]model.GradeProposal) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var sub *model.Submission
		sub, err = s.submissions.Get(ctx, submissionID)
		if err != nil {
			return err
		}
		for qid, p := range proposals {
			if ans := sub.AnswerFor(qid); ans != nil && ans.Pending() {
				proposal := p
				ans.AIProposal = &proposal
			}
		}
		err = s.submissions.Update(ctx, sub, sub.Version)
		if !errors.Is(err, util.ErrVersionConflict) {
			return err
		}
	}
	return err
}

// save 校验状态迁移并以乐观锁写回
func (s *GradingService) save(ctx context.Context, sub *model.Submission, next model.SubmissionStatus) (*model.Submission, error) {
	from := sub.Status
	if !from.CanTransitionTo(next) {
		if from == model.SubmissionGraded {
			return nil, util.ErrAlreadyGraded
		}
		return nil, fmt.Errorf("invalid status transition %s -> %s", from, next)
	}

	applyStatus(sub, next, s.now())

	if err := s.submissions.Update(ctx, sub, sub.Version); err != nil {
		if errors.Is(err, util.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %v", util.ErrAlreadyGraded, err)
		}
		return nil, err
	}
	monitoring.GradingTransitions.WithLabelValues(string(from), string(next)).Inc()
	return sub, nil
}

// applyStatus 设置状态并维护 score 与 graded_at
func applyStatus(sub *model.Submission, next model.SubmissionStatus, now time.Time) {
	sub.Status = next
	sub.Score = sub.SumScores()
	if next == model.SubmissionGraded {
		sub.GradedAt = &now
	} else {
		sub.GradedAt = nil
	}
}

// scoreInto 判分失败时记录日志并把该题置为待评分，不影响整份提交
func scoreInto(submissionID uint, q model.Question, ans *model.Answer) {
	res, err := ScoreAnswer(q, ans.Value)
	if err != nil {
		logger.Log.Warn("Scoring failed, answer left pending",
			zap.Uint("submission_id", submissionID),
			zap.Int("question_id", q.ID),
			zap.Error(err))
		monitoring.ScoringErrors.Inc()
		markPending(ans)
		return
	}
	if res.Pending {
		if ans.Status != model.AnswerGraded {
			markPending(ans)
		}
		return
	}
	ans.IsCorrect = res.IsCorrect
	ans.Score = res.Score
	ans.Status = model.AnswerGraded
	ans.GradedBy = GraderAuto
}

func markPending(ans *model.Answer) {
	ans.IsCorrect = nil
	ans.Score = 0
	ans.Status = model.AnswerPending
	ans.GradedBy = ""
}
