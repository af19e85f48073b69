package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"smart_edu_backend/pkg/logger"
	"smart_edu_backend/pkg/monitoring"
	"sync/atomic"

	"go.uber.org/zap"
)

type AnswerInput struct {
	QuestionID int             `json:"question_id"`
	Value      json.RawMessage `json:"value" swaggertype:"object"`
	Files      []model.File    `json:"files"`
}

type SubmitRequest struct {
	Answers   []AnswerInput `json:"answers"`
	TimeSpent int           `json:"time_spent" validate:"gte=0"`
}

type SubmissionService struct {
	submissions SubmissionStore
	assessments AssessmentStore
	rejectLate  atomic.Bool
	now         Clock
}

func NewSubmissionService(submissions SubmissionStore, assessments AssessmentStore, rejectLate bool) *SubmissionService {
	s := &SubmissionService{
		submissions: submissions,
		assessments: assessments,
		now:         systemClock,
	}
	s.rejectLate.Store(rejectLate)
	return s
}

// SetRejectLate 配置热更新时调用
func (s *SubmissionService) SetRejectLate(v bool) {
	s.rejectLate.Store(v)
}

// CheckAttemptLimit maxAttempts 为 0 表示不限次数
func CheckAttemptLimit(maxAttempts, attemptNumber int) error {
	if maxAttempts > 0 && attemptNumber > maxAttempts {
		return fmt.Errorf("%w: attempt %d of %d", util.ErrAttemptLimitExceeded, attemptNumber, maxAttempts)
	}
	return nil
}

// SaveDraft 保存草稿，不判分。每个学生对同一测评至多一份草稿
func (s *SubmissionService) SaveDraft(ctx context.Context, sess *model.Session, assessmentID uint, req SubmitRequest) (*model.Submission, error) {
	if err := checkIntake(sess, &req); err != nil {
		return nil, err
	}
	assessment, err := s.openAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	answers, err := decodeAnswers(assessment, req)
	if err != nil {
		return nil, err
	}

	draft, err := s.draftFor(ctx, sess.UserID, assessmentID)
	if err != nil {
		return nil, err
	}
	if draft != nil {
		draft.Answers = answers
		draft.TimeSpent = req.TimeSpent
		if err := s.submissions.Update(ctx, draft, draft.Version); err != nil {
			return nil, err
		}
		return draft, nil
	}

	attempt, err := s.nextAttempt(ctx, sess.UserID, assessment)
	if err != nil {
		return nil, err
	}
	draft = &model.Submission{
		StudentID:         sess.UserID,
		AssessmentID:      assessmentID,
		AttemptNumber:     attempt,
		Answers:           answers,
		Status:            model.SubmissionDraft,
		TimeSpent:         req.TimeSpent,
		AssessmentVersion: assessment.Version,
		Version:           1,
	}
	if err := s.submissions.Create(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Submit 提交作答：校验结构、次数和时间窗口后对客观题自动判分。
// 只有客观题时直接进入 graded，含主观题时为 partially_graded。
func (s *SubmissionService) Submit(ctx context.Context, sess *model.Session, assessmentID uint, req SubmitRequest) (*model.Submission, error) {
	sub, err := s.submit(ctx, sess, assessmentID, req)
	if err != nil {
		monitoring.SubmissionCounter.WithLabelValues(rejectionLabel(err)).Inc()
		return nil, err
	}
	label := "accepted"
	if sub.Late {
		label = "accepted_late"
	}
	monitoring.SubmissionCounter.WithLabelValues(label).Inc()
	return sub, nil
}

func (s *SubmissionService) submit(ctx context.Context, sess *model.Session, assessmentID uint, req SubmitRequest) (*model.Submission, error) {
	if err := checkIntake(sess, &req); err != nil {
		return nil, err
	}

	assessment, err := s.openAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	late := assessment.DueDate != nil && now.After(*assessment.DueDate)
	if late && s.rejectLate.Load() {
		return nil, util.ErrSubmissionLate
	}

	answers, err := decodeAnswers(assessment, req)
	if err != nil {
		return nil, err
	}

	draft, err := s.draftFor(ctx, sess.UserID, assessmentID)
	if err != nil {
		return nil, err
	}

	sub := draft
	if sub == nil {
		attempt, err := s.nextAttempt(ctx, sess.UserID, assessment)
		if err != nil {
			return nil, err
		}
		sub = &model.Submission{
			StudentID:     sess.UserID,
			AssessmentID:  assessmentID,
			AttemptNumber: attempt,
			Status:        model.SubmissionDraft,
			Version:       1,
		}
	}
	if len(answers) == 0 && draft != nil {
		// 草稿保存后题目可能已被修改，按当前测评重新核对
		if answers, err = recheckDraftAnswers(assessment, draft.Answers); err != nil {
			return nil, err
		}
	}

	sub.Answers = answers
	sub.TimeSpent = req.TimeSpent
	sub.Late = late
	sub.SubmittedAt = &now
	sub.AssessmentVersion = assessment.Version

	index := assessment.QuestionIndex()
	for i := range sub.Answers {
		scoreInto(sub.ID, index[sub.Answers[i].QuestionID], &sub.Answers[i])
	}

	// draft -> submitted -> partially_graded | graded
	for _, next := range []model.SubmissionStatus{model.SubmissionSubmitted, settledStatus(sub)} {
		if !sub.Status.CanTransitionTo(next) {
			return nil, fmt.Errorf("invalid status transition %s -> %s", sub.Status, next)
		}
		applyStatus(sub, next, now)
	}

	if draft != nil {
		err = s.submissions.Update(ctx, sub, draft.Version)
	} else {
		err = s.createAttempt(ctx, sub, assessment)
	}
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Submission accepted",
		zap.Uint("submission_id", sub.ID),
		zap.Uint("assessment_id", assessmentID),
		zap.Uint("student_id", sess.UserID),
		zap.Int("attempt", sub.AttemptNumber),
		zap.String("status", string(sub.Status)),
		zap.Bool("late", sub.Late))
	return sub, nil
}

// createAttempt 并发提交可能算出相同的 attempt_number，冲突时重新取号一次
func (s *SubmissionService) createAttempt(ctx context.Context, sub *model.Submission, assessment *model.Assessment) error {
	err := s.submissions.Create(ctx, sub)
	if !errors.Is(err, util.ErrDuplicateAttempt) {
		return err
	}
	attempt, err := s.nextAttempt(ctx, sub.StudentID, assessment)
	if err != nil {
		return err
	}
	logger.Log.Debug("Attempt number taken concurrently, retrying",
		zap.Uint("student_id", sub.StudentID),
		zap.Uint("assessment_id", sub.AssessmentID),
		zap.Int("attempt", attempt))
	sub.AttemptNumber = attempt
	return s.submissions.Create(ctx, sub)
}

func checkIntake(sess *model.Session, req *SubmitRequest) error {
	if sess.Role != model.Student {
		return fmt.Errorf("%w: only students can submit", util.ErrPermissionDenied)
	}
	if verr := validateStruct(req); len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// recheckDraftAnswers 草稿中的答案必须仍然对应当前测评的题目，且题型和附件规则未变
func recheckDraftAnswers(assessment *model.Assessment, stored model.Answers) (model.Answers, error) {
	index := assessment.QuestionIndex()
	verr := &util.ValidationError{}
	answers := make(model.Answers, 0, len(stored))

	for i, ans := range stored {
		path := fmt.Sprintf("answers[%d]", i)
		q, ok := index[ans.QuestionID]
		if !ok {
			verr.Addf(path+".question_id", "question %d no longer exists in this assessment, save the draft again", ans.QuestionID)
			continue
		}
		if kind := model.ValueKindFor(q); kind != ans.Kind {
			verr.Addf(path+".value", "question %d changed type, save the draft again", ans.QuestionID)
			continue
		}
		hasFiles := len(ans.Files) > 0 || (ans.Value.Essay != nil && len(ans.Value.Essay.Files) > 0)
		if hasFiles && !q.AllowAttachment && q.Type != model.Essay {
			verr.Add(path+".files", "question does not accept attachments")
			continue
		}
		ans.Status = model.AnswerPending
		answers = append(answers, ans)
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return answers, nil
}

func settledStatus(sub *model.Submission) model.SubmissionStatus {
	if sub.PendingCount() == 0 {
		return model.SubmissionGraded
	}
	return model.SubmissionPartiallyGraded
}

func rejectionLabel(err error) string {
	var verr *util.ValidationError
	switch {
	case errors.As(err, &verr):
		return "rejected_invalid"
	case errors.Is(err, util.ErrAttemptLimitExceeded):
		return "rejected_attempt_limit"
	case errors.Is(err, util.ErrSubmissionLate):
		return "rejected_late"
	case errors.Is(err, util.ErrAssessmentNotOpen):
		return "rejected_not_open"
	default:
		return "error"
	}
}

func (s *SubmissionService) openAssessment(ctx context.Context, id uint) (*model.Assessment, error) {
	assessment, err := s.assessments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !assessment.IsPublished || !assessment.IsActive {
		return nil, fmt.Errorf("%w: not published", util.ErrAssessmentNotOpen)
	}
	if assessment.StartDate != nil && s.now().Before(*assessment.StartDate) {
		return nil, fmt.Errorf("%w: opens at %s", util.ErrAssessmentNotOpen, assessment.StartDate.Format(util.TimeFormat))
	}
	return assessment, nil
}

func (s *SubmissionService) nextAttempt(ctx context.Context, studentID uint, assessment *model.Assessment) (int, error) {
	last, err := s.submissions.LastAttempt(ctx, studentID, assessment.ID)
	if err != nil {
		return 0, err
	}
	attempt := last + 1
	if err := CheckAttemptLimit(assessment.MaxAttempts, attempt); err != nil {
		return 0, err
	}
	return attempt, nil
}

func (s *SubmissionService) draftFor(ctx context.Context, studentID, assessmentID uint) (*model.Submission, error) {
	drafts, _, err := s.submissions.List(ctx, SubmissionFilter{
		AssessmentID: assessmentID,
		StudentID:    studentID,
		Status:       model.SubmissionDraft,
		Page:         1,
		Limit:        1,
	})
	if err != nil || len(drafts) == 0 {
		return nil, err
	}
	return &drafts[0], nil
}

// decodeAnswers 先按 question_id 找到题目，再按题型解码 value
func decodeAnswers(assessment *model.Assessment, req SubmitRequest) (model.Answers, error) {
	index := assessment.QuestionIndex()
	verr := &util.ValidationError{}
	seen := make(map[int]bool, len(req.Answers))
	answers := make(model.Answers, 0, len(req.Answers))

	for i, in := range req.Answers {
		path := fmt.Sprintf("answers[%d]", i)
		q, ok := index[in.QuestionID]
		if !ok {
			verr.Addf(path+".question_id", "question %d does not exist in this assessment", in.QuestionID)
			continue
		}
		if seen[in.QuestionID] {
			verr.Addf(path+".question_id", "question %d answered more than once", in.QuestionID)
			continue
		}
		seen[in.QuestionID] = true

		kind := model.ValueKindFor(q)
		value, err := model.DecodeAnswerValue(kind, in.Value)
		if err != nil {
			verr.Add(path+".value", err.Error())
			continue
		}

		files := in.Files
		if value.Essay != nil {
			files = append(append([]model.File(nil), files...), value.Essay.Files...)
		}
		if len(files) > 0 && !q.AllowAttachment && q.Type != model.Essay {
			verr.Add(path+".files", "question does not accept attachments")
			continue
		}
		for k := range in.Files {
			for _, fe := range validateStruct(&in.Files[k]).Fields {
				verr.Add(fmt.Sprintf("%s.files[%d].%s", path, k, fe.Field), fe.Reason)
			}
		}
		if value.Essay != nil {
			for k := range value.Essay.Files {
				for _, fe := range validateStruct(&value.Essay.Files[k]).Fields {
					verr.Add(fmt.Sprintf("%s.value.files[%d].%s", path, k, fe.Field), fe.Reason)
				}
			}
		}

		answers = append(answers, model.Answer{
			QuestionID: in.QuestionID,
			Kind:       kind,
			Value:      value,
			Files:      in.Files,
			Status:     model.AnswerPending,
		})
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return answers, nil
}

// Get 学生只能查看自己的提交
func (s *SubmissionService) Get(ctx context.Context, sess *model.Session, id uint) (*model.Submission, error) {
	sub, err := s.submissions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsStaff() && sub.StudentID != sess.UserID {
		return nil, util.ErrPermissionDenied
	}
	return sub, nil
}

func (s *SubmissionService) ListByAssessment(ctx context.Context, assessmentID uint, status model.SubmissionStatus, page, limit int) ([]model.Submission, int64, error) {
	if _, err := s.assessments.Get(ctx, assessmentID); err != nil {
		return nil, 0, err
	}
	page, limit = util.NormalizePage(page, limit)
	return s.submissions.List(ctx, SubmissionFilter{
		AssessmentID: assessmentID,
		Status:       status,
		Page:         page,
		Limit:        limit,
	})
}

func (s *SubmissionService) ListByStudent(ctx context.Context, sess *model.Session, studentID uint, page, limit int) ([]model.Submission, int64, error) {
	if !sess.IsStaff() && studentID != sess.UserID {
		return nil, 0, util.ErrPermissionDenied
	}
	page, limit = util.NormalizePage(page, limit)
	return s.submissions.List(ctx, SubmissionFilter{
		StudentID: studentID,
		Page:      page,
		Limit:     limit,
	})
}
