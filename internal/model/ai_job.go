package model

import (
	"time"

	"gorm.io/datatypes"
)

type AIJobKind string

const (
	AIJobGenerateAssessment AIJobKind = "generate_assessment"
	AIJobGradeSubmission    AIJobKind = "grade_submission"
)

type AIJobStatus string

const (
	AIJobPending    AIJobStatus = "pending"
	AIJobProcessing AIJobStatus = "processing"
	AIJobDone       AIJobStatus = "done"
	AIJobError      AIJobStatus = "error"
)

func (s AIJobStatus) Terminal() bool {
	return s == AIJobDone || s == AIJobError
}

// AIJob 后台 AI 任务，ID 即对外返回的 request_id
type AIJob struct {
	UUIDBase
	Kind        AIJobKind      `gorm:"size:40;index" json:"kind"`
	Status      AIJobStatus    `gorm:"size:20;index" json:"status"`
	RequestedBy uint           `gorm:"index" json:"requested_by"`
	TargetID    uint           `json:"target_id,omitempty"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	Result      datatypes.JSON `json:"result,omitempty"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

func (AIJob) TableName() string {
	return "ai_jobs"
}

// GenerateRequest AI 出题参数
type GenerateRequest struct {
	CourseID      uint                `json:"course_id" validate:"required"`
	Title         string              `json:"title" validate:"required"`
	Type          AssessmentType      `json:"type" validate:"required,oneof=quiz exam homework practice"`
	Difficulty    Difficulty          `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Topic         string              `json:"topic" validate:"required"`
	QuestionTypes []QuestionTypeCount `json:"question_types" validate:"required,min=1,dive"`
	TotalScore    float64             `json:"total_score" validate:"gte=0"`
}

type QuestionTypeCount struct {
	Type  QuestionType `json:"type" validate:"required"`
	Count int          `json:"count" validate:"gte=1,lte=50"`
}

// GenerateResult 出题任务完成后的结果
type GenerateResult struct {
	AssessmentID uint     `json:"assessment_id"`
	Warnings     []string `json:"warnings,omitempty"`
}

// GradeJobResult AI 评分任务完成后的结果
type GradeJobResult struct {
	SubmissionID uint  `json:"submission_id"`
	Proposed     []int `json:"proposed_question_ids"`
	Failed       []int `json:"failed_question_ids,omitempty"`
}
