package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type SubmissionStatus string

const (
	SubmissionDraft           SubmissionStatus = "draft"
	SubmissionSubmitted       SubmissionStatus = "submitted"
	SubmissionPartiallyGraded SubmissionStatus = "partially_graded"
	SubmissionGraded          SubmissionStatus = "graded"
)

// graded -> partially_graded 只允许通过重新评分触发
var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionDraft:           {SubmissionSubmitted},
	SubmissionSubmitted:       {SubmissionPartiallyGraded, SubmissionGraded},
	SubmissionPartiallyGraded: {SubmissionPartiallyGraded, SubmissionGraded},
	SubmissionGraded:          {SubmissionPartiallyGraded},
}

func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SubmissionStatus) Valid() bool {
	_, ok := submissionTransitions[s]
	return ok
}

type AnswerStatus string

const (
	AnswerPending AnswerStatus = "pending"
	AnswerGraded  AnswerStatus = "graded"
)

// ValueKind 答案值的形态，由所答题目的类型决定
type ValueKind string

const (
	ValueText  ValueKind = "text"
	ValueList  ValueKind = "list"
	ValueEssay ValueKind = "essay"
)

// ValueKindFor 多选题和多空填空题为 list，论述题为 essay，其余为 text
func ValueKindFor(q Question) ValueKind {
	switch q.Type {
	case MultipleSelect:
		return ValueList
	case FillInBlank:
		if q.Answer != nil && q.Answer.Multi {
			return ValueList
		}
		return ValueText
	case Essay:
		return ValueEssay
	default:
		return ValueText
	}
}

var ErrEmptyAnswerValue = errors.New("answer value is required")

type EssayValue struct {
	Text  string `json:"text"`
	Files []File `json:"files,omitempty"`
}

// AnswerValue 按 Kind 区分的答案值，只有与 Kind 对应的字段有效
type AnswerValue struct {
	Kind  ValueKind
	Text  string
	List  []string
	Essay *EssayValue
}

func TextValue(s string) AnswerValue {
	return AnswerValue{Kind: ValueText, Text: s}
}

func ListValue(items ...string) AnswerValue {
	return AnswerValue{Kind: ValueList, List: items}
}

func EssayAnswer(text string, files ...File) AnswerValue {
	return AnswerValue{Kind: ValueEssay, Essay: &EssayValue{Text: text, Files: files}}
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueText:
		return json.Marshal(v.Text)
	case ValueList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case ValueEssay:
		if v.Essay == nil {
			return []byte(`{"text":""}`), nil
		}
		return json.Marshal(v.Essay)
	default:
		return []byte("null"), nil
	}
}

// DecodeAnswerValue 按已知的 kind 解码原始 JSON，不做运行时类型推断
func DecodeAnswerValue(kind ValueKind, raw json.RawMessage) (AnswerValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return AnswerValue{}, ErrEmptyAnswerValue
	}
	switch kind {
	case ValueText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return AnswerValue{}, fmt.Errorf("expected a string")
		}
		return TextValue(s), nil
	case ValueList:
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			return AnswerValue{}, fmt.Errorf("expected an array of strings")
		}
		return ListValue(items...), nil
	case ValueEssay:
		var e EssayValue
		if err := json.Unmarshal(raw, &e); err != nil {
			return AnswerValue{}, fmt.Errorf("expected an object {text, files}")
		}
		return AnswerValue{Kind: ValueEssay, Essay: &e}, nil
	default:
		return AnswerValue{}, fmt.Errorf("unknown value kind %q", kind)
	}
}

type File struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
	Size int64  `json:"size" validate:"gt=0"`
	Type string `json:"type" validate:"required"`
}

// GradeProposal AI 给出的评分建议，需教师确认后才计入成绩
type GradeProposal struct {
	Score      float64   `json:"score"`
	Feedback   string    `json:"feedback"`
	Provider   string    `json:"provider"`
	ProposedAt time.Time `json:"proposed_at"`
}

type Answer struct {
	QuestionID int            `json:"question_id"`
	Kind       ValueKind      `json:"kind"`
	Value      AnswerValue    `json:"value"`
	Score      float64        `json:"score"`
	Feedback   string         `json:"feedback,omitempty"`
	IsCorrect  *bool          `json:"is_correct"`
	Status     AnswerStatus   `json:"status"`
	GradedBy   string         `json:"graded_by,omitempty"`
	Files      []File         `json:"files,omitempty"`
	AIProposal *GradeProposal `json:"ai_proposal,omitempty"`
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	type plain Answer
	var aux struct {
		plain
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = Answer(aux.plain)
	if len(aux.Value) == 0 || string(aux.Value) == "null" {
		return nil
	}
	v, err := DecodeAnswerValue(a.Kind, aux.Value)
	if err != nil {
		return fmt.Errorf("question %d: %w", a.QuestionID, err)
	}
	a.Value = v
	return nil
}

func (a Answer) Pending() bool {
	return a.Status != AnswerGraded
}

type Answers []Answer

func (as Answers) Value() (driver.Value, error) {
	if as == nil {
		return "[]", nil
	}
	b, err := json.Marshal(as)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (as *Answers) Scan(value interface{}) error {
	data, err := scanBytes(value)
	if err != nil || data == nil {
		*as = nil
		return err
	}
	return json.Unmarshal(data, as)
}

// Submission 学生对测评的一次作答
type Submission struct {
	BaseModel
	StudentID     uint             `gorm:"not null;uniqueIndex:idx_submission_attempt" json:"student_id"`
	AssessmentID  uint             `gorm:"not null;uniqueIndex:idx_submission_attempt;index" json:"assessment_id"`
	AttemptNumber int              `gorm:"not null;uniqueIndex:idx_submission_attempt" json:"attempt_number"`
	Answers       Answers          `gorm:"type:json" json:"answers"`
	Score         float64          `json:"score"`
	Feedback      string           `gorm:"type:text" json:"feedback"`
	Status        SubmissionStatus `gorm:"size:20;index" json:"status"`
	Late          bool             `json:"late"`
	SubmittedAt   *time.Time       `json:"submitted_at"`
	GradedAt      *time.Time       `json:"graded_at"`
	GradedBy      *uint            `json:"graded_by"`
	TimeSpent     int              `json:"time_spent"`
	// AssessmentVersion 提交或最近一次重新评分时测评的版本
	AssessmentVersion int `json:"assessment_version"`
	// Version 乐观锁
	Version int `gorm:"not null;default:1" json:"version"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (s *Submission) PendingCount() int {
	n := 0
	for _, a := range s.Answers {
		if a.Pending() {
			n++
		}
	}
	return n
}

func (s *Submission) AnswerFor(questionID int) *Answer {
	for i := range s.Answers {
		if s.Answers[i].QuestionID == questionID {
			return &s.Answers[i]
		}
	}
	return nil
}

// SumScores Σ answer.score
func (s *Submission) SumScores() float64 {
	var sum float64
	for _, a := range s.Answers {
		sum += a.Score
	}
	return sum
}
