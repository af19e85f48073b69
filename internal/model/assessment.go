package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type AssessmentType string

const (
	AssessmentQuiz     AssessmentType = "quiz"
	AssessmentExam     AssessmentType = "exam"
	AssessmentHomework AssessmentType = "homework"
	AssessmentPractice AssessmentType = "practice"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	MultipleSelect QuestionType = "multiple_select"
	FillInBlank    QuestionType = "fill_in_blank"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

var QuestionTypes = []QuestionType{MultipleChoice, MultipleSelect, FillInBlank, TrueFalse, ShortAnswer, Essay}

func (t QuestionType) Valid() bool {
	for _, qt := range QuestionTypes {
		if t == qt {
			return true
		}
	}
	return false
}

// IsObjective 可自动判分的题型
func (t QuestionType) IsObjective() bool {
	switch t {
	case MultipleChoice, MultipleSelect, FillInBlank, TrueFalse:
		return true
	}
	return false
}

// IsChoice 需要 options 的题型
func (t QuestionType) IsChoice() bool {
	return t == MultipleChoice || t == MultipleSelect || t == TrueFalse
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// swagger:model Assessment
type Assessment struct {
	BaseModel
	Title       string         `gorm:"size:255;not null" json:"title" validate:"required,max=255"`
	Description string         `gorm:"type:text" json:"description"`
	CourseID    uint           `gorm:"index" json:"course_id" validate:"required"`
	Type        AssessmentType `gorm:"size:20" json:"type" validate:"required,oneof=quiz exam homework practice"`
	TotalScore  float64        `json:"total_score" validate:"gte=0"`
	Duration    string         `gorm:"size:50" json:"duration"`
	StartDate   *time.Time     `json:"start_date"`
	DueDate     *time.Time     `json:"due_date"`
	MaxAttempts int            `json:"max_attempts" validate:"gte=0"`
	IsPublished bool           `json:"is_published"`
	IsActive    bool           `json:"is_active"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	Sections    Sections       `gorm:"type:json" json:"sections" validate:"required,min=1,dive"`
	CreatedBy   uint           `gorm:"index" json:"created_by"`
	// Version 题目内容每次修改后递增，提交记录保存评分时使用的版本
	Version int `json:"version"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// Questions 按 section 顺序展开全部题目
func (a *Assessment) Questions() []Question {
	var qs []Question
	for _, s := range a.Sections {
		qs = append(qs, s.Questions...)
	}
	return qs
}

func (a *Assessment) QuestionIndex() map[int]Question {
	idx := make(map[int]Question)
	for _, s := range a.Sections {
		for _, q := range s.Questions {
			idx[q.ID] = q
		}
	}
	return idx
}

func (a *Assessment) FindQuestion(id int) (Question, bool) {
	for _, s := range a.Sections {
		for _, q := range s.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

// SectionScoreSum Σ score_per_question × 题目数，用于与 total_score 核对
func (a *Assessment) SectionScoreSum() float64 {
	var sum float64
	for _, s := range a.Sections {
		sum += s.ScorePerQuestion * float64(len(s.Questions))
	}
	return sum
}

// QuestionScoreSum Σ question.score
func (a *Assessment) QuestionScoreSum() float64 {
	var sum float64
	for _, q := range a.Questions() {
		sum += q.Score
	}
	return sum
}

// StudentView 去掉答案、解析、参考答案和评分标准后的副本
func (a Assessment) StudentView() Assessment {
	view := a
	view.Sections = make(Sections, len(a.Sections))
	for i, s := range a.Sections {
		s.Questions = append([]Question(nil), s.Questions...)
		for j := range s.Questions {
			s.Questions[j].Answer = nil
			s.Questions[j].Explanation = ""
			s.Questions[j].ReferenceAnswer = ""
			s.Questions[j].GradingCriteria = ""
		}
		view.Sections[i] = s
	}
	return view
}

type Section struct {
	Type             QuestionType `json:"type" validate:"required"`
	Description      string       `json:"description,omitempty"`
	ScorePerQuestion float64      `json:"score_per_question" validate:"gte=0"`
	Questions        []Question   `json:"questions" validate:"required,min=1,dive"`
}

type Sections []Section

func (s Sections) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Sections) Scan(value interface{}) error {
	data, err := scanBytes(value)
	if err != nil || data == nil {
		*s = nil
		return err
	}
	return json.Unmarshal(data, s)
}

type Question struct {
	ID              int          `json:"id" validate:"gte=0"`
	Stem            string       `json:"stem" validate:"required"`
	Type            QuestionType `json:"type" validate:"required"`
	Score           float64      `json:"score" validate:"gte=0"`
	Difficulty      Difficulty   `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Options         []string     `json:"options,omitempty" validate:"max=26"`
	Answer          *AnswerKey   `json:"answer,omitempty"`
	Explanation     string       `json:"explanation,omitempty"`
	ReferenceAnswer string       `json:"reference_answer,omitempty"`
	GradingCriteria string       `json:"grading_criteria,omitempty"`
	AllowAttachment bool         `json:"allow_attachment,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
}

var optionLabelPattern = regexp.MustCompile(`^\s*([A-Za-z])\s*[.)．、:：]`)

// OptionLabels 选项标签：选项文本带 "A." 之类前缀时取前缀字母，否则按位置取 A、B、C...
func (q Question) OptionLabels() []string {
	labels := make([]string, len(q.Options))
	for i, opt := range q.Options {
		if m := optionLabelPattern.FindStringSubmatch(opt); m != nil {
			labels[i] = strings.ToUpper(m[1])
		} else {
			labels[i] = string(rune('A' + i))
		}
	}
	return labels
}

// AnswerKey 正确答案。单值题型序列化为字符串，多选题和多空填空题序列化为字符串数组。
type AnswerKey struct {
	Values []string
	Multi  bool
}

func SingleKey(v string) *AnswerKey {
	return &AnswerKey{Values: []string{v}}
}

func MultiKey(vs ...string) *AnswerKey {
	return &AnswerKey{Values: vs, Multi: true}
}

// Single 单值答案，多值答案返回空串
func (k *AnswerKey) Single() string {
	if k == nil || k.Multi || len(k.Values) == 0 {
		return ""
	}
	return k.Values[0]
}

func (k *AnswerKey) Empty() bool {
	if k == nil {
		return true
	}
	for _, v := range k.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (k AnswerKey) MarshalJSON() ([]byte, error) {
	if k.Multi {
		if k.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(k.Values)
	}
	if len(k.Values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(k.Values[0])
}

func (k *AnswerKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*k = AnswerKey{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = AnswerKey{Values: []string{s}}
	case '[':
		var vs []string
		if err := json.Unmarshal(data, &vs); err != nil {
			return fmt.Errorf("answer list must contain strings: %w", err)
		}
		*k = AnswerKey{Values: vs, Multi: true}
	case 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		// true/false 和数字字面量按原文保存为字符串
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*k = AnswerKey{Values: []string{string(data)}}
	default:
		return fmt.Errorf("answer must be a string or an array of strings")
	}
	return nil
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", value)
	}
}
