package service

import (
	"fmt"
	"math"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/util"
	"strings"
)

const scoreEpsilon = 1e-6

var defaultTrueFalseOptions = []string{"true", "false"}

// ValidateAssessment 校验并就地规范化测评。
// 硬性错误汇总为 *util.ValidationError 返回；分值不一致、题型与 section 不一致等只产生警告。
func ValidateAssessment(a *model.Assessment) ([]string, error) {
	a.Title = strings.TrimSpace(a.Title)
	verr := validateStruct(a)
	var warnings []string

	if a.StartDate != nil && a.DueDate != nil && a.DueDate.Before(*a.StartDate) {
		verr.Add("due_date", "due_date must not be before start_date")
	}

	usedIDs := make(map[int]string)
	maxID := 0
	for i, s := range a.Sections {
		for j, q := range s.Questions {
			if q.ID <= 0 {
				continue
			}
			path := fmt.Sprintf("sections[%d].questions[%d].id", i, j)
			if prev, dup := usedIDs[q.ID]; dup {
				verr.Addf(path, "duplicate question id %d (also used at %s)", q.ID, prev)
				continue
			}
			usedIDs[q.ID] = path
			if q.ID > maxID {
				maxID = q.ID
			}
		}
	}

	for i := range a.Sections {
		s := &a.Sections[i]
		sectionPath := fmt.Sprintf("sections[%d]", i)
		if s.Type != "" && !s.Type.Valid() {
			verr.Addf(sectionPath+".type", "unknown question type %q", s.Type)
		}

		for j := range s.Questions {
			q := &s.Questions[j]
			path := fmt.Sprintf("%s.questions[%d]", sectionPath, j)

			if q.ID <= 0 {
				maxID++
				q.ID = maxID
			}
			if q.Score == 0 {
				q.Score = s.ScorePerQuestion
			}
			if q.Type == "" {
				continue
			}
			if !q.Type.Valid() {
				verr.Addf(path+".type", "unknown question type %q", q.Type)
				continue
			}
			if s.Type != "" && s.Type.Valid() && q.Type != s.Type {
				warnings = append(warnings, fmt.Sprintf("%s.type: %s differs from section type %s", path, q.Type, s.Type))
			}
			if q.AllowAttachment && q.Type != model.Essay {
				warnings = append(warnings, fmt.Sprintf("%s.allow_attachment: attachments are only graded on essay questions", path))
			}

			validateQuestion(q, path, verr)
		}
	}

	if a.TotalScore == 0 {
		a.TotalScore = a.QuestionScoreSum()
	} else if expected, ok := expectedTotal(a); ok && math.Abs(expected-a.TotalScore) > scoreEpsilon {
		warnings = append(warnings, fmt.Sprintf("total_score: %g does not match the sum of section scores %g", a.TotalScore, expected))
	}

	return warnings, verr.OrNil()
}

// expectedTotal 优先按 score_per_question × 题数计算，未设置时退回到各题分值之和
func expectedTotal(a *model.Assessment) (float64, bool) {
	for _, s := range a.Sections {
		if s.ScorePerQuestion > 0 {
			return a.SectionScoreSum(), true
		}
	}
	sum := a.QuestionScoreSum()
	return sum, sum > 0
}

func validateQuestion(q *model.Question, path string, verr *util.ValidationError) {
	if q.Type == model.TrueFalse && len(q.Options) == 0 {
		q.Options = append([]string(nil), defaultTrueFalseOptions...)
	}

	if q.Type.IsChoice() {
		if len(q.Options) == 0 {
			verr.Add(path+".options", "options are required for "+string(q.Type))
		}
		for k, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				verr.Addf(fmt.Sprintf("%s.options[%d]", path, k), "option cannot be blank")
			}
		}
		seen := make(map[string]bool)
		for _, label := range q.OptionLabels() {
			if seen[label] {
				verr.Addf(path+".options", "duplicate option label %q", label)
			}
			seen[label] = true
		}
	} else if q.Type == model.ShortAnswer || q.Type == model.Essay {
		if len(q.Options) > 0 {
			verr.Add(path+".options", "options are not allowed for "+string(q.Type))
		}
	}

	answerPath := path + ".answer"
	if q.Type.IsObjective() && q.Answer.Empty() {
		verr.Add(answerPath, "answer is required for "+string(q.Type))
		return
	}
	if q.Answer == nil {
		return
	}

	switch q.Type {
	case model.MultipleChoice:
		if q.Answer.Multi {
			verr.Add(answerPath, "answer must be a single option label")
			return
		}
		if !containsLabel(q.OptionLabels(), q.Answer.Single()) {
			verr.Addf(answerPath, "answer %q is not one of the option labels %v", q.Answer.Single(), q.OptionLabels())
		}
	case model.MultipleSelect:
		if !q.Answer.Multi {
			verr.Add(answerPath, "answer must be a list of option labels")
			return
		}
		labels := q.OptionLabels()
		for k, v := range q.Answer.Values {
			if !containsLabel(labels, v) {
				verr.Addf(fmt.Sprintf("%s[%d]", answerPath, k), "%q is not one of the option labels %v", v, labels)
			}
		}
	case model.TrueFalse:
		if q.Answer.Multi {
			verr.Add(answerPath, "answer must be a single value")
			return
		}
		matched := false
		for _, opt := range q.Options {
			if foldText(opt) == foldText(q.Answer.Single()) {
				matched = true
				break
			}
		}
		if !matched {
			verr.Addf(answerPath, "answer %q must be one of %v", q.Answer.Single(), q.Options)
		}
	case model.FillInBlank:
		for k, v := range q.Answer.Values {
			if strings.TrimSpace(v) == "" {
				field := answerPath
				if q.Answer.Multi {
					field = fmt.Sprintf("%s[%d]", answerPath, k)
				}
				verr.Add(field, "blank answer cannot be empty")
			}
		}
	case model.ShortAnswer, model.Essay:
		if q.Answer.Multi {
			verr.Add(answerPath, "answer must be a single string")
		}
	}
}

func containsLabel(labels []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, l := range labels {
		if l == v {
			return true
		}
	}
	return false
}
