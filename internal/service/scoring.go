package service

import (
	"errors"
	"fmt"
	"smart_edu_backend/internal/model"
	"strings"

	"golang.org/x/text/cases"
)

var ErrMalformedQuestion = errors.New("malformed question")

// ScoreResult 单题判分结果，Pending 表示主观题等待人工或 AI 评分
type ScoreResult struct {
	IsCorrect *bool
	Score     float64
	Pending   bool
}

// ScoreAnswer 客观题判分，纯函数。
//
// 比较规则：
//   - multiple_choice、multiple_select：选项标签去除首尾空白后精确比较，多选按集合比较，与顺序和重复无关
//   - true_false：去除首尾空白并做大小写折叠
//   - fill_in_blank：去除首尾空白、合并内部空白并做大小写折叠；多空题要求每一空都正确
//
// 全对得 question.score，否则为 0。short_answer 和 essay 返回 Pending。
func ScoreAnswer(q model.Question, v model.AnswerValue) (ScoreResult, error) {
	if !q.Type.IsObjective() {
		return ScoreResult{Pending: true}, nil
	}
	if q.Answer.Empty() {
		return ScoreResult{}, fmt.Errorf("%w: question %d has no answer key", ErrMalformedQuestion, q.ID)
	}
	if want := model.ValueKindFor(q); v.Kind != want {
		return ScoreResult{}, fmt.Errorf("%w: question %d expects a %s value, got %q", ErrMalformedQuestion, q.ID, want, v.Kind)
	}

	var correct bool
	switch q.Type {
	case model.MultipleChoice:
		if q.Answer.Multi {
			return ScoreResult{}, fmt.Errorf("%w: question %d has a list key for a single choice", ErrMalformedQuestion, q.ID)
		}
		correct = strings.TrimSpace(v.Text) == strings.TrimSpace(q.Answer.Single())
	case model.TrueFalse:
		correct = foldText(v.Text) == foldText(q.Answer.Single())
	case model.MultipleSelect:
		correct = sameSet(v.List, q.Answer.Values)
	case model.FillInBlank:
		if q.Answer.Multi {
			correct = blanksMatch(v.List, q.Answer.Values)
		} else {
			correct = normalizeBlank(v.Text) == normalizeBlank(q.Answer.Single())
		}
	}

	result := ScoreResult{IsCorrect: &correct}
	if correct {
		result.Score = q.Score
	}
	return result, nil
}

func foldText(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func normalizeBlank(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

func sameSet(got, want []string) bool {
	a := toSet(got)
	b := toSet(want)
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.TrimSpace(it)] = true
	}
	return set
}

func blanksMatch(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if normalizeBlank(got[i]) != normalizeBlank(want[i]) {
			return false
		}
	}
	return true
}
