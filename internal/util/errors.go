package util

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("resource not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	ErrAlreadyGraded        = errors.New("submission already graded")
	ErrAssessmentFrozen     = errors.New("assessment has submissions, structural edits are not allowed")
	ErrAssessmentNotOpen    = errors.New("assessment is not open for submissions")
	ErrSubmissionLate       = errors.New("submission deadline has passed")
	ErrDuplicateAttempt     = errors.New("attempt already recorded")
	ErrVersionConflict      = errors.New("record was modified concurrently")
	ErrUpstreamTimeout      = errors.New("AI service timed out")
	ErrUpstreamError        = errors.New("AI service returned an error")
	ErrAIUnavailable        = errors.New("AI service is not configured")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailRegistered      = errors.New("email already registered")
	ErrSessionInvalid       = errors.New("session expired or revoked")
)

// FieldError 单个字段的校验失败，Field 为 JSON 路径，如 sections[0].questions[1].answer
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) Addf(field, format string, args ...interface{}) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// OrNil 没有字段错误时返回 nil，避免返回带类型的空指针
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}
