package repository

import (
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// translate 把 gorm 错误转换为业务错误，dup 为唯一键冲突时返回的错误
func translate(err error, dup error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.WithMessage(util.ErrNotFound, op)
	case dup != nil && errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.WithMessage(dup, op)
	default:
		return errors.Wrap(err, op)
	}
}

func offset(page, limit int) int {
	page, limit = util.NormalizePage(page, limit)
	return (page - 1) * limit
}

var (
	_ service.AssessmentStore = (*AssessmentRepository)(nil)
	_ service.SubmissionStore = (*SubmissionRepository)(nil)
	_ service.AIJobStore      = (*AIJobRepository)(nil)
	_ service.UserStore       = (*UserRepository)(nil)
	_ service.SessionStore    = (*SessionRepository)(nil)
)
