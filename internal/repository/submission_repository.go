package repository

import (
	"context"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// Create 依赖 idx_submission_attempt 唯一索引防止并发提交占用同一次作答编号
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	if s.Version == 0 {
		s.Version = 1
	}
	return translate(r.DB.WithContext(ctx).Create(s).Error, util.ErrDuplicateAttempt, "create submission")
}

func (r *SubmissionRepository) Get(ctx context.Context, id uint) (*model.Submission, error) {
	var s model.Submission
	if err := r.DB.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate(err, nil, "get submission")
	}
	return &s, nil
}

func (r *SubmissionRepository) List(ctx context.Context, filter service.SubmissionFilter) ([]model.Submission, int64, error) {
	var subs []model.Submission
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.Submission{})
	if filter.AssessmentID > 0 {
		query = query.Where("assessment_id = ?", filter.AssessmentID)
	}
	if filter.StudentID > 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err, nil, "count submissions")
	}
	_, limit := util.NormalizePage(filter.Page, filter.Limit)
	err := query.Order("created_at desc, id desc").
		Offset(offset(filter.Page, filter.Limit)).
		Limit(limit).
		Find(&subs).Error
	return subs, total, translate(err, nil, "list submissions")
}

func (r *SubmissionRepository) ListAll(ctx context.Context, assessmentID uint) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.DB.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("id asc").
		Find(&subs).Error
	return subs, translate(err, nil, "list all submissions")
}

func (r *SubmissionRepository) LastAttempt(ctx context.Context, studentID, assessmentID uint) (int, error) {
	var last int
	err := r.DB.WithContext(ctx).Model(&model.Submission{}).
		Where("student_id = ? AND assessment_id = ?", studentID, assessmentID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&last).Error
	return last, translate(err, nil, "last attempt")
}

func (r *SubmissionRepository) CountByAssessment(ctx context.Context, assessmentID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Submission{}).
		Where("assessment_id = ? AND status <> ?", assessmentID, model.SubmissionDraft).
		Count(&count).Error
	return count, translate(err, nil, "count submissions")
}

// Update 乐观锁写回：只有 version 未变化时才更新
func (r *SubmissionRepository) Update(ctx context.Context, s *model.Submission, expectedVersion int) error {
	s.Version = expectedVersion + 1
	res := r.DB.WithContext(ctx).Model(&model.Submission{}).
		Where("id = ? AND version = ?", s.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(s)
	if res.Error != nil {
		s.Version = expectedVersion
		return translate(res.Error, util.ErrDuplicateAttempt, "update submission")
	}
	if res.RowsAffected == 0 {
		s.Version = expectedVersion
		var count int64
		if err := r.DB.WithContext(ctx).Model(&model.Submission{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return translate(err, nil, "update submission")
		}
		if count == 0 {
			return util.ErrNotFound
		}
		return util.ErrVersionConflict
	}
	return nil
}
