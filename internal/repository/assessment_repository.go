package repository

import (
	"context"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	return translate(r.DB.WithContext(ctx).Create(a).Error, nil, "create assessment")
}

func (r *AssessmentRepository) Get(ctx context.Context, id uint) (*model.Assessment, error) {
	var a model.Assessment
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate(err, nil, "get assessment")
	}
	return &a, nil
}

func (r *AssessmentRepository) List(ctx context.Context, filter service.AssessmentFilter) ([]model.Assessment, int64, error) {
	var as []model.Assessment
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.Assessment{})
	if filter.CourseID > 0 {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Published != nil {
		query = query.Where("is_published = ?", *filter.Published)
	}
	if filter.VisibleOnly {
		query = query.Where("is_published = ? AND is_active = ?", true, true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err, nil, "count assessments")
	}
	_, limit := util.NormalizePage(filter.Page, filter.Limit)
	err := query.Order("created_at desc, id desc").
		Offset(offset(filter.Page, filter.Limit)).
		Limit(limit).
		Find(&as).Error
	return as, total, translate(err, nil, "list assessments")
}

func (r *AssessmentRepository) Update(ctx context.Context, a *model.Assessment) error {
	return translate(r.DB.WithContext(ctx).Save(a).Error, nil, "update assessment")
}

func (r *AssessmentRepository) Delete(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Delete(&model.Assessment{}, id)
	if res.Error != nil {
		return translate(res.Error, nil, "delete assessment")
	}
	if res.RowsAffected == 0 {
		return util.ErrNotFound
	}
	return nil
}
