package repository

import (
	"context"
	"smart_edu_backend/internal/model"

	"gorm.io/gorm"
)

type AIJobRepository struct {
	DB *gorm.DB
}

func NewAIJobRepository(db *gorm.DB) *AIJobRepository {
	return &AIJobRepository{DB: db}
}

func (r *AIJobRepository) Create(ctx context.Context, job *model.AIJob) error {
	return translate(r.DB.WithContext(ctx).Create(job).Error, nil, "create ai job")
}

func (r *AIJobRepository) Get(ctx context.Context, id string) (*model.AIJob, error) {
	var job model.AIJob
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, translate(err, nil, "get ai job")
	}
	return &job, nil
}

func (r *AIJobRepository) Update(ctx context.Context, job *model.AIJob) error {
	return translate(r.DB.WithContext(ctx).Save(job).Error, nil, "update ai job")
}

func (r *AIJobRepository) ListUnfinished(ctx context.Context) ([]model.AIJob, error) {
	var jobs []model.AIJob
	err := r.DB.WithContext(ctx).
		Where("status IN ?", []model.AIJobStatus{model.AIJobPending, model.AIJobProcessing}).
		Order("created_at asc").
		Find(&jobs).Error
	return jobs, translate(err, nil, "list unfinished ai jobs")
}
