package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/skora-go-api/internal/models"
)

// GradingJobRepository defines data operations for grading jobs.
type GradingJobRepository interface {
	Create(ctx context.Context, job *models.GradingJob) error
	GetByID(ctx context.Context, id string) (models.GradingJob, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
}

type gradingJobRepository struct {
	db *gorm.DB
}

// NewGradingJobRepository instantiates the repository.
func NewGradingJobRepository(db *gorm.DB) GradingJobRepository {
	return &gradingJobRepository{db: db}
}

func (r *gradingJobRepository) Create(ctx context.Context, job *models.GradingJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *gradingJobRepository) GetByID(ctx context.Context, id string) (models.GradingJob, error) {
	var job models.GradingJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return models.GradingJob{}, err
	}

	return job, nil
}

// UpdateFields applies a partial update in a single UPDATE statement so
// pollers never observe a half-written status transition.
func (r *gradingJobRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("id = ?", id).
		Updates(fields).Error
}
