package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/skora-go-api/internal/models"
)

// ErrDuplicateResult indicates a result already exists for the (user, exam) pair.
var ErrDuplicateResult = errors.New("exam result already exists")

// ExamResultRepository persists final exam results.
type ExamResultRepository interface {
	Create(ctx context.Context, result *models.ExamResult) error
	GetByUserAndExam(ctx context.Context, userID, examID string) (models.ExamResult, error)
}

type examResultRepository struct {
	db *gorm.DB
}

// NewExamResultRepository instantiates the repository.
func NewExamResultRepository(db *gorm.DB) ExamResultRepository {
	return &examResultRepository{db: db}
}

func (r *examResultRepository) Create(ctx context.Context, result *models.ExamResult) error {
	err := r.db.WithContext(ctx).Create(result).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateResult
	}

	return err
}

func (r *examResultRepository) GetByUserAndExam(ctx context.Context, userID, examID string) (models.ExamResult, error) {
	var result models.ExamResult
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("exam_id = ?", examID).
		First(&result).Error; err != nil {
		return models.ExamResult{}, err
	}

	return result, nil
}
