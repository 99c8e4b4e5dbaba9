package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/skora-go-api/internal/models"
)

// ExamDraftRepository manages the working copy of an in-progress exam attempt.
type ExamDraftRepository interface {
	Create(ctx context.Context, draft *models.ExamDraft) error
	GetByUserAndExam(ctx context.Context, userID, examID string) (models.ExamDraft, error)
	DeleteByUserAndExam(ctx context.Context, userID, examID string) error
}

type examDraftRepository struct {
	db *gorm.DB
}

// NewExamDraftRepository instantiates the repository.
func NewExamDraftRepository(db *gorm.DB) ExamDraftRepository {
	return &examDraftRepository{db: db}
}

func (r *examDraftRepository) Create(ctx context.Context, draft *models.ExamDraft) error {
	return r.db.WithContext(ctx).Create(draft).Error
}

func (r *examDraftRepository) GetByUserAndExam(ctx context.Context, userID, examID string) (models.ExamDraft, error) {
	var draft models.ExamDraft
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("exam_id = ?", examID).
		First(&draft).Error; err != nil {
		return models.ExamDraft{}, err
	}

	return draft, nil
}

func (r *examDraftRepository) DeleteByUserAndExam(ctx context.Context, userID, examID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("exam_id = ?", examID).
		Delete(&models.ExamDraft{}).Error
}
