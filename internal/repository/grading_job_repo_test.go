package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/skora-go-api/internal/models"
)

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.GradingJob{}, &models.ExamResult{}, &models.ExamDraft{}))

	return db
}

func TestGradingJobRepositoryPartialUpdates(t *testing.T) {
	db := openTestDB(t, "jobrepo")
	repo := NewGradingJobRepository(db)
	ctx := context.Background()

	job := models.GradingJob{
		ID:             "job-1",
		UserID:         "user-1",
		ExamID:         "exam-1",
		Status:         models.GradingJobStatusPending,
		TotalQuestions: 4,
	}
	require.NoError(t, repo.Create(ctx, &job))

	created, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	firstSeen := created.UpdatedAt

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.UpdateFields(ctx, "job-1", map[string]interface{}{
		"status":           models.GradingJobStatusProcessing,
		"graded_questions": 2,
		"progress":         50,
	}))

	updated, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, models.GradingJobStatusProcessing, updated.Status)
	require.Equal(t, 2, updated.GradedQuestions)
	require.Equal(t, 50, updated.Progress)
	require.Equal(t, 4, updated.TotalQuestions, "untouched fields must survive a partial update")
	require.True(t, updated.UpdatedAt.After(firstSeen), "updated_at must refresh on every mutation")
}

func TestGradingJobRepositoryGetByIDMissing(t *testing.T) {
	db := openTestDB(t, "jobrepo_missing")
	repo := NewGradingJobRepository(db)

	_, err := repo.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestExamResultRepositoryRejectsDuplicates(t *testing.T) {
	db := openTestDB(t, "resultrepo")
	repo := NewExamResultRepository(db)
	ctx := context.Background()

	first := models.ExamResult{UserID: "user-1", ExamID: "exam-1", Grade: "B", Percentage: 85}
	require.NoError(t, repo.Create(ctx, &first))

	second := models.ExamResult{UserID: "user-1", ExamID: "exam-1", Grade: "A", Percentage: 95}
	err := repo.Create(ctx, &second)
	require.ErrorIs(t, err, ErrDuplicateResult)

	stored, err := repo.GetByUserAndExam(ctx, "user-1", "exam-1")
	require.NoError(t, err)
	require.Equal(t, "B", stored.Grade, "the first result must win")

	other := models.ExamResult{UserID: "user-1", ExamID: "exam-2", Grade: "A"}
	require.NoError(t, repo.Create(ctx, &other), "a different exam must not collide")
}

func TestExamDraftRepositoryDeleteByUserAndExam(t *testing.T) {
	db := openTestDB(t, "draftrepo")
	repo := NewExamDraftRepository(db)
	ctx := context.Background()

	draft := models.ExamDraft{UserID: "user-1", ExamID: "exam-1", StartedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, &draft))

	require.NoError(t, repo.DeleteByUserAndExam(ctx, "user-1", "exam-1"))

	_, err := repo.GetByUserAndExam(ctx, "user-1", "exam-1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Deleting a draft that never existed is not an error.
	require.NoError(t, repo.DeleteByUserAndExam(ctx, "user-1", "exam-9"))
}
