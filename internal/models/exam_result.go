package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExamResult is the immutable artifact persisted once per (user, exam)
// submission when grading succeeds. The composite unique index is what
// makes concurrent triggers for the same submission converge on one row.
type ExamResult struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          string         `gorm:"size:64;not null;uniqueIndex:idx_exam_results_user_exam" json:"user_id"`
	ExamID          string         `gorm:"size:64;not null;uniqueIndex:idx_exam_results_user_exam" json:"exam_id"`
	Questions       datatypes.JSON `json:"questions"`
	EarnedPoints    float64        `gorm:"not null" json:"earned_points"`
	TotalPoints     float64        `gorm:"not null" json:"total_points"`
	Percentage      float64        `gorm:"not null" json:"percentage"`
	Grade           string         `gorm:"size:2;not null" json:"grade"`
	DurationSeconds int64          `gorm:"not null;default:0" json:"duration_seconds"`
	CreatedAt       time.Time      `json:"created_at"`
}
