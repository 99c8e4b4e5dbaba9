package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradingJobStatus enumerates the lifecycle states of a grading job.
const (
	GradingJobStatusPending    = "pending"
	GradingJobStatusProcessing = "processing"
	GradingJobStatusCompleted  = "completed"
	GradingJobStatusFailed     = "failed"
)

// GradingJob is the durable record pollers read while an exam submission is graded.
// It is created by the trigger endpoint and mutated only by the orchestrator
// processing it; once terminal it never changes again.
type GradingJob struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	UserID          string         `gorm:"size:64;not null;index" json:"user_id"`
	ExamID          string         `gorm:"size:64;not null;index" json:"exam_id"`
	Status          string         `gorm:"size:16;not null" json:"status"`
	Progress        int            `gorm:"not null;default:0" json:"progress"`
	GradedQuestions int            `gorm:"not null;default:0" json:"graded_questions"`
	TotalQuestions  int            `gorm:"not null;default:0" json:"total_questions"`
	ResultData      datatypes.JSON `json:"result_data,omitempty"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the job has reached a final state.
func (j GradingJob) IsTerminal() bool {
	return j.Status == GradingJobStatusCompleted || j.Status == GradingJobStatusFailed
}
