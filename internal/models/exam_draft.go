package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExamDraft is the working copy of an in-progress exam attempt. Its presence
// is how the UI detects an unfinished exam to resume, so the orchestrator
// deletes it after a successful grade and leaves it alone on failure.
type ExamDraft struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    string         `gorm:"size:64;not null;uniqueIndex:idx_exam_drafts_user_exam" json:"user_id"`
	ExamID    string         `gorm:"size:64;not null;uniqueIndex:idx_exam_drafts_user_exam" json:"exam_id"`
	Answers   datatypes.JSON `json:"answers"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
