package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Attempt end reasons reported by the client engine.
const (
	EndReasonManual    = "manual"
	EndReasonDeadline  = "deadline"
	EndReasonIntegrity = "integrity_violation"
)

// Attempt is the persisted outcome of one assessment run. One row per user and
// assessment; rows are never updated after insert.
type Attempt struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	UserID         string            `gorm:"size:64;not null;uniqueIndex:idx_attempt_user_assessment" json:"user_id"`
	AssessmentID   string            `gorm:"size:64;not null;uniqueIndex:idx_attempt_user_assessment" json:"assessment_id"`
	Score          int               `gorm:"not null" json:"score"`
	TotalQuestions int               `gorm:"not null" json:"total_questions"`
	Passed         bool              `gorm:"not null" json:"passed"`
	EndReason      string            `gorm:"size:32" json:"end_reason"`
	Details        datatypes.JSONMap `gorm:"type:json" json:"details"`
	SubmittedAt    time.Time         `gorm:"not null" json:"submitted_at"`
	Certificate    *Certificate      `gorm:"foreignKey:AttemptID" json:"certificate,omitempty"`
}

// TableName pins the attempts table name.
func (Attempt) TableName() string {
	return "assessment_attempts"
}

// BeforeCreate assigns a random identifier so certificate URLs are not enumerable.
func (a *Attempt) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
