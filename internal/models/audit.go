package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEntry records one assessment lifecycle event for later review.
type AuditEntry struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ActorID      string            `gorm:"size:64;not null;index" json:"actor_id"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	AssessmentID string            `gorm:"size:64;index" json:"assessment_id"`
	AttemptID    string            `gorm:"size:36;index" json:"attempt_id"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TableName keeps audit rows apart from the payment collaborator's tables.
func (AuditEntry) TableName() string {
	return "assessment_audit_log"
}
