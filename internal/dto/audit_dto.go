package dto

import (
	"time"

	"github.com/noah-isme/interngate-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// AuditListRequest defines filters for listing audit entries.
type AuditListRequest struct {
	Page         int    `query:"page" validate:"gte=0"`
	PageSize     int    `query:"page_size" validate:"gte=0,lte=200"`
	UserID       string `query:"user_id" validate:"max=64"`
	Action       string `query:"action" validate:"max=64"`
	AssessmentID string `query:"assessment_id" validate:"max=64"`
	AttemptID    string `query:"attempt_id" validate:"max=36"`
}

// AuditEntryResponse serializes an audit entry.
type AuditEntryResponse struct {
	ID           uint                   `json:"id"`
	ActorID      string                 `json:"actor_id"`
	Action       string                 `json:"action"`
	AssessmentID string                 `json:"assessment_id,omitempty"`
	AttemptID    string                 `json:"attempt_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
}

// AuditListResponse wraps paginated audit entries.
type AuditListResponse struct {
	Items      []AuditEntryResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewAuditEntryResponse maps an audit model.
func NewAuditEntryResponse(entry models.AuditEntry) AuditEntryResponse {
	metadata := map[string]interface{}{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}
	return AuditEntryResponse{
		ID:           entry.ID,
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		AssessmentID: entry.AssessmentID,
		AttemptID:    entry.AttemptID,
		Metadata:     metadata,
		CreatedAt:    entry.CreatedAt,
	}
}
