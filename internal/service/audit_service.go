package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/interngate-api/internal/dto"
	"github.com/noah-isme/interngate-api/internal/models"
	"github.com/noah-isme/interngate-api/internal/repository"
)

// AuditRecord captures the details required to persist an audit entry.
type AuditRecord struct {
	ActorID      string
	Action       string
	AssessmentID string
	AttemptID    string
	Metadata     map[string]interface{}
}

// AuditRecorder defines behaviour for recording the assessment audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, record AuditRecord) error
}

// AuditService exposes methods to persist and query audit entries.
type AuditService interface {
	AuditRecorder
	List(ctx context.Context, req dto.AuditListRequest) (dto.AuditListResponse, error)
}

type auditService struct {
	repo      repository.AuditRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuditService constructs the audit service.
func NewAuditService(repo repository.AuditRepository, validator *validator.Validate, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:      repo,
		validator: validator,
		logger:    logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) Record(ctx context.Context, record AuditRecord) error {
	if strings.TrimSpace(record.Action) == "" {
		return fmt.Errorf("action is required")
	}
	if strings.TrimSpace(record.ActorID) == "" {
		return fmt.Errorf("actor is required")
	}

	entry := models.AuditEntry{
		ActorID:      strings.TrimSpace(record.ActorID),
		Action:       strings.ToLower(strings.TrimSpace(record.Action)),
		AssessmentID: record.AssessmentID,
		AttemptID:    record.AttemptID,
		Metadata:     sanitizeMetadata(record.Metadata),
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Error().Err(err).Str("action", entry.Action).Msg("failed to persist audit entry")
		return err
	}
	return nil
}

func (s *auditService) List(ctx context.Context, req dto.AuditListRequest) (dto.AuditListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AuditListResponse{}, err
	}

	filter := repository.AuditFilter{
		Page:         req.Page,
		PageSize:     req.PageSize,
		ActorID:      strings.TrimSpace(req.UserID),
		Action:       strings.ToLower(strings.TrimSpace(req.Action)),
		AssessmentID: strings.TrimSpace(req.AssessmentID),
		AttemptID:    strings.TrimSpace(req.AttemptID),
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuditListResponse{}, err
	}

	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewAuditEntryResponse(entry))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.AuditListResponse{Items: items, Pagination: pagination}, nil
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
