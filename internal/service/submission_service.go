package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/dto"
	"github.com/noah-isme/interngate-api/internal/models"
	"github.com/noah-isme/interngate-api/internal/observability"
	"github.com/noah-isme/interngate-api/internal/repository"
	"github.com/noah-isme/interngate-api/pkg/catalog"
)

var (
	// ErrAssessmentNotFound indicates the assessment id is not in the registry.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrInvalidResult indicates the reported score or question count is inconsistent
	// with the assessment definition.
	ErrInvalidResult = errors.New("submitted result does not match the assessment")
)

// AssessmentCatalog resolves assessment definitions.
type AssessmentCatalog interface {
	Get(id string) (catalog.Definition, error)
}

// SubmissionService records assessment results exactly once per user and assessment.
type SubmissionService interface {
	Submit(ctx context.Context, session auth.Session, payload dto.AssessmentSubmitRequest) (dto.AssessmentResultResponse, error)
	Result(ctx context.Context, session auth.Session, assessmentID string) (dto.AssessmentResultResponse, error)
}

type submissionService struct {
	gate         AuthorizationGate
	catalog      AssessmentCatalog
	attempts     repository.AttemptRepository
	certificates CertificateService
	events       AssessmentEventBus
	audit        AuditRecorder
	validator    *validator.Validate
	now          func() time.Time
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// NewSubmissionService wires the submission service. events and audit may be nil.
func NewSubmissionService(
	gate AuthorizationGate,
	assessments AssessmentCatalog,
	attempts repository.AttemptRepository,
	certificates CertificateService,
	events AssessmentEventBus,
	audit AuditRecorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		gate:         gate,
		catalog:      assessments,
		attempts:     attempts,
		certificates: certificates,
		events:       events,
		audit:        audit,
		validator:    validate,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With().Str("component", "submission_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/interngate-api/internal/service/submission"),
	}
}

// Submit re-authorizes the caller, validates the reported result and inserts the
// attempt. A repeated submit returns the stored attempt flagged as a duplicate.
func (s *submissionService) Submit(ctx context.Context, session auth.Session, payload dto.AssessmentSubmitRequest) (dto.AssessmentResultResponse, error) {
	if !session.Verified() {
		return dto.AssessmentResultResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(payload); err != nil {
		observability.Submissions().WithLabelValues("invalid").Inc()
		return dto.AssessmentResultResponse{}, err
	}

	assessmentID := strings.TrimSpace(payload.AssessmentID)
	spanCtx, span := s.tracer.Start(ctx, "assessment.submit", trace.WithAttributes(
		attribute.String("assessment.user_id", session.UserID),
		attribute.String("assessment.id", assessmentID),
	))
	defer span.End()

	if err := s.gate.Authorize(spanCtx, session, assessmentID); err != nil {
		observability.Submissions().WithLabelValues("unauthorized").Inc()
		return dto.AssessmentResultResponse{}, err
	}

	definition, err := s.catalog.Get(assessmentID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownAssessment) {
			return dto.AssessmentResultResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResultResponse{}, err
	}

	score := *payload.Score
	total := definition.TotalQuestions()
	if payload.TotalQuestions != total || score > total {
		observability.Submissions().WithLabelValues("invalid").Inc()
		return dto.AssessmentResultResponse{}, ErrInvalidResult
	}

	endReason := payload.EndReason
	if endReason == "" {
		endReason = models.EndReasonManual
	}

	details := datatypes.JSONMap{
		"violations":     payload.Violations,
		"reported_score": score,
	}
	passed := definition.Passed(score)
	if endReason == models.EndReasonIntegrity {
		score = 0
		passed = false
	}

	attempt := models.Attempt{
		UserID:         session.UserID,
		AssessmentID:   assessmentID,
		Score:          score,
		TotalQuestions: total,
		Passed:         passed,
		EndReason:      endReason,
		Details:        details,
		SubmittedAt:    s.now(),
	}

	if err := s.attempts.Create(spanCtx, &attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			return s.existing(spanCtx, session.UserID, assessmentID)
		}
		span.RecordError(err)
		observability.Submissions().WithLabelValues("failed").Inc()
		return dto.AssessmentResultResponse{}, fmt.Errorf("insert attempt: %w", err)
	}

	observability.Submissions().WithLabelValues("recorded").Inc()
	s.logger.Info().
		Str("attempt_id", attempt.ID).
		Str("user_id", attempt.UserID).
		Str("assessment_id", attempt.AssessmentID).
		Int("score", attempt.Score).
		Bool("passed", attempt.Passed).
		Str("end_reason", attempt.EndReason).
		Msg("assessment attempt recorded")

	response := dto.NewAssessmentResultResponse(attempt)
	s.publish(spanCtx, EventAttemptRecorded, attempt)

	if attempt.Passed {
		s.issueCertificate(spanCtx, attempt, &response)
	}

	return response, nil
}

// Result returns the caller's persisted attempt for the assessment.
func (s *submissionService) Result(ctx context.Context, session auth.Session, assessmentID string) (dto.AssessmentResultResponse, error) {
	if !session.Verified() {
		return dto.AssessmentResultResponse{}, ErrUnauthenticated
	}

	attempt, err := s.attempts.GetByUserAndAssessment(ctx, session.UserID, strings.TrimSpace(assessmentID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResultResponse{}, ErrAttemptNotFound
		}
		return dto.AssessmentResultResponse{}, err
	}

	return dto.NewAssessmentResultResponse(attempt), nil
}

func (s *submissionService) existing(ctx context.Context, userID, assessmentID string) (dto.AssessmentResultResponse, error) {
	attempt, err := s.attempts.GetByUserAndAssessment(ctx, userID, assessmentID)
	if err != nil {
		return dto.AssessmentResultResponse{}, fmt.Errorf("load existing attempt: %w", err)
	}

	observability.Submissions().WithLabelValues("duplicate").Inc()
	s.logger.Info().Str("attempt_id", attempt.ID).Str("user_id", userID).Msg("duplicate submission returned stored attempt")

	s.record(ctx, AuditRecord{
		ActorID:      userID,
		Action:       "attempt.duplicate",
		AssessmentID: assessmentID,
		AttemptID:    attempt.ID,
	})

	response := dto.NewAssessmentResultResponse(attempt)
	response.Duplicate = true
	if attempt.Passed && attempt.Certificate == nil {
		s.issueCertificate(ctx, attempt, &response)
	}
	return response, nil
}

// issueCertificate fills the certificate fields of response. A failure leaves the
// attempt queued for regeneration.
func (s *submissionService) issueCertificate(ctx context.Context, attempt models.Attempt, response *dto.AssessmentResultResponse) {
	certificate, err := s.certificates.Issue(ctx, attempt)
	if err != nil {
		s.logger.Error().Err(err).Str("attempt_id", attempt.ID).Msg("certificate issuance failed; queued for regeneration")
		s.publish(ctx, EventCertificatePending, attempt)
		return
	}
	response.CertificateURL = certificate.CertificateURL
	response.CertificateIssued = true
	s.publish(ctx, EventCertificateIssued, attempt)
}

func (s *submissionService) publish(ctx context.Context, eventType string, attempt models.Attempt) {
	s.record(ctx, AuditRecord{
		ActorID:      attempt.UserID,
		Action:       eventType,
		AssessmentID: attempt.AssessmentID,
		AttemptID:    attempt.ID,
		Metadata: map[string]interface{}{
			"score":      attempt.Score,
			"passed":     attempt.Passed,
			"end_reason": attempt.EndReason,
		},
	})

	if s.events == nil {
		return
	}

	event := AssessmentEvent{
		Type:         eventType,
		AttemptID:    attempt.ID,
		UserID:       attempt.UserID,
		AssessmentID: attempt.AssessmentID,
		Passed:       attempt.Passed,
		Score:        attempt.Score,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("failed to publish assessment event")
	}
}

func (s *submissionService) record(ctx context.Context, record AuditRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("action", record.Action).Msg("failed to record audit entry")
	}
}
