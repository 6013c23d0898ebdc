package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/dto"
	"github.com/noah-isme/interngate-api/internal/models"
	"github.com/noah-isme/interngate-api/internal/observability"
	"github.com/noah-isme/interngate-api/internal/repository"
)

var (
	// ErrAttemptNotFound indicates the caller has no such attempt.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptNotPassed indicates a certificate was requested for a failed attempt.
	ErrAttemptNotPassed = errors.New("attempt did not pass")
)

// CertificateService issues certificates for passed attempts.
type CertificateService interface {
	Issue(ctx context.Context, attempt models.Attempt) (models.Certificate, error)
	Regenerate(ctx context.Context, session auth.Session, attemptID string) (dto.CertificateResponse, error)
	Start(ctx context.Context) error
}

type certificateService struct {
	attempts     repository.AttemptRepository
	certificates repository.CertificateRepository
	events       AssessmentEventBus
	baseURL      string
	now          func() time.Time
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// NewCertificateService constructs the certificate service. events may be nil.
func NewCertificateService(attempts repository.AttemptRepository, certificates repository.CertificateRepository, events AssessmentEventBus, baseURL string, logger zerolog.Logger) CertificateService {
	return &certificateService{
		attempts:     attempts,
		certificates: certificates,
		events:       events,
		baseURL:      strings.TrimSpace(baseURL),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With().Str("component", "certificate_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/interngate-api/internal/service/certificate"),
	}
}

// Issue inserts the certificate for a passed attempt. Issuing twice returns the
// certificate that already exists.
func (s *certificateService) Issue(ctx context.Context, attempt models.Attempt) (models.Certificate, error) {
	if !attempt.Passed {
		return models.Certificate{}, ErrAttemptNotPassed
	}

	spanCtx, span := s.tracer.Start(ctx, "certificates.issue", trace.WithAttributes(
		attribute.String("assessment.attempt_id", attempt.ID),
	))
	defer span.End()

	certificate := models.Certificate{
		UserID:         attempt.UserID,
		AttemptID:      attempt.ID,
		AssessmentID:   attempt.AssessmentID,
		CertificateURL: models.CertificateURL(s.baseURL, attempt.ID),
		IssuedAt:       s.now(),
	}

	if err := s.certificates.Create(spanCtx, &certificate); err != nil {
		if errors.Is(err, repository.ErrDuplicateCertificate) {
			return s.certificates.GetByAttemptID(spanCtx, attempt.ID)
		}
		span.RecordError(err)
		observability.Certificates().WithLabelValues("failed").Inc()
		return models.Certificate{}, fmt.Errorf("insert certificate: %w", err)
	}

	observability.Certificates().WithLabelValues("issued").Inc()
	return certificate, nil
}

func (s *certificateService) Regenerate(ctx context.Context, session auth.Session, attemptID string) (dto.CertificateResponse, error) {
	if !session.Verified() {
		return dto.CertificateResponse{}, ErrUnauthenticated
	}

	attempt, err := s.attempts.GetByID(ctx, strings.TrimSpace(attemptID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CertificateResponse{}, ErrAttemptNotFound
		}
		return dto.CertificateResponse{}, err
	}
	if attempt.UserID != session.UserID {
		return dto.CertificateResponse{}, ErrAttemptNotFound
	}
	if attempt.Certificate != nil {
		return dto.NewCertificateResponse(*attempt.Certificate), nil
	}

	certificate, err := s.Issue(ctx, attempt)
	if err != nil {
		return dto.CertificateResponse{}, err
	}

	observability.Certificates().WithLabelValues("regenerated").Inc()
	s.logger.Info().Str("attempt_id", attempt.ID).Msg("certificate regenerated on request")
	return dto.NewCertificateResponse(certificate), nil
}

// Start consumes certificate.pending events and retries issuance in the background.
func (s *certificateService) Start(ctx context.Context) error {
	if s.events == nil {
		return nil
	}
	return s.events.Subscribe(ctx, s.handleEvent)
}

func (s *certificateService) handleEvent(ctx context.Context, event AssessmentEvent) {
	if event.Type != EventCertificatePending || event.AttemptID == "" {
		return
	}

	logger := s.logger.With().Str("attempt_id", event.AttemptID).Str("source", event.Source).Logger()

	attempt, err := s.attempts.GetByID(ctx, event.AttemptID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load attempt for pending certificate")
		return
	}
	if attempt.Certificate != nil {
		return
	}

	if _, err := s.Issue(ctx, attempt); err != nil {
		logger.Error().Err(err).Msg("certificate regeneration failed")
		return
	}

	observability.Certificates().WithLabelValues("regenerated").Inc()
	logger.Info().Msg("pending certificate issued")
}
