package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/observability"
	"github.com/noah-isme/interngate-api/internal/repository"
)

var (
	// ErrUnauthenticated indicates the request carries no verified session.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPaymentRequired indicates no PAID order exists for the user and assessment.
	ErrPaymentRequired = errors.New("payment required for this assessment")
)

// AuthorizationGate decides whether a session may take an assessment.
type AuthorizationGate interface {
	Authorize(ctx context.Context, session auth.Session, assessmentID string) error
}

type authorizationGate struct {
	payments repository.PaymentRepository
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewAuthorizationGate constructs the payment-backed gate.
func NewAuthorizationGate(payments repository.PaymentRepository, logger zerolog.Logger) AuthorizationGate {
	return &authorizationGate{
		payments: payments,
		logger:   logger.With().Str("component", "authorization_gate").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/interngate-api/internal/service/authorization"),
	}
}

// Authorize returns nil only when a PAID order exists for exactly this user and
// assessment. The order table is read on every call.
func (g *authorizationGate) Authorize(ctx context.Context, session auth.Session, assessmentID string) error {
	if !session.Verified() {
		observability.Authorizations().WithLabelValues("unauthenticated").Inc()
		return ErrUnauthenticated
	}

	assessmentID = strings.TrimSpace(assessmentID)
	spanCtx, span := g.tracer.Start(ctx, "assessment.authorize", trace.WithAttributes(
		attribute.String("assessment.user_id", session.UserID),
		attribute.String("assessment.id", assessmentID),
	))
	defer span.End()

	if assessmentID == "" {
		observability.Authorizations().WithLabelValues("payment_required").Inc()
		return ErrPaymentRequired
	}

	if _, err := g.payments.FindPaid(spanCtx, session.UserID, assessmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.Authorizations().WithLabelValues("payment_required").Inc()
			return ErrPaymentRequired
		}
		span.RecordError(err)
		observability.Authorizations().WithLabelValues("error").Inc()
		g.logger.Error().Err(err).Str("user_id", session.UserID).Str("assessment_id", assessmentID).Msg("payment lookup failed")
		return fmt.Errorf("lookup payment: %w", err)
	}

	observability.Authorizations().WithLabelValues("authorized").Inc()
	return nil
}
