package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ResultSender delivers a scored result to the server.
type ResultSender interface {
	SubmitResult(ctx context.Context, result Result) (Acknowledgement, error)
}

// SubmitterConfig tunes delivery retries.
type SubmitterConfig struct {
	Sender          ResultSender
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTries        uint
	MaxElapsedTime  time.Duration
	AttemptTimeout  time.Duration
	Logger          zerolog.Logger
}

// Submitter delivers results with bounded exponential backoff and admits one
// delivery at a time.
type Submitter struct {
	cfg      SubmitterConfig
	inFlight atomic.Bool
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewSubmitter builds a submitter, applying defaults for unset limits.
func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("result sender is required")
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 6
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = time.Minute
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Submitter{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/interngate-api/pkg/proctor/submitter"),
		logger: logger.With().Str("component", "proctor_submitter").Logger(),
	}, nil
}

// InFlight reports whether a delivery is running.
func (s *Submitter) InFlight() bool {
	return s.inFlight.Load()
}

// Submit delivers the result. Rejections by the server are returned as is;
// transport failures that outlast the retry budget are wrapped in
// ErrSubmissionPending so the caller keeps the result.
func (s *Submitter) Submit(parent context.Context, result Result) (Acknowledgement, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Acknowledgement{}, ErrSubmissionInFlight
	}
	defer s.inFlight.Store(false)

	ctx, span := s.tracer.Start(parent, "proctor.submit", trace.WithAttributes(
		attribute.String("assessment.id", result.AssessmentID),
		attribute.String("assessment.end_reason", string(result.Reason)),
	))
	defer span.End()

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = s.cfg.InitialInterval
	exponential.MaxInterval = s.cfg.MaxInterval

	operation := func() (Acknowledgement, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		defer cancel()

		ack, err := s.cfg.Sender.SubmitResult(attemptCtx, result)
		if err == nil {
			return ack, nil
		}
		if isRejection(err) {
			return Acknowledgement{}, backoff.Permanent(err)
		}
		return Acknowledgement{}, err
	}

	notify := func(err error, wait time.Duration) {
		submissionRetries.Inc()
		s.logger.Warn().Err(err).Dur("retry_in", wait).Str("assessment_id", result.AssessmentID).Msg("submission failed, retrying")
	}

	start := time.Now()
	ack, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(exponential),
		backoff.WithMaxTries(s.cfg.MaxTries),
		backoff.WithMaxElapsedTime(s.cfg.MaxElapsedTime),
		backoff.WithNotify(notify),
	)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isRejection(err) {
			submissionDuration.WithLabelValues("rejected").Observe(elapsed)
			return Acknowledgement{}, fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
		}
		submissionDuration.WithLabelValues("pending").Observe(elapsed)
		s.logger.Error().Err(err).Str("assessment_id", result.AssessmentID).Msg("submission kept pending")
		return Acknowledgement{}, fmt.Errorf("%w: %w", ErrSubmissionPending, err)
	}

	submissionDuration.WithLabelValues("acknowledged").Observe(elapsed)
	return ack, nil
}

// isRejection reports whether the server refused the result in a way a retry cannot fix.
func isRejection(err error) bool {
	if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrPaymentRequired) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 400 && statusErr.Code < 500 &&
			statusErr.Code != 408 && statusErr.Code != 429
	}
	return false
}
