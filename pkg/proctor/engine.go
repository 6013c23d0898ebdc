package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/interngate-api/pkg/catalog"
)

// Authorizer confirms with the server that the session may take the assessment.
type Authorizer interface {
	Verify(ctx context.Context, assessmentID string) error
}

// Reconciler looks up the result the server already stored for an assessment.
type Reconciler interface {
	FetchResult(ctx context.Context, assessmentID string) (Acknowledgement, error)
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Definition         catalog.Definition
	UserID             string
	Authorizer         Authorizer
	Submitter          *Submitter
	// Reconciler is optional. When set, a retried or resumed delivery first
	// asks the server for a stored result before sending again.
	Reconciler         Reconciler
	Store              CheckpointStore
	Clock              Clock
	Duration           time.Duration
	TickInterval       time.Duration
	ViolationThreshold int
	// SubmitTimeout bounds one delivery including retries. Delivery is detached
	// from the caller's cancellation.
	SubmitTimeout time.Duration
	// Owner identifies this tab when claiming the finish of a shared attempt.
	Owner  string
	Logger zerolog.Logger
}

// Engine runs one attempt: NotStarted, InProgress, Finished, Submitted.
// All state changes happen under a single mutex.
type Engine struct {
	cfg     EngineConfig
	key     Key
	monitor *IntegrityMonitor
	tracer  trace.Tracer
	logger  zerolog.Logger

	mu          sync.Mutex
	state       State
	startedAt   time.Time
	deadline    time.Time
	answers     map[int]int
	cursor      int
	reason      FinishReason
	result      *Result
	ack         *Acknowledgement
	delivering  bool
	deliveryErr error
	baseCtx     context.Context
	changed     chan struct{}
}

// NewEngine validates the configuration and builds an engine in NotStarted.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if cfg.Definition.ID == "" || cfg.Definition.TotalQuestions() == 0 {
		return nil, fmt.Errorf("assessment definition is required")
	}
	if cfg.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 2 * time.Minute
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	e := &Engine{
		cfg:     cfg,
		key:     Key{UserID: cfg.UserID, AssessmentID: cfg.Definition.ID},
		tracer:  otel.Tracer("github.com/noah-isme/interngate-api/pkg/proctor/engine"),
		logger:  logger.With().Str("component", "proctor_engine").Str("assessment_id", cfg.Definition.ID).Logger(),
		state:   StateNotStarted,
		answers: map[int]int{},
		baseCtx: context.Background(),
		changed: make(chan struct{}),
	}
	e.monitor = NewIntegrityMonitor(cfg.ViolationThreshold, cfg.Clock, e.terminate)
	e.monitor.onExpired(e.expire)
	return e, nil
}

// Monitor exposes the integrity monitor that feeds this engine.
func (e *Engine) Monitor() *IntegrityMonitor {
	return e.monitor
}

// Start verifies access with the server and enters InProgress. An existing
// checkpoint is restored with its original deadline; a checkpoint holding an
// undelivered result resumes delivery instead.
func (e *Engine) Start(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "proctor.start", trace.WithAttributes(
		attribute.String("assessment.id", e.key.AssessmentID),
	))
	defer span.End()

	if e.State() != StateNotStarted {
		return ErrAlreadyStarted
	}

	if err := e.cfg.Authorizer.Verify(ctx, e.key.AssessmentID); err != nil {
		span.RecordError(err)
		return err
	}

	checkpoint, found, err := e.cfg.Store.Load(ctx, e.key)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateNotStarted {
		return ErrAlreadyStarted
	}
	e.baseCtx = context.WithoutCancel(ctx)
	now := e.cfg.Clock.Now()

	if found {
		e.startedAt = checkpoint.StartedAt
		e.deadline = checkpoint.Deadline
		e.answers = checkpoint.Answers
		if e.answers == nil {
			e.answers = map[int]int{}
		}
		e.cursor = checkpoint.Cursor

		if checkpoint.Terminated {
			e.monitor.markTerminated()
		}
		if checkpoint.Pending != nil {
			pending := *checkpoint.Pending
			e.state = StateFinished
			e.reason = pending.Reason
			e.result = &pending
			e.logger.Info().Str("reason", string(pending.Reason)).Msg("resuming pending submission")
			e.startDeliveryLocked(pending, true)
			e.signalLocked()
			return nil
		}

		e.state = StateInProgress
		if checkpoint.Terminated {
			_ = e.finishLocked(e.baseCtx, ReasonIntegrity)
			return nil
		}
		e.logger.Info().Dur("remaining", e.deadline.Sub(now)).Msg("attempt restored from checkpoint")
	} else {
		e.startedAt = now
		e.deadline = now.Add(e.cfg.Duration)
		if err := e.saveLocked(ctx, nil, false); err != nil {
			return err
		}
		e.state = StateInProgress
	}

	e.monitor.activate()
	e.signalLocked()

	if !now.Before(e.deadline) {
		_ = e.finishLocked(e.baseCtx, ReasonDeadline)
	}
	return nil
}

// Run ticks the deadline until the attempt leaves InProgress or ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		e.Tick()
		if e.State() != StateInProgress {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick recomputes the remaining time from the deadline and finishes the attempt
// once it reaches zero.
func (e *Engine) Tick() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInProgress {
		return 0
	}
	remaining := e.deadline.Sub(e.cfg.Clock.Now())
	if remaining <= 0 {
		_ = e.finishLocked(e.baseCtx, ReasonDeadline)
		return 0
	}
	return remaining
}

// Remaining returns the time left without changing state.
func (e *Engine) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInProgress {
		return 0
	}
	if remaining := e.deadline.Sub(e.cfg.Clock.Now()); remaining > 0 {
		return remaining
	}
	return 0
}

// SelectAnswer records or overwrites the answer to a question. The cursor does not move.
func (e *Engine) SelectAnswer(ctx context.Context, questionIndex, optionIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInProgressLocked(); err != nil {
		return err
	}
	if !e.cfg.Definition.ValidAnswer(questionIndex, optionIndex) {
		return ErrInvalidAnswer
	}

	e.answers[questionIndex] = optionIndex
	return e.saveLocked(ctx, nil, false)
}

// Next moves the cursor forward and returns it.
func (e *Engine) Next(ctx context.Context) (int, error) {
	return e.move(ctx, 1)
}

// Previous moves the cursor back and returns it.
func (e *Engine) Previous(ctx context.Context) (int, error) {
	return e.move(ctx, -1)
}

func (e *Engine) move(ctx context.Context, delta int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireInProgressLocked(); err != nil {
		return e.cursor, err
	}

	cursor := e.cursor + delta
	if cursor < 0 {
		cursor = 0
	}
	if last := e.cfg.Definition.TotalQuestions() - 1; cursor > last {
		cursor = last
	}
	if cursor == e.cursor {
		return cursor, nil
	}
	e.cursor = cursor
	return cursor, e.saveLocked(ctx, nil, false)
}

// Submit finishes the attempt on the user's request and starts delivery. Only
// the first finish wins; later calls get ErrAlreadyFinished.
func (e *Engine) Submit(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateInProgress {
		e.baseCtx = context.WithoutCancel(ctx)
	}

	reason := ReasonManual
	if e.state == StateInProgress && !e.cfg.Clock.Now().Before(e.deadline) {
		reason = ReasonDeadline
	}
	if err := e.finishLocked(e.baseCtx, reason); err != nil {
		if e.result != nil && errors.Is(err, ErrClaimedElsewhere) {
			return *e.result, err
		}
		return Result{}, err
	}
	return *e.result, nil
}

// RetryPending restarts delivery of a result that could not be delivered. A
// result the server rejected is not retried.
func (e *Engine) RetryPending(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateFinished || e.result == nil {
		return ErrNothingPending
	}
	if e.delivering {
		return ErrSubmissionInFlight
	}
	if errors.Is(e.deliveryErr, ErrSubmissionRejected) {
		return e.deliveryErr
	}
	if !retryable(e.deliveryErr) {
		return ErrNothingPending
	}
	e.baseCtx = context.WithoutCancel(ctx)
	e.startDeliveryLocked(*e.result, true)
	e.signalLocked()
	return nil
}

// Pending returns the undelivered result once delivery has failed for a reason
// a retry can fix. The cause is reported by WaitForAcknowledgement.
func (e *Engine) Pending() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateFinished || e.result == nil || e.delivering || !retryable(e.deliveryErr) {
		return Result{}, false
	}
	return *e.result, true
}

// Rejection returns the server's refusal of the result, or nil. A rejected
// result stays finished and is never delivered again by this engine.
func (e *Engine) Rejection() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateFinished || e.delivering || !errors.Is(e.deliveryErr, ErrSubmissionRejected) {
		return nil
	}
	return e.deliveryErr
}

func retryable(err error) bool {
	return errors.Is(err, ErrSubmissionPending) || errors.Is(err, ErrClaimedElsewhere)
}

// WaitForAcknowledgement blocks until the server accepts the result, delivery
// fails, or ctx is done.
func (e *Engine) WaitForAcknowledgement(ctx context.Context) (Acknowledgement, error) {
	for {
		e.mu.Lock()
		state := e.state
		ack := e.ack
		delivering := e.delivering
		deliveryErr := e.deliveryErr
		changed := e.changed
		e.mu.Unlock()

		if state == StateSubmitted && ack != nil {
			return *ack, nil
		}
		if state == StateFinished && !delivering && deliveryErr != nil {
			return Acknowledgement{}, deliveryErr
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return Acknowledgement{}, ctx.Err()
		}
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a copy of the attempt session.
func (e *Engine) Snapshot() AttemptSession {
	e.mu.Lock()
	defer e.mu.Unlock()

	answers := make(map[int]int, len(e.answers))
	for q, opt := range e.answers {
		answers[q] = opt
	}
	return AttemptSession{
		AssessmentID:   e.key.AssessmentID,
		UserID:         e.key.UserID,
		StartedAt:      e.startedAt,
		Deadline:       e.deadline,
		Answers:        answers,
		ViolationCount: e.monitor.Violations(),
		State:          e.state,
		Cursor:         e.cursor,
		Reason:         e.reason,
	}
}

// Result returns the scored result once the attempt has finished.
func (e *Engine) Result() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return Result{}, false
	}
	return *e.result, true
}

// expire finishes an in-progress attempt whose deadline has passed and reports
// whether the deadline has passed.
func (e *Engine) expire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInProgress || e.cfg.Clock.Now().Before(e.deadline) {
		return false
	}
	_ = e.finishLocked(e.baseCtx, ReasonDeadline)
	return true
}

func (e *Engine) terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateInProgress {
		return
	}
	// A deadline that passed before the final violation was counted still wins.
	if !e.cfg.Clock.Now().Before(e.deadline) {
		_ = e.finishLocked(e.baseCtx, ReasonDeadline)
		return
	}
	e.logger.Warn().Int("violations", e.monitor.Violations()).Msg("attempt terminated by integrity monitor")
	_ = e.finishLocked(e.baseCtx, ReasonIntegrity)
}

func (e *Engine) requireInProgressLocked() error {
	switch e.state {
	case StateInProgress:
		if !e.cfg.Clock.Now().Before(e.deadline) {
			_ = e.finishLocked(e.baseCtx, ReasonDeadline)
			return ErrNotInProgress
		}
		return nil
	case StateFinished, StateSubmitted:
		if e.reason == ReasonIntegrity {
			return ErrIntegrityTerminated
		}
	}
	return ErrNotInProgress
}

// finishLocked is the single transition out of InProgress.
func (e *Engine) finishLocked(ctx context.Context, reason FinishReason) error {
	if e.state == StateNotStarted {
		return ErrNotInProgress
	}
	if e.state != StateInProgress {
		if e.reason == ReasonIntegrity {
			return ErrIntegrityTerminated
		}
		return ErrAlreadyFinished
	}

	won, err := e.cfg.Store.Claim(ctx, e.key, e.cfg.Owner)
	if err != nil {
		e.logger.Warn().Err(err).Msg("finish claim unavailable, relying on server uniqueness")
		won = true
	}

	e.state = StateFinished
	e.reason = reason
	e.monitor.deactivate()
	attemptsFinished.WithLabelValues(string(reason)).Inc()

	result := e.scoreLocked(reason)
	e.result = &result

	if !won {
		e.deliveryErr = ErrClaimedElsewhere
		e.signalLocked()
		return ErrClaimedElsewhere
	}

	if err := e.saveLocked(ctx, &result, reason == ReasonIntegrity); err != nil {
		e.logger.Warn().Err(err).Msg("pending result not checkpointed")
	}
	e.startDeliveryLocked(result, false)
	e.signalLocked()
	return nil
}

func (e *Engine) scoreLocked(reason FinishReason) Result {
	definition := e.cfg.Definition
	score := definition.Score(e.answers)
	passed := definition.Passed(score)
	if reason == ReasonIntegrity {
		score = 0
		passed = false
	}
	return Result{
		AssessmentID:   definition.ID,
		Score:          score,
		TotalQuestions: definition.TotalQuestions(),
		Passed:         passed,
		Reason:         reason,
		Violations:     e.monitor.Violations(),
	}
}

func (e *Engine) startDeliveryLocked(result Result, reconcile bool) {
	if e.delivering {
		return
	}
	e.delivering = true
	e.deliveryErr = nil

	ctx := e.baseCtx
	go e.deliver(ctx, result, reconcile)
}

func (e *Engine) deliver(parent context.Context, result Result, reconcile bool) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.SubmitTimeout)
	defer cancel()

	var (
		ack   Acknowledgement
		found bool
		err   error
	)
	if reconcile {
		ack, found = e.reconcile(ctx, result.AssessmentID)
	}
	if !found {
		ack, err = e.cfg.Submitter.Submit(ctx, result)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.signalLocked()

	e.delivering = false
	if err != nil {
		e.deliveryErr = err
		if errors.Is(err, ErrSubmissionRejected) {
			e.logger.Error().Err(err).Msg("result rejected by server")
			return
		}
		e.logger.Error().Err(err).Msg("result delivery failed")
		return
	}

	e.ack = &ack
	e.state = StateSubmitted
	if err := e.cfg.Store.Clear(ctx, e.key); err != nil {
		e.logger.Warn().Err(err).Msg("failed to clear checkpoint")
	}
	e.logger.Info().Str("attempt_id", ack.AttemptID).Bool("duplicate", ack.Duplicate).Msg("result acknowledged")
}

// reconcile reports the stored result when an earlier delivery already reached
// the server. Any lookup failure falls back to sending the result.
func (e *Engine) reconcile(ctx context.Context, assessmentID string) (Acknowledgement, bool) {
	if e.cfg.Reconciler == nil {
		return Acknowledgement{}, false
	}
	ack, err := e.cfg.Reconciler.FetchResult(ctx, assessmentID)
	if err != nil {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != 404 {
			e.logger.Warn().Err(err).Msg("stored result lookup failed")
		}
		return Acknowledgement{}, false
	}
	if ack.AttemptID == "" {
		return Acknowledgement{}, false
	}
	ack.Success = true
	ack.Duplicate = true
	return ack, true
}

func (e *Engine) saveLocked(ctx context.Context, pending *Result, terminated bool) error {
	answers := make(map[int]int, len(e.answers))
	for q, opt := range e.answers {
		answers[q] = opt
	}
	checkpoint := Checkpoint{
		AssessmentID: e.key.AssessmentID,
		UserID:       e.key.UserID,
		StartedAt:    e.startedAt,
		Deadline:     e.deadline,
		Answers:      answers,
		Cursor:       e.cursor,
		Terminated:   terminated || e.monitor.Terminated(),
		Pending:      pending,
	}
	if err := e.cfg.Store.Save(ctx, checkpoint); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (e *Engine) signalLocked() {
	close(e.changed)
	e.changed = make(chan struct{})
}
