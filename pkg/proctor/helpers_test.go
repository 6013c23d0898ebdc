package proctor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interngate-api/pkg/catalog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type authorizerStub struct {
	err   error
	calls int
}

func (a *authorizerStub) Verify(ctx context.Context, assessmentID string) error {
	a.calls++
	return a.err
}

// senderStub mimics the server: one stored result per assessment.
type senderStub struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	fetches  int
	stored   map[string]Result
	release  chan struct{}
}

func newSenderStub() *senderStub {
	return &senderStub{stored: map[string]Result{}}
}

func (s *senderStub) SubmitResult(ctx context.Context, result Result) (Acknowledgement, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return Acknowledgement{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return Acknowledgement{}, s.err
	}
	if s.failures > 0 {
		s.failures--
		return Acknowledgement{}, errors.New("connection reset")
	}

	existing, duplicate := s.stored[result.AssessmentID]
	if !duplicate {
		s.stored[result.AssessmentID] = result
		existing = result
	}
	return Acknowledgement{
		Success:        true,
		Passed:         existing.Passed,
		Score:          existing.Score,
		TotalQuestions: existing.TotalQuestions,
		AttemptID:      "attempt-" + result.AssessmentID,
		Duplicate:      duplicate,
	}, nil
}

func (s *senderStub) FetchResult(ctx context.Context, assessmentID string) (Acknowledgement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	stored, ok := s.stored[assessmentID]
	if !ok {
		return Acknowledgement{}, &StatusError{Code: 404, Message: "no attempt"}
	}
	return Acknowledgement{
		Success:        true,
		Passed:         stored.Passed,
		Score:          stored.Score,
		TotalQuestions: stored.TotalQuestions,
		AttemptID:      "attempt-" + assessmentID,
	}, nil
}

func (s *senderStub) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *senderStub) storedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func (s *senderStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testDefinition() catalog.Definition {
	questions := make([]catalog.Question, 20)
	for i := range questions {
		questions[i] = catalog.Question{Prompt: "q", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: i % 4}
	}
	return catalog.Definition{ID: "1", Name: "Python", PassingThreshold: 15, Questions: questions}
}

func testSubmitter(t *testing.T, sender ResultSender) *Submitter {
	t.Helper()
	submitter, err := NewSubmitter(SubmitterConfig{
		Sender:          sender,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxTries:        3,
		MaxElapsedTime:  time.Second,
	})
	require.NoError(t, err)
	return submitter
}

type engineFixture struct {
	engine *Engine
	clock  *fakeClock
	store  *MemoryCheckpointStore
	sender *senderStub
}

func newEngineFixture(t *testing.T, store *MemoryCheckpointStore, clock *fakeClock, sender *senderStub) engineFixture {
	t.Helper()
	if store == nil {
		store = NewMemoryCheckpointStore()
	}
	if clock == nil {
		clock = newFakeClock()
	}
	if sender == nil {
		sender = newSenderStub()
	}

	engine, err := NewEngine(EngineConfig{
		Definition:   testDefinition(),
		UserID:       "u1",
		Authorizer:   &authorizerStub{},
		Submitter:    testSubmitter(t, sender),
		Reconciler:   sender,
		Store:        store,
		Clock:        clock,
		TickInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return engineFixture{engine: engine, clock: clock, store: store, sender: sender}
}

func answerCorrectly(t *testing.T, engine *Engine, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		require.NoError(t, engine.SelectAnswer(context.Background(), i, i%4))
	}
}

func waitAck(t *testing.T, engine *Engine) Acknowledgement {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ack, err := engine.WaitForAcknowledgement(ctx)
	require.NoError(t, err)
	return ack
}
