package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/models"
	"github.com/noah-isme/interngate-api/internal/repository"
	"github.com/noah-isme/interngate-api/pkg/catalog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type paymentRepoStub struct {
	mu    sync.Mutex
	paid  map[string]bool
	calls int
	err   error
}

func newPaymentRepoStub(pairs ...string) *paymentRepoStub {
	stub := &paymentRepoStub{paid: map[string]bool{}}
	for _, pair := range pairs {
		stub.paid[pair] = true
	}
	return stub
}

func (p *paymentRepoStub) FindPaid(ctx context.Context, userID, assessmentID string) (models.PaymentRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return models.PaymentRecord{}, p.err
	}
	if !p.paid[userID+"|"+assessmentID] {
		return models.PaymentRecord{}, gorm.ErrRecordNotFound
	}
	return models.PaymentRecord{UserID: userID, AssessmentID: assessmentID, Status: models.PaymentStatusPaid}, nil
}

func (p *paymentRepoStub) setPaid(pair string, paid bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid[pair] = paid
}

type certificateRepoStub struct {
	mu   sync.Mutex
	rows map[string]models.Certificate
	err  error
}

func newCertificateRepoStub() *certificateRepoStub {
	return &certificateRepoStub{rows: map[string]models.Certificate{}}
}

func (c *certificateRepoStub) Create(ctx context.Context, certificate *models.Certificate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, exists := c.rows[certificate.AttemptID]; exists {
		return repository.ErrDuplicateCertificate
	}
	if certificate.ID == "" {
		certificate.ID = uuid.NewString()
	}
	c.rows[certificate.AttemptID] = *certificate
	return nil
}

func (c *certificateRepoStub) GetByAttemptID(ctx context.Context, attemptID string) (models.Certificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	certificate, ok := c.rows[attemptID]
	if !ok {
		return models.Certificate{}, gorm.ErrRecordNotFound
	}
	return certificate, nil
}

func (c *certificateRepoStub) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *certificateRepoStub) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

type attemptRepoStub struct {
	mu           sync.Mutex
	rows         map[string]models.Attempt
	certificates *certificateRepoStub
}

func newAttemptRepoStub(certificates *certificateRepoStub) *attemptRepoStub {
	return &attemptRepoStub{rows: map[string]models.Attempt{}, certificates: certificates}
}

func (a *attemptRepoStub) Create(ctx context.Context, attempt *models.Attempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := attempt.UserID + "|" + attempt.AssessmentID
	if _, exists := a.rows[key]; exists {
		return repository.ErrDuplicateAttempt
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	a.rows[key] = *attempt
	return nil
}

func (a *attemptRepoStub) GetByID(ctx context.Context, id string) (models.Attempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, attempt := range a.rows {
		if attempt.ID == id {
			return a.withCertificate(attempt), nil
		}
	}
	return models.Attempt{}, gorm.ErrRecordNotFound
}

func (a *attemptRepoStub) GetByUserAndAssessment(ctx context.Context, userID, assessmentID string) (models.Attempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	attempt, ok := a.rows[userID+"|"+assessmentID]
	if !ok {
		return models.Attempt{}, gorm.ErrRecordNotFound
	}
	return a.withCertificate(attempt), nil
}

func (a *attemptRepoStub) withCertificate(attempt models.Attempt) models.Attempt {
	if a.certificates == nil {
		return attempt
	}
	if certificate, err := a.certificates.GetByAttemptID(context.Background(), attempt.ID); err == nil {
		attempt.Certificate = &certificate
	}
	return attempt
}

func (a *attemptRepoStub) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rows)
}

type eventBusStub struct {
	mu      sync.Mutex
	events  []AssessmentEvent
	handler AssessmentEventHandler
}

func (e *eventBusStub) Publish(ctx context.Context, event AssessmentEvent) error {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
	return nil
}

func (e *eventBusStub) Subscribe(ctx context.Context, handler AssessmentEventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
	return nil
}

func (e *eventBusStub) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]string, 0, len(e.events))
	for _, event := range e.events {
		types = append(types, event.Type)
	}
	return types
}

var errStoreDown = errors.New("store unavailable")

func testCatalog() *catalog.Registry {
	questions := make([]catalog.Question, 20)
	for i := range questions {
		questions[i] = catalog.Question{Prompt: "q", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: i % 4}
	}
	registry, err := catalog.NewRegistry(catalog.Definition{ID: "1", Name: "Python", PassingThreshold: 15, Questions: questions})
	if err != nil {
		panic(err)
	}
	return registry
}
