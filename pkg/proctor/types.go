package proctor

import (
	"errors"
	"time"
)

var (
	// ErrUnauthenticated is returned when the server reports no verified session.
	ErrUnauthenticated = errors.New("sign-in required")
	// ErrPaymentRequired is returned when the server finds no paid order for the assessment.
	ErrPaymentRequired = errors.New("payment required")
	// ErrIntegrityTerminated is returned for interactions after a forced termination.
	ErrIntegrityTerminated = errors.New("attempt terminated after integrity violations")
	// ErrNotInProgress is returned for interactions outside an active attempt.
	ErrNotInProgress = errors.New("attempt is not in progress")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("attempt already started")
	// ErrAlreadyFinished is returned when a finish is requested after another caller won the claim.
	ErrAlreadyFinished = errors.New("attempt already finished")
	// ErrClaimedElsewhere is returned when another tab already claimed the finish of this attempt.
	ErrClaimedElsewhere = errors.New("attempt finished in another session")
	// ErrInvalidAnswer is returned for an unknown question or option index.
	ErrInvalidAnswer = errors.New("invalid question or option index")
	// ErrSubmissionInFlight is returned when a submission is already being delivered.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrSubmissionPending is returned when delivery failed and the result is kept for retry.
	ErrSubmissionPending = errors.New("submission pending")
	// ErrSubmissionRejected wraps a server refusal of the result. It is never retried.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrNothingPending is returned by RetryPending when no result awaits delivery.
	ErrNothingPending = errors.New("no pending submission")
)

// State is the lifecycle position of an attempt.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
	StateSubmitted  State = "submitted"
)

// FinishReason records why an attempt left InProgress.
type FinishReason string

const (
	ReasonManual    FinishReason = "manual"
	ReasonDeadline  FinishReason = "deadline"
	ReasonIntegrity FinishReason = "integrity_violation"
)

// DefaultDuration is the time allowed for one attempt.
const DefaultDuration = 1800 * time.Second

// Key identifies an attempt on the client.
type Key struct {
	UserID       string
	AssessmentID string
}

func (k Key) String() string {
	return k.UserID + ":" + k.AssessmentID
}

// Result is the scored outcome of an attempt, computed locally and sent to the server.
type Result struct {
	AssessmentID   string       `json:"assessmentId"`
	Score          int          `json:"score"`
	TotalQuestions int          `json:"totalQuestions"`
	Passed         bool         `json:"passed"`
	Reason         FinishReason `json:"endReason"`
	Violations     int          `json:"violations"`
}

// Acknowledgement is the server's record of a submitted result.
type Acknowledgement struct {
	Success           bool   `json:"success"`
	Passed            bool   `json:"passed"`
	Score             int    `json:"score"`
	TotalQuestions    int    `json:"totalQuestions"`
	AttemptID         string `json:"attemptId"`
	CertificateURL    string `json:"certificateUrl,omitempty"`
	CertificateIssued bool   `json:"certificateIssued"`
	Duplicate         bool   `json:"duplicate"`
}

// Checkpoint is the durable snapshot that lets an attempt survive a reload.
type Checkpoint struct {
	AssessmentID string      `json:"assessmentId"`
	UserID       string      `json:"userId"`
	StartedAt    time.Time   `json:"startedAt"`
	Deadline     time.Time   `json:"deadline"`
	Answers      map[int]int `json:"answers"`
	Cursor       int         `json:"cursor"`
	Terminated   bool        `json:"terminated"`
	Pending      *Result     `json:"pending,omitempty"`
}

// Key returns the checkpoint's storage key.
func (c Checkpoint) Key() Key {
	return Key{UserID: c.UserID, AssessmentID: c.AssessmentID}
}

func (c Checkpoint) clone() Checkpoint {
	answers := make(map[int]int, len(c.Answers))
	for q, opt := range c.Answers {
		answers[q] = opt
	}
	c.Answers = answers
	if c.Pending != nil {
		pending := *c.Pending
		c.Pending = &pending
	}
	return c
}

// AttemptSession is a read-only view of the engine state.
type AttemptSession struct {
	AssessmentID   string
	UserID         string
	StartedAt      time.Time
	Deadline       time.Time
	Answers        map[int]int
	ViolationCount int
	State          State
	Cursor         int
	Reason         FinishReason
}

// Clock supplies the wall-clock time used for deadline arithmetic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real clock.
func SystemClock() Clock {
	return systemClock{}
}
