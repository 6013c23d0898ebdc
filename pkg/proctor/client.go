package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StatusError is a non-success HTTP response other than 401 and 403.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assessment api returned %d: %s", e.Code, e.Message)
}

// SignInError carries the sign-in location returned with a 401.
type SignInError struct {
	Redirect string
}

func (e *SignInError) Error() string {
	if e.Redirect == "" {
		return ErrUnauthenticated.Error()
	}
	return fmt.Sprintf("%s (%s)", ErrUnauthenticated.Error(), e.Redirect)
}

// Is makes the error match ErrUnauthenticated.
func (e *SignInError) Is(target error) bool {
	return target == ErrUnauthenticated
}

// APIClientConfig configures the HTTP client.
type APIClientConfig struct {
	BaseURL string
	// Token returns the bearer token for each request.
	Token   func() string
	Timeout time.Duration
}

// APIClient talks to the assessment endpoints.
type APIClient struct {
	baseURL string
	token   func() string
	timeout time.Duration
}

// NewAPIClient builds a client for the server at cfg.BaseURL.
func NewAPIClient(cfg APIClientConfig) (*APIClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	token := cfg.Token
	if token == nil {
		token = func() string { return "" }
	}
	return &APIClient{baseURL: base, token: token, timeout: cfg.Timeout}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details struct {
		Redirect string `json:"redirect"`
	} `json:"details"`
}

type verifyPayload struct {
	AssessmentID string `json:"assessmentId"`
}

type submitPayload struct {
	AssessmentID   string `json:"assessmentId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	EndReason      string `json:"endReason,omitempty"`
	Violations     int    `json:"violations"`
}

// Verify asks the server whether the session may take the assessment.
func (c *APIClient) Verify(ctx context.Context, assessmentID string) error {
	var out struct {
		Authorized bool `json:"authorized"`
	}
	if err := c.do(ctx, fiber.MethodPost, "/assessment/verify", verifyPayload{AssessmentID: assessmentID}, &out); err != nil {
		return err
	}
	if !out.Authorized {
		return ErrPaymentRequired
	}
	return nil
}

// SubmitResult posts the score and question count. Answers are never sent.
func (c *APIClient) SubmitResult(ctx context.Context, result Result) (Acknowledgement, error) {
	payload := submitPayload{
		AssessmentID:   result.AssessmentID,
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		EndReason:      string(result.Reason),
		Violations:     result.Violations,
	}

	var ack Acknowledgement
	if err := c.do(ctx, fiber.MethodPost, "/assessment/submit", payload, &ack); err != nil {
		return Acknowledgement{}, err
	}
	return ack, nil
}

// FetchResult returns the stored attempt for the assessment.
func (c *APIClient) FetchResult(ctx context.Context, assessmentID string) (Acknowledgement, error) {
	var ack Acknowledgement
	path := "/assessment/" + url.PathEscape(assessmentID) + "/attempt"
	if err := c.do(ctx, fiber.MethodGet, path, nil, &ack); err != nil {
		return Acknowledgement{}, err
	}
	return ack, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	var agent *fiber.Agent
	switch method {
	case fiber.MethodGet:
		agent = fiber.Get(c.baseURL + path)
	default:
		agent = fiber.Post(c.baseURL + path)
	}

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if token := c.token(); token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(timeout)

	code, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("assessment api %s %s: %w", method, path, errors.Join(errs...))
	}

	var resp envelope
	decodeErr := json.Unmarshal(raw, &resp)

	switch {
	case code == fiber.StatusUnauthorized:
		return &SignInError{Redirect: resp.Details.Redirect}
	case code == fiber.StatusForbidden:
		return ErrPaymentRequired
	case code >= fiber.StatusBadRequest:
		message := resp.Message
		if decodeErr != nil || message == "" {
			message = strings.TrimSpace(string(raw))
		}
		return &StatusError{Code: code, Message: message}
	}

	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", path, decodeErr)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}
