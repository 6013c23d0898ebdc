package proctor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, register func(app *fiber.App)) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	register(app)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = app.Listener(listener) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + listener.Addr().String()
}

func TestAPIClientVerify(t *testing.T) {
	base := startTestServer(t, func(app *fiber.App) {
		app.Post("/assessment/verify", func(c *fiber.Ctx) error {
			var body struct {
				AssessmentID string `json:"assessmentId"`
			}
			if err := c.BodyParser(&body); err != nil {
				return c.SendStatus(fiber.StatusBadRequest)
			}
			switch {
			case c.Get(fiber.HeaderAuthorization) == "":
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"message": "authentication required",
					"details": fiber.Map{"redirect": "/auth/signin?next=/assessment/" + body.AssessmentID},
				})
			case body.AssessmentID != "1":
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "message": "payment required"})
			}
			return c.JSON(fiber.Map{"success": true, "message": "authorized", "data": fiber.Map{"authorized": true}})
		})
	})

	client, err := NewAPIClient(APIClientConfig{BaseURL: base, Token: func() string { return "token" }})
	require.NoError(t, err)

	require.NoError(t, client.Verify(context.Background(), "1"))
	require.ErrorIs(t, client.Verify(context.Background(), "2"), ErrPaymentRequired)

	anonymous, err := NewAPIClient(APIClientConfig{BaseURL: base})
	require.NoError(t, err)
	err = anonymous.Verify(context.Background(), "1")
	require.ErrorIs(t, err, ErrUnauthenticated)

	var signIn *SignInError
	require.ErrorAs(t, err, &signIn)
	require.Equal(t, "/auth/signin?next=/assessment/1", signIn.Redirect)
}

func TestAPIClientSubmitResult(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	base := startTestServer(t, func(app *fiber.App) {
		app.Post("/assessment/submit", func(c *fiber.Ctx) error {
			var body map[string]interface{}
			if err := c.BodyParser(&body); err != nil {
				return c.SendStatus(fiber.StatusBadRequest)
			}
			received <- body
			return c.JSON(fiber.Map{"success": true, "message": "recorded", "data": fiber.Map{
				"success": true, "passed": true, "score": 16, "totalQuestions": 20,
				"attemptId": "a1", "certificateUrl": "https://certs/verify/cert/a1", "certificateIssued": true,
			}})
		})
		app.Get("/assessment/:id/attempt", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "attempt not found"})
		})
	})

	client, err := NewAPIClient(APIClientConfig{BaseURL: base, Token: func() string { return "token" }})
	require.NoError(t, err)

	ack, err := client.SubmitResult(context.Background(), Result{AssessmentID: "1", Score: 16, TotalQuestions: 20, Passed: true, Reason: ReasonManual})
	require.NoError(t, err)
	require.Equal(t, "a1", ack.AttemptID)
	require.True(t, ack.CertificateIssued)

	body := <-received
	require.Equal(t, "1", body["assessmentId"])
	require.Equal(t, float64(16), body["score"])
	require.Equal(t, float64(20), body["totalQuestions"])
	require.NotContains(t, body, "answers")
	require.NotContains(t, body, "passed")

	_, err = client.FetchResult(context.Background(), "1")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, fiber.StatusNotFound, statusErr.Code)
	require.Equal(t, "attempt not found", statusErr.Message)
}

func TestAPIClientNetworkFailureIsRetryable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	client, err := NewAPIClient(APIClientConfig{BaseURL: "http://" + address, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.SubmitResult(context.Background(), Result{AssessmentID: "1"})
	require.Error(t, err)
	require.False(t, isRejection(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, client.Verify(ctx, "1"), context.Canceled)
}
