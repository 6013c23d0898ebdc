package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/interngate-api/internal/config"
	"github.com/noah-isme/interngate-api/internal/database"
	"github.com/noah-isme/interngate-api/internal/handler"
	"github.com/noah-isme/interngate-api/internal/middleware"
	"github.com/noah-isme/interngate-api/internal/models"
	"github.com/noah-isme/interngate-api/internal/repository"
	"github.com/noah-isme/interngate-api/internal/router"
	"github.com/noah-isme/interngate-api/internal/service"
	"github.com/noah-isme/interngate-api/pkg/catalog"
)

const (
	testJWTSecret      = "handler-secret"
	testCertificateURL = "https://interngate.example.com"
)

type assessmentFixture struct {
	app      *fiber.App
	db       *gorm.DB
	registry *catalog.Registry
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func testRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	questions := make([]catalog.Question, 20)
	for i := range questions {
		questions[i] = catalog.Question{
			Prompt:             "Question",
			Options:            []string{"a", "b", "c", "d"},
			CorrectOptionIndex: i % 4,
		}
	}
	registry, err := catalog.NewRegistry(
		catalog.Definition{ID: "1", Name: "Python Fundamentals", PassingThreshold: 15, Questions: questions},
		catalog.Definition{ID: "2", Name: "Go Fundamentals", PassingThreshold: 15, Questions: questions},
	)
	require.NoError(t, err)
	return registry
}

func newAssessmentFixture(t *testing.T) *assessmentFixture {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PaymentRecord{}, &models.Attempt{}, &models.Certificate{}, &models.AuditEntry{}))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	registry := testRegistry(t)

	attempts := repository.NewAttemptRepository(db)
	events := service.NewAssessmentEventBus(nil, "", nil, logger)
	audit := service.NewAuditService(repository.NewAuditRepository(db), validate, logger)
	gate := service.NewAuthorizationGate(repository.NewPaymentRepository(db), logger)
	certificates := service.NewCertificateService(attempts, repository.NewCertificateRepository(db), events, testCertificateURL, logger)
	submissions := service.NewSubmissionService(gate, registry, attempts, certificates, events, audit, validate, logger)

	cfg := config.Config{AppName: "Interngate Test", AppEnv: "test", JWTSecret: testJWTSecret, SignInPath: "/auth/signin"}

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler: handler.NewAssessmentHandler(handler.AssessmentHandlerConfig{
			Gate:         gate,
			Submissions:  submissions,
			Certificates: certificates,
			Catalog:      registry,
			Validator:    validate,
			SignInPath:   cfg.SignInPath,
			Logger:       logger,
		}),
		AuditHandler:      handler.NewAuditHandler(audit, logger),
		SessionMiddleware: middleware.SessionRequired(middleware.SessionConfig{Secret: cfg.JWTSecret, SignInPath: cfg.SignInPath}),
	})

	return &assessmentFixture{app: app, db: db, registry: registry}
}

func (f *assessmentFixture) markPaid(t *testing.T, userID, assessmentID string) {
	t.Helper()
	record := models.PaymentRecord{UserID: userID, AssessmentID: assessmentID, Status: models.PaymentStatusPaid, GatewayOrderID: uuid.NewString()}
	require.NoError(t, f.db.Create(&record).Error)
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	return signedTokenWithRole(t, userID, "applicant")
}

func signedTokenWithRole(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (f *assessmentFixture) call(t *testing.T, method, path, token string, body interface{}) (int, apiEnvelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func decodeData(t *testing.T, envelope apiEnvelope, out interface{}) {
	t.Helper()
	require.NotEmpty(t, envelope.Data)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func submitBody(assessmentID string, score, total int) map[string]interface{} {
	return map[string]interface{}{
		"assessmentId":   assessmentID,
		"score":          score,
		"totalQuestions": total,
	}
}
