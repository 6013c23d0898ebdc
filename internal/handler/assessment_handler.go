package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/dto"
	"github.com/noah-isme/interngate-api/internal/middleware"
	"github.com/noah-isme/interngate-api/internal/service"
	"github.com/noah-isme/interngate-api/internal/utils"
	"github.com/noah-isme/interngate-api/pkg/catalog"
)

// AssessmentHandler exposes verify, submit and certificate endpoints.
type AssessmentHandler struct {
	gate         service.AuthorizationGate
	submissions  service.SubmissionService
	certificates service.CertificateService
	catalog      service.AssessmentCatalog
	validator    *validator.Validate
	submitLimit  fiber.Handler
	signInPath   string
	logger       zerolog.Logger
}

// AssessmentHandlerConfig groups the dependencies of AssessmentHandler.
type AssessmentHandlerConfig struct {
	Gate         service.AuthorizationGate
	Submissions  service.SubmissionService
	Certificates service.CertificateService
	Catalog      service.AssessmentCatalog
	Validator    *validator.Validate
	// SubmitLimit guards the submit route; nil disables limiting.
	SubmitLimit fiber.Handler
	SignInPath  string
	Logger      zerolog.Logger
}

// NewAssessmentHandler builds the handler.
func NewAssessmentHandler(cfg AssessmentHandlerConfig) *AssessmentHandler {
	validate := cfg.Validator
	if validate == nil {
		validate = validator.New()
	}
	signIn := cfg.SignInPath
	if signIn == "" {
		signIn = "/auth/signin"
	}
	return &AssessmentHandler{
		gate:         cfg.Gate,
		submissions:  cfg.Submissions,
		certificates: cfg.Certificates,
		catalog:      cfg.Catalog,
		validator:    validate,
		submitLimit:  cfg.SubmitLimit,
		signInPath:   signIn,
		logger:       cfg.Logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *AssessmentHandler) Register(router fiber.Router) {
	router.Post("/verify", h.verify)
	if h.submitLimit != nil {
		router.Post("/submit", h.submitLimit, h.submit)
	} else {
		router.Post("/submit", h.submit)
	}
	router.Get("/:assessmentId/attempt", h.result)
	router.Post("/certificates/:attemptId/regenerate", h.regenerate)
}

func (h *AssessmentHandler) verify(c *fiber.Ctx) error {
	var payload dto.AssessmentVerifyRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.AssessmentID = strings.TrimSpace(payload.AssessmentID)
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}
	if _, err := h.catalog.Get(payload.AssessmentID); err != nil {
		return h.handleError(c, err)
	}

	if err := h.gate.Authorize(c.UserContext(), auth.FromRequest(c), payload.AssessmentID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assessment authorized", dto.AssessmentVerifyResponse{Authorized: true})
}

func (h *AssessmentHandler) submit(c *fiber.Ctx) error {
	var payload dto.AssessmentSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.AssessmentID = strings.TrimSpace(payload.AssessmentID)

	result, err := h.submissions.Submit(c.UserContext(), auth.FromRequest(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Str("attempt_id", result.AttemptID).
		Bool("passed", result.Passed).
		Bool("duplicate", result.Duplicate).
		Msg("assessment submitted")

	message := "assessment submitted"
	if result.Duplicate {
		message = "assessment already submitted"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *AssessmentHandler) result(c *fiber.Ctx) error {
	assessmentID := strings.TrimSpace(c.Params("assessmentId"))
	if assessmentID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "assessment id is required")
	}

	result, err := h.submissions.Result(c.UserContext(), auth.FromRequest(c), assessmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt retrieved", result)
}

func (h *AssessmentHandler) regenerate(c *fiber.Ctx) error {
	attemptID := strings.TrimSpace(c.Params("attemptId"))
	if attemptID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "attempt id is required")
	}

	certificate, err := h.certificates.Regenerate(c.UserContext(), auth.FromRequest(c), attemptID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "certificate issued", certificate)
}

func (h *AssessmentHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return utils.Fail(c, fiber.StatusUnauthorized, "sign in required", fiber.Map{
			"redirect": middleware.SignInRedirect(h.signInPath, middleware.ReturnPath(c)),
		})
	case errors.Is(err, service.ErrPaymentRequired):
		return c.Status(fiber.StatusForbidden).JSON(utils.APIResponse{
			Success: false,
			Message: "payment required for this assessment",
			Data:    dto.AssessmentVerifyResponse{Authorized: false},
		})
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case errors.Is(err, service.ErrInvalidResult):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrAssessmentNotFound), errors.Is(err, catalog.ErrUnknownAssessment):
		return utils.SendError(c, fiber.StatusNotFound, "assessment not found")
	case errors.Is(err, service.ErrAttemptNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "attempt not found")
	case errors.Is(err, service.ErrAttemptNotPassed):
		return utils.SendError(c, fiber.StatusConflict, "attempt did not pass")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
