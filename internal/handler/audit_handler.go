package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interngate-api/internal/dto"
	"github.com/noah-isme/interngate-api/internal/service"
	"github.com/noah-isme/interngate-api/internal/utils"
)

// AuditHandler exposes the assessment audit trail to administrators.
type AuditHandler struct {
	service service.AuditService
	logger  zerolog.Logger
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service service.AuditService, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger.With().Str("component", "audit_handler").Logger(),
	}
}

// Register attaches audit routes to the router group.
func (h *AuditHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *AuditHandler) list(c *fiber.Ctx) error {
	var req dto.AuditListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 25
	} else if req.PageSize > 200 {
		req.PageSize = 200
	}

	response, err := h.service.List(c.UserContext(), req)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list audit entries")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list audit entries")
	}

	return utils.OK(c, response.Items, "audit entries", response.Pagination)
}
