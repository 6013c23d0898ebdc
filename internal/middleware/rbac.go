package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/utils"
)

// RequireRole ensures that the session carries one of the allowed roles. It must run
// after SessionRequired.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		session := auth.FromRequest(c)
		if !session.Verified() {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(session.Role))]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}
