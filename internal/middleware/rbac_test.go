package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interngate-api/internal/auth"
)

func roleApp(session auth.Session) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		auth.Attach(c, session)
		return c.Next()
	})
	app.Use(RequireRole("Admin"))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	resp, err := roleApp(auth.Session{UserID: "1", Role: "admin"}).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	resp, err := roleApp(auth.Session{UserID: "1", Role: "applicant"}).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = roleApp(auth.Session{Role: "admin"}).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
