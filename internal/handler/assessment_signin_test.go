package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/handler"
	"github.com/noah-isme/interngate-api/internal/middleware"
	"github.com/noah-isme/interngate-api/internal/service"
	"github.com/noah-isme/interngate-api/pkg/catalog"
)

type expiredGate struct{}

func (expiredGate) Authorize(ctx context.Context, session auth.Session, assessmentID string) error {
	return service.ErrUnauthenticated
}

type singleCatalog struct{}

func (singleCatalog) Get(id string) (catalog.Definition, error) {
	return catalog.Definition{ID: id}, nil
}

func TestAssessmentSignInRedirectKeepsOnlySameSitePaths(t *testing.T) {
	app := fiber.New()
	handler.NewAssessmentHandler(handler.AssessmentHandlerConfig{
		Gate:    expiredGate{},
		Catalog: singleCatalog{},
	}).Register(app.Group("/api/v1/assessment"))

	const fallback = "/auth/signin?next=%2Fapi%2Fv1%2Fassessment%2Fverify"
	cases := map[string]struct {
		returnPath string
		redirect   string
	}{
		"same site": {returnPath: "/assessment/1", redirect: "/auth/signin?next=%2Fassessment%2F1"},
		"protocol":  {returnPath: "//evil.example.com", redirect: fallback},
		"backslash": {returnPath: "/\\evil.example.com", redirect: fallback},
		"absolute":  {returnPath: "https://evil.example.com/", redirect: fallback},
		"missing":   {redirect: fallback},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/assessment/verify", strings.NewReader(`{"assessmentId":"1"}`))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			if tc.returnPath != "" {
				req.Header.Set(middleware.ReturnPathHeader, tc.returnPath)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

			var body struct {
				Details struct {
					Redirect string `json:"redirect"`
				} `json:"details"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tc.redirect, body.Details.Redirect)
		})
	}
}
