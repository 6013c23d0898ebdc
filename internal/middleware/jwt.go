package middleware

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/interngate-api/internal/auth"
	"github.com/noah-isme/interngate-api/internal/utils"
)

// ReturnPathHeader lets the client name the page to come back to after sign-in.
const ReturnPathHeader = "X-Return-Path"

// SessionConfig configures SessionRequired.
type SessionConfig struct {
	Secret     string
	SignInPath string
}

// SessionRequired validates the bearer token and attaches an auth.Session. Requests
// without a valid token get 401 with a sign-in redirect that preserves the return path.
func SessionRequired(cfg SessionConfig) fiber.Handler {
	signIn := cfg.SignInPath
	if signIn == "" {
		signIn = "/auth/signin"
	}

	return func(c *fiber.Ctx) error {
		session, reason := parseSession(c.Get(fiber.HeaderAuthorization), cfg.Secret)
		if reason != "" {
			return utils.Fail(c, fiber.StatusUnauthorized, reason, fiber.Map{
				"redirect": SignInRedirect(signIn, ReturnPath(c)),
			})
		}

		auth.Attach(c, session)
		return c.Next()
	}
}

// SignInRedirect builds the sign-in location carrying the return path.
func SignInRedirect(signInPath, next string) string {
	if next == "" {
		return signInPath
	}
	return signInPath + "?next=" + url.QueryEscape(next)
}

// ReturnPath reads the client's return path. Anything other than a same-site
// relative path falls back to the request's own URL.
func ReturnPath(c *fiber.Ctx) string {
	next := strings.TrimSpace(c.Get(ReturnPathHeader))
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return c.OriginalURL()
	}
	return next
}

func parseSession(authorization, secret string) (auth.Session, string) {
	if authorization == "" {
		return auth.Session{}, "authorization header missing"
	}

	const bearer = "Bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return auth.Session{}, "invalid authorization header"
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return auth.Session{}, "invalid token"
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return auth.Session{}, "invalid token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return auth.Session{}, "invalid token claims"
	}

	session := auth.Session{
		UserID: extractUserIDFromClaims(claims),
		Role:   extractUserRoleFromClaims(claims),
	}
	if expiry, err := claims.GetExpirationTime(); err == nil && expiry != nil {
		session.ExpiresAt = expiry.Time
	}
	if !session.Verified() {
		return auth.Session{}, "token has no subject"
	}

	return session, ""
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}

	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				role := strings.ToLower(strings.TrimSpace(str))
				if role != "" {
					return role
				}
			}
		}
	}
	return ""
}
