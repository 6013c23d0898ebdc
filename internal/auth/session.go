package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const sessionLocalKey = "session"

// Session is the verified caller identity. It is built only from a validated bearer
// token and passed explicitly to every authorization and submission call.
type Session struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// Verified reports whether the session carries a usable identity.
func (s Session) Verified() bool {
	return strings.TrimSpace(s.UserID) != ""
}

// Attach stores the session on the request.
func Attach(c *fiber.Ctx, session Session) {
	c.Locals(sessionLocalKey, session)
}

// FromRequest returns the session attached by the JWT middleware, if any.
func FromRequest(c *fiber.Ctx) Session {
	if c == nil {
		return Session{}
	}
	if session, ok := c.Locals(sessionLocalKey).(Session); ok {
		return session
	}
	return Session{}
}
