package middleware

// identity.go exposes the authenticated user to handlers and to the rate
// limiter.  JWTAuth stores the token subject under "user_id".

import (
	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's id.  The boolean is false for
// anonymous requests.
func UserID(c echo.Context) (string, bool) {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s, true
	}
	return "", false
}

// rateKeyUser is the user component of a rate limit key.
func rateKeyUser(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return id
	}
	return "anon"
}
