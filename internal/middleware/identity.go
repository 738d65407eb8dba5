package middleware

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys written by JWTAuth and OptionalJWT.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// ErrNoIdentity means the request carries no usable subject claim.
var ErrNoIdentity = errors.New("invalid user_id in context")

// UserID returns the authenticated subject.  JSON numbers arrive as
// float64 from the token claims; string subjects are parsed.
func UserID(c echo.Context) (uint64, error) {
	switch t := c.Get(ctxUserID).(type) {
	case uint64:
		return t, nil
	case int64:
		if t > 0 {
			return uint64(t), nil
		}
	case float64:
		if t > 0 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, ErrNoIdentity
}

// Role returns the role claim, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// rateKeyUser identifies the caller for rate limiting.
func rateKeyUser(c echo.Context) string {
	if id, err := UserID(c); err == nil {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
