package middleware

// identity.go defines helpers shared across middleware and handlers for
// reading the authenticated bidder placed in the Echo context by JWTAuth.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/live-auction/internal/utils"
)

const (
    ctxUserID   = "user_id"
    ctxIdentity = "identity"
)

// UserID returns the authenticated bidder's ID, if any.
func UserID(c echo.Context) (uint64, bool) {
    switch v := c.Get(ctxUserID).(type) {
    case uint64:
        return v, v > 0
    case int64:
        return uint64(v), v > 0
    case float64:
        return uint64(v), v > 0
    }
    return 0, false
}

// Identity returns the full identity carried by the access token.
func Identity(c echo.Context) (utils.Identity, bool) {
    id, ok := c.Get(ctxIdentity).(utils.Identity)
    return id, ok
}
