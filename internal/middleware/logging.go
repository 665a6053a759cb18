package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/live-auction/internal/logger"
)

// RequestLogger assigns every request an ID (reusing X-Request-ID when the
// client sent one), stores a request-scoped zerolog logger in the context
// and writes one access log line when the handler returns.
func RequestLogger() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            rid := req.Header.Get(echo.HeaderXRequestID)
            if rid == "" {
                rid = uuid.NewString()
            }
            c.Response().Header().Set(echo.HeaderXRequestID, rid)
            ctx := logger.WithRequestID(req.Context(), rid)
            c.SetRequest(req.WithContext(ctx))

            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }

            status := c.Response().Status
            ev := logger.FromContext(ctx).Info()
            if status >= 500 {
                ev = logger.FromContext(ctx).Error().Err(err)
            }
            ev.Str("method", req.Method).
                Str("path", c.Path()).
                Str("uri", req.RequestURI).
                Int("status", status).
                Str("remote_ip", c.RealIP()).
                Dur("latency", time.Since(start)).
                Msg("request")
            return nil
        }
    }
}
