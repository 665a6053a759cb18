package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/live-auction/internal/bidding"
	"github.com/iliyamo/live-auction/internal/logger"
	"github.com/iliyamo/live-auction/internal/service"
)

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, bidding.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bidding.ErrInvalidState), errors.Is(err, bidding.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, bidding.ErrInvalidBid), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, bidding.ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, bidding.ErrInfrastructureUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": "..."}.  Server-side failures are
// logged and their detail is not returned.
func writeError(c echo.Context, err error) error {
	status := statusOf(err)
	msg := bidding.Reason(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request().Context()).Error().Err(err).
			Str("path", c.Path()).
			Msg("request failed")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	return c.JSON(status, echo.Map{"error": msg})
}

// pathID parses the :id route parameter.
func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func invalidID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
}
