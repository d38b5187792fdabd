// README: Base handler utilities (response envelope, error mapping, query parsing).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"drivepulse/internal/http/middleware"
	"drivepulse/internal/modules/driver"
	"drivepulse/internal/modules/earnings"
	"drivepulse/internal/modules/matching"
	"drivepulse/internal/modules/signals"
	"drivepulse/internal/types"
)

// StatusClientClosedRequest reports a caller that went away before the answer was ready.
const StatusClientClosedRequest = 499

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, envelope{Success: true, Data: v})
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, envelope{Code: code, Error: msg})
}

// writeServiceError maps module errors onto statuses. Unknown errors are
// attached to the context for the access log and reported generically.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, earnings.ErrNoActivePlan):
		writeError(c, http.StatusNotFound, "no_active_plan", "no active earnings plan, set a daily goal first")
	case errors.Is(err, matching.ErrRideNotFound), errors.Is(err, driver.ErrDriverNotFound):
		writeError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, signals.ErrSourceUnavailable):
		_ = c.Error(err)
		writeError(c, http.StatusServiceUnavailable, "source_unavailable", "demand sources are unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		_ = c.Error(err)
		writeError(c, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, context.Canceled):
		writeError(c, StatusClientClosedRequest, "canceled", "request canceled")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}

// callerID is the authenticated driver; routes are always mounted behind Auth.
func callerID(c *gin.Context) (types.ID, bool) {
	uid := middleware.CallerUID(c)
	if uid == "" {
		writeError(c, http.StatusUnauthorized, "unauthorized", "missing caller")
		return "", false
	}
	return types.ID(uid), true
}

func queryLocation(c *gin.Context) (types.Location, error) {
	lat, err := queryFloat(c, "lat")
	if err != nil {
		return types.Location{}, err
	}
	lng, err := queryFloat(c, "lng")
	if err != nil {
		return types.Location{}, err
	}
	loc := types.Location{Lat: lat, Lng: lng}
	return loc, loc.Validate()
}

func queryFloat(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, types.Invalid("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, types.Invalid("%s must be a number", name)
	}
	return v, nil
}

func queryRadius(c *gin.Context, def float64) (float64, error) {
	if c.Query("radius") == "" {
		return def, nil
	}
	return queryFloat(c, "radius")
}
