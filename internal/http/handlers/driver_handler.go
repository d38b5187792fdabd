// README: Driver handlers: idle suggestions, ride stacking, auto-savings.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"drivepulse/internal/modules/driver"
	"drivepulse/internal/modules/matching"
	"drivepulse/internal/types"
)

type MatchingService interface {
	HandleIdleDriver(ctx context.Context, driverID types.ID, loc types.Location) (matching.IdleSuggestions, error)
	StackNextRide(ctx context.Context, driverID, currentRideID types.ID) (matching.StackResult, error)
}

type SavingsService interface {
	ConfigureAutoSavings(ctx context.Context, id types.ID, cfg driver.SavingsConfig) (driver.SavingsConfig, error)
	AutoSavings(ctx context.Context, id types.ID) (driver.SavingsConfig, bool, error)
}

type DriverHandler struct {
	matching MatchingService
	savings  SavingsService
}

func NewDriverHandler(m MatchingService, s SavingsService) *DriverHandler {
	return &DriverHandler{matching: m, savings: s}
}

type idleRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (h *DriverHandler) Idle(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	var req idleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "invalid_input", "lat and lng are required")
		return
	}
	out, err := h.matching.HandleIdleDriver(c.Request.Context(), driverID, types.Location{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

type stackRequest struct {
	CurrentRideID string `json:"current_ride_id"`
}

func (h *DriverHandler) StackRide(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	var req stackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CurrentRideID == "" {
		writeError(c, http.StatusBadRequest, "invalid_input", "current_ride_id is required")
		return
	}
	out, err := h.matching.StackNextRide(c.Request.Context(), driverID, types.ID(req.CurrentRideID))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

type savingsRequest struct {
	TaxPct      *float64 `json:"tax_percentage"`
	VacationPct *float64 `json:"vacation_percentage"`
	GoalsPct    *float64 `json:"goals_percentage"`
}

func (h *DriverHandler) ConfigureSavings(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	var req savingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaxPct == nil || req.VacationPct == nil || req.GoalsPct == nil {
		writeError(c, http.StatusBadRequest, "invalid_input", "tax_percentage, vacation_percentage and goals_percentage are required")
		return
	}
	out, err := h.savings.ConfigureAutoSavings(c.Request.Context(), driverID, driver.SavingsConfig{
		TaxPct:      *req.TaxPct,
		VacationPct: *req.VacationPct,
		GoalsPct:    *req.GoalsPct,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *DriverHandler) Savings(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	out, found, err := h.savings.AutoSavings(c.Request.Context(), driverID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "not_found", "auto-savings not configured")
		return
	}
	writeJSON(c, http.StatusOK, out)
}
