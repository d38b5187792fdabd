// README: Earnings handlers: daily goal, progress, insights.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"drivepulse/internal/modules/earnings"
	"drivepulse/internal/types"
)

type EarningsService interface {
	SetEarningsGoal(ctx context.Context, driverID types.ID, dailyGoal float64, start time.Time, end *time.Time) (earnings.Plan, error)
	GetEarningsProgress(ctx context.Context, driverID types.ID) (earnings.Progress, error)
	GetEarningsInsights(ctx context.Context, driverID types.ID, loc types.Location) (earnings.Insights, error)
}

type EarningsHandler struct {
	earnings EarningsService
}

func NewEarningsHandler(s EarningsService) *EarningsHandler {
	return &EarningsHandler{earnings: s}
}

type goalRequest struct {
	DailyGoal *float64   `json:"daily_goal"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

func (h *EarningsHandler) SetGoal(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	var req goalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DailyGoal == nil {
		writeError(c, http.StatusBadRequest, "invalid_input", "daily_goal is required and times must be RFC 3339")
		return
	}
	var start time.Time
	if req.StartTime != nil {
		start = *req.StartTime
	}
	plan, err := h.earnings.SetEarningsGoal(c.Request.Context(), driverID, *req.DailyGoal, start, req.EndTime)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, plan)
}

func (h *EarningsHandler) Progress(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	p, err := h.earnings.GetEarningsProgress(c.Request.Context(), driverID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *EarningsHandler) Insights(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	loc, err := queryLocation(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	in, err := h.earnings.GetEarningsInsights(c.Request.Context(), driverID, loc)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, in)
}
