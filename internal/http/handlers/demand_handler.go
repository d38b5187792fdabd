// README: Demand handlers: heatmap and surge alerts.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"drivepulse/internal/modules/heatmap"
	"drivepulse/internal/modules/surge"
	"drivepulse/internal/types"
)

type HeatmapService interface {
	GetHeatmap(ctx context.Context, loc types.Location, radiusKm float64) (heatmap.Heatmap, error)
}

type SurgeService interface {
	GetSurgeAlerts(ctx context.Context, driverID types.ID, loc types.Location, radiusKm float64) ([]surge.Zone, error)
}

type DemandHandler struct {
	heatmap       HeatmapService
	surge         SurgeService
	heatmapRadius float64
	surgeRadius   float64
}

func NewDemandHandler(h HeatmapService, s SurgeService, heatmapRadiusKm, surgeRadiusKm float64) *DemandHandler {
	return &DemandHandler{heatmap: h, surge: s, heatmapRadius: heatmapRadiusKm, surgeRadius: surgeRadiusKm}
}

func (h *DemandHandler) Heatmap(c *gin.Context) {
	loc, err := queryLocation(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	radius, err := queryRadius(c, h.heatmapRadius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	hm, err := h.heatmap.GetHeatmap(c.Request.Context(), loc, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, hm)
}

func (h *DemandHandler) SurgeAlerts(c *gin.Context) {
	driverID, ok := callerID(c)
	if !ok {
		return
	}
	loc, err := queryLocation(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	radius, err := queryRadius(c, h.surgeRadius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	zones, err := h.surge.GetSurgeAlerts(c.Request.Context(), driverID, loc, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"zones": zones})
}
