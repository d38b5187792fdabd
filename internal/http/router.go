// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"drivepulse/internal/http/handlers"
	"drivepulse/internal/http/middleware"
	"drivepulse/internal/infra"
)

const basePath = "/api/driver-optimization"

type RouterDeps struct {
	Heatmap  handlers.HeatmapService
	Surge    handlers.SurgeService
	Matching handlers.MatchingService
	Savings  handlers.SavingsService
	Earnings handlers.EarningsService
	Verifier infra.TokenVerifier
	Limiter  *middleware.RateLimiter
	Log      *zap.Logger

	HeatmapRadiusKm float64
	SurgeRadiusKm   float64
}

func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(log), middleware.Recovery(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": "ok"}})
	})

	api := r.Group(basePath, middleware.Auth(d.Verifier))
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}

	demand := handlers.NewDemandHandler(d.Heatmap, d.Surge, d.HeatmapRadiusKm, d.SurgeRadiusKm)
	api.GET("/heatmap", demand.Heatmap)
	api.GET("/surge-alerts", demand.SurgeAlerts)

	drv := handlers.NewDriverHandler(d.Matching, d.Savings)
	api.POST("/idle", drv.Idle)
	api.POST("/stack-ride", drv.StackRide)
	api.GET("/auto-savings", drv.Savings)
	api.POST("/auto-savings", drv.ConfigureSavings)

	earn := handlers.NewEarningsHandler(d.Earnings)
	api.POST("/earnings/goal", earn.SetGoal)
	api.GET("/earnings/progress", earn.Progress)
	api.GET("/earnings/insights", earn.Insights)

	return r
}
