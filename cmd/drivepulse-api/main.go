// README: Entry point; loads config, wires stores and services, serves the optimisation API.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"drivepulse/internal/cache"
	"drivepulse/internal/config"
	httptransport "drivepulse/internal/http"
	"drivepulse/internal/http/middleware"
	"drivepulse/internal/infra"
	"drivepulse/internal/maps"
	"drivepulse/internal/modules/driver"
	"drivepulse/internal/modules/earnings"
	"drivepulse/internal/modules/heatmap"
	"drivepulse/internal/modules/location"
	"drivepulse/internal/modules/matching"
	"drivepulse/internal/modules/signals"
	"drivepulse/internal/modules/surge"
	"drivepulse/internal/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("drivepulse-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		return errors.New("DRIVEPULSE_FIREBASE_PROJECT_ID is required")
	}
	firebaseApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.DatabaseURL, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, firebaseApp)
	if err != nil {
		return err
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()
	kv := cache.NewRedisStore(redisClient, cfg.Redis.Prefix)

	policy := retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		Multiplier:      2,
	}

	// Travel time and gas stations need a Maps key; without one, services
	// fall back to straight-line estimates and skip gas stops.
	var (
		travel matching.TravelEstimator
		gas    matching.GasStationFinder
	)
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		places, err := maps.NewPlacesService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		travel, gas = routes, places
	} else {
		logger.Warn("DRIVEPULSE_MAPS_API_KEY not set, using straight-line travel estimates")
	}

	var rides signals.RideSource = signals.NewRedisRideStore(redisClient)
	if cfg.Firebase.DatabaseURL != "" {
		rtdb, err := location.NewRTDBSource(ctx, firebaseApp)
		if err != nil {
			return err
		}
		rides = rtdb
		logger.Info("ride signals served from realtime database")
	}
	aggregator := signals.NewAggregator(rides, signals.NewPGDirectory(dbPool), policy, logger.Named("signals"))
	heatmapSvc := heatmap.NewService(aggregator, kv, cfg.Heatmap, policy, logger.Named("heatmap"))

	driverSvc := driver.NewService(driver.NewStore(dbPool), policy, logger.Named("driver"))

	earningsStore := earnings.NewStore(dbPool)
	surgeSvc := surge.NewService(surge.NewStore(dbPool), travel, earningsStore, cfg.Surge, policy, logger.Named("surge"))

	matchingSvc := matching.NewService(matching.Deps{
		Rides:   matching.NewStore(dbPool),
		Drivers: driverSvc,
		Travel:  travel,
		Gas:     gas,
		Heatmap: heatmapSvc,
		Locks:   kv,
	}, cfg.Matching, policy, logger.Named("matching"))

	earningsSvc := earnings.NewService(earnings.Deps{
		Plans:         kv,
		Ledger:        earningsStore,
		Stats:         earningsStore,
		Opportunities: earningsStore,
		Surge:         surgeSvc,
		Drivers:       driverSvc,
	}, cfg.Earnings, policy, logger.Named("earnings"))

	if cfg.Log.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go limiter.RunSweeper(ctx)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Heatmap:         heatmapSvc,
		Surge:           surgeSvc,
		Matching:        matchingSvc,
		Savings:         driverSvc,
		Earnings:        earningsSvc,
		Verifier:        verifier,
		Limiter:         limiter,
		Log:             logger.Named("http"),
		HeatmapRadiusKm: cfg.Heatmap.DefaultRadiusKm,
		SurgeRadiusKm:   cfg.Surge.DefaultRadiusKm,
	})

	return httptransport.NewServer(cfg.HTTP.Addr, router, logger).Run(ctx)
}
