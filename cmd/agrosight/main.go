package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/agrosight/agrosight/internal/adapter/httpapi"
	"github.com/agrosight/agrosight/internal/agromodel"
	"github.com/agrosight/agrosight/internal/config"
	"github.com/agrosight/agrosight/internal/imagery"
	"github.com/agrosight/agrosight/internal/observability"
	"github.com/agrosight/agrosight/internal/orchestrator"
	"github.com/agrosight/agrosight/internal/source/openmeteo"
	"github.com/agrosight/agrosight/internal/source/scenestore"
	"github.com/agrosight/agrosight/internal/store"
	"github.com/agrosight/agrosight/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	fields, err := store.NewFileStore(cfg.FieldRegistryPath)
	if err != nil {
		logger.Error("failed to load field registry", "path", cfg.FieldRegistryPath, "error", err)
		os.Exit(1)
	}

	omCfg := openmeteo.DefaultConfig()
	omCfg.ArchiveURL = cfg.OpenMeteoArchiveURL
	omCfg.ForecastURL = cfg.OpenMeteoForecastURL
	omCfg.Timeout = cfg.OpenMeteoTimeout
	omCfg.MaxSamplePoints = cfg.OpenMeteoMaxPoints
	omCfg.MaxRetries = cfg.OpenMeteoMaxRetries
	weatherSource := openmeteo.NewClient(omCfg, logger, metrics)

	aggregator := weather.NewAggregator(weatherSource, weather.Config{
		SunnyCloudMax:      cfg.SunnyCloudMax,
		SunnyPrecipMax:     cfg.SunnyPrecipMax,
		MaxPointDistanceKm: cfg.MaxPointDistanceKm,
	}, clock, logger)

	// No imagery provider is wired yet, so NDVI requests run against an
	// empty in-process catalog and report no_scenes.
	pipeline := imagery.NewPipeline(scenestore.NewMemory(), imagery.Config{
		MinValidPixels: cfg.MinValidPixels,
		CloudProbMask:  cfg.CloudProbMask,
	}, logger)

	engine := orchestrator.New(fields, aggregator, pipeline, orchestrator.Config{
		RequestTimeout: cfg.RequestTimeout,
		CacheEntries:   cfg.CacheEntries,
		CacheTTL:       cfg.CacheTTL,
		Alerts: agromodel.AlertThresholds{
			FrostBelow: cfg.FrostBelow,
			HeatAbove:  cfg.HeatAbove,
		},
	}, clock, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, engine, fields, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()
	metrics.EngineReady.Set(1)

	<-ctx.Done()
	logger.Info("shutting down")
	metrics.EngineReady.Set(0)
	engine.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
