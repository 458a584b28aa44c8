package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/api"
	"github.com/bobby-s-dev/firerisk/internal/config"
	"github.com/bobby-s-dev/firerisk/internal/logging"
	"github.com/bobby-s-dev/firerisk/internal/metrics"
	"github.com/bobby-s-dev/firerisk/internal/ml"
	"github.com/bobby-s-dev/firerisk/internal/services"
	"github.com/bobby-s-dev/firerisk/pkg/client"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Fire Risk Prediction Service")

	// The service never starts without a complete model.
	model, err := ml.Load(cfg.Model.Dir)
	if err != nil {
		logger.Fatal("Failed to load model", zap.String("dir", cfg.Model.Dir), zap.Error(err))
	}
	logger.Info("Model loaded",
		zap.String("model", model.Name()),
		zap.String("run_id", model.Meta.RunID),
		zap.Float64("test_accuracy", model.Meta.TestAccuracy))

	namePolicy, err := services.ParseFallbackPolicy(cfg.Weather.NameFallback)
	if err != nil {
		logger.Fatal("Invalid NAME_FALLBACK", zap.Error(err))
	}
	coordPolicy, err := services.ParseFallbackPolicy(cfg.Weather.CoordinateFallback)
	if err != nil {
		logger.Fatal("Invalid COORDINATE_FALLBACK", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.ModelLoaded.Set(1)

	clock := clockwork.NewRealClock()
	fetcher := services.NewWeatherFetcher(newProvider(cfg, logger), clock, logger)
	predictor := services.NewPredictor(fetcher, model, services.PredictorConfig{
		NamePolicy:       namePolicy,
		CoordinatePolicy: coordPolicy,
	}, m, clock, logger)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: api.ErrorHandler,
	})

	// Setup handlers and routes
	handler := api.NewHandler(predictor, logger)
	api.SetupRoutes(app, handler, api.RouteConfig{
		AllowOrigins: cfg.Server.CORSAllowOrigins,
		Metrics:      metrics.Handler(reg),
		AccessLog:    true,
	})

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// newProvider returns nil when the selected provider has no credential, so
// the fetcher reports every lookup as unconfigured.
func newProvider(cfg *config.Config, logger *zap.Logger) services.WeatherProvider {
	clientConfig := client.ClientConfig{
		Timeout:        cfg.Weather.Timeout,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}

	if !cfg.ProviderConfigured() {
		logger.Warn("No weather API key configured, serving demo weather for name lookups",
			zap.String("provider", cfg.Weather.Provider))
		return nil
	}

	switch cfg.Weather.Provider {
	case config.ProviderOpenMeteo:
		logger.Info("Open-Meteo client initialized")
		return client.NewOpenMeteoClient(cfg.Weather.OpenMeteoURL, cfg.Weather.OpenMeteoGeocodingURL, clientConfig, logger)
	default:
		logger.Info("OpenWeatherMap client initialized")
		return client.NewOpenWeatherClient(cfg.Weather.APIKey, cfg.Weather.OpenWeatherURL, clientConfig, logger)
	}
}
