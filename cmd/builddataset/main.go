package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/config"
	"github.com/bobby-s-dev/firerisk/internal/logging"
	"github.com/bobby-s-dev/firerisk/internal/training"
	"github.com/bobby-s-dev/firerisk/pkg/client"
)

// builddataset pairs FIRMS detections and random points with live weather
// to produce a labeled training set.
func main() {
	configPath := flag.String("config", "configs/training.yaml", "training config file")
	toCSV := flag.Bool("csv", true, "write builder.output_path")
	toSQL := flag.Bool("sql", false, "insert samples into builder.sql")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	tc, err := config.LoadTraining(*configPath)
	if err != nil {
		logger.Fatal("Failed to load training configuration", zap.Error(err))
	}
	if !cfg.ProviderConfigured() {
		logger.Fatal("A weather provider is required to build a dataset (set WEATHER_API_KEY or WEATHER_PROVIDER=openmeteo)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fires, err := training.LoadFires(tc.Builder.FiresPath)
	if err != nil {
		logger.Fatal("Failed to load fire detections", zap.Error(err))
	}
	logger.Info("Loaded fires", zap.Int("fires", len(fires)))

	clientConfig := client.ClientConfig{
		Timeout:        tc.Builder.Timeout,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}
	var source training.WeatherSource
	if cfg.Weather.Provider == config.ProviderOpenMeteo {
		source = client.NewOpenMeteoClient(cfg.Weather.OpenMeteoURL, cfg.Weather.OpenMeteoGeocodingURL, clientConfig, logger)
	} else {
		source = client.NewOpenWeatherClient(cfg.Weather.APIKey, cfg.Weather.OpenWeatherURL, clientConfig, logger)
	}

	b := tc.Builder
	builder := training.NewBuilder(source, training.BuilderConfig{
		MaxFires:          b.MaxFires,
		NegativeSamples:   b.NegativeSamples,
		Bounds:            b.Bounds,
		RequestsPerSecond: b.RequestsPerSecond,
		Timeout:           b.Timeout,
		Seed:              b.Seed,
	}, clockwork.NewRealClock(), logger)

	samples, stats, err := builder.Build(ctx, fires)
	if err != nil {
		logger.Warn("Build interrupted, keeping collected samples", zap.Error(err))
	}
	if len(samples) == 0 {
		logger.Fatal("No samples collected")
	}

	positives := stats.FiresKept
	logger.Info("Samples collected",
		zap.Int("total", len(samples)),
		zap.Int("fire", positives),
		zap.Int("no_fire", len(samples)-positives))

	if *toCSV {
		if err := training.SaveSamples(b.OutputPath, samples); err != nil {
			logger.Fatal("Failed to write dataset", zap.Error(err))
		}
		logger.Info("Saved dataset", zap.String("path", b.OutputPath))
	}

	if *toSQL {
		store, err := training.OpenStore(context.Background(), b.SQL.Driver, b.SQL.DSN)
		if err != nil {
			logger.Fatal("Failed to open sample store", zap.Error(err))
		}
		defer store.Close()

		runID := uuid.NewString()
		if err := store.Insert(context.Background(), runID, samples); err != nil {
			logger.Fatal("Failed to store samples", zap.Error(err))
		}
		logger.Info("Stored samples", zap.String("driver", b.SQL.Driver), zap.String("run_id", runID))
	}
}
