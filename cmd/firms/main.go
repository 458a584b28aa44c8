package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bobby-s-dev/firerisk/internal/config"
	"github.com/bobby-s-dev/firerisk/internal/logging"
	"github.com/bobby-s-dev/firerisk/internal/models"
	"github.com/bobby-s-dev/firerisk/internal/training"
	"github.com/bobby-s-dev/firerisk/pkg/client"
)

// firms downloads fire-season hotspot detections for the configured region.
func main() {
	configPath := flag.String("config", "configs/training.yaml", "training config file")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := logging.New(*logLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadTraining(*configPath)
	if err != nil {
		logger.Fatal("Failed to load training configuration", zap.Error(err))
	}
	fc := cfg.FIRMS
	if fc.MapKey == "" {
		logger.Fatal("FIRMS map key is required (FIRMS_MAP_KEY or firms.map_key)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	firms := client.NewFIRMSClient(fc.MapKey, fc.BaseURL, client.ClientConfig{
		Timeout:        fc.Timeout,
		Threshold:      5,
		BreakerTimeout: fc.Timeout,
	}, logger)
	limiter := rate.NewLimiter(rate.Limit(fc.RequestsPerSecond), 1)

	var all []models.FireDetection
	for _, year := range fc.Years {
		for _, day := range fc.Dates {
			if err := limiter.Wait(ctx); err != nil {
				logger.Fatal("Interrupted", zap.Error(err))
			}

			date := fmt.Sprintf("%d-%s", year, day)
			fires, err := firms.Area(ctx, client.AreaQuery{
				Source:   fc.Source,
				BBox:     fc.BBox,
				DayRange: fc.DayRange,
				Date:     date,
			})
			if err != nil {
				logger.Warn("FIRMS request failed", zap.String("date", date), zap.Error(err))
				continue
			}
			logger.Info("Fetched detections", zap.String("date", date), zap.Int("fires", len(fires)))
			all = append(all, fires...)
		}
	}

	kept := client.FilterConfidence(all, fc.MinConfidence)
	logger.Info("Filtered by confidence",
		zap.Int("total", len(all)),
		zap.Int("kept", len(kept)),
		zap.Float64("min_confidence", fc.MinConfidence))

	if len(kept) == 0 {
		logger.Fatal("No fire detections collected")
	}
	if err := training.SaveFires(fc.OutputPath, kept); err != nil {
		logger.Fatal("Failed to save detections", zap.Error(err))
	}
	logger.Info("Saved detections", zap.String("path", fc.OutputPath))
}
