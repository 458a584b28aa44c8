package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/config"
	"github.com/bobby-s-dev/firerisk/internal/logging"
	"github.com/bobby-s-dev/firerisk/internal/metrics"
	"github.com/bobby-s-dev/firerisk/internal/scheduler"
	"github.com/bobby-s-dev/firerisk/internal/training"
)

func main() {
	configPath := flag.String("config", "configs/training.yaml", "training config file")
	schedule := flag.Bool("schedule", false, "keep running and retrain on the configured cron schedule")
	metricsAddr := flag.String("metrics-addr", ":9102", "metrics and /status listen address when scheduling")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.LoadTraining(*configPath)
	if err != nil {
		logger.Fatal("Failed to load training configuration", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := clockwork.NewRealClock()

	pipeline := training.NewPipeline(training.PipelineConfig{
		Seed:      cfg.Seed,
		TestSize:  cfg.TestSize,
		CVFolds:   cfg.CVFolds,
		OutputDir: cfg.OutputDir,
	}, training.DefaultTrainers(cfg.RandomForest, cfg.GradientBoosting, cfg.XGBoost), m, clock, logger)

	job := func(ctx context.Context) error {
		ds, err := loadDataset(ctx, cfg)
		if err != nil {
			return err
		}
		report, err := pipeline.Run(ctx, ds)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	}

	if !*schedule {
		if err := job(context.Background()); err != nil {
			logger.Fatal("Training failed", zap.Error(err))
		}
		return
	}

	sched, err := scheduler.NewScheduler(cfg.Schedule, job, 6*time.Hour, clock, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/status", sched.Handler())
	srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		logger.Warn("Scheduler did not stop cleanly", zap.Error(err))
	}
	srv.Shutdown(ctx)
}

func loadDataset(ctx context.Context, cfg *config.TrainingConfig) (*training.Dataset, error) {
	switch cfg.Dataset.Source {
	case config.SourceSQL:
		store, err := training.OpenStore(ctx, cfg.Dataset.SQL.Driver, cfg.Dataset.SQL.DSN)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Dataset(ctx)
	default:
		return training.LoadCSV(cfg.Dataset.Path)
	}
}

func printReport(r *training.Report) {
	fmt.Printf("\nDataset: %s (%d samples, %d fire events)\n", r.Dataset, r.Samples, r.Positives)
	fmt.Printf("%-20s %8s %8s %16s\n", "Model", "Train", "Test", "CV mean ±2sd")
	for i, c := range r.Candidates {
		marker := ""
		if i == r.Best {
			marker = "  <- selected"
		}
		fmt.Printf("%-20s %8.4f %8.4f %8.4f ±%.4f%s\n",
			c.Name, c.TrainAccuracy, c.TestAccuracy, c.CV.Mean, c.CV.Std*2, marker)
	}
	fmt.Printf("Run ID: %s\n", r.RunID)
}
