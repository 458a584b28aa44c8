package training

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/features"
	"github.com/bobby-s-dev/firerisk/internal/metrics"
	"github.com/bobby-s-dev/firerisk/internal/ml"
)

type PipelineConfig struct {
	Seed      int64
	TestSize  float64
	CVFolds   int
	OutputDir string // empty skips saving
}

// CandidateResult is one trained classifier's scores.
type CandidateResult struct {
	Name          string
	TrainAccuracy float64
	TestAccuracy  float64
	CV            ml.CVResult
	Ensemble      *ml.Ensemble
}

type Report struct {
	RunID      string
	Dataset    string
	Samples    int
	Positives  int
	Candidates []CandidateResult
	Best       int
	Model      *ml.Model
}

// Pipeline splits, scales, trains every candidate, and keeps the one with
// the best held-out accuracy.
type Pipeline struct {
	cfg      PipelineConfig
	trainers []ml.Trainer
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewPipeline(cfg PipelineConfig, trainers []ml.Trainer, m *metrics.Metrics, clock clockwork.Clock, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		trainers: trainers,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// DefaultTrainers returns the three candidates in selection order.
func DefaultTrainers(forest ml.ForestParams, boosting ml.BoostingParams, xgb ml.XGBoostParams) []ml.Trainer {
	return []ml.Trainer{
		ml.NewRandomForest(forest),
		ml.NewGradientBoosting(boosting),
		ml.NewXGBoost(xgb),
	}
}

func (p *Pipeline) Run(ctx context.Context, ds *Dataset) (report *Report, err error) {
	defer func() {
		if p.metrics == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		p.metrics.TrainingRuns.WithLabelValues(outcome).Inc()
	}()

	if len(p.trainers) == 0 {
		return nil, fmt.Errorf("no candidate classifiers")
	}

	report = &Report{
		RunID:     uuid.NewString(),
		Dataset:   ds.Name,
		Samples:   ds.Len(),
		Positives: ds.Positives(),
		Best:      -1,
	}
	p.logger.Info("Training run started",
		zap.String("run_id", report.RunID),
		zap.String("dataset", ds.Name),
		zap.Int("samples", report.Samples),
		zap.Int("fire_events", report.Positives))

	trainIdx, testIdx, err := ml.StratifiedSplit(ds.Y, p.cfg.TestSize, p.cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	trainX, trainY := ml.Rows(ds.X, ds.Y, trainIdx)
	testX, testY := ml.Rows(ds.X, ds.Y, testIdx)

	// Fit on the train partition only.
	scaler, err := ml.FitScaler(trainX)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	if trainX, err = scaler.TransformAll(trainX); err != nil {
		return nil, err
	}
	if testX, err = scaler.TransformAll(testX); err != nil {
		return nil, err
	}

	bestScore := -1.0
	for _, trainer := range p.trainers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ens, err := trainer.Fit(trainX, trainY)
		if err != nil {
			return nil, fmt.Errorf("fit %s: %w", trainer.Name(), err)
		}
		cv, err := ml.CrossValidate(trainer, trainX, trainY, p.cfg.CVFolds)
		if err != nil {
			return nil, fmt.Errorf("cross-validate %s: %w", trainer.Name(), err)
		}

		res := CandidateResult{
			Name:          trainer.Name(),
			TrainAccuracy: ml.Accuracy(ens, trainX, trainY),
			TestAccuracy:  ml.Accuracy(ens, testX, testY),
			CV:            cv,
			Ensemble:      ens,
		}
		report.Candidates = append(report.Candidates, res)

		p.logger.Info("Candidate evaluated",
			zap.String("model", res.Name),
			zap.Float64("train_accuracy", res.TrainAccuracy),
			zap.Float64("test_accuracy", res.TestAccuracy),
			zap.Float64("cv_mean", cv.Mean),
			zap.Float64("cv_std", cv.Std))
		if p.metrics != nil {
			p.metrics.TrainingAccuracy.WithLabelValues(res.Name).Set(res.TestAccuracy)
		}

		// Strict comparison keeps the earlier candidate on ties.
		if res.TestAccuracy > bestScore {
			bestScore = res.TestAccuracy
			report.Best = len(report.Candidates) - 1
		}
	}

	best := report.Candidates[report.Best]
	importances := make(map[string]float64, features.Size)
	for j, name := range features.Names {
		if j < len(best.Ensemble.Importances) {
			importances[name] = best.Ensemble.Importances[j]
		}
	}

	report.Model = &ml.Model{
		Meta: ml.Metadata{
			Name:          best.Name,
			RunID:         report.RunID,
			TrainedAt:     p.clock.Now().UTC(),
			Dataset:       ds.Name,
			Samples:       ds.Len(),
			TrainAccuracy: best.TrainAccuracy,
			TestAccuracy:  best.TestAccuracy,
			CVMean:        best.CV.Mean,
			CVStd:         best.CV.Std,
			Importances:   importances,
		},
		Scaler:   scaler,
		Ensemble: best.Ensemble,
		Features: features.Names[:],
	}

	fields := []zap.Field{
		zap.String("run_id", report.RunID),
		zap.String("model", best.Name),
		zap.Float64("test_accuracy", best.TestAccuracy),
	}
	for _, name := range features.Names {
		fields = append(fields, zap.Float64("importance_"+name, importances[name]))
	}
	p.logger.Info("Best model selected", fields...)

	if p.cfg.OutputDir != "" {
		if err := ml.Save(p.cfg.OutputDir, report.Model); err != nil {
			return nil, fmt.Errorf("save model: %w", err)
		}
		p.logger.Info("Model saved", zap.String("dir", p.cfg.OutputDir))
	}

	return report, nil
}
