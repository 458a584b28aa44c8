package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/features"
	"github.com/bobby-s-dev/firerisk/internal/fwi"
	"github.com/bobby-s-dev/firerisk/internal/metrics"
	"github.com/bobby-s-dev/firerisk/internal/models"
)

var (
	ErrMissingLocation    = errors.New("location is required")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// RiskClassifier is satisfied by *ml.Model.
type RiskClassifier interface {
	Predict(v features.Vector) (int, float64, error)
	Name() string
}

type PredictorConfig struct {
	NamePolicy       FallbackPolicy
	CoordinatePolicy FallbackPolicy
}

func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		NamePolicy:       FallbackSubstitute,
		CoordinatePolicy: FallbackFail,
	}
}

// Predictor runs the serving pipeline: fetch, estimate indices, assemble,
// classify, post-process. It holds no per-request state.
type Predictor struct {
	fetcher    *WeatherFetcher
	classifier RiskClassifier
	config     PredictorConfig
	metrics    *metrics.Metrics
	clock      clockwork.Clock
	logger     *zap.Logger
}

func NewPredictor(
	fetcher *WeatherFetcher,
	classifier RiskClassifier,
	config PredictorConfig,
	m *metrics.Metrics,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Predictor {
	return &Predictor{
		fetcher:    fetcher,
		classifier: classifier,
		config:     config,
		metrics:    m,
		clock:      clock,
		logger:     logger,
	}
}

func (p *Predictor) ModelName() string {
	if p.classifier == nil {
		return ""
	}
	return p.classifier.Name()
}

// ModelLoaded asks the classifier when it can tell, as *ml.Model does.
func (p *Predictor) ModelLoaded() bool {
	if p.classifier == nil {
		return false
	}
	if l, ok := p.classifier.(interface{ Loaded() bool }); ok {
		return l.Loaded()
	}
	return true
}

func (p *Predictor) PredictByName(ctx context.Context, location string) (*models.RiskAssessment, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrMissingLocation
	}
	return p.predict(ctx, ByName(location), p.config.NamePolicy)
}

func (p *Predictor) PredictByCoordinates(ctx context.Context, lat, lon float64) (*models.RiskAssessment, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, lat, lon)
	}
	return p.predict(ctx, ByCoordinates(lat, lon), p.config.CoordinatePolicy)
}

func (p *Predictor) predict(ctx context.Context, key LookupKey, policy FallbackPolicy) (*models.RiskAssessment, error) {
	start := p.clock.Now()

	result := p.fetcher.Fetch(ctx, key)
	p.metrics.WeatherLookups.WithLabelValues(key.Kind(), result.Status.String()).Inc()

	reading, err := result.Resolve(key, policy)
	if err != nil {
		return nil, err
	}

	assessment, err := Assess(p.classifier, reading.Place, reading.Observation)
	if err != nil {
		return nil, err
	}
	assessment.Coordinates = roundCoordinates(key.Coords)
	assessment.AssessedAt = p.clock.Now().UTC()

	p.metrics.Predictions.WithLabelValues(key.Kind(), string(assessment.RiskCategory)).Inc()
	p.metrics.PredictionDuration.WithLabelValues(key.Kind()).Observe(p.clock.Since(start).Seconds())

	p.logger.Info("Risk assessed",
		zap.String("lookup", key.Kind()),
		zap.String("location", assessment.Location),
		zap.String("weather", result.Status.String()),
		zap.Int("risk_score", assessment.RiskScore),
		zap.String("risk_category", string(assessment.RiskCategory)))

	return assessment, nil
}

// Assess computes a risk assessment for obs without any I/O.
func Assess(classifier RiskClassifier, location string, obs models.Observation) (*models.RiskAssessment, error) {
	idx := fwi.Estimate(obs)
	label, probability, err := classifier.Predict(features.Assemble(idx, obs))
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	risk := ScoreRisk(probability, label, obs.Temperature)

	return &models.RiskAssessment{
		Location:     location,
		RiskScore:    risk.Score,
		RiskCategory: risk.Category,
		Prediction:   PredictionLabel(risk.Label),
		Weather: models.Observation{
			Temperature: round2(obs.Temperature),
			Humidity:    round2(obs.Humidity),
			WindSpeed:   round2(obs.WindSpeed),
			Rain:        round2(obs.Rain),
		},
		FireIndices: models.Indices{
			FFMC: round2(idx.FFMC),
			DMC:  round2(idx.DMC),
			DC:   round2(idx.DC),
			ISI:  round2(idx.ISI),
		},
		Model: classifier.Name(),
	}, nil
}

func roundCoordinates(c *models.Coordinates) *models.Coordinates {
	if c == nil {
		return nil
	}
	return &models.Coordinates{Latitude: round2(c.Latitude), Longitude: round2(c.Longitude)}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
