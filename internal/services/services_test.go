package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/features"
	"github.com/bobby-s-dev/firerisk/internal/fwi"
	"github.com/bobby-s-dev/firerisk/internal/metrics"
	"github.com/bobby-s-dev/firerisk/internal/models"
)

type stubProvider struct {
	reading *models.Reading
	err     error
	calls   int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) CurrentByName(_ context.Context, _ string) (*models.Reading, error) {
	s.calls++
	return s.reading, s.err
}

func (s *stubProvider) CurrentByCoordinates(_ context.Context, _, _ float64) (*models.Reading, error) {
	s.calls++
	return s.reading, s.err
}

type stubClassifier struct {
	label int
	p     float64
	seen  features.Vector
}

func (s *stubClassifier) Predict(v features.Vector) (int, float64, error) {
	s.seen = v
	return s.label, s.p, nil
}

func (s *stubClassifier) Name() string { return "Stub Model" }

var testNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newPredictor(t *testing.T, provider WeatherProvider, classifier RiskClassifier) (*Predictor, *metrics.Metrics) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	m := metrics.New(prometheus.NewRegistry())
	fetcher := NewWeatherFetcher(provider, clock, zap.NewNop())
	return NewPredictor(fetcher, classifier, DefaultPredictorConfig(), m, clock, zap.NewNop()), m
}

func TestScoreRisk_Categories(t *testing.T) {
	tests := []struct {
		p    float64
		want models.RiskCategory
		score int
	}{
		{0.295, models.RiskLow, 29},
		{0.305, models.RiskMedium, 30},
		{0.599, models.RiskMedium, 59},
		{0.605, models.RiskHigh, 60},
		{1.0, models.RiskHigh, 100},
		{0.0, models.RiskLow, 0},
	}
	for _, tt := range tests {
		got := ScoreRisk(tt.p, 1, 25)
		assert.Equal(t, tt.score, got.Score, "p=%v", tt.p)
		assert.Equal(t, tt.want, got.Category, "p=%v", tt.p)
	}

	assert.Equal(t, models.RiskLow, Categorize(29))
	assert.Equal(t, models.RiskMedium, Categorize(30))
	assert.Equal(t, models.RiskHigh, Categorize(60))
}

func TestScoreRisk_ColdCaps(t *testing.T) {
	for p := 0.0; p <= 1.0; p += 0.01 {
		cold := ScoreRisk(p, 1, 4.9)
		assert.LessOrEqual(t, cold.Score, ColdScoreCap)
		assert.Equal(t, 0, cold.Label)
		assert.Equal(t, models.RiskLow, cold.Category)

		cool := ScoreRisk(p, 1, 5)
		assert.LessOrEqual(t, cool.Score, CoolScoreCap)
		assert.Equal(t, 1, cool.Label)

		warm := ScoreRisk(p, 1, 10)
		assert.Equal(t, 1, warm.Label)
	}

	assert.Equal(t, models.RiskMedium, ScoreRisk(0.95, 1, 7).Category)
	assert.Equal(t, 40, ScoreRisk(0.95, 1, 7).Score)
}

func TestAssess_ColdOverridesClassifier(t *testing.T) {
	c := &stubClassifier{label: 1, p: 0.9}
	obs := models.Observation{Temperature: 2, Humidity: 40, WindSpeed: 5, Rain: 0}

	a, err := Assess(c, "Tromsø", obs)
	require.NoError(t, err)

	assert.Equal(t, 20, a.RiskScore)
	assert.Equal(t, models.RiskLow, a.RiskCategory)
	assert.Equal(t, models.LabelNoSignificant, a.Prediction)
}

func TestAssess_FeatureOrderAndRounding(t *testing.T) {
	c := &stubClassifier{label: 1, p: 0.737}
	obs := models.Observation{Temperature: 30.456, Humidity: 20.123, WindSpeed: 4, Rain: 0.5}

	a, err := Assess(c, "Seville", obs)
	require.NoError(t, err)

	assert.Equal(t, 73, a.RiskScore)
	assert.Equal(t, models.RiskHigh, a.RiskCategory)
	assert.Equal(t, models.LabelFireRisk, a.Prediction)
	assert.Equal(t, 30.46, a.Weather.Temperature)
	assert.Equal(t, 20.12, a.Weather.Humidity)
	assert.Equal(t, "Stub Model", a.Model)

	assert.Equal(t, 30.456, c.seen[4])
	assert.Equal(t, 20.123, c.seen[5])
	assert.Equal(t, 4.0, c.seen[6])
	assert.Equal(t, 0.5, c.seen[7])
	// RH 20.123 drives FFMC past its cap.
	assert.Equal(t, fwi.MaxFFMC, c.seen[0])
}

func TestPredictByName_UnconfiguredUsesDemoValues(t *testing.T) {
	p, m := newPredictor(t, nil, &stubClassifier{label: 1, p: 0.65})

	a, err := p.PredictByName(context.Background(), "Madrid, Spain")
	require.NoError(t, err)

	assert.Equal(t, "Madrid, Spain", a.Location)
	assert.Equal(t, models.DemoObservation, a.Weather)
	assert.Equal(t, 93.25, a.FireIndices.FFMC)
	assert.Nil(t, a.Coordinates)
	assert.Equal(t, testNow, a.AssessedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WeatherLookups.WithLabelValues("name", "unconfigured")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions.WithLabelValues("name", "High")))
}

func TestPredictByName_MissingLocationSkipsLookup(t *testing.T) {
	provider := &stubProvider{}
	p, _ := newPredictor(t, provider, &stubClassifier{})

	_, err := p.PredictByName(context.Background(), "   ")
	require.ErrorIs(t, err, ErrMissingLocation)
	assert.Zero(t, provider.calls)
}

func TestPredictByName_ProviderFailureFallsBack(t *testing.T) {
	provider := &stubProvider{err: errors.New("timeout")}
	p, m := newPredictor(t, provider, &stubClassifier{p: 0.1})

	a, err := p.PredictByName(context.Background(), "Lisbon")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, models.FallbackObservation, a.Weather)
	assert.Equal(t, "Lisbon", a.Location)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WeatherLookups.WithLabelValues("name", "unavailable")))
}

func TestPredictByCoordinates_UnconfiguredIsError(t *testing.T) {
	p, _ := newPredictor(t, nil, &stubClassifier{})

	_, err := p.PredictByCoordinates(context.Background(), 40.4, -3.7)
	require.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestPredictByCoordinates_ProviderFailureIsError(t *testing.T) {
	p, _ := newPredictor(t, &stubProvider{err: errors.New("HTTP 500")}, &stubClassifier{})

	_, err := p.PredictByCoordinates(context.Background(), 40.4, -3.7)
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestPredictByCoordinates_SynthesizesPlaceLabel(t *testing.T) {
	provider := &stubProvider{reading: &models.Reading{
		Observation: models.Observation{Temperature: 28, Humidity: 30, WindSpeed: 6},
	}}
	p, _ := newPredictor(t, provider, &stubClassifier{label: 1, p: 0.45})

	a, err := p.PredictByCoordinates(context.Background(), 38.5012, -9.2466)
	require.NoError(t, err)

	assert.Equal(t, "38.50, -9.25", a.Location)
	require.NotNil(t, a.Coordinates)
	assert.Equal(t, 38.5, a.Coordinates.Latitude)
	assert.Equal(t, -9.25, a.Coordinates.Longitude)
	assert.Equal(t, models.RiskMedium, a.RiskCategory)
}

func TestPredictByCoordinates_KeepsProviderPlace(t *testing.T) {
	provider := &stubProvider{reading: &models.Reading{Place: "Évora"}}
	p, _ := newPredictor(t, provider, &stubClassifier{})

	a, err := p.PredictByCoordinates(context.Background(), 38.57, -7.9)
	require.NoError(t, err)
	assert.Equal(t, "Évora", a.Location)
}

func TestPredictByCoordinates_OutOfRange(t *testing.T) {
	provider := &stubProvider{}
	p, _ := newPredictor(t, provider, &stubClassifier{})

	_, err := p.PredictByCoordinates(context.Background(), 91, 0)
	require.ErrorIs(t, err, ErrInvalidCoordinates)
	assert.Zero(t, provider.calls)
}

func TestResolve_Policies(t *testing.T) {
	key := ByCoordinates(1, 2)

	r, err := WeatherResult{Status: FetchUnconfigured}.Resolve(key, FallbackSubstitute)
	require.NoError(t, err)
	assert.Equal(t, models.DemoObservation, r.Observation)
	assert.Equal(t, "1.00, 2.00", r.Place)

	r, err = WeatherResult{Status: FetchUnavailable}.Resolve(key, FallbackSubstitute)
	require.NoError(t, err)
	assert.Equal(t, models.FallbackObservation, r.Observation)
	assert.Equal(t, "fallback", r.Source)

	_, err = WeatherResult{Status: FetchUnconfigured}.Resolve(ByName("x"), FallbackFail)
	require.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestParseFallbackPolicy(t *testing.T) {
	p, err := ParseFallbackPolicy(" Substitute ")
	require.NoError(t, err)
	assert.Equal(t, FallbackSubstitute, p)

	_, err = ParseFallbackPolicy("retry")
	require.Error(t, err)
}

func TestFetch_StampsMissingTimestamp(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	f := NewWeatherFetcher(&stubProvider{reading: &models.Reading{}}, clock, zap.NewNop())

	res := f.Fetch(context.Background(), ByName("Rome"))
	require.Equal(t, FetchSuccess, res.Status)
	assert.Equal(t, testNow, res.Reading.Timestamp)
	assert.True(t, f.Configured())
}
