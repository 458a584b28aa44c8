package training

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/bobby-s-dev/firerisk/internal/config"
	"github.com/bobby-s-dev/firerisk/internal/fwi"
	"github.com/bobby-s-dev/firerisk/internal/metrics"
	"github.com/bobby-s-dev/firerisk/internal/ml"
	"github.com/bobby-s-dev/firerisk/internal/models"
)

const uciSample = `X,Y,month,day,FFMC,DMC,DC,ISI,temp,RH,wind,rain,area
7,5,mar,fri,86.2,26.2,94.3,5.1,8.2,51,6.7,0,0
7,4,oct,tue,90.6,35.4,669.1,6.7,18,33,0.9,0,0
8,6,aug,sat,92.3,85.3,488,14.7,22.2,29,5.4,0,6.44
`

func TestReadCSV_UCILayout(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(uciSample), "forestfires.csv")
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []int{0, 0, 1}, ds.Y)
	assert.Equal(t, 1, ds.Positives())
	assert.Equal(t, []float64{86.2, 26.2, 94.3, 5.1, 8.2, 51, 6.7, 0}, ds.X[0])
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("FFMC,DMC,DC,ISI,temp,RH,wind\n1,2,3,4,5,6,7\n"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"rain"`)

	_, err = ReadCSV(strings.NewReader("FFMC,DMC,DC,ISI,temp,RH,wind,rain\n1,2,3,4,5,6,7,8\n"), "x")
	require.ErrorIs(t, err, ErrNoLabelColumn)

	_, err = ReadCSV(strings.NewReader("FFMC,DMC,DC,ISI,temp,RH,wind,rain,fire\n"), "x")
	require.Error(t, err)
}

func sampleRows() []models.Sample {
	obs := []models.Observation{
		{Temperature: 31, Humidity: 20, WindSpeed: 5, Rain: 0},
		{Temperature: 12, Humidity: 85, WindSpeed: 2, Rain: 1.2},
	}
	return []models.Sample{
		{Latitude: 38.1, Longitude: -8.2, Date: "2023-07-15", Observation: obs[0], Indices: fwi.TrainingIndices(obs[0]), Fire: 1},
		{Latitude: 60.5, Longitude: 10.25, Date: "2025-06-01", Observation: obs[1], Indices: fwi.TrainingIndices(obs[1]), Fire: 0},
	}
}

func TestWriteSamples_ReadableAsDataset(t *testing.T) {
	samples := sampleRows()

	var buf bytes.Buffer
	require.NoError(t, WriteSamples(&buf, samples))
	assert.True(t, strings.HasPrefix(buf.String(), "latitude,longitude,date,temp,RH,wind,rain,FFMC,DMC,DC,ISI,fire\n"))

	ds, err := ReadCSV(&buf, "custom")
	require.NoError(t, err)

	want := FromSamples("custom", samples)
	assert.Equal(t, want.X, ds.X)
	assert.Equal(t, want.Y, ds.Y)
}

func TestFiresFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "fires.csv")
	fires := []models.FireDetection{
		{Latitude: 40.1, Longitude: -7.5, AcqDate: "2023-07-15", Brightness: 320.4, Confidence: 85},
		{Latitude: 37.9, Longitude: 23.1, AcqDate: "2023-08-01", Brightness: 331, Confidence: 100},
	}
	require.NoError(t, SaveFires(path, fires))

	got, err := LoadFires(path)
	require.NoError(t, err)
	assert.Equal(t, fires, got)
}

func TestSQLStore_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, "sqlite3", filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	defer store.Close()

	samples := sampleRows()
	require.NoError(t, store.Insert(ctx, "run-a", samples[:1]))
	require.NoError(t, store.Insert(ctx, "run-b", samples[1:]))

	runB, err := store.Samples(ctx, "run-b")
	require.NoError(t, err)
	require.Len(t, runB, 1)
	assert.Equal(t, samples[1], runB[0])

	all, err := store.Samples(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, samples, all)

	ds, err := store.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, ds.Y)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), "postgres", "x")
	require.Error(t, err)
}

type flakySource struct {
	calls atomic.Int32
	every int32
}

func (f *flakySource) CurrentByCoordinates(_ context.Context, lat, lon float64) (*models.Reading, error) {
	n := f.calls.Add(1)
	if f.every > 0 && n%f.every == 0 {
		return nil, errors.New("HTTP 429")
	}
	return &models.Reading{Observation: models.Observation{Temperature: lat / 2, Humidity: 40, WindSpeed: 4}}, nil
}

func testBuilderConfig() BuilderConfig {
	return BuilderConfig{
		MaxFires:          3,
		NegativeSamples:   4,
		Bounds:            config.Bounds{MinLat: 35, MaxLat: 71, MinLon: -25, MaxLon: 45},
		RequestsPerSecond: 1000,
		Timeout:           time.Second,
		Seed:              42,
	}
}

func TestBuilder_SkipsFailedLookups(t *testing.T) {
	fires := []models.FireDetection{
		{Latitude: 40, Longitude: -8, AcqDate: "2023-07-01"},
		{Latitude: 41, Longitude: -7, AcqDate: "2023-07-15"},
		{Latitude: 42, Longitude: -6, AcqDate: "2023-08-01"},
		{Latitude: 43, Longitude: -5, AcqDate: "2023-08-15"},
		{Latitude: 44, Longitude: -4, AcqDate: "2023-09-01"},
	}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	source := &flakySource{every: 3}
	b := NewBuilder(source, testBuilderConfig(), clock, zaptest.NewLogger(t))

	samples, stats, err := b.Build(context.Background(), fires)
	require.NoError(t, err)

	assert.Equal(t, int32(7), source.calls.Load())
	assert.Equal(t, 3, stats.FiresSampled)
	assert.Equal(t, 2, stats.FiresKept)
	assert.Equal(t, 4, stats.NegativesTried)
	assert.Equal(t, 3, stats.NegativesKept)
	require.Len(t, samples, 5)

	for _, s := range samples {
		assert.Equal(t, fwi.TrainingIndices(s.Observation), s.Indices)
		if s.Fire == 1 {
			assert.Contains(t, []string{"2023-07-01", "2023-07-15", "2023-08-01", "2023-08-15", "2023-09-01"}, s.Date)
			continue
		}
		assert.Equal(t, "2025-06-01", s.Date)
		assert.GreaterOrEqual(t, s.Latitude, 35.0)
		assert.Less(t, s.Latitude, 71.0)
		assert.GreaterOrEqual(t, s.Longitude, -25.0)
		assert.Less(t, s.Longitude, 45.0)
	}
}

func TestBuilder_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(&flakySource{}, testBuilderConfig(), clockwork.NewFakeClock(), zap.NewNop())
	_, _, err := b.Build(ctx, []models.FireDetection{{Latitude: 40, Longitude: 0}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSampleFires_Reproducible(t *testing.T) {
	fires := make([]models.FireDetection, 50)
	for i := range fires {
		fires[i].Latitude = float64(i)
	}

	a := sampleFires(fires, 10, rand.New(rand.NewSource(42)))
	b := sampleFires(fires, 10, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
	assert.Len(t, a, 10)
	assert.Len(t, sampleFires(fires, 0, rand.New(rand.NewSource(1))), 50)
}

// syntheticDataset has fire driven by low humidity and high temperature.
func syntheticDataset(n int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]models.Sample, n)
	for i := range samples {
		obs := models.Observation{
			Temperature: 5 + rng.Float64()*35,
			Humidity:    10 + rng.Float64()*85,
			WindSpeed:   rng.Float64() * 10,
			Rain:        0,
		}
		fire := 0
		if obs.Temperature-obs.Humidity/2 > 5 {
			fire = 1
		}
		samples[i] = models.Sample{Observation: obs, Indices: fwi.TrainingIndices(obs), Fire: fire}
	}
	return FromSamples("synthetic", samples)
}

func smallTrainers() []ml.Trainer {
	forest := ml.DefaultForestParams()
	forest.NEstimators = 20
	boosting := ml.DefaultBoostingParams()
	boosting.NEstimators = 20
	boosting.MaxDepth = 3
	xgb := ml.DefaultXGBoostParams()
	xgb.NEstimators = 20
	xgb.MaxDepth = 3
	return DefaultTrainers(forest, boosting, xgb)
}

func TestPipeline_TrainsSelectsAndSaves(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	now := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)

	p := NewPipeline(PipelineConfig{Seed: 42, TestSize: 0.2, CVFolds: 3, OutputDir: dir},
		smallTrainers(), m, clockwork.NewFakeClockAt(now), zaptest.NewLogger(t))

	report, err := p.Run(context.Background(), syntheticDataset(300, 7))
	require.NoError(t, err)

	require.Len(t, report.Candidates, 3)
	assert.Equal(t, []string{"Random Forest", "Gradient Boosting", "XGBoost"},
		[]string{report.Candidates[0].Name, report.Candidates[1].Name, report.Candidates[2].Name})

	best := report.Candidates[report.Best]
	for _, c := range report.Candidates {
		assert.LessOrEqual(t, c.TestAccuracy, best.TestAccuracy)
		assert.Len(t, c.CV.Scores, 3)
	}
	assert.Greater(t, best.TestAccuracy, 0.8)

	loaded, err := ml.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, best.Name, loaded.Name())
	assert.Equal(t, report.RunID, loaded.Meta.RunID)
	assert.Equal(t, now, loaded.Meta.TrainedAt)
	assert.Equal(t, 300, loaded.Meta.Samples)
	assert.Len(t, loaded.Meta.Importances, 8)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("success")))
}

type renamed struct {
	ml.Trainer
	name string
}

func (r renamed) Name() string { return r.name }

func TestPipeline_TieKeepsFirstCandidate(t *testing.T) {
	base := smallTrainers()[0]
	p := NewPipeline(PipelineConfig{Seed: 42, TestSize: 0.2, CVFolds: 3},
		[]ml.Trainer{renamed{base, "first"}, renamed{base, "second"}}, nil, clockwork.NewFakeClock(), zap.NewNop())

	report, err := p.Run(context.Background(), syntheticDataset(200, 3))
	require.NoError(t, err)

	require.Equal(t, report.Candidates[0].TestAccuracy, report.Candidates[1].TestAccuracy)
	assert.Equal(t, 0, report.Best)
	assert.Equal(t, "first", report.Model.Name())
}

func TestPipeline_ScalerUsesTrainPartitionOnly(t *testing.T) {
	ds := syntheticDataset(200, 11)
	p := NewPipeline(PipelineConfig{Seed: 42, TestSize: 0.2, CVFolds: 3}, smallTrainers()[:1], nil,
		clockwork.NewFakeClock(), zap.NewNop())

	first, err := p.Run(context.Background(), ds)
	require.NoError(t, err)

	_, testIdx, err := ml.StratifiedSplit(ds.Y, 0.2, 42)
	require.NoError(t, err)
	for _, i := range testIdx {
		for j := range ds.X[i] {
			ds.X[i][j] *= 1000
		}
	}

	second, err := p.Run(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, first.Model.Scaler.Mean, second.Model.Scaler.Mean)
	assert.Equal(t, first.Model.Scaler.Variance, second.Model.Scaler.Variance)
}
