package training

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bobby-s-dev/firerisk/internal/config"
	"github.com/bobby-s-dev/firerisk/internal/fwi"
	"github.com/bobby-s-dev/firerisk/internal/models"
)

// WeatherSource is the coordinate lookup the builder pairs samples with.
type WeatherSource interface {
	CurrentByCoordinates(ctx context.Context, lat, lon float64) (*models.Reading, error)
}

type BuilderConfig struct {
	MaxFires          int
	NegativeSamples   int
	Bounds            config.Bounds
	RequestsPerSecond float64
	Timeout           time.Duration
	Seed              int64
}

type BuildStats struct {
	FiresSampled   int
	FiresKept      int
	NegativesTried int
	NegativesKept  int
}

// Builder pairs fire detections (label 1) and random points (label 0) with
// a weather lookup each. Lookups are sequential and rate limited; a failed
// lookup drops that row.
type Builder struct {
	source  WeatherSource
	cfg     BuilderConfig
	limiter *rate.Limiter
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewBuilder(source WeatherSource, cfg BuilderConfig, clock clockwork.Clock, logger *zap.Logger) *Builder {
	return &Builder{
		source:  source,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		clock:   clock,
		logger:  logger,
	}
}

// Build returns the collected samples. It stops early only when ctx ends.
func (b *Builder) Build(ctx context.Context, fires []models.FireDetection) ([]models.Sample, BuildStats, error) {
	var stats BuildStats
	rng := rand.New(rand.NewSource(b.cfg.Seed))

	sampled := sampleFires(fires, b.cfg.MaxFires, rng)
	stats.FiresSampled = len(sampled)
	b.logger.Info("Collecting weather for fire locations", zap.Int("fires", len(sampled)))

	samples := make([]models.Sample, 0, len(sampled)+b.cfg.NegativeSamples)
	for i, fire := range sampled {
		if i > 0 && i%100 == 0 {
			b.logger.Info("Progress", zap.Int("done", i), zap.Int("total", len(sampled)))
		}
		s, ok, err := b.lookup(ctx, fire.Latitude, fire.Longitude)
		if err != nil {
			return samples, stats, err
		}
		if !ok {
			continue
		}
		s.Date = fire.AcqDate
		s.Fire = 1
		samples = append(samples, s)
		stats.FiresKept++
	}

	bounds := b.cfg.Bounds
	today := b.clock.Now().UTC().Format("2006-01-02")
	for i := 0; i < b.cfg.NegativeSamples; i++ {
		if i > 0 && i%200 == 0 {
			b.logger.Info("Progress", zap.Int("done", i), zap.Int("total", b.cfg.NegativeSamples))
		}
		lat := bounds.MinLat + rng.Float64()*(bounds.MaxLat-bounds.MinLat)
		lon := bounds.MinLon + rng.Float64()*(bounds.MaxLon-bounds.MinLon)
		stats.NegativesTried++

		s, ok, err := b.lookup(ctx, lat, lon)
		if err != nil {
			return samples, stats, err
		}
		if !ok {
			continue
		}
		s.Date = today
		samples = append(samples, s)
		stats.NegativesKept++
	}

	b.logger.Info("Dataset built",
		zap.Int("fires_kept", stats.FiresKept),
		zap.Int("negatives_kept", stats.NegativesKept),
		zap.Int("skipped", stats.FiresSampled-stats.FiresKept+stats.NegativesTried-stats.NegativesKept))

	return samples, stats, nil
}

// lookup returns ok=false for a failed call and an error only when ctx is
// done.
func (b *Builder) lookup(ctx context.Context, lat, lon float64) (models.Sample, bool, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return models.Sample{}, false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	reading, err := b.source.CurrentByCoordinates(callCtx, lat, lon)
	if err != nil || reading == nil {
		if ctx.Err() != nil {
			return models.Sample{}, false, ctx.Err()
		}
		b.logger.Debug("Skipping sample", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return models.Sample{}, false, nil
	}

	return models.Sample{
		Latitude:    lat,
		Longitude:   lon,
		Observation: reading.Observation,
		Indices:     fwi.TrainingIndices(reading.Observation),
	}, true, nil
}

// sampleFires picks up to n detections without replacement.
func sampleFires(fires []models.FireDetection, n int, rng *rand.Rand) []models.FireDetection {
	if n <= 0 || n >= len(fires) {
		n = len(fires)
	}
	perm := rng.Perm(len(fires))
	out := make([]models.FireDetection, n)
	for i := range out {
		out[i] = fires[perm[i]]
	}
	return out
}
