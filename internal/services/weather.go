package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/models"
)

var (
	// ErrProviderNotConfigured means no provider credential is set.
	ErrProviderNotConfigured = errors.New("weather provider not configured")

	// ErrProviderUnavailable means the provider call failed.
	ErrProviderUnavailable = errors.New("weather provider unavailable")
)

// WeatherProvider is implemented by the clients in pkg/client.
type WeatherProvider interface {
	Name() string
	CurrentByName(ctx context.Context, name string) (*models.Reading, error)
	CurrentByCoordinates(ctx context.Context, lat, lon float64) (*models.Reading, error)
}

// LookupKey selects a weather lookup by place name or by coordinates.
// Exactly one of Name and Coords is set.
type LookupKey struct {
	Name   string
	Coords *models.Coordinates
}

func ByName(name string) LookupKey {
	return LookupKey{Name: name}
}

func ByCoordinates(lat, lon float64) LookupKey {
	return LookupKey{Coords: &models.Coordinates{Latitude: lat, Longitude: lon}}
}

// Kind is used as a log field and metric label.
func (k LookupKey) Kind() string {
	if k.Coords != nil {
		return "coordinates"
	}
	return "name"
}

func (k LookupKey) String() string {
	if k.Coords != nil {
		return k.Coords.Label()
	}
	return k.Name
}

type FetchStatus int

const (
	FetchSuccess FetchStatus = iota
	FetchUnavailable
	FetchUnconfigured
)

func (s FetchStatus) String() string {
	switch s {
	case FetchSuccess:
		return "success"
	case FetchUnavailable:
		return "unavailable"
	case FetchUnconfigured:
		return "unconfigured"
	}
	return fmt.Sprintf("FetchStatus(%d)", int(s))
}

// WeatherResult is the outcome of one lookup. Reading is set only on
// success; Err is set only when the provider failed.
type WeatherResult struct {
	Status  FetchStatus
	Reading *models.Reading
	Err     error
}

// FallbackPolicy decides how a caller treats a lookup that did not succeed.
type FallbackPolicy string

const (
	// FallbackSubstitute serves demo values when unconfigured and fallback
	// values when the provider fails.
	FallbackSubstitute FallbackPolicy = "substitute"
	// FallbackFail surfaces both cases as errors.
	FallbackFail FallbackPolicy = "fail"
)

func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FallbackSubstitute, FallbackFail:
		return p, nil
	}
	return "", fmt.Errorf("unknown fallback policy %q", s)
}

// Resolve applies policy to r and returns the reading to predict on. The
// returned reading always carries a place label.
func (r WeatherResult) Resolve(key LookupKey, policy FallbackPolicy) (*models.Reading, error) {
	switch r.Status {
	case FetchSuccess:
		reading := *r.Reading
		if key.Coords != nil {
			if reading.Place == "" {
				reading.Place = key.Coords.Label()
			}
			reading.Coordinates = key.Coords
		} else {
			reading.Place = key.Name
		}
		return &reading, nil

	case FetchUnconfigured:
		if policy == FallbackFail {
			return nil, ErrProviderNotConfigured
		}
		return substitute(key, models.DemoObservation, "demo"), nil

	default:
		if policy == FallbackFail {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, r.Err)
		}
		return substitute(key, models.FallbackObservation, "fallback"), nil
	}
}

func substitute(key LookupKey, obs models.Observation, source string) *models.Reading {
	return &models.Reading{
		Place:       key.String(),
		Coordinates: key.Coords,
		Observation: obs,
		Source:      source,
	}
}

// WeatherFetcher performs one provider lookup per call. It never retries and
// never substitutes data itself; see WeatherResult.Resolve.
type WeatherFetcher struct {
	provider WeatherProvider
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewWeatherFetcher returns a fetcher over provider. A nil provider means no
// credential is configured and every lookup reports FetchUnconfigured.
func NewWeatherFetcher(provider WeatherProvider, clock clockwork.Clock, logger *zap.Logger) *WeatherFetcher {
	return &WeatherFetcher{
		provider: provider,
		clock:    clock,
		logger:   logger,
	}
}

func (f *WeatherFetcher) Configured() bool {
	return f.provider != nil
}

func (f *WeatherFetcher) Fetch(ctx context.Context, key LookupKey) WeatherResult {
	if f.provider == nil {
		return WeatherResult{Status: FetchUnconfigured}
	}

	var (
		reading *models.Reading
		err     error
	)
	if key.Coords != nil {
		reading, err = f.provider.CurrentByCoordinates(ctx, key.Coords.Latitude, key.Coords.Longitude)
	} else {
		reading, err = f.provider.CurrentByName(ctx, key.Name)
	}
	if err == nil && reading == nil {
		err = errors.New("provider returned no reading")
	}
	if err != nil {
		f.logger.Warn("Weather lookup failed",
			zap.String("provider", f.provider.Name()),
			zap.String("lookup", key.Kind()),
			zap.String("key", key.String()),
			zap.Error(err))
		return WeatherResult{Status: FetchUnavailable, Err: err}
	}

	if reading.Timestamp.IsZero() {
		reading.Timestamp = f.clock.Now().UTC()
	}
	return WeatherResult{Status: FetchSuccess, Reading: reading}
}
