package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	ProviderOpenWeather = "openweathermap"
	ProviderOpenMeteo   = "openmeteo"
)

type Config struct {
	Server struct {
		Port             string
		ReadTimeout      time.Duration
		WriteTimeout     time.Duration
		LogLevel         string
		CORSAllowOrigins string
	}

	Weather struct {
		Provider              string
		APIKey                string
		OpenWeatherURL        string
		OpenMeteoURL          string
		OpenMeteoGeocodingURL string
		Timeout               time.Duration
		NameFallback          string
		CoordinateFallback    string
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Model struct {
		Dir string
	}
}

// LoadConfig reads .env (if present) and the process environment. All
// malformed values are reported together.
func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("No .env file found, using environment variables")
	}

	cfg := &Config{}
	p := &parser{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "5001")
	cfg.Server.ReadTimeout = p.duration("FIBER_READ_TIMEOUT", "10s")
	cfg.Server.WriteTimeout = p.duration("FIBER_WRITE_TIMEOUT", "10s")
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.Server.CORSAllowOrigins = getEnv("CORS_ALLOW_ORIGINS", "*")

	// Weather provider configuration
	cfg.Weather.Provider = strings.ToLower(getEnv("WEATHER_PROVIDER", ProviderOpenWeather))
	cfg.Weather.APIKey = getEnv("WEATHER_API_KEY", "")
	cfg.Weather.OpenWeatherURL = getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5")
	cfg.Weather.OpenMeteoURL = getEnv("OPENMETEO_URL", "https://api.open-meteo.com/v1")
	cfg.Weather.OpenMeteoGeocodingURL = getEnv("OPENMETEO_GEOCODING_URL", "https://geocoding-api.open-meteo.com/v1")
	cfg.Weather.Timeout = p.duration("WEATHER_TIMEOUT", "5s")
	cfg.Weather.NameFallback = strings.ToLower(getEnv("NAME_FALLBACK", "substitute"))
	cfg.Weather.CoordinateFallback = strings.ToLower(getEnv("COORDINATE_FALLBACK", "fail"))

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = p.integer("CIRCUIT_BREAKER_THRESHOLD", "5")
	cfg.CircuitBreaker.Timeout = p.duration("CIRCUIT_BREAKER_TIMEOUT", "30s")

	cfg.Model.Dir = getEnv("MODEL_DIR", "models")

	if err := errors.Join(append(p.errs, cfg.validate()...)...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProviderConfigured reports whether the selected provider can be called.
// Open-Meteo needs no key.
func (c *Config) ProviderConfigured() bool {
	return c.Weather.Provider == ProviderOpenMeteo || c.Weather.APIKey != ""
}

func (c *Config) validate() []error {
	var errs []error
	switch c.Weather.Provider {
	case ProviderOpenWeather, ProviderOpenMeteo:
	default:
		errs = append(errs, fmt.Errorf("WEATHER_PROVIDER: unknown provider %q", c.Weather.Provider))
	}
	for key, v := range map[string]string{
		"NAME_FALLBACK":       c.Weather.NameFallback,
		"COORDINATE_FALLBACK": c.Weather.CoordinateFallback,
	} {
		if v != "substitute" && v != "fail" {
			errs = append(errs, fmt.Errorf("%s: must be substitute or fail, got %q", key, v))
		}
	}
	if c.Weather.Timeout <= 0 {
		errs = append(errs, errors.New("WEATHER_TIMEOUT: must be positive"))
	}
	if c.CircuitBreaker.Threshold <= 0 {
		errs = append(errs, errors.New("CIRCUIT_BREAKER_THRESHOLD: must be positive"))
	}
	return errs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects parse failures so one bad variable does not hide the next.
type parser struct {
	errs []error
}

func (p *parser) duration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	return duration
}

func (p *parser) integer(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	return intValue
}
