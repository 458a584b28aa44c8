package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bobby-s-dev/firerisk/internal/features"
	"github.com/bobby-s-dev/firerisk/internal/metrics"
	"github.com/bobby-s-dev/firerisk/internal/ml"
	"github.com/bobby-s-dev/firerisk/internal/models"
	"github.com/bobby-s-dev/firerisk/internal/services"
)

type fixedClassifier struct{ p float64 }

func (f fixedClassifier) Predict(features.Vector) (int, float64, error) {
	label := 0
	if f.p > 0.5 {
		label = 1
	}
	return label, f.p, nil
}

func (fixedClassifier) Name() string { return "Random Forest" }

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) CurrentByName(context.Context, string) (*models.Reading, error) {
	p.calls++
	return nil, p.err
}

func (p *countingProvider) CurrentByCoordinates(context.Context, float64, float64) (*models.Reading, error) {
	p.calls++
	return nil, p.err
}

func newApp(t *testing.T, provider services.WeatherProvider) *fiber.App {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	fetcher := services.NewWeatherFetcher(provider, clock, zap.NewNop())
	predictor := services.NewPredictor(fetcher, fixedClassifier{p: 0.72}, services.DefaultPredictorConfig(),
		metrics.New(reg), clock, zap.NewNop())

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, NewHandler(predictor, zap.NewNop()), RouteConfig{
		AllowOrigins: "*",
		Metrics:      metrics.Handler(reg),
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestPredict_DemoValuesWithoutCredential(t *testing.T) {
	app := newApp(t, nil)

	code, body := do(t, app, "POST", "/api/predict", `{"location":"Madrid, Spain"}`)
	require.Equal(t, fiber.StatusOK, code)

	assert.Equal(t, "Madrid, Spain", body["location"])
	assert.Equal(t, 72.0, body["risk_score"])
	assert.Equal(t, "High", body["risk_category"])
	assert.Equal(t, "Fire Risk", body["prediction"])
	assert.Equal(t, "Random Forest", body["model"])

	weather := body["weather"].(map[string]any)
	assert.Equal(t, 22.0, weather["temperature"])
	assert.Equal(t, 45.0, weather["humidity"])
	assert.Equal(t, 3.5, weather["wind_speed"])
	assert.Equal(t, 0.0, weather["rainfall"])

	indices := body["fire_indices"].(map[string]any)
	assert.Equal(t, 93.25, indices["FFMC"])
	assert.NotContains(t, body, "coordinates")
}

func TestPredict_MissingLocation(t *testing.T) {
	provider := &countingProvider{}
	app := newApp(t, provider)

	code, body := do(t, app, "POST", "/api/predict", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "Location is required", body["error"])
	assert.Zero(t, provider.calls)

	code, _ = do(t, app, "POST", "/api/predict", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestPredictCoordinates_NotConfigured(t *testing.T) {
	app := newApp(t, nil)

	code, body := do(t, app, "POST", "/api/predict/coordinates", `{"latitude":40.4,"longitude":-3.7}`)
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Equal(t, "configuration_error", body["type"])
}

func TestPredictCoordinates_ProviderFailure(t *testing.T) {
	app := newApp(t, &countingProvider{err: errors.New("HTTP 503")})

	code, body := do(t, app, "POST", "/api/predict/coordinates", `{"latitude":40.4,"longitude":-3.7}`)
	assert.Equal(t, fiber.StatusBadGateway, code)
	assert.Contains(t, body["details"], "HTTP 503")
}

func TestPredictCoordinates_Validation(t *testing.T) {
	app := newApp(t, nil)

	code, body := do(t, app, "POST", "/api/predict/coordinates", `{"latitude":40.4}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "Latitude and longitude are required", body["error"])

	code, _ = do(t, app, "POST", "/api/predict/coordinates", `{"latitude":140,"longitude":0}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestNameFallbackOnProviderFailure(t *testing.T) {
	app := newApp(t, &countingProvider{err: errors.New("timeout")})

	code, body := do(t, app, "POST", "/api/predict", `{"location":"Porto"}`)
	require.Equal(t, fiber.StatusOK, code)

	weather := body["weather"].(map[string]any)
	assert.Equal(t, 20.0, weather["temperature"])
	assert.Equal(t, 50.0, weather["humidity"])
	assert.Equal(t, 3.0, weather["wind_speed"])
}

func TestHealthIndexAndMetrics(t *testing.T) {
	app := newApp(t, nil)

	code, body := do(t, app, "GET", "/api/health", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, "Random Forest", body["model"])

	code, body = do(t, app, "GET", "/", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body, "endpoints")

	do(t, app, "POST", "/api/predict", `{"location":"Madrid"}`)
	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), `firerisk_predictions_total{category="High",lookup="name"} 1`)

	code, body = do(t, app, "GET", "/api/nothing", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, "Endpoint not found", body["error"])
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	code, body := do(t, app, "GET", "/boom", "")
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.Equal(t, "boom", body["error"])
	assert.Equal(t, false, body["success"])

	code, _ = do(t, app, "GET", "/teapot", "")
	assert.Equal(t, fiber.StatusTeapot, code)
}

func TestHealth_ModelNotLoaded(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := services.NewWeatherFetcher(nil, clock, zap.NewNop())
	predictor := services.NewPredictor(fetcher, &ml.Model{}, services.DefaultPredictorConfig(),
		metrics.New(prometheus.NewRegistry()), clock, zap.NewNop())

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, NewHandler(predictor, zap.NewNop()), RouteConfig{AllowOrigins: "*"})

	code, body := do(t, app, "GET", "/api/health", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, false, body["model_loaded"])
}
