package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAndExposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Predictions.WithLabelValues("name", "High").Inc()
	m.WeatherLookups.WithLabelValues("coordinates", "unavailable").Add(2)
	m.ModelLoaded.Set(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Predictions.WithLabelValues("name", "High")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WeatherLookups.WithLabelValues("coordinates", "unavailable")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `firerisk_predictions_total{category="High",lookup="name"} 1`)
	assert.Contains(t, string(body), "firerisk_model_loaded 1")
}

func TestNew_PanicsOnDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
