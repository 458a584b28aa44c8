package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "firerisk"

// Metrics holds the Prometheus collectors for serving and training.
type Metrics struct {
	Predictions        *prometheus.CounterVec   // labels: lookup={name,coordinates}, category={Low,Medium,High}
	WeatherLookups     *prometheus.CounterVec   // labels: lookup, outcome={success,unavailable,unconfigured}
	PredictionDuration *prometheus.HistogramVec // labels: lookup
	ModelLoaded        prometheus.Gauge

	// Training metrics.
	TrainingRuns     *prometheus.CounterVec // labels: outcome={success,error}
	TrainingAccuracy *prometheus.GaugeVec   // labels: model
}

// New creates the collectors and registers them with reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Risk predictions served by lookup kind and risk category.",
		}, []string{"lookup", "category"}),
		WeatherLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_lookups_total",
			Help:      "Weather provider lookups by lookup kind and outcome.",
		}, []string{"lookup", "outcome"}),
		PredictionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "End-to-end prediction latency including the weather lookup.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"lookup"}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when a trained model is loaded.",
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training pipeline runs by outcome.",
		}, []string{"outcome"}),
		TrainingAccuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_test_accuracy",
			Help:      "Held-out accuracy of each candidate in the latest run.",
		}, []string{"model"}),
	}

	reg.MustRegister(
		m.Predictions,
		m.WeatherLookups,
		m.PredictionDuration,
		m.ModelLoaded,
		m.TrainingRuns,
		m.TrainingAccuracy,
	)

	return m
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
