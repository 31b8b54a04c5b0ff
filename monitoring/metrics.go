package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forecast_engine"

// Metrics bundles every Prometheus collector of the engine on a dedicated
// registry, so tests and embedded uses never collide with the global one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	fitsTotal        *prometheus.CounterVec
	fitDuration      prometheus.Histogram
	predictionsTotal *prometheus.CounterVec
	forecastRows     prometheus.Counter
	crossValidations *prometheus.CounterVec
	modelsCached     prometheus.Gauge
}

// New creates and registers all collectors. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		fitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      "Model fit attempts, by outcome.",
		}, []string{"outcome"}),
		fitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Wall time of model fits.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		predictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predict calls, by outcome.",
		}, []string{"outcome"}),
		forecastRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_rows_total",
			Help:      "Forecast rows produced by successful predict calls.",
		}),
		crossValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cross_validations_total",
			Help:      "Cross-validation runs, by outcome.",
		}, []string{"outcome"}),
		modelsCached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_cached",
			Help:      "Models currently listed in the registry.",
		}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.fitsTotal,
		m.fitDuration,
		m.predictionsTotal,
		m.forecastRows,
		m.crossValidations,
		m.modelsCached,
	)
	return m
}

// Registry exposes the underlying registry for embedding.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// HTTPHandler serves the metrics endpoint for this registry only.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordFit records one fit attempt and its duration.
func (m *Metrics) RecordFit(err error, elapsed time.Duration) {
	m.fitsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err == nil {
		m.fitDuration.Observe(elapsed.Seconds())
	}
}

// RecordPrediction records one predict call and the rows it produced.
func (m *Metrics) RecordPrediction(err error, rows int) {
	m.predictionsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err == nil {
		m.forecastRows.Add(float64(rows))
	}
}

// RecordCrossValidation records one cross-validation run.
func (m *Metrics) RecordCrossValidation(err error) {
	m.crossValidations.WithLabelValues(outcomeLabel(err)).Inc()
}

// SetModelsCached tracks the registry size reported by the last listing.
func (m *Metrics) SetModelsCached(n int) {
	m.modelsCached.Set(float64(n))
}
