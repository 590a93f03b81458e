// Package metrics exposes pipeline instrumentation in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics of the classifier.
type Metrics struct {
	registry *prometheus.Registry

	// Stage metrics
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// Prediction metrics
	Predictions        *prometheus.CounterVec
	PredictionDuration prometheus.Histogram

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New creates all metrics on a private registry, so several pipelines (and
// tests) can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sonido_insect_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonido_insect_stage_failures_total",
			Help: "Pipeline failures by stage and error kind",
		}, []string{"stage", "kind"}),

		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonido_insect_predictions_total",
			Help: "Completed predictions by label",
		}, []string{"label"}),
		PredictionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sonido_insect_prediction_duration_seconds",
			Help:    "End-to-end prediction latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonido_insect_cache_hits_total",
			Help: "Predictions served from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonido_insect_cache_misses_total",
			Help: "Cache lookups that ran the full pipeline",
		}),
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStage observes the duration of one stage run.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordFailure counts a failed stage.
func (m *Metrics) RecordFailure(stage, kind string) {
	m.StageFailures.WithLabelValues(stage, kind).Inc()
}

// RecordPrediction counts a completed prediction and its latency.
func (m *Metrics) RecordPrediction(label string, d time.Duration) {
	m.Predictions.WithLabelValues(label).Inc()
	m.PredictionDuration.Observe(d.Seconds())
}

// RecordCache counts a cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
