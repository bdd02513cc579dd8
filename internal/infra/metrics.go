package infra

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

const metricsNamespace = "filewatchd"

// Metrics records sweep outcomes as Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	sweeps         prometheus.Counter
	filesDeleted   prometheus.Counter
	bytesReclaimed prometheus.Counter
	sweepErrors    *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	lastSweep      prometheus.Gauge
}

// NewMetrics creates the sweep metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sweeps_total",
			Help:      "Number of completed retention sweeps.",
		}),
		filesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "files_deleted_total",
			Help:      "Number of expired files deleted.",
		}),
		bytesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_reclaimed_total",
			Help:      "Total size of deleted files in bytes.",
		}),
		sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_errors_total",
			Help:      "Failures encountered during sweeps by operation.",
		}, []string{"op"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall-clock duration of a sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		lastSweep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time at which the last sweep started.",
		}),
	}

	m.registry.MustRegister(
		m.sweeps,
		m.filesDeleted,
		m.bytesReclaimed,
		m.sweepErrors,
		m.sweepDuration,
		m.lastSweep,
	)
	return m
}

// ObserveSweep records one finished sweep. Dry runs delete nothing and
// are not counted as deletions.
func (m *Metrics) ObserveSweep(result domain.SweepResult) {
	m.sweeps.Inc()
	if !result.DryRun {
		m.filesDeleted.Add(float64(len(result.Deleted)))
		m.bytesReclaimed.Add(float64(result.BytesReclaimed))
	}
	for _, e := range result.Errors {
		m.sweepErrors.WithLabelValues(string(e.Op)).Inc()
	}
	m.sweepDuration.Observe(result.Duration.Seconds())
	m.lastSweep.Set(float64(result.StartedAt.Unix()))
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Ensure Metrics implements domain.SweepRecorder.
var _ domain.SweepRecorder = (*Metrics)(nil)
