// Package metrics implements usecase.MetricsPort with Prometheus
// counters and gauges, and optionally serves them over HTTP
// (SPEC_FULL.md §11 domain-stack wiring for prometheus/client_golang).
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Adapter implements usecase.MetricsPort.
type Adapter struct {
	logger *slog.Logger

	jobsRan      *prometheus.CounterVec
	jobsSkipped  *prometheus.CounterVec
	jobsFailed   *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	lastRunGauge *prometheus.GaugeVec
	registry     *prometheus.Registry
}

// New creates an Adapter registered against a fresh registry.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		panic("metrics adapter requires logger")
	}
	registry := prometheus.NewRegistry()

	a := &Adapter{
		logger:   logger,
		registry: registry,
		jobsRan: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapback",
			Name:      "jobs_ran_total",
			Help:      "Number of backup jobs that completed without error, by host and directory.",
		}, []string{"host", "directory"}),
		jobsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapback",
			Name:      "jobs_skipped_total",
			Help:      "Number of backup jobs skipped by the schedule gate, by host and directory.",
		}, []string{"host", "directory"}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapback",
			Name:      "jobs_failed_total",
			Help:      "Number of backup jobs that ended in error, by host and directory.",
		}, []string{"host", "directory"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapback",
			Name:      "bytes_transferred_total",
			Help:      "Cumulative bytes read from the transcript's byte accounting, by host.",
		}, []string{"host"}),
		lastRunGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "snapback",
			Name:      "last_run_unix_seconds",
			Help:      "Unix timestamp of the last completed run, by host and directory.",
		}, []string{"host", "directory"}),
	}

	registry.MustRegister(a.jobsRan, a.jobsSkipped, a.jobsFailed, a.bytesTotal, a.lastRunGauge)
	return a
}

// JobRan records a successful job completion.
func (a *Adapter) JobRan(host, directory string) {
	a.jobsRan.WithLabelValues(host, directory).Inc()
	a.lastRunGauge.WithLabelValues(host, directory).Set(float64(time.Now().Unix()))
}

// JobSkipped records a gate-skipped job.
func (a *Adapter) JobSkipped(host, directory string) {
	a.jobsSkipped.WithLabelValues(host, directory).Inc()
}

// JobFailed records a job-fatal error.
func (a *Adapter) JobFailed(host, directory string) {
	a.jobsFailed.WithLabelValues(host, directory).Inc()
}

// BytesTransferred accumulates bytes read for host.
func (a *Adapter) BytesTransferred(host string, n int64) {
	a.bytesTotal.WithLabelValues(host).Add(float64(n))
}

// Handler returns the HTTP handler serving the metrics in Prometheus
// exposition format, for wiring into an http.Server by the caller.
func (a *Adapter) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Push sends the current registry to a Prometheus Pushgateway at url
// under job. This is how the one-shot snapback CLI exposes its
// per-run counters: the process exits before anything could ever
// scrape it, so pushing is the only way those counters leave the
// process alive. A zero-value url is a no-op.
func (a *Adapter) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(a.registry).PushContext(ctx)
}

// Serve starts a blocking HTTP server exposing /metrics on addr until
// ctx is cancelled. A zero-value addr disables serving entirely.
func (a *Adapter) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
