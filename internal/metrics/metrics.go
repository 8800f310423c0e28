// Package metrics exposes judge counters to prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "arrow"
	subsystem = "judge"
)

type Metrics struct {
	AttemptsInFlight       prometheus.Gauge
	AttemptDuration        *prometheus.HistogramVec
	Verdicts               *prometheus.CounterVec
	SetupFaults            *prometheus.CounterVec
	InfrastructureFailures *prometheus.CounterVec
	Retries                prometheus.Counter
}

// New registers the judge metrics with reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AttemptsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_in_flight",
			Help:      "Current number of judging attempts in progress.",
		}),
		AttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of judging attempts in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"state"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verdicts_total",
			Help:      "Total number of submission verdicts by code.",
		}, []string{"verdict"}),
		SetupFaults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "setup_faults_total",
			Help:      "Total number of problem setup faults (TE, TF) by kind.",
		}, []string{"kind"}),
		InfrastructureFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "infrastructure_failures_total",
			Help:      "Total number of attempts aborted by an infrastructure failure, by the stage they reached.",
		}, []string{"stage"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Total number of attempts retried after an infrastructure failure.",
		}),
	}
}

// Discard returns metrics that are not exported anywhere.
func Discard() *Metrics {
	return New(nil)
}

// ObserveAttempt records the duration of an attempt that ended in state.
func (m *Metrics) ObserveAttempt(state string, since time.Time) {
	m.AttemptDuration.WithLabelValues(state).Observe(time.Since(since).Seconds())
}

// Serve exposes the default gatherer on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

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

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server listen failed", "error", err)
	}
}
