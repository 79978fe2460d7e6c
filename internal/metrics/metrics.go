// Package metrics exposes Prometheus collectors for the fetch pipeline.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the pipeline collectors registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	PagesFetched     *prometheus.CounterVec
	PageFailures     *prometheus.CounterVec
	DaysWritten      *prometheus.CounterVec
	DaysSkipped      *prometheus.CounterVec
	DayRetries       *prometheus.CounterVec
	DayFetchDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kline_pages_fetched_total",
				Help: "Kline pages fetched with the expected record count",
			},
			[]string{"ticker"},
		),
		PageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kline_page_failures_total",
				Help: "Kline page requests that failed, by reason",
			},
			[]string{"ticker", "reason"},
		),
		DaysWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kline_days_written_total",
				Help: "Day files written",
			},
			[]string{"ticker"},
		),
		DaysSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kline_days_skipped_total",
				Help: "Days skipped because their file already exists",
			},
			[]string{"ticker"},
		),
		DayRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kline_day_retries_total",
				Help: "Whole-day fetch restarts after a failed page",
			},
			[]string{"ticker"},
		),
		DayFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kline_day_fetch_duration_seconds",
				Help:    "Time to fetch a complete day, including retries",
				Buckets: prometheus.ExponentialBuckets(30, 2, 8),
			},
			[]string{"ticker"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes the registry at addr/metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

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
