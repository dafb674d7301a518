// Package metrics exposes Prometheus collectors for the downloader.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch attempt outcomes.
const (
	FetchOK        = "ok"
	FetchStatus    = "bad_status"
	FetchTransport = "transport_error"
	FetchExhausted = "exhausted"
)

// Month outcomes.
const (
	MonthWritten = "written"
	MonthNoData  = "no_data"
	MonthFailed  = "failed"
	MonthAborted = "aborted"
)

var (
	registry = prometheus.NewRegistry()

	fetchAttemptsTotal *prometheus.CounterVec
	fetchDuration      prometheus.Histogram
	monthsTotal        *prometheus.CounterVec
	runsTotal          *prometheus.CounterVec
	seriesLinesTotal   *prometheus.CounterVec
	rateLimitDelay     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call this function multiple
// times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogimet_fetch_attempts_total",
				Help: "Total number of page fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		fetchDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ogimet_fetch_duration_seconds",
				Help:    "Histogram of single fetch attempt latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)
		monthsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogimet_months_total",
				Help: "Total number of station-months processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		runsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogimet_runs_total",
				Help: "Total number of station runs, labeled by final state.",
			},
			[]string{"state"},
		)
		seriesLinesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogimet_series_lines_total",
				Help: "Total number of lines appended to series files, labeled by field.",
			},
			[]string{"field"},
		)
		rateLimitDelay = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ogimet_rate_limit_delay_seconds",
				Help:    "Time spent waiting for the request pacer, labeled by host.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		)
		registry.MustRegister(fetchAttemptsTotal, fetchDuration, monthsTotal, runsTotal, seriesLinesTotal, rateLimitDelay)
	})
}

// Registry returns the registry holding the downloader's collectors.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(outcome string, duration time.Duration) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		fetchDuration.Observe(duration.Seconds())
	}
}

// ObserveMonth records the outcome of one station-month.
func ObserveMonth(outcome string) {
	Init()
	monthsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a run's terminal state.
func ObserveRun(state string) {
	Init()
	runsTotal.WithLabelValues(state).Inc()
}

// AddSeriesLines counts lines appended for a field.
func AddSeriesLines(field string, n int) {
	Init()
	if n > 0 {
		seriesLinesTotal.WithLabelValues(field).Add(float64(n))
	}
}

// ObserveRateLimitDelay records time spent waiting on the pacer.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelay.WithLabelValues(host).Observe(d.Seconds())
}

// WriteTextfile dumps the collectors in the node exporter textfile format.
// An empty path disables it.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, Registry()); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
