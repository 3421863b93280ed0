// Package metrics exposes Prometheus collectors for the scrape pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesVisitedTotal    *prometheus.CounterVec
	recordsUpsertedTotal *prometheus.CounterVec
	upsertFailuresTotal  *prometheus.CounterVec
	stageRunsTotal       *prometheus.CounterVec
	activeStages         prometheus.Gauge
	visitDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		pagesVisitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscout_pages_visited_total",
				Help: "Total pages visited, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		recordsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscout_records_upserted_total",
				Help: "Total records successfully upserted, labeled by entity.",
			},
			[]string{"entity"},
		)

		upsertFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscout_upsert_failures_total",
				Help: "Total per-record upsert failures, labeled by entity.",
			},
			[]string{"entity"},
		)

		stageRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscout_stage_runs_total",
				Help: "Total stage runs, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		activeStages = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookscout_active_stages",
				Help: "Number of stages currently running.",
			},
		)

		visitDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookscout_visit_duration_seconds",
				Help:    "Histogram of page visit latencies, labeled by stage.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a raw URL, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveVisit records one page visit.
func ObserveVisit(stage, outcome string, duration time.Duration) {
	pagesVisitedTotal.WithLabelValues(stage, outcome).Inc()
	visitDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveUpsert increments the upsert counter for the given entity.
func ObserveUpsert(entity string) {
	recordsUpsertedTotal.WithLabelValues(entity).Inc()
}

// ObserveUpsertFailure increments the upsert failure counter.
func ObserveUpsertFailure(entity string) {
	upsertFailuresTotal.WithLabelValues(entity).Inc()
}

// ObserveStageRun increments the stage run counter for the given outcome.
func ObserveStageRun(stage, outcome string) {
	stageRunsTotal.WithLabelValues(stage, outcome).Inc()
}

// IncActiveStages increments the running-stages gauge.
func IncActiveStages() {
	activeStages.Inc()
}

// DecActiveStages decrements the running-stages gauge.
func DecActiveStages() {
	activeStages.Dec()
}
