// Package metrics exposes Prometheus collectors for the article pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal   *prometheus.CounterVec
	fetchOutcomesTotal   *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	importItemsTotal     *prometheus.CounterVec
	searchQueriesTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdock_fetch_attempts_total",
				Help: "Total fetch attempts, labeled by access method.",
			},
			[]string{"method"},
		)

		fetchOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdock_fetch_outcomes_total",
				Help: "Total fetch outcomes, labeled by outcome class.",
			},
			[]string{"class"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperdock_fetch_duration_seconds",
				Help:    "Histogram of end-to-end fetch latencies, labeled by access method.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"method"},
		)

		importItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdock_import_items_total",
				Help: "Total batch import items processed, labeled by status.",
			},
			[]string{"status"},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdock_search_queries_total",
				Help: "Total search queries, labeled by ranking mode.",
			},
			[]string{"mode"},
		)
	})
}

// ObserveFetchAttempt counts one access attempt for a method label.
func ObserveFetchAttempt(method string) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.WithLabelValues(method).Inc()
}

// ObserveFetchOutcome counts one terminal fetch outcome class.
func ObserveFetchOutcome(class string) {
	if fetchOutcomesTotal == nil {
		return
	}
	if class == "" {
		class = "success"
	}
	fetchOutcomesTotal.WithLabelValues(class).Inc()
}

// ObserveFetchDuration records the wall time of one fetch.
func ObserveFetchDuration(method string, d time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveImportItem counts one import item by its final status.
func ObserveImportItem(status string) {
	if importItemsTotal == nil {
		return
	}
	importItemsTotal.WithLabelValues(status).Inc()
}

// ObserveSearchQuery counts one ranked query by mode (tfidf or keyword).
func ObserveSearchQuery(mode string) {
	if searchQueriesTotal == nil {
		return
	}
	searchQueriesTotal.WithLabelValues(mode).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
