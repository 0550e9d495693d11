// Package metrics exposes Prometheus collectors for the channel index service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Channel outcome labels recorded per processed sitemap entry.
const (
	OutcomeIndexed = "indexed"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

var (
	indexChannelsTotal         *prometheus.CounterVec
	indexRunsTotal             *prometheus.CounterVec
	scrapeDurationSeconds      prometheus.Histogram
	searchFallbacksTotal       prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		indexChannelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channelindex_channels_total",
				Help: "Total number of sitemap channels processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		indexRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channelindex_runs_total",
				Help: "Total number of indexing runs, labeled by status.",
			},
			[]string{"status"},
		)

		scrapeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "channelindex_scrape_duration_seconds",
				Help:    "Histogram of per-channel scrape latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
		)

		searchFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "channelindex_search_fallbacks_total",
				Help: "Total searches served by the substring fallback path.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveChannel increments the processed-channel counter for an outcome.
func ObserveChannel(outcome string) {
	indexChannelsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	indexRunsTotal.WithLabelValues(status).Inc()
}

// ObserveScrape records the duration of one channel page scrape.
func ObserveScrape(duration time.Duration) {
	scrapeDurationSeconds.Observe(duration.Seconds())
}

// ObserveSearchFallback counts a search answered by the substring path.
func ObserveSearchFallback() {
	searchFallbacksTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
