// Package metrics exposes Prometheus collectors for the rank tracker.
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

// Collection outcomes recorded by ObserveCollection.
const (
	CollectionFresh   = "fresh"
	CollectionSkipped = "skipped"
	CollectionFailed  = "failed"
)

var (
	collectionsTotal               *prometheus.CounterVec
	providerRequestsTotal          *prometheus.CounterVec
	providerRequestDurationSeconds prometheus.Histogram
	contentFetchesTotal            *prometheus.CounterVec
	taskRunsTotal                  *prometheus.CounterVec
	taskDurationSeconds            *prometheus.HistogramVec
	throttleDelaySeconds           prometheus.Histogram
	historyCacheTotal              *prometheus.CounterVec
	eventsPublishedTotal           *prometheus.CounterVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		collectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_collections_total",
				Help: "Total keyword collection attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_provider_requests_total",
				Help: "Total search provider requests, labeled by HTTP code.",
			},
			[]string{"code"},
		)

		providerRequestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rank_provider_request_duration_seconds",
				Help:    "Histogram of search provider request latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		contentFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_content_fetches_total",
				Help: "Total blog content fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		taskRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_task_runs_total",
				Help: "Total scheduled task runs, labeled by task and terminal status.",
			},
			[]string{"task", "status"},
		)

		taskDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rank_task_duration_seconds",
				Help:    "Histogram of scheduled task durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"task"},
		)

		throttleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rank_throttle_delay_seconds",
				Help:    "Histogram of provider throttle wait durations.",
				Buckets: []float64{0.05, 0.1, 0.3, 0.5, 1, 2},
			},
		)

		historyCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_history_cache_total",
				Help: "Rank history cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		eventsPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_events_published_total",
				Help: "Collection events published, labeled by outcome.",
			},
			[]string{"outcome"},
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

// ObserveCollection increments the collection counter for the outcome.
func ObserveCollection(outcome string) {
	collectionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProviderRequest records one search provider call.
func ObserveProviderRequest(code int, duration time.Duration) {
	providerRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	providerRequestDurationSeconds.Observe(duration.Seconds())
}

// ObserveContentFetch increments the content fetch counter for the outcome.
func ObserveContentFetch(outcome string) {
	contentFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveTaskRun records a finished scheduled run.
func ObserveTaskRun(task, status string, duration time.Duration) {
	taskRunsTotal.WithLabelValues(task, status).Inc()
	taskDurationSeconds.WithLabelValues(task).Observe(duration.Seconds())
}

// ObserveThrottleDelay records the duration of a throttle wait.
func ObserveThrottleDelay(duration time.Duration) {
	throttleDelaySeconds.Observe(duration.Seconds())
}

// ObserveHistoryCache records a cache lookup result.
func ObserveHistoryCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	historyCacheTotal.WithLabelValues(result).Inc()
}

// ObserveEventPublish records a publish attempt.
func ObserveEventPublish(ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	eventsPublishedTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
