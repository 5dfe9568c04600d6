// Package metrics exposes Prometheus collectors for sync runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            prometheus.Counter
	fetchDurationSeconds       prometheus.Histogram
	articlesTotal              *prometheus.CounterVec
	skipsTotal                 *prometheus.CounterVec
	storeRetriesTotal          *prometheus.CounterVec
	stateDurationSeconds       *prometheus.HistogramVec
	pacingDelaySeconds         prometheus.Histogram
	runsTotal                  *prometheus.CounterVec
	lastRunTimestampSeconds    prometheus.Gauge
	lastRunMissingURLs         prometheus.Gauge
	lastRunArticles            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedsync_fetches_total",
				Help: "Total number of HTTP fetches, labeled by result (ok, timeout, http, transport).",
			},
			[]string{"result"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedsync_fetch_bytes_total",
				Help: "Total number of response bytes fetched.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feedsync_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedsync_articles_total",
				Help: "Total number of handled articles, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		skipsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedsync_skips_total",
				Help: "Total number of skipped units, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		storeRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedsync_store_retries_total",
				Help: "Total number of store operation retries, labeled by operation.",
			},
			[]string{"op"},
		)

		stateDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedsync_state_duration_seconds",
				Help:    "Histogram of time spent in each sync state.",
				Buckets: []float64{0.01, 0.1, 1, 5, 30, 120, 600, 1800},
			},
			[]string{"state", "status"},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feedsync_pacing_delay_seconds",
				Help:    "Histogram of time spent waiting between requests.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedsync_runs_total",
				Help: "Total number of sync runs, labeled by status.",
			},
			[]string{"status"},
		)

		lastRunTimestampSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedsync_last_run_timestamp_seconds",
				Help: "Unix time the last sync run finished.",
			},
		)

		lastRunMissingURLs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedsync_last_run_missing_urls",
				Help: "Sitemap URLs that were absent from the store in the last run.",
			},
		)

		lastRunArticles = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedsync_last_run_articles",
				Help: "Stored article count at the end of the last run.",
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

// Push sends the default registry to a Pushgateway under the given job name.
func Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// ObserveFetch records a fetch result. result is "ok" or a fetch error kind.
func ObserveFetch(result string, bytesFetched int, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(result).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveStoreRetry increments the retry counter for a store operation.
func ObserveStoreRetry(op string) {
	Init()
	storeRetriesTotal.WithLabelValues(op).Inc()
}

// ObservePacingDelay records the duration of a pacing wait.
func ObservePacingDelay(duration time.Duration) {
	Init()
	pacingDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Recorder feeds orchestrator events into the package collectors.
type Recorder struct{}

var _ reconcile.Recorder = Recorder{}

// NewRecorder initializes the collectors and returns a Recorder.
func NewRecorder() Recorder {
	Init()
	return Recorder{}
}

// ObserveOutcome counts a single article outcome.
func (Recorder) ObserveOutcome(o reconcile.Outcome) {
	articlesTotal.WithLabelValues(string(o.Source), string(o.Kind)).Inc()
	if o.Kind == reconcile.OutcomeSkipped {
		skipsTotal.WithLabelValues(string(o.Source), string(o.Reason)).Inc()
	}
}

// ObserveState records the time spent in a state.
func (Recorder) ObserveState(s reconcile.State, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	stateDurationSeconds.WithLabelValues(string(s), status).Observe(d.Seconds())
}

// ObserveReport records end-of-run gauges.
func (Recorder) ObserveReport(r reconcile.Report) {
	status := "ok"
	if r.Failed() {
		status = "failed"
	}
	runsTotal.WithLabelValues(status).Inc()
	lastRunTimestampSeconds.Set(float64(r.FinishedAt.Unix()))
	lastRunMissingURLs.Set(float64(r.MissingURLs))
	lastRunArticles.Set(float64(r.StoreCountAfter))
}
