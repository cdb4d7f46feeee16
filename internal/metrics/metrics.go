// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlsTotal                *prometheus.CounterVec
	crawlDurationSeconds       *prometheus.HistogramVec
	crawlItemsExtracted        prometheus.Histogram
	jobsTotal                  *prometheus.CounterVec
	activeJobs                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call
// multiple times; Observe helpers call it lazily.
func Init() {
	once.Do(func() {
		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcrawl_crawls_total",
				Help: "Total number of crawls executed, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartcrawl_crawl_duration_seconds",
				Help:    "Histogram of end-to-end crawl durations, labeled by status.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"status"},
		)

		crawlItemsExtracted = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smartcrawl_items_extracted",
				Help:    "Histogram of deduplicated item counts per successful crawl.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcrawl_jobs_total",
				Help: "Total number of job transitions, labeled by status.",
			},
			[]string{"status"},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "smartcrawl_active_jobs",
				Help: "Number of crawl jobs currently running.",
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL for use as a label.
// Returns "unknown" for unparseable input.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl records one finished crawl.
func ObserveCrawl(site string, status string, items int, duration time.Duration) {
	Init()
	crawlsTotal.WithLabelValues(SanitizeSite(site), status).Inc()
	crawlDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
	if status == "success" {
		crawlItemsExtracted.Observe(float64(items))
	}
}

// ObserveJob counts a job status transition.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveJobs increments the running-jobs gauge.
func IncActiveJobs() {
	Init()
	activeJobs.Inc()
}

// DecActiveJobs decrements the running-jobs gauge.
func DecActiveJobs() {
	Init()
	activeJobs.Dec()
}

// ObserveHTTPRequest records one handled HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
