// Package metrics exposes Prometheus collectors for the contact crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerSitesTotal          *prometheus.CounterVec
	crawlerEmailsTotal         *prometheus.CounterVec
	crawlerFormsTotal          *prometheus.CounterVec
	crawlerFetchDurationSec    *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	crawlerTasksTotal          *prometheus.CounterVec
	crawlerActiveWorkers       prometheus.Gauge
	validatorVerdictsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerSitesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_sites_total",
				Help: "Total number of sites parsed, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerEmailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_emails_total",
				Help: "Total number of email addresses extracted, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFormsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_contact_forms_total",
				Help: "Total number of contact forms extracted, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
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

		crawlerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_tasks_total",
				Help: "Total number of tasks finished, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		validatorVerdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_validator_verdicts_total",
				Help: "Total number of AI form validation verdicts, labeled by verdict.",
			},
			[]string{"verdict"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records a fetched page and its latency.
func ObservePage(site string, status string, duration time.Duration) {
	sanitized := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitized, status).Inc()
	crawlerFetchDurationSec.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveSite records a parsed site and its extraction yield.
func ObserveSite(site string, status string, emails, forms int) {
	sanitized := SanitizeSite(site)
	crawlerSitesTotal.WithLabelValues(status).Inc()
	if emails > 0 {
		crawlerEmailsTotal.WithLabelValues(sanitized).Add(float64(emails))
	}
	if forms > 0 {
		crawlerFormsTotal.WithLabelValues(sanitized).Add(float64(forms))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveTask increments the task counter for the given kind and final status.
func ObserveTask(kind, status string) {
	crawlerTasksTotal.WithLabelValues(kind, status).Inc()
}

// ObserveVerdict increments the AI validation verdict counter.
func ObserveVerdict(verdict string) {
	validatorVerdictsTotal.WithLabelValues(verdict).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}

// Middleware records request counts and latencies for chi routes.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
