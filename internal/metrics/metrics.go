// Package metrics provides Prometheus metrics for the download server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route labels. Request paths are user controlled, so they are bucketed.
const (
	RouteZip     = "zip"
	RouteListing = "listing"
	RouteFile    = "file"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdl_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webdl_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Folder archive metrics
	zipArchivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webdl_zip_archives_total",
			Help: "Total folder archives requested, by outcome",
		},
		[]string{"status"},
	)

	zipArchiveBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webdl_zip_archive_bytes_total",
			Help: "Total bytes of folder archives sent",
		},
	)

	zipEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webdl_zip_entries_total",
			Help: "Total files written into folder archives",
		},
	)

	zipBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webdl_zip_build_duration_seconds",
			Help:    "Time to build a folder archive in memory",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)

	// Listing metrics
	listingEntries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webdl_listing_entries",
			Help:    "Visible entries per rendered listing page",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	scanErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webdl_scan_errors_total",
			Help: "Subdirectories that could not be listed and were shown empty",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordZipArchive records the outcome of a folder archive request.
// status is "success", "not_found", "bad_request", "forbidden" or "error".
func RecordZipArchive(status string, bytes int64, entries int, duration time.Duration) {
	zipArchivesTotal.WithLabelValues(status).Inc()
	if status != "success" {
		return
	}
	zipArchiveBytes.Add(float64(bytes))
	zipEntriesTotal.Add(float64(entries))
	zipBuildDuration.Observe(duration.Seconds())
}

// RecordListing records the number of visible entries on a listing page.
func RecordListing(entries int) {
	listingEntries.Observe(float64(entries))
}

// RecordScanError records a subdirectory degraded to an empty subtree.
func RecordScanError() {
	scanErrorsTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics under
// the route label chosen by routeOf.
func Middleware(routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeOf(r)
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}
