// Package metrics holds the Prometheus collectors shared by the API and the
// worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts upload attempts by outcome tag.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_uploads_total",
		Help: "Upload attempts by outcome.",
	}, []string{"outcome"})

	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_upload_bytes_total",
		Help: "Bytes written by accepted uploads.",
	})

	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_downloads_total",
		Help: "Download URL requests by outcome.",
	}, []string{"outcome"})

	DeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_deletes_total",
		Help: "Delete requests by outcome.",
	}, []string{"outcome"})

	// OrphanedObjectsTotal counts deletes whose storage object could not be removed.
	OrphanedObjectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_orphaned_objects_total",
		Help: "Storage objects left behind because deletion failed.",
	})

	// ExtractionsTotal counts finished extraction jobs by kind and status.
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_extractions_total",
		Help: "Extraction jobs by document kind and terminal status.",
	}, []string{"kind", "status"})

	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filevault_extraction_duration_seconds",
		Help:    "Time spent fetching and parsing a document.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filevault_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware records request counts and latency labelled by the chi route
// pattern, which keeps label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
