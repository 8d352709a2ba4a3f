package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispute_engine_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispute_engine_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	DisputesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispute_engine_disputes_created_total",
		Help: "Disputes opened, by card network.",
	}, []string{"network"})

	DisputesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispute_engine_disputes_resolved_total",
		Help: "Disputes moved to a terminal status, by outcome.",
	}, []string{"outcome"})

	EvidenceSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispute_engine_evidence_submissions_total",
		Help: "Accepted evidence submissions.",
	})

	EligibilityVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispute_engine_eligibility_verdicts_total",
		Help: "Compelling-evidence eligibility evaluations, by verdict.",
	}, []string{"status"})
)

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
