package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	receiptCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_updates",
		Help: "Receipt status updates by target status",
	}, []string{"status"})
	signedURLCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signed_urls",
		Help: "Signed storage URLs issued by operation",
	}, []string{"op"})
	activationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activations",
		Help: "Withdrawal activation invoices by event",
	}, []string{"event"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_response_duration_seconds",
		Help: "Latency of requests in second.",
	}, []string{"path"})
)

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// The route is only known once chi has matched it.
		httpDuration.WithLabelValues(routePattern(r)).Observe(time.Since(start).Seconds())
	})
}

// routePattern is the matched chi route, not the raw path.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}
