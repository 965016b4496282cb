// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus collectors for HTTP traffic and for the
// request guards (authentication, role checks, rate limits, idempotency).
// Labels stay bounded: the route template rather than the raw URL, the
// caller's role rather than its id, and a fixed set of rejection reasons.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "legis"

	// unmatchedRoute labels requests that hit no registered route, so probes
	// for random paths cannot grow the series set.
	unmatchedRoute = "unmatched"

	roleAnonymous = "anonymous"
)

// Guard rejection reasons.
const (
	reasonUnauthorized = "unauthorized"
	reasonForbidden    = "forbidden"
	reasonRateLimited  = "rate_limited"
	reasonBadIdemKey   = "bad_idempotency_key"
	reasonIdemReplay   = "idempotent_replay"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route, status and caller role.",
		},
		[]string{"method", "path", "status", "role"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_inflight",
			Help:      "HTTP requests currently being served.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body sizes by method and route.",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
		},
		[]string{"method", "path"},
	)

	// guardEvents counts requests stopped or short-circuited by a guard.
	guardEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_guard_events_total",
			Help:      "Requests rejected or replayed by auth, rate-limit and idempotency guards.",
		},
		[]string{"reason", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, guardEvents)
}

// routeLabel is the registered route template, or unmatchedRoute.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}

func countGuard(c *gin.Context, reason string) {
	guardEvents.WithLabelValues(reason, routeLabel(c)).Inc()
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
// Requests whose route is listed in skip are not recorded, so scrapes and
// probes do not dominate the series.
//
//	r.Use(middleware.Metrics("/metrics", "/health"))
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
// The role label is read after the handler chain ran, so it reflects the
// identity Authenticate stored further down the chain.
func Metrics(skip ...string) gin.HandlerFunc {
	skipSet := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipSet[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skipSet[c.FullPath()]; ok {
			c.Next()
			return
		}
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := routeLabel(c)
		method := c.Request.Method
		role := roleAnonymous
		if id, ok := IdentityFrom(c); ok && id.Role != "" {
			role = id.Role
		}

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status()), role).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Hijacked or bodiless responses report -1.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
