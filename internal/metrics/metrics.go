// Package metrics registers and exposes the Prometheus counters and
// gauges for claim, settlement and wire activity.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector claimbridge exposes.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	claimsAdmitted   *prometheus.CounterVec
	claimsRejected   *prometheus.CounterVec
	settlementsTotal *prometheus.CounterVec
	activeConns      prometheus.Gauge
}

// New creates and registers every collector. reg may be nil, in which
// case the default global registry is used.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimbridge_http_requests_total",
				Help: "Total number of HTTP requests to the management surface",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claimbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		claimsAdmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimbridge_claims_admitted_total",
				Help: "Total number of inbound claims admitted to the claim store",
			},
			[]string{"chain"},
		),
		claimsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimbridge_claims_rejected_total",
				Help: "Total number of inbound claims rejected during admission",
			},
			[]string{"chain", "reason"},
		),
		settlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimbridge_settlements_total",
				Help: "Total number of cooperative settlement attempts",
			},
			[]string{"chain", "result"},
		),
		activeConns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "claimbridge_active_peer_connections",
				Help: "Number of currently open peer WebSocket connections",
			},
		),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.claimsAdmitted,
		m.claimsRejected,
		m.settlementsTotal,
		m.activeConns,
	)
	return m
}

// Middleware records per-request counters and latency for every route
// except /metrics itself.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()
		status := c.Writer.Status()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, endpoint, statusString(status)).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// RecordClaimAdmitted increments the admitted-claims counter for chain.
func (m *Metrics) RecordClaimAdmitted(chain string) {
	m.claimsAdmitted.WithLabelValues(chain).Inc()
}

// RecordClaimRejected increments the rejected-claims counter for chain
// and reason.
func (m *Metrics) RecordClaimRejected(chain, reason string) {
	m.claimsRejected.WithLabelValues(chain, reason).Inc()
}

// RecordSettlement increments the settlement-attempt counter.
func (m *Metrics) RecordSettlement(chain string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.settlementsTotal.WithLabelValues(chain, result).Inc()
}

// SetActiveConnections reports the current peer connection count.
func (m *Metrics) SetActiveConnections(n int) {
	m.activeConns.Set(float64(n))
}

// Handler returns the Prometheus scrape endpoint handler.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}

func statusString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
