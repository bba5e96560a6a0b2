package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics for the inspection layer.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitHits       *prometheus.CounterVec
	ClientsBlocked      prometheus.Counter
	DLPViolations       *prometheus.CounterVec
	ContentBlocked      *prometheus.CounterVec
	ScanDuration        *prometheus.HistogramVec
	AuditQueueDrops     prometheus.Counter
}

// NewMetrics creates and registers the Prometheus metrics. Tests pass their
// own registry to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_http_request_duration_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_rate_limit_hits_total",
				Help: "Total number of rate limited requests.",
			},
			[]string{"rule"},
		),
		ClientsBlocked: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_clients_blocked_total",
				Help: "Total number of clients blocked by abuse detection.",
			},
		),
		DLPViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_dlp_violations_total",
				Help: "Total number of DLP pattern violations detected.",
			},
			[]string{"data_type", "severity"},
		),
		ContentBlocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_content_blocked_total",
				Help: "Total number of blocked contents by surface.",
			},
			[]string{"surface"},
		),
		ScanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_scan_duration_seconds",
				Help:    "Latency of DLP content scans.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		AuditQueueDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_audit_queue_drops_total",
				Help: "Audit events dropped because the dispatch queue was full.",
			},
		),
	}
}

// RecordRateLimitHit records a rate limited request for a rule.
func (m *Metrics) RecordRateLimitHit(ruleID string) {
	m.RateLimitHits.WithLabelValues(ruleID).Inc()
}

// RecordClientBlocked records a client escalated to a temporary block.
func (m *Metrics) RecordClientBlocked() {
	m.ClientsBlocked.Inc()
}

// RecordDLPViolation records one detected violation.
func (m *Metrics) RecordDLPViolation(dataType, severity string) {
	m.DLPViolations.WithLabelValues(dataType, severity).Inc()
}

// RecordContentBlocked records content refused by policy on a surface
// (request, response, email, file).
func (m *Metrics) RecordContentBlocked(surface string) {
	m.ContentBlocked.WithLabelValues(surface).Inc()
}

// ObserveScanDuration records the latency of one content scan.
func (m *Metrics) ObserveScanDuration(source string, seconds float64) {
	m.ScanDuration.WithLabelValues(source).Observe(seconds)
}

// RecordAuditQueueDrop records a dropped audit event.
func (m *Metrics) RecordAuditQueueDrop() {
	m.AuditQueueDrops.Inc()
}
