package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for CopyPitch
type Metrics struct {
	// Domain counters
	TemplatesCreatedTotal     prometheus.Counter
	VariantsCreatedTotal      prometheus.Counter
	RendersTotal              prometheus.Counter
	UsageLimitRejectionsTotal *prometheus.CounterVec
	AutosaveWritesTotal       *prometheus.CounterVec
	WebhookEventsTotal        *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		// Domain counters
		TemplatesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "copypitch_templates_created_total",
				Help: "Total number of templates created",
			},
		),
		VariantsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "copypitch_variants_created_total",
				Help: "Total number of variants created",
			},
		),
		RendersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "copypitch_renders_total",
				Help: "Total number of template render operations",
			},
		),
		UsageLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copypitch_usage_limit_rejections_total",
				Help: "Total number of operations rejected by plan limits",
			},
			[]string{"code"},
		),
		AutosaveWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copypitch_autosave_writes_total",
				Help: "Total number of debounced autosave writes flushed to storage",
			},
			[]string{"kind"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copypitch_webhook_events_total",
				Help: "Total number of billing webhook events received",
			},
			[]string{"type"},
		),

		// API metrics
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copypitch_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copypitch_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copypitch_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		// System metrics
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "copypitch_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "copypitch_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		m.TemplatesCreatedTotal,
		m.VariantsCreatedTotal,
		m.RendersTotal,
		m.UsageLimitRejectionsTotal,
		m.AutosaveWritesTotal,
		m.WebhookEventsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncTemplatesCreated increments the created template counter
func IncTemplatesCreated() {
	m := Global()
	if m != nil {
		m.TemplatesCreatedTotal.Inc()
	}
}

// IncVariantsCreated increments the created variant counter
func IncVariantsCreated() {
	m := Global()
	if m != nil {
		m.VariantsCreatedTotal.Inc()
	}
}

// IncRenders increments the render counter
func IncRenders() {
	m := Global()
	if m != nil {
		m.RendersTotal.Inc()
	}
}

// IncUsageLimitRejections increments the plan limit rejection counter
func IncUsageLimitRejections(code string) {
	m := Global()
	if m != nil {
		m.UsageLimitRejectionsTotal.WithLabelValues(code).Inc()
	}
}

// IncAutosaveWrites increments the autosave write counter.
// kind is "content" or "variables".
func IncAutosaveWrites(kind string) {
	m := Global()
	if m != nil {
		m.AutosaveWritesTotal.WithLabelValues(kind).Inc()
	}
}

// IncWebhookEvents increments the webhook event counter
func IncWebhookEvents(eventType string) {
	m := Global()
	if m != nil {
		m.WebhookEventsTotal.WithLabelValues(eventType).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

// ObserveAPIRequest records one completed API request
func ObserveAPIRequest(method, path, status string, duration time.Duration) {
	m := Global()
	if m != nil {
		m.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.APIRequestDurationSeconds.WithLabelValues(method, path).Observe(duration.Seconds())
	}
}
