package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/opcua-bridge/errors"
	"github.com/wippyai/opcua-bridge/resource"
)

// Config configures the bridge collectors.
type Config struct {
	// Registry receives the collectors. Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Namespace is the metrics namespace (default: "opcua_bridge").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// Buckets are the histogram buckets for call duration.
	// Default: prometheus.DefBuckets
	Buckets []float64
}

// Option configures New.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) { c.Subsystem = subsystem }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

func defaultConfig() Config {
	return Config{
		Namespace: "opcua_bridge",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors of one bridge. A nil *Metrics records nothing.
type Metrics struct {
	calls       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	handles     *prometheus.GaugeVec
	writes      *prometheus.CounterVec
	feedClients prometheus.Gauge
}

// New registers the bridge collectors.
//
// Metrics collected:
//   - opcua_bridge_calls_total: boundary calls by op and status
//   - opcua_bridge_call_duration_seconds: boundary call duration by op
//   - opcua_bridge_live_handles: live handles by kind
//   - opcua_bridge_variable_writes_total: server variable writes by type
//   - opcua_bridge_feed_clients: connected change feed clients
func New(opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "calls_total",
			Help:        "Total number of bridge calls",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "call_duration_seconds",
			Help:        "Bridge call duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"op"}),

		handles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "live_handles",
			Help:        "Number of live handles by kind",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),

		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "variable_writes_total",
			Help:        "Total number of server variable writes",
			ConstLabels: cfg.ConstLabels,
		}, []string{"type"}),

		feedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "feed_clients",
			Help:        "Number of connected change feed clients",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// ObserveCall records one boundary call.
func (m *Metrics) ObserveCall(op string, status errors.Status, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op, status.String()).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// OnResourceEvent tracks live handles. Subscribe it to the bridge's table.
func (m *Metrics) OnResourceEvent(e resource.Event) {
	if m == nil {
		return
	}
	g := m.handles.WithLabelValues(e.Kind.String())
	switch e.Type {
	case resource.EventCreated:
		g.Inc()
	case resource.EventDropped:
		g.Dec()
	}
}

// RecordWrite counts a server variable write.
func (m *Metrics) RecordWrite(typeName string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(typeName).Inc()
}

// FeedConnected records a change feed client joining.
func (m *Metrics) FeedConnected() {
	if m != nil {
		m.feedClients.Inc()
	}
}

// FeedDisconnected records a change feed client leaving.
func (m *Metrics) FeedDisconnected() {
	if m != nil {
		m.feedClients.Dec()
	}
}

// FeedClientsGauge returns the gauge of connected change feed clients.
func (m *Metrics) FeedClientsGauge() prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.feedClients
}
