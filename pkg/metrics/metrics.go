// Package metrics exposes Prometheus collectors for the relay channel, the
// session store and page runs.
//
// A *Metrics satisfies both channel.Observer and session.Observer, so one
// value can be handed to each:
//
//	m := metrics.New(metrics.WithRegistry(reg))
//	client, _ := channel.New(cfg, channel.WithObserver(m))
//	store := session.NewStore(session.Config{Observer: m}, logger)
//
// All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/pagewire/pkg/channel"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "pagewire").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for page-run duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures Metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithBuckets sets the page-run histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

func defaultConfig() Config {
	return Config{
		Namespace: "pagewire",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the registered collectors.
type Metrics struct {
	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	decodeFailures   prometheus.Counter
	sendRetries      prometheus.Counter
	reconnects       prometheus.Counter
	queueDepth       prometheus.Gauge
	channelState     prometheus.Gauge

	sessionsStarted      *prometheus.CounterVec
	sessionsDisconnected prometheus.Counter
	sessionsEvicted      *prometheus.CounterVec
	activeSessions       prometheus.Gauge
	disconnectedSessions prometheus.Gauge

	pageRuns        *prometheus.CounterVec
	pageRunDuration *prometheus.HistogramVec
}

// New creates and registers the collectors. Registering twice on the same
// registry panics, as with promauto.
func New(opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	counter := func(subsystem, name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		})
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		})
	}

	return &Metrics{
		messagesSent:     counter("channel", "messages_sent_total", "Messages written to the relay"),
		messagesReceived: counter("channel", "messages_received_total", "Messages read from the relay"),
		decodeFailures:   counter("channel", "decode_failures_total", "Inbound messages dropped as undecodable"),
		sendRetries:      counter("channel", "send_retries_total", "Send attempts retried after a failure"),
		reconnects:       counter("channel", "reconnects_total", "Times an open relay connection was lost"),
		queueDepth:       gauge("channel", "queue_depth", "Outbound messages waiting to be sent"),
		channelState:     gauge("channel", "state", "Connection state: 0 disconnected, 1 connecting, 2 open, 3 closing"),

		sessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "session",
			Name:        "started_total",
			Help:        "Sessions attached, by whether state was restored",
			ConstLabels: cfg.ConstLabels,
		}, []string{"restored"}),
		sessionsDisconnected: counter("session", "disconnected_total", "Sessions moved to the disconnected cache"),
		sessionsEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "session",
			Name:        "evicted_total",
			Help:        "Disconnected sessions discarded, by reason",
			ConstLabels: cfg.ConstLabels,
		}, []string{"reason"}),
		activeSessions:       gauge("session", "active", "Sessions with a live client"),
		disconnectedSessions: gauge("session", "disconnected", "Sessions held for reattachment"),

		pageRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "page",
			Name:        "runs_total",
			Help:        "Page runs by route, kind and status",
			ConstLabels: cfg.ConstLabels,
		}, []string{"route", "kind", "status"}),
		pageRunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "page",
			Name:        "run_duration_seconds",
			Help:        "Page run duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"route", "kind"}),
	}
}

// StateChanged implements channel.Observer.
func (m *Metrics) StateChanged(s channel.State) {
	if m != nil {
		m.channelState.Set(float64(s))
	}
}

// MessageSent implements channel.Observer.
func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

// MessageReceived implements channel.Observer.
func (m *Metrics) MessageReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

// DecodeFailed implements channel.Observer.
func (m *Metrics) DecodeFailed() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

// SendRetried implements channel.Observer.
func (m *Metrics) SendRetried() {
	if m != nil {
		m.sendRetries.Inc()
	}
}

// Reconnecting implements channel.Observer.
func (m *Metrics) Reconnecting() {
	if m != nil {
		m.reconnects.Inc()
	}
}

// QueueDepth implements channel.Observer.
func (m *Metrics) QueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

// SessionStarted implements session.Observer.
func (m *Metrics) SessionStarted(restored bool) {
	if m == nil {
		return
	}
	label := "false"
	if restored {
		label = "true"
	}
	m.sessionsStarted.WithLabelValues(label).Inc()
}

// SessionDisconnected implements session.Observer.
func (m *Metrics) SessionDisconnected() {
	if m != nil {
		m.sessionsDisconnected.Inc()
	}
}

// SessionEvicted implements session.Observer.
func (m *Metrics) SessionEvicted(reason string) {
	if m != nil {
		m.sessionsEvicted.WithLabelValues(reason).Inc()
	}
}

// SessionCounts implements session.Observer.
func (m *Metrics) SessionCounts(active, disconnected int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(active))
	m.disconnectedSessions.Set(float64(disconnected))
}

// PageRun records one completed page run.
func (m *Metrics) PageRun(route, kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.pageRuns.WithLabelValues(route, kind, status).Inc()
	m.pageRunDuration.WithLabelValues(route, kind).Observe(d.Seconds())
}
