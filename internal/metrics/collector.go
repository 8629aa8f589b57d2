// Package metrics exposes the switch's Prometheus instrumentation:
// connection gauges by role, message counters by role and MTI, and the
// failure/miss counters the dispatcher and correlation table drive.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/npsb/npswitch/internal/registry"
)

const namespace = "npswitch"

// Label names for switch metrics.
const (
	labelRole = "role"
	labelMTI  = "mti"
)

// Collector holds all switch Prometheus metrics and satisfies
// switchcore.Metrics.
type Collector struct {
	// Connections tracks currently live connections by role.
	Connections *prometheus.GaugeVec

	// MessagesIn counts ingress messages by role and MTI.
	MessagesIn *prometheus.CounterVec

	// MessagesOut counts egress messages (forwarded or locally built) by
	// destination role and MTI.
	MessagesOut *prometheus.CounterVec

	// ForwardFailures counts failed attempts to forward a message to an
	// issuer or acquirer socket.
	ForwardFailures prometheus.Counter

	// CorrelationMisses counts issuer responses whose STAN had no pending
	// entry.
	CorrelationMisses prometheus.Counter

	// CodecErrors counts frames dropped for failing to decode as a valid
	// ISO 8583 message.
	CodecErrors prometheus.Counter

	// PendingEntries tracks the current correlation table size.
	PendingEntries prometheus.Gauge
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Connections,
		c.MessagesIn,
		c.MessagesOut,
		c.ForwardFailures,
		c.CorrelationMisses,
		c.CodecErrors,
		c.PendingEntries,
	)

	return c
}

func newMetrics() *Collector {
	roleLabels := []string{labelRole}
	messageLabels := []string{labelRole, labelMTI}

	return &Collector{
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of currently live connections by role.",
		}, roleLabels),

		MessagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_in_total",
			Help:      "Total ingress messages by originating role and MTI.",
		}, messageLabels),

		MessagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_out_total",
			Help:      "Total egress messages by destination role and MTI.",
		}, messageLabels),

		ForwardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_failures_total",
			Help:      "Total failed attempts to forward or write a message.",
		}),

		CorrelationMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_misses_total",
			Help:      "Total issuer responses with no matching pending entry.",
		}),

		CodecErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_errors_total",
			Help:      "Total frames dropped for failing ISO 8583 decode.",
		}),

		PendingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_entries",
			Help:      "Current size of the STAN correlation table.",
		}),
	}
}

// ConnectionOpened increments the connection gauge for role.
func (c *Collector) ConnectionOpened(role registry.Role) {
	c.Connections.WithLabelValues(role.String()).Inc()
}

// ConnectionClosed decrements the connection gauge for role.
func (c *Collector) ConnectionClosed(role registry.Role) {
	c.Connections.WithLabelValues(role.String()).Dec()
}

// MessageIn increments the ingress counter for role and mti.
func (c *Collector) MessageIn(role registry.Role, mti string) {
	c.MessagesIn.WithLabelValues(role.String(), mti).Inc()
}

// MessageOut increments the egress counter for destination role and mti.
func (c *Collector) MessageOut(role registry.Role, mti string) {
	c.MessagesOut.WithLabelValues(role.String(), mti).Inc()
}

// ForwardFailure increments the forward-failure counter.
func (c *Collector) ForwardFailure() {
	c.ForwardFailures.Inc()
}

// CorrelationMiss increments the correlation-miss counter.
func (c *Collector) CorrelationMiss() {
	c.CorrelationMisses.Inc()
}

// CodecError increments the codec-error counter.
func (c *Collector) CodecError() {
	c.CodecErrors.Inc()
}

// PendingSize sets the pending-entries gauge to n.
func (c *Collector) PendingSize(n int) {
	c.PendingEntries.Set(float64(n))
}
