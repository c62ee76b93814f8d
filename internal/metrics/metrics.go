// Package metrics provides Prometheus metrics for echoprobe.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "echoprobe"
)

// Result labels for ProbesTotal. Error kinds use their own names.
const (
	ResultSuccess    = "success"
	ResultUnexpected = "unexpected_type"
	ResultMismatch   = "mismatch"
)

// Metrics contains all Prometheus metrics for the prober.
type Metrics struct {
	// Probe metrics
	ProbesTotal  *prometheus.CounterVec
	ProbeRTT     *prometheus.HistogramVec
	RepliesTotal *prometheus.CounterVec

	// Socket metrics
	SocketsOpen   prometheus.Gauge
	SocketsOpened prometheus.Counter

	// Data transfer metrics
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total echo probes by address family and result",
		}, []string{"family", "result"}),
		ProbeRTT: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_rtt_seconds",
			Help:      "Histogram of echo round-trip time in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"family"}),
		RepliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Total ICMP messages received by address family and type",
		}, []string{"family", "type"}),

		SocketsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sockets_open",
			Help:      "Number of currently open probe sockets",
		}),
		SocketsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sockets_opened_total",
			Help:      "Total number of probe sockets opened",
		}),

		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total ICMP bytes sent",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total ICMP bytes received",
		}),
	}
}

// RecordSocketOpen records a probe socket being opened.
func (m *Metrics) RecordSocketOpen() {
	m.SocketsOpen.Inc()
	m.SocketsOpened.Inc()
}

// RecordSocketClose records a probe socket being released.
func (m *Metrics) RecordSocketClose() {
	m.SocketsOpen.Dec()
}

// RecordProbe records the outcome of one probe.
func (m *Metrics) RecordProbe(family, result string) {
	m.ProbesTotal.WithLabelValues(family, result).Inc()
}

// RecordReply records a received ICMP message and its round-trip time.
func (m *Metrics) RecordReply(family, icmpType string, rttSeconds float64) {
	m.RepliesTotal.WithLabelValues(family, icmpType).Inc()
	m.ProbeRTT.WithLabelValues(family).Observe(rttSeconds)
}

// RecordBytesSent records bytes written to a probe socket.
func (m *Metrics) RecordBytesSent(bytes int) {
	m.BytesSent.Add(float64(bytes))
}

// RecordBytesReceived records bytes read from a probe socket.
func (m *Metrics) RecordBytesReceived(bytes int) {
	m.BytesReceived.Add(float64(bytes))
}
