package rtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus surface for one or more Streams sharing a
// registry. It is optional: a Stream that never calls SetMetrics emits
// nothing, matching the teacher's own build-tag-gated metrics package
// (promoted here to always-on rather than conditional).
type Metrics struct {
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	bytesSent       *prometheus.CounterVec
	bytesReceived   *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
	jitter          *prometheus.GaugeVec
	fractionLost    *prometheus.GaugeVec
}

// NewMetrics registers the stream counters/gauges against reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_packets_sent_total",
			Help: "RTP packets sent, by stream SSRC.",
		}, []string{"ssrc"}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_packets_received_total",
			Help: "RTP packets received, by stream SSRC.",
		}, []string{"ssrc"}),
		bytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_bytes_sent_total",
			Help: "RTP payload bytes sent, by stream SSRC.",
		}, []string{"ssrc"}),
		bytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_bytes_received_total",
			Help: "RTP payload bytes received, by stream SSRC.",
		}, []string{"ssrc"}),
		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtp_packets_dropped_total",
			Help: "Datagrams dropped by the handler chain, by reason.",
		}, []string{"ssrc", "reason"}),
		jitter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtp_session_jitter_ms",
			Help: "Most recent RFC 3550 interarrival jitter estimate, in milliseconds.",
		}, []string{"ssrc"}),
		fractionLost: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtp_session_fraction_lost",
			Help: "Most recent RTCP fraction-lost value, as a fraction of 1.",
		}, []string{"ssrc"}),
	}
}

func ssrcLabel(ssrc uint32) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = hex[ssrc&0xf]
		ssrc >>= 4
	}
	return string(b)
}

func (m *Metrics) observeSent(ssrc uint32, bytes int) {
	if m == nil {
		return
	}
	label := ssrcLabel(ssrc)
	m.packetsSent.WithLabelValues(label).Inc()
	m.bytesSent.WithLabelValues(label).Add(float64(bytes))
}

func (m *Metrics) observeReceived(ssrc uint32, bytes int) {
	if m == nil {
		return
	}
	label := ssrcLabel(ssrc)
	m.packetsReceived.WithLabelValues(label).Inc()
	m.bytesReceived.WithLabelValues(label).Add(float64(bytes))
}

func (m *Metrics) observeDropped(ssrc uint32, reason string) {
	if m == nil {
		return
	}
	m.packetsDropped.WithLabelValues(ssrcLabel(ssrc), reason).Inc()
}

func (m *Metrics) observeReport(ssrc uint32, jitter float64, fractionLost uint8) {
	if m == nil {
		return
	}
	label := ssrcLabel(ssrc)
	m.jitter.WithLabelValues(label).Set(jitter)
	m.fractionLost.WithLabelValues(label).Set(float64(fractionLost) / 256.0)
}
