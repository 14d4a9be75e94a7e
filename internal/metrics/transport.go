package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RTCP feedback kinds counted by IncFeedback.
const (
	FeedbackNACK  = "nack"
	FeedbackPLI   = "pli"
	FeedbackFIR   = "fir"
	FeedbackOther = "other"
)

var (
	webrtcPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "webrtc",
		Name:      "peers",
		Help:      "Connected WebRTC peers",
	})

	webrtcPackets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webrtc",
		Name:      "packets_sent_total",
		Help:      "RTP packets written to WebRTC peers",
	})

	webrtcBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webrtc",
		Name:      "bytes_sent_total",
		Help:      "RTP bytes written to WebRTC peers",
	})

	// NACKs count lost packets, not RTCP messages.
	rtcpFeedback = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webrtc",
		Name:      "rtcp_feedback_total",
		Help:      "RTCP feedback received from WebRTC peers",
	}, []string{"kind"})

	relayDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "dropped_total",
		Help:      "Datagrams from the pipeline that were not relayed",
	}, []string{"reason"})
)

// SetWebRTCPeers records the number of connected peers.
func SetWebRTCPeers(n int) {
	webrtcPeers.Set(float64(n))
}

// AddWebRTCSent counts one packet of size bytes sent to a peer.
func AddWebRTCSent(size int) {
	webrtcPackets.Inc()
	webrtcBytes.Add(float64(size))
}

// IncFeedback counts n feedback items of kind.
func IncFeedback(kind string, n int) {
	rtcpFeedback.WithLabelValues(kind).Add(float64(n))
}

// IncRelayDropped counts a datagram the relay discarded.
func IncRelayDropped(reason string) {
	relayDropped.WithLabelValues(reason).Inc()
}
