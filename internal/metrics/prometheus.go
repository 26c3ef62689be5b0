package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the UDP peer service
type Metrics struct {
	// Datagram metrics
	DatagramsReceived  prometheus.Counter
	BytesReceived      prometheus.Counter
	ResponsesSent      prometheus.Counter
	ResponsesThrottled prometheus.Counter
	ReceiveErrors      prometheus.Counter
	SendErrors         prometheus.Counter

	// Peer metrics
	ActivePeers       prometheus.Gauge
	PeersConnected    prometheus.Counter
	PeersDisconnected prometheus.Counter
	PeerRequests      prometheus.Histogram
	SweepDuration     prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Passing prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Datagram metrics
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_bytes_received_total",
			Help: "Total payload bytes received",
		}),
		ResponsesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_responses_sent_total",
			Help: "Total number of responses delivered to peers",
		}),
		ResponsesThrottled: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_responses_throttled_total",
			Help: "Total number of responses skipped by the rate limiter",
		}),
		ReceiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_receive_errors_total",
			Help: "Total number of failed datagram reads",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_send_errors_total",
			Help: "Total number of failed response writes",
		}),

		// Peer metrics
		ActivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "udp_active_peers",
			Help: "Current number of peers in the registry",
		}),
		PeersConnected: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_peers_connected_total",
			Help: "Total number of peers first seen",
		}),
		PeersDisconnected: factory.NewCounter(prometheus.CounterOpts{
			Name: "udp_peers_disconnected_total",
			Help: "Total number of peers evicted for inactivity",
		}),
		PeerRequests: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "udp_peer_requests",
			Help:    "Requests sent by a peer before it was evicted",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 to ~16k
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "udp_sweep_duration_seconds",
			Help:    "Time spent in one inactivity sweep",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "udp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordDatagram counts one received datagram of size bytes
func (m *Metrics) RecordDatagram(size int) {
	m.DatagramsReceived.Inc()
	m.BytesReceived.Add(float64(size))
}

// RecordResponseSent increments the responses sent counter
func (m *Metrics) RecordResponseSent() {
	m.ResponsesSent.Inc()
}

// RecordResponseThrottled increments the throttled responses counter
func (m *Metrics) RecordResponseThrottled() {
	m.ResponsesThrottled.Inc()
}

// RecordReceiveError increments the receive errors counter
func (m *Metrics) RecordReceiveError() {
	m.ReceiveErrors.Inc()
}

// RecordSendError increments the send errors counter
func (m *Metrics) RecordSendError() {
	m.SendErrors.Inc()
}

// RecordPeerConnected counts a new peer and raises the active gauge
func (m *Metrics) RecordPeerConnected() {
	m.PeersConnected.Inc()
	m.ActivePeers.Inc()
}

// RecordPeerDisconnected records an eviction and the peer's lifetime request count
func (m *Metrics) RecordPeerDisconnected(requests uint64) {
	m.PeersDisconnected.Inc()
	m.ActivePeers.Dec()
	m.PeerRequests.Observe(float64(requests))
}

// RecordSweep records the duration of one sweep pass
func (m *Metrics) RecordSweep(durationSeconds float64) {
	m.SweepDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
