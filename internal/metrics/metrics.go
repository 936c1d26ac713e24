// Package metrics provides Prometheus metrics for UDP ingest and relay sessions
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/savid/iptv-udp-buffer/pkg/types"
)

// IngestMetrics contains Prometheus metrics for stream sources and relays
type IngestMetrics struct {
	registry *prometheus.Registry

	// Transfer lifecycle, driven by the source listener
	transfersStarted   *prometheus.CounterVec
	transfersActive    prometheus.Gauge
	bytesTransferred   prometheus.Counter
	transferReadChunks prometheus.Histogram

	// Receiver counters, accumulated when a session ends
	packetsReceived  prometheus.Counter
	packetsDropped   prometheus.Counter
	packetsMalformed prometheus.Counter
	receiveErrors    prometheus.Counter

	// Relay outcome metrics
	relayEnds      *prometheus.CounterVec
	relayUnderruns prometheus.Counter
	relayDuration  prometheus.Histogram
}

// NewIngestMetrics creates and registers ingest metrics
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() {
	m.transfersStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udpbuffer_transfers_started_total",
			Help: "Total number of stream sources opened",
		},
		[]string{"mode"}, // mode: unicast, multicast
	)

	m.transfersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "udpbuffer_transfers_active",
		Help: "Number of stream sources currently open",
	})

	m.bytesTransferred = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udpbuffer_bytes_transferred_total",
		Help: "Total bytes read by consumers from stream sources",
	})

	m.transferReadChunks = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "udpbuffer_read_size_bytes",
		Help:    "Size of individual reads from stream sources",
		Buckets: prometheus.ExponentialBuckets(64, 2, 8), // 64B to 8KB
	})

	m.packetsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udpbuffer_packets_received_total",
		Help: "Total datagrams received by finished sessions",
	})

	m.packetsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udpbuffer_packets_dropped_total",
		Help: "Total datagrams evicted from full packet queues",
	})

	m.packetsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udpbuffer_packets_malformed_total",
		Help: "Total datagrams discarded because decapsulation failed",
	})

	m.receiveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udpbuffer_receive_errors_total",
		Help: "Total transient socket receive errors",
	})

	m.relayEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udpbuffer_relay_ends_total",
			Help: "Total relay sessions ended, by reason",
		},
		[]string{"reason"}, // reason: client, stalled, error
	)

	m.relayUnderruns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udpbuffer_relay_underruns_total",
		Help: "Total times a relay drained its buffer during playback",
	})

	m.relayDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "udpbuffer_relay_duration_seconds",
		Help:    "Lifetime of relay sessions",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s to ~4.5h
	})
}

// OnTransferStart records a source being opened
func (m *IngestMetrics) OnTransferStart(ep types.Endpoint) {
	mode := "unicast"
	if ep.Multicast {
		mode = "multicast"
	}
	m.transfersStarted.WithLabelValues(mode).Inc()
	m.transfersActive.Inc()
}

// OnBytesTransferred records bytes handed to a consumer
func (m *IngestMetrics) OnBytesTransferred(n int) {
	m.bytesTransferred.Add(float64(n))
	m.transferReadChunks.Observe(float64(n))
}

// OnTransferEnd records a source being closed
func (m *IngestMetrics) OnTransferEnd() {
	m.transfersActive.Dec()
}

// RecordSessionEnd folds a finished session's counters into the totals
func (m *IngestMetrics) RecordSessionEnd(reason string, source types.SourceStats, buffer types.BufferStats, seconds float64) {
	m.packetsReceived.Add(float64(source.PacketsReceived))
	m.packetsDropped.Add(float64(source.PacketsDropped))
	m.packetsMalformed.Add(float64(source.PacketsMalformed))
	m.receiveErrors.Add(float64(source.ReceiveErrors))
	m.relayUnderruns.Add(float64(buffer.Underruns))
	m.relayEnds.WithLabelValues(reason).Inc()
	m.relayDuration.Observe(seconds)
}

// Describe implements the Collector interface
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.transfersStarted.Describe(ch)
	m.transfersActive.Describe(ch)
	m.bytesTransferred.Describe(ch)
	m.transferReadChunks.Describe(ch)
	m.packetsReceived.Describe(ch)
	m.packetsDropped.Describe(ch)
	m.packetsMalformed.Describe(ch)
	m.receiveErrors.Describe(ch)
	m.relayEnds.Describe(ch)
	m.relayUnderruns.Describe(ch)
	m.relayDuration.Describe(ch)
}

// Collect implements the Collector interface
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	m.transfersStarted.Collect(ch)
	m.transfersActive.Collect(ch)
	m.bytesTransferred.Collect(ch)
	m.transferReadChunks.Collect(ch)
	m.packetsReceived.Collect(ch)
	m.packetsDropped.Collect(ch)
	m.packetsMalformed.Collect(ch)
	m.receiveErrors.Collect(ch)
	m.relayEnds.Collect(ch)
	m.relayUnderruns.Collect(ch)
	m.relayDuration.Collect(ch)
}
