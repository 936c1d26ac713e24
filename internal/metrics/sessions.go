package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/savid/iptv-udp-buffer/internal/relay"
)

// SessionCollector exports live per-session gauges from a relay registry at scrape time
type SessionCollector struct {
	registry *relay.Registry

	queueDepth    *prometheus.Desc
	bufferedBytes *prometheus.Desc
	targetBytes   *prometheus.Desc
	sessions      *prometheus.Desc
}

// NewSessionCollector creates a collector over reg
func NewSessionCollector(reg *relay.Registry) *SessionCollector {
	return &SessionCollector{
		registry: reg,
		queueDepth: prometheus.NewDesc(
			"udpbuffer_session_queue_depth_packets",
			"Packets waiting in a session's ingest queue",
			[]string{"session", "endpoint"}, nil,
		),
		bufferedBytes: prometheus.NewDesc(
			"udpbuffer_session_buffered_bytes",
			"Bytes held in a session's relay buffer",
			[]string{"session", "endpoint"}, nil,
		),
		targetBytes: prometheus.NewDesc(
			"udpbuffer_session_target_bytes",
			"Target buffer size set by a session's buffer policy",
			[]string{"session", "endpoint"}, nil,
		),
		sessions: prometheus.NewDesc(
			"udpbuffer_sessions",
			"Number of active relay sessions",
			nil, nil,
		),
	}
}

// Describe implements the Collector interface
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.bufferedBytes
	ch <- c.targetBytes
	ch <- c.sessions
}

// Collect implements the Collector interface
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.registry.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(len(snapshot)))

	for _, s := range snapshot {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.Source.QueueDepth), s.ID, s.Endpoint)
		ch <- prometheus.MustNewConstMetric(c.bufferedBytes, prometheus.GaugeValue, float64(s.Buffer.BytesBuffered), s.ID, s.Endpoint)
		ch <- prometheus.MustNewConstMetric(c.targetBytes, prometheus.GaugeValue, float64(s.Buffer.TargetBytes), s.ID, s.Endpoint)
	}
}
