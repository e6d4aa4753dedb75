// Package metrics exposes the stack's runtime counters and gauges as
// Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric the stack engine updates, registered
// together against a single registry by [NewCollectors].
type Collectors struct {
	FramesDropped  *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	ArpTableGauge  prometheus.Gauge
}

// NewCollectors creates and registers the stack's metrics against reg. Pass
// [prometheus.NewRegistry] for an isolated registry, or
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netstackd",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by the stack, labeled by drop reason.",
		}, []string{"reason"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netstackd",
			Name:      "frames_received_total",
			Help:      "Frames accepted by the stack, labeled by EtherType.",
		}, []string{"ethertype"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netstackd",
			Name:      "frames_sent_total",
			Help:      "Frames transmitted by the stack, labeled by EtherType.",
		}, []string{"ethertype"}),
		ArpTableGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netstackd",
			Name:      "arp_table_entries",
			Help:      "Current number of entries in the ARP cache.",
		}),
	}
	reg.MustRegister(c.FramesDropped, c.FramesReceived, c.FramesSent, c.ArpTableGauge)
	return c
}

// FrameDropped implements stack.Metrics.
func (c *Collectors) FrameDropped(reason string) { c.FramesDropped.WithLabelValues(reason).Inc() }

// FrameReceived implements stack.Metrics.
func (c *Collectors) FrameReceived(etherType string) {
	c.FramesReceived.WithLabelValues(etherType).Inc()
}

// FrameSent implements stack.Metrics.
func (c *Collectors) FrameSent(etherType string) { c.FramesSent.WithLabelValues(etherType).Inc() }

// ArpTableSize implements stack.Metrics.
func (c *Collectors) ArpTableSize(n int) { c.ArpTableGauge.Set(float64(n)) }
