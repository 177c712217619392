// Package routermetrics implements the router.Metrics collaborator with
// Prometheus instrumentation, modeled on the base daemon's bfdmetrics
// collector.
package routermetrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "signalrouter"
	subsystem = "router"
)

const (
	labelRemote = "remote"
	labelReason = "reason"
)

// Collector holds every router Prometheus metric and implements the
// router.Metrics interface.
type Collector struct {
	ConnectionsActive *prometheus.GaugeVec
	LinksActive       *prometheus.GaugeVec
	MessagesSent      *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	BoundaryDrops     *prometheus.CounterVec
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()
	reg.MustRegister(
		c.ConnectionsActive,
		c.LinksActive,
		c.MessagesSent,
		c.MessagesDropped,
		c.BoundaryDrops,
	)
	return c
}

func newMetrics() *Collector {
	remoteLabels := []string{labelRemote}
	droppedLabels := []string{labelRemote, labelReason}

	return &Collector{
		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_active",
			Help:      "Number of currently active connections, labeled by remote device.",
		}, remoteLabels),

		LinksActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "links_active",
			Help:      "Number of peer links currently held, including stub links awaiting addresses.",
		}, remoteLabels),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total wire messages transmitted, labeled by the destination data address.",
		}, remoteLabels),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped before transmission, labeled by remote device and reason.",
		}, droppedLabels),

		BoundaryDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "boundary_drops_total",
			Help:      "Total samples dropped by a slot's boundary policy.",
		}, remoteLabels),
	}
}

// ConnectionAdded implements router.Metrics.
func (c *Collector) ConnectionAdded(remote string) {
	c.ConnectionsActive.WithLabelValues(remote).Inc()
}

// ConnectionRemoved implements router.Metrics.
func (c *Collector) ConnectionRemoved(remote string) {
	c.ConnectionsActive.WithLabelValues(remote).Dec()
}

// LinkAdded implements router.Metrics.
func (c *Collector) LinkAdded(remote string) {
	c.LinksActive.WithLabelValues(remote).Inc()
}

// LinkRemoved implements router.Metrics.
func (c *Collector) LinkRemoved(remote string) {
	c.LinksActive.WithLabelValues(remote).Dec()
}

// MessageSent implements router.Metrics.
func (c *Collector) MessageSent(remote string) {
	c.MessagesSent.WithLabelValues(remote).Inc()
}

// MessageDropped implements router.Metrics.
func (c *Collector) MessageDropped(remote, reason string) {
	c.MessagesDropped.WithLabelValues(remote, reason).Inc()
}

// BoundaryDropped implements router.Metrics.
func (c *Collector) BoundaryDropped(remote string) {
	c.BoundaryDrops.WithLabelValues(remote).Inc()
}
