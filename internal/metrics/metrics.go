// Package metrics exposes auction counters over Prometheus. A nil *Collector
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auctionarena"

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	bidsAccepted  prometheus.Counter
	bidsRejected  *prometheus.CounterVec
	sales         prometheus.Counter
	salePoints    prometheus.Counter
	eventsDropped *prometheus.CounterVec
	activeEngines prometheus.Gauge
}

// New registers every auction metric plus the Go and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_accepted_total",
			Help:      "Bids that became the current highest bid.",
		}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_rejected_total",
			Help:      "Bids refused by validation, by reason.",
		}, []string{"reason"}),
		sales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Confirmed player sales.",
		}),
		salePoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_points_total",
			Help:      "Sum of sold prices.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events not delivered because a buffer was full, by stage.",
		}, []string{"stage"}),
		activeEngines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_engines",
			Help:      "Lobbies with a live auction engine.",
		}),
	}
	c.registry.MustRegister(
		c.bidsAccepted,
		c.bidsRejected,
		c.sales,
		c.salePoints,
		c.eventsDropped,
		c.activeEngines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) BidAccepted() {
	if c == nil {
		return
	}
	c.bidsAccepted.Inc()
}

func (c *Collector) BidRejected(reason string) {
	if c == nil {
		return
	}
	c.bidsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) Sale(price int) {
	if c == nil {
		return
	}
	c.sales.Inc()
	c.salePoints.Add(float64(price))
}

// EventDropped counts a lost event; stage is "outbox" or "subscriber".
func (c *Collector) EventDropped(stage string) {
	if c == nil {
		return
	}
	c.eventsDropped.WithLabelValues(stage).Inc()
}

func (c *Collector) EngineOpened() {
	if c == nil {
		return
	}
	c.activeEngines.Inc()
}

func (c *Collector) EngineClosed() {
	if c == nil {
		return
	}
	c.activeEngines.Dec()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
