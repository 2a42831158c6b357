// Package metrics exposes sync queue and mirror activity as Prometheus
// metrics on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripsync"

// Collector holds the tripsync metrics. It satisfies syncqueue.Observer.
type Collector struct {
	registry *prometheus.Registry

	QueuePending   prometheus.Gauge
	QueueFailing   prometheus.Gauge
	QueueAbandoned prometheus.Gauge
	Drains         prometheus.Counter
	Replayed       *prometheus.CounterVec
	DrainDuration  prometheus.Histogram
	RemoteOnline   prometheus.Gauge
	Fallbacks      *prometheus.CounterVec
}

// NewCollector creates and registers the metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Operations waiting for replay.",
		}),
		QueueFailing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "failing",
			Help:      "Pending operations that have failed at least once.",
		}),
		QueueAbandoned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "abandoned",
			Help:      "Operations moved aside after reaching the retry cap.",
		}),
		Drains: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "drains_total",
			Help:      "Completed queue drains.",
		}),
		Replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "replayed_total",
			Help:      "Replay attempts by outcome.",
		}, []string{"result"}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "drain_duration_seconds",
			Help:      "Wall time of queue drains.",
			Buckets:   prometheus.DefBuckets,
		}),
		RemoteOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "online",
			Help:      "1 when the remote service answered the last probe.",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "fallbacks_total",
			Help:      "Mirror calls served locally because the remote failed.",
		}, []string{"op"}),
	}

	registry.MustRegister(
		c.QueuePending,
		c.QueueFailing,
		c.QueueAbandoned,
		c.Drains,
		c.Replayed,
		c.DrainDuration,
		c.RemoteOnline,
		c.Fallbacks,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// DrainFinished records one drain.
func (c *Collector) DrainFinished(applied, failed, abandoned int, elapsed time.Duration) {
	c.Drains.Inc()
	c.Replayed.WithLabelValues("applied").Add(float64(applied))
	c.Replayed.WithLabelValues("failed").Add(float64(failed))
	c.Replayed.WithLabelValues("abandoned").Add(float64(abandoned))
	c.DrainDuration.Observe(elapsed.Seconds())
}

// QueueDepth sets the queue gauges.
func (c *Collector) QueueDepth(pending, failing, abandoned int) {
	c.QueuePending.Set(float64(pending))
	c.QueueFailing.Set(float64(failing))
	c.QueueAbandoned.Set(float64(abandoned))
}

// SetOnline records the latest connectivity probe.
func (c *Collector) SetOnline(online bool) {
	if online {
		c.RemoteOnline.Set(1)
		return
	}
	c.RemoteOnline.Set(0)
}

// Fallback counts a mirror call answered from local data.
func (c *Collector) Fallback(op string) {
	c.Fallbacks.WithLabelValues(op).Inc()
}
