// Package metrics exposes bridge counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enipbridge"

// Collectors holds the bridge metrics. It satisfies enip.Metrics.
type Collectors struct {
	registry *prometheus.Registry

	cycleDuration   prometheus.Histogram
	tagReadFailures prometheus.Counter
	messages        *prometheus.CounterVec
	linkLosses      *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	connected       *prometheus.GaugeVec
}

// New registers the bridge collectors, plus Go runtime and process
// collectors, on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Time spent reading tags and publishing one envelope.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		tagReadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_read_failures_total",
			Help:      "Individual tag reads that failed within otherwise healthy cycles.",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Data envelopes by outcome (published, skipped, failed).",
		}, []string{"outcome"}),
		linkLosses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_losses_total",
			Help:      "Detected link losses by session.",
		}, []string{"session"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts by session and result.",
		}, []string{"session", "result"}),
		connected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_connected",
			Help:      "1 when the session is connected, 0 otherwise.",
		}, []string{"session"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) ObserveCycle(d time.Duration) {
	c.cycleDuration.Observe(d.Seconds())
}

func (c *Collectors) TagReadFailures(n int) {
	if n > 0 {
		c.tagReadFailures.Add(float64(n))
	}
}

func (c *Collectors) Published() {
	c.messages.WithLabelValues("published").Inc()
}

func (c *Collectors) PublishSkipped() {
	c.messages.WithLabelValues("skipped").Inc()
}

func (c *Collectors) PublishFailed() {
	c.messages.WithLabelValues("failed").Inc()
}

func (c *Collectors) LinkLost(session string) {
	c.linkLosses.WithLabelValues(session).Inc()
}

func (c *Collectors) ReconnectAttempt(session string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.reconnects.WithLabelValues(session, result).Inc()
}

func (c *Collectors) SetConnected(session string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	c.connected.WithLabelValues(session).Set(v)
}
