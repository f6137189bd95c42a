package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sensorsim/internal/emitter"
	"github.com/sensorsim/internal/models"
)

// Collector exports scheduler activity as Prometheus metrics. It implements
// emitter.Observer.
type Collector struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	latency   prometheus.Histogram
	cycles    prometheus.Counter
	partial   prometheus.Counter
	state     prometheus.Gauge
}

var _ emitter.Observer = (*Collector)(nil)

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_readings_published_total",
			Help: "Readings handed to the broker, by sensor class.",
		}, []string{"class"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_readings_failed_total",
			Help: "Readings that could not be published, by sensor class.",
		}, []string{"class"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorsim_publish_latency_seconds",
			Help:    "Time from publish call to broker acknowledgment.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorsim_cycles_total",
			Help: "Emission cycles finished, partial ones included.",
		}),
		partial: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorsim_cycles_partial_total",
			Help: "Emission cycles cut short by a stop request.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorsim_scheduler_state",
			Help: "Current scheduler state (0 idle, 1 connecting, 2 running, 3 emitting, 4 waiting, 5 stopped).",
		}),
	}
	reg.MustRegister(c.published, c.failed, c.latency, c.cycles, c.partial, c.state)
	return c
}

func (c *Collector) StateChanged(s emitter.State) {
	c.state.Set(float64(s))
}

func (c *Collector) ReadingPublished(r models.Reading, latency time.Duration) {
	c.published.WithLabelValues(r.ClassTag()).Inc()
	c.latency.Observe(latency.Seconds())
}

func (c *Collector) ReadingFailed(r models.Reading, _ error) {
	c.failed.WithLabelValues(r.ClassTag()).Inc()
}

func (c *Collector) CycleCompleted(s emitter.CycleSummary) {
	c.cycles.Inc()
	if s.Partial {
		c.partial.Inc()
	}
}
