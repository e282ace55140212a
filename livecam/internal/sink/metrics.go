package sink

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yihou/highway-crawler/livecam/event"
)

// Metrics turns events into Prometheus series.
type Metrics struct {
	ticks    *prometheus.CounterVec
	bytes    prometheus.Counter
	duration *prometheus.HistogramVec
	last     prometheus.Gauge
}

// NewMetrics registers the livecam series on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livecam",
			Name:      "ticks_total",
			Help:      "Capture ticks by outcome and URL source.",
		}, []string{"outcome", "source"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livecam",
			Name:      "archived_bytes_total",
			Help:      "Bytes written to the archive.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "livecam",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one capture tick.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"outcome"}),
		last: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livecam",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last archived capture.",
		}),
	}
	for _, c := range []prometheus.Collector{m.ticks, m.bytes, m.duration, m.last} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Send(_ context.Context, ev event.Capture) error {
	m.ticks.WithLabelValues(string(ev.Outcome), string(ev.Source)).Inc()
	m.duration.WithLabelValues(string(ev.Outcome)).Observe((time.Duration(ev.DurationMs) * time.Millisecond).Seconds())
	if ev.OK() {
		m.bytes.Add(float64(ev.Bytes))
		m.last.Set(float64(ev.Time().Unix()))
	}
	return nil
}

func (m *Metrics) Close() error { return nil }
