package build

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the build pipeline's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	builds   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	queued   prometheus.Gauge
	running  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builds_total",
				Help: "Finished build attempts by deploy method and status",
			},
			[]string{"deploy_method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "build_duration_seconds",
				Help:    "Build attempt duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"deploy_method"},
		),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "build_queue_depth",
			Help: "Builds waiting for a worker",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "builds_running",
			Help: "Builds currently running",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.builds, m.duration, m.queued, m.running)
	}
	return m
}

func (m *Metrics) observe(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}

func (m *Metrics) addRunning(delta float64) {
	if m == nil {
		return
	}
	m.running.Add(delta)
}
