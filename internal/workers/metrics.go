package workers

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics returns a snapshot of the pool metrics.
func (p *WorkerPool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// PrometheusMetrics exports pool activity. A nil *PrometheusMetrics records nothing.
type PrometheusMetrics struct {
	workersSpawned  prometheus.Counter
	workersRecycled prometheus.Counter
	jobsTotal       *prometheus.CounterVec
	jobsPending     prometheus.Gauge
	workersBusy     prometheus.Gauge
}

// InitPrometheusMetrics creates and registers the pool collectors.
func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		workersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers_spawned_total",
			Help:      "Total number of worker processes started",
		}),
		workersRecycled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers_recycled_total",
			Help:      "Total number of worker processes retired",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_total",
			Help:      "Jobs leaving the pool by result: completed, cancelled, lost",
		}, []string{"result"}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_pending",
			Help:      "Jobs waiting for a free worker",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers_busy",
			Help:      "Workers currently running a job",
		}),
	}

	reg.MustRegister(
		m.workersSpawned,
		m.workersRecycled,
		m.jobsTotal,
		m.jobsPending,
		m.workersBusy,
	)

	return m
}

func (m *PrometheusMetrics) recordSpawn() {
	if m == nil {
		return
	}
	m.workersSpawned.Inc()
}

func (m *PrometheusMetrics) recordRecycle() {
	if m == nil {
		return
	}
	m.workersRecycled.Inc()
}

func (m *PrometheusMetrics) recordJob(result string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) setQueue(pending, busy int) {
	if m == nil {
		return
	}
	m.jobsPending.Set(float64(pending))
	m.workersBusy.Set(float64(busy))
}
