package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/clusterd/internal/bus"
)

// Stats is a point-in-time view of the task registry.
type Stats struct {
	Created       int
	Queued        int
	Executed      int
	Finished      int
	KillRequested int
}

// Total returns the number of registered tasks.
func (s Stats) Total() int {
	return s.Created + s.Queued + s.Executed + s.Finished
}

// Stats counts registered tasks per state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Scheduler) statsLocked() Stats {
	var st Stats
	for _, t := range s.tasks {
		switch t.state {
		case StateCreated:
			st.Created++
		case StateQueued:
			st.Queued++
		case StateExecuted:
			st.Executed++
		case StateFinished:
			st.Finished++
		}
		if t.KillRequested() {
			st.KillRequested++
		}
	}
	return st
}

// PrometheusMetrics exports scheduler activity. A nil *PrometheusMetrics records nothing.
type PrometheusMetrics struct {
	tasksCreated       prometheus.Counter
	tasksFinished      *prometheus.CounterVec
	tasksKilled        *prometheus.CounterVec
	tasks              *prometheus.GaugeVec
	messages           *prometheus.CounterVec
	protocolViolations prometheus.Counter
	orphanMessages     prometheus.Counter
	tickDuration       prometheus.Histogram
}

// InitPrometheusMetrics creates and registers the scheduler collectors.
func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_created_total",
			Help:      "Total number of tasks registered",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_finished_total",
			Help:      "Tasks reaching FINISHED by outcome",
		}, []string{"outcome"}),
		tasksKilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_killed_total",
			Help:      "Kill requests by reason",
		}, []string{"reason"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks",
			Help:      "Registered tasks by state",
		}, []string{"state"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "messages_total",
			Help:      "Worker messages delivered to tasks by type",
		}, []string{"type"}),
		protocolViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "protocol_violations_total",
			Help:      "Worker messages a task refused",
		}),
		orphanMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "orphan_messages_total",
			Help:      "Worker messages for unknown tasks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler tick",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
	}

	reg.MustRegister(
		m.tasksCreated,
		m.tasksFinished,
		m.tasksKilled,
		m.tasks,
		m.messages,
		m.protocolViolations,
		m.orphanMessages,
		m.tickDuration,
	)

	return m
}

func (m *PrometheusMetrics) recordCreated() {
	if m == nil {
		return
	}
	m.tasksCreated.Inc()
}

func (m *PrometheusMetrics) recordFinished(outcome bus.Outcome) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(string(outcome)).Inc()
}

func (m *PrometheusMetrics) recordKill(reason KillReason) {
	if m == nil {
		return
	}
	m.tasksKilled.WithLabelValues(string(reason)).Inc()
}

func (m *PrometheusMetrics) recordMessage(t bus.MessageType) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(string(t)).Inc()
}

func (m *PrometheusMetrics) recordViolation() {
	if m == nil {
		return
	}
	m.protocolViolations.Inc()
}

func (m *PrometheusMetrics) recordOrphan() {
	if m == nil {
		return
	}
	m.orphanMessages.Inc()
}

func (m *PrometheusMetrics) observeTick(d time.Duration, st Stats) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
	m.tasks.WithLabelValues(string(StateCreated)).Set(float64(st.Created))
	m.tasks.WithLabelValues(string(StateQueued)).Set(float64(st.Queued))
	m.tasks.WithLabelValues(string(StateExecuted)).Set(float64(st.Executed))
	m.tasks.WithLabelValues(string(StateFinished)).Set(float64(st.Finished))
}
