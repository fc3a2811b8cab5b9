// Package metrics holds the Prometheus collectors for the notification engine.
//
// Every method is nil-safe so components can be built without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "remindbot"

// Metrics is the set of engine collectors registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	remindersCreated   *prometheus.CounterVec
	remindersCancelled prometheus.Counter
	remindersFired     prometheus.Counter
	remindersPending   prometheus.Gauge

	pollsCreated *prometheus.CounterVec
	pollsClosed  prometheus.Counter
	pollsOpen    prometheus.Gauge
	votes        *prometheus.CounterVec

	deliveries      *prometheus.CounterVec
	deliveryLatency prometheus.Histogram

	rejections *prometheus.CounterVec
	commands   *prometheus.CounterVec

	restarts   *prometheus.CounterVec
	housekeeps *prometheus.CounterVec
}

// New creates a fresh registry with process/go collectors and the engine collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		remindersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "created_total",
			Help: "Reminders accepted, by kind (self|group).",
		}, []string{"kind"}),
		remindersCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "cancelled_total",
			Help: "Reminders cancelled before firing.",
		}),
		remindersFired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "fired_total",
			Help: "Reminders whose timer fired and were handed to delivery.",
		}),
		remindersPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "reminders", Name: "pending",
			Help: "Reminders currently scheduled.",
		}),
		pollsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "polls", Name: "created_total",
			Help: "Polls published, by kind (general|quick).",
		}, []string{"kind"}),
		pollsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "polls", Name: "closed_total",
			Help: "Polls closed with results published.",
		}),
		pollsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "polls", Name: "open",
			Help: "Polls currently accepting votes.",
		}),
		votes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "polls", Name: "vote_signals_total",
			Help: "Vote toggles received, by result (added|removed|ignored).",
		}, []string{"result"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "attempts_total",
			Help: "Delivery attempts, by outcome status.",
		}, []string{"status"}),
		deliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "delivery", Name: "duration_seconds",
			Help:    "Time spent resolving and sending one delivery.",
			Buckets: prometheus.DefBuckets,
		}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "requests", Name: "rejected_total",
			Help: "Requests rejected before any state was created, by reason.",
		}, []string{"reason"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "commands", Name: "handled_total",
			Help: "Commands routed, by command name.",
		}, []string{"command"}),
		restarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "runtime", Name: "goroutine_restarts_total",
			Help: "Supervised goroutine restarts, by name.",
		}, []string{"name"}),
		housekeeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "housekeeping", Name: "runs_total",
			Help: "Housekeeping job runs, by job.",
		}, []string{"job"}),
	}
}

// Registry returns the registry to expose over HTTP. Nil when m is nil.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ReminderCreated(group bool) {
	if m == nil {
		return
	}
	kind := "self"
	if group {
		kind = "group"
	}
	m.remindersCreated.WithLabelValues(kind).Inc()
	m.remindersPending.Inc()
}

func (m *Metrics) ReminderCancelled() {
	if m == nil {
		return
	}
	m.remindersCancelled.Inc()
	m.remindersPending.Dec()
}

func (m *Metrics) ReminderFired() {
	if m == nil {
		return
	}
	m.remindersFired.Inc()
	m.remindersPending.Dec()
}

// SetRemindersPending resyncs the pending gauge (housekeeping).
func (m *Metrics) SetRemindersPending(n int) {
	if m == nil {
		return
	}
	m.remindersPending.Set(float64(n))
}

func (m *Metrics) PollCreated(kind string) {
	if m == nil {
		return
	}
	m.pollsCreated.WithLabelValues(kind).Inc()
	m.pollsOpen.Inc()
}

func (m *Metrics) PollClosed() {
	if m == nil {
		return
	}
	m.pollsClosed.Inc()
	m.pollsOpen.Dec()
}

func (m *Metrics) SetPollsOpen(n int) {
	if m == nil {
		return
	}
	m.pollsOpen.Set(float64(n))
}

func (m *Metrics) VoteSignal(result string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(result).Inc()
}

func (m *Metrics) Delivery(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
	m.deliveryLatency.Observe(took.Seconds())
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "other"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

// GoroutineRestart is a supervisor restart hook.
func (m *Metrics) GoroutineRestart(name string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(name).Inc()
}

func (m *Metrics) HousekeepingRun(job string) {
	if m == nil {
		return
	}
	m.housekeeps.WithLabelValues(job).Inc()
}
