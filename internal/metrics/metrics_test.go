package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ReminderCreated(true)
	m.ReminderFired()
	m.PollCreated("quick")
	m.Delivery("delivered", time.Second)
	m.Rejected("")
	require.Nil(t, m.Registry())
}

func gathered(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	out := map[string]*dto.MetricFamily{}
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestReminderGaugeTracksLifecycle(t *testing.T) {
	t.Parallel()
	m := New()
	m.ReminderCreated(false)
	m.ReminderCreated(true)
	m.ReminderCreated(true)
	m.ReminderCancelled()
	m.ReminderFired()

	fams := gathered(t, m)
	pending := fams["remindbot_reminders_pending"]
	require.NotNil(t, pending)
	require.Equal(t, 1.0, pending.GetMetric()[0].GetGauge().GetValue())

	created := fams["remindbot_reminders_created_total"]
	require.NotNil(t, created)
	byKind := map[string]float64{}
	for _, mt := range created.GetMetric() {
		for _, lp := range mt.GetLabel() {
			if lp.GetName() == "kind" {
				byKind[lp.GetValue()] = mt.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, map[string]float64{"self": 1, "group": 2}, byKind)
}

func TestRegistryGathers(t *testing.T) {
	t.Parallel()
	m := New()
	m.Delivery("transport_error", 10*time.Millisecond)
	m.Rejected("too_few_options")

	fams := gathered(t, m)
	require.Contains(t, fams, "remindbot_delivery_attempts_total")
	require.Contains(t, fams, "remindbot_requests_rejected_total")
	require.Contains(t, fams, "go_goroutines")
}
