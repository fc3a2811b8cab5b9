package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	t.Parallel()
	m := NewManual(time.Unix(1_700_000_000, 0))

	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	m.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	m.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	m.Advance(1500 * time.Millisecond)
	require.Equal(t, []string{"a"}, order)
	require.Equal(t, 2, m.Pending())

	m.Advance(5 * time.Second)
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Zero(t, m.Pending())
}

func TestManualStop(t *testing.T) {
	t.Parallel()
	m := NewManual(time.Unix(0, 0))
	var fired atomic.Int32

	tm := m.AfterFunc(time.Second, func() { fired.Add(1) })
	require.True(t, tm.Stop())
	require.False(t, tm.Stop(), "second stop must report false")

	m.Advance(time.Minute)
	require.Zero(t, fired.Load())

	tm2 := m.AfterFunc(time.Second, func() { fired.Add(1) })
	m.Advance(time.Second)
	require.EqualValues(t, 1, fired.Load())
	require.False(t, tm2.Stop(), "stop after fire must report false")
}

func TestManualNegativeDelayFiresOnNextAdvance(t *testing.T) {
	t.Parallel()
	m := NewManual(time.Unix(0, 0))
	var fired bool
	m.AfterFunc(-time.Second, func() { fired = true })
	m.Advance(0)
	require.True(t, fired)
}

func TestRealAfterFunc(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	Real().AfterFunc(5*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real timer did not fire")
	}

	tm := Real().AfterFunc(time.Hour, func() {})
	require.True(t, tm.Stop())
}
