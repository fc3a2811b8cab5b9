package votes

import (
	"sync"
	"testing"
	"time"

	"remindbot/internal/clock"
	logx "remindbot/pkg/logx"

	"github.com/stretchr/testify/require"
)

func newBoard(t *testing.T, capacity int) (*Board, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	vb, err := New(capacity, clk, logx.Nop())
	require.NoError(t, err)
	return vb, clk
}

func TestOpenSeedsSystemVote(t *testing.T) {
	t.Parallel()
	vb, _ := newBoard(t, 8)
	require.NoError(t, vb.Open("p1", []string{"✅", "❌"}))

	counts, ok := vb.Counts("p1")
	require.True(t, ok)
	require.Equal(t, map[string]int{"✅": Seed, "❌": Seed}, counts)
}

func TestToggle(t *testing.T) {
	t.Parallel()
	vb, _ := newBoard(t, 8)
	require.NoError(t, vb.Open("p1", []string{"a", "b"}))

	added, err := vb.Toggle("p1", "a", 10)
	require.NoError(t, err)
	require.True(t, added)
	added, err = vb.Toggle("p1", "b", 10)
	require.NoError(t, err)
	require.True(t, added)
	_, err = vb.Toggle("p1", "a", 11)
	require.NoError(t, err)

	counts, _ := vb.Counts("p1")
	require.Equal(t, map[string]int{"a": 3, "b": 2}, counts)

	added, err = vb.Toggle("p1", "a", 10)
	require.NoError(t, err)
	require.False(t, added)
	counts, _ = vb.Counts("p1")
	require.Equal(t, 2, counts["a"])

	_, err = vb.Toggle("p1", "zzz", 10)
	require.ErrorIs(t, err, ErrUnknownSymbol)
	_, err = vb.Toggle("nope", "a", 10)
	require.ErrorIs(t, err, ErrUnknownBoard)
}

func TestCloseReleases(t *testing.T) {
	t.Parallel()
	vb, _ := newBoard(t, 8)
	require.NoError(t, vb.Open("p1", []string{"a"}))
	_, _ = vb.Toggle("p1", "a", 1)

	counts, ok := vb.Close("p1")
	require.True(t, ok)
	require.Equal(t, 2, counts["a"])
	require.Equal(t, 0, vb.Len())

	_, ok = vb.Close("p1")
	require.False(t, ok)
	_, err := vb.Toggle("p1", "a", 1)
	require.ErrorIs(t, err, ErrUnknownBoard)
}

func TestOpenRefusesWhenFull(t *testing.T) {
	t.Parallel()
	vb, _ := newBoard(t, 2)
	require.NoError(t, vb.Open("p1", []string{"a"}))
	_, err := vb.Toggle("p1", "a", 7)
	require.NoError(t, err)
	require.NoError(t, vb.Open("p2", []string{"a"}))

	require.ErrorIs(t, vb.Open("p3", []string{"a"}), ErrFull)
	require.Equal(t, 2, vb.Len())
	counts, ok := vb.Counts("p1")
	require.True(t, ok)
	require.Equal(t, Seed+1, counts["a"])

	// Reopening an existing board is not a new admission.
	require.NoError(t, vb.Open("p2", []string{"a", "b"}))

	_, _ = vb.Close("p1")
	require.NoError(t, vb.Open("p3", []string{"a"}))
}

func TestResizeKeepsOpenBoards(t *testing.T) {
	t.Parallel()
	vb, _ := newBoard(t, 4)
	for _, k := range []string{"p1", "p2", "p3"} {
		require.NoError(t, vb.Open(k, []string{"a"}))
	}

	vb.Resize(1)
	require.Equal(t, 1, vb.Cap())
	require.Equal(t, 3, vb.Len())
	for _, k := range []string{"p1", "p2", "p3"} {
		_, err := vb.Toggle(k, "a", 1)
		require.NoError(t, err)
	}
	require.ErrorIs(t, vb.Open("p4", []string{"a"}), ErrFull)

	vb.Resize(8)
	require.NoError(t, vb.Open("p4", []string{"a"}))
	require.Equal(t, 4, vb.Len())
}

func TestPruneOlderThan(t *testing.T) {
	t.Parallel()
	vb, clk := newBoard(t, 8)
	require.NoError(t, vb.Open("old", []string{"a"}))
	clk.Advance(2 * time.Hour)
	require.NoError(t, vb.Open("new", []string{"a"}))

	require.Equal(t, 1, vb.PruneOlderThan(time.Hour))
	_, ok := vb.Counts("old")
	require.False(t, ok)
	_, ok = vb.Counts("new")
	require.True(t, ok)
}

func TestConcurrentToggles(t *testing.T) {
	t.Parallel()
	vb, _ := newBoard(t, 8)
	require.NoError(t, vb.Open("p", []string{"a"}))

	var wg sync.WaitGroup
	for i := int64(1); i <= 100; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_, _ = vb.Toggle("p", "a", uid)
		}(i)
	}
	wg.Wait()

	counts, _ := vb.Counts("p")
	require.Equal(t, 100+Seed, counts["a"])
}
