// Package votes is the in-memory vote-signal feed for polls.
//
// A board mirrors message reactions: every symbol starts with one system
// vote (the marker the bot places when publishing the poll) and each user
// may toggle their own vote on any number of symbols.
package votes

import (
	"errors"
	"sync"
	"time"

	"remindbot/internal/clock"
	logx "remindbot/pkg/logx"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Seed is the number of system votes each symbol starts with.
const Seed = 1

const DefaultCapacity = 1024

var (
	ErrUnknownBoard  = errors.New("votes: board not open")
	ErrUnknownSymbol = errors.New("votes: unknown symbol")
	ErrFull          = errors.New("votes: board capacity reached")
)

type board struct {
	mu      sync.Mutex
	opened  time.Time
	symbols []string
	voters  map[string]map[int64]struct{}
}

func (b *board) counts() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.symbols))
	for _, s := range b.symbols {
		out[s] = Seed + len(b.voters[s])
	}
	return out
}

// Board holds open vote boards keyed by poll id. Capacity bounds admission:
// Open refuses a new board when full, so a live board is never evicted.
// Boards leave only through Close or PruneOlderThan.
type Board struct {
	mu    sync.Mutex // serializes admission
	limit int
	cache *lru.Cache[string, *board]
	clk   clock.Clock
	log   logx.Logger
}

func New(capacity int, clk clock.Clock, log logx.Logger) (*Board, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	vb := &Board{limit: capacity, clk: clk, log: log}
	cache, err := lru.NewWithEvict[string, *board](capacity, func(key string, _ *board) {
		vb.log.Debug("vote board released", logx.String("poll_id", key))
	})
	if err != nil {
		return nil, err
	}
	vb.cache = cache
	return vb, nil
}

// Open starts a board for key with the given symbols. Reopening resets it.
// A new key is refused with ErrFull once capacity boards are open.
func (vb *Board) Open(key string, symbols []string) error {
	b := &board{
		opened:  vb.clk.Now(),
		symbols: append([]string(nil), symbols...),
		voters:  make(map[string]map[int64]struct{}, len(symbols)),
	}
	vb.mu.Lock()
	defer vb.mu.Unlock()
	if !vb.cache.Contains(key) && vb.cache.Len() >= vb.limit {
		return ErrFull
	}
	vb.cache.Add(key, b)
	return nil
}

// Toggle flips userID's vote on symbol and reports whether it was added.
func (vb *Board) Toggle(key, symbol string, userID int64) (bool, error) {
	b, ok := vb.cache.Get(key)
	if !ok {
		return false, ErrUnknownBoard
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	known := false
	for _, s := range b.symbols {
		if s == symbol {
			known = true
			break
		}
	}
	if !known {
		return false, ErrUnknownSymbol
	}

	users := b.voters[symbol]
	if users == nil {
		users = make(map[int64]struct{})
		b.voters[symbol] = users
	}
	if _, voted := users[userID]; voted {
		delete(users, userID)
		return false, nil
	}
	users[userID] = struct{}{}
	return true, nil
}

// Counts returns raw per-symbol counts, system votes included.
func (vb *Board) Counts(key string) (map[string]int, bool) {
	b, ok := vb.cache.Peek(key)
	if !ok {
		return nil, false
	}
	return b.counts(), true
}

// Close releases the board and returns its final counts.
func (vb *Board) Close(key string) (map[string]int, bool) {
	b, ok := vb.cache.Peek(key)
	if !ok {
		return nil, false
	}
	counts := b.counts()
	vb.cache.Remove(key)
	return counts, true
}

// PruneOlderThan drops boards opened more than age ago and returns how
// many were removed.
func (vb *Board) PruneOlderThan(age time.Duration) int {
	cutoff := vb.clk.Now().Add(-age)
	n := 0
	for _, key := range vb.cache.Keys() {
		b, ok := vb.cache.Peek(key)
		if !ok {
			continue
		}
		if b.opened.Before(cutoff) {
			vb.cache.Remove(key)
			n++
		}
	}
	return n
}

func (vb *Board) Len() int { return vb.cache.Len() }

// Cap returns the admission limit.
func (vb *Board) Cap() int {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.limit
}

// Resize changes the admission limit. Shrinking below the number of open
// boards keeps them; new boards are refused until enough close.
func (vb *Board) Resize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	vb.mu.Lock()
	defer vb.mu.Unlock()
	vb.limit = capacity
	vb.cache.Resize(max(capacity, vb.cache.Len()))
}
