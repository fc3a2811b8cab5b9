// Package eventbus fans lifecycle events (reminder fired, poll closed,
// delivery failed) out to in-process listeners.
//
// Publish never blocks: a listener whose buffer is full misses the event and
// the drop is counted.
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types are dotted, "<component>.<what>", e.g. "reminder.fired".
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Component returns the part of Type before the first dot.
func (e Event) Component() string {
	c, _, _ := strings.Cut(e.Type, ".")
	return c
}

type Bus interface {
	Publish(e Event)
	// Subscribe registers a listener. With components set, only events whose
	// Component matches one of them are delivered.
	Subscribe(buffer int, components ...string) (ch <-chan Event, unsubscribe func())
}

// Emit publishes an event stamped with now. A nil bus is ignored.
func Emit(b Bus, typ string, data any) {
	if b != nil {
		b.Publish(Event{Type: typ, Time: time.Now(), Data: data})
	}
}

type listener struct {
	ch   chan Event
	only map[string]bool
}

func (l *listener) wants(e Event) bool {
	return len(l.only) == 0 || l.only[e.Component()]
}

type memBus struct {
	mu      sync.RWMutex
	next    uint64
	subs    map[uint64]*listener
	dropped atomic.Uint64
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*listener{}}
}

// Dropped reports deliveries skipped because a listener was full.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}

// Publish holds the read lock across the sends, so an unsubscribe (which
// closes the channel under the write lock) can never race a send.
func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.subs {
		if !l.wants(e) {
			continue
		}
		select {
		case l.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, components ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	l := &listener{ch: make(chan Event, buffer)}
	if len(components) > 0 {
		l.only = make(map[string]bool, len(components))
		for _, c := range components {
			l.only[c] = true
		}
	}

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = l
	b.mu.Unlock()

	var once sync.Once
	return l.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(l.ch)
			b.mu.Unlock()
		})
	}
}
