// Package registry is the in-memory store of pending scheduled items.
//
// The map is split into fixed shards, each with its own mutex, so operations
// on unrelated ids do not serialize behind a single lock. Take is the only
// arbitration point between a cancel and a fire for the same id: whichever
// caller takes the entry first owns it.
package registry

import (
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrDuplicateID = errors.New("registry: duplicate id")
	ErrNotFound    = errors.New("registry: not found")
)

const (
	shardCount = 32

	// IDLength is the length of generated ids (lowercase hex).
	IDLength = 8

	maxIDAttempts = 8
)

type shard[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// Registry maps ids to entities of type T.
// The zero value is not usable; call New.
type Registry[T any] struct {
	shards [shardCount]*shard[T]
	newID  func() string
}

// Option configures a Registry.
type Option[T any] func(*Registry[T])

// WithIDSource overrides id generation (tests use it to force collisions).
func WithIDSource[T any](fn func() string) Option[T] {
	return func(r *Registry[T]) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func New[T any](opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{newID: NewID}
	for i := range r.shards {
		r.shards[i] = &shard[T]{items: map[string]T{}}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewID returns a short random id: the first IDLength hex characters of a
// random UUID.
func NewID() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:IDLength]
}

func (r *Registry[T]) shardFor(id string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Insert stores entity under id. It fails with ErrDuplicateID if id is present.
func (r *Registry[T]) Insert(id string, entity T) error {
	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[id]; ok {
		return ErrDuplicateID
	}
	sh.items[id] = entity
	return nil
}

// InsertNew generates a fresh id, builds the entity for it and inserts it.
// Collisions are retried with a new id and never reach the caller unless
// every attempt collides.
func (r *Registry[T]) InsertNew(build func(id string) T) (string, error) {
	var lastErr error
	for i := 0; i < maxIDAttempts; i++ {
		id := r.newID()
		err := r.Insert(id, build(id))
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !errors.Is(err, ErrDuplicateID) {
			break
		}
	}
	return "", lastErr
}

func (r *Registry[T]) Get(id string) (T, error) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	v, ok := sh.items[id]
	sh.mu.RUnlock()
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

// Remove deletes id. Removing an absent id is a no-op.
func (r *Registry[T]) Remove(id string) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	delete(sh.items, id)
	sh.mu.Unlock()
}

// Take atomically removes and returns the entity for id.
func (r *Registry[T]) Take(id string) (T, bool) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	v, ok := sh.items[id]
	if ok {
		delete(sh.items, id)
	}
	sh.mu.Unlock()
	return v, ok
}

// ListBy returns a snapshot of every entity matching pred (all when pred is nil).
// Later mutations of the registry do not affect the returned slice.
func (r *Registry[T]) ListBy(pred func(T) bool) []T {
	var out []T
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, v := range sh.items {
			if pred == nil || pred(v) {
				out = append(out, v)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Drain removes and returns every entity.
func (r *Registry[T]) Drain() []T {
	var out []T
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, v := range sh.items {
			out = append(out, v)
			delete(sh.items, id)
		}
		sh.mu.Unlock()
	}
	return out
}

func (r *Registry[T]) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}
