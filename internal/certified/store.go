// Package certified provides per-key state holders for values that carry a
// trust level.
//
// A key in a Store is in one of three states:
//
//   - absent: never loaded (Get returns ok=false)
//   - invalidated: explicitly reset (Get returns ok=true and a nil value)
//   - loaded: holds a Value whose Certified flag tells consumers whether the
//     data came from a verified read or a best-effort one
//
// Writes are last-write-wins by arrival order. Merge additionally refuses
// values that were observed before the key was last invalidated, so a slow
// read can never resurrect an entry that a newer event reset.
package certified

import (
	"sort"
	"sync"
	"time"
)

// Value is a piece of data annotated with its trust level
type Value[T any] struct {
	Data      T    `json:"data"`
	Certified bool `json:"certified"`
}

// Certify wraps data as a certified value
func Certify[T any](data T) Value[T] {
	return Value[T]{Data: data, Certified: true}
}

// Uncertified wraps data as a best-effort value
func Uncertified[T any](data T) Value[T] {
	return Value[T]{Data: data}
}

// Change describes a mutation of a Store. All is set when every key changed.
type Change[K comparable] struct {
	Key K
	All bool
}

type entry[T any] struct {
	value         *Value[T]
	invalidatedAt time.Time
	updatedAt     time.Time
}

// Store holds one certified value per key
type Store[K comparable, T any] struct {
	mu        sync.RWMutex
	entries   map[K]*entry[T]
	clearedAt time.Time

	clone func(T) T
	now   func() time.Time

	subMu   sync.Mutex
	subs    map[int]chan Change[K]
	nextSub int
}

// StoreOption configures a Store
type StoreOption[T any] func(*storeOptions[T])

type storeOptions[T any] struct {
	clone func(T) T
}

// WithClone sets the function used to copy data in and out of the store.
// Without it values are copied shallowly.
func WithClone[T any](clone func(T) T) StoreOption[T] {
	return func(o *storeOptions[T]) {
		o.clone = clone
	}
}

// NewStore creates an empty Store
func NewStore[K comparable, T any](opts ...StoreOption[T]) *Store[K, T] {
	o := &storeOptions[T]{}
	for _, opt := range opts {
		opt(o)
	}
	return &Store[K, T]{
		entries: make(map[K]*entry[T]),
		clone:   o.clone,
		now:     time.Now,
		subs:    make(map[int]chan Change[K]),
	}
}

// Set unconditionally replaces the value for key
func (s *Store[K, T]) Set(key K, value Value[T]) {
	s.mu.Lock()
	e := s.entryLocked(key)
	v := s.copyValue(value)
	e.value = &v
	e.updatedAt = s.now()
	s.mu.Unlock()

	s.notify(Change[K]{Key: key})
}

// Merge stores value for key unless the key was invalidated (or the store
// cleared) after observedAt. It reports whether the value was applied.
func (s *Store[K, T]) Merge(key K, observedAt time.Time, value Value[T]) bool {
	s.mu.Lock()
	if observedAt.Before(s.clearedAt) {
		s.mu.Unlock()
		return false
	}
	if e, ok := s.entries[key]; ok && observedAt.Before(e.invalidatedAt) {
		s.mu.Unlock()
		return false
	}
	e := s.entryLocked(key)
	v := s.copyValue(value)
	e.value = &v
	e.updatedAt = s.now()
	s.mu.Unlock()

	s.notify(Change[K]{Key: key})
	return true
}

// Get returns the value for key. ok is false when the key was never set; a
// nil value with ok true means the key was invalidated.
func (s *Store[K, T]) Get(key K) (*Value[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.value == nil {
		return nil, true
	}
	v := s.copyValue(*e.value)
	return &v, true
}

// Reset invalidates key without removing it
func (s *Store[K, T]) Reset(key K) {
	s.mu.Lock()
	e := s.entryLocked(key)
	e.value = nil
	e.invalidatedAt = s.now()
	e.updatedAt = e.invalidatedAt
	s.mu.Unlock()

	s.notify(Change[K]{Key: key})
}

// ResetAll removes every key
func (s *Store[K, T]) ResetAll() {
	s.mu.Lock()
	s.entries = make(map[K]*entry[T])
	s.clearedAt = s.now()
	s.mu.Unlock()

	s.notify(Change[K]{All: true})
}

// IsLoaded reports whether key holds a value (certified or not)
func (s *Store[K, T]) IsLoaded(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return ok && e.value != nil
}

// IsCertified reports whether key holds a certified value
func (s *Store[K, T]) IsCertified(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return ok && e.value != nil && e.value.Certified
}

// UpdatedAt returns when key last changed, or the zero time if absent
func (s *Store[K, T]) UpdatedAt(key K) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok {
		return e.updatedAt
	}
	return time.Time{}
}

// Keys returns every present key, invalidated ones included
func (s *Store[K, T]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]K, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a copy of every present entry; invalidated keys map to nil
func (s *Store[K, T]) Snapshot() map[K]*Value[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[K]*Value[T], len(s.entries))
	for k, e := range s.entries {
		if e.value == nil {
			result[k] = nil
			continue
		}
		v := s.copyValue(*e.value)
		result[k] = &v
	}
	return result
}

// Subscribe returns a channel receiving changes. Slow subscribers miss
// changes rather than block writers. The returned function unsubscribes.
func (s *Store[K, T]) Subscribe(buffer int) (<-chan Change[K], func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change[K], buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// update applies fn to the current value of key under the store lock.
// fn returns the new value and whether it changed anything.
func (s *Store[K, T]) update(key K, fn func(v Value[T]) (Value[T], bool)) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.value == nil {
		s.mu.Unlock()
		return false
	}
	next, changed := fn(*e.value)
	if changed {
		e.value = &next
		e.updatedAt = s.now()
	}
	s.mu.Unlock()

	if changed {
		s.notify(Change[K]{Key: key})
	}
	return changed
}

func (s *Store[K, T]) entryLocked(key K) *entry[T] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[T]{}
		s.entries[key] = e
	}
	return e
}

func (s *Store[K, T]) copyValue(v Value[T]) Value[T] {
	if s.clone != nil {
		v.Data = s.clone(v.Data)
	}
	return v
}

func (s *Store[K, T]) notify(change Change[K]) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// SortedKeys returns keys ordered by less
func SortedKeys[K comparable, T any](s *Store[K, T], less func(a, b K) bool) []K {
	keys := s.Keys()
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
