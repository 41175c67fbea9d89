package certified

import "slices"

// ListStore is a Store whose values are lists. Besides the Store operations
// it can drop stale elements of an entry while keeping the rest of it.
type ListStore[K comparable, E any] struct {
	*Store[K, []E]
}

// NewListStore creates an empty ListStore. Lists are copied on every read
// and write so callers never share backing arrays with the store.
func NewListStore[K comparable, E any]() *ListStore[K, E] {
	return &ListStore[K, E]{
		Store: NewStore[K, []E](WithClone(slices.Clone[[]E])),
	}
}

// Filter keeps only the elements of key's list for which keep returns true.
// The certified flag of the entry is preserved. Absent and invalidated keys
// are left untouched. It reports whether any element was removed.
func (s *ListStore[K, E]) Filter(key K, keep func(E) bool) bool {
	return s.update(key, func(v Value[[]E]) (Value[[]E], bool) {
		kept := make([]E, 0, len(v.Data))
		for _, item := range v.Data {
			if keep(item) {
				kept = append(kept, item)
			}
		}
		if len(kept) == len(v.Data) {
			return v, false
		}
		return Value[[]E]{Data: kept, Certified: v.Certified}, true
	})
}

// Len returns the number of elements stored for key, zero when absent or
// invalidated
func (s *ListStore[K, E]) Len(key K) int {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return 0
	}
	return len(v.Data)
}
