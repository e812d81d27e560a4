// Package buffer provides the fixed-size ring that backs the in-memory
// log buffer and the event bus history.
package buffer

// Ring keeps the most recent entries up to a fixed capacity. Once full,
// each Add evicts the oldest entry. Ring is not safe for concurrent use;
// callers hold their own lock.
type Ring[T any] struct {
	entries []T
	next    int
	full    bool
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{entries: make([]T, capacity)}
}

func (r *Ring[T]) Add(entry T) {
	if r == nil || len(r.entries) == 0 {
		return
	}
	r.entries[r.next] = entry
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// List returns the buffered entries, oldest first.
func (r *Ring[T]) List() []T {
	if r == nil {
		return nil
	}
	if !r.full {
		if r.next == 0 {
			return nil
		}
		out := make([]T, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]T, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
