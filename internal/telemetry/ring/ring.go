// Package ring provides a fixed-capacity FIFO buffer. It is not safe for
// concurrent use; owners guard it with their own lock.
package ring

// Buffer keeps the most recent Cap() items in insertion order.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest item
	size  int
}

// New returns a buffer holding at most capacity items. A non-positive
// capacity is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest item when full. It reports whether an
// item was evicted.
func (b *Buffer[T]) Push(v T) (evicted bool) {
	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = v
		b.size++
		return false
	}

	b.items[b.head] = v
	b.head = (b.head + 1) % capacity
	return true
}

func (b *Buffer[T]) Len() int { return b.size }

func (b *Buffer[T]) Cap() int { return len(b.items) }

// At returns the i-th oldest item.
func (b *Buffer[T]) At(i int) T {
	return b.items[(b.head+i)%len(b.items)]
}

// Last returns the most recently pushed item.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.At(b.size - 1), true
}

// Each visits items oldest first until fn returns false.
func (b *Buffer[T]) Each(fn func(T) bool) {
	for i := 0; i < b.size; i++ {
		if !fn(b.At(i)) {
			return
		}
	}
}

// EachReverse visits items newest first until fn returns false.
func (b *Buffer[T]) EachReverse(fn func(T) bool) {
	for i := b.size - 1; i >= 0; i-- {
		if !fn(b.At(i)) {
			return
		}
	}
}

// Snapshot copies the items oldest first.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.At(i)
	}
	return out
}

// Tail copies the newest n items, oldest first.
func (b *Buffer[T]) Tail(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.At(start + i)
	}
	return out
}

// Retain keeps only the items for which keep returns true, preserving order,
// and returns how many were removed.
func (b *Buffer[T]) Retain(keep func(T) bool) int {
	kept := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		if v := b.At(i); keep(v) {
			kept = append(kept, v)
		}
	}

	removed := b.size - len(kept)
	if removed == 0 {
		return 0
	}

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	copy(b.items, kept)
	b.head = 0
	b.size = len(kept)
	return removed
}
