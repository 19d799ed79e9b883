package queue

// Ring is a bounded FIFO queue of T backed by a circular buffer.
//
// When the ring is full, Enqueue overwrites the oldest item and reports the
// overwrite, which lets acquisition pipelines drop the stalest samples under
// backpressure instead of blocking the transport reader.
//
// Ring is not safe for concurrent use; callers synchronize externally.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a bounded ring queue with the given capacity.
// It panics when capacity is not positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("queue: ring capacity must be positive")
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Enqueue adds an item to the tail of the ring. When the ring is full it
// overwrites the oldest item and returns true.
func (r *Ring[T]) Enqueue(item T) (dropped bool) {
	tail := (r.head + r.size) % len(r.items)
	r.items[tail] = item

	if r.size == len(r.items) {
		r.head = (r.head + 1) % len(r.items)
		return true
	}

	r.size++
	return false
}

// Dequeue removes and returns the oldest item.
// The second return value is false when the ring is empty.
func (r *Ring[T]) Dequeue() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.head]
	r.items[r.head] = zero // release the reference for GC
	r.head = (r.head + 1) % len(r.items)
	r.size--

	return item, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[r.head], true
}

// Reset empties the ring.
func (r *Ring[T]) Reset() {
	clear(r.items)
	r.head = 0
	r.size = 0
}

// IsEmpty returns true if the ring is empty.
func (r *Ring[T]) IsEmpty() bool { return r.size == 0 }

// Length returns the number of items in the ring.
func (r *Ring[T]) Length() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }
