package regime

// Ring is a fixed-capacity ring buffer. Appending beyond capacity evicts the
// oldest element, so the length bound is an invariant of the type rather than
// a trim the caller has to remember.
type Ring[T any] struct {
	buf   []T
	head  int
	count int
}

// NewRing creates a ring buffer with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append adds v, evicting the oldest element when full.
func (r *Ring[T]) Append(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// At returns the i-th oldest element. Panics if i is out of range,
// mirroring slice indexing.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("regime: ring index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element and false if the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.count - 1), true
}

// Tail copies out the newest n elements in oldest-to-newest order. When fewer
// than n are stored it returns all of them.
func (r *Ring[T]) Tail(n int) []T {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.At(start + i)
	}
	return out
}

// Values copies out all stored elements in oldest-to-newest order.
func (r *Ring[T]) Values() []T {
	return r.Tail(r.count)
}

// Reset drops all stored elements, keeping capacity.
func (r *Ring[T]) Reset() {
	r.head = 0
	r.count = 0
}
