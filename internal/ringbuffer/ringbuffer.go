package ringbuffer

import (
	"sync"
)

// RingBuffer keeps the last size items appended to it.
type RingBuffer[T any] struct {
	size  int
	off   int
	count int
	total int
	data  []T
	mu    sync.Mutex
}

func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer[T]{
		size: size,
		data: make([]T, size),
	}
}

func (r *RingBuffer[T]) Append(d T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[r.off] = d
	r.off = (r.off + 1) % r.size
	if r.count < r.size {
		r.count++
	}
	r.total++
}

// GetAll appends the retained items to dst, oldest first.
func (r *RingBuffer[T]) GetAll(dst []T) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := (r.off - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		dst = append(dst, r.data[(start+i)%r.size])
	}
	return dst
}

func (r *RingBuffer[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Total is the number of items ever appended, including overwritten ones.
func (r *RingBuffer[T]) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
