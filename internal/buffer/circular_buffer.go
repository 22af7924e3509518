package buffer

import (
	"fmt"
	"sync"
)

// CircularBuffer keeps the most recent items up to a fixed capacity. Reads
// return copies in insertion order. Element types holding pointers, maps or
// slices need a copy func so that reads cannot reach stored state.
type CircularBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // index of the oldest item
	size  int
	clone func(T) T
}

func NewCircularBuffer[T any](capacity int) (*CircularBuffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("circular buffer capacity must be positive, got %d", capacity)
	}
	return &CircularBuffer[T]{
		items: make([]T, capacity),
	}, nil
}

// NewCircularBufferWithCopy deep copies every item on the way in and out
// with clone.
func NewCircularBufferWithCopy[T any](capacity int, clone func(T) T) (*CircularBuffer[T], error) {
	b, err := NewCircularBuffer[T](capacity)
	if err != nil {
		return nil, err
	}
	b.clone = clone
	return b, nil
}

// Append adds item, evicting the oldest entry once the buffer is full.
func (b *CircularBuffer[T]) Append(item T) {
	if b.clone != nil {
		item = b.clone(item)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = item
		b.size++
		return
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % capacity
}

func (b *CircularBuffer[T]) GetAll() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastLocked(b.size)
}

// GetLast returns up to n of the newest items, oldest first.
func (b *CircularBuffer[T]) GetLast(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > b.size {
		n = b.size
	}
	if n < 0 {
		n = 0
	}
	return b.lastLocked(n)
}

func (b *CircularBuffer[T]) lastLocked(n int) []T {
	out := make([]T, n)
	capacity := len(b.items)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(start+i)%capacity]
		if b.clone != nil {
			out[i] = b.clone(out[i])
		}
	}
	return out
}

func (b *CircularBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *CircularBuffer[T]) Cap() int {
	return len(b.items)
}

func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
