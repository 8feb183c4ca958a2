package logs

import (
	"context"
	"sync"
)

// MemoryRepository keeps a capped stream in process memory only.
type MemoryRepository[T any] struct {
	mu      sync.RWMutex
	cap     int
	entries []T
}

func NewMemoryRepository[T any](stream Stream) *MemoryRepository[T] {
	return &MemoryRepository[T]{cap: stream.Cap}
}

func (r *MemoryRepository[T]) Append(ctx context.Context, entry T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = capSlice(append(r.entries, entry), r.cap)
	return nil
}

func (r *MemoryRepository[T]) Tail(ctx context.Context, limit int) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]T(nil), capSlice(r.entries, limit)...), nil
}
