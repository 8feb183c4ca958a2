package logs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/authgate/internal/filex"
)

// FileRepository keeps a stream as one JSON array on disk. The array is
// loaded once and cached; each Append rewrites the file atomically.
type FileRepository[T any] struct {
	path string
	cap  int

	mu      sync.Mutex
	loaded  bool
	entries []T
}

func NewFileRepository[T any](dir string, stream Stream) *FileRepository[T] {
	return &FileRepository[T]{path: filepath.Join(dir, stream.File), cap: stream.Cap}
}

func (r *FileRepository[T]) load() error {
	if r.loaded {
		return nil
	}
	var entries []T
	if _, err := filex.ReadJSON(r.path, &entries); err != nil {
		return fmt.Errorf("file error: %w", err)
	}
	r.entries = capSlice(entries, r.cap)
	r.loaded = true
	return nil
}

func (r *FileRepository[T]) Append(ctx context.Context, entry T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(); err != nil {
		return err
	}

	next := capSlice(append(r.entries, entry), r.cap)
	if err := filex.WriteJSONAtomic(r.path, next); err != nil {
		return fmt.Errorf("file error: %w", err)
	}
	// Copy after trimming so the backing array does not grow without bound.
	if len(next) == r.cap {
		next = append([]T(nil), next...)
	}
	r.entries = next
	return nil
}

func (r *FileRepository[T]) Tail(ctx context.Context, limit int) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(); err != nil {
		return nil, err
	}
	return append([]T(nil), capSlice(r.entries, limit)...), nil
}
