// Package sidechannel delivers log entries to their store off the request
// path. Each Recorder owns a bounded queue drained by a single writer
// goroutine; failures are logged and reported to an Observer, never returned
// to the caller.
package sidechannel

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authgate/internal/logging"
)

// Sink is the durable destination of a stream.
type Sink[T any] interface {
	Append(ctx context.Context, entry T) error
}

// Observer is told about every write outcome and every dropped entry.
type Observer interface {
	OnWrite(stream string, err error)
	OnDrop(stream string)
}

type nopObserver struct{}

func (nopObserver) OnWrite(string, error) {}
func (nopObserver) OnDrop(string)         {}

// NopObserver ignores all notifications.
func NopObserver() Observer { return nopObserver{} }

type multiObserver []Observer

func (m multiObserver) OnWrite(stream string, err error) {
	for _, o := range m {
		o.OnWrite(stream, err)
	}
}

func (m multiObserver) OnDrop(stream string) {
	for _, o := range m {
		o.OnDrop(stream)
	}
}

// Observers fans notifications out to all of os.
func Observers(os ...Observer) Observer { return multiObserver(os) }

const (
	DefaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

type job[T any] struct {
	entry T
	flush chan struct{}
}

type Recorder[T any] struct {
	stream   string
	sink     Sink[T]
	logger   logging.Logger
	observer Observer

	mu     sync.RWMutex
	closed bool
	queue  chan job[T]
	done   chan struct{}
}

// New starts a Recorder for stream. queueSize <= 0 uses DefaultQueueSize.
func New[T any](stream string, sink Sink[T], queueSize int, logger logging.Logger, observer Observer) *Recorder[T] {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if observer == nil {
		observer = NopObserver()
	}
	r := &Recorder[T]{
		stream:   stream,
		sink:     sink,
		logger:   logger.With("module", "sidechannel", "stream", stream),
		observer: observer,
		queue:    make(chan job[T], queueSize),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder[T]) run() {
	defer close(r.done)
	for j := range r.queue {
		if j.flush != nil {
			close(j.flush)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.sink.Append(ctx, j.entry)
		cancel()
		if err != nil {
			r.logger.Error(ctx, "log write failed", "error", err)
		}
		r.observer.OnWrite(r.stream, err)
	}
}

// Record enqueues entry without blocking. The entry is dropped when the
// queue is full or the recorder is closed.
func (r *Recorder[T]) Record(entry T) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.observer.OnDrop(r.stream)
		return
	}

	select {
	case r.queue <- job[T]{entry: entry}:
	default:
		r.logger.Warn(context.Background(), "log queue full, entry dropped")
		r.observer.OnDrop(r.stream)
	}
}

// Flush waits until every entry recorded before the call has been written.
func (r *Recorder[T]) Flush(ctx context.Context) error {
	ack := make(chan struct{})

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil
	}
	select {
	case r.queue <- job[T]{flush: ack}:
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}
	r.mu.RUnlock()

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (r *Recorder[T]) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
