// Package stream provides the queue and stop signal shared by components
// cooperating on one data flow inside a mediator context.
package stream

import (
	"context"
	"sync"

	errspkg "github.com/drblury/nether/internal/runtime/errors"
)

// DefaultCapacity is used when New receives a non-positive capacity.
const DefaultCapacity = 64

// Stream is a bounded work queue plus a broadcast stop signal. Each value is
// consumed by exactly one Get. Stopping is advisory: participants are expected
// to watch Done and return on their own.
type Stream struct {
	items    chan any
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a stream whose queue holds up to capacity values.
func New(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stream{
		items: make(chan any, capacity),
		done:  make(chan struct{}),
	}
}

// Put enqueues v, waiting while the queue is full.
func (s *Stream) Put(ctx context.Context, v any) error {
	select {
	case <-s.done:
		return errspkg.ErrStreamStopped
	default:
	}
	select {
	case s.items <- v:
		return nil
	case <-s.done:
		return errspkg.ErrStreamStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next value, waiting while the queue is empty. Values
// buffered before Stop are still handed out; after that Get reports
// ErrStreamStopped.
func (s *Stream) Get(ctx context.Context) (any, error) {
	select {
	case v := <-s.items:
		return v, nil
	default:
	}
	select {
	case v := <-s.items:
		return v, nil
	case <-s.done:
		select {
		case v := <-s.items:
			return v, nil
		default:
			return nil, errspkg.ErrStreamStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop raises the shared stop signal. Safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Done is closed once Stop has been called.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stopped reports whether Stop has been called.
func (s *Stream) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered values.
func (s *Stream) Len() int {
	return len(s.items)
}
