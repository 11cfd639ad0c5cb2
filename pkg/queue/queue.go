// Package queue provides the bounded receive queue that sits between the
// reception goroutine and the caller.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrEmpty is returned by Pop when no element arrived within the timeout.
	ErrEmpty  = errors.New("queue empty")
	ErrClosed = errors.New("queue closed")
)

// Queue is a FIFO with a fixed capacity. Push never blocks; an element that
// does not fit is dropped and counted.
type Queue[T any] struct {
	ch      chan T
	dropped atomic.Uint64
	pushed  atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func New[T any](size int) *Queue[T] {
	if size <= 0 {
		size = 1
	}
	return &Queue[T]{
		ch:     make(chan T, size),
		closed: make(chan struct{}),
	}
}

// Push enqueues v and reports whether it was accepted.
func (q *Queue[T]) Push(v T) bool {
	select {
	case <-q.closed:
		q.dropped.Add(1)
		return false
	default:
	}
	select {
	case q.ch <- v:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop dequeues the oldest element. A zero timeout polls, a negative timeout
// waits until an element arrives, ctx is done or the queue is closed.
// Elements queued before Close are still returned.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}
	if timeout == 0 {
		return zero, ErrEmpty
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case v := <-q.ch:
		return v, nil
	case <-q.closed:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-expired:
		return zero, ErrEmpty
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// C exposes the underlying channel for use in select statements.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

func (q *Queue[T]) Len() int {
	return len(q.ch)
}

func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Dropped returns the number of elements rejected because the queue was full.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Pushed returns the number of accepted elements.
func (q *Queue[T]) Pushed() uint64 {
	return q.pushed.Load()
}

// Flush discards every queued element and returns how many there were.
func (q *Queue[T]) Flush() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Close wakes up waiting readers. Further pushes are dropped.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}
