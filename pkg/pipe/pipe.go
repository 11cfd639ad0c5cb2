// Package pipe correlates synchronous requests with their responses.
//
// The reception goroutine writes decoded response frames into the pipe and
// the caller waits for the command code it expects. Frames that do not match
// are discarded, which lets unrelated responses interleave with a request.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roffe/kvcan/pkg/protocol"
)

var (
	ErrTimeout = errors.New("response timeout")
	ErrClosed  = errors.New("pipe closed")
)

// DefaultSize holds a burst of unrelated responses.
const DefaultSize = 16

// FirmwareError is returned by Await when the device reports an error event
// while a request is outstanding.
type FirmwareError struct {
	protocol.ErrorReport
}

func (e *FirmwareError) Error() string {
	return fmt.Sprintf("firmware error %d (info 0x%04X 0x%04X)", e.Code, e.AddInfo1, e.AddInfo2)
}

// Pipe is a single reader, single writer frame channel.
type Pipe struct {
	ch        chan protocol.Frame
	discarded atomic.Uint64
	overflow  atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func New(size int) *Pipe {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pipe{
		ch:     make(chan protocol.Frame, size),
		closed: make(chan struct{}),
	}
}

// Put writes f, blocking while the pipe is full. It fails once the pipe is
// closed or ctx is done.
func (p *Pipe) Put(ctx context.Context, f protocol.Frame) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.ch <- f:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut writes f if there is room and reports whether it did. Frames that
// do not fit are counted and dropped.
func (p *Pipe) TryPut(f protocol.Frame) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.ch <- f:
		return true
	default:
		p.overflow.Add(1)
		return false
	}
}

// Await waits for a response with command code cmd.
func (p *Pipe) Await(ctx context.Context, cmd uint8, timeout time.Duration) (protocol.Frame, error) {
	return p.AwaitFunc(ctx, func(f protocol.Frame) bool {
		return f.Command() == cmd
	}, timeout)
}

// AwaitFunc waits for the first frame accepted by match. A zero timeout
// returns immediately with a nil frame; a negative timeout waits until ctx
// is done or the pipe is closed. An ErrorEvent in the pipe aborts the wait
// with a *FirmwareError.
func (p *Pipe) AwaitFunc(ctx context.Context, match func(protocol.Frame) bool, timeout time.Duration) (protocol.Frame, error) {
	if timeout == 0 {
		return nil, nil
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		select {
		case f := <-p.ch:
			if e, ok := f.(*protocol.ErrorEvent); ok {
				return nil, &FirmwareError{e.ErrorReport}
			}
			if match(f) {
				return f, nil
			}
			p.discarded.Add(1)
		case <-expired:
			return nil, ErrTimeout
		case <-p.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drain discards stale frames left over from earlier requests.
func (p *Pipe) Drain() int {
	n := 0
	for {
		select {
		case <-p.ch:
			n++
		default:
			p.discarded.Add(uint64(n))
			return n
		}
	}
}

// Discarded returns the number of frames dropped while waiting.
func (p *Pipe) Discarded() uint64 {
	return p.discarded.Load()
}

// Overflowed returns the number of frames TryPut dropped on a full pipe.
func (p *Pipe) Overflowed() uint64 {
	return p.overflow.Load()
}

// Close makes pending and future waits fail with ErrClosed.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}
