// Package router classifies decoded frames. Responses go to the correlator
// pipe, CAN messages to the receive queue and status events to EventState.
package router

import (
	"context"
	"sync/atomic"

	"github.com/roffe/kvcan/pkg/pipe"
	"github.com/roffe/kvcan/pkg/protocol"
	"github.com/roffe/kvcan/pkg/queue"
)

// Counters are cumulative reception statistics.
type Counters struct {
	Messages     uint64 // data frames queued
	ErrorFrames  uint64 // error frames queued
	Filtered     uint64 // rejected by the operation mode
	Dropped      uint64 // receive queue full
	Overruns     uint64
	Responses    uint64
	Acks         uint64
	Events       uint64
	Unrecognized uint64
}

type Router struct {
	queue  *queue.Queue[protocol.Message]
	pipe   *pipe.Pipe
	window *TxWindow
	state  *EventState

	// forwardErrors sends firmware error events to the pipe as well so a
	// pending request fails fast. They are dropped when the pipe is full.
	forwardErrors bool

	mode      atomic.Uint32
	timerFreq atomic.Uint32

	messages, errorFrames, filtered, dropped, overruns atomic.Uint64
	responses, acks, events, unrecognized              atomic.Uint64
}

func New(q *queue.Queue[protocol.Message], p *pipe.Pipe, w *TxWindow, ev *EventState, forwardErrors bool) *Router {
	r := &Router{
		queue:         q,
		pipe:          p,
		window:        w,
		state:         ev,
		forwardErrors: forwardErrors,
	}
	r.timerFreq.Store(1)
	return r
}

func (r *Router) SetMode(m protocol.OpMode) {
	r.mode.Store(uint32(m))
}

func (r *Router) Mode() protocol.OpMode {
	return protocol.OpMode(r.mode.Load())
}

// SetTimerFreq sets the hardware timer frequency in MHz used for timestamps.
func (r *Router) SetTimerFreq(mhz uint32) {
	r.timerFreq.Store(mhz)
}

// Accept reports whether a received message passes the operation mode.
func Accept(mode protocol.OpMode, m *protocol.Message) bool {
	switch {
	case m.Extended && mode&protocol.ModeNXTD != 0:
		return false
	case m.Remote && mode&protocol.ModeNRTR != 0:
		return false
	case m.ErrorFrame && mode&protocol.ModeERR == 0:
		return false
	}
	return true
}

// Dispatch routes one frame. It only blocks while handing a response to a
// full pipe.
func (r *Router) Dispatch(ctx context.Context, f protocol.Frame) {
	switch t := f.(type) {
	case *protocol.CommandResponse:
		r.responses.Add(1)
		_ = r.pipe.Put(ctx, t)
	case *protocol.CanDataFrame:
		if !Accept(r.Mode(), &t.Msg) {
			r.filtered.Add(1)
			return
		}
		msg := t.Msg
		msg.Timestamp = protocol.TimestampFromTicks(t.Ticks, r.timerFreq.Load())
		if !r.queue.Push(msg) {
			r.dropped.Add(1)
			return
		}
		if msg.ErrorFrame {
			r.errorFrames.Add(1)
		} else {
			r.messages.Add(1)
		}
	case *protocol.TxAck:
		r.acks.Add(1)
		if r.window.Ack(t.TransID) {
			_ = r.pipe.Put(ctx, t)
		}
	case *protocol.ChipStateEvent:
		r.events.Add(1)
		r.state.SetChipState(t.ChipState)
	case *protocol.ErrorEvent:
		r.events.Add(1)
		r.state.SetError(t.ErrorReport)
		if r.forwardErrors {
			r.pipe.TryPut(t)
		}
	case *protocol.CanErrorEvent:
		r.events.Add(1)
		r.state.SetCanError(t.CanError)
	case *protocol.FlagEvent:
		if t.Flags&protocol.MsgFlagOverrun != 0 {
			r.overruns.Add(1)
		}
		r.state.SetFlags(t.Flags)
	default:
		r.unrecognized.Add(1)
	}
}

func (r *Router) Counters() Counters {
	return Counters{
		Messages:     r.messages.Load(),
		ErrorFrames:  r.errorFrames.Load(),
		Filtered:     r.filtered.Load(),
		Dropped:      r.dropped.Load(),
		Overruns:     r.overruns.Load(),
		Responses:    r.responses.Load(),
		Acks:         r.acks.Load(),
		Events:       r.events.Load(),
		Unrecognized: r.unrecognized.Load(),
	}
}
