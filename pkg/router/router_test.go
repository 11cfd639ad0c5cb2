package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roffe/kvcan/pkg/pipe"
	"github.com/roffe/kvcan/pkg/protocol"
	"github.com/roffe/kvcan/pkg/queue"
)

func newRouter(size int, forwardErrors bool) (*Router, *queue.Queue[protocol.Message], *pipe.Pipe, *TxWindow, *EventState) {
	q := queue.New[protocol.Message](size)
	p := pipe.New(8)
	w := NewTxWindow(4)
	ev := &EventState{}
	return New(q, p, w, ev, forwardErrors), q, p, w, ev
}

func TestTxWindow(t *testing.T) {
	w := NewTxWindow(3)
	var ids []uint8
	for i := 0; i < 3; i++ {
		id, err := w.Acquire(false)
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 0 {
		t.Errorf("transaction ids = %v, want [1 2 0]", ids)
	}
	if _, err := w.Acquire(false); !errors.Is(err, ErrWindowFull) {
		t.Fatalf("err = %v, want ErrWindowFull", err)
	}
	if w.Ack(ids[0]) {
		t.Error("ack forwarded although none was awaited")
	}
	if _, err := w.Acquire(false); err != nil {
		t.Errorf("send after ack: %v", err)
	}
	if _, err := w.Acquire(false); !errors.Is(err, ErrWindowFull) {
		t.Errorf("second send after one ack: %v", err)
	}
}

func TestTxWindowForwarding(t *testing.T) {
	tests := []struct {
		name     string
		awaitAck bool
		offset   uint8
		want     bool
	}{
		{"awaited", true, 0, true},
		{"stale id", true, 1, false},
		{"no ack expected", false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewTxWindow(8)
			id, err := w.Acquire(tt.awaitAck)
			if err != nil {
				t.Fatal(err)
			}
			if got := w.Ack(id + tt.offset); got != tt.want {
				t.Errorf("Ack = %v, want %v", got, tt.want)
			}
			if w.Outstanding() != 0 {
				t.Errorf("outstanding = %d after ack", w.Outstanding())
			}
		})
	}
}

func TestTxWindowRelease(t *testing.T) {
	w := NewTxWindow(1)
	if _, err := w.Acquire(true); err != nil {
		t.Fatal(err)
	}
	w.Release()
	w.Release()
	if w.Outstanding() != 0 {
		t.Errorf("outstanding = %d", w.Outstanding())
	}
	w.Ack(0)
	if w.Outstanding() != 0 {
		t.Errorf("ack without a request went negative: %d", w.Outstanding())
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name string
		mode protocol.OpMode
		msg  protocol.Message
		want bool
	}{
		{"standard", protocol.ModeDefault, protocol.Message{ID: 1}, true},
		{"extended allowed", protocol.ModeDefault, protocol.Message{Extended: true}, true},
		{"extended suppressed", protocol.ModeNXTD, protocol.Message{Extended: true}, false},
		{"remote suppressed", protocol.ModeNRTR, protocol.Message{Remote: true}, false},
		{"error frame without reporting", protocol.ModeDefault, protocol.Message{ErrorFrame: true}, false},
		{"error frame reported", protocol.ModeERR, protocol.Message{ErrorFrame: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Accept(tt.mode, &tt.msg); got != tt.want {
				t.Errorf("Accept = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatchMessages(t *testing.T) {
	r, q, _, _, _ := newRouter(2, false)
	r.SetTimerFreq(24)
	r.SetMode(protocol.ModeNXTD)
	ctx := context.Background()

	r.Dispatch(ctx, &protocol.CanDataFrame{Msg: protocol.Message{ID: 0x100, DLC: 1}, Ticks: 24000})
	r.Dispatch(ctx, &protocol.CanDataFrame{Msg: protocol.Message{ID: 0x100, Extended: true}})
	r.Dispatch(ctx, &protocol.CanDataFrame{Msg: protocol.Message{ID: 0x101}})
	r.Dispatch(ctx, &protocol.CanDataFrame{Msg: protocol.Message{ID: 0x102}})

	c := r.Counters()
	if c.Messages != 2 || c.Filtered != 1 || c.Dropped != 1 {
		t.Errorf("counters = %+v", c)
	}
	m, err := q.Pop(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != 0x100 || m.Timestamp != time.Millisecond {
		t.Errorf("got id 0x%X at %v", m.ID, m.Timestamp)
	}
}

func TestDispatchEvents(t *testing.T) {
	r, _, p, _, ev := newRouter(1, false)
	ctx := context.Background()

	r.Dispatch(ctx, &protocol.ChipStateEvent{ChipState: protocol.ChipState{BusStatus: protocol.BusStatusErrorPassive}})
	r.Dispatch(ctx, &protocol.ChipStateEvent{ChipState: protocol.ChipState{BusStatus: protocol.BusStatusBusOff}})
	r.Dispatch(ctx, &protocol.CanErrorEvent{CanError: protocol.CanError{TxErrors: 5}})
	r.Dispatch(ctx, &protocol.ErrorEvent{ErrorReport: protocol.ErrorReport{Code: protocol.FirmwareErrCAN}})
	r.Dispatch(ctx, &protocol.FlagEvent{Flags: protocol.MsgFlagOverrun})
	r.Dispatch(ctx, &protocol.Unrecognized{Cmd: 0x7A})

	if cs, ok := ev.ChipState(); !ok || cs.BusStatus != protocol.BusStatusBusOff {
		t.Errorf("chip state = %+v, %v", cs, ok)
	}
	if ce, ok := ev.CanError(); !ok || ce.TxErrors != 5 {
		t.Errorf("can error = %+v, %v", ce, ok)
	}
	if e, ok := ev.Error(); !ok || e.Code != protocol.FirmwareErrCAN {
		t.Errorf("error = %+v, %v", e, ok)
	}
	c := r.Counters()
	if c.Events != 4 || c.Overruns != 1 || c.Unrecognized != 1 {
		t.Errorf("counters = %+v", c)
	}
	// error events stay out of the pipe unless forwarding is enabled
	if f, err := p.Await(ctx, protocol.CmdErrorEvent, 10*time.Millisecond); !errors.Is(err, pipe.ErrTimeout) {
		t.Errorf("got %v, %v", f, err)
	}
	ev.Reset()
	if _, ok := ev.ChipState(); ok {
		t.Error("chip state survived Reset")
	}
}

func TestDispatchForwardsErrors(t *testing.T) {
	r, _, p, _, _ := newRouter(1, true)
	ctx := context.Background()
	r.Dispatch(ctx, &protocol.ErrorEvent{ErrorReport: protocol.ErrorReport{Code: protocol.FirmwareErrParameter}})
	_, err := p.Await(ctx, protocol.CmdStartChipResp, time.Second)
	var fw *pipe.FirmwareError
	if !errors.As(err, &fw) || fw.Code != protocol.FirmwareErrParameter {
		t.Errorf("err = %v, want firmware error", err)
	}
}

func TestDispatchErrorsWithoutWaiter(t *testing.T) {
	r, q, p, _, ev := newRouter(4, true)
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			r.Dispatch(ctx, &protocol.ErrorEvent{ErrorReport: protocol.ErrorReport{Code: protocol.FirmwareErrParameter}})
		}
		r.Dispatch(ctx, &protocol.CanDataFrame{Msg: protocol.Message{ID: 0x123}})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on error events nobody waits for")
	}
	m, err := q.Pop(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != 0x123 {
		t.Errorf("got id 0x%X", m.ID)
	}
	if p.Overflowed() != 12 {
		t.Errorf("overflowed = %d, want 12", p.Overflowed())
	}
	if e, ok := ev.Error(); !ok || e.Code != protocol.FirmwareErrParameter {
		t.Errorf("Error() = %+v, %v", e, ok)
	}
}

func TestDispatchResponsesAndAcks(t *testing.T) {
	r, _, p, w, _ := newRouter(1, false)
	ctx := context.Background()

	r.Dispatch(ctx, &protocol.CommandResponse{Cmd: protocol.CmdStartChipResp})
	if _, err := p.Await(ctx, protocol.CmdStartChipResp, time.Second); err != nil {
		t.Fatalf("response not forwarded: %v", err)
	}

	id, _ := w.Acquire(true)
	r.Dispatch(ctx, &protocol.TxAck{Cmd: protocol.CmdTxAcknowledge, TransID: id})
	f, err := p.Await(ctx, protocol.CmdTxAcknowledge, time.Second)
	if err != nil {
		t.Fatalf("ack not forwarded: %v", err)
	}
	if f.(*protocol.TxAck).TransID != id {
		t.Errorf("ack id = %d, want %d", f.(*protocol.TxAck).TransID, id)
	}
	if w.Outstanding() != 0 {
		t.Errorf("outstanding = %d", w.Outstanding())
	}
}
