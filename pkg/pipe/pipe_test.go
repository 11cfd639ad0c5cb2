package pipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roffe/kvcan/pkg/protocol"
)

func resp(cmd uint8) protocol.Frame {
	return &protocol.CommandResponse{Cmd: cmd}
}

func TestAwaitDiscardsOthers(t *testing.T) {
	p := New(4)
	ctx := context.Background()
	_ = p.Put(ctx, resp(protocol.CmdGetBusParamsResp))
	_ = p.Put(ctx, resp(protocol.CmdReadClockResp))
	_ = p.Put(ctx, resp(protocol.CmdStartChipResp))

	f, err := p.Await(ctx, protocol.CmdStartChipResp, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if f.Command() != protocol.CmdStartChipResp {
		t.Errorf("got %s", protocol.CommandName(f.Command()))
	}
	if p.Discarded() != 2 {
		t.Errorf("discarded = %d, want 2", p.Discarded())
	}
}

func TestAwait(t *testing.T) {
	tests := []struct {
		name    string
		feed    []protocol.Frame
		timeout time.Duration
		wantErr error
		wantNil bool
		wantFw  bool
	}{
		{
			name:    "fire and forget",
			timeout: 0,
			wantNil: true,
		},
		{
			name:    "timeout",
			feed:    []protocol.Frame{resp(protocol.CmdStopChipResp)},
			timeout: 20 * time.Millisecond,
			wantErr: ErrTimeout,
		},
		{
			name: "firmware error",
			feed: []protocol.Frame{&protocol.ErrorEvent{ErrorReport: protocol.ErrorReport{
				Code: protocol.FirmwareErrParameter,
			}}},
			timeout: time.Second,
			wantFw:  true,
		},
		{
			name:    "match",
			feed:    []protocol.Frame{resp(protocol.CmdStartChipResp)},
			timeout: -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(0)
			for _, f := range tt.feed {
				if err := p.Put(context.Background(), f); err != nil {
					t.Fatal(err)
				}
			}
			f, err := p.Await(context.Background(), protocol.CmdStartChipResp, tt.timeout)
			var fwErr *FirmwareError
			switch {
			case tt.wantFw:
				if !errors.As(err, &fwErr) || fwErr.Code != protocol.FirmwareErrParameter {
					t.Errorf("err = %v, want FirmwareError", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.wantNil:
				if f != nil || err != nil {
					t.Errorf("got %v, %v", f, err)
				}
			default:
				if err != nil || f == nil {
					t.Errorf("got %v, %v", f, err)
				}
			}
		})
	}
}

func TestCloseUnblocksWaiter(t *testing.T) {
	p := New(1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Close()
	}()
	if _, err := p.Await(context.Background(), protocol.CmdStartChipResp, -1); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := p.Put(context.Background(), resp(protocol.CmdStartChipResp)); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after close = %v", err)
	}
}

func TestDrain(t *testing.T) {
	p := New(4)
	_ = p.Put(context.Background(), resp(protocol.CmdStartChipResp))
	_ = p.Put(context.Background(), resp(protocol.CmdStopChipResp))
	if n := p.Drain(); n != 2 {
		t.Errorf("Drain = %d", n)
	}
	if _, err := p.Await(context.Background(), protocol.CmdStartChipResp, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout after drain", err)
	}
}

func TestTryPut(t *testing.T) {
	tests := []struct {
		name         string
		size         int
		puts         int
		closed       bool
		wantAccepted int
		wantOverflow uint64
	}{
		{name: "room", size: 4, puts: 3, wantAccepted: 3},
		{name: "full", size: 2, puts: 20, wantAccepted: 2, wantOverflow: 18},
		{name: "closed", size: 2, puts: 3, closed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.size)
			if tt.closed {
				p.Close()
			}
			accepted := 0
			for i := 0; i < tt.puts; i++ {
				if p.TryPut(&protocol.ErrorEvent{}) {
					accepted++
				}
			}
			if accepted != tt.wantAccepted {
				t.Errorf("accepted %d, want %d", accepted, tt.wantAccepted)
			}
			if p.Overflowed() != tt.wantOverflow {
				t.Errorf("overflowed = %d, want %d", p.Overflowed(), tt.wantOverflow)
			}
		})
	}
}
