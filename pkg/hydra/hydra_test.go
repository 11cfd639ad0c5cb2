package hydra

import (
	"bytes"
	"errors"
	"testing"

	"github.com/roffe/kvcan/pkg/protocol"
)

func TestAddressing(t *testing.T) {
	tests := []struct {
		addr, dst, want uint8
	}{
		{0x00, 0x05, 0x05},
		{0xC0, 0x3E, 0xFE},
		{0x7F, 0x01, 0x41},
		{0x00, 0xFF, 0x3F},
	}
	for _, tt := range tests {
		if got := SetDst(tt.addr, tt.dst); got != tt.want {
			t.Errorf("SetDst(0x%02X, 0x%02X) = 0x%02X, want 0x%02X", tt.addr, tt.dst, got, tt.want)
		}
	}
	if got := SetSeq(0xF123, 0x0456); got != 0xF456 {
		t.Errorf("SetSeq = 0x%04X", got)
	}
	if got := Seq(SetSeq(0, 0x1FFF)); got != 0x0FFF {
		t.Errorf("Seq = 0x%04X", got)
	}
}

func TestMapChannel(t *testing.T) {
	req := MapChannel(0)
	if len(req) != FrameLen || req[0] != protocol.CmdMapChannelReq || Dst(req[1]) != RouterHE {
		t.Fatalf("request header = % X", req[:4])
	}
	name, ch, trans, err := ParseMapChannelRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if name != "CAN" || ch != 0 || trans != 0x40 {
		t.Errorf("got %q %d 0x%X", name, ch, trans)
	}
	name, _, trans, _ = ParseMapChannelRequest(MapSysDbg())
	if name != "SYSDBG" || trans != 0x61 {
		t.Errorf("sysdbg got %q 0x%X", name, trans)
	}
	he, ch, err := ParseMapChannel(MapChannelResponse(0x12, trans))
	if err != nil {
		t.Fatal(err)
	}
	if he != 0x12 || ch != 1 {
		t.Errorf("he, channel = 0x%X, %d", he, ch)
	}
}

func TestBusParamsRoundTrip(t *testing.T) {
	nominal := protocol.BusParams{BitRate: 500000, TSeg1: 63, TSeg2: 16, SJW: 16, NoSamp: 1}
	data := protocol.BusParams{BitRate: 2000000, TSeg1: 15, TSeg2: 4, SJW: 4, NoSamp: 1}

	got, err := ParseSetBusParams(SetBusParams(3, nominal))
	if err != nil || got != nominal {
		t.Errorf("SetBusParams round trip = %+v, %v", got, err)
	}
	got, err = ParseBusParams(BusParamsResponse(3, nominal))
	if err != nil || got != nominal {
		t.Errorf("GET_BUSPARAMS_RESP round trip = %+v, %v", got, err)
	}

	fd := protocol.BusParamsFd{Nominal: nominal, Data: data, CanFD: true}
	gotFd, err := ParseSetBusParamsFd(SetBusParamsFd(3, fd))
	if err != nil || gotFd != fd {
		t.Errorf("SetBusParamsFd round trip = %+v, %v", gotFd, err)
	}

	tq := protocol.BusParamsTq{
		Arbitration: protocol.TqSegment{Prop: 1, Phase1: 62, Phase2: 16, SJW: 16, BRP: 2},
		Data:        protocol.TqSegment{Prop: 1, Phase1: 14, Phase2: 4, SJW: 4, BRP: 2},
		CanFD:       true,
	}
	gotTq, err := ParseSetBusParamsTqRequest(SetBusParamsTq(3, tq))
	if err != nil || gotTq != tq {
		t.Errorf("SetBusParamsTq round trip = %+v, %v", gotTq, err)
	}
	gotTq, status, err := ParseBusParamsTq(BusParamsTqResponse(3, tq, 0))
	if err != nil || gotTq != tq || status != 0 {
		t.Errorf("GET_BUSPARAMS_TQ_RESP round trip = %+v, %d, %v", gotTq, status, err)
	}
	if req := GetBusParams(3, true); req[4] != 1 || Dst(req[1]) != 3 {
		t.Errorf("GetBusParams data phase = % X", req[:6])
	}
}

func TestTxMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     protocol.Message
		wantLen int
	}{
		{"empty", protocol.Message{ID: 0x100}, FrameLen},
		{"classic", protocol.Message{ID: 0x100, DLC: 8, Data: [64]byte{1, 2, 3, 4, 5, 6, 7, 8}}, ExtFrameLen},
		{"extended remote", protocol.Message{ID: 0x18DAF110, Extended: true, Remote: true, DLC: 2}, ExtFrameLen},
		{"fd", protocol.Message{ID: 0x7E0, DLC: 9, FDF: true, BRS: true, Data: [64]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}, ExtFrameLen},
		{"fd esi", protocol.Message{ID: 0x7E0, DLC: 1, FDF: true, ESI: true, Data: [64]byte{0xEE}}, ExtFrameLen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TxMessage(5, 17, &tt.msg)
			if len(req) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(req), tt.wantLen)
			}
			if n, err := FrameLength(req); err != nil || n != tt.wantLen {
				t.Fatalf("FrameLength = %d, %v", n, err)
			}
			ctrl := le.Uint32(req[20:])
			if ctrl&0xFF != 17 || ctrl&fpgaCtrlAck == 0 || uint8(ctrl>>8)&0x0F != tt.msg.DLC {
				t.Errorf("fpga control = 0x%08X", ctrl)
			}
			if req[24] != protocol.DLCToLen(req[25]) {
				t.Errorf("data bytes = %d for dlc %d", req[24], req[25])
			}
			dest, trans, got, err := ParseTxMessage(req)
			if err != nil {
				t.Fatal(err)
			}
			if dest != 5 || trans != 17 {
				t.Errorf("dest, trans = %d, %d", dest, trans)
			}
			if got != tt.msg {
				t.Errorf("got %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	fdMsg := protocol.Message{ID: 0x123, DLC: 15, FDF: true, BRS: true}
	for i := range fdMsg.Data {
		fdMsg.Data[i] = byte(i)
	}
	tests := []struct {
		name    string
		in      []byte
		wantN   int
		wantErr error
		check   func(t *testing.T, f protocol.Frame)
	}{
		{
			name:    "empty",
			wantErr: protocol.ErrTruncated,
		},
		{
			name:    "short ordinary frame",
			in:      StartChip(1)[:20],
			wantErr: protocol.ErrTruncated,
		},
		{
			name:    "extended header only",
			in:      []byte{protocol.CmdExtended, 0, 0, 0, 96},
			wantErr: protocol.ErrTruncated,
		},
		{
			name:    "extended length too small",
			in:      []byte{protocol.CmdExtended, 0, 0, 0, 8, 0, 0, 0},
			wantErr: protocol.ErrFraming,
		},
		{
			name:    "extended length too large",
			in:      []byte{protocol.CmdExtended, 0, 0, 0, 97, 0, 0, 0},
			wantErr: protocol.ErrFraming,
		},
		{
			name:  "fd message",
			in:    RxMessageFrame(2, &fdMsg, 0, 4711),
			wantN: ExtFrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				d, ok := f.(*protocol.CanDataFrame)
				if !ok {
					t.Fatalf("got %T", f)
				}
				if d.Msg != fdMsg || d.Ticks != 4711 {
					t.Errorf("got %+v", d.Msg)
				}
			},
		},
		{
			name:  "error frame",
			in:    RxMessageFrame(2, &protocol.Message{ErrorFrame: true, Data: [64]byte{1, 2, 3, 4}}, 0, 0),
			wantN: FrameLen + 4,
			check: func(t *testing.T, f protocol.Frame) {
				d, ok := f.(*protocol.CanDataFrame)
				if !ok || !d.Msg.ErrorFrame || d.Msg.DLC != 4 || d.Msg.Data[3] != 4 {
					t.Errorf("got %#v", f)
				}
			},
		},
		{
			name:  "overrun report",
			in:    RxMessageFrame(2, &protocol.Message{}, protocol.MsgFlagOverrun, 0),
			wantN: FrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				e, ok := f.(*protocol.FlagEvent)
				if !ok || e.Flags != protocol.MsgFlagOverrun {
					t.Errorf("got %#v", f)
				}
			},
		},
		{
			name:  "tx ack",
			in:    TxAckFrame(2, 33),
			wantN: FrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				a, ok := f.(*protocol.TxAck)
				if !ok || a.TransID != 33 || a.Command() != protocol.CmdTxAckFd {
					t.Errorf("got %#v", f)
				}
			},
		},
		{
			name:  "error event",
			in:    ErrorEventFrame(2, protocol.ErrorReport{Code: protocol.FirmwareErrParameter, AddInfo1: 7}),
			wantN: FrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				e, ok := f.(*protocol.ErrorEvent)
				if !ok || e.Code != protocol.FirmwareErrParameter || e.AddInfo1 != 7 {
					t.Errorf("got %#v", f)
				}
			},
		},
		{
			name:  "can error",
			in:    CanErrorFrame(2, protocol.CanError{Flags: 1, TxErrors: 96, BusStatus: protocol.BusStatusErrorWarning}),
			wantN: FrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				e, ok := f.(*protocol.CanErrorEvent)
				if !ok || e.Flags != 1 || e.TxErrors != 96 || e.BusStatus != protocol.BusStatusErrorWarning {
					t.Errorf("got %#v", f)
				}
			},
		},
		{
			name:  "chip state",
			in:    ChipStateFrame(2, protocol.ChipState{Time: 1, RxErrors: 3, BusStatus: protocol.BusStatusBusOff}),
			wantN: FrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				e, ok := f.(*protocol.ChipStateEvent)
				if !ok || e.RxErrors != 3 || e.BusStatus != protocol.BusStatusBusOff {
					t.Errorf("got %#v", f)
				}
			},
		},
		{
			name:  "response",
			in:    EncodeResponse(protocol.CmdStartChipResp, 2, 0x0123),
			wantN: FrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				r, ok := f.(*protocol.CommandResponse)
				if !ok || r.Cmd != protocol.CmdStartChipResp || r.TransID != 0x0123 || len(r.Raw) != FrameLen {
					t.Errorf("got %#v", f)
				}
			},
		},
		{
			name:  "unknown",
			in:    EncodeResponse(0x7A, 2, 0),
			wantN: FrameLen,
			check: func(t *testing.T, f protocol.Frame) {
				if _, ok := f.(*protocol.Unrecognized); !ok {
					t.Errorf("got %T", f)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, n, err := Decode(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.wantN {
				t.Errorf("n = %d, want %d", n, tt.wantN)
			}
			tt.check(t, f)
		})
	}
}

func TestParseInfo(t *testing.T) {
	card := protocol.CardInfo{
		ChannelCount:    1,
		SerialNumber:    1234,
		ClockResolution: 1000,
		MfgDate:         0x60000000,
		EAN:             [8]uint8{0x37, 0x84, 0x00, 0x30, 0x13, 0x30, 0x07, 0x00},
		HwRevision:      1,
		UsbHsMode:       1,
		HwType:          71,
		CanTimeStampRef: 0,
	}
	got, err := ParseCardInfo(CardInfoResponse(card))
	if err != nil {
		t.Fatal(err)
	}
	// bytes two and three of the EAN come from the channel count position
	want := card
	want.EAN[2], want.EAN[3] = card.ChannelCount, 0
	if got != want {
		t.Errorf("card = %+v, want %+v", got, want)
	}

	sw := protocol.SoftwareInfo{
		SwOptions:       protocol.SwOptionCapReq | protocol.HydraSwOptionCanFDCap | protocol.HydraSwOption80MHzClk,
		FirmwareVersion: 0x030E0140,
		SwName:          0x0A,
		EAN:             card.EAN,
		MaxBitrate:      8000000,
	}
	gotSw, err := ParseSoftwareDetails(SoftwareDetailsResponse(sw))
	if err != nil {
		t.Fatal(err)
	}
	if gotSw != sw {
		t.Errorf("software = %+v, want %+v", gotSw, sw)
	}
	if n, err := ParseMaxOutstandingTx(MaxOutstandingTxResponse(128)); err != nil || n != 128 {
		t.Errorf("max outstanding = %d, %v", n, err)
	}
	if mode, err := ParseDriverMode(DriverModeResponse(2, protocol.DriverModeSilent)); err != nil || mode != protocol.DriverModeSilent {
		t.Errorf("driver mode = %v, %v", mode, err)
	}
	if ticks, err := ParseReadClock(ReadClockResponse(0xABCDEF012345)); err != nil || ticks != 0xABCDEF012345 {
		t.Errorf("ticks = %X, %v", ticks, err)
	}
	if load, err := ParseBusLoad(BusLoadResponse(2, 100, 50, 10)); err != nil || load != 5000 {
		t.Errorf("load = %d, %v", load, err)
	}
	tr := protocol.TransceiverInfo{Type: protocol.Transceiver1050, Status: 0, Capabilities: 3}
	if got, err := ParseTransceiverInfo(TransceiverInfoResponse(2, tr)); err != nil || got != tr {
		t.Errorf("transceiver = %+v, %v", got, err)
	}
	if _, err := ParseCardInfo(ReadClockResponse(0)); !errors.Is(err, protocol.ErrUnexpected) {
		t.Errorf("err = %v, want ErrUnexpected", err)
	}
}

func TestCapabilityEnabled(t *testing.T) {
	tests := []struct {
		name    string
		resp    protocol.CapabilityResponse
		channel uint8
		want    bool
	}{
		{"channel 0 set", protocol.CapabilityResponse{Mask: 1, Value: 1}, 0, true},
		{"masked out", protocol.CapabilityResponse{Mask: 2, Value: 1}, 0, false},
		{"value clear", protocol.CapabilityResponse{Mask: 1, Value: 0}, 0, false},
		{"channel 1", protocol.CapabilityResponse{Mask: 3, Value: 2}, 1, true},
		{"unavailable", protocol.CapabilityResponse{Status: 2, Mask: 1, Value: 1}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseCapability(CapabilitiesResponse(9, tt.resp))
			if err != nil {
				t.Fatal(err)
			}
			if got := CapabilityEnabled(r, tt.channel); got != tt.want {
				t.Errorf("CapabilityEnabled = %v, want %v", got, tt.want)
			}
		})
	}
}

func testStream() []byte {
	msg := protocol.Message{ID: 0x321, DLC: 13, FDF: true}
	for i := range msg.Data {
		msg.Data[i] = byte(0x80 + i)
	}
	var stream []byte
	for _, f := range [][]byte{
		ChipStateFrame(2, protocol.ChipState{BusStatus: protocol.BusStatusErrorActive}),
		RxMessageFrame(2, &msg, 0, 1),
		TxAckFrame(2, 4),
		RxMessageFrame(2, &protocol.Message{ID: 0x10, DLC: 8}, 0, 2),
		EncodeResponse(protocol.CmdStopChipResp, 2, 0),
		RxMessageFrame(2, &protocol.Message{ID: 0x11}, 0, 3),
	} {
		stream = append(stream, f...)
	}
	return stream
}

func TestReassemblerWhole(t *testing.T) {
	r := NewReassembler(0)
	frames, err := r.Feed(testStream())
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 6 || r.Pending() != 0 {
		t.Fatalf("got %d frames, %d pending", len(frames), r.Pending())
	}
}

func TestReassemblerSplitAnywhere(t *testing.T) {
	stream := testStream()
	want, err := NewReassembler(0).Feed(stream)
	if err != nil {
		t.Fatal(err)
	}
	for split := 1; split < len(stream); split++ {
		r := NewReassembler(0)
		first, err := r.Feed(stream[:split])
		if err != nil {
			t.Fatalf("split %d: %v", split, err)
		}
		second, err := r.Feed(stream[split:])
		if err != nil {
			t.Fatalf("split %d: %v", split, err)
		}
		got := append(first, second...)
		if len(got) != len(want) {
			t.Fatalf("split %d: got %d frames, want %d", split, len(got), len(want))
		}
		for i := range got {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("split %d: frame %d differs", split, i)
			}
		}
		if r.Pending() != 0 {
			t.Errorf("split %d: %d bytes left", split, r.Pending())
		}
	}
}

func TestReassemblerByteAtATime(t *testing.T) {
	stream := testStream()
	r := NewReassembler(0)
	var got int
	for i := range stream {
		frames, err := r.Feed(stream[i : i+1])
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		got += len(frames)
	}
	if got != 6 {
		t.Errorf("got %d frames, want 6", got)
	}
}

func TestReassemblerLargeTransfer(t *testing.T) {
	var stream []byte
	for i := 0; i < 20; i++ {
		stream = append(stream, testStream()...)
	}
	frames, err := NewReassembler(0).Feed(stream)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 120 {
		t.Errorf("got %d frames, want 120", len(frames))
	}
}

func TestReassemblerOverflow(t *testing.T) {
	r := NewReassembler(40)
	msg := protocol.Message{ID: 1, DLC: 15, FDF: true}
	_, err := r.Feed(RxMessageFrame(0, &msg, 0, 0))
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d after overflow", r.Pending())
	}
	frames, err := r.Feed(StartChip(0))
	if err != nil || len(frames) != 1 {
		t.Errorf("after reset got %d frames, %v", len(frames), err)
	}
}

func TestReassemblerFramingError(t *testing.T) {
	r := NewReassembler(0)
	bad := []byte{protocol.CmdExtended, 0, 0, 0, 0xFF, 0xFF, 0, 0}
	stream := append(StartChip(0), bad...)
	frames, err := r.Feed(stream)
	if !errors.Is(err, protocol.ErrFraming) {
		t.Fatalf("err = %v, want ErrFraming", err)
	}
	if len(frames) != 1 || r.Pending() != 0 {
		t.Errorf("got %d frames, %d pending", len(frames), r.Pending())
	}
}
