package kvcan_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/loopback"
	"github.com/roffe/kvcan/pkg/protocol"
)

func testConfig(t *testing.T) *kvcan.Config {
	cfg := kvcan.DefaultConfig()
	cfg.Transport = "loopback"
	cfg.CommandTimeout = 500 * time.Millisecond
	cfg.OnMessage = func(msg string) { t.Log(msg) }
	return cfg
}

// openChannel configures a channel on a simulated adapter. setup runs before
// the channel sees the device.
func openChannel(t *testing.T, model string, setup func(*loopback.Device)) (*kvcan.Channel, *loopback.Device) {
	t.Helper()
	d, err := loopback.New(model)
	if err != nil {
		t.Fatal(err)
	}
	if setup != nil {
		setup(d)
	}
	ch := kvcan.NewChannel(testConfig(t), d)
	if err := ch.Configure(); err != nil {
		t.Fatalf("Configure() = %v", err)
	}
	t.Cleanup(func() {
		if err := ch.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
	return ch, d
}

func initChannel(t *testing.T, model string, mode protocol.OpMode, setup func(*loopback.Device)) (*kvcan.Channel, *loopback.Device) {
	t.Helper()
	ch, d := openChannel(t, model, setup)
	if err := ch.Initialize(context.Background(), mode); err != nil {
		t.Fatalf("Initialize(%s) = %v", mode, err)
	}
	return ch, d
}

func onBus(t *testing.T, model string, mode protocol.OpMode, setup func(*loopback.Device)) (*kvcan.Channel, *loopback.Device) {
	t.Helper()
	ch, d := initChannel(t, model, mode, setup)
	if err := ch.BusOn(context.Background(), false); err != nil {
		t.Fatalf("BusOn() = %v", err)
	}
	return ch, d
}

func TestSendAndReceiveEcho(t *testing.T) {
	for _, model := range []string{"leaf", "hydra", "u100"} {
		t.Run(model, func(t *testing.T) {
			ctx := context.Background()
			ch, d := onBus(t, model, protocol.ModeDefault, nil)
			if ch.State() != kvcan.StateBusOn {
				t.Fatalf("State() = %s", ch.State())
			}
			if !d.BusOn() {
				t.Fatal("device chip not started")
			}

			data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
			var last time.Duration
			for i := 0; i < 3; i++ {
				if err := ch.Send(ctx, kvcan.NewMessage(0x100, data), 100*time.Millisecond); err != nil {
					t.Fatalf("Send() = %v", err)
				}
				m, err := ch.Read(ctx, time.Second)
				if err != nil {
					t.Fatalf("Read() = %v", err)
				}
				if m.ID != 0x100 || m.DLC != 8 || !bytes.Equal(m.Payload(), data) {
					t.Errorf("echo = %s", m.String())
				}
				if m.Timestamp < last {
					t.Errorf("timestamp went backwards: %v after %v", m.Timestamp, last)
				}
				last = m.Timestamp
			}

			st := ch.Stats()
			if st.Received != 3 || st.Transmitted != 3 || st.Outstanding != 0 {
				t.Errorf("Stats() = %s", st.String())
			}
			if _, err := ch.Read(ctx, 0); !errors.Is(err, kvcan.ErrRxEmpty) {
				t.Errorf("Read() on empty queue = %v", err)
			}
			if !errors.Is(kvcan.ErrRxEmpty, kvcan.ErrTimeout) {
				t.Error("an empty receive queue should match ErrTimeout")
			}
		})
	}
}

func TestInjectedTraffic(t *testing.T) {
	ctx := context.Background()
	ch, d := onBus(t, "hydra", protocol.ModeFDOE|protocol.ModeBRSE, nil)
	m := kvcan.NewMessage(0x18DAF110, bytes.Repeat([]byte{0xAA}, 32))
	m.Extended, m.BRS = true, true
	d.ChunkSize = 5
	d.Inject(m)
	got, err := ch.Read(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID || !got.Extended || !got.FDF || !got.BRS || got.Len() != 32 {
		t.Errorf("received %s", got.String())
	}
}

func TestErrorEventsDoNotStallReception(t *testing.T) {
	ctx := context.Background()
	ch, d := onBus(t, "hydra", protocol.ModeDefault, nil)
	for i := 0; i < 20; i++ {
		d.InjectError(protocol.ErrorReport{Code: protocol.FirmwareErrParameter})
	}
	d.Inject(kvcan.NewMessage(0x123, []byte{1, 2}))
	got, err := ch.Read(ctx, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Read() after idle error events = %v", err)
	}
	if got.ID != 0x123 {
		t.Errorf("received %s", got.String())
	}
	if _, err := ch.BusLoad(ctx); err != nil {
		t.Errorf("BusLoad() after idle error events = %v", err)
	}
}

func TestTransmitWindowFull(t *testing.T) {
	ctx := context.Background()
	ch, d := onBus(t, "leaf", protocol.ModeDefault, nil)
	// the simulated Leaf reports 48 outstanding messages
	d.Mute(protocol.CmdTxStdMessage, true)
	for i := 0; i < 48; i++ {
		if err := ch.Send(ctx, kvcan.NewMessage(0x200, []byte{byte(i)}), 0); err != nil {
			t.Fatalf("Send(%d) = %v", i, err)
		}
	}
	err := ch.Send(ctx, kvcan.NewMessage(0x200, nil), 0)
	if !errors.Is(err, kvcan.ErrQueueFull) {
		t.Fatalf("Send() on a full window = %v", err)
	}
	if !errors.Is(err, kvcan.ErrResourceExhausted) {
		t.Error("a full window should match ErrResourceExhausted")
	}
	if st := ch.Stats(); st.Outstanding != 48 {
		t.Errorf("Outstanding = %d", st.Outstanding)
	}
}

func TestAckTimeout(t *testing.T) {
	ch, d := onBus(t, "hydra", protocol.ModeDefault, nil)
	d.Mute(protocol.CmdTxCanMessageFd, true)
	err := ch.Send(context.Background(), kvcan.NewMessage(0x7DF, []byte{2, 1, 0}), 50*time.Millisecond)
	if !errors.Is(err, kvcan.ErrTimeout) {
		t.Fatalf("Send() = %v, want timeout", err)
	}
	if !kvcan.IsRetryable(err) {
		t.Error("an acknowledgement timeout should be retryable")
	}
}

func TestOpModeNegotiation(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		mode    protocol.OpMode
		wantErr error
	}{
		{"leaf default", "leaf", protocol.ModeDefault, nil},
		{"leaf no extended", "leaf", protocol.ModeNXTD | protocol.ModeNRTR, nil},
		{"leaf error frames", "leaf", protocol.ModeERR, kvcan.ErrIllegalParameter},
		{"leaf fd", "leaf", protocol.ModeFDOE, kvcan.ErrIllegalParameter},
		{"hydra fd brs", "hydra", protocol.ModeFDOE | protocol.ModeBRSE, nil},
		{"hydra monitor", "hydra", protocol.ModeMON | protocol.ModeERR, nil},
		{"hydra non-iso", "hydra", protocol.ModeFDOE | protocol.ModeNISO, kvcan.ErrIllegalParameter},
		{"hydra shared", "hydra", protocol.ModeSHRD, kvcan.ErrIllegalParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, _ := openChannel(t, tt.model, nil)
			err := ch.Initialize(context.Background(), tt.mode)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Initialize() = %v", err)
				}
				if ch.OpMode() != tt.mode {
					t.Errorf("OpMode() = %s, want %s", ch.OpMode(), tt.mode)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Initialize() = %v, want %v", err, tt.wantErr)
			}
			if ch.State() != kvcan.StateConfigured {
				t.Errorf("State() after failed init = %s", ch.State())
			}
		})
	}
}

func TestProbedCapabilities(t *testing.T) {
	ch, _ := initChannel(t, "leaf", protocol.ModeDefault, func(d *loopback.Device) {
		d.Caps.SilentMode = true
		d.Caps.ErrorFrame = true
	})
	want := protocol.ModeNXTD | protocol.ModeNRTR | protocol.ModeMON | protocol.ModeERR
	if got := ch.Capability(); got != want {
		t.Errorf("Capability() = %s, want %s", got, want)
	}

	ch, _ = initChannel(t, "hydra", protocol.ModeDefault, func(d *loopback.Device) {
		d.Caps.SilentMode = false
	})
	if ch.Capability().Has(protocol.ModeMON) {
		t.Errorf("Capability() = %s still allows monitor mode", ch.Capability())
	}
	if err := ch.BusOn(context.Background(), true); !errors.Is(err, kvcan.ErrIllegalParameter) {
		t.Errorf("silent BusOn() = %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	ch, _ := onBus(t, "hydra", protocol.ModeNXTD|protocol.ModeNRTR, nil)

	ext := kvcan.NewMessage(0x1234, []byte{1})
	ext.Extended = true
	rtr := kvcan.NewMessage(0x123, nil)
	rtr.Remote = true
	fd := kvcan.NewMessage(0x123, make([]byte, 12))
	brs := kvcan.NewMessage(0x123, []byte{1})
	brs.BRS = true
	errFrame := kvcan.NewMessage(0x123, nil)
	errFrame.ErrorFrame = true
	badID := kvcan.NewMessage(0x800, nil)

	tests := []struct {
		name string
		msg  *kvcan.Message
		want error
	}{
		{"nil", nil, kvcan.ErrNullArgument},
		{"extended", ext, kvcan.ErrIllegalParameter},
		{"remote", rtr, kvcan.ErrIllegalParameter},
		{"fd", fd, kvcan.ErrIllegalParameter},
		{"brs", brs, kvcan.ErrIllegalParameter},
		{"error frame", errFrame, kvcan.ErrIllegalParameter},
		{"identifier", badID, kvcan.ErrIllegalParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ch.Send(ctx, tt.msg, 0); !errors.Is(err, tt.want) {
				t.Errorf("Send() = %v, want %v", err, tt.want)
			}
		})
	}
	if st := ch.Stats(); st.Transmitted != 0 || st.Outstanding != 0 {
		t.Errorf("rejected messages reached the device: %s", st.String())
	}
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()
	d, _ := loopback.New("leaf")
	ch := kvcan.NewChannel(testConfig(t), d)

	if err := ch.Initialize(ctx, 0); !errors.Is(err, kvcan.ErrNotInitialized) {
		t.Errorf("Initialize() before Configure = %v", err)
	}
	if err := ch.Configure(); err != nil {
		t.Fatal(err)
	}
	if err := ch.Configure(); !errors.Is(err, kvcan.ErrAlreadyInitialized) {
		t.Errorf("second Configure() = %v", err)
	}
	if err := ch.Send(ctx, kvcan.NewMessage(1, nil), 0); !errors.Is(err, kvcan.ErrNotInitialized) {
		t.Errorf("Send() before Initialize = %v", err)
	}
	if _, err := ch.Read(ctx, 0); !errors.Is(err, kvcan.ErrNotInitialized) {
		t.Errorf("Read() before Initialize = %v", err)
	}
	if err := ch.Initialize(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if err := ch.Initialize(ctx, 0); !errors.Is(err, kvcan.ErrAlreadyInitialized) {
		t.Errorf("second Initialize() = %v", err)
	}
	// sending while the chip is stopped is allowed
	if err := ch.Send(ctx, kvcan.NewMessage(1, nil), 0); err != nil {
		t.Errorf("Send() while initialized = %v", err)
	}
	if err := ch.BusOn(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := ch.BusOff(ctx); err != nil {
		t.Fatal(err)
	}
	if ch.State() != kvcan.StateBusOff || d.BusOn() {
		t.Errorf("after BusOff state %s, device on bus %v", ch.State(), d.BusOn())
	}
	if d.DriverMode() != protocol.DriverModeNormal {
		t.Errorf("driver mode after BusOff = %s", d.DriverMode())
	}

	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if ch.State() != kvcan.StateTornDown {
		t.Errorf("State() = %s", ch.State())
	}
	if err := ch.Send(ctx, kvcan.NewMessage(1, nil), 0); !errors.Is(err, kvcan.ErrNotInitialized) {
		t.Errorf("Send() after Close = %v", err)
	}
	if err := ch.Configure(); !errors.Is(err, kvcan.ErrNotInitialized) {
		t.Errorf("Configure() after Close = %v", err)
	}
}

func TestCloseRestoresDriverMode(t *testing.T) {
	for _, model := range []string{"leaf", "hydra"} {
		t.Run(model, func(t *testing.T) {
			ctx := context.Background()
			ch, d := onBus(t, model, protocol.ModeDefault, nil)
			if err := ch.SetDriverMode(ctx, protocol.DriverModeSilent); err != nil {
				t.Fatalf("SetDriverMode(silent) = %v", err)
			}
			if d.DriverMode() != protocol.DriverModeSilent {
				t.Fatalf("driver mode on bus = %s", d.DriverMode())
			}
			if err := ch.Close(); err != nil {
				t.Fatal(err)
			}
			if d.DriverMode() != protocol.DriverModeNormal {
				t.Errorf("driver mode after Close = %s", d.DriverMode())
			}
			if d.BusOn() {
				t.Error("chip still on bus after Close")
			}
		})
	}
}

func TestConfigureRejects(t *testing.T) {
	if err := kvcan.NewChannel(testConfig(t), nil).Configure(); !errors.Is(err, kvcan.ErrNullArgument) {
		t.Errorf("Configure() without transport = %v", err)
	}
	d, _ := loopback.New("hydra")
	d.EndpointCount = 2
	err := kvcan.NewChannel(testConfig(t), d).Configure()
	if err == nil {
		t.Fatal("endpoint mismatch accepted")
	}
	if kvcan.IsRecoverable(err) {
		t.Errorf("endpoint mismatch should be unrecoverable: %v", err)
	}
}

func TestBusParams(t *testing.T) {
	ctx := context.Background()
	t.Run("leaf", func(t *testing.T) {
		ch, _ := initChannel(t, "leaf", protocol.ModeDefault, nil)
		if err := ch.SetBitrate(ctx, "250k"); err != nil {
			t.Fatal(err)
		}
		p, err := ch.BusParams(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if p.BitRate != 250000 {
			t.Errorf("BitRate = %d", p.BitRate)
		}
		if err := ch.SetBitrate(ctx, "500K:4M"); !errors.Is(err, kvcan.ErrUnsupported) {
			t.Errorf("FD bitrate on Leaf = %v", err)
		}
		if _, err := ch.BusParamsTq(ctx); !errors.Is(err, kvcan.ErrUnsupported) {
			t.Errorf("BusParamsTq() on Leaf = %v", err)
		}
	})
	t.Run("hydra", func(t *testing.T) {
		ch, _ := initChannel(t, "hydra", protocol.ModeFDOE|protocol.ModeBRSE, nil)
		if err := ch.SetBitrate(ctx, "FD500K4M"); err != nil {
			t.Fatal(err)
		}
		p, err := ch.BusParamsFd(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !p.CanFD || p.Nominal.BitRate != 500000 || p.Data.BitRate != 4000000 {
			t.Errorf("BusParamsFd() = %s", p)
		}
		bad := protocol.BusParams{BitRate: 500000, TSeg1: 5, TSeg2: 2, SJW: 1, NoSamp: 3}
		if err := ch.SetBusParams(ctx, bad); !errors.Is(err, kvcan.ErrIllegalParameter) {
			t.Errorf("three sample points = %v", err)
		}
	})
	t.Run("time quanta", func(t *testing.T) {
		ch, _ := initChannel(t, "hydra", protocol.ModeFDOE, nil)
		tq := protocol.BusParamsTq{
			Arbitration: protocol.TqSegment{Prop: 31, Phase1: 32, Phase2: 16, SJW: 16, BRP: 2},
			Data:        protocol.TqSegment{Prop: 7, Phase1: 8, Phase2: 4, SJW: 4, BRP: 1},
			CanFD:       true,
		}
		if err := ch.SetBusParamsTq(ctx, tq); err != nil {
			t.Fatal(err)
		}
		got, err := ch.BusParamsTq(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got.Arbitration != tq.Arbitration || got.Data != tq.Data {
			t.Errorf("BusParamsTq() = %+v, want %+v", got, tq)
		}
		if err := ch.SetBusParamsTq(ctx, protocol.BusParamsTq{}); !errors.Is(err, kvcan.ErrIllegalParameter) {
			t.Errorf("rejected time quanta = %v", err)
		}
	})
}

func TestFirmwareError(t *testing.T) {
	ch, d := initChannel(t, "hydra", protocol.ModeDefault, nil)
	d.Reject(protocol.CmdGetBusLoadReq, protocol.FirmwareErrParameter)
	_, err := ch.BusLoad(context.Background())
	var fw *kvcan.FirmwareError
	if !errors.As(err, &fw) {
		t.Fatalf("BusLoad() = %v, want a firmware error", err)
	}
	if fw.Code != protocol.FirmwareErrParameter || fw.StatusCode() != -109 {
		t.Errorf("firmware error = %+v (%d)", fw, fw.StatusCode())
	}
	if !errors.Is(err, kvcan.ErrIllegalParameter) {
		t.Error("a parameter error should match ErrIllegalParameter")
	}
	if r, ok := ch.LastError(); !ok || r.Code != protocol.FirmwareErrParameter {
		t.Errorf("LastError() = %+v, %v", r, ok)
	}

	d.Reject(protocol.CmdGetBusLoadReq, 0)
	load, err := ch.BusLoad(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if load != protocol.BusLoad(100, 500, 1000) {
		t.Errorf("BusLoad() = %d", load)
	}
}

func TestRequestTimeout(t *testing.T) {
	ch, d := initChannel(t, "leaf", protocol.ModeDefault, nil)
	d.Mute(protocol.CmdGetDriverModeReq, true)
	start := time.Now()
	_, err := ch.DriverMode(context.Background())
	if !errors.Is(err, kvcan.ErrTimeout) {
		t.Fatalf("DriverMode() = %v", err)
	}
	if time.Since(start) < 400*time.Millisecond {
		t.Errorf("timed out after %v", time.Since(start))
	}
}

func TestWriteFailureIsFatal(t *testing.T) {
	ch, d := initChannel(t, "leaf", protocol.ModeDefault, nil)
	d.FailWrites(errors.New("pipe broken"))
	err := ch.FlushQueue(context.Background())
	if !errors.Is(err, kvcan.ErrFatal) || kvcan.IsRecoverable(err) {
		t.Fatalf("FlushQueue() = %v", err)
	}
	select {
	case err := <-ch.Err():
		if !errors.Is(err, kvcan.ErrFatal) {
			t.Errorf("Err() delivered %v", err)
		}
	case <-time.After(time.Second):
		t.Error("no fatal error delivered")
	}
}

func TestCloseCancelsPendingRequest(t *testing.T) {
	ch, d := initChannel(t, "hydra", protocol.ModeDefault, nil)
	d.Mute(protocol.CmdGetDriverModeReq, true)
	done := make(chan error, 1)
	go func() {
		_, err := ch.DriverMode(context.Background())
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Error("pending request succeeded")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the pending request")
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	for _, model := range []string{"leaf", "hydra"} {
		t.Run(model, func(t *testing.T) {
			ch, d := onBus(t, model, protocol.ModeDefault, nil)

			s, err := ch.BusStatus(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if s.BusStatus != protocol.BusStatusErrorActive {
				t.Errorf("BusStatus() = %s", s.BusStatus)
			}
			if _, err := ch.ReadClock(ctx); err != nil {
				t.Errorf("ReadClock() = %v", err)
			}
			if err := ch.FlushQueue(ctx); err != nil {
				t.Errorf("FlushQueue() = %v", err)
			}
			if m, err := ch.DriverMode(ctx); err != nil || m != protocol.DriverModeNormal {
				t.Errorf("DriverMode() = %s, %v", m, err)
			}

			info, err := ch.DeviceInfo(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if info.Serial != d.Card.SerialNumber || info.EAN != "73-30130-00761-2" {
				t.Errorf("DeviceInfo() = %s", info)
			}
			if info.Family == device.Leaf && info.Interface == nil {
				t.Error("Leaf device info without interface info")
			}
			if info.Firmware != d.Software.Version() {
				t.Errorf("Firmware = %s, want %s", info.Firmware, d.Software.Version())
			}
		})
	}
}

func TestOpenLoopback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Virtual = "u100"
	ch, err := kvcan.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()
	if ch.Family() != device.Mhydra {
		t.Errorf("Family() = %s", ch.Family())
	}

	cfg = testConfig(t)
	cfg.Virtual = "nope"
	if _, err := kvcan.Open(cfg); err == nil {
		t.Error("unknown model accepted")
	}
	cfg.Transport = "carrier-pigeon"
	if _, err := kvcan.Open(cfg); err == nil {
		t.Error("unknown transport accepted")
	}
}
