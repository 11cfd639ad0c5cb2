package kvcan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/protocol"
	"github.com/roffe/kvcan/pkg/queue"
)

type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateInitialized
	StateBusOn
	StateBusOff
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateInitialized:
		return "initialized"
	case StateBusOn:
		return "bus on"
	case StateBusOff:
		return "bus off"
	case StateTornDown:
		return "torn down"
	default:
		return "unknown"
	}
}

// Channel is one CAN channel of an adapter. Synchronous operations are
// serialised; Read and the event channels may be used concurrently with
// them.
type Channel struct {
	cfg       *Config
	transport Transport

	mu    sync.Mutex
	state State
	drv   driver
	c     *core

	life context.Context
	kill context.CancelFunc
}

// NewChannel wraps an open transport. The channel must be configured before
// use.
func NewChannel(cfg *Config, t Transport) *Channel {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()
	life, kill := context.WithCancel(context.Background())
	return &Channel{
		cfg:       cfg,
		transport: t,
		life:      life,
		kill:      kill,
	}
}

// Open opens the transport selected by cfg and configures a channel on it.
func Open(cfg *Config) (*Channel, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t, err := OpenTransport(cfg.Transport, cfg)
	if err != nil {
		return nil, err
	}
	ch := NewChannel(cfg, t)
	if err := ch.Configure(); err != nil {
		if cerr := t.Close(); cerr != nil {
			cfg.OnMessage(fmt.Sprintf("close %s: %v", t, cerr))
		}
		return nil, err
	}
	return ch, nil
}

// Configure selects the driver from the product id and checks the endpoint
// layout against the family profile.
func (ch *Channel) Configure() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.transport == nil {
		return ErrNullArgument
	}
	switch ch.state {
	case StateUnconfigured:
	case StateTornDown:
		return ErrNotInitialized
	default:
		return ErrAlreadyInitialized
	}
	drv, err := newDriver(ch.cfg, ch.transport)
	if err != nil {
		return err
	}
	if err := drv.configure(); err != nil {
		return err
	}
	ch.drv, ch.c = drv, drv.base()
	ch.state = StateConfigured
	return nil
}

// Initialize starts reception, reads the device description and negotiates
// the operation mode. On failure reception is stopped again and the channel
// stays configured.
func (ch *Channel) Initialize(ctx context.Context, mode protocol.OpMode) error {
	ctx, cancel := ch.opContext(ctx)
	defer cancel()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch ch.state {
	case StateConfigured:
	case StateInitialized, StateBusOn, StateBusOff:
		return ErrAlreadyInitialized
	default:
		return ErrNotInitialized
	}
	if err := ch.c.startReception(ch.drv.decode); err != nil {
		return err
	}
	if err := ch.drv.initialize(ctx, mode); err != nil {
		ch.c.abortReception()
		return fmt.Errorf("initialize %s: %w", ch.c.entry.Name, err)
	}
	if want := ch.cfg.MinimumFirmwareVersion; want != "" && !FirmwareAtLeast(ch.c.software.Version(), want) {
		ch.c.ev.warnf("firmware %s is older than %s", ch.c.software.Version(), want)
	}
	ch.c.ev.infof("%s initialized, firmware %s, op-mode %s", ch.c.entry.Name, ch.c.software.Version(), ch.c.opMode)
	ch.state = StateInitialized
	return nil
}

// BusOn puts the controller on the bus. Silent requires monitor support.
// A failure leaves the channel state unchanged.
func (ch *Channel) BusOn(ctx context.Context, silent bool) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		if silent && ch.c.opCapability&protocol.ModeMON == 0 {
			return fmt.Errorf("%w: %s has no silent mode", ErrIllegalParameter, ch.c.entry.Name)
		}
		if err := ch.drv.prepareBusOn(ctx); err != nil {
			return fmt.Errorf("bus on: %w", err)
		}
		mode := protocol.DriverModeNormal
		if silent {
			mode = protocol.DriverModeSilent
		}
		if err := ch.drv.setDriverMode(ctx, mode); err != nil {
			return fmt.Errorf("bus on: %w", err)
		}
		if err := ch.drv.startChip(ctx, ch.c.timeout); err != nil {
			return fmt.Errorf("bus on: %w", err)
		}
		ch.state = StateBusOn
		return nil
	})
}

// BusOff stops the controller. The driver mode is reset to normal; the
// off mode has no effect on the hardware.
func (ch *Channel) BusOff(ctx context.Context) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		if err := ch.drv.stopChip(ctx, ch.c.timeout); err != nil {
			return fmt.Errorf("bus off: %w", err)
		}
		if err := ch.drv.setDriverMode(ctx, protocol.DriverModeNormal); err != nil {
			return fmt.Errorf("bus off: %w", err)
		}
		ch.state = StateBusOff
		return nil
	})
}

// Close tears the channel down. Every step is attempted; failures are
// reported as warning events. A synchronous call in progress is cancelled.
func (ch *Channel) Close() error {
	ch.kill()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state == StateTornDown {
		return nil
	}
	if ch.c != nil {
		if ch.state >= StateInitialized {
			ctx, cancel := context.WithTimeout(context.Background(), ch.c.timeout)
			ch.drv.teardown(ctx)
			cancel()
		}
		ch.c.close()
	}
	if ch.transport != nil {
		if err := ch.transport.Close(); err != nil {
			if ch.c != nil {
				ch.c.ev.warnf("close %s: %v", ch.transport, err)
			} else {
				ch.cfg.OnMessage(fmt.Sprintf("close %s: %v", ch.transport, err))
			}
		}
	}
	ch.state = StateTornDown
	return nil
}

// Send transmits m. With a positive timeout Send waits for the adapter to
// acknowledge the frame; otherwise it returns once the request is written.
func (ch *Channel) Send(ctx context.Context, m *Message, timeout time.Duration) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.send(ctx, m, timeout)
	})
}

// Read returns the next received message. A zero timeout polls and a
// negative timeout waits until a message arrives, ctx is done or the
// channel is closed.
func (ch *Channel) Read(ctx context.Context, timeout time.Duration) (Message, error) {
	c, err := ch.ready()
	if err != nil {
		return Message{}, err
	}
	m, err := c.queue.Pop(ctx, timeout)
	switch {
	case errors.Is(err, queue.ErrEmpty):
		return m, ErrRxEmpty
	case errors.Is(err, queue.ErrClosed):
		return m, ErrNotInitialized
	}
	return m, err
}

// Messages exposes the receive queue for select loops. Messages taken from
// it are not seen by Read.
func (ch *Channel) Messages() <-chan Message {
	c, err := ch.ready()
	if err != nil {
		return nil
	}
	return c.queue.C()
}

func (ch *Channel) SetBusParams(ctx context.Context, p protocol.BusParams) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.setBusParams(ctx, p)
	})
}

func (ch *Channel) BusParams(ctx context.Context) (p protocol.BusParams, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		p, err = ch.drv.busParams(ctx)
		return err
	})
	return
}

func (ch *Channel) SetBusParamsFd(ctx context.Context, p protocol.BusParamsFd) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.setBusParamsFd(ctx, p)
	})
}

func (ch *Channel) BusParamsFd(ctx context.Context) (p protocol.BusParamsFd, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		p, err = ch.drv.busParamsFd(ctx)
		return err
	})
	return
}

func (ch *Channel) SetBusParamsTq(ctx context.Context, p protocol.BusParamsTq) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.setBusParamsTq(ctx, p)
	})
}

func (ch *Channel) BusParamsTq(ctx context.Context) (p protocol.BusParamsTq, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		p, err = ch.drv.busParamsTq(ctx)
		return err
	})
	return
}

// SetBitrate applies a named preset from Bitrates. FD presets need a channel
// negotiated with CAN FD.
func (ch *Channel) SetBitrate(ctx context.Context, name string) error {
	b, err := LookupBitrate(name)
	if err != nil {
		return err
	}
	if b.FD {
		return ch.SetBusParamsFd(ctx, protocol.BusParamsFd{Nominal: b.Nominal, Data: b.Data, CanFD: true})
	}
	return ch.SetBusParams(ctx, b.Nominal)
}

func (ch *Channel) SetDriverMode(ctx context.Context, m protocol.DriverMode) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.setDriverMode(ctx, m)
	})
}

func (ch *Channel) DriverMode(ctx context.Context) (m protocol.DriverMode, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		m, err = ch.drv.driverMode(ctx)
		return err
	})
	return
}

// FlushQueue discards the messages waiting in the adapter transmit queue.
func (ch *Channel) FlushQueue(ctx context.Context) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.flushQueue(ctx)
	})
}

// ReadClock returns the adapter timer as time since device start.
func (ch *Channel) ReadClock(ctx context.Context) (d time.Duration, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		ticks, err := ch.drv.readClock(ctx)
		if err != nil {
			return err
		}
		d = protocol.TimestampFromTicks(ticks, ch.c.timerFreq)
		return nil
	})
	return
}

func (ch *Channel) ResetChip(ctx context.Context) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.resetChip(ctx)
	})
}

func (ch *Channel) ResetCard(ctx context.Context) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.resetCard(ctx)
	})
}

func (ch *Channel) ResetErrorCounter(ctx context.Context) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.resetErrorCounter(ctx)
	})
}

func (ch *Channel) ResetStatistics(ctx context.Context) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.resetStatistics(ctx)
	})
}

// RequestChipState asks for a chip state event without waiting for it.
func (ch *Channel) RequestChipState(ctx context.Context) error {
	return ch.sync(ctx, func(ctx context.Context) error {
		return ch.drv.requestChipState(ctx, 0)
	})
}

// BusStatus requests a chip state event and returns the most recent one.
func (ch *Channel) BusStatus(ctx context.Context) (s protocol.ChipState, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		if err := ch.drv.requestChipState(ctx, settleDelay); err != nil {
			return err
		}
		var ok bool
		if s, ok = ch.c.state.ChipState(); !ok {
			return fmt.Errorf("chip state: %w", ErrTimeout)
		}
		return nil
	})
	return
}

// BusLoad returns the bus load in hundredths of a percent.
func (ch *Channel) BusLoad(ctx context.Context) (load uint16, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		load, err = ch.drv.busLoad(ctx)
		return err
	})
	return
}

// LastError returns the most recent firmware error report, if any.
func (ch *Channel) LastError() (protocol.ErrorReport, bool) {
	c, err := ch.ready()
	if err != nil {
		return protocol.ErrorReport{}, false
	}
	return c.state.Error()
}

// LastCanError returns the most recent bus error event, if any.
func (ch *Channel) LastCanError() (protocol.CanError, bool) {
	c, err := ch.ready()
	if err != nil {
		return protocol.CanError{}, false
	}
	return c.state.CanError()
}

func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *Channel) Family() device.Family {
	if c, err := ch.configured(); err == nil {
		return c.entry.Family
	}
	return device.Unknown
}

// OpMode returns the negotiated operation mode.
func (ch *Channel) OpMode() protocol.OpMode {
	if c, err := ch.configured(); err == nil {
		return c.opMode
	}
	return 0
}

// Capability returns the operation modes the adapter supports.
func (ch *Channel) Capability() protocol.OpMode {
	if c, err := ch.configured(); err == nil {
		return c.opCapability
	}
	return 0
}

// Event returns the channel's event stream.
func (ch *Channel) Event() <-chan Event {
	if c, err := ch.configured(); err == nil {
		return c.ev.evtChan
	}
	return nil
}

// Err delivers the first fatal error, after which the channel should be
// closed.
func (ch *Channel) Err() <-chan error {
	if c, err := ch.configured(); err == nil {
		return c.ev.errChan
	}
	return nil
}

func (ch *Channel) String() string {
	if c, err := ch.configured(); err == nil {
		return fmt.Sprintf("%s on %s", c.entry.Name, ch.transport)
	}
	return fmt.Sprintf("unconfigured channel on %v", ch.transport)
}

// sync runs fn under the channel lock once the channel is initialized.
func (ch *Channel) sync(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := ch.opContext(ctx)
	defer cancel()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch ch.state {
	case StateInitialized, StateBusOn, StateBusOff:
	default:
		return ErrNotInitialized
	}
	return fn(ctx)
}

// opContext derives a context that is also cancelled by Close.
func (ch *Channel) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(ch.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (ch *Channel) configured() (*core, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.c == nil {
		return nil, ErrNotInitialized
	}
	return ch.c, nil
}

// ready returns the core without taking the lock for the duration of the
// call, so readers do not wait behind synchronous requests.
func (ch *Channel) ready() (*core, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch ch.state {
	case StateInitialized, StateBusOn, StateBusOff:
		return ch.c, nil
	}
	return nil, ErrNotInitialized
}
