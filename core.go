package kvcan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/pipe"
	"github.com/roffe/kvcan/pkg/protocol"
	"github.com/roffe/kvcan/pkg/queue"
	"github.com/roffe/kvcan/pkg/router"
)

// core is the state both device families share. The drivers embed it.
type core struct {
	cfg       *Config
	transport Transport
	entry     device.Entry
	ev        *eventer

	pipe   *pipe.Pipe
	queue  *queue.Queue[protocol.Message]
	window *router.TxWindow
	state  *router.EventState
	router *router.Router

	// timeout bounds synchronous requests.
	timeout time.Duration

	canClock     uint32
	timerFreq    uint32
	opCapability protocol.OpMode
	opMode       protocol.OpMode

	card        protocol.CardInfo
	software    protocol.SoftwareInfo
	transceiver protocol.TransceiverInfo
	caps        protocol.Capabilities
	capsProbed  bool

	rxMu     sync.Mutex
	rxCancel context.CancelFunc
	rxBytes  atomic.Uint64
	rxErrors atomic.Uint64

	sent     atomic.Uint64
	txBytes  atomic.Uint64
	txErrors atomic.Uint64
}

func newCore(cfg *Config, t Transport, entry device.Entry, maxTx int, timeout time.Duration, forwardErrors bool) *core {
	if cfg.CommandTimeout > 0 {
		timeout = cfg.CommandTimeout
	}
	c := &core{
		cfg:       cfg,
		transport: t,
		entry:     entry,
		ev:        newEventer(entry.Name, cfg.Debug),
		pipe:      pipe.New(pipe.DefaultSize),
		queue:     queue.New[protocol.Message](cfg.QueueSize),
		window:    router.NewTxWindow(maxTx),
		state:     &router.EventState{},
		timeout:   timeout,
	}
	c.router = router.New(c.queue, c.pipe, c.window, c.state, forwardErrors)
	return c
}

// startReception registers decode with the transport. Every decoded frame is
// routed before the callback returns.
func (c *core) startReception(decode func([]byte) []protocol.Frame) error {
	c.rxMu.Lock()
	defer c.rxMu.Unlock()
	if c.rxCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	err := c.transport.StartReading(func(p []byte) {
		c.rxBytes.Add(uint64(len(p)))
		if c.cfg.Debug {
			c.ev.debugf("RX % X", p)
		}
		for _, f := range decode(p) {
			if c.cfg.Debug {
				c.ev.debugf("%s", protocol.Describe(f))
			}
			c.router.Dispatch(ctx, f)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start reception: %w", err)
	}
	c.rxCancel = cancel
	return nil
}

// abortReception stops the transport reader and unblocks a reader that is
// handing a response to a full pipe.
func (c *core) abortReception() {
	c.rxMu.Lock()
	cancel := c.rxCancel
	c.rxCancel = nil
	c.rxMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if err := c.transport.StopReading(); err != nil {
		c.ev.warnf("stop reception: %v", err)
	}
}

func (c *core) write(ctx context.Context, p []byte) error {
	if c.cfg.Debug {
		c.ev.debugf("TX % X", p)
	}
	if err := c.transport.Write(ctx, p); err != nil {
		c.txErrors.Add(1)
		err = fmt.Errorf("%w: write: %w", ErrFatal, err)
		c.ev.fatal(err)
		return Unrecoverable(err)
	}
	c.txBytes.Add(uint64(len(p)))
	return nil
}

// request writes req and waits for a response with command code resp. A zero
// timeout sends without waiting and returns a nil frame.
func (c *core) request(ctx context.Context, req []byte, resp uint8, timeout time.Duration) ([]byte, error) {
	c.pipe.Drain()
	if err := c.write(ctx, req); err != nil {
		return nil, err
	}
	if timeout == 0 {
		return nil, nil
	}
	f, err := c.pipe.Await(ctx, resp, timeout)
	if err != nil {
		return nil, waitError(resp, err)
	}
	switch t := f.(type) {
	case *protocol.CommandResponse:
		return t.Raw, nil
	case *protocol.TxAck:
		return t.Raw, nil
	}
	return nil, fmt.Errorf("%w: %s answered with %s", ErrFatal, protocol.CommandName(resp), protocol.Describe(f))
}

// command sends a request without a response and waits delay for the device
// to act on it.
func (c *core) command(ctx context.Context, req []byte, delay time.Duration) error {
	if err := c.write(ctx, req); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitError(cmd uint8, err error) error {
	name := protocol.CommandName(cmd)
	var fw *pipe.FirmwareError
	switch {
	case errors.As(err, &fw):
		return fmt.Errorf("%s: %w", name, newFirmwareError(fw.ErrorReport))
	case errors.Is(err, pipe.ErrTimeout), errors.Is(err, pipe.ErrClosed):
		return fmt.Errorf("%s: %w", name, ErrTimeout)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", name, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// transmit sends an encoded message that already holds a slot in the
// transmit window. A positive timeout waits for the acknowledgement.
func (c *core) transmit(ctx context.Context, req []byte, ack uint8, timeout time.Duration) error {
	if timeout > 0 {
		c.pipe.Drain()
	}
	if err := c.write(ctx, req); err != nil {
		c.window.Release()
		return err
	}
	c.sent.Add(1)
	if timeout <= 0 {
		return nil
	}
	if _, err := c.pipe.Await(ctx, ack, timeout); err != nil {
		return waitError(ack, err)
	}
	return nil
}

// setMode applies a negotiated operation mode to the receive filter.
func (c *core) setMode(mode protocol.OpMode) {
	c.opMode = mode
	c.router.SetMode(mode)
}

func (c *core) setTimerFreq(mhz uint32) {
	c.timerFreq = mhz
	c.router.SetTimerFreq(mhz)
}

// negotiate checks the requested mode against the device capability.
func (c *core) negotiate(mode protocol.OpMode) error {
	if extra := mode &^ c.opCapability; extra != 0 {
		return fmt.Errorf("%w: op-mode %s not supported (device supports %s)", ErrIllegalParameter, extra, c.opCapability)
	}
	c.setMode(mode)
	return nil
}

// tableCapabilities seeds the capability record from the device table.
func (c *core) tableCapabilities() {
	c.caps = protocol.Capabilities{
		SilentMode: c.entry.Silent,
		ErrorFrame: c.entry.ErrorFrame,
	}
	c.capsProbed = false
}

// applyCapabilities updates the monitor and error frame bits from probed
// capabilities.
func (c *core) applyCapabilities() {
	if !c.capsProbed {
		return
	}
	c.opCapability &^= protocol.ModeMON | protocol.ModeERR
	if c.caps.SilentMode {
		c.opCapability |= protocol.ModeMON
	}
	if c.caps.ErrorFrame {
		c.opCapability |= protocol.ModeERR
	}
}

// checkTransmit validates a message against the negotiated operation mode.
func (c *core) checkTransmit(m *protocol.Message) error {
	if m == nil {
		return ErrNullArgument
	}
	switch {
	case m.ErrorFrame:
		return fmt.Errorf("%w: error frames cannot be transmitted", ErrIllegalParameter)
	case m.Extended && c.opMode&protocol.ModeNXTD != 0:
		return fmt.Errorf("%w: extended identifiers disabled", ErrIllegalParameter)
	case m.Remote && c.opMode&protocol.ModeNRTR != 0:
		return fmt.Errorf("%w: remote frames disabled", ErrIllegalParameter)
	case m.FDF && c.opMode&protocol.ModeFDOE == 0:
		return fmt.Errorf("%w: CAN FD not enabled", ErrIllegalParameter)
	case m.BRS && c.opMode&protocol.ModeBRSE == 0:
		return fmt.Errorf("%w: bit-rate switching not enabled", ErrIllegalParameter)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrIllegalParameter, err)
	}
	return nil
}

func (c *core) acquire(awaitAck bool) (uint8, error) {
	id, err := c.window.Acquire(awaitAck)
	if err != nil {
		return 0, fmt.Errorf("%w: %d messages outstanding", ErrQueueFull, c.window.Outstanding())
	}
	return id, nil
}

// close releases the queue and the pipe. The transport is closed by the
// channel.
func (c *core) close() {
	c.abortReception()
	c.pipe.Close()
	c.queue.Close()
}
