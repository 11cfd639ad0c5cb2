package kvcan

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/protocol"
)

// settleDelay is how long fire-and-forget resets are given to take effect.
const settleDelay = 100 * time.Millisecond

// driver is the family specific half of a channel. The set of
// implementations is closed: *leafDriver and *hydraDriver.
type driver interface {
	base() *core

	configure() error
	decode(p []byte) []protocol.Frame
	initialize(ctx context.Context, mode protocol.OpMode) error
	teardown(ctx context.Context)
	prepareBusOn(ctx context.Context) error

	setBusParams(ctx context.Context, p protocol.BusParams) error
	busParams(ctx context.Context) (protocol.BusParams, error)
	setBusParamsFd(ctx context.Context, p protocol.BusParamsFd) error
	busParamsFd(ctx context.Context) (protocol.BusParamsFd, error)
	setBusParamsTq(ctx context.Context, p protocol.BusParamsTq) error
	busParamsTq(ctx context.Context) (protocol.BusParamsTq, error)

	setDriverMode(ctx context.Context, m protocol.DriverMode) error
	driverMode(ctx context.Context) (protocol.DriverMode, error)
	startChip(ctx context.Context, timeout time.Duration) error
	stopChip(ctx context.Context, timeout time.Duration) error
	resetChip(ctx context.Context) error
	resetCard(ctx context.Context) error
	resetErrorCounter(ctx context.Context) error
	resetStatistics(ctx context.Context) error
	requestChipState(ctx context.Context, delay time.Duration) error

	send(ctx context.Context, m *protocol.Message, timeout time.Duration) error
	readClock(ctx context.Context) (uint64, error)
	busLoad(ctx context.Context) (uint16, error)
	flushQueue(ctx context.Context) error
	interfaceInfo(ctx context.Context) (protocol.InterfaceInfo, error)
}

// newDriver picks the implementation for the adapter behind t.
func newDriver(cfg *Config, t Transport) (driver, error) {
	entry := device.Lookup(t.ProductID())
	switch entry.Family {
	case device.Leaf:
		return newLeafDriver(cfg, t, entry), nil
	case device.Mhydra:
		return newHydraDriver(cfg, t, entry), nil
	}
	return nil, Unrecoverable(fmt.Errorf("%w: product id 0x%04X is not a supported adapter", ErrUnsupported, t.ProductID()))
}

// checkEndpoints verifies that the transport matches the family profile.
func checkEndpoints(c *core) error {
	if want := c.entry.Family.Endpoints(); c.transport.Endpoints() != want {
		return Unrecoverable(fmt.Errorf("%w: %s has %d bulk endpoints, %s expects %d",
			ErrFatal, c.transport, c.transport.Endpoints(), c.entry.Family, want))
	}
	if c.entry.Channels != 1 {
		return Unrecoverable(fmt.Errorf("%w: %d channels, only single channel adapters are supported", ErrFatal, c.entry.Channels))
	}
	return nil
}

// maxOutstanding clamps the firmware transmit window to limit.
func maxOutstanding(reported uint16, limit int) int {
	if reported > 0 && int(reported) < limit {
		return int(reported)
	}
	return limit
}
