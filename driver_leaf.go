package kvcan

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/leaf"
	"github.com/roffe/kvcan/pkg/protocol"
)

// leafChannel is the only channel number on supported Leaf adapters.
const leafChannel = 0

type leafDriver struct {
	*core
}

func newLeafDriver(cfg *Config, t Transport, entry device.Entry) *leafDriver {
	return &leafDriver{core: newCore(cfg, t, entry, leaf.MaxOutstandingTx, leaf.DefaultTimeout, false)}
}

func (d *leafDriver) base() *core { return d.core }

func (d *leafDriver) configure() error {
	if err := checkEndpoints(d.core); err != nil {
		return err
	}
	d.canClock = d.entry.CANClockMHz
	d.setTimerFreq(d.entry.TimerMHz)
	d.window.SetMax(leaf.MaxOutstandingTx)
	d.opCapability = protocol.ModeNXTD | protocol.ModeNRTR
	if d.entry.ErrorFrame {
		d.opCapability |= protocol.ModeERR
	}
	if d.entry.Silent {
		d.opCapability |= protocol.ModeMON
	}
	d.tableCapabilities()
	return nil
}

// decode splits a transfer into frames. Leaf frames never straddle
// transfers, so a framing error drops the rest of the transfer.
func (d *leafDriver) decode(p []byte) []protocol.Frame {
	var out []protocol.Frame
	for len(p) > 0 {
		f, n, err := leaf.Decode(p)
		if err != nil {
			d.rxErrors.Add(1)
			d.ev.errorf("decode: %v, %d bytes dropped", err, len(p))
			return out
		}
		out = append(out, f)
		p = p[n:]
	}
	return out
}

func (d *leafDriver) initialize(ctx context.Context, mode protocol.OpMode) error {
	if err := d.stopChip(ctx, 0); err != nil {
		return err
	}
	if err := d.setDriverMode(ctx, protocol.DriverModeNormal); err != nil {
		return err
	}
	if err := d.requestChipState(ctx, 0); err != nil {
		return err
	}

	raw, err := d.request(ctx, leaf.GetCardInfo(0), protocol.CmdGetCardInfoResp, d.timeout)
	if err != nil {
		return fmt.Errorf("card info: %w", err)
	}
	if d.card, err = leaf.ParseCardInfo(raw); err != nil {
		return fmt.Errorf("card info: %w", err)
	}

	raw, err = d.request(ctx, leaf.GetSoftwareInfo(), protocol.CmdGetSoftwareInfoResp, d.timeout)
	if err != nil {
		return fmt.Errorf("software info: %w", err)
	}
	if d.software, err = leaf.ParseSoftwareInfo(raw); err != nil {
		return fmt.Errorf("software info: %w", err)
	}
	d.software.MaxBitrate = 1000000

	raw, err = d.request(ctx, leaf.GetTransceiverInfo(leafChannel), protocol.CmdGetTransceiverInfoResp, d.timeout)
	if err != nil {
		return fmt.Errorf("transceiver info: %w", err)
	}
	if d.transceiver, err = leaf.ParseTransceiverInfo(raw); err != nil {
		return fmt.Errorf("transceiver info: %w", err)
	}

	if d.software.SwOptions&protocol.SwOptionCapReq != 0 {
		if err := d.probeCapabilities(ctx); err != nil {
			return err
		}
	}

	switch d.software.SwOptions & protocol.SwOptionCPUFreqMask {
	case protocol.SwOptionCPUFreq16MHz:
		d.canClock = 16
	case protocol.SwOptionCPUFreq32MHz:
		d.canClock = 32
	case protocol.SwOptionCPUFreq24MHz:
		d.canClock = 24
	}
	d.setTimerFreq(d.canClock)
	d.window.SetMax(maxOutstanding(d.software.MaxOutstandingTx, leaf.MaxOutstandingTx))

	d.applyCapabilities()
	d.opCapability &^= protocol.ModeFDOE | protocol.ModeBRSE | protocol.ModeNISO
	return d.negotiate(mode)
}

// probeCapabilities asks for each optional feature in turn. The meaning of
// the mask and value fields is undocumented; see leaf.CapabilityEnabled.
func (d *leafDriver) probeCapabilities(ctx context.Context) error {
	for _, sub := range leaf.CapabilitySubCommands {
		raw, err := d.request(ctx, leaf.GetCapabilities(sub, 0), protocol.CmdGetCapabilitiesResp, d.timeout)
		if err != nil {
			return fmt.Errorf("capability %d: %w", sub, err)
		}
		r, err := leaf.ParseCapability(raw)
		if err != nil {
			return fmt.Errorf("capability %d: %w", sub, err)
		}
		if r.SubCmd != sub {
			d.ev.warnf("capability %d answered for %d", sub, r.SubCmd)
			continue
		}
		d.caps.Set(sub, leaf.CapabilityEnabled(r))
	}
	d.capsProbed = true
	return nil
}

func (d *leafDriver) teardown(ctx context.Context) {
	if err := d.stopChip(ctx, 0); err != nil {
		d.ev.warnf("teardown: stop chip: %v", err)
	}
	if err := d.setDriverMode(ctx, protocol.DriverModeNormal); err != nil {
		d.ev.warnf("teardown: driver mode: %v", err)
	}
}

func (d *leafDriver) prepareBusOn(ctx context.Context) error {
	if err := d.resetStatistics(ctx); err != nil {
		return err
	}
	return d.resetErrorCounter(ctx)
}

func (d *leafDriver) setBusParams(ctx context.Context, p protocol.BusParams) error {
	return d.command(ctx, leaf.SetBusParams(leafChannel, p), 0)
}

func (d *leafDriver) busParams(ctx context.Context) (protocol.BusParams, error) {
	raw, err := d.request(ctx, leaf.GetBusParams(leafChannel), protocol.CmdGetBusParamsResp, d.timeout)
	if err != nil {
		return protocol.BusParams{}, err
	}
	return leaf.ParseBusParams(raw)
}

var errLeafNoFD = fmt.Errorf("%w: Leaf adapters have no CAN FD or time quanta bus parameters", ErrUnsupported)

func (d *leafDriver) setBusParamsFd(context.Context, protocol.BusParamsFd) error {
	return errLeafNoFD
}

func (d *leafDriver) busParamsFd(context.Context) (protocol.BusParamsFd, error) {
	return protocol.BusParamsFd{}, errLeafNoFD
}

func (d *leafDriver) setBusParamsTq(context.Context, protocol.BusParamsTq) error {
	return errLeafNoFD
}

func (d *leafDriver) busParamsTq(context.Context) (protocol.BusParamsTq, error) {
	return protocol.BusParamsTq{}, errLeafNoFD
}

func (d *leafDriver) setDriverMode(ctx context.Context, m protocol.DriverMode) error {
	return d.command(ctx, leaf.SetDriverMode(leafChannel, m), 0)
}

func (d *leafDriver) driverMode(ctx context.Context) (protocol.DriverMode, error) {
	raw, err := d.request(ctx, leaf.GetDriverMode(leafChannel), protocol.CmdGetDriverModeResp, d.timeout)
	if err != nil {
		return 0, err
	}
	return leaf.ParseDriverMode(raw)
}

// startChip waits for the response only when timeout is positive.
func (d *leafDriver) startChip(ctx context.Context, timeout time.Duration) error {
	_, err := d.request(ctx, leaf.StartChip(leafChannel), protocol.CmdStartChipResp, max(timeout, 0))
	return err
}

func (d *leafDriver) stopChip(ctx context.Context, timeout time.Duration) error {
	_, err := d.request(ctx, leaf.StopChip(leafChannel), protocol.CmdStopChipResp, max(timeout, 0))
	return err
}

func (d *leafDriver) resetChip(ctx context.Context) error {
	return d.command(ctx, leaf.ResetChip(leafChannel), settleDelay)
}

func (d *leafDriver) resetCard(ctx context.Context) error {
	return d.command(ctx, leaf.ResetCard(), settleDelay)
}

func (d *leafDriver) resetErrorCounter(ctx context.Context) error {
	return d.command(ctx, leaf.ResetErrorCounter(leafChannel), settleDelay)
}

func (d *leafDriver) resetStatistics(ctx context.Context) error {
	return d.command(ctx, leaf.ResetStatistics(leafChannel), settleDelay)
}

func (d *leafDriver) requestChipState(ctx context.Context, delay time.Duration) error {
	return d.command(ctx, leaf.GetChipState(leafChannel), delay)
}

func (d *leafDriver) send(ctx context.Context, m *protocol.Message, timeout time.Duration) error {
	if err := d.checkTransmit(m); err != nil {
		return err
	}
	id, err := d.acquire(timeout > 0)
	if err != nil {
		return err
	}
	return d.transmit(ctx, leaf.TxMessage(leafChannel, id, m), protocol.CmdTxAcknowledge, timeout)
}

func (d *leafDriver) readClock(ctx context.Context) (uint64, error) {
	raw, err := d.request(ctx, leaf.ReadClock(leaf.ReadClockNow), protocol.CmdReadClockResp, d.timeout)
	if err != nil {
		return 0, err
	}
	return leaf.ParseReadClock(raw)
}

func (d *leafDriver) busLoad(ctx context.Context) (uint16, error) {
	raw, err := d.request(ctx, leaf.GetBusLoad(leafChannel), protocol.CmdGetBusLoadResp, d.timeout)
	if err != nil {
		return 0, err
	}
	return leaf.ParseBusLoad(raw)
}

func (d *leafDriver) flushQueue(ctx context.Context) error {
	_, err := d.request(ctx, leaf.FlushQueue(leafChannel, 0), protocol.CmdFiloFlushQueueResp, d.timeout)
	return err
}

func (d *leafDriver) interfaceInfo(ctx context.Context) (protocol.InterfaceInfo, error) {
	raw, err := d.request(ctx, leaf.GetInterfaceInfo(leafChannel), protocol.CmdGetInterfaceInfoResp, d.timeout)
	if err != nil {
		return protocol.InterfaceInfo{}, err
	}
	return leaf.ParseInterfaceInfo(raw)
}
