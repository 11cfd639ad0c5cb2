package kvcan

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/hydra"
	"github.com/roffe/kvcan/pkg/protocol"
)

type hydraDriver struct {
	*core

	// he is the HE address of CAN channel 0, sysdbg the address that
	// answers capability queries. Both are learned during initialize.
	he     uint8
	sysdbg uint8

	// reasm is only touched by the reception goroutine.
	reasm *hydra.Reassembler
}

func newHydraDriver(cfg *Config, t Transport, entry device.Entry) *hydraDriver {
	return &hydraDriver{
		core:   newCore(cfg, t, entry, hydra.MaxOutstandingTx, hydra.DefaultTimeout, true),
		he:     hydra.IllegalHE,
		sysdbg: hydra.IllegalHE,
		reasm:  hydra.NewReassembler(hydra.ReassemblyCapacity),
	}
}

func (d *hydraDriver) base() *core { return d.core }

func (d *hydraDriver) configure() error {
	if err := checkEndpoints(d.core); err != nil {
		return err
	}
	d.canClock = d.entry.CANClockMHz
	d.setTimerFreq(d.entry.TimerMHz)
	d.window.SetMax(hydra.MaxOutstandingTx)
	d.opCapability = protocol.ModeNXTD | protocol.ModeNRTR | protocol.ModeERR
	if d.entry.CanFD {
		d.opCapability |= protocol.ModeFDOE | protocol.ModeBRSE
	}
	if d.entry.Silent {
		d.opCapability |= protocol.ModeMON
	}
	d.tableCapabilities()
	d.he, d.sysdbg = hydra.IllegalHE, hydra.IllegalHE
	d.reasm.Reset()
	return nil
}

// decode feeds a transfer to the reassembler and decodes every frame it
// completes. On overflow the buffered bytes are lost and decoding resumes
// with the next transfer.
func (d *hydraDriver) decode(p []byte) []protocol.Frame {
	frames, err := d.reasm.Feed(p)
	if err != nil {
		d.rxErrors.Add(1)
		d.ev.errorf("reassembly: %v", err)
	}
	out := make([]protocol.Frame, 0, len(frames))
	for _, b := range frames {
		f, _, err := hydra.Decode(b)
		if err != nil {
			d.rxErrors.Add(1)
			d.ev.errorf("decode: %v", err)
			continue
		}
		out = append(out, f)
	}
	return out
}

func (d *hydraDriver) initialize(ctx context.Context, mode protocol.OpMode) error {
	raw, err := d.request(ctx, hydra.MapChannel(0), protocol.CmdMapChannelResp, d.timeout)
	if err != nil {
		return fmt.Errorf("map channel: %w", err)
	}
	if d.he, _, err = hydra.ParseMapChannel(raw); err != nil {
		return fmt.Errorf("map channel: %w", err)
	}
	raw, err = d.request(ctx, hydra.MapSysDbg(), protocol.CmdMapChannelResp, d.timeout)
	if err != nil {
		return fmt.Errorf("map sysdbg: %w", err)
	}
	if d.sysdbg, _, err = hydra.ParseMapChannel(raw); err != nil {
		return fmt.Errorf("map sysdbg: %w", err)
	}

	if err := d.stopChip(ctx, d.timeout); err != nil {
		return err
	}
	if err := d.setDriverMode(ctx, protocol.DriverModeNormal); err != nil {
		return err
	}
	if err := d.requestChipState(ctx, 0); err != nil {
		return err
	}

	raw, err = d.request(ctx, hydra.GetCardInfo(0), protocol.CmdGetCardInfoResp, d.timeout)
	if err != nil {
		return fmt.Errorf("card info: %w", err)
	}
	if d.card, err = hydra.ParseCardInfo(raw); err != nil {
		return fmt.Errorf("card info: %w", err)
	}

	raw, err = d.request(ctx, hydra.GetSoftwareDetails(true), protocol.CmdGetSoftwareDetailsResp, d.timeout)
	if err != nil {
		return fmt.Errorf("software details: %w", err)
	}
	if d.software, err = hydra.ParseSoftwareDetails(raw); err != nil {
		return fmt.Errorf("software details: %w", err)
	}
	raw, err = d.request(ctx, hydra.GetMaxOutstandingTx(), protocol.CmdGetSoftwareInfoResp, d.timeout)
	if err != nil {
		return fmt.Errorf("software info: %w", err)
	}
	if d.software.MaxOutstandingTx, err = hydra.ParseMaxOutstandingTx(raw); err != nil {
		return fmt.Errorf("software info: %w", err)
	}

	raw, err = d.request(ctx, hydra.GetTransceiverInfo(d.he), protocol.CmdGetTransceiverInfoResp, d.timeout)
	if err != nil {
		return fmt.Errorf("transceiver info: %w", err)
	}
	if d.transceiver, err = hydra.ParseTransceiverInfo(raw); err != nil {
		return fmt.Errorf("transceiver info: %w", err)
	}

	if d.software.SwOptions&protocol.SwOptionCapReq != 0 {
		if err := d.probeCapabilities(ctx); err != nil {
			return err
		}
	}

	switch d.software.SwOptions & protocol.HydraSwOptionCanClkMask {
	case protocol.HydraSwOption80MHzCanClk:
		d.canClock = 80
	case protocol.HydraSwOption24MHzCanClk:
		d.canClock = 24
	}
	switch d.software.SwOptions & protocol.SwOptionCPUFreqMask {
	case protocol.HydraSwOption80MHzClk:
		d.setTimerFreq(80)
	case protocol.HydraSwOption24MHzClk:
		d.setTimerFreq(24)
	}
	d.window.SetMax(maxOutstanding(d.software.MaxOutstandingTx, hydra.MaxOutstandingTx))

	d.applyCapabilities()
	d.opCapability &^= protocol.ModeFDOE | protocol.ModeBRSE | protocol.ModeNISO
	if d.software.SwOptions&protocol.HydraSwOptionCanFDCap != 0 {
		d.opCapability |= protocol.ModeFDOE | protocol.ModeBRSE
	}
	return d.negotiate(mode)
}

func (d *hydraDriver) probeCapabilities(ctx context.Context) error {
	for _, sub := range hydra.CapabilitySubCommands {
		raw, err := d.request(ctx, hydra.GetCapabilities(d.sysdbg, sub), protocol.CmdGetCapabilitiesResp, d.timeout)
		if err != nil {
			return fmt.Errorf("capability %d: %w", sub, err)
		}
		r, err := hydra.ParseCapability(raw)
		if err != nil {
			return fmt.Errorf("capability %d: %w", sub, err)
		}
		if r.SubCmd != sub {
			d.ev.warnf("capability %d answered for %d", sub, r.SubCmd)
			continue
		}
		d.caps.Set(sub, hydra.CapabilityEnabled(r, 0))
	}
	d.capsProbed = true
	return nil
}

func (d *hydraDriver) teardown(ctx context.Context) {
	if err := d.stopChip(ctx, 0); err != nil {
		d.ev.warnf("teardown: stop chip: %v", err)
	}
	if err := d.setDriverMode(ctx, protocol.DriverModeNormal); err != nil {
		d.ev.warnf("teardown: driver mode: %v", err)
	}
}

func (d *hydraDriver) prepareBusOn(context.Context) error {
	return nil
}

func (d *hydraDriver) setBusParams(ctx context.Context, p protocol.BusParams) error {
	if p.NoSamp != 1 {
		return fmt.Errorf("%w: %d sample points, the controller samples once", ErrIllegalParameter, p.NoSamp)
	}
	if _, err := d.request(ctx, hydra.SetBusParams(d.he, p), protocol.CmdSetBusParamsResp, d.timeout); err != nil {
		return err
	}
	got, err := d.busParams(ctx)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if got != p {
		return fmt.Errorf("%w: device applied %s, requested %s", ErrIllegalParameter, got, p)
	}
	return nil
}

func (d *hydraDriver) busParams(ctx context.Context) (protocol.BusParams, error) {
	return d.phaseParams(ctx, false)
}

func (d *hydraDriver) phaseParams(ctx context.Context, data bool) (protocol.BusParams, error) {
	raw, err := d.request(ctx, hydra.GetBusParams(d.he, data), protocol.CmdGetBusParamsResp, d.timeout)
	if err != nil {
		return protocol.BusParams{}, err
	}
	return hydra.ParseBusParams(raw)
}

func (d *hydraDriver) setBusParamsFd(ctx context.Context, p protocol.BusParamsFd) error {
	if p.Nominal.NoSamp != 1 || (p.CanFD && p.Data.NoSamp != 1) {
		return fmt.Errorf("%w: the controller samples once", ErrIllegalParameter)
	}
	if p.CanFD && d.opMode&protocol.ModeFDOE == 0 {
		return fmt.Errorf("%w: CAN FD not enabled", ErrIllegalParameter)
	}
	if _, err := d.request(ctx, hydra.SetBusParamsFd(d.he, p), protocol.CmdSetBusParamsFdResp, d.timeout); err != nil {
		return err
	}
	got, err := d.busParamsFd(ctx)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if got.Nominal != p.Nominal || (p.CanFD && got.Data != p.Data) {
		return fmt.Errorf("%w: device applied %s, requested %s", ErrIllegalParameter, got, p)
	}
	return nil
}

func (d *hydraDriver) busParamsFd(ctx context.Context) (protocol.BusParamsFd, error) {
	var (
		p   protocol.BusParamsFd
		err error
	)
	p.CanFD = d.opMode&protocol.ModeFDOE != 0
	if p.Nominal, err = d.phaseParams(ctx, false); err != nil {
		return p, err
	}
	if p.Data, err = d.phaseParams(ctx, true); err != nil {
		return p, err
	}
	return p, nil
}

func (d *hydraDriver) checkTq() error {
	if !d.caps.HasTimeQuanta {
		return fmt.Errorf("%w: firmware has no time quanta bus parameters", ErrUnsupported)
	}
	return nil
}

func (d *hydraDriver) setBusParamsTq(ctx context.Context, p protocol.BusParamsTq) error {
	if err := d.checkTq(); err != nil {
		return err
	}
	raw, err := d.request(ctx, hydra.SetBusParamsTq(d.he, p), protocol.CmdSetBusParamsTqResp, d.timeout)
	if err != nil {
		return err
	}
	status, err := hydra.ParseSetBusParamsTq(raw)
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("%w: bus parameters rejected with status %d", ErrIllegalParameter, status)
	}
	return nil
}

func (d *hydraDriver) busParamsTq(ctx context.Context) (protocol.BusParamsTq, error) {
	if err := d.checkTq(); err != nil {
		return protocol.BusParamsTq{}, err
	}
	raw, err := d.request(ctx, hydra.GetBusParamsTq(d.he, true), protocol.CmdGetBusParamsTqResp, d.timeout)
	if err != nil {
		return protocol.BusParamsTq{}, err
	}
	p, status, err := hydra.ParseBusParamsTq(raw)
	if err != nil {
		return p, err
	}
	if status != 0 {
		return p, fmt.Errorf("%w: bus parameters unavailable, status %d", ErrIllegalParameter, status)
	}
	return p, nil
}

func (d *hydraDriver) setDriverMode(ctx context.Context, m protocol.DriverMode) error {
	return d.command(ctx, hydra.SetDriverMode(d.he, m), 0)
}

func (d *hydraDriver) driverMode(ctx context.Context) (protocol.DriverMode, error) {
	raw, err := d.request(ctx, hydra.GetDriverMode(d.he), protocol.CmdGetDriverModeResp, d.timeout)
	if err != nil {
		return 0, err
	}
	return hydra.ParseDriverMode(raw)
}

// startChip always waits; a non-positive timeout uses the command timeout.
func (d *hydraDriver) startChip(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.timeout
	}
	_, err := d.request(ctx, hydra.StartChip(d.he), protocol.CmdStartChipResp, timeout)
	return err
}

func (d *hydraDriver) stopChip(ctx context.Context, timeout time.Duration) error {
	_, err := d.request(ctx, hydra.StopChip(d.he), protocol.CmdStopChipResp, max(timeout, 0))
	return err
}

func (d *hydraDriver) resetChip(ctx context.Context) error {
	return d.command(ctx, hydra.ResetChip(d.he), settleDelay)
}

func (d *hydraDriver) resetCard(ctx context.Context) error {
	return d.command(ctx, hydra.ResetCard(), settleDelay)
}

func (d *hydraDriver) resetErrorCounter(ctx context.Context) error {
	return d.command(ctx, hydra.ResetErrorCounter(d.he), settleDelay)
}

func (d *hydraDriver) resetStatistics(ctx context.Context) error {
	return d.command(ctx, hydra.ResetStatistics(d.he), settleDelay)
}

func (d *hydraDriver) requestChipState(ctx context.Context, delay time.Duration) error {
	return d.command(ctx, hydra.GetChipState(d.he), delay)
}

func (d *hydraDriver) send(ctx context.Context, m *protocol.Message, timeout time.Duration) error {
	if err := d.checkTransmit(m); err != nil {
		return err
	}
	id, err := d.acquire(timeout > 0)
	if err != nil {
		return err
	}
	return d.transmit(ctx, hydra.TxMessage(d.he, id, m), protocol.CmdTxAckFd, timeout)
}

func (d *hydraDriver) readClock(ctx context.Context) (uint64, error) {
	raw, err := d.request(ctx, hydra.ReadClock(), protocol.CmdReadClockResp, d.timeout)
	if err != nil {
		return 0, err
	}
	return hydra.ParseReadClock(raw)
}

func (d *hydraDriver) busLoad(ctx context.Context) (uint16, error) {
	raw, err := d.request(ctx, hydra.GetBusLoad(d.he), protocol.CmdGetBusLoadResp, d.timeout)
	if err != nil {
		return 0, err
	}
	return hydra.ParseBusLoad(raw)
}

func (d *hydraDriver) flushQueue(ctx context.Context) error {
	_, err := d.request(ctx, hydra.FlushQueue(d.he), protocol.CmdFlushQueueResp, d.timeout)
	return err
}

func (d *hydraDriver) interfaceInfo(ctx context.Context) (protocol.InterfaceInfo, error) {
	raw, err := d.request(ctx, hydra.GetInterfaceInfo(), protocol.CmdGetInterfaceInfoResp, d.timeout)
	if err != nil {
		return protocol.InterfaceInfo{}, err
	}
	return hydra.ParseInterfaceInfo(raw)
}
