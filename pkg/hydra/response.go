package hydra

import (
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
)

func expect(raw []byte, cmd uint8) error {
	if err := protocol.CheckLen(raw, FrameLen); err != nil {
		return err
	}
	if raw[0] != cmd {
		return fmt.Errorf("%w: got %s, want %s", protocol.ErrUnexpected,
			protocol.CommandName(raw[0]), protocol.CommandName(cmd))
	}
	return nil
}

// ParseMapChannel returns the HE address assigned by the router and the
// channel number echoed in the transaction id.
func ParseMapChannel(raw []byte) (he, channel uint8, err error) {
	if err = expect(raw, protocol.CmdMapChannelResp); err != nil {
		return
	}
	return raw[4], uint8(le.Uint16(raw[2:]) & 0x0F), nil
}

// ParseBusParams decodes GET_BUSPARAMS_RESP for either phase.
func ParseBusParams(raw []byte) (protocol.BusParams, error) {
	if err := expect(raw, protocol.CmdGetBusParamsResp); err != nil {
		return protocol.BusParams{}, err
	}
	return busParamsAt(raw[4:]), nil
}

func ParseBusParamsTq(raw []byte) (protocol.BusParamsTq, uint8, error) {
	if err := expect(raw, protocol.CmdGetBusParamsTqResp); err != nil {
		return protocol.BusParamsTq{}, 0, err
	}
	return busParamsTqAt(raw), raw[25], nil
}

// ParseSetBusParamsTq returns the status byte of SET_BUSPARAMS_TQ_RESP.
func ParseSetBusParamsTq(raw []byte) (uint8, error) {
	if err := expect(raw, protocol.CmdSetBusParamsTqResp); err != nil {
		return 0, err
	}
	return raw[4], nil
}

func ParseDriverMode(raw []byte) (protocol.DriverMode, error) {
	if err := expect(raw, protocol.CmdGetDriverModeResp); err != nil {
		return 0, err
	}
	return protocol.DriverMode(raw[4]), nil
}

// ParseReadClock returns the raw 48-bit timer value.
func ParseReadClock(raw []byte) (uint64, error) {
	if err := expect(raw, protocol.CmdReadClockResp); err != nil {
		return 0, err
	}
	return protocol.Ticks48(raw, 4), nil
}

// eanOffsets lists where the firmware places the EAN bytes in
// GET_CARD_INFO_RESP. Bytes two and three overlap the hardware fields.
var eanOffsets = [8]int{16, 17, 28, 29, 20, 21, 22, 23}

func ParseCardInfo(raw []byte) (protocol.CardInfo, error) {
	if err := expect(raw, protocol.CmdGetCardInfoResp); err != nil {
		return protocol.CardInfo{}, err
	}
	info := protocol.CardInfo{
		SerialNumber:    le.Uint32(raw[4:]),
		ClockResolution: le.Uint32(raw[8:]),
		MfgDate:         le.Uint32(raw[12:]),
		HwRevision:      raw[24],
		UsbHsMode:       raw[25],
		HwType:          raw[26],
		CanTimeStampRef: raw[27],
		ChannelCount:    raw[28],
	}
	for i, off := range eanOffsets {
		info.EAN[i] = raw[off]
	}
	return info, nil
}

// ParseSoftwareDetails decodes GET_SOFTWARE_DETAILS_RESP. The transmit
// window size is not part of it; see ParseMaxOutstandingTx.
func ParseSoftwareDetails(raw []byte) (protocol.SoftwareInfo, error) {
	if err := expect(raw, protocol.CmdGetSoftwareDetailsResp); err != nil {
		return protocol.SoftwareInfo{}, err
	}
	info := protocol.SoftwareInfo{
		SwOptions:       le.Uint32(raw[4:]),
		FirmwareVersion: le.Uint32(raw[8:]),
		SwName:          le.Uint32(raw[12:]),
		MaxBitrate:      le.Uint32(raw[24:]),
	}
	copy(info.EAN[:], raw[16:24])
	return info, nil
}

func ParseMaxOutstandingTx(raw []byte) (uint16, error) {
	if err := expect(raw, protocol.CmdGetSoftwareInfoResp); err != nil {
		return 0, err
	}
	return le.Uint16(raw[12:]), nil
}

func ParseInterfaceInfo(raw []byte) (protocol.InterfaceInfo, error) {
	if err := expect(raw, protocol.CmdGetInterfaceInfoResp); err != nil {
		return protocol.InterfaceInfo{}, err
	}
	return protocol.InterfaceInfo{
		ChannelCapabilities: le.Uint32(raw[4:]),
		CanChipType:         raw[8],
		CanChipSubType:      raw[9],
	}, nil
}

func ParseTransceiverInfo(raw []byte) (protocol.TransceiverInfo, error) {
	if err := expect(raw, protocol.CmdGetTransceiverInfoResp); err != nil {
		return protocol.TransceiverInfo{}, err
	}
	return protocol.TransceiverInfo{
		Capabilities: le.Uint32(raw[4:]),
		Status:       raw[8],
		Type:         protocol.TransceiverType(raw[9]),
	}, nil
}

// ParseBusLoad returns the load in hundredths of a percent.
func ParseBusLoad(raw []byte) (uint16, error) {
	if err := expect(raw, protocol.CmdGetBusLoadResp); err != nil {
		return 0, err
	}
	return protocol.BusLoad(le.Uint16(raw[10:]), le.Uint16(raw[12:]), le.Uint16(raw[14:])), nil
}

func ParseCapability(raw []byte) (protocol.CapabilityResponse, error) {
	if err := expect(raw, protocol.CmdGetCapabilitiesResp); err != nil {
		return protocol.CapabilityResponse{}, err
	}
	return protocol.CapabilityResponse{
		SubCmd: le.Uint16(raw[4:]),
		Status: le.Uint16(raw[6:]),
		Mask:   le.Uint32(raw[8:]),
		Value:  le.Uint32(raw[12:]),
	}, nil
}

// CapabilityEnabled reports whether a capability is present on channel.
// Mask and value carry one bit per channel.
func CapabilityEnabled(r protocol.CapabilityResponse, channel uint8) bool {
	bit := uint32(1) << channel
	return r.Status == 0 && r.Mask&bit != 0 && r.Value&bit != 0
}

// CapabilitySubCommands are probed in order when the firmware supports
// GET_CAPABILITIES.
var CapabilitySubCommands = [...]uint16{
	protocol.CapSubSilentMode,
	protocol.CapSubErrFrame,
	protocol.CapSubBusStats,
	protocol.CapSubErrCountRead,
	protocol.CapSubSingleShot,
	protocol.CapSubSyncTxFlush,
	protocol.CapSubHasLogger,
	protocol.CapSubHasRemote,
	protocol.CapSubHasScript,
	protocol.CapSubLinHybrid,
	protocol.CapSubKdiInfo,
	protocol.CapSubHasKdi,
	protocol.CapSubHasIOAPI,
	protocol.CapSubHasBusParamsTq,
}

// IsTxAck reports whether an extended frame acknowledges a transmit request.
func IsTxAck(raw []byte) bool {
	return len(raw) >= 7 && raw[0] == protocol.CmdExtended && raw[6] == protocol.CmdTxAckFd
}
