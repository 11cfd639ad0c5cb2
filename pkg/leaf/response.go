package leaf

import (
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
)

func expect(raw []byte, cmd uint8, n int) error {
	if err := protocol.CheckLen(raw, n); err != nil {
		return err
	}
	if raw[1] != cmd {
		return fmt.Errorf("%w: got %s, want %s", protocol.ErrUnexpected,
			protocol.CommandName(raw[1]), protocol.CommandName(cmd))
	}
	return nil
}

func ParseBusParams(raw []byte) (protocol.BusParams, error) {
	if err := expect(raw, protocol.CmdGetBusParamsResp, LenGetBusParamsResp); err != nil {
		return protocol.BusParams{}, err
	}
	return busParamsAt(raw), nil
}

func ParseDriverMode(raw []byte) (protocol.DriverMode, error) {
	if err := expect(raw, protocol.CmdGetDriverModeResp, LenGetDriverModeResp); err != nil {
		return 0, err
	}
	return protocol.DriverMode(le.Uint32(raw[4:])), nil
}

// ParseReadClock returns the raw 48-bit timer value.
func ParseReadClock(raw []byte) (uint64, error) {
	if err := expect(raw, protocol.CmdReadClockResp, LenReadClockResp); err != nil {
		return 0, err
	}
	if len(raw) >= 10 {
		return protocol.Ticks48(raw, 4), nil
	}
	return uint64(le.Uint32(raw[4:])), nil
}

func ParseCardInfo(raw []byte) (protocol.CardInfo, error) {
	if err := expect(raw, protocol.CmdGetCardInfoResp, LenGetCardInfoResp); err != nil {
		return protocol.CardInfo{}, err
	}
	info := protocol.CardInfo{
		ChannelCount:    raw[3],
		SerialNumber:    le.Uint32(raw[4:]),
		ClockResolution: le.Uint32(raw[12:]),
		MfgDate:         le.Uint32(raw[16:]),
		HwRevision:      raw[28],
		UsbHsMode:       raw[29],
		HwType:          raw[30],
		CanTimeStampRef: raw[31],
	}
	copy(info.EAN[:], raw[20:28])
	return info, nil
}

func ParseSoftwareInfo(raw []byte) (protocol.SoftwareInfo, error) {
	if err := expect(raw, protocol.CmdGetSoftwareInfoResp, LenGetSoftwareInfoResp); err != nil {
		return protocol.SoftwareInfo{}, err
	}
	return protocol.SoftwareInfo{
		SwOptions:        le.Uint32(raw[4:]),
		FirmwareVersion:  le.Uint32(raw[8:]),
		MaxOutstandingTx: le.Uint16(raw[12:]),
	}, nil
}

func ParseInterfaceInfo(raw []byte) (protocol.InterfaceInfo, error) {
	if err := expect(raw, protocol.CmdGetInterfaceInfoResp, LenGetInterfaceInfoResp); err != nil {
		return protocol.InterfaceInfo{}, err
	}
	return protocol.InterfaceInfo{
		ChannelCapabilities: le.Uint32(raw[4:]),
		CanChipType:         raw[8],
		CanChipSubType:      raw[9],
	}, nil
}

func ParseTransceiverInfo(raw []byte) (protocol.TransceiverInfo, error) {
	if err := expect(raw, protocol.CmdGetTransceiverInfoResp, LenTransceiverInfoResp); err != nil {
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
	if err := expect(raw, protocol.CmdGetBusLoadResp, LenGetBusLoadResp); err != nil {
		return 0, err
	}
	return protocol.BusLoad(le.Uint16(raw[10:]), le.Uint16(raw[12:]), le.Uint16(raw[14:])), nil
}

func ParseCapability(raw []byte) (protocol.CapabilityResponse, error) {
	if err := expect(raw, protocol.CmdGetCapabilitiesResp, LenGetCapabilitiesResp); err != nil {
		return protocol.CapabilityResponse{}, err
	}
	return protocol.CapabilityResponse{
		SubCmd: le.Uint16(raw[4:]),
		Status: le.Uint16(raw[6:]),
		Mask:   le.Uint32(raw[8:]),
		Value:  le.Uint32(raw[12:]),
	}, nil
}

// CapabilityEnabled interprets a capability response. The firmware documents
// neither field; a capability counts as present when value and mask overlap.
func CapabilityEnabled(r protocol.CapabilityResponse) bool {
	return r.Status == 0 && r.Value&r.Mask != 0
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
}
