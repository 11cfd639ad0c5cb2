package leaf

import "github.com/roffe/kvcan/pkg/protocol"

// The builders in this file produce frames as the adapter firmware sends
// them. They back the simulated device and the codec tests.

// EncodeResponse builds a device to host frame of the given total length.
func EncodeResponse(cmd, transID, channel uint8, length int, payload []byte) []byte {
	buf := make([]byte, max(length, MinFrameLen+len(payload)))
	buf[0] = uint8(len(buf))
	buf[1] = cmd
	buf[2] = transID
	buf[3] = channel
	copy(buf[MinFrameLen:], payload)
	return buf
}

func BusParamsResponse(channel uint8, p protocol.BusParams) []byte {
	buf := EncodeResponse(protocol.CmdGetBusParamsResp, protocol.CmdGetBusParamsReq, channel, LenGetBusParamsResp, nil)
	le.PutUint32(buf[4:], p.BitRate)
	buf[8] = p.TSeg1
	buf[9] = p.TSeg2
	buf[10] = p.SJW
	buf[11] = p.NoSamp
	return buf
}

func DriverModeResponse(channel uint8, mode protocol.DriverMode) []byte {
	buf := EncodeResponse(protocol.CmdGetDriverModeResp, protocol.CmdGetDriverModeReq, channel, LenGetDriverModeResp, nil)
	le.PutUint32(buf[4:], uint32(mode))
	return buf
}

// ReadClockResponse carries the full 48-bit timer, so the frame is longer
// than the nominal response length.
func ReadClockResponse(ticks uint64) []byte {
	buf := EncodeResponse(protocol.CmdReadClockResp, protocol.CmdReadClockReq, 0, 12, nil)
	protocol.PutTicks48(buf, 4, ticks)
	return buf
}

func CardInfoResponse(info protocol.CardInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetCardInfoResp, protocol.CmdGetCardInfoReq, info.ChannelCount, LenGetCardInfoResp, nil)
	le.PutUint32(buf[4:], info.SerialNumber)
	le.PutUint32(buf[12:], info.ClockResolution)
	le.PutUint32(buf[16:], info.MfgDate)
	copy(buf[20:28], info.EAN[:])
	buf[28] = info.HwRevision
	buf[29] = info.UsbHsMode
	buf[30] = info.HwType
	buf[31] = info.CanTimeStampRef
	return buf
}

func SoftwareInfoResponse(info protocol.SoftwareInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetSoftwareInfoResp, protocol.CmdGetSoftwareInfoReq, 0, LenGetSoftwareInfoResp, nil)
	le.PutUint32(buf[4:], info.SwOptions)
	le.PutUint32(buf[8:], info.FirmwareVersion)
	le.PutUint16(buf[12:], info.MaxOutstandingTx)
	return buf
}

func InterfaceInfoResponse(channel uint8, info protocol.InterfaceInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetInterfaceInfoResp, protocol.CmdGetInterfaceInfoReq, channel, LenGetInterfaceInfoResp, nil)
	le.PutUint32(buf[4:], info.ChannelCapabilities)
	buf[8] = info.CanChipType
	buf[9] = info.CanChipSubType
	return buf
}

func TransceiverInfoResponse(channel uint8, info protocol.TransceiverInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetTransceiverInfoResp, protocol.CmdGetTransceiverInfoReq, channel, LenTransceiverInfoResp, nil)
	le.PutUint32(buf[4:], info.Capabilities)
	buf[8] = info.Status
	buf[9] = uint8(info.Type)
	return buf
}

func BusLoadResponse(channel uint8, interval, samples, elapsed uint16) []byte {
	buf := EncodeResponse(protocol.CmdGetBusLoadResp, protocol.CmdGetBusLoadReq, channel, LenGetBusLoadResp, nil)
	le.PutUint16(buf[10:], interval)
	le.PutUint16(buf[12:], samples)
	le.PutUint16(buf[14:], elapsed)
	return buf
}

func CapabilitiesResponse(r protocol.CapabilityResponse) []byte {
	buf := EncodeResponse(protocol.CmdGetCapabilitiesResp, 0, 0, LenGetCapabilitiesResp, nil)
	le.PutUint16(buf[4:], r.SubCmd)
	le.PutUint16(buf[6:], r.Status)
	le.PutUint32(buf[8:], r.Mask)
	le.PutUint32(buf[12:], r.Value)
	return buf
}

func FlushQueueResponse(channel uint8, flags uint32) []byte {
	buf := EncodeResponse(protocol.CmdFiloFlushQueueResp, protocol.CmdFlushQueue, channel, LenFiloFlushQueueResp, nil)
	le.PutUint32(buf[4:], flags)
	return buf
}

// ChipStateFrame builds a CHIP_STATE_EVENT.
func ChipStateFrame(channel uint8, s protocol.ChipState) []byte {
	buf := EncodeResponse(protocol.CmdChipStateEvent, 0, channel, LenChipStateEvent, nil)
	protocol.PutTicks48(buf, 4, s.Time)
	buf[10] = s.TxErrors
	buf[11] = s.RxErrors
	buf[12] = uint8(s.BusStatus)
	return buf
}

func ErrorEventFrame(r protocol.ErrorReport) []byte {
	buf := EncodeResponse(protocol.CmdErrorEvent, 0, r.Code, LenErrorEvent, nil)
	protocol.PutTicks48(buf, 4, r.Time)
	le.PutUint16(buf[12:], r.AddInfo1)
	le.PutUint16(buf[14:], r.AddInfo2)
	return buf
}

func CanErrorFrame(e protocol.CanError) []byte {
	buf := EncodeResponse(protocol.CmdCanErrorEvent, 0, e.Flags, LenCanErrorEvent, nil)
	protocol.PutTicks48(buf, 4, e.Time)
	buf[10] = e.Channel
	buf[12] = e.TxErrors
	buf[13] = e.RxErrors
	buf[14] = uint8(e.BusStatus)
	buf[15] = e.ErrorFactor
	return buf
}

// LogMessageFrame builds a received message as logged by the firmware.
func LogMessageFrame(m *protocol.Message, flags uint8, ticks uint64) []byte {
	buf := EncodeResponse(protocol.CmdLogMessage, 0, flags, LenLogMessage, nil)
	if m.Remote {
		buf[3] |= protocol.MsgFlagRemoteFrame
	}
	if m.ErrorFrame {
		buf[3] |= protocol.MsgFlagErrorFrame
	}
	protocol.PutTicks48(buf, 4, ticks)
	buf[10] = min(m.DLC, 8)
	id := m.ID & protocol.MaxExtID
	if m.Extended {
		id |= 0x80000000
	}
	le.PutUint32(buf[12:], id)
	copy(buf[16:24], m.Data[:8])
	return buf
}

func TxAckFrame(channel, transID uint8, ticks uint64) []byte {
	buf := EncodeResponse(protocol.CmdTxAcknowledge, channel, transID, LenTxAcknowledge, nil)
	protocol.PutTicks48(buf, 4, ticks)
	return buf
}

// ParseSetDriverMode decodes a SET_DRIVERMODE request.
func ParseSetDriverMode(req []byte) (protocol.DriverMode, error) {
	if err := protocol.CheckLen(req, LenSetDriverModeReq); err != nil {
		return 0, err
	}
	return protocol.DriverMode(req[4]), nil
}
