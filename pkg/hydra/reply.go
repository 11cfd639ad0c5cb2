package hydra

import "github.com/roffe/kvcan/pkg/protocol"

// The builders in this file produce frames as the adapter firmware sends
// them. They back the simulated device and the codec tests.

// EncodeResponse builds an ordinary device to host frame from he.
func EncodeResponse(cmd, he uint8, transID uint16) []byte {
	buf := newFrame(cmd, he)
	le.PutUint16(buf[2:], transID)
	return buf
}

func MapChannelResponse(he uint8, transID uint16) []byte {
	buf := EncodeResponse(protocol.CmdMapChannelResp, RouterHE, transID)
	buf[4] = he
	return buf
}

func BusParamsResponse(he uint8, p protocol.BusParams) []byte {
	buf := EncodeResponse(protocol.CmdGetBusParamsResp, he, 0)
	putBusParams(buf[4:], p)
	return buf
}

func BusParamsTqResponse(he uint8, p protocol.BusParamsTq, status uint8) []byte {
	buf := EncodeResponse(protocol.CmdGetBusParamsTqResp, he, 0)
	putBusParamsTq(buf, p)
	buf[25] = status
	return buf
}

func SetBusParamsTqResponse(he, status uint8) []byte {
	buf := EncodeResponse(protocol.CmdSetBusParamsTqResp, he, 0)
	buf[4] = status
	return buf
}

func DriverModeResponse(he uint8, mode protocol.DriverMode) []byte {
	buf := EncodeResponse(protocol.CmdGetDriverModeResp, he, 0)
	buf[4] = uint8(mode)
	return buf
}

func ReadClockResponse(ticks uint64) []byte {
	buf := EncodeResponse(protocol.CmdReadClockResp, IllegalHE, 0)
	protocol.PutTicks48(buf, 4, ticks)
	return buf
}

// CardInfoResponse stores the EAN contiguously at offset 16 followed by the
// hardware fields.
func CardInfoResponse(info protocol.CardInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetCardInfoResp, IllegalHE, 0)
	le.PutUint32(buf[4:], info.SerialNumber)
	le.PutUint32(buf[8:], info.ClockResolution)
	le.PutUint32(buf[12:], info.MfgDate)
	copy(buf[16:24], info.EAN[:])
	buf[24] = info.HwRevision
	buf[25] = info.UsbHsMode
	buf[26] = info.HwType
	buf[27] = info.CanTimeStampRef
	buf[28] = info.ChannelCount
	return buf
}

func SoftwareDetailsResponse(info protocol.SoftwareInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetSoftwareDetailsResp, IllegalHE, 0)
	le.PutUint32(buf[4:], info.SwOptions)
	le.PutUint32(buf[8:], info.FirmwareVersion)
	le.PutUint32(buf[12:], info.SwName)
	copy(buf[16:24], info.EAN[:])
	le.PutUint32(buf[24:], info.MaxBitrate)
	return buf
}

func MaxOutstandingTxResponse(n uint16) []byte {
	buf := EncodeResponse(protocol.CmdGetSoftwareInfoResp, IllegalHE, 0)
	le.PutUint16(buf[12:], n)
	return buf
}

func InterfaceInfoResponse(info protocol.InterfaceInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetInterfaceInfoResp, IllegalHE, 0)
	le.PutUint32(buf[4:], info.ChannelCapabilities)
	buf[8] = info.CanChipType
	buf[9] = info.CanChipSubType
	return buf
}

func TransceiverInfoResponse(he uint8, info protocol.TransceiverInfo) []byte {
	buf := EncodeResponse(protocol.CmdGetTransceiverInfoResp, he, 0)
	le.PutUint32(buf[4:], info.Capabilities)
	buf[8] = info.Status
	buf[9] = uint8(info.Type)
	return buf
}

func BusLoadResponse(he uint8, interval, samples, elapsed uint16) []byte {
	buf := EncodeResponse(protocol.CmdGetBusLoadResp, he, 0)
	le.PutUint16(buf[10:], interval)
	le.PutUint16(buf[12:], samples)
	le.PutUint16(buf[14:], elapsed)
	return buf
}

func CapabilitiesResponse(he uint8, r protocol.CapabilityResponse) []byte {
	buf := EncodeResponse(protocol.CmdGetCapabilitiesResp, he, 0)
	le.PutUint16(buf[4:], r.SubCmd)
	le.PutUint16(buf[6:], r.Status)
	le.PutUint32(buf[8:], r.Mask)
	le.PutUint32(buf[12:], r.Value)
	return buf
}

func ChipStateFrame(he uint8, s protocol.ChipState) []byte {
	buf := EncodeResponse(protocol.CmdChipStateEvent, he, 0)
	protocol.PutTicks48(buf, 4, s.Time)
	buf[10] = s.TxErrors
	buf[11] = s.RxErrors
	buf[12] = uint8(s.BusStatus)
	return buf
}

func ErrorEventFrame(he uint8, r protocol.ErrorReport) []byte {
	buf := EncodeResponse(protocol.CmdErrorEvent, he, 0)
	protocol.PutTicks48(buf, 4, r.Time)
	buf[11] = r.Code
	le.PutUint16(buf[12:], r.AddInfo1)
	le.PutUint16(buf[14:], r.AddInfo2)
	return buf
}

func CanErrorFrame(he uint8, e protocol.CanError) []byte {
	buf := EncodeResponse(protocol.CmdCanErrorEvent, he, 0)
	protocol.PutTicks48(buf, 4, e.Time)
	buf[10] = e.Flags
	buf[12] = e.TxErrors
	buf[13] = e.RxErrors
	buf[14] = uint8(e.BusStatus)
	buf[15] = e.ErrorFactor
	return buf
}

func newExtended(ext, he uint8, transID uint8, length int) []byte {
	buf := make([]byte, length)
	buf[0] = protocol.CmdExtended
	buf[1] = SetDst(0, he)
	buf[2] = transID
	le.PutUint16(buf[4:], uint16(length))
	buf[6] = ext
	return buf
}

// RxMessageFrame builds a received message. extra is ORed into the message
// flags and may mark the frame as a status report.
func RxMessageFrame(he uint8, m *protocol.Message, extra uint32, ticks uint64) []byte {
	n := int(protocol.DLCToLen(m.DLC))
	if m.ErrorFrame {
		n = 4
	}
	buf := newExtended(protocol.CmdRxMessageFd, he, 0, FrameLen+n)
	flags := extra
	if m.Extended {
		flags |= protocol.MsgFlagExt
	}
	if m.Remote {
		flags |= protocol.MsgFlagRemoteFrame
	}
	if m.FDF {
		flags |= protocol.MsgFlagFDF
	}
	if m.BRS {
		flags |= protocol.MsgFlagBRS
	}
	if m.ESI {
		flags |= protocol.MsgFlagESI
	}
	if m.ErrorFrame {
		flags |= protocol.MsgFlagErrorFrame
	}
	le.PutUint32(buf[8:], flags)
	le.PutUint32(buf[12:], m.ID&protocol.MaxExtID)
	buf[21] = m.DLC & 0x0F
	le.PutUint64(buf[24:], ticks)
	copy(buf[FrameLen:], m.Data[:n])
	return buf
}

func TxAckFrame(he, transID uint8) []byte {
	return newExtended(protocol.CmdTxAckFd, he, transID, FrameLen)
}
