package hydra

import (
	"bytes"
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
)

// MapChannel asks the router for the HE address of a CAN channel. The
// channel number travels in the transaction id and comes back in the
// response.
func MapChannel(channel uint8) []byte {
	return mapRequest("CAN", SetSeq(0, mapChannelTransID|uint16(channel)), channel)
}

// MapSysDbg asks for the HE address of the system debug endpoint, which
// answers capability queries.
func MapSysDbg() []byte {
	return mapRequest("SYSDBG", SetSeq(0, sysDbgTransID), 0)
}

func mapRequest(name string, transID uint16, channel uint8) []byte {
	buf := newFrame(protocol.CmdMapChannelReq, RouterHE)
	le.PutUint16(buf[2:], transID)
	copy(buf[4:20], name)
	buf[20] = channel
	return buf
}

func putBusParams(buf []byte, p protocol.BusParams) {
	le.PutUint32(buf[0:], p.BitRate)
	buf[4] = p.TSeg1
	buf[5] = p.TSeg2
	buf[6] = p.SJW
	buf[7] = p.NoSamp
}

func busParamsAt(buf []byte) protocol.BusParams {
	return protocol.BusParams{
		BitRate: le.Uint32(buf[0:]),
		TSeg1:   buf[4],
		TSeg2:   buf[5],
		SJW:     buf[6],
		NoSamp:  buf[7],
	}
}

func SetBusParams(dest uint8, p protocol.BusParams) []byte {
	buf := newFrame(protocol.CmdSetBusParamsReq, dest)
	putBusParams(buf[4:], p)
	return buf
}

func SetBusParamsFd(dest uint8, p protocol.BusParamsFd) []byte {
	buf := newFrame(protocol.CmdSetBusParamsFdReq, dest)
	putBusParams(buf[4:], p.Nominal)
	putBusParams(buf[16:], p.Data)
	if p.CanFD {
		buf[24] = 1
	}
	return buf
}

func putTq(buf []byte, s protocol.TqSegment) {
	le.PutUint16(buf[0:], s.Prop)
	le.PutUint16(buf[2:], s.Phase1)
	le.PutUint16(buf[4:], s.Phase2)
	le.PutUint16(buf[6:], s.SJW)
	le.PutUint16(buf[8:], s.BRP)
}

func tqAt(buf []byte) protocol.TqSegment {
	return protocol.TqSegment{
		Prop:   le.Uint16(buf[0:]),
		Phase1: le.Uint16(buf[2:]),
		Phase2: le.Uint16(buf[4:]),
		SJW:    le.Uint16(buf[6:]),
		BRP:    le.Uint16(buf[8:]),
	}
}

func SetBusParamsTq(dest uint8, p protocol.BusParamsTq) []byte {
	buf := newFrame(protocol.CmdSetBusParamsTqReq, dest)
	putBusParamsTq(buf, p)
	return buf
}

func putBusParamsTq(buf []byte, p protocol.BusParamsTq) {
	putTq(buf[4:], p.Arbitration)
	putTq(buf[14:], p.Data)
	if p.CanFD {
		buf[24] = 1
	}
}

// GetBusParams reads the nominal parameters, or the data phase parameters
// when dataPhase is set.
func GetBusParams(dest uint8, dataPhase bool) []byte {
	buf := newFrame(protocol.CmdGetBusParamsReq, dest)
	if dataPhase {
		buf[4] = 1
	}
	return buf
}

func GetBusParamsTq(dest uint8, canFD bool) []byte {
	buf := newFrame(protocol.CmdGetBusParamsTqReq, dest)
	if canFD {
		buf[4] = 1
	}
	return buf
}

func SetDriverMode(dest uint8, mode protocol.DriverMode) []byte {
	buf := newFrame(protocol.CmdSetDriverModeReq, dest)
	buf[4] = uint8(mode)
	return buf
}

func GetDriverMode(dest uint8) []byte {
	return newFrame(protocol.CmdGetDriverModeReq, dest)
}

func GetChipState(dest uint8) []byte {
	return newFrame(protocol.CmdGetChipStateReq, dest)
}

func StartChip(dest uint8) []byte {
	return newFrame(protocol.CmdStartChipReq, dest)
}

func StopChip(dest uint8) []byte {
	return newFrame(protocol.CmdStopChipReq, dest)
}

func ResetChip(dest uint8) []byte {
	return newFrame(protocol.CmdResetChipReq, dest)
}

func ResetCard() []byte {
	return newFrame(protocol.CmdResetCardReq, RouterHE)
}

// FlushQueue takes no flags on Hydra firmware.
func FlushQueue(dest uint8) []byte {
	return newFrame(protocol.CmdFlushQueue, dest)
}

func ResetErrorCounter(dest uint8) []byte {
	return newFrame(protocol.CmdResetErrorCounter, dest)
}

func ResetStatistics(dest uint8) []byte {
	return newFrame(protocol.CmdResetStatistics, dest)
}

func ReadClock() []byte {
	return newFrame(protocol.CmdReadClockReq, IllegalHE)
}

func GetBusLoad(dest uint8) []byte {
	return newFrame(protocol.CmdGetBusLoadReq, dest)
}

func GetCardInfo(dataLevel int8) []byte {
	buf := newFrame(protocol.CmdGetCardInfoReq, IllegalHE)
	buf[4] = uint8(dataLevel)
	return buf
}

// GetSoftwareDetails requests the extended firmware description.
func GetSoftwareDetails(hydraExt bool) []byte {
	buf := newFrame(protocol.CmdGetSoftwareDetailsReq, IllegalHE)
	if hydraExt {
		buf[4] = 1
	}
	return buf
}

// GetMaxOutstandingTx is a GET_SOFTWARE_INFO request; only the transmit
// window size in its response is meaningful on Hydra firmware.
func GetMaxOutstandingTx() []byte {
	return newFrame(protocol.CmdGetSoftwareInfoReq, IllegalHE)
}

func GetInterfaceInfo() []byte {
	return newFrame(protocol.CmdGetInterfaceInfoReq, IllegalHE)
}

// GetCapabilities is addressed to the system debug HE.
func GetCapabilities(dest uint8, subCmd uint16) []byte {
	buf := newFrame(protocol.CmdGetCapabilitiesReq, dest)
	le.PutUint16(buf[4:], subCmd)
	return buf
}

func GetTransceiverInfo(dest uint8) []byte {
	return newFrame(protocol.CmdGetTransceiverInfoReq, dest)
}

// FPGA identifier and control word bits of TX_CAN_MESSAGE_FD.
const (
	fpgaIDExt    = 0xC0000000
	fpgaIDRemote = 0x20000000
	fpgaCtrlAck  = 0x80000000
	fpgaCtrlFDF  = 0x8000
	fpgaCtrlBRS  = 0x4000
	fpgaCtrlESI  = 0x2000
)

// TxMessage encodes a transmit request as an extended frame. Messages
// without payload fit in a short frame.
func TxMessage(dest, transID uint8, m *protocol.Message) []byte {
	length := FrameLen
	if m.DLC > 0 {
		length = ExtFrameLen
	}
	buf := make([]byte, length)
	buf[0] = protocol.CmdExtended
	buf[1] = SetDst(0, dest)
	buf[2] = transID
	le.PutUint16(buf[4:], uint16(length))
	buf[6] = protocol.CmdTxCanMessageFd

	flags := uint32(protocol.MsgFlagTx)
	fpgaID := m.ID & protocol.MaxExtID
	fpgaCtrl := uint32(fpgaCtrlAck) | uint32(transID) | uint32(m.DLC&0x0F)<<8
	if m.Extended {
		flags |= protocol.MsgFlagExt
		fpgaID |= fpgaIDExt
	}
	if m.Remote {
		flags |= protocol.MsgFlagRemoteFrame
		fpgaID |= fpgaIDRemote
	}
	if m.FDF {
		flags |= protocol.MsgFlagFDF
		fpgaCtrl |= fpgaCtrlFDF
	}
	if m.BRS {
		flags |= protocol.MsgFlagBRS
		fpgaCtrl |= fpgaCtrlBRS
	}
	if m.ESI {
		flags |= protocol.MsgFlagESI
		fpgaCtrl |= fpgaCtrlESI
	}
	le.PutUint32(buf[8:], flags)
	le.PutUint32(buf[12:], m.ID)
	le.PutUint32(buf[16:], fpgaID)
	le.PutUint32(buf[20:], fpgaCtrl)

	dlc := min(m.DLC, 8)
	if m.FDF {
		dlc = min(m.DLC, 15)
	}
	buf[24] = protocol.DLCToLen(dlc)
	buf[25] = dlc
	copy(buf[32:], m.Data[:protocol.DLCToLen(m.DLC)])
	return buf
}

// ParseTxMessage decodes a transmit request. It is the inverse of TxMessage
// and is used by simulated devices.
func ParseTxMessage(req []byte) (dest, transID uint8, m protocol.Message, err error) {
	if err = protocol.CheckLen(req, FrameLen); err != nil {
		return
	}
	if req[0] != protocol.CmdExtended || req[6] != protocol.CmdTxCanMessageFd {
		err = fmt.Errorf("%w: not a transmit request", protocol.ErrUnexpected)
		return
	}
	dest, transID = Dst(req[1]), req[2]
	flags := le.Uint32(req[8:])
	m.ID = le.Uint32(req[12:]) & protocol.MaxExtID
	m.DLC = req[25]
	m.Extended = flags&protocol.MsgFlagExt != 0
	m.Remote = flags&protocol.MsgFlagRemoteFrame != 0
	m.FDF = flags&protocol.MsgFlagFDF != 0
	m.BRS = flags&protocol.MsgFlagBRS != 0
	m.ESI = flags&protocol.MsgFlagESI != 0
	n := int(protocol.DLCToLen(m.DLC))
	if len(req) < FrameLen+n {
		err = fmt.Errorf("%w: payload of %d bytes in a %d byte frame", protocol.ErrShortBuffer, n, len(req))
		return
	}
	copy(m.Data[:n], req[FrameLen:])
	return
}

// ParseMapChannelRequest returns the endpoint name, channel and transaction
// id of a MAP_CHANNEL request.
func ParseMapChannelRequest(req []byte) (name string, channel uint8, transID uint16, err error) {
	if err = protocol.CheckLen(req, FrameLen); err != nil {
		return
	}
	name = string(bytes.TrimRight(req[4:20], "\x00"))
	return name, req[20], le.Uint16(req[2:]), nil
}

func ParseSetBusParams(req []byte) (protocol.BusParams, error) {
	if err := protocol.CheckLen(req, FrameLen); err != nil {
		return protocol.BusParams{}, err
	}
	return busParamsAt(req[4:]), nil
}

func ParseSetBusParamsFd(req []byte) (protocol.BusParamsFd, error) {
	if err := protocol.CheckLen(req, FrameLen); err != nil {
		return protocol.BusParamsFd{}, err
	}
	return protocol.BusParamsFd{
		Nominal: busParamsAt(req[4:]),
		Data:    busParamsAt(req[16:]),
		CanFD:   req[24] != 0,
	}, nil
}

func ParseSetBusParamsTqRequest(req []byte) (protocol.BusParamsTq, error) {
	if err := protocol.CheckLen(req, FrameLen); err != nil {
		return protocol.BusParamsTq{}, err
	}
	return busParamsTqAt(req), nil
}

func busParamsTqAt(buf []byte) protocol.BusParamsTq {
	return protocol.BusParamsTq{
		Arbitration: tqAt(buf[4:]),
		Data:        tqAt(buf[14:]),
		CanFD:       buf[24] != 0,
	}
}

func ParseSetDriverMode(req []byte) (protocol.DriverMode, error) {
	if err := protocol.CheckLen(req, FrameLen); err != nil {
		return 0, err
	}
	return protocol.DriverMode(req[4]), nil
}

// ParseCapabilitiesRequest returns the sub-command of a GET_CAPABILITIES request.
func ParseCapabilitiesRequest(req []byte) (uint16, error) {
	if err := protocol.CheckLen(req, FrameLen); err != nil {
		return 0, err
	}
	return le.Uint16(req[4:]), nil
}
