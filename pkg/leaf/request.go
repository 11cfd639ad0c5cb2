package leaf

import (
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
)

func SetBusParams(channel uint8, p protocol.BusParams) []byte {
	payload := make([]byte, 8)
	le.PutUint32(payload[0:], p.BitRate)
	payload[4] = p.TSeg1
	payload[5] = p.TSeg2
	payload[6] = p.SJW
	payload[7] = p.NoSamp
	return EncodeRequest(protocol.CmdSetBusParamsReq, channel, payload)
}

func GetBusParams(channel uint8) []byte {
	return EncodeRequest(protocol.CmdGetBusParamsReq, channel, nil)
}

func SetDriverMode(channel uint8, mode protocol.DriverMode) []byte {
	return EncodeRequest(protocol.CmdSetDriverModeReq, channel, []byte{uint8(mode), 0, 0, 0})
}

func GetDriverMode(channel uint8) []byte {
	return EncodeRequest(protocol.CmdGetDriverModeReq, channel, nil)
}

func GetChipState(channel uint8) []byte {
	return EncodeRequest(protocol.CmdGetChipStateReq, channel, nil)
}

func StartChip(channel uint8) []byte {
	return EncodeRequest(protocol.CmdStartChipReq, channel, nil)
}

func StopChip(channel uint8) []byte {
	return EncodeRequest(protocol.CmdStopChipReq, channel, nil)
}

func ResetChip(channel uint8) []byte {
	return EncodeRequest(protocol.CmdResetChipReq, channel, nil)
}

func ResetCard() []byte {
	return EncodeRequest(protocol.CmdResetCardReq, 0, nil)
}

func FlushQueue(channel, flags uint8) []byte {
	return EncodeRequest(protocol.CmdFlushQueue, channel, []byte{flags, 0, 0, 0})
}

func ResetErrorCounter(channel uint8) []byte {
	return EncodeRequest(protocol.CmdResetErrorCounter, channel, nil)
}

func ResetStatistics(channel uint8) []byte {
	return EncodeRequest(protocol.CmdResetStatistics, channel, nil)
}

// ReadClock carries flags in the channel byte.
func ReadClock(flags uint8) []byte {
	return EncodeRequest(protocol.CmdReadClockReq, flags, nil)
}

func GetBusLoad(channel uint8) []byte {
	return EncodeRequest(protocol.CmdGetBusLoadReq, channel, nil)
}

// GetCardInfo carries the data level in the channel byte.
func GetCardInfo(dataLevel uint8) []byte {
	return EncodeRequest(protocol.CmdGetCardInfoReq, dataLevel, nil)
}

func GetSoftwareInfo() []byte {
	return EncodeRequest(protocol.CmdGetSoftwareInfoReq, 0, nil)
}

func GetInterfaceInfo(channel uint8) []byte {
	return EncodeRequest(protocol.CmdGetInterfaceInfoReq, channel, nil)
}

// GetCapabilities leaves the transaction id and channel bytes zero.
func GetCapabilities(subCmd, subData uint16) []byte {
	buf := make([]byte, LenGetCapabilitiesReq)
	buf[0] = LenGetCapabilitiesReq
	buf[1] = protocol.CmdGetCapabilitiesReq
	le.PutUint16(buf[4:], subCmd)
	le.PutUint16(buf[6:], subData)
	return buf
}

func GetTransceiverInfo(channel uint8) []byte {
	return EncodeRequest(protocol.CmdGetTransceiverInfoReq, channel, nil)
}

// TxMessage encodes a classic CAN transmit request. The identifier is split
// over five (extended) or two (standard) bytes of six bit groups.
func TxMessage(channel, transID uint8, m *protocol.Message) []byte {
	buf := make([]byte, LenTxMessage)
	buf[0] = LenTxMessage
	buf[1] = protocol.CmdTxStdMessage
	buf[2] = channel
	buf[3] = transID
	if m.Extended {
		buf[1] = protocol.CmdTxExtMessage
		buf[4] = uint8(m.ID>>24) & 0x1F
		buf[5] = uint8(m.ID>>18) & 0x3F
		buf[6] = uint8(m.ID>>14) & 0x0F
		buf[7] = uint8(m.ID >> 6)
		buf[8] = uint8(m.ID) & 0x3F
	} else {
		buf[4] = uint8(m.ID>>6) & 0x1F
		buf[5] = uint8(m.ID) & 0x3F
	}
	buf[9] = min(m.DLC, 8)
	copy(buf[10:18], m.Data[:8])
	flags := uint8(protocol.MsgFlagTx)
	if m.Remote {
		flags |= protocol.MsgFlagRemoteFrame
	}
	buf[19] = flags
	return buf
}

// ParseTxMessage decodes a transmit request. It is the inverse of TxMessage
// and is used by simulated devices.
func ParseTxMessage(req []byte) (channel, transID uint8, m protocol.Message, err error) {
	if err = protocol.CheckLen(req, LenTxMessage); err != nil {
		return
	}
	channel, transID = req[2], req[3]
	switch req[1] {
	case protocol.CmdTxExtMessage:
		m.Extended = true
		m.ID = uint32(req[4]&0x1F)<<24 | uint32(req[5]&0x3F)<<18 |
			uint32(req[6]&0x0F)<<14 | uint32(req[7])<<6 | uint32(req[8]&0x3F)
	case protocol.CmdTxStdMessage:
		m.ID = uint32(req[4]&0x1F)<<6 | uint32(req[5]&0x3F)
	default:
		err = fmt.Errorf("%w: 0x%02X is not a transmit request", protocol.ErrUnexpected, req[1])
		return
	}
	m.DLC = min(req[9], 8)
	copy(m.Data[:8], req[10:18])
	m.Remote = req[19]&protocol.MsgFlagRemoteFrame != 0
	return
}

// ParseSetBusParams decodes a SET_BUSPARAMS request.
func ParseSetBusParams(req []byte) (protocol.BusParams, error) {
	if err := protocol.CheckLen(req, LenSetBusParamsReq); err != nil {
		return protocol.BusParams{}, err
	}
	return busParamsAt(req), nil
}

func busParamsAt(buf []byte) protocol.BusParams {
	return protocol.BusParams{
		BitRate: le.Uint32(buf[4:]),
		TSeg1:   buf[8],
		TSeg2:   buf[9],
		SJW:     buf[10],
		NoSamp:  buf[11],
	}
}

// ParseCapabilitiesRequest returns the sub-command of a GET_CAPABILITIES request.
func ParseCapabilitiesRequest(req []byte) (subCmd, subData uint16, err error) {
	if err = protocol.CheckLen(req, LenGetCapabilitiesReq); err != nil {
		return
	}
	return le.Uint16(req[4:]), le.Uint16(req[6:]), nil
}
