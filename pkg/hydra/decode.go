package hydra

import (
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
)

// responses are the command codes forwarded to the response correlator.
var responses = map[uint8]bool{
	protocol.CmdGetBusParamsResp:       true,
	protocol.CmdGetDriverModeResp:      true,
	protocol.CmdStartChipResp:          true,
	protocol.CmdStopChipResp:           true,
	protocol.CmdReadClockResp:          true,
	protocol.CmdGetCardInfoResp:        true,
	protocol.CmdGetInterfaceInfoResp:   true,
	protocol.CmdGetSoftwareInfoResp:    true,
	protocol.CmdGetBusLoadResp:         true,
	protocol.CmdFlushQueueResp:         true,
	protocol.CmdSetBusParamsFdResp:     true,
	protocol.CmdSetBusParamsResp:       true,
	protocol.CmdGetCapabilitiesResp:    true,
	protocol.CmdGetTransceiverInfoResp: true,
	protocol.CmdGetBusParamsTqResp:     true,
	protocol.CmdSetBusParamsTqResp:     true,
	protocol.CmdMapChannelResp:         true,
	protocol.CmdGetSoftwareDetailsResp: true,
}

// FrameLength returns the length of the frame at the start of buf. It needs
// six bytes to size an extended frame and returns ErrTruncated until they are
// available.
func FrameLength(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, protocol.ErrTruncated
	}
	if buf[0] != protocol.CmdExtended {
		return FrameLen, nil
	}
	if len(buf) < 6 {
		return 0, protocol.ErrTruncated
	}
	n := int(le.Uint16(buf[4:]))
	if n < MinExtFrameLen || n > ExtFrameLen {
		return 0, fmt.Errorf("%w: extended length %d", protocol.ErrFraming, n)
	}
	return n, nil
}

// Decode decodes the frame at the start of buf and returns it together with
// the number of bytes it occupies.
func Decode(buf []byte) (protocol.Frame, int, error) {
	n, err := FrameLength(buf)
	if err != nil {
		return nil, 0, err
	}
	if n > len(buf) {
		return nil, 0, fmt.Errorf("%w: need %d, have %d", protocol.ErrTruncated, n, len(buf))
	}
	b := buf[:n]
	cmd := b[0]

	switch cmd {
	case protocol.CmdExtended:
		return decodeExtended(b), n, nil
	case protocol.CmdChipStateEvent:
		return &protocol.ChipStateEvent{ChipState: protocol.ChipState{
			Time:      protocol.Ticks48(b, 4),
			TxErrors:  b[10],
			RxErrors:  b[11],
			BusStatus: protocol.BusStatus(b[12]),
		}}, n, nil
	case protocol.CmdErrorEvent:
		return &protocol.ErrorEvent{ErrorReport: protocol.ErrorReport{
			Time:     protocol.Ticks48(b, 4),
			Code:     b[11],
			AddInfo1: le.Uint16(b[12:]),
			AddInfo2: le.Uint16(b[14:]),
		}}, n, nil
	case protocol.CmdCanErrorEvent:
		return &protocol.CanErrorEvent{CanError: protocol.CanError{
			Time:        protocol.Ticks48(b, 4),
			Flags:       b[10],
			TxErrors:    b[12],
			RxErrors:    b[13],
			BusStatus:   protocol.BusStatus(b[14]),
			ErrorFactor: b[15],
		}}, n, nil
	}
	if responses[cmd] {
		return &protocol.CommandResponse{
			Cmd:     cmd,
			TransID: le.Uint16(b[2:]),
			Raw:     clone(b),
		}, n, nil
	}
	return &protocol.Unrecognized{Cmd: cmd, Raw: clone(b)}, n, nil
}

// data frame flags; anything else marks a status report
const dataFlags = protocol.MsgFlagRemoteFrame | protocol.MsgFlagErrorFrame | protocol.MsgFlagExt |
	protocol.MsgFlagFDF | protocol.MsgFlagBRS | protocol.MsgFlagESI

func decodeExtended(b []byte) protocol.Frame {
	ext := b[6]
	switch ext {
	case protocol.CmdRxMessageFd:
		flags := le.Uint32(b[8:])
		if flags&^dataFlags != 0 {
			return &protocol.FlagEvent{Cmd: ext, Flags: flags}
		}
		f := &protocol.CanDataFrame{Flags: flags, Ticks: le.Uint64(b[24:])}
		m := &f.Msg
		m.ID = le.Uint32(b[12:]) & protocol.MaxExtID
		m.DLC = b[21] & 0x0F
		m.Extended = flags&protocol.MsgFlagExt != 0
		m.Remote = flags&protocol.MsgFlagRemoteFrame != 0
		m.FDF = flags&protocol.MsgFlagFDF != 0
		m.BRS = flags&protocol.MsgFlagBRS != 0
		m.ESI = flags&protocol.MsgFlagESI != 0
		m.ErrorFrame = flags&protocol.MsgFlagErrorFrame != 0
		length := int(protocol.DLCToLen(m.DLC))
		if m.ErrorFrame {
			// error frames carry four bytes of error information
			m.DLC, length = 4, 4
		}
		copy(m.Data[:length], b[FrameLen:])
		return f
	case protocol.CmdTxAckFd:
		return &protocol.TxAck{Cmd: ext, TransID: b[2], Raw: clone(b)}
	}
	return &protocol.Unrecognized{Cmd: ext, Raw: clone(b)}
}
