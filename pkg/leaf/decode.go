package leaf

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
	protocol.CmdFiloFlushQueueResp:     true,
	protocol.CmdGetCapabilitiesResp:    true,
	protocol.CmdGetTransceiverInfoResp: true,
}

// Decode decodes the frame at the start of buf and returns it together with
// the number of bytes it occupies.
//
// A length byte below the header size yields ErrFraming; the remainder of the
// transfer cannot be resynchronised and should be dropped. A length beyond
// the end of buf yields ErrTruncated.
func Decode(buf []byte) (protocol.Frame, int, error) {
	if len(buf) == 0 {
		return nil, 0, protocol.ErrTruncated
	}
	n := int(buf[0])
	if n < MinFrameLen {
		return nil, 0, fmt.Errorf("%w: length byte %d", protocol.ErrFraming, n)
	}
	if n > len(buf) {
		return nil, 0, fmt.Errorf("%w: need %d, have %d", protocol.ErrTruncated, n, len(buf))
	}
	b := buf[:n]
	cmd := b[1]

	switch cmd {
	case protocol.CmdLogMessage:
		if n == LenLogMessage {
			return decodeLogMessage(b), n, nil
		}
	case protocol.CmdTxAcknowledge:
		// Older firmware sends the acknowledgement without a timestamp.
		a := &protocol.TxAck{Cmd: cmd, TransID: b[3], Raw: clone(b)}
		if n >= 10 {
			a.Ticks = protocol.Ticks48(b, 4)
		}
		return a, n, nil
	case protocol.CmdChipStateEvent:
		if n == LenChipStateEvent {
			return &protocol.ChipStateEvent{ChipState: protocol.ChipState{
				Time:      protocol.Ticks48(b, 4),
				TxErrors:  b[10],
				RxErrors:  b[11],
				BusStatus: protocol.BusStatus(b[12]),
			}}, n, nil
		}
	case protocol.CmdErrorEvent:
		if n == LenErrorEvent {
			return &protocol.ErrorEvent{ErrorReport: protocol.ErrorReport{
				Time:     protocol.Ticks48(b, 4),
				Code:     b[3],
				AddInfo1: le.Uint16(b[12:]),
				AddInfo2: le.Uint16(b[14:]),
			}}, n, nil
		}
	case protocol.CmdCanErrorEvent:
		if n == LenCanErrorEvent {
			return &protocol.CanErrorEvent{CanError: protocol.CanError{
				Time:        protocol.Ticks48(b, 4),
				Flags:       b[3],
				Channel:     b[10],
				TxErrors:    b[12],
				RxErrors:    b[13],
				BusStatus:   protocol.BusStatus(b[14]),
				ErrorFactor: b[15],
			}}, n, nil
		}
	default:
		if responses[cmd] {
			return &protocol.CommandResponse{
				Cmd:     cmd,
				TransID: uint16(b[2]),
				Raw:     clone(b),
			}, n, nil
		}
	}
	return &protocol.Unrecognized{Cmd: cmd, Raw: clone(b)}, n, nil
}

func decodeLogMessage(b []byte) protocol.Frame {
	flags := uint32(b[3])
	if flags&^(protocol.MsgFlagRemoteFrame|protocol.MsgFlagErrorFrame) != 0 {
		return &protocol.FlagEvent{Cmd: protocol.CmdLogMessage, Flags: flags}
	}
	raw := le.Uint32(b[12:])
	f := &protocol.CanDataFrame{
		Flags: flags,
		Ticks: protocol.Ticks48(b, 4),
	}
	f.Msg.ID = raw & protocol.MaxExtID
	f.Msg.Extended = raw&0x80000000 != 0
	f.Msg.DLC = min(b[10], 8)
	f.Msg.Remote = flags&protocol.MsgFlagRemoteFrame != 0
	f.Msg.ErrorFrame = flags&protocol.MsgFlagErrorFrame != 0
	copy(f.Msg.Data[:8], b[16:24])
	return f
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
