package protocol

import "fmt"

// Frame is one decoded protocol frame. The set of implementations is closed;
// consumers switch on the concrete type.
type Frame interface {
	// Command returns the command code used to correlate the frame. For
	// Hydra extended frames this is the extended command code.
	Command() uint8
	frame()
}

// CommandResponse is the reply to a synchronous request. Raw holds a copy of
// the complete frame for the family specific parsers.
type CommandResponse struct {
	Cmd     uint8
	TransID uint16
	Raw     []byte
}

// CanDataFrame is a received CAN message. Ticks is the raw hardware timer
// value; the router converts it with the channel's timer frequency.
type CanDataFrame struct {
	Msg   Message
	Flags uint32
	Ticks uint64
}

// ChipStateEvent carries a controller state update.
type ChipStateEvent struct {
	ChipState
}

// ErrorEvent carries a firmware error report.
type ErrorEvent struct {
	ErrorReport
}

// CanErrorEvent carries a bus error notification.
type CanErrorEvent struct {
	CanError
}

// TxAck acknowledges a transmit request.
type TxAck struct {
	Cmd     uint8
	TransID uint8
	Ticks   uint64
	Raw     []byte
}

// FlagEvent is a logged message whose flags do not describe a CAN data
// frame (overrun, wakeup, tx echo and similar).
type FlagEvent struct {
	Cmd   uint8
	Flags uint32
}

// Unrecognized is a frame with a command code this package does not handle.
type Unrecognized struct {
	Cmd uint8
	Raw []byte
}

func (f *CommandResponse) Command() uint8 { return f.Cmd }
func (f *CanDataFrame) Command() uint8    { return CmdLogMessage }
func (f *ChipStateEvent) Command() uint8  { return CmdChipStateEvent }
func (f *ErrorEvent) Command() uint8      { return CmdErrorEvent }
func (f *CanErrorEvent) Command() uint8   { return CmdCanErrorEvent }
func (f *TxAck) Command() uint8           { return f.Cmd }
func (f *FlagEvent) Command() uint8       { return f.Cmd }
func (f *Unrecognized) Command() uint8    { return f.Cmd }

func (*CommandResponse) frame() {}
func (*CanDataFrame) frame()    {}
func (*ChipStateEvent) frame()  {}
func (*ErrorEvent) frame()      {}
func (*CanErrorEvent) frame()   {}
func (*TxAck) frame()           {}
func (*FlagEvent) frame()       {}
func (*Unrecognized) frame()    {}

// Describe renders a frame for debug logging.
func Describe(f Frame) string {
	switch t := f.(type) {
	case *CommandResponse:
		return fmt.Sprintf("%s trans=%d len=%d", CommandName(t.Cmd), t.TransID, len(t.Raw))
	case *CanDataFrame:
		return "RX " + t.Msg.String()
	case *ChipStateEvent:
		return fmt.Sprintf("CHIP_STATE tx=%d rx=%d %s", t.TxErrors, t.RxErrors, t.BusStatus)
	case *ErrorEvent:
		return fmt.Sprintf("ERROR_EVENT code=%d info1=0x%04X info2=0x%04X", t.Code, t.AddInfo1, t.AddInfo2)
	case *CanErrorEvent:
		return fmt.Sprintf("CAN_ERROR flags=0x%02X tx=%d rx=%d %s", t.Flags, t.TxErrors, t.RxErrors, t.BusStatus)
	case *TxAck:
		return fmt.Sprintf("TX_ACK trans=%d", t.TransID)
	case *FlagEvent:
		return fmt.Sprintf("FLAGS 0x%X", t.Flags)
	case *Unrecognized:
		return fmt.Sprintf("UNRECOGNIZED 0x%02X len=%d", t.Cmd, len(t.Raw))
	default:
		return "<nil>"
	}
}
