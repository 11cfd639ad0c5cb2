package protocol

import "strings"

// Message flags as carried in LOG_MESSAGE, RX_MESSAGE_FD and TX requests.
const (
	MsgFlagErrorFrame  = 0x01
	MsgFlagOverrun     = 0x02
	MsgFlagNErr        = 0x04
	MsgFlagWakeup      = 0x08
	MsgFlagRemoteFrame = 0x10
	MsgFlagExt         = 0x20
	MsgFlagTx          = 0x40
	MsgFlagTxRQ        = 0x80
	MsgFlagSSMNack     = 0x1000
	MsgFlagABL         = 0x2000
	MsgFlagFDF         = 0x10000
	MsgFlagBRS         = 0x20000
	MsgFlagESI         = 0x40000
)

// BusStatus is the controller state reported in chip state events.
type BusStatus uint8

const (
	BusStatusBusOff         BusStatus = 0x01
	BusStatusErrorPassive   BusStatus = 0x02
	BusStatusErrorWarning   BusStatus = 0x04
	BusStatusErrorActive    BusStatus = 0x08
	BusStatusBusOffRecovery BusStatus = 0x10
	BusStatusIgnoring       BusStatus = 0x20
)

func (s BusStatus) String() string {
	if s == 0 {
		return "UNKNOWN"
	}
	var parts []string
	for _, b := range []struct {
		bit  BusStatus
		name string
	}{
		{BusStatusBusOff, "BUSOFF"},
		{BusStatusErrorPassive, "ERROR_PASSIVE"},
		{BusStatusErrorWarning, "ERROR_WARNING"},
		{BusStatusErrorActive, "ERROR_ACTIVE"},
		{BusStatusBusOffRecovery, "BUSOFF_RECOVERY"},
		{BusStatusIgnoring, "IGNORING_ERRORS"},
	} {
		if s&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}

// DriverMode selects how the controller participates on the bus.
type DriverMode uint8

const (
	DriverModeNormal        DriverMode = 1
	DriverModeSilent        DriverMode = 2
	DriverModeSelfReception DriverMode = 3
	// DriverModeOff is documented but not honoured by the hardware.
	DriverModeOff           DriverMode = 4
)

func (m DriverMode) String() string {
	switch m {
	case DriverModeNormal:
		return "NORMAL"
	case DriverModeSilent:
		return "SILENT"
	case DriverModeSelfReception:
		return "SELFRECEPTION"
	case DriverModeOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// OpMode is the negotiated set of CAN features.
type OpMode uint8

const (
	ModeMON  OpMode = 0x01 // monitor (listen only)
	ModeERR  OpMode = 0x02 // error frame reporting
	ModeNRTR OpMode = 0x04 // no remote frames
	ModeNXTD OpMode = 0x08 // no extended identifiers
	ModeSHRD OpMode = 0x10 // shared access
	ModeNISO OpMode = 0x20 // non-ISO CAN FD
	ModeBRSE OpMode = 0x40 // bit-rate switching
	ModeFDOE OpMode = 0x80 // CAN FD operation

	ModeDefault OpMode = 0x00
)

var opModeNames = []struct {
	bit  OpMode
	name string
}{
	{ModeFDOE, "fd"},
	{ModeBRSE, "brs"},
	{ModeNISO, "niso"},
	{ModeSHRD, "shrd"},
	{ModeNXTD, "nxtd"},
	{ModeNRTR, "nrtr"},
	{ModeERR, "err"},
	{ModeMON, "mon"},
}

// Has reports whether every bit of b is set in m.
func (m OpMode) Has(b OpMode) bool {
	return m&b == b
}

func (m OpMode) String() string {
	if m == 0 {
		return "default"
	}
	var parts []string
	for _, n := range opModeNames {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseOpMode builds an OpMode from names such as "fd", "brs" or "err".
func ParseOpMode(names ...string) (OpMode, error) {
	var m OpMode
outer:
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "default" {
			continue
		}
		for _, n := range opModeNames {
			if n.name == name {
				m |= n.bit
				continue outer
			}
		}
		return 0, &ParseError{What: "op-mode", Value: name}
	}
	return m, nil
}

// Software option bits reported in SOFTWARE_INFO / SOFTWARE_DETAILS.
const (
	SwOptionCPUFreqMask  = 0x60
	SwOptionCPUFreq16MHz = 0x00
	SwOptionCPUFreq32MHz = 0x20
	SwOptionCPUFreq24MHz = 0x40
	SwOptionCapReq       = 0x1000

	HydraSwOption80MHzClk    = 0x20
	HydraSwOption24MHzClk    = 0x40
	HydraSwOptionDelayMsgs   = 0x100
	HydraSwOptionUseHydraExt = 0x200
	HydraSwOptionCanFDCap    = 0x400
	HydraSwOptionNonISOCap   = 0x800
	HydraSwOptionCanClkMask  = 0x6000
	HydraSwOption80MHzCanClk = 0x2000
	HydraSwOption24MHzCanClk = 0x4000
)

// Capability sub-commands for GET_CAPABILITIES_REQ.
const (
	CapSubSilentMode     = 2
	CapSubErrFrame       = 3
	CapSubBusStats       = 4
	CapSubErrCountRead   = 5
	CapSubSingleShot     = 6
	CapSubSyncTxFlush    = 7
	CapSubHasLogger      = 8
	CapSubHasRemote      = 9
	CapSubHasScript      = 10
	CapSubLinHybrid      = 11
	CapSubKdiInfo        = 12
	CapSubHasKdi         = 13
	CapSubHasIOAPI       = 14
	CapSubHasBusParamsTq = 15
)

// TransceiverType identifies the physical layer of a channel.
type TransceiverType uint8

const (
	TransceiverUnknown  TransceiverType = 0
	Transceiver251      TransceiverType = 1
	Transceiver252      TransceiverType = 2
	TransceiverSWC      TransceiverType = 6
	TransceiverKLine    TransceiverType = 10
	Transceiver1054Opto TransceiverType = 11
	TransceiverSWCOpto  TransceiverType = 12
	Transceiver1050     TransceiverType = 14
	Transceiver1050Opto TransceiverType = 15
	TransceiverLIN      TransceiverType = 19
)

func (t TransceiverType) String() string {
	switch t {
	case Transceiver251:
		return "82C251"
	case Transceiver252:
		return "82C252/TJA1053/TJA1054"
	case TransceiverSWC:
		return "SWC"
	case TransceiverKLine:
		return "K-line"
	case Transceiver1054Opto:
		return "TJA1054 (opto)"
	case TransceiverSWCOpto:
		return "SWC (opto)"
	case Transceiver1050:
		return "TJA1050"
	case Transceiver1050Opto:
		return "TJA1050 (opto)"
	case TransceiverLIN:
		return "LIN"
	default:
		return "unknown"
	}
}

// Firmware error codes carried in ERROR_EVENT.
const (
	FirmwareOK             = 0
	FirmwareErrCAN         = 1
	FirmwareErrNVRAM       = 2
	FirmwareErrNoPriv      = 3
	FirmwareErrIllegalAddr = 4
	FirmwareErrUnknownCmd  = 5
	FirmwareErrFatal       = 6
	FirmwareErrChecksum    = 7
	FirmwareErrQueueLevel  = 8
	FirmwareErrParameter   = 9
)
