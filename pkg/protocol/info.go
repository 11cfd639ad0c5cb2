package protocol

import "fmt"

// CardInfo is the hardware description returned by GET_CARD_INFO.
type CardInfo struct {
	ChannelCount    uint8
	SerialNumber    uint32
	ClockResolution uint32
	MfgDate         uint32
	EAN             [8]uint8 // BCD, least significant byte first
	HwRevision      uint8
	UsbHsMode       uint8
	HwType          uint8
	CanTimeStampRef uint8
}

// SoftwareInfo is the firmware description returned by GET_SOFTWARE_INFO
// (and GET_SOFTWARE_DETAILS on Hydra devices).
type SoftwareInfo struct {
	SwOptions        uint32
	FirmwareVersion  uint32
	MaxOutstandingTx uint16
	SwName           uint32
	EAN              [8]uint8
	MaxBitrate       uint32
}

// Version returns the firmware version as major.minor.build.
func (s SoftwareInfo) Version() string {
	return fmt.Sprintf("%d.%d.%d", (s.FirmwareVersion>>24)&0xFF, (s.FirmwareVersion>>16)&0xFF, s.FirmwareVersion&0xFFFF)
}

// InterfaceInfo is returned by GET_INTERFACE_INFO.
type InterfaceInfo struct {
	ChannelCapabilities uint32
	CanChipType         uint8
	CanChipSubType      uint8
}

// TransceiverInfo is returned by GET_TRANSCEIVER_INFO.
type TransceiverInfo struct {
	Capabilities uint32
	Status       uint8
	Type         TransceiverType
}

// Capabilities are the optional features probed with GET_CAPABILITIES.
type Capabilities struct {
	SilentMode    bool
	ErrorFrame    bool
	BusStats      bool
	ErrorCount    bool
	SingleShot    bool
	SyncTxFlush   bool
	HasLogger     bool
	HasRemote     bool
	HasScript     bool
	LinHybrid     bool
	KdiInfo       bool
	HasKdi        bool
	HasIOAPI      bool
	HasTimeQuanta bool
}

// Set records the result of one capability sub-command.
func (c *Capabilities) Set(subCmd uint16, v bool) {
	switch subCmd {
	case CapSubSilentMode:
		c.SilentMode = v
	case CapSubErrFrame:
		c.ErrorFrame = v
	case CapSubBusStats:
		c.BusStats = v
	case CapSubErrCountRead:
		c.ErrorCount = v
	case CapSubSingleShot:
		c.SingleShot = v
	case CapSubSyncTxFlush:
		c.SyncTxFlush = v
	case CapSubHasLogger:
		c.HasLogger = v
	case CapSubHasRemote:
		c.HasRemote = v
	case CapSubHasScript:
		c.HasScript = v
	case CapSubLinHybrid:
		c.LinHybrid = v
	case CapSubKdiInfo:
		c.KdiInfo = v
	case CapSubHasKdi:
		c.HasKdi = v
	case CapSubHasIOAPI:
		c.HasIOAPI = v
	case CapSubHasBusParamsTq:
		c.HasTimeQuanta = v
	}
}

// CapabilityResponse is one decoded GET_CAPABILITIES_RESP.
type CapabilityResponse struct {
	SubCmd uint16
	Status uint16 // 0 ok, 1 not implemented, 2 unavailable
	Mask   uint32
	Value  uint32
}
