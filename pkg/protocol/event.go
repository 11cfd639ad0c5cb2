package protocol

// ChipState is the payload of CHIP_STATE_EVENT.
type ChipState struct {
	Time      uint64 // 48-bit ticks
	TxErrors  uint8
	RxErrors  uint8
	BusStatus BusStatus
}

// ErrorReport is the payload of ERROR_EVENT.
type ErrorReport struct {
	Time     uint64
	Code     uint8
	AddInfo1 uint16
	AddInfo2 uint16
}

// CanError is the payload of CAN_ERROR_EVENT.
type CanError struct {
	Time        uint64
	Flags       uint8
	Channel     uint8
	TxErrors    uint8
	RxErrors    uint8
	BusStatus   BusStatus
	ErrorFactor uint8
}
