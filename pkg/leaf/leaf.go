// Package leaf encodes and decodes the length-prefixed command frames spoken
// by Kvaser Leaf family adapters.
//
// Every frame starts with a four byte header:
//
//	[length][command][transaction id][channel or flags]
//
// where length is the total frame size including the header. Most requests
// repeat the command code in the transaction id byte.
package leaf

import (
	"encoding/binary"
	"time"
)

const (
	MinFrameLen = 4
	MaxFrameLen = 32

	// DefaultTimeout bounds every synchronous request.
	DefaultTimeout = 800 * time.Millisecond

	// RequestDelay is the settle time after fire-and-forget requests.
	RequestDelay = 100 * time.Millisecond

	MaxOutstandingTx = 64
	Channels         = 1
)

// Frame lengths by command.
const (
	LenRxStdMessage          = 24
	LenRxExtMessage          = 24
	LenTxMessage             = 20
	LenSetBusParamsReq       = 12
	LenGetBusParamsReq       = 4
	LenGetBusParamsResp      = 12
	LenGetChipStateReq       = 4
	LenChipStateEvent        = 16
	LenSetDriverModeReq      = 8
	LenGetDriverModeReq      = 4
	LenGetDriverModeResp     = 8
	LenResetChipReq          = 4
	LenResetCardReq          = 4
	LenStartChipReq          = 4
	LenStartChipResp         = 4
	LenStopChipReq           = 4
	LenStopChipResp          = 4
	LenReadClockReq          = 4
	LenReadClockResp         = 8
	LenGetCardInfoReq        = 4
	LenGetCardInfoResp       = 32
	LenGetCardInfo2          = 32
	LenGetInterfaceInfoReq   = 4
	LenGetInterfaceInfoResp  = 12
	LenGetSoftwareInfoReq    = 4
	LenGetSoftwareInfoResp   = 32
	LenGetBusLoadReq         = 4
	LenGetBusLoadResp        = 16
	LenResetStatistics       = 4
	LenErrorEvent            = 16
	LenFlushQueue            = 8
	LenFiloFlushQueueResp    = 8
	LenResetErrorCounter     = 4
	LenTxAcknowledge         = 12
	LenCanErrorEvent         = 16
	LenLogMessage            = 24
	LenGetCapabilitiesReq    = 8
	LenGetCapabilitiesResp   = 16
	LenGetTransceiverInfoReq = 4
	LenTransceiverInfoResp   = 12
)

// ReadClockNow asks the device for the current timer value.
const ReadClockNow = 0x01

var le = binary.LittleEndian

// EncodeRequest builds a request frame. The transaction id byte repeats the
// command code as the firmware expects for all requests except transmit and
// capability queries.
func EncodeRequest(cmd, channel uint8, payload []byte) []byte {
	buf := make([]byte, MinFrameLen+len(payload))
	buf[0] = uint8(len(buf))
	buf[1] = cmd
	buf[2] = cmd
	buf[3] = channel
	copy(buf[MinFrameLen:], payload)
	return buf
}
