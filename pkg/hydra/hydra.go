// Package hydra encodes and decodes the command frames spoken by Kvaser
// adapters built on the Hydra firmware (Leaf Pro v2, Hybrid, U100).
//
// Ordinary frames are 32 bytes:
//
//	[command][he address][seq lo][seq hi][payload...]
//
// Extended frames carry CommandExtended in the first byte and their total
// length (32 to 96 bytes) at offset 4, followed by the extended command code
// at offset 6. A USB transfer may end in the middle of a frame; Reassembler
// joins the pieces.
package hydra

import (
	"encoding/binary"
	"time"
)

const (
	FrameLen       = 32
	ExtFrameLen    = 96
	MinExtFrameLen = 32

	// DefaultTimeout bounds every synchronous request.
	DefaultTimeout = 5000 * time.Millisecond

	MaxOutstandingTx = 200
	Channels         = 1

	// RouterHE addresses the firmware router.
	RouterHE = 0x00

	// IllegalHE addresses the card itself and marks an unmapped channel.
	IllegalHE = 0x3E

	// ReassemblyCapacity is twice the largest extended frame.
	ReassemblyCapacity = 2 * ExtFrameLen
)

const (
	mapChannelTransID = 0x40
	sysDbgTransID     = 0x61
)

var le = binary.LittleEndian

// SetDst replaces the destination bits of an HE address byte.
func SetDst(addr, dst uint8) uint8 {
	return addr&0xC0 | dst&0x3F
}

// Dst returns the destination HE of an address byte.
func Dst(addr uint8) uint8 {
	return addr & 0x3F
}

// SetSeq replaces the sequence number bits of a transaction id.
func SetSeq(transID, seq uint16) uint16 {
	return transID&0xF000 | seq&0x0FFF
}

// Seq returns the sequence number of a transaction id.
func Seq(transID uint16) uint16 {
	return transID & 0x0FFF
}

// newFrame returns an ordinary frame addressed to dest.
func newFrame(cmd, dest uint8) []byte {
	buf := make([]byte, FrameLen)
	buf[0] = cmd
	buf[1] = SetDst(0, dest)
	return buf
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
