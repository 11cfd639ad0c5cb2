package protocol

import "fmt"

// BusParams holds classic bit timing. NoSamp is the number of sample points (1 or 3).
type BusParams struct {
	BitRate uint32
	TSeg1   uint8
	TSeg2   uint8
	SJW     uint8
	NoSamp  uint8
}

func (p BusParams) String() string {
	return fmt.Sprintf("bitrate=%d tseg1=%d tseg2=%d sjw=%d nosamp=%d", p.BitRate, p.TSeg1, p.TSeg2, p.SJW, p.NoSamp)
}

// SamplePoint returns the sample point in per mille.
func (p BusParams) SamplePoint() int {
	bt := 1 + int(p.TSeg1) + int(p.TSeg2)
	if bt == 0 {
		return 0
	}
	return (1 + int(p.TSeg1)) * 1000 / bt
}

// BusParamsFd holds nominal and data phase bit timing for CAN FD.
type BusParamsFd struct {
	Nominal BusParams
	Data    BusParams
	CanFD   bool
}

func (p BusParamsFd) String() string {
	return fmt.Sprintf("nominal(%s) data(%s) fd=%v", p.Nominal, p.Data, p.CanFD)
}

// TqSegment is one phase of time-quanta based bit timing.
type TqSegment struct {
	Prop   uint16
	Phase1 uint16
	Phase2 uint16
	SJW    uint16
	BRP    uint16
}

// Quanta returns the number of time quanta per bit.
func (s TqSegment) Quanta() int {
	return 1 + int(s.Prop) + int(s.Phase1) + int(s.Phase2)
}

// BitRate returns the bit rate produced by the segment at clockMHz.
func (s TqSegment) BitRate(clockMHz uint32) uint32 {
	d := uint64(s.BRP) * uint64(s.Quanta())
	if d == 0 {
		return 0
	}
	return uint32(uint64(clockMHz) * 1000000 / d)
}

// BusParamsTq holds arbitration and data phase timing in time quanta.
type BusParamsTq struct {
	Arbitration TqSegment
	Data        TqSegment
	CanFD       bool
}
