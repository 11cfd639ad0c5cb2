//go:build !can20only

package protocol

// ClassicOnly is true when the package is built with the can20only tag.
const ClassicOnly = false

// MaxDLC is the largest data length code accepted by DLCToLen.
const MaxDLC = 15

// MaxDataLen is the largest payload a frame can carry.
const MaxDataLen = 64

var dlcTable = [16]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 12, 16, 20, 24, 32, 48, 64}

// DLCToLen converts a data length code to a payload length in bytes.
func DLCToLen(dlc uint8) uint8 {
	return dlcTable[dlc&0x0F]
}

// LenToDLC converts a payload length to the smallest data length code that holds it.
func LenToDLC(n uint8) uint8 {
	switch {
	case n > 48:
		return 15
	case n > 32:
		return 14
	case n > 24:
		return 13
	case n > 20:
		return 12
	case n > 16:
		return 11
	case n > 12:
		return 10
	case n > 8:
		return 9
	default:
		return n
	}
}
