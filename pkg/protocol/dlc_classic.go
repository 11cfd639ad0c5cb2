//go:build can20only

package protocol

const ClassicOnly = true

const MaxDLC = 8

const MaxDataLen = 8

// DLCToLen converts a data length code to a payload length; codes above 8 clamp to 8.
func DLCToLen(dlc uint8) uint8 {
	return min(dlc&0x0F, 8)
}

// LenToDLC converts a payload length to a data length code, clamped to 8.
func LenToDLC(n uint8) uint8 {
	return min(n, 8)
}
