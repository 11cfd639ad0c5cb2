//go:build !can20only

package protocol

import "testing"

func TestDLCRoundTrip(t *testing.T) {
	for d := uint8(0); d <= 15; d++ {
		if got := LenToDLC(DLCToLen(d)); got != d {
			t.Errorf("LenToDLC(DLCToLen(%d)) = %d", d, got)
		}
	}
}

func TestLenToDLC(t *testing.T) {
	tests := []struct {
		n    uint8
		want uint8
	}{
		{0, 0},
		{8, 8},
		{9, 9},
		{12, 9},
		{13, 10},
		{20, 11},
		{21, 12},
		{33, 14},
		{48, 14},
		{49, 15},
		{64, 15},
	}
	for _, tt := range tests {
		if got := LenToDLC(tt.n); got != tt.want {
			t.Errorf("LenToDLC(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestDLCToLenMasksHighNibble(t *testing.T) {
	if got := DLCToLen(0x1F); got != 64 {
		t.Errorf("DLCToLen(0x1F) = %d, want 64", got)
	}
}
