package device

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		pid    uint16
		family Family
		timer  uint32
		fd     bool
	}{
		{"leaf light", 0x0120, Leaf, 24, false},
		{"leaf pro", 0x0107, Mhydra, 80, true},
		{"u100p", 0x0112, Mhydra, 24, true},
		{"unknown", 0xBEEF, Unknown, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Lookup(tt.pid)
			if e.Family != tt.family || e.TimerMHz != tt.timer || e.CanFD != tt.fd {
				t.Errorf("Lookup(0x%04X) = %+v", tt.pid, e)
			}
		})
	}
}

func TestUnknownHasNoCapabilities(t *testing.T) {
	e := Lookup(0)
	if e.CanFD || e.NonISO || e.Silent || e.ErrorFrame || e.Channels != 0 {
		t.Errorf("unknown entry carries capabilities: %+v", e)
	}
	if Supported(0) {
		t.Error("Supported(0) = true")
	}
}

func TestEntriesIsACopy(t *testing.T) {
	e := Entries()
	e[0].Name = "changed"
	if Lookup(e[0].ProductID).Name == "changed" {
		t.Error("Entries() exposes the table")
	}
}

func TestFamilyEndpoints(t *testing.T) {
	if Leaf.Endpoints() != 2 || Mhydra.Endpoints() != 4 || Unknown.Endpoints() != 0 {
		t.Error("unexpected endpoint counts")
	}
}
