//go:build !can20only

package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{"classic", Message{ID: 0x100, DLC: 8}, nil},
		{"std id too large", Message{ID: 0x800}, ErrInvalidID},
		{"ext id", Message{ID: 0x1FFFFFFF, Extended: true}, nil},
		{"ext id too large", Message{ID: 0x20000000, Extended: true}, ErrInvalidID},
		{"dlc 9 classic", Message{ID: 1, DLC: 9}, ErrInvalidDLC},
		{"dlc 15 fd", Message{ID: 1, DLC: 15, FDF: true}, nil},
		{"dlc 16", Message{ID: 1, DLC: 16, FDF: true}, ErrInvalidDLC},
		{"fdf=0 brs=0", Message{ID: 1}, nil},
		{"fdf=0 brs=1", Message{ID: 1, BRS: true}, ErrInvalidFlags},
		{"fdf=1 brs=0", Message{ID: 1, FDF: true}, nil},
		{"fdf=1 brs=1", Message{ID: 1, FDF: true, BRS: true}, nil},
		{"esi without fdf", Message{ID: 1, ESI: true}, ErrInvalidFlags},
		{"fd remote", Message{ID: 1, FDF: true, Remote: true}, ErrInvalidFlags},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(0x7E0, []byte{1, 2, 3})
	if m.DLC != 3 || m.FDF {
		t.Errorf("classic payload: dlc=%d fdf=%v", m.DLC, m.FDF)
	}
	if got := m.Payload(); len(got) != 3 || got[2] != 3 {
		t.Errorf("Payload() = %v", got)
	}

	fd := NewMessage(0x7E0, make([]byte, 20))
	if fd.DLC != 11 || !fd.FDF {
		t.Errorf("fd payload: dlc=%d fdf=%v", fd.DLC, fd.FDF)
	}
	if fd.Len() != 20 {
		t.Errorf("Len() = %d, want 20", fd.Len())
	}
}

func TestMessageLenClassicCapsAtEight(t *testing.T) {
	m := &Message{DLC: 12}
	if m.Len() != 8 {
		t.Errorf("Len() = %d, want 8", m.Len())
	}
}

func TestMessageString(t *testing.T) {
	m := NewMessage(0x123, []byte("AB\x01"))
	s := m.String()
	for _, want := range []string{"0x123", "41 42 01", "AB·"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
