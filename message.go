package kvcan

import (
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
	"go.einride.tech/can"
)

type Message = protocol.Message

// NewMessage builds a data frame; payloads longer than eight bytes make a
// CAN FD frame.
func NewMessage(id uint32, data []byte) *Message {
	return protocol.NewMessage(id, data)
}

// FromCANFrame converts a classic frame.
func FromCANFrame(f can.Frame) *Message {
	m := &Message{
		ID:       f.ID,
		DLC:      f.Length,
		Extended: f.IsExtended,
		Remote:   f.IsRemote,
	}
	copy(m.Data[:8], f.Data[:])
	return m
}

// ToCANFrame converts a classic message. CAN FD and error frames have no
// representation.
func ToCANFrame(m *Message) (can.Frame, error) {
	if m.FDF || m.ErrorFrame || m.DLC > 8 {
		return can.Frame{}, fmt.Errorf("%w: %s is not a classic frame", ErrIllegalParameter, m)
	}
	f := can.Frame{
		ID:         m.ID,
		Length:     m.DLC,
		IsExtended: m.Extended,
		IsRemote:   m.Remote,
	}
	copy(f.Data[:], m.Data[:8])
	if err := f.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("%w: %w", ErrIllegalParameter, err)
	}
	return f, nil
}
