package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated means fewer bytes are available than the frame declares.
	ErrTruncated = errors.New("truncated frame")
	// ErrFraming means the declared frame length is impossible.
	ErrFraming = errors.New("protocol framing error")
	// ErrShortBuffer means a response is too short for the fields it must carry.
	ErrShortBuffer = errors.New("response too short")
	// ErrUnexpected means a response parser got a frame with the wrong command code.
	ErrUnexpected = errors.New("unexpected command code")

	ErrInvalidID     = errors.New("invalid CAN identifier")
	ErrInvalidDLC    = errors.New("invalid data length code")
	ErrInvalidFlags  = errors.New("invalid message flags")
	ErrInvalidParams = errors.New("invalid bus parameters")
)

// ParseError reports a name that could not be parsed.
type ParseError struct {
	What  string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.What, e.Value)
}

// CheckLen returns ErrShortBuffer when buf is shorter than n.
func CheckLen(buf []byte, n int) error {
	if len(buf) < n {
		return fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(buf), n)
	}
	return nil
}
