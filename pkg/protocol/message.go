package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

// Message is one CAN or CAN FD frame as seen by the application.
type Message struct {
	ID         uint32
	DLC        uint8
	Data       [64]byte
	Extended   bool
	Remote     bool
	FDF        bool // FD data frame
	BRS        bool // bit-rate switch
	ESI        bool // error state indicator
	ErrorFrame bool
	Timestamp  time.Duration
}

// NewMessage creates a classic or FD message from a payload. The DLC is the
// smallest code that holds the payload.
func NewMessage(id uint32, data []byte) *Message {
	m := &Message{ID: id}
	n := copy(m.Data[:], data)
	m.DLC = LenToDLC(uint8(n))
	if n > 8 {
		m.FDF = true
	}
	return m
}

// Len returns the payload length implied by the DLC.
func (m *Message) Len() int {
	if !m.FDF {
		return int(min(m.DLC, 8))
	}
	return int(DLCToLen(m.DLC))
}

// Payload returns the payload bytes.
func (m *Message) Payload() []byte {
	return m.Data[:m.Len()]
}

// Validate checks the identifier range, the DLC and the flag combinations.
func (m *Message) Validate() error {
	if m.Extended && m.ID > MaxExtID {
		return fmt.Errorf("%w: 0x%X exceeds 29 bits", ErrInvalidID, m.ID)
	}
	if !m.Extended && m.ID > MaxStdID {
		return fmt.Errorf("%w: 0x%X exceeds 11 bits", ErrInvalidID, m.ID)
	}
	if m.DLC > MaxDLC {
		return fmt.Errorf("%w: %d", ErrInvalidDLC, m.DLC)
	}
	if !m.FDF && m.DLC > 8 {
		return fmt.Errorf("%w: %d without FDF", ErrInvalidDLC, m.DLC)
	}
	if m.BRS && !m.FDF {
		return fmt.Errorf("%w: BRS requires FDF", ErrInvalidFlags)
	}
	if m.ESI && !m.FDF {
		return fmt.Errorf("%w: ESI requires FDF", ErrInvalidFlags)
	}
	if m.FDF && m.Remote {
		return fmt.Errorf("%w: FD frames cannot be remote", ErrInvalidFlags)
	}
	return nil
}

var (
	yellow = color.New(color.FgHiBlue).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

func (m *Message) idString() string {
	if m.Extended {
		return fmt.Sprintf("0x%08X", m.ID)
	}
	return fmt.Sprintf("0x%03X", m.ID)
}

func (m *Message) kind() string {
	var out strings.Builder
	switch {
	case m.ErrorFrame:
		out.WriteString("ERR")
	case m.FDF:
		out.WriteString("FD ")
	default:
		out.WriteString("STD")
	}
	if m.Remote {
		out.WriteString(" R")
	}
	if m.BRS {
		out.WriteString(" B")
	}
	if m.ESI {
		out.WriteString(" E")
	}
	return out.String()
}

func (m *Message) hexView() string {
	var hexView strings.Builder
	payload := m.Payload()
	for i, b := range payload {
		hexView.WriteString(fmt.Sprintf("%02X", b))
		if i != len(payload)-1 {
			hexView.WriteString(" ")
		}
	}
	return hexView.String()
}

func (m *Message) String() string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("%12.6f || ", m.Timestamp.Seconds()))
	out.WriteString(fmt.Sprintf("%-8s", m.kind()) + " || ")
	out.WriteString(fmt.Sprintf("%-10s", m.idString()) + " || ")
	out.WriteString(fmt.Sprintf("%2d", m.Len()) + " || ")
	out.WriteString(fmt.Sprintf("%-23s", m.hexView()))
	out.WriteString(" || ")
	out.WriteString(onlyPrintable(m.Payload()))
	return out.String()
}

func (m *Message) ColorString() string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("%12.6f || ", m.Timestamp.Seconds()))
	out.WriteString(fmt.Sprintf("%-8s", m.kind()) + " || ")
	out.WriteString(green("%-10s", m.idString()) + " || ")
	out.WriteString(fmt.Sprintf("%2d", m.Len()) + " || ")
	out.WriteString(red("%-23s", m.hexView()))
	out.WriteString(" || ")
	out.WriteString(yellow("%s", onlyPrintable(m.Payload())))
	return out.String()
}

func onlyPrintable(data []byte) string {
	var out strings.Builder
	for _, b := range data {
		if b < 32 || b > 126 {
			out.WriteString("·")
		} else {
			out.WriteByte(b)
		}
	}
	return out.String()
}

// TimestampFromTicks converts hardware timer ticks at freqMHz to time since
// device start. A frequency of zero is treated as 1 MHz.
func TimestampFromTicks(ticks uint64, freqMHz uint32) time.Duration {
	f := uint64(freqMHz)
	if f == 0 {
		f = 1
	}
	ns := (ticks/f)*1000 + (ticks%f)*1000/f
	return time.Duration(ns)
}

// Ticks48 assembles a 48-bit timer value from three little-endian words at off.
func Ticks48(buf []byte, off int) uint64 {
	return uint64(buf[off]) | uint64(buf[off+1])<<8 |
		uint64(buf[off+2])<<16 | uint64(buf[off+3])<<24 |
		uint64(buf[off+4])<<32 | uint64(buf[off+5])<<40
}

// PutTicks48 stores a 48-bit timer value at off.
func PutTicks48(buf []byte, off int, ticks uint64) {
	for i := 0; i < 6; i++ {
		buf[off+i] = byte(ticks >> (8 * i))
	}
}

// BusLoad returns the bus load in hundredths of a percent (0..10000).
// interval is the sampling interval in microseconds, samples the number of
// samples where the bus was active and elapsed the time since the previous
// measurement in milliseconds.
func BusLoad(interval, samples, elapsed uint16) uint16 {
	if elapsed == 0 {
		return 0
	}
	load := uint64(samples) * uint64(interval) * 10 / uint64(elapsed)
	return uint16(min(load, 10000))
}
