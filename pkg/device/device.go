// Package device holds the compiled-in table of supported Kvaser USB adapters.
package device

import "fmt"

// VendorID is the USB vendor id of all Kvaser adapters.
const VendorID = 0x0BFD

// Family selects the wire protocol spoken by an adapter.
type Family int

const (
	Unknown Family = iota
	Leaf
	Mhydra
)

func (f Family) String() string {
	switch f {
	case Leaf:
		return "Leaf"
	case Mhydra:
		return "Mhydra"
	default:
		return "Unknown"
	}
}

// Endpoints returns the number of bulk endpoints the family exposes.
func (f Family) Endpoints() int {
	switch f {
	case Leaf:
		return 2
	case Mhydra:
		return 4
	default:
		return 0
	}
}

// Entry describes one adapter model.
type Entry struct {
	ProductID   uint16
	Name        string
	Family      Family
	Channels    int
	CANClockMHz uint32
	TimerMHz    uint32
	CanFD       bool
	NonISO      bool
	Silent      bool
	ErrorFrame  bool
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (pid 0x%04X, %s)", e.Name, e.ProductID, e.Family)
}

var table = [...]Entry{
	{ProductID: 0x0107, Name: "Kvaser Leaf Pro HS v2", Family: Mhydra, Channels: 1, CANClockMHz: 80, TimerMHz: 80, CanFD: true, NonISO: true, Silent: true, ErrorFrame: true},
	{ProductID: 0x010E, Name: "Kvaser Hybrid Pro CAN/LIN", Family: Mhydra, Channels: 1, CANClockMHz: 80, TimerMHz: 80, CanFD: true, NonISO: true, Silent: true, ErrorFrame: true},
	{ProductID: 0x0112, Name: "Kvaser U100P", Family: Mhydra, Channels: 1, CANClockMHz: 80, TimerMHz: 24, CanFD: true, NonISO: true, Silent: true, ErrorFrame: true},
	{ProductID: 0x0120, Name: "Kvaser Leaf Light v2", Family: Leaf, Channels: 1, CANClockMHz: 24, TimerMHz: 24},
}

// Lookup returns the table entry for a product id. Unknown ids yield an entry
// with family Unknown and all capabilities cleared.
func Lookup(pid uint16) Entry {
	for _, e := range table {
		if e.ProductID == pid {
			return e
		}
	}
	return Entry{ProductID: pid, Name: "unknown", Family: Unknown}
}

// Supported reports whether pid is in the table.
func Supported(pid uint16) bool {
	return Lookup(pid).Family != Unknown
}

// Entries returns a copy of the table.
func Entries() []Entry {
	out := make([]Entry, len(table))
	copy(out, table[:])
	return out
}
