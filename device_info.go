package kvcan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/albenik/bcd"
	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/protocol"
	"golang.org/x/mod/semver"
)

// DeviceInfo describes an initialized adapter.
type DeviceInfo struct {
	Name             string
	ProductID        uint16
	Family           device.Family
	Serial           uint32
	EAN              string
	Firmware         string
	HwRevision       uint8
	Manufactured     time.Time
	CANClockMHz      uint32
	TimerMHz         uint32
	MaxOutstandingTx int
	MaxBitrate       uint32

	Card         protocol.CardInfo
	Software     protocol.SoftwareInfo
	Interface    *protocol.InterfaceInfo // Leaf only
	Transceiver  protocol.TransceiverInfo
	Capabilities protocol.Capabilities
	OpCapability protocol.OpMode
}

func (d DeviceInfo) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "%s (%s, pid 0x%04X)\n", d.Name, d.Family, d.ProductID)
	fmt.Fprintf(&out, "  serial:       %d\n", d.Serial)
	fmt.Fprintf(&out, "  ean:          %s\n", d.EAN)
	fmt.Fprintf(&out, "  firmware:     %s\n", d.Firmware)
	fmt.Fprintf(&out, "  hw revision:  %d\n", d.HwRevision)
	if !d.Manufactured.IsZero() {
		fmt.Fprintf(&out, "  manufactured: %s\n", d.Manufactured.Format("2006-01-02"))
	}
	fmt.Fprintf(&out, "  clock:        %d MHz (timer %d MHz)\n", d.CANClockMHz, d.TimerMHz)
	fmt.Fprintf(&out, "  max tx:       %d\n", d.MaxOutstandingTx)
	if d.MaxBitrate > 0 {
		fmt.Fprintf(&out, "  max bitrate:  %d\n", d.MaxBitrate)
	}
	if d.Interface != nil {
		fmt.Fprintf(&out, "  chip:         %d/%d\n", d.Interface.CanChipType, d.Interface.CanChipSubType)
	}
	fmt.Fprintf(&out, "  transceiver:  %s\n", d.Transceiver.Type)
	fmt.Fprintf(&out, "  op-modes:     %s", d.OpCapability)
	return out.String()
}

// DeviceInfo collects the device description read during initialization.
// Leaf adapters are also asked for their interface info.
func (ch *Channel) DeviceInfo(ctx context.Context) (info DeviceInfo, err error) {
	err = ch.sync(ctx, func(ctx context.Context) error {
		c := ch.c
		info = DeviceInfo{
			Name:             c.entry.Name,
			ProductID:        c.entry.ProductID,
			Family:           c.entry.Family,
			Serial:           c.card.SerialNumber,
			EAN:              FormatEAN(c.card.EAN),
			Firmware:         c.software.Version(),
			HwRevision:       c.card.HwRevision,
			CANClockMHz:      c.canClock,
			TimerMHz:         c.timerFreq,
			MaxOutstandingTx: c.window.Max(),
			MaxBitrate:       c.software.MaxBitrate,
			Card:             c.card,
			Software:         c.software,
			Transceiver:      c.transceiver,
			Capabilities:     c.caps,
			OpCapability:     c.opCapability,
		}
		if c.card.MfgDate != 0 {
			info.Manufactured = time.Unix(int64(c.card.MfgDate), 0).UTC()
		}
		switch d := ch.drv.(type) {
		case *leafDriver:
			iface, err := d.interfaceInfo(ctx)
			if err != nil {
				return fmt.Errorf("interface info: %w", err)
			}
			info.Interface = &iface
		case *hydraDriver:
			if d.software.EAN != [8]uint8{} {
				info.EAN = FormatEAN(d.software.EAN)
			}
		}
		return nil
	})
	return
}

// FormatEAN renders a BCD EAN stored least significant byte first as
// 73-30130-00761-2.
func FormatEAN(ean [8]uint8) string {
	var be [8]byte
	for i, b := range ean {
		be[len(ean)-1-i] = b
	}
	s := fmt.Sprintf("%013d", bcd.ToUint64(be[:]))
	n := len(s)
	return s[:n-11] + "-" + s[n-11:n-6] + "-" + s[n-6:n-1] + "-" + s[n-1:]
}

// FirmwareAtLeast reports whether version have is not older than want. Both
// are major.minor.build with or without a leading v.
func FirmwareAtLeast(have, want string) bool {
	return semver.Compare(semverOf(have), semverOf(want)) >= 0
}

func semverOf(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
