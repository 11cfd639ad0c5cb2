package kvcan

import (
	"fmt"
	"strings"

	"github.com/roffe/kvcan/pkg/protocol"
)

// Bitrate is a named bit timing preset. The firmware derives the prescaler
// from the bit rate, so presets do not depend on the controller clock.
type Bitrate struct {
	Name    string
	FD      bool
	Nominal protocol.BusParams
	Data    protocol.BusParams
}

func (b Bitrate) String() string {
	if b.FD {
		return fmt.Sprintf("%-9s nominal %7d sp %d‰, data %7d sp %d‰", b.Name,
			b.Nominal.BitRate, b.Nominal.SamplePoint(), b.Data.BitRate, b.Data.SamplePoint())
	}
	return fmt.Sprintf("%-9s %7d sp %d‰", b.Name, b.Nominal.BitRate, b.Nominal.SamplePoint())
}

func classic(name string, rate uint32, tseg1, tseg2 uint8) Bitrate {
	return Bitrate{Name: name, Nominal: protocol.BusParams{BitRate: rate, TSeg1: tseg1, TSeg2: tseg2, SJW: 1, NoSamp: 1}}
}

func fd(name string, nominal, data protocol.BusParams) Bitrate {
	return Bitrate{Name: name, FD: true, Nominal: nominal, Data: data}
}

func phase(rate uint32, tseg1, tseg2, sjw uint8) protocol.BusParams {
	return protocol.BusParams{BitRate: rate, TSeg1: tseg1, TSeg2: tseg2, SJW: sjw, NoSamp: 1}
}

// Bitrates lists the presets understood by LookupBitrate.
var Bitrates = []Bitrate{
	classic("1M", 1000000, 5, 2),
	classic("800K", 800000, 6, 3),
	classic("500K", 500000, 5, 2),
	classic("250K", 250000, 5, 2),
	classic("125K", 125000, 11, 4),
	classic("100K", 100000, 11, 4),
	classic("50K", 50000, 11, 4),
	classic("20K", 20000, 11, 4),
	classic("10K", 10000, 11, 4),
	fd("FD1M8M", phase(1000000, 31, 8, 8), phase(8000000, 2, 2, 1)),
	fd("FD500K4M", phase(500000, 63, 16, 16), phase(4000000, 7, 2, 2)),
	fd("FD250K2M", phase(250000, 127, 32, 32), phase(2000000, 15, 4, 4)),
	fd("FD125K1M", phase(125000, 255, 64, 64), phase(1000000, 31, 8, 8)),
}

// LookupBitrate finds a preset by name. Names are case insensitive and FD
// presets may also be written as nominal:data, e.g. "500K:4M".
func LookupBitrate(name string) (Bitrate, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if nominal, data, ok := strings.Cut(key, ":"); ok {
		key = "FD" + nominal + data
	}
	for _, b := range Bitrates {
		if b.Name == key {
			return b, nil
		}
	}
	return Bitrate{}, fmt.Errorf("%w: unknown bitrate %q", ErrIllegalParameter, name)
}

// BusParamsFromTiming computes bus parameters from register style timing at
// a controller clock of freq Hz. sam selects three sample points.
func BusParamsFromTiming(freq uint32, brp, tseg1, tseg2, sjw uint8, sam bool) (protocol.BusParams, error) {
	bt := uint32(brp) * (1 + uint32(tseg1) + uint32(tseg2))
	if bt == 0 {
		return protocol.BusParams{}, fmt.Errorf("%w: zero prescaler", ErrIllegalParameter)
	}
	p := protocol.BusParams{
		BitRate: freq / bt,
		TSeg1:   tseg1,
		TSeg2:   tseg2,
		SJW:     sjw,
		NoSamp:  1,
	}
	if sam {
		p.NoSamp = 3
	}
	return p, nil
}
