package ui

import (
	"fmt"
	"strconv"
	"strings"
)

type idRange struct {
	lo, hi uint32
}

// Filter selects frames by identifier. The zero value matches everything.
type Filter struct {
	ranges []idRange
	text   string
}

// ParseFilter parses a comma or space separated list of hexadecimal
// identifiers and ranges, e.g. "7E8, 100-1FF". An empty string matches
// every identifier.
func ParseFilter(s string) (Filter, error) {
	f := Filter{text: strings.TrimSpace(s)}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	for _, field := range fields {
		lo, hi, isRange := strings.Cut(field, "-")
		from, err := parseID(lo)
		if err != nil {
			return Filter{}, err
		}
		to := from
		if isRange {
			if to, err = parseID(hi); err != nil {
				return Filter{}, err
			}
			if to < from {
				return Filter{}, fmt.Errorf("invalid range %q", field)
			}
		}
		f.ranges = append(f.ranges, idRange{from, to})
	}
	return f, nil
}

func parseID(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil || id > 0x1FFFFFFF {
		return 0, fmt.Errorf("invalid identifier %q", s)
	}
	return uint32(id), nil
}

func (f Filter) Match(id uint32) bool {
	if len(f.ranges) == 0 {
		return true
	}
	for _, r := range f.ranges {
		if id >= r.lo && id <= r.hi {
			return true
		}
	}
	return false
}

func (f Filter) String() string {
	if f.text == "" {
		return "all"
	}
	return f.text
}
