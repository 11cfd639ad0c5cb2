package kvcan

import "fmt"

type Stats struct {
	Received    uint64
	Transmitted uint64
	ErrorFrames uint64
	Dropped     uint64
	Filtered    uint64
	Overruns    uint64
	RecvBytes   uint64
	SentBytes   uint64
	Errors      uint64
	// Outstanding is the number of transmitted frames not yet acknowledged.
	Outstanding int
}

func (st *Stats) String() string {
	return fmt.Sprintf("recv: %d sent: %d errframes: %d dropped: %d filtered: %d overruns: %d errors: %d outstanding: %d",
		st.Received, st.Transmitted, st.ErrorFrames, st.Dropped, st.Filtered, st.Overruns, st.Errors, st.Outstanding)
}

func (ch *Channel) Stats() Stats {
	c, err := ch.configured()
	if err != nil {
		return Stats{}
	}
	r := c.router.Counters()
	return Stats{
		Received:    r.Messages,
		Transmitted: c.sent.Load(),
		ErrorFrames: r.ErrorFrames,
		Dropped:     r.Dropped,
		Filtered:    r.Filtered,
		Overruns:    r.Overruns,
		RecvBytes:   c.rxBytes.Load(),
		SentBytes:   c.txBytes.Load(),
		Errors:      c.rxErrors.Load() + c.txErrors.Load(),
		Outstanding: c.window.Outstanding(),
	}
}
