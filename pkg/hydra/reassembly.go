package hydra

import (
	"errors"
	"fmt"

	"github.com/roffe/kvcan/pkg/protocol"
)

// ErrOverflow means the reassembly buffer filled up without completing a
// frame. The stream is out of sync and the buffered bytes are discarded.
var ErrOverflow = errors.New("reassembly buffer overflow")

// Reassembler joins frames that the transport split across transfers.
// Bytes are appended with Feed; complete frames are removed from the front
// in arrival order and an incomplete tail is kept for the next call.
type Reassembler struct {
	pending []byte
}

// NewReassembler returns a Reassembler holding at most capacity bytes, or
// ReassemblyCapacity when capacity is not positive. A capacity below
// ExtFrameLen overflows on long extended frames.
func NewReassembler(capacity int) *Reassembler {
	if capacity <= 0 {
		capacity = ReassemblyCapacity
	}
	return &Reassembler{pending: make([]byte, 0, capacity)}
}

// Feed appends p and returns every frame it completes. Each returned frame
// is a copy. On error the buffer is reset and the frames completed before
// the error are still returned.
func (r *Reassembler) Feed(p []byte) ([][]byte, error) {
	var frames [][]byte
	for len(p) > 0 {
		n := min(len(p), cap(r.pending)-len(r.pending))
		if n == 0 {
			lost := len(r.pending)
			r.Reset()
			return frames, fmt.Errorf("%w: %d bytes dropped", ErrOverflow, lost)
		}
		r.pending = append(r.pending, p[:n]...)
		p = p[n:]
		out, err := r.Drain()
		frames = append(frames, out...)
		if err != nil {
			return frames, err
		}
	}
	return frames, nil
}

// Drain removes the complete frames at the front of the buffer and moves the
// remaining partial frame to offset zero.
func (r *Reassembler) Drain() ([][]byte, error) {
	var frames [][]byte
	idx := 0
	for idx < len(r.pending) {
		n, err := FrameLength(r.pending[idx:])
		if errors.Is(err, protocol.ErrTruncated) {
			break
		}
		if err != nil {
			r.Reset()
			return frames, err
		}
		if idx+n > len(r.pending) {
			break
		}
		frames = append(frames, clone(r.pending[idx:idx+n]))
		idx += n
	}
	r.pending = r.pending[:copy(r.pending, r.pending[idx:])]
	return frames, nil
}

// Pending returns the number of buffered bytes.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// Reset discards all buffered bytes.
func (r *Reassembler) Reset() {
	r.pending = r.pending[:0]
}
