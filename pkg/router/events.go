package router

import (
	"sync"

	"github.com/roffe/kvcan/pkg/protocol"
)

// EventState keeps the most recent event of each kind. Older values are
// overwritten; nothing is queued.
type EventState struct {
	mu       sync.RWMutex
	chip     protocol.ChipState
	err      protocol.ErrorReport
	canErr   protocol.CanError
	flags    uint32
	seenChip bool
	seenErr  bool
	seenCan  bool
}

func (s *EventState) SetChipState(c protocol.ChipState) {
	s.mu.Lock()
	s.chip, s.seenChip = c, true
	s.mu.Unlock()
}

func (s *EventState) SetError(e protocol.ErrorReport) {
	s.mu.Lock()
	s.err, s.seenErr = e, true
	s.mu.Unlock()
}

func (s *EventState) SetCanError(e protocol.CanError) {
	s.mu.Lock()
	s.canErr, s.seenCan = e, true
	s.mu.Unlock()
}

// SetFlags records the flags of the latest logged status report.
func (s *EventState) SetFlags(f uint32) {
	s.mu.Lock()
	s.flags = f
	s.mu.Unlock()
}

// ChipState returns the last chip state and whether one was ever received.
func (s *EventState) ChipState() (protocol.ChipState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chip, s.seenChip
}

func (s *EventState) Error() (protocol.ErrorReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err, s.seenErr
}

func (s *EventState) CanError() (protocol.CanError, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canErr, s.seenCan
}

func (s *EventState) Flags() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// Reset forgets every recorded event.
func (s *EventState) Reset() {
	s.mu.Lock()
	s.chip, s.err, s.canErr, s.flags = protocol.ChipState{}, protocol.ErrorReport{}, protocol.CanError{}, 0
	s.seenChip, s.seenErr, s.seenCan = false, false, false
	s.mu.Unlock()
}
