package router

import (
	"errors"
	"sync"
)

// ErrWindowFull is returned when the maximum number of transmit requests is
// already waiting for acknowledgment.
var ErrWindowFull = errors.New("transmit window full")

// TxWindow limits the number of unacknowledged transmit requests and hands
// out their transaction ids, which cycle modulo the window size.
type TxWindow struct {
	mu      sync.Mutex
	max     int
	count   int
	transID uint8
	noAck   bool
}

func NewTxWindow(max int) *TxWindow {
	w := &TxWindow{}
	w.SetMax(max)
	return w
}

// SetMax changes the window size. Outstanding requests are forgotten.
func (w *TxWindow) SetMax(max int) {
	if max < 1 {
		max = 1
	}
	if max > 256 {
		max = 256
	}
	w.mu.Lock()
	w.max, w.count, w.transID, w.noAck = max, 0, 0, true
	w.mu.Unlock()
}

// Acquire reserves a slot and returns the transaction id for the request.
// When awaitAck is false the acknowledgment is counted but not forwarded.
func (w *TxWindow) Acquire(awaitAck bool) (uint8, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count >= w.max {
		return 0, ErrWindowFull
	}
	w.transID = uint8((int(w.transID) + 1) % w.max)
	w.count++
	w.noAck = !awaitAck
	return w.transID, nil
}

// Release returns a slot whose request never reached the device.
func (w *TxWindow) Release() {
	w.mu.Lock()
	if w.count > 0 {
		w.count--
	}
	w.mu.Unlock()
}

// Ack frees one slot for any acknowledgment and reports whether it answers
// the most recent request that waits for one.
func (w *TxWindow) Ack(transID uint8) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count > 0 {
		w.count--
	}
	return !w.noAck && transID == w.transID
}

// Outstanding returns the number of unacknowledged requests.
func (w *TxWindow) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *TxWindow) Max() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.max
}
