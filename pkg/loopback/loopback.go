// Package loopback simulates Kvaser adapters. It answers the requests of
// both families the way the firmware does and echoes transmitted frames
// back as received messages.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/device"
	"github.com/roffe/kvcan/pkg/protocol"
)

var ErrClosed = errors.New("loopback device closed")

func init() {
	if err := kvcan.RegisterTransport(&kvcan.TransportInfo{
		Name:        "loopback",
		Description: "simulated adapter echoing transmitted frames",
		Open:        func(cfg *kvcan.Config) (kvcan.Transport, error) {
			return New(cfg.Virtual)
		},
	}); err != nil {
		panic(err)
	}
}

var models = map[string]uint16{
	"":       0x0107,
	"hydra":  0x0107,
	"pro":    0x0107,
	"hybrid": 0x010E,
	"u100":   0x0112,
	"leaf":   0x0120,
}

// Models returns the accepted model names.
func Models() []string {
	return []string{"leaf", "hydra", "hybrid", "u100"}
}

// Device is a simulated adapter. Configure the exported fields before the
// channel is initialized.
type Device struct {
	entry device.Entry
	start time.Time

	// Echo sends transmitted frames back as received messages while the
	// chip is started.
	Echo bool
	// ChunkSize splits the bytes produced by one request into transfers of
	// at most ChunkSize bytes. Only Hydra frames may be split.
	ChunkSize int
	// EndpointCount overrides the number of endpoints reported.
	EndpointCount int

	Card        protocol.CardInfo
	Software    protocol.SoftwareInfo
	Transceiver protocol.TransceiverInfo
	Interface   protocol.InterfaceInfo
	Caps        protocol.Capabilities
	// BusLoad is reported as interval, samples and elapsed time.
	BusLoad [3]uint16

	mu         sync.Mutex
	busOn      bool
	mode       protocol.DriverMode
	params     protocol.BusParams
	dataParams protocol.BusParams
	tq         protocol.BusParamsTq
	muted      map[uint8]bool
	rejected   map[uint8]uint8
	writeErr   error
	requests   [][]byte
	closed     bool

	out chan []byte

	rxMu   sync.Mutex
	stop   chan struct{}
	readWg sync.WaitGroup
}

// New returns a simulated adapter of the named model.
func New(model string) (*Device, error) {
	pid, ok := models[strings.ToLower(model)]
	if !ok {
		return nil, fmt.Errorf("unknown loopback model %q, want one of %s", model, strings.Join(Models(), ", "))
	}
	return NewWithProductID(pid)
}

// NewWithProductID simulates the adapter with product id pid.
func NewWithProductID(pid uint16) (*Device, error) {
	entry := device.Lookup(pid)
	if entry.Family == device.Unknown {
		return nil, fmt.Errorf("product id 0x%04X is not a supported adapter", pid)
	}
	d := &Device{
		entry: entry,
		start: time.Now(),
		Echo:  true,
		Card:  protocol.CardInfo{
			ChannelCount:    uint8(entry.Channels),
			SerialNumber:    10717,
			ClockResolution: 1000,
			MfgDate:         1577836800,
			EAN:             [8]uint8{0x12, 0x76, 0x00, 0x30, 0x01, 0x33, 0x07, 0x00},
			HwRevision:      2,
		},
		Transceiver: protocol.TransceiverInfo{Type: protocol.Transceiver1050},
		Interface:   protocol.InterfaceInfo{CanChipType: 1},
		Caps:        protocol.Capabilities{
			SilentMode: entry.Silent,
			ErrorFrame: entry.ErrorFrame,
			BusStats:   true,
			ErrorCount: true,
		},
		BusLoad:  [3]uint16{100, 500, 1000},
		mode:     protocol.DriverModeNormal,
		params:   protocol.BusParams{BitRate: 500000, TSeg1: 5, TSeg2: 2, SJW: 1, NoSamp: 1},
		muted:    make(map[uint8]bool),
		rejected: make(map[uint8]uint8),
		out:      make(chan []byte, 4096),
	}
	switch entry.Family {
	case device.Leaf:
		d.Software = protocol.SoftwareInfo{
			SwOptions:        protocol.SwOptionCapReq | leafClockOption(entry.CANClockMHz),
			FirmwareVersion:  3<<24 | 9<<16 | 422,
			MaxOutstandingTx: 48,
		}
	case device.Mhydra:
		d.Software = protocol.SoftwareInfo{
			SwOptions:        protocol.SwOptionCapReq | protocol.HydraSwOptionCanFDCap | hydraClockOptions(entry),
			FirmwareVersion:  3<<24 | 25<<16 | 903,
			MaxOutstandingTx: 128,
			SwName:           0x0101,
			EAN:              d.Card.EAN,
			MaxBitrate:       8000000,
		}
		d.Caps.HasTimeQuanta = true
		d.dataParams = protocol.BusParams{BitRate: 2000000, TSeg1: 15, TSeg2: 4, SJW: 4, NoSamp: 1}
	}
	return d, nil
}

func leafClockOption(mhz uint32) uint32 {
	switch mhz {
	case 32:
		return protocol.SwOptionCPUFreq32MHz
	case 24:
		return protocol.SwOptionCPUFreq24MHz
	}
	return protocol.SwOptionCPUFreq16MHz
}

func hydraClockOptions(e device.Entry) uint32 {
	var opt uint32
	switch e.CANClockMHz {
	case 80:
		opt |= protocol.HydraSwOption80MHzCanClk
	case 24:
		opt |= protocol.HydraSwOption24MHzCanClk
	}
	switch e.TimerMHz {
	case 80:
		opt |= protocol.HydraSwOption80MHzClk
	case 24:
		opt |= protocol.HydraSwOption24MHzClk
	}
	return opt
}

func (d *Device) ProductID() uint16 { return d.entry.ProductID }

func (d *Device) Endpoints() int {
	if d.EndpointCount > 0 {
		return d.EndpointCount
	}
	return d.entry.Family.Endpoints()
}

func (d *Device) String() string {
	return "loopback " + d.entry.Name
}

// Ticks returns the simulated hardware timer.
func (d *Device) Ticks() uint64 {
	return uint64(time.Since(d.start).Microseconds()) * uint64(d.entry.TimerMHz)
}

// Write handles one or more requests.
func (d *Device) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.writeErr != nil {
		err := d.writeErr
		d.mu.Unlock()
		return err
	}
	var replies []byte
	var err error
	switch d.entry.Family {
	case device.Leaf:
		replies, err = d.leafRequests(p)
	default:
		replies, err = d.hydraRequests(p)
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.emit(replies)
	return nil
}

// emit queues device to host bytes for the reader.
func (d *Device) emit(b []byte) {
	if len(b) == 0 {
		return
	}
	size := d.ChunkSize
	if size <= 0 || d.entry.Family == device.Leaf {
		size = len(b)
	}
	for len(b) > 0 {
		n := min(size, len(b))
		chunk := make([]byte, n)
		copy(chunk, b[:n])
		select {
		case d.out <- chunk:
		default:
		}
		b = b[n:]
	}
}

func (d *Device) StartReading(fn func(p []byte)) error {
	d.rxMu.Lock()
	defer d.rxMu.Unlock()
	if d.stop != nil {
		return errors.New("already reading")
	}
	stop := make(chan struct{})
	d.stop = stop
	d.readWg.Add(1)
	go func() {
		defer d.readWg.Done()
		for {
			select {
			case b := <-d.out:
				fn(b)
			case <-stop:
				return
			}
		}
	}()
	return nil
}

func (d *Device) StopReading() error {
	d.rxMu.Lock()
	defer d.rxMu.Unlock()
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	d.readWg.Wait()
	d.stop = nil
	return nil
}

func (d *Device) Close() error {
	if err := d.StopReading(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Mute stops the device from answering requests with command code cmd.
func (d *Device) Mute(cmd uint8, muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted[cmd] = muted
}

// Reject answers requests with command code cmd with a firmware error event
// carrying code. A zero code restores normal answers.
func (d *Device) Reject(cmd, code uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code == 0 {
		delete(d.rejected, cmd)
		return
	}
	d.rejected[cmd] = code
}

// answer returns the reply to one request, honouring Mute and Reject.
func (d *Device) answer(cmd uint8, reply func() []byte) []byte {
	if d.muted[cmd] {
		return nil
	}
	if code, ok := d.rejected[cmd]; ok {
		return d.errorFrame(protocol.ErrorReport{Code: code, AddInfo1: uint16(cmd)})
	}
	return reply()
}

// FailWrites makes every following write fail with err; nil restores
// normal operation.
func (d *Device) FailWrites(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

// Requests returns a copy of every request written so far.
func (d *Device) Requests() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.requests))
	copy(out, d.requests)
	return out
}

// BusOn reports whether the simulated chip is started.
func (d *Device) BusOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busOn
}

// DriverMode returns the last driver mode set.
func (d *Device) DriverMode() protocol.DriverMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Inject delivers m as if another node had sent it.
func (d *Device) Inject(m *protocol.Message) {
	d.mu.Lock()
	b := d.rxFrame(m)
	d.mu.Unlock()
	d.emit(b)
}

// InjectRaw delivers raw device to host bytes.
func (d *Device) InjectRaw(b []byte) {
	d.emit(b)
}

// InjectError delivers a firmware error event.
func (d *Device) InjectError(r protocol.ErrorReport) {
	d.mu.Lock()
	b := d.errorFrame(r)
	d.mu.Unlock()
	d.emit(b)
}

func (d *Device) chipState() protocol.ChipState {
	s := protocol.ChipState{Time: d.Ticks(), BusStatus: protocol.BusStatusBusOff}
	if d.busOn {
		s.BusStatus = protocol.BusStatusErrorActive
	}
	return s
}

func (d *Device) capability(sub uint16) bool {
	switch sub {
	case protocol.CapSubSilentMode:
		return d.Caps.SilentMode
	case protocol.CapSubErrFrame:
		return d.Caps.ErrorFrame
	case protocol.CapSubBusStats:
		return d.Caps.BusStats
	case protocol.CapSubErrCountRead:
		return d.Caps.ErrorCount
	case protocol.CapSubSingleShot:
		return d.Caps.SingleShot
	case protocol.CapSubSyncTxFlush:
		return d.Caps.SyncTxFlush
	case protocol.CapSubHasLogger:
		return d.Caps.HasLogger
	case protocol.CapSubHasRemote:
		return d.Caps.HasRemote
	case protocol.CapSubHasScript:
		return d.Caps.HasScript
	case protocol.CapSubLinHybrid:
		return d.Caps.LinHybrid
	case protocol.CapSubKdiInfo:
		return d.Caps.KdiInfo
	case protocol.CapSubHasKdi:
		return d.Caps.HasKdi
	case protocol.CapSubHasIOAPI:
		return d.Caps.HasIOAPI
	case protocol.CapSubHasBusParamsTq:
		return d.Caps.HasTimeQuanta
	}
	return false
}

func (d *Device) rxFrame(m *protocol.Message) []byte {
	if d.entry.Family == device.Leaf {
		return leafRx(m, d.Ticks())
	}
	return hydraRx(m, d.Ticks())
}

func (d *Device) errorFrame(r protocol.ErrorReport) []byte {
	r.Time = d.Ticks()
	if d.entry.Family == device.Leaf {
		return leafError(r)
	}
	return hydraError(r)
}
