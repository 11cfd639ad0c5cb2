// Package usb is the libusb transport for Kvaser adapters.
package usb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/roffe/kvcan"
	"github.com/roffe/kvcan/pkg/device"
)

const (
	usbConfigNumber = 1
	usbInterfaceNum = 0
	usbAltSetting   = 0

	readBufferSize = 4096
	writeTimeout   = 1 * time.Second
)

var ErrNotFound = errors.New("no supported Kvaser adapter found")

func init() {
	if err := kvcan.RegisterTransport(&kvcan.TransportInfo{
		Name:        "usb",
		Description: "Kvaser Leaf and Mhydra adapters over libusb",
		Open: func(cfg *kvcan.Config) (kvcan.Transport, error) {
			return Open(cfg.Index, cfg.Debug)
		},
	}); err != nil {
		panic(err)
	}
}

// Info describes an attached adapter.
type Info struct {
	Index     int
	ProductID uint16
	Name      string
	Bus       int
	Address   int
	Serial    string
}

func (i Info) String() string {
	s := fmt.Sprintf("#%d %03d.%03d %04x:%04x %s (%s)", i.Index, i.Bus, i.Address, device.VendorID, i.ProductID, i.Name, device.Lookup(i.ProductID).Family)
	if i.Serial != "" {
		s += " S/N " + i.Serial
	}
	return s
}

// candidates opens every supported adapter, ordered by bus and address.
func candidates(ctx *gousb.Context) ([]*gousb.Device, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == device.VendorID && device.Supported(uint16(desc.Product))
	})
	if err != nil && len(devs) == 0 {
		return nil, err
	}
	sort.Slice(devs, func(i, j int) bool {
		a, b := devs[i].Desc, devs[j].Desc
		if a.Bus != b.Bus {
			return a.Bus < b.Bus
		}
		return a.Address < b.Address
	})
	return devs, nil
}

// List returns the attached supported adapters in the order Open indexes
// them.
func List() ([]Info, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := candidates(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	out := make([]Info, 0, len(devs))
	for i, d := range devs {
		pid := uint16(d.Desc.Product)
		info := Info{
			Index:     i,
			ProductID: pid,
			Name:      device.Lookup(pid).Name,
			Bus:       d.Desc.Bus,
			Address:   d.Desc.Address,
		}
		if sn, err := d.SerialNumber(); err == nil {
			info.Serial = sn
		}
		out = append(out, info)
	}
	return out, nil
}

// Device is an open adapter.
type Device struct {
	pid       uint16
	endpoints int
	debug     bool
	name      string

	usbCtx *gousb.Context
	dev    *gousb.Device
	devCfg *gousb.Config
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint

	wmu sync.Mutex

	rmu     sync.Mutex
	rcancel context.CancelFunc
	rdone   chan struct{}

	closeOnce sync.Once
}

// Open claims the adapter at index among the attached supported adapters.
func Open(index int, debug bool) (*Device, error) {
	ctx := gousb.NewContext()
	devs, err := candidates(ctx)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	var dev *gousb.Device
	for i, d := range devs {
		if i == index {
			dev = d
			continue
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		if len(devs) == 0 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w at index %d (%d attached)", ErrNotFound, index, len(devs))
	}

	d := &Device{
		pid:    uint16(dev.Desc.Product),
		debug:  debug,
		name:   fmt.Sprintf("usb %03d.%03d", dev.Desc.Bus, dev.Desc.Address),
		usbCtx: ctx,
		dev:    dev,
	}
	if err := d.claim(); err != nil {
		d.release()
		return nil, err
	}
	return d, nil
}

// claim selects the interface and the first bulk endpoint pair.
func (d *Device) claim() error {
	if err := d.dev.SetAutoDetach(true); err != nil && d.debug {
		log.Printf("usb: auto detach: %v", err)
	}
	cfg, err := d.dev.Config(usbConfigNumber)
	if err != nil {
		return fmt.Errorf("config %d: %w", usbConfigNumber, err)
	}
	d.devCfg = cfg
	iface, err := cfg.Interface(usbInterfaceNum, usbAltSetting)
	if err != nil {
		return fmt.Errorf("interface %d: %w", usbInterfaceNum, err)
	}
	d.iface = iface

	inNum, outNum := -1, -1
	for _, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		d.endpoints++
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && (inNum < 0 || ep.Number < inNum):
			inNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionOut && (outNum < 0 || ep.Number < outNum):
			outNum = ep.Number
		}
	}
	if inNum < 0 || outNum < 0 {
		return fmt.Errorf("interface %d has no bulk endpoint pair", usbInterfaceNum)
	}
	if d.in, err = iface.InEndpoint(inNum); err != nil {
		return fmt.Errorf("InEndpoint(%d): %w", inNum, err)
	}
	if d.out, err = iface.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("OutEndpoint(%d): %w", outNum, err)
	}
	return nil
}

// release closes the handles in reverse order of acquisition.
func (d *Device) release() {
	if d.iface != nil {
		d.iface.Close()
		d.iface = nil
	}
	if d.devCfg != nil {
		if err := d.devCfg.Close(); err != nil && d.debug {
			log.Printf("usb: close config: %v", err)
		}
		d.devCfg = nil
	}
	if d.dev != nil {
		if err := d.dev.Close(); err != nil && d.debug {
			log.Printf("usb: close device: %v", err)
		}
		d.dev = nil
	}
	if d.usbCtx != nil {
		if err := d.usbCtx.Close(); err != nil && d.debug {
			log.Printf("usb: close context: %v", err)
		}
		d.usbCtx = nil
	}
}

func (d *Device) ProductID() uint16 { return d.pid }

func (d *Device) Endpoints() int { return d.endpoints }

// String names the bus position captured at Open, so it stays valid after
// Close.
func (d *Device) String() string {
	if d.name == "" {
		return fmt.Sprintf("usb 0bfd:%04x", d.pid)
	}
	return d.name
}

// Write sends p as one bulk transfer.
func (d *Device) Write(ctx context.Context, p []byte) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, writeTimeout)
		defer cancel()
	}
	n, err := d.out.WriteContext(ctx, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(p))
	}
	return nil
}

// StartReading delivers every bulk IN transfer to fn from a single
// goroutine until StopReading or Close.
func (d *Device) StartReading(fn func(p []byte)) error {
	d.rmu.Lock()
	defer d.rmu.Unlock()
	if d.rcancel != nil {
		return errors.New("usb: already reading")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.rcancel, d.rdone = cancel, done
	go func() {
		defer close(done)
		buf := make([]byte, readBufferSize)
		for {
			n, err := d.in.ReadContext(ctx, buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if d.debug {
					log.Printf("usb: read: %v", err)
				}
				if errors.Is(err, gousb.ErrorNoDevice) {
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
			if n > 0 {
				fn(buf[:n])
			}
		}
	}()
	return nil
}

func (d *Device) StopReading() error {
	d.rmu.Lock()
	defer d.rmu.Unlock()
	if d.rcancel == nil {
		return nil
	}
	d.rcancel()
	<-d.rdone
	d.rcancel, d.rdone = nil, nil
	return nil
}

func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.StopReading()
		d.release()
	})
	return err
}
