package usbcomm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// ErrDeviceNotFound indicates that no attached USB device matched the requested
// vendor ID, product ID, and index.
var ErrDeviceNotFound = errors.New("usb device not found")

// deviceHandle abstracts the opened gousb device so tests can substitute an
// in-memory implementation.
type deviceHandle interface {
	// ReadBulk performs a bulk IN transfer, honoring the context deadline.
	ReadBulk(ctx context.Context, buf []byte) (int, error)

	// WriteBulk performs a bulk OUT transfer, honoring the context deadline.
	WriteBulk(ctx context.Context, data []byte) (int, error)

	// MaxPacketSize returns the IN endpoint packet size.
	MaxPacketSize() int

	Close() error
}

type openDeviceFunc func(cfg *Config) (deviceHandle, error)

// gousbHandle owns the whole gousb object chain of one opened device.
type gousbHandle struct {
	uctx *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

func openDevice(cfg *Config) (handle deviceHandle, err error) {
	uctx := gousb.NewContext()
	defer func() {
		if err != nil {
			_ = uctx.Close()
		}
	}()

	vid := gousb.ID(cfg.VendorID())
	pid := gousb.ID(cfg.ProductID())

	devs, err := uctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})
	// OpenDevices can report a partial failure while still returning usable
	// devices; only give up when nothing was opened.
	if len(devs) == 0 {
		if err != nil {
			return nil, fmt.Errorf("enumerate usb devices: %w", err)
		}

		return nil, fmt.Errorf("%w: %04x:%04x", ErrDeviceNotFound, cfg.VendorID(), cfg.ProductID())
	}

	index := cfg.Index()
	if index >= len(devs) {
		for _, d := range devs {
			_ = d.Close()
		}

		return nil, fmt.Errorf("%w: %04x:%04x index %d (%d attached)",
			ErrDeviceNotFound, cfg.VendorID(), cfg.ProductID(), index, len(devs))
	}

	dev := devs[index]
	for i, d := range devs {
		if i != index {
			_ = d.Close()
		}
	}
	defer func() {
		if err != nil {
			_ = dev.Close()
		}
	}()

	// Detach a kernel driver (e.g. usbhid) that may have claimed the device.
	_ = dev.SetAutoDetach(true)

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return nil, fmt.Errorf("claim default usb interface: %w", err)
	}

	in, err := intf.InEndpoint(cfg.InEndpoint())
	if err != nil {
		done()
		return nil, fmt.Errorf("open IN endpoint %d: %w", cfg.InEndpoint(), err)
	}

	out, err := intf.OutEndpoint(cfg.OutEndpoint())
	if err != nil {
		done()
		return nil, fmt.Errorf("open OUT endpoint %d: %w", cfg.OutEndpoint(), err)
	}

	return &gousbHandle{uctx: uctx, dev: dev, intf: intf, done: done, in: in, out: out}, nil
}

func (h *gousbHandle) ReadBulk(ctx context.Context, buf []byte) (int, error) {
	return h.in.ReadContext(ctx, buf)
}

func (h *gousbHandle) WriteBulk(ctx context.Context, data []byte) (int, error) {
	return h.out.WriteContext(ctx, data)
}

func (h *gousbHandle) MaxPacketSize() int {
	return h.in.Desc.MaxPacketSize
}

func (h *gousbHandle) Close() error {
	h.done()
	err := h.dev.Close()
	if cerr := h.uctx.Close(); err == nil {
		err = cerr
	}

	return err
}

// ListDevices enumerates attached USB devices as "vid:pid:index" connection
// strings, with index counting identical devices in enumeration order.
func ListDevices() ([]string, error) {
	uctx := gousb.NewContext()
	defer uctx.Close()

	counts := make(map[[2]gousb.ID]int)
	var list []string

	_, err := uctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		key := [2]gousb.ID{desc.Vendor, desc.Product}
		list = append(list, fmt.Sprintf("%04x:%04x:%d", uint16(desc.Vendor), uint16(desc.Product), counts[key]))
		counts[key]++

		return false
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate usb devices: %w", err)
	}

	return list, nil
}
