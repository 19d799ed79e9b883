// Package usbcomm implements the raw USB transport backend on top of
// github.com/google/gousb.
//
// It registers itself with the devcomm registry under devcomm.KindUSB, so a
// blank import is enough to make connection strings of the form
// "vid:pid[:index]" (hexadecimal IDs, e.g. "0cd5:0006" or "1313:8022:1")
// resolve to a USB backend:
//
//	import _ "github.com/lumilab/go-labdev/usbcomm"
//
//	backend, err := devcomm.New(ctx, "1313:8022")
//
// The backend claims the default interface of the selected device and performs
// bulk transfers on a configurable pair of IN/OUT endpoints. Access to USB
// devices usually requires udev permissions on Linux and a libusb-compatible
// driver on Windows.
package usbcomm
