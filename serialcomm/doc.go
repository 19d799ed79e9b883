// Package serialcomm implements the serial-port transport backend.
//
// It registers itself with the devcomm registry under devcomm.KindSerial, so a
// blank import is enough to make connection strings such as "COM3" or
// "/dev/ttyUSB0" resolve to a serial backend:
//
//	import _ "github.com/lumilab/go-labdev/serialcomm"
//
//	backend, err := devcomm.New(ctx, "/dev/ttyUSB0")
//
// Backends created through the registry use the default port settings
// (9600 baud, 8 data bits, no parity, 1 stop bit). Use New with functional
// options when a device needs a different line configuration:
//
//	backend, err := serialcomm.New(info,
//		serialcomm.WithBaudRate(115200),
//		serialcomm.WithReadTerminators([][]byte{{'\r'}}),
//	)
//
// The package is built on go.bug.st/serial and supports port enumeration via
// ListPorts.
package serialcomm
