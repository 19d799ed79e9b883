package devcomm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies a transport backend kind.
type Kind string

// Transport kinds known to the connection parser. Transports register factories
// under these names; additional kinds may be registered by external packages.
const (
	KindSerial Kind = "serial"
	KindNet    Kind = "net"
	KindUSB    Kind = "usb"
)

// ConnInfo holds parsed connection parameters for a backend.
//
// Which fields are meaningful depends on Kind: serial uses Addr as the port path,
// net uses Addr and Port, usb uses VendorID, ProductID and Index.
type ConnInfo struct {
	Kind Kind

	// Addr is the serial port path (e.g. "/dev/ttyUSB0", "COM3") or the network host.
	Addr string

	// Port is the TCP port number for network connections.
	Port int

	// VendorID and ProductID identify a USB device kind.
	VendorID  uint16
	ProductID uint16

	// Index selects among several attached USB devices with the same IDs.
	Index int
}

// String returns the canonical connection string for the parameters.
func (ci ConnInfo) String() string {
	switch ci.Kind {
	case KindNet:
		return fmt.Sprintf("%s:%d", ci.Addr, ci.Port)
	case KindUSB:
		return fmt.Sprintf("%04x:%04x:%d", ci.VendorID, ci.ProductID, ci.Index)
	default:
		return ci.Addr
	}
}

var (
	serialAddrRe = regexp.MustCompile(`(?i)^com\d+$`)
	usbAddrRe    = regexp.MustCompile(`^([0-9a-fA-F]{4}):([0-9a-fA-F]{4})(?::(\d+))?$`)
	netAddrRe    = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3}|\[[0-9a-fA-F:]+\]|[a-zA-Z][\w.-]*)(?::(\d+))?$`)
)

// ParseConn parses a connection string and detects the transport kind from its shape:
//
//   - "COM3", "/dev/ttyUSB0"        -> serial
//   - "192.168.0.10:5025", "scope.lab:5025" -> net
//   - "0cd5:0006", "0cd5:0006:1"    -> usb (vendorID:productID[:index])
//
// The kind can be forced with an explicit prefix, e.g. "serial:/dev/ttyACM0" or
// "net:10.0.0.2:4001", which bypasses shape detection for the remainder.
func ParseConn(conn string) (ConnInfo, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return ConnInfo{}, fmt.Errorf("%w: empty string", ErrInvalidConn)
	}

	// Explicit kind prefix overrides autodetection.
	for _, kind := range []Kind{KindSerial, KindNet, KindUSB} {
		prefix := string(kind) + ":"
		if strings.HasPrefix(conn, prefix) {
			return parseKind(kind, strings.TrimPrefix(conn, prefix))
		}
	}

	switch {
	case serialAddrRe.MatchString(conn), strings.HasPrefix(conn, "/dev/"):
		return parseKind(KindSerial, conn)
	case usbAddrRe.MatchString(conn):
		return parseKind(KindUSB, conn)
	case strings.Contains(conn, ":"), netAddrRe.MatchString(conn) && strings.Contains(conn, "."):
		return parseKind(KindNet, conn)
	default:
		// Bare words like "ttyS0" are treated as serial port names.
		return parseKind(KindSerial, conn)
	}
}

func parseKind(kind Kind, rest string) (ConnInfo, error) {
	switch kind {
	case KindSerial:
		if rest == "" {
			return ConnInfo{}, fmt.Errorf("%w: empty serial port path", ErrInvalidConn)
		}
		return ConnInfo{Kind: KindSerial, Addr: rest}, nil

	case KindNet:
		m := netAddrRe.FindStringSubmatch(rest)
		if m == nil {
			return ConnInfo{}, fmt.Errorf("%w: invalid network address %q", ErrInvalidConn, rest)
		}
		info := ConnInfo{Kind: KindNet, Addr: strings.Trim(m[1], "[]")}
		if m[2] != "" {
			port, err := strconv.Atoi(m[2])
			if err != nil || port < 1 || port > 65535 {
				return ConnInfo{}, fmt.Errorf("%w: invalid port in %q", ErrInvalidConn, rest)
			}
			info.Port = port
		}
		return info, nil

	case KindUSB:
		m := usbAddrRe.FindStringSubmatch(rest)
		if m == nil {
			return ConnInfo{}, fmt.Errorf("%w: invalid usb address %q, want vendorID:productID[:index]", ErrInvalidConn, rest)
		}
		vid, _ := strconv.ParseUint(m[1], 16, 16)
		pid, _ := strconv.ParseUint(m[2], 16, 16)
		info := ConnInfo{Kind: KindUSB, VendorID: uint16(vid), ProductID: uint16(pid)}
		if m[3] != "" {
			idx, err := strconv.Atoi(m[3])
			if err != nil || idx < 0 {
				return ConnInfo{}, fmt.Errorf("%w: invalid usb device index in %q", ErrInvalidConn, rest)
			}
			info.Index = idx
		}
		return info, nil

	default:
		return ConnInfo{Kind: kind, Addr: rest}, nil
	}
}
