package scpi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/logger"
)

var (
	// ErrResponse indicates a reply that could not be parsed as the requested type.
	ErrResponse = errors.New("unexpected instrument response")

	// ErrUnknownSetting indicates a setting name with no registered entry.
	ErrUnknownSetting = errors.New("unknown setting")
)

// DeviceError is a non-zero entry from the instrument error queue.
type DeviceError struct {
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Message)
}

// Device speaks a SCPI-like text protocol over a transport backend.
type Device struct {
	backend devcomm.Backend
	log     logger.Logger

	readEcho   bool
	identQuery string
	errQuery   string

	settings *xsync.MapOf[string, Setting]
}

// Option represents a functional option for configuring a Device.
type Option interface {
	apply(*Device) error
}

type optFunc struct {
	name      string
	applyFunc func(*Device) error
}

func (o *optFunc) apply(d *Device) error { return o.applyFunc(d) }

func newOptFunc(name string, f func(*Device) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithReadEcho makes the device consume and discard one echoed line after every
// write. Simple serial controllers (Arduino firmware, older Thorlabs boxes)
// echo each command before answering.
func WithReadEcho() Option {
	return newOptFunc("WithReadEcho", func(d *Device) error {
		d.readEcho = true

		return nil
	})
}

// WithIdentifyQuery overrides the identification query sent by Identify.
//
// The default is "*IDN?".
func WithIdentifyQuery(query string) Option {
	return newOptFunc("WithIdentifyQuery", func(d *Device) error {
		if query == "" {
			return errors.New("identify query is empty")
		}
		d.identQuery = query

		return nil
	})
}

// WithErrorQuery overrides the error queue query sent by CheckError.
// An empty query disables error checking.
//
// The default is "SYST:ERR?".
func WithErrorQuery(query string) Option {
	return newOptFunc("WithErrorQuery", func(d *Device) error {
		d.errQuery = query

		return nil
	})
}

// WithLogger sets the logger used by the device.
// An error is returned if the logger is nil.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(d *Device) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		d.log = l

		return nil
	})
}

// NewDevice creates a SCPI device over the given backend.
func NewDevice(backend devcomm.Backend, opts ...Option) (*Device, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}

	d := &Device{
		backend:    backend,
		log:        logger.GetLogger(),
		identQuery: "*IDN?",
		errQuery:   "SYST:ERR?",
		settings:   xsync.NewMapOf[string, Setting](),
	}

	for _, opt := range opts {
		if err := opt.apply(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Backend returns the underlying transport backend.
func (d *Device) Backend() devcomm.Backend {
	return d.backend
}

// Write sends one command line, consuming the echo when configured.
func (d *Device) Write(ctx context.Context, cmd string) error {
	if err := d.backend.Write(ctx, []byte(cmd)); err != nil {
		return fmt.Errorf("write command %q: %w", cmd, err)
	}

	if d.readEcho {
		if _, err := d.backend.ReadLine(ctx); err != nil {
			return fmt.Errorf("read echo of %q: %w", cmd, err)
		}
	}

	return nil
}

// Ask sends a query and returns the response line with surrounding whitespace
// trimmed.
func (d *Device) Ask(ctx context.Context, query string) (string, error) {
	if err := d.Write(ctx, query); err != nil {
		return "", err
	}

	line, err := d.backend.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("read reply to %q: %w", query, err)
	}

	return strings.TrimSpace(string(line)), nil
}

// AskInt sends a query and parses the reply as an integer.
func (d *Device) AskInt(ctx context.Context, query string) (int, error) {
	resp, err := d.Ask(ctx, query)
	if err != nil {
		return 0, err
	}

	// some instruments answer integer queries in float notation, e.g. "2.0"
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number (query %q)", ErrResponse, resp, query)
	}

	return int(v), nil
}

// AskFloat sends a query and parses the reply as a float.
func (d *Device) AskFloat(ctx context.Context, query string) (float64, error) {
	resp, err := d.Ask(ctx, query)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number (query %q)", ErrResponse, resp, query)
	}

	return v, nil
}

// AskBool sends a query and parses the reply as a boolean. "1"/"ON"/"TRUE"/"YES"
// count as true, "0"/"OFF"/"FALSE"/"NO" as false, case-insensitively.
func (d *Device) AskBool(ctx context.Context, query string) (bool, error) {
	resp, err := d.Ask(ctx, query)
	if err != nil {
		return false, err
	}

	v, err := parseBool(resp)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean (query %q)", ErrResponse, resp, query)
	}

	return v, nil
}

// Identification is a parsed *IDN? response.
type Identification struct {
	Manufacturer string
	Model        string
	Serial       string
	Revision     string

	// Raw is the unparsed response line, for instruments that do not follow
	// the comma-separated four-field convention.
	Raw string
}

// Identify queries and parses the instrument identification.
func (d *Device) Identify(ctx context.Context) (Identification, error) {
	resp, err := d.Ask(ctx, d.identQuery)
	if err != nil {
		return Identification{}, err
	}

	idn := Identification{Raw: resp}
	parts := strings.Split(resp, ",")
	if len(parts) >= 1 {
		idn.Manufacturer = strings.TrimSpace(parts[0])
	}
	if len(parts) >= 2 {
		idn.Model = strings.TrimSpace(parts[1])
	}
	if len(parts) >= 3 {
		idn.Serial = strings.TrimSpace(parts[2])
	}
	if len(parts) >= 4 {
		idn.Revision = strings.TrimSpace(parts[3])
	}

	return idn, nil
}

// Reset sends *RST.
func (d *Device) Reset(ctx context.Context) error {
	return d.Write(ctx, "*RST")
}

// ClearStatus sends *CLS.
func (d *Device) ClearStatus(ctx context.Context) error {
	return d.Write(ctx, "*CLS")
}

// WaitComplete blocks until the instrument reports pending operations done
// via *OPC?.
func (d *Device) WaitComplete(ctx context.Context) error {
	resp, err := d.Ask(ctx, "*OPC?")
	if err != nil {
		return err
	}

	if resp != "1" {
		return fmt.Errorf("%w: *OPC? answered %q", ErrResponse, resp)
	}

	return nil
}

// CheckError pops one entry from the instrument error queue and returns it as a
// *DeviceError, or nil when the queue reports no error. Devices configured with
// an empty error query always return nil.
//
// The expected reply format is `<code>,"<message>"`.
func (d *Device) CheckError(ctx context.Context) error {
	if d.errQuery == "" {
		return nil
	}

	resp, err := d.Ask(ctx, d.errQuery)
	if err != nil {
		return err
	}

	codeStr, msg, _ := strings.Cut(resp, ",")
	code, err := strconv.Atoi(strings.TrimSpace(codeStr))
	if err != nil {
		return fmt.Errorf("%w: error queue answered %q", ErrResponse, resp)
	}

	if code == 0 {
		return nil
	}

	devErr := &DeviceError{Code: code, Message: strings.Trim(strings.TrimSpace(msg), `"`)}
	d.log.Debug("instrument reported error", "code", code, "message", devErr.Message)

	return devErr
}

// DrainErrors pops error queue entries until the queue is empty, returning all
// collected errors joined. Useful after a command burst.
func (d *Device) DrainErrors(ctx context.Context) error {
	var errs []error
	// an instrument error queue is bounded; the cap guards against devices
	// that never answer 0
	for i := 0; i < 64; i++ {
		err := d.CheckError(ctx)
		if err == nil {
			break
		}

		var devErr *DeviceError
		if !errors.As(err, &devErr) {
			return err
		}
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func parseBool(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ON", "TRUE", "YES":
		return true, nil
	case "0", "OFF", "FALSE", "NO":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// FormatBool renders a boolean the way SCPI set commands expect.
func FormatBool(v bool) string {
	if v {
		return "1"
	}

	return "0"
}
