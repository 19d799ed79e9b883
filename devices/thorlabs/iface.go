package thorlabs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/logger"
	"github.com/lumilab/go-labdev/scpi"
)

// ErrBadValue indicates a parameter outside the range the instrument accepts.
var ErrBadValue = errors.New("value out of range")

// Interface is the shared command layer for Thorlabs serial instruments.
// Every command is echoed back by the controller before the reply, and reply
// lines may start with a ">" prompt which carries no information.
type Interface struct {
	dev *scpi.Device
	log logger.Logger
}

func newInterface(backend devcomm.Backend, opts ...scpi.Option) (*Interface, error) {
	// these controllers have no SCPI error queue
	all := append([]scpi.Option{scpi.WithReadEcho(), scpi.WithErrorQuery("")}, opts...)

	dev, err := scpi.NewDevice(backend, all...)
	if err != nil {
		return nil, err
	}

	return &Interface{dev: dev, log: logger.GetLogger()}, nil
}

// Backend returns the underlying transport backend.
func (f *Interface) Backend() devcomm.Backend {
	return f.dev.Backend()
}

// Device returns the SCPI command layer, for commands not covered by the
// typed driver methods.
func (f *Interface) Device() *scpi.Device {
	return f.dev
}

// Open opens the underlying backend.
func (f *Interface) Open(ctx context.Context) error {
	return f.dev.Backend().Open(ctx)
}

// Close closes the underlying backend.
func (f *Interface) Close() error {
	return f.dev.Backend().Close()
}

// Identify queries the instrument identification.
func (f *Interface) Identify(ctx context.Context) (scpi.Identification, error) {
	return f.dev.Identify(ctx)
}

func (f *Interface) write(ctx context.Context, cmd string) error {
	return f.dev.Write(ctx, cmd)
}

// ask sends a query and returns the reply with prompts and whitespace
// stripped, reading further lines while the reply remains empty.
func (f *Interface) ask(ctx context.Context, query string) (string, error) {
	resp, err := f.dev.Ask(ctx, query)
	if err != nil {
		return "", err
	}

	for {
		for strings.HasPrefix(resp, ">") {
			resp = strings.TrimSpace(strings.TrimPrefix(resp, ">"))
		}
		if resp != "" {
			return resp, nil
		}

		line, err := f.dev.Backend().ReadLine(ctx)
		if err != nil {
			return "", fmt.Errorf("read reply to %q: %w", query, err)
		}
		resp = strings.TrimSpace(string(line))
	}
}

func (f *Interface) askInt(ctx context.Context, query string) (int, error) {
	resp, err := f.ask(ctx, query)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number (query %q)", scpi.ErrResponse, resp, query)
	}

	return int(v), nil
}
