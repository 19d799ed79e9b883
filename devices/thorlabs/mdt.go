package thorlabs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/scpi"
)

// Channel identifies one of the three piezo output channels.
type Channel string

const (
	ChannelX Channel = "x"
	ChannelY Channel = "y"
	ChannelZ Channel = "z"
)

// identifyTimeout bounds the post-open identity check so a wrong or absent
// device fails fast instead of waiting out the full I/O timeout.
const identifyTimeout = 2 * time.Second

// MDT69x drives Thorlabs MDT693A/694A three-channel high-voltage piezo
// controllers. It uses the MDT693A command set, which the B revisions also
// accept.
//
// The controller answers queries with the value wrapped in brackets, e.g.
// "*[ 12.3 ]"; the driver strips the wrapping.
type MDT69x struct {
	*Interface
}

// NewMDT69x creates a piezo controller driver over the given backend.
func NewMDT69x(backend devcomm.Backend) (*MDT69x, error) {
	iface, err := newInterface(backend, scpi.WithIdentifyQuery("I"))
	if err != nil {
		return nil, err
	}

	return &MDT69x{Interface: iface}, nil
}

// Open opens the backend and verifies that a controller answers the identity
// query. The backend is closed again when verification fails.
func (m *MDT69x) Open(ctx context.Context) error {
	if err := m.Interface.Open(ctx); err != nil {
		return err
	}

	idCtx, cancel := context.WithTimeout(ctx, identifyTimeout)
	defer cancel()

	if _, err := m.Identify(idCtx); err != nil {
		m.Interface.Close()

		return fmt.Errorf("verify controller identity: %w", err)
	}

	return nil
}

// Voltage returns the output voltage in volts on the given channel.
func (m *MDT69x) Voltage(ctx context.Context, ch Channel) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}

	resp, err := m.ask(ctx, strings.ToUpper(string(ch))+"R?")
	if err != nil {
		return 0, err
	}

	return parseBracketed(resp)
}

// SetVoltage sets the output voltage in volts on the given channel and
// returns the voltage read back.
func (m *MDT69x) SetVoltage(ctx context.Context, ch Channel, voltage float64) (float64, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}

	cmd := fmt.Sprintf("%sV%.3f", strings.ToUpper(string(ch)), voltage)
	if err := m.write(ctx, cmd); err != nil {
		return 0, err
	}

	return m.Voltage(ctx, ch)
}

// VoltageRange returns the configured output range in volts (75, 100 or 150).
func (m *MDT69x) VoltageRange(ctx context.Context) (float64, error) {
	resp, err := m.ask(ctx, "%")
	if err != nil {
		return 0, err
	}

	return parseBracketed(resp)
}

func checkChannel(ch Channel) error {
	switch ch {
	case ChannelX, ChannelY, ChannelZ:
		return nil
	default:
		return fmt.Errorf("%w: channel %q", ErrBadValue, ch)
	}
}

// parseBracketed extracts the number from a "*[ 12.3 ]"-style reply.
func parseBracketed(resp string) (float64, error) {
	s := strings.TrimSpace(resp)
	s = strings.TrimSpace(strings.TrimPrefix(s, "*"))
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a bracketed number", scpi.ErrResponse, resp)
	}

	return v, nil
}
