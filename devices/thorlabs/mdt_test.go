package thorlabs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/scpi"
)

func newTestMDT(t *testing.T) (*MDT69x, *devcomm.MockBackend) {
	t.Helper()

	mock := newThorlabsMock()
	mock.ExpectString("I\r", "I\rMDT693A V1.07\r")

	mdt, err := NewMDT69x(mock)
	require.NoError(t, err)
	require.NoError(t, mdt.Open(context.Background()))

	return mdt, mock
}

func TestMDT_OpenVerifiesIdentity(t *testing.T) {
	_, mock := newTestMDT(t)

	require.True(t, mock.Opened())
	require.True(t, mock.ScriptExhausted())
}

func TestMDT_OpenFailureClosesBackend(t *testing.T) {
	mock := newThorlabsMock()
	// nothing answers the identity query

	mdt, err := NewMDT69x(mock)
	require.NoError(t, err)

	require.Error(t, mdt.Open(context.Background()))
	require.False(t, mock.Opened())
}

func TestMDT_Voltage(t *testing.T) {
	mdt, mock := newTestMDT(t)
	mock.ExpectString("XR?\r", "XR?\r*[ 64.3]\r")

	v, err := mdt.Voltage(context.Background(), ChannelX)
	require.NoError(t, err)
	require.InDelta(t, 64.3, v, 1e-9)
}

func TestMDT_SetVoltage(t *testing.T) {
	mdt, mock := newTestMDT(t)
	mock.ExpectString("YV45.500\r", "YV45.500\r")
	mock.ExpectString("YR?\r", "YR?\r*[ 45.5]\r")

	v, err := mdt.SetVoltage(context.Background(), ChannelY, 45.5)
	require.NoError(t, err)
	require.InDelta(t, 45.5, v, 1e-9)
	require.True(t, mock.ScriptExhausted())
}

func TestMDT_VoltageRange(t *testing.T) {
	mdt, mock := newTestMDT(t)
	mock.ExpectString("%\r", "%\r*[ 150]\r")

	v, err := mdt.VoltageRange(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 150, v, 1e-9)
}

func TestMDT_BadChannel(t *testing.T) {
	mdt, _ := newTestMDT(t)

	_, err := mdt.Voltage(context.Background(), Channel("w"))
	require.ErrorIs(t, err, ErrBadValue)

	_, err = mdt.SetVoltage(context.Background(), Channel(""), 10)
	require.ErrorIs(t, err, ErrBadValue)
}

func TestParseBracketed(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{name: "starred brackets", in: "*[ 12.3 ]", want: 12.3},
		{name: "bare brackets", in: "[75]", want: 75},
		{name: "no brackets", in: "150", want: 150},
		{name: "empty brackets", in: "*[]", wantErr: true},
		{name: "garbage", in: "*[ volts ]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseBracketed(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, scpi.ErrResponse)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, tt.want, v, 1e-9)
		})
	}
}
