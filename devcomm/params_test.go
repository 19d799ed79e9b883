package devcomm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConn(t *testing.T) {
	tests := []struct {
		name    string
		conn    string
		want    ConnInfo
		wantErr bool
	}{
		{
			name: "windows com port",
			conn: "COM3",
			want: ConnInfo{Kind: KindSerial, Addr: "COM3"},
		},
		{
			name: "lowercase com port",
			conn: "com12",
			want: ConnInfo{Kind: KindSerial, Addr: "com12"},
		},
		{
			name: "unix device path",
			conn: "/dev/ttyUSB0",
			want: ConnInfo{Kind: KindSerial, Addr: "/dev/ttyUSB0"},
		},
		{
			name: "bare device name",
			conn: "ttyS0",
			want: ConnInfo{Kind: KindSerial, Addr: "ttyS0"},
		},
		{
			name: "ip with port",
			conn: "192.168.0.10:5025",
			want: ConnInfo{Kind: KindNet, Addr: "192.168.0.10", Port: 5025},
		},
		{
			name: "ip without port",
			conn: "10.0.0.2",
			want: ConnInfo{Kind: KindNet, Addr: "10.0.0.2"},
		},
		{
			name: "hostname with port",
			conn: "scope.lab:4001",
			want: ConnInfo{Kind: KindNet, Addr: "scope.lab", Port: 4001},
		},
		{
			name: "usb vid pid",
			conn: "0cd5:0006",
			want: ConnInfo{Kind: KindUSB, VendorID: 0x0cd5, ProductID: 0x0006},
		},
		{
			name: "usb vid pid index",
			conn: "0cd5:0006:1",
			want: ConnInfo{Kind: KindUSB, VendorID: 0x0cd5, ProductID: 0x0006, Index: 1},
		},
		{
			name: "explicit serial prefix",
			conn: "serial:/dev/ttyACM0",
			want: ConnInfo{Kind: KindSerial, Addr: "/dev/ttyACM0"},
		},
		{
			name: "explicit net prefix",
			conn: "net:10.0.0.2:4001",
			want: ConnInfo{Kind: KindNet, Addr: "10.0.0.2", Port: 4001},
		},
		{
			name: "explicit usb prefix",
			conn: "usb:1313:8078",
			want: ConnInfo{Kind: KindUSB, VendorID: 0x1313, ProductID: 0x8078},
		},
		{
			name:    "empty string",
			conn:    "",
			wantErr: true,
		},
		{
			name:    "net port out of range",
			conn:    "net:10.0.0.2:99999",
			wantErr: true,
		},
		{
			name:    "usb prefix with bad address",
			conn:    "usb:zz:yy",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConn(tt.conn)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConn)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConnInfoString(t *testing.T) {
	require := require.New(t)

	require.Equal("/dev/ttyUSB0", ConnInfo{Kind: KindSerial, Addr: "/dev/ttyUSB0"}.String())
	require.Equal("10.0.0.2:4001", ConnInfo{Kind: KindNet, Addr: "10.0.0.2", Port: 4001}.String())
	require.Equal("0cd5:0006:1", ConnInfo{Kind: KindUSB, VendorID: 0x0cd5, ProductID: 0x0006, Index: 1}.String())
}

func TestParseConnRoundTrip(t *testing.T) {
	for _, conn := range []string{"/dev/ttyUSB0", "10.0.0.2:4001", "0cd5:0006:1"} {
		info, err := ParseConn(conn)
		require.NoError(t, err)
		require.Equal(t, conn, info.String())
	}
}
