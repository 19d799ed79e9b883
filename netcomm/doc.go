// Package netcomm implements the TCP transport backend for instruments with an
// Ethernet interface.
//
// It registers itself with the devcomm registry under devcomm.KindNet, so a
// blank import is enough to make connection strings such as "192.168.1.5:5025"
// resolve to a network backend:
//
//	import _ "github.com/lumilab/go-labdev/netcomm"
//
//	backend, err := devcomm.New(ctx, "192.168.1.5:5025")
//
// Use New with functional options to tune the connect timeout or the line
// terminators for a specific instrument.
package netcomm
