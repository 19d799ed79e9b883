// Package relayboard implements a driver for Modbus relay output boards.
//
// Each relay maps to one coil starting at a configurable base address.
// Relays are addressed by 0-based channel number, individually or as a
// whole bank, and every channel also satisfies the Switch interface for
// callers that control one output at a time.
package relayboard
