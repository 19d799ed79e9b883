// Package modbus implements a Modbus client (master) on top of a devcomm
// transport backend.
//
// Both frame encodings used by lab and industrial gear are supported: RTU with
// a CRC-16 checksum for serial lines, and the MBAP header framing for Modbus
// TCP. The encoding is picked automatically from the backend transport kind and
// can be overridden with WithFraming.
//
// The client covers the standard data-access function codes: coils, discrete
// inputs, and holding/input registers, single and multiple writes. On top of
// the raw operations, Register describes a named typed register (16/32 bit,
// signed, float) that can be read and written as a scaled float64.
//
// The backend must not append a write terminator; Modbus frames are
// self-delimiting.
//
// Implemented from the ModBus Application Protocol v1.1b and the serial line
// and TCP messaging guides at modbus.org.
package modbus
