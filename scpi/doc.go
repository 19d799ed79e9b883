// Package scpi implements a command layer for SCPI and SCPI-like text protocol
// instruments on top of a devcomm transport backend.
//
// A Device turns the raw byte transport into typed command/query traffic:
//
//	dev, err := scpi.NewDevice(backend)
//	idn, err := dev.Identify(ctx)                 // *IDN?
//	volt, err := dev.AskFloat(ctx, "MEAS:VOLT?")  // typed queries
//	err = dev.Write(ctx, "OUTP ON")
//
// Instruments that echo every command (common on simple serial controllers) are
// handled with WithReadEcho; the echoed line is consumed and discarded after
// each write.
//
// Named settings registered with RegisterSetting give callers a uniform
// get/set surface over heterogeneous command pairs, which device drivers use to
// expose their parameter tables.
package scpi
