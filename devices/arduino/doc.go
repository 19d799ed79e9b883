// Package arduino implements a generic driver for Arduino-style boards
// speaking a line protocol over USB serial.
//
// Most boards wire the serial DTR line to the MCU reset pin, so opening the
// port restarts the sketch; the driver waits out the bootloader after open
// and can trigger a reset on demand by pulsing DTR. Construct the serial
// backend with its no-DTR option to suppress the automatic reset instead.
package arduino
