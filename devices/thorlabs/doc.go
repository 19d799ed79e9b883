// Package thorlabs implements drivers for Thorlabs serial instruments.
//
// The instruments share a simple text protocol over RS-232/USB-serial:
// commands are terminated with CR, the controller echoes every command,
// and replies may carry a leading ">" prompt. Interface wraps those
// quirks; FW (FW102/FW212 motorized filter wheels) and MDT69x
// (MDT693A/694A high-voltage piezo controllers) build on it.
package thorlabs
