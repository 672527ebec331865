package main

import (
	"errors"

	"github.com/matheoxz/parangolapp/internal/ble"
)

// Command-level errors
var (
	// ErrNoTarget means an OSC command got no host:port and the config has
	// no osc.host.
	ErrNoTarget = errors.New("no OSC target: pass host:port or set osc.host in the config")
)

// hints are appended to errors whose cause the user can usually fix.
var hints = []struct {
	err  error
	hint string
}{
	{ble.ErrScanStart, "is Bluetooth enabled and does this program have permission to use it?"},
	{ble.ErrConnectTimeout, "is the board powered and in range?"},
	{ble.ErrCharacteristicMissing, "the device does not look like a PARANGOLE board; check its firmware"},
	{ble.ErrNotificationTimeout, "the board did not answer; check the SSID and try again"},
	{ble.ErrNetworkJoinFailed, "check the password and that the network is 2.4 GHz"},
}

// FormatUserError returns the error text followed by a hint when one is
// known for its cause.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	for _, h := range hints {
		if errors.Is(err, h.err) {
			return err.Error() + " (" + h.hint + ")"
		}
	}
	return err.Error()
}
