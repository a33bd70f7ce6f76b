package main

import (
	"errors"

	"github.com/srg/beaconpair/internal/beacon"
	"github.com/srg/beaconpair/internal/device"
	"github.com/srg/beaconpair/internal/pairing"
)

// FormatUserError turns known failures into short, actionable messages.
// Unknown errors are returned verbatim.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var scanErr *device.ScanError
	if errors.As(err, &scanErr) {
		switch {
		case scanErr == device.ErrBluetoothOff:
			return "Bluetooth is turned off. Turn it on and try again."
		case scanErr.Kind == device.PermissionDenied:
			return "Bluetooth permission denied. Allow this terminal to use Bluetooth and try again."
		case scanErr.Kind == device.Preempted:
			return "Scan stopped: another scan took over the Bluetooth adapter."
		case scanErr.Kind == device.Unavailable:
			return "No usable Bluetooth adapter found. Use --simulate to try without hardware."
		}
	}

	switch {
	case errors.Is(err, pairing.ErrConflict):
		return "This beacon is already paired. Unpair it first to pair it again."
	case errors.Is(err, pairing.ErrNotFound):
		return "No paired beacon with that id for this owner."
	case errors.Is(err, pairing.ErrInvalidOwner):
		return "An owner is required: pass --owner."
	case errors.Is(err, beacon.ErrInvalidKey):
		return "Invalid beacon key, expected <uuid>:<major>:<minor>."
	}
	return err.Error()
}
