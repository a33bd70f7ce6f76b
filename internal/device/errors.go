package device

import (
	"errors"
	"fmt"
	"strings"
)

// ScanErrorKind classifies why the scanning capability could not be used.
type ScanErrorKind string

const (
	Unavailable      ScanErrorKind = "unavailable"
	PermissionDenied ScanErrorKind = "permission_denied"
	Preempted        ScanErrorKind = "preempted"
)

// ScanError represents a failure to acquire or keep the scanning capability.
type ScanError struct {
	Kind ScanErrorKind
	Msg  string
}

// Error implements the error interface
func (e *ScanError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// Is allows errors.Is to compare ScanError values by Kind
func (e *ScanError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for scan failures
var (
	ErrUnavailable      = &ScanError{Kind: Unavailable, Msg: "bluetooth adapter unavailable"}
	ErrPermissionDenied = &ScanError{Kind: PermissionDenied, Msg: "bluetooth permission denied"}
	ErrPreempted        = &ScanError{Kind: Preempted, Msg: "scan preempted by another session"}

	// ErrBluetoothOff is an Unavailable error with a more specific message.
	ErrBluetoothOff = &ScanError{Kind: Unavailable, Msg: "bluetooth is turned off"}
)


// NormalizeError maps known platform error strings onto ScanError sentinels.
// The original error is wrapped to preserve context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var serr *ScanError
	if errors.As(err, &serr) {
		return err
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %w", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %w", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "unauthorized"),
		containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "operation not permitted"),
		containsIgnoreCase(msg, "have=3 want=5"):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "no such device"),
		containsIgnoreCase(msg, "unsupported"),
		containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "have=2 want=5"):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsScanErrorKind reports whether err is a ScanError of the given kind
func IsScanErrorKind(err error, kind ScanErrorKind) bool {
	var serr *ScanError
	if errors.As(err, &serr) {
		return serr.Kind == kind
	}
	return false
}
