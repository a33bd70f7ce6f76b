package device

import (
	"context"
	"time"
)

// Advertisement is the subset of a received BLE advertisement the scan pipeline consumes.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	RSSI() int
	Addr() string
}

// Event is one raw advertisement as delivered by a Scanner.
// VendorData maps a company identifier to its vendor block with the
// company id prefix already stripped.
type Event struct {
	Address    string
	RSSI       int
	LocalName  string
	VendorData map[uint16][]byte
	ReceivedAt time.Time
}

// NewEvent converts an advertisement received at the given time into an Event.
func NewEvent(adv Advertisement, at time.Time) Event {
	ev := Event{
		Address:    adv.Addr(),
		RSSI:       adv.RSSI(),
		LocalName:  adv.LocalName(),
		ReceivedAt: at,
	}
	if companyID, payload, ok := SplitManufacturerData(adv.ManufacturerData()); ok {
		ev.VendorData = map[uint16][]byte{companyID: payload}
	}
	return ev
}

// ScanOptions configures a scan subscription.
type ScanOptions struct {
	// AllowDuplicates asks the radio to report every advertisement instead of
	// the first one per device. Freshness tracking needs repeats.
	AllowDuplicates bool `yaml:"allow_duplicates" default:"true"`

	// StartGrace is how long StartScan waits for the radio to report an
	// immediate failure before treating the scan as acquired.
	StartGrace time.Duration `yaml:"start_grace" default:"250ms"`
}

// Scanner is the LE advertisement scanning capability.
//
// StartScan acquires the radio and delivers events to handler until the
// returned Subscription is stopped or the scan fails. Acquisition failures
// (adapter missing, permission denied, radio off) are returned directly.
type Scanner interface {
	StartScan(ctx context.Context, opts ScanOptions, handler func(Event)) (Subscription, error)
}

// Subscription is a live scan.
type Subscription interface {
	// Stop releases the radio. When Stop returns the handler is not running
	// and will not be invoked again. Stop is safe to call more than once.
	Stop()

	// Done is closed once the scan has ended, either by Stop or by failure.
	Done() <-chan struct{}

	// Err returns the terminal scan error after Done is closed, nil on a clean stop.
	Err() error
}
