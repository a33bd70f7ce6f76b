package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/srg/beaconpair/internal/beacon"
)

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Scanning
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session errors
var (
	ErrClosed      = errors.New("scan session closed")
	ErrInterrupted = errors.New("scan session stopped while starting")
)

// DiscoveredBeacon is one deduplicated entry of a session's discovery table.
type DiscoveredBeacon struct {
	Identity    beacon.Identity `json:"identity"`
	Key         beacon.Key      `json:"key"`
	Address     string          `json:"address,omitempty"`
	RSSI        int             `json:"rssi"`
	Count       int             `json:"count"`
	FirstSeenAt time.Time       `json:"first_seen_at"`
	LastSeenAt  time.Time       `json:"last_seen_at"`
}

// UpdateType marks if the beacon was newly discovered or seen again
type UpdateType int

const (
	UpdateNew UpdateType = iota
	UpdateSeen
)

func (t UpdateType) String() string {
	if t == UpdateNew {
		return "new"
	}
	return "seen"
}

// MarshalText implements encoding.TextMarshaler.
func (t UpdateType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Update is pushed for every table change.
type Update struct {
	Type   UpdateType       `json:"type"`
	Beacon DiscoveredBeacon `json:"beacon"`
}

// Stats counts what a session did with the advertisements it received.
type Stats struct {
	Events         int64 // advertisements delivered by the scanner
	Ignored        int64 // no vendor block for the beacon company id
	Rejected       int64 // vendor block present but not a beacon record
	Decoded        int64 // applied to the discovery table
	Stale          int64 // arrived for a stopped or replaced subscription
	UpdatesDropped int64 // overwritten in the update buffer before being read
}
