// Package beacon decodes proximity beacon advertisements.
//
// A proximity beacon advertises a manufacturer specific data block under
// company identifier 0x004C with the following layout (after the company id):
//
//	Byte  0:      0x02 (record type)
//	Byte  1:      0x15 (record length, 21 bytes follow)
//	Bytes 2-17:   proximity UUID
//	Bytes 18-19:  major, big-endian
//	Bytes 20-21:  minor, big-endian
//	Byte  22:     measured power at 1m (signed dBm), ignored by Decode
package beacon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// CompanyID is the Bluetooth SIG company identifier carrying proximity beacon records.
	CompanyID uint16 = 0x004C

	// PayloadLen is the minimum vendor block length accepted by Decode.
	PayloadLen = 23

	recordType   = 0x02
	recordLength = 0x15
)

// ErrInvalidKey is returned by ParseKey for strings that are not a dedup key.
var ErrInvalidKey = errors.New("invalid beacon key")

// Identity is the (UUID, major, minor) triple of a physical beacon.
// UUID is always lower-case canonical 8-4-4-4-12 form.
type Identity struct {
	UUID  string `json:"uuid"`
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

// Key is the dedup key of an Identity: "uuid:major:minor".
type Key string

// Key derives the dedup key for id.
func (id Identity) Key() Key {
	return Key(id.UUID + ":" + strconv.FormatUint(uint64(id.Major), 10) + ":" + strconv.FormatUint(uint64(id.Minor), 10))
}

func (id Identity) String() string {
	return string(id.Key())
}

// Decode maps a vendor block to a beacon identity.
// The second return value is false when the block is not a proximity beacon record.
func Decode(companyID uint16, payload []byte) (Identity, bool) {
	if companyID != CompanyID {
		return Identity{}, false
	}
	if len(payload) < PayloadLen {
		return Identity{}, false
	}
	if payload[0] != recordType || payload[1] != recordLength {
		return Identity{}, false
	}

	u, err := uuid.FromBytes(payload[2:18])
	if err != nil {
		return Identity{}, false
	}

	return Identity{
		UUID:  u.String(),
		Major: binary.BigEndian.Uint16(payload[18:20]),
		Minor: binary.BigEndian.Uint16(payload[20:22]),
	}, true
}

// Encode builds the vendor block for id, the exact inverse of Decode.
func Encode(id Identity, measuredPower int8) ([]byte, error) {
	u, err := uuid.Parse(id.UUID)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", id.UUID, err)
	}

	buf := make([]byte, PayloadLen)
	buf[0] = recordType
	buf[1] = recordLength
	copy(buf[2:18], u[:])
	binary.BigEndian.PutUint16(buf[18:20], id.Major)
	binary.BigEndian.PutUint16(buf[20:22], id.Minor)
	buf[22] = byte(measuredPower)
	return buf, nil
}

// ManufacturerData returns the full manufacturer specific data block for id,
// prefixed with the little-endian company identifier as it appears on air.
func ManufacturerData(id Identity, measuredPower int8) ([]byte, error) {
	payload, err := Encode(id, measuredPower)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 2, 2+len(payload))
	binary.LittleEndian.PutUint16(raw, CompanyID)
	return append(raw, payload...), nil
}

// ParseKey parses a dedup key back into an Identity.
// The UUID part accepts any form understood by uuid.Parse and is normalized.
func ParseKey(s string) (Identity, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Identity{}, fmt.Errorf("%w: %q: want uuid:major:minor", ErrInvalidKey, s)
	}

	u, err := uuid.Parse(parts[0])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
	}
	major, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: major: %v", ErrInvalidKey, s, err)
	}
	minor, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: minor: %v", ErrInvalidKey, s, err)
	}

	return Identity{UUID: u.String(), Major: uint16(major), Minor: uint16(minor)}, nil
}
