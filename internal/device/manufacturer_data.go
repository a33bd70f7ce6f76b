package device

import "encoding/binary"

// SplitManufacturerData splits a raw manufacturer specific data block into
// its little-endian company identifier and the vendor payload that follows.
// It reports false when the block is too short to carry a company id.
func SplitManufacturerData(raw []byte) (uint16, []byte, bool) {
	if len(raw) < 2 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint16(raw[0:2]), raw[2:], true
}
