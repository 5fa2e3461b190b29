package continuity

import (
	"encoding/binary"
	"fmt"
)

const (
	VendorApple uint16 = 0x004C
	VendorIDLen        = 2
)

// SplitManufacturerData separates the little-endian vendor id from the payload.
func SplitManufacturerData(b []byte) (uint16, []byte, error) {
	if len(b) < VendorIDLen {
		return 0, nil, fmt.Errorf("%w: len=%d", ErrShortManufacturerData, len(b))
	}
	return binary.LittleEndian.Uint16(b[:VendorIDLen]), b[VendorIDLen:], nil
}

func JoinManufacturerData(vendor uint16, payload []byte) []byte {
	out := make([]byte, VendorIDLen, VendorIDLen+len(payload))
	binary.LittleEndian.PutUint16(out, vendor)
	return append(out, payload...)
}

// ParseManufacturerData checks the vendor id and decodes the remaining frame.
func ParseManufacturerData(reg *Registry, vendor uint16, b []byte) (Frame, error) {
	got, payload, err := SplitManufacturerData(b)
	if err != nil {
		return Frame{}, err
	}
	if got != vendor {
		return Frame{}, fmt.Errorf("%w: got=0x%04x want=0x%04x", ErrVendorMismatch, got, vendor)
	}
	return reg.DecodeFrame(payload)
}
