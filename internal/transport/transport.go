// Package transport defines the radio collaborator boundary.
//
// Implementations supply raw advertisements and accept advertising requests;
// they know nothing about Continuity framing beyond the manufacturer-data
// bytes they carry.
package transport

import (
	"context"
	"time"

	"github.com/danmuck/continuityctl/internal/continuity"
)

// DefaultMaxPayloadLen is the legacy advertising manufacturer-data limit:
// 31 AD bytes minus the AD length and type bytes.
const DefaultMaxPayloadLen = 29

// RawAdvertisement is one observed advertisement. ManufacturerData includes
// the little-endian vendor id.
type RawAdvertisement struct {
	Address          continuity.Address
	RSSI             int16
	ManufacturerData []byte
	Timestamp        time.Time
}

type AdvertiseRequest struct {
	// Payload is manufacturer data including the vendor id.
	Payload  []byte
	Interval time.Duration
	Address  continuity.Address
}

// ScanHandle streams advertisements until stopped or failed. The channel is
// closed when the scan ends; Err then reports why, nil after Stop.
type ScanHandle interface {
	Advertisements() <-chan RawAdvertisement
	Err() error
	Stop() error
}

type AdvertiseHandle interface {
	Stop(ctx context.Context) error
}

type Transport interface {
	Scan(ctx context.Context) (ScanHandle, error)
	Advertise(ctx context.Context, req AdvertiseRequest) (AdvertiseHandle, error)
	MaxPayloadLen() int
}
