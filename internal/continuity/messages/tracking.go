package messages

import (
	"github.com/danmuck/continuityctl/internal/continuity"
)

const (
	TrackingLen       = 25
	KeyFragmentLen    = 22
	TrackingPublicKey = 28
)

type BatteryLevel uint8

const (
	BatteryFull BatteryLevel = iota
	BatteryMedium
	BatteryLow
	BatteryCritical
)

func (b BatteryLevel) String() string {
	switch b {
	case BatteryFull:
		return "full"
	case BatteryMedium:
		return "medium"
	case BatteryLow:
		return "low"
	default:
		return "critical"
	}
}

// Tracking is a FindMy offline-finding record. The first six key bytes travel
// as the advertising address, so PublicKey needs the sender address.
type Tracking struct {
	Status      uint8
	KeyFragment [KeyFragmentLen]byte
	KeyBits     uint8
	Hint        uint8
}

// NewTrackingFromKey splits a 28-byte public key into the record and the
// static random address that must carry it.
func NewTrackingFromKey(key [TrackingPublicKey]byte, status uint8) (*Tracking, continuity.Address) {
	m := &Tracking{Status: status, KeyBits: key[0] >> 6}
	copy(m.KeyFragment[:], key[6:])
	var addr continuity.Address
	copy(addr[:], key[:6])
	addr[0] |= 0xC0
	return m, addr
}

func (m *Tracking) Tag() continuity.Tag { return continuity.TagFindMy }
func (m *Tracking) PayloadLen() int     { return TrackingLen }

func (m *Tracking) Battery() BatteryLevel {
	return BatteryLevel(m.Status >> 6)
}

func (m *Tracking) PublicKey(addr continuity.Address) [TrackingPublicKey]byte {
	var key [TrackingPublicKey]byte
	copy(key[:6], addr[:])
	key[0] = addr[0]&0x3F | (m.KeyBits&0x03)<<6
	copy(key[6:], m.KeyFragment[:])
	return key
}

func decodeTracking(b []byte) (continuity.Message, error) {
	if len(b) != TrackingLen {
		return nil, continuity.Malformed(continuity.TagFindMy, "expected %d bytes, got %d", TrackingLen, len(b))
	}
	m := &Tracking{Status: b[0], KeyBits: b[23], Hint: b[24]}
	copy(m.KeyFragment[:], b[1:23])
	return m, nil
}

func encodeTracking(msg continuity.Message) ([]byte, error) {
	m, ok := msg.(*Tracking)
	if !ok {
		return nil, errMessageType(continuity.TagFindMy, msg)
	}
	out := make([]byte, 0, TrackingLen)
	out = append(out, m.Status)
	out = append(out, m.KeyFragment[:]...)
	return append(out, m.KeyBits, m.Hint), nil
}
