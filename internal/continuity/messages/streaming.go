package messages

import (
	"fmt"
	"net/netip"

	"github.com/danmuck/continuityctl/internal/continuity"
)

const (
	StreamingSourceLen     = 1
	StreamingTargetLen     = 2
	StreamingTargetAddrLen = 6
)

type StreamingRole uint8

const (
	RoleSource StreamingRole = iota
	RoleTarget
)

func (r StreamingRole) String() string {
	if r == RoleTarget {
		return "target"
	}
	return "source"
}

// Streaming is an AirPlay source or target announcement. Seed and Addr are
// only carried by targets; Addr is present on the wire when valid.
type Streaming struct {
	Role  StreamingRole
	Flags uint8
	Seed  uint8
	Addr  netip.Addr
}

func (m *Streaming) Tag() continuity.Tag {
	if m.Role == RoleTarget {
		return continuity.TagAirPlayTarget
	}
	return continuity.TagAirPlaySource
}

func (m *Streaming) PayloadLen() int {
	switch {
	case m.Role == RoleSource:
		return StreamingSourceLen
	case m.Addr.IsValid():
		return StreamingTargetAddrLen
	default:
		return StreamingTargetLen
	}
}

func decodeStreamingSource(b []byte) (continuity.Message, error) {
	if len(b) != StreamingSourceLen {
		return nil, continuity.Malformed(continuity.TagAirPlaySource, "expected %d byte, got %d", StreamingSourceLen, len(b))
	}
	return &Streaming{Role: RoleSource, Flags: b[0]}, nil
}

func decodeStreamingTarget(b []byte) (continuity.Message, error) {
	m := &Streaming{Role: RoleTarget}
	switch len(b) {
	case StreamingTargetAddrLen:
		m.Addr = netip.AddrFrom4([4]byte{b[2], b[3], b[4], b[5]})
	case StreamingTargetLen:
	default:
		return nil, continuity.Malformed(continuity.TagAirPlayTarget, "expected %d or %d bytes, got %d", StreamingTargetLen, StreamingTargetAddrLen, len(b))
	}
	m.Flags = b[0]
	m.Seed = b[1]
	return m, nil
}

func encodeStreaming(msg continuity.Message) ([]byte, error) {
	m, ok := msg.(*Streaming)
	if !ok {
		return nil, errMessageType(continuity.TagAirPlaySource, msg)
	}
	if m.Role == RoleSource {
		return []byte{m.Flags}, nil
	}
	out := []byte{m.Flags, m.Seed}
	if !m.Addr.IsValid() {
		return out, nil
	}
	if !m.Addr.Is4() {
		return nil, continuity.Malformed(continuity.TagAirPlayTarget, "address hint %s is not ipv4", m.Addr)
	}
	v4 := m.Addr.As4()
	return append(out, v4[:]...), nil
}

func errMessageType(tag continuity.Tag, msg continuity.Message) error {
	return fmt.Errorf("messages: %s codec cannot encode %T", tag, msg)
}
