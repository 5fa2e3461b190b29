package messages

import "github.com/danmuck/continuityctl/internal/continuity"

const (
	FileShareLen     = 18
	FileShareVersion = 0x01
)

// FileShare is an AirDrop discoverability record.
type FileShare struct {
	Reserved [8]byte
	Version  uint8
	AppleID  continuity.Digest
	Phone    continuity.Digest
	Email    continuity.Digest
	Email2   continuity.Digest
	Flags    uint8
}

// NewFileShare fills the digest slots in order. When exactly three digests are
// given the email digest is repeated into the second email slot.
func NewFileShare(digests ...continuity.Digest) *FileShare {
	m := &FileShare{Version: FileShareVersion}
	slots := []*continuity.Digest{&m.AppleID, &m.Phone, &m.Email, &m.Email2}
	for i := 0; i < len(digests) && i < len(slots); i++ {
		*slots[i] = digests[i]
	}
	if len(digests) == 3 {
		m.Email2 = m.Email
	}
	return m
}

func (m *FileShare) Tag() continuity.Tag { return continuity.TagAirDrop }
func (m *FileShare) PayloadLen() int     { return FileShareLen }

func (m *FileShare) Digests() []continuity.Digest {
	return []continuity.Digest{m.AppleID, m.Phone, m.Email, m.Email2}
}

func decodeFileShare(b []byte) (continuity.Message, error) {
	if len(b) != FileShareLen {
		return nil, continuity.Malformed(continuity.TagAirDrop, "expected %d bytes, got %d", FileShareLen, len(b))
	}
	m := &FileShare{Version: b[8], Flags: b[17]}
	copy(m.Reserved[:], b[0:8])
	copy(m.AppleID[:], b[9:11])
	copy(m.Phone[:], b[11:13])
	copy(m.Email[:], b[13:15])
	copy(m.Email2[:], b[15:17])
	return m, nil
}

func encodeFileShare(msg continuity.Message) ([]byte, error) {
	m, ok := msg.(*FileShare)
	if !ok {
		return nil, errMessageType(continuity.TagAirDrop, msg)
	}
	out := make([]byte, 0, FileShareLen)
	out = append(out, m.Reserved[:]...)
	out = append(out, m.Version)
	for _, d := range m.Digests() {
		out = append(out, d[:]...)
	}
	return append(out, m.Flags), nil
}
