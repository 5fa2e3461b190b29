package messages

import (
	"encoding/binary"
	"net/netip"

	"github.com/danmuck/continuityctl/internal/continuity"
)

const (
	PrintLen = 22

	PrintAddressType  = 0x74
	PrintResourcePath = 0x07
	PrintSecurity     = 0x6f
)

// Print is an AirPrint announcement. Address is carried as 16 bytes; IPv4
// printers use the mapped form.
type Print struct {
	AddressType  uint8
	ResourcePath uint8
	Security     uint8
	Port         uint16
	Address      netip.Addr
	Power        uint8
}

// NewPrint fills the capability bytes observed on emulated printers.
func NewPrint(addr netip.Addr, port uint16, power uint8) *Print {
	return &Print{
		AddressType:  PrintAddressType,
		ResourcePath: PrintResourcePath,
		Security:     PrintSecurity,
		Port:         port,
		Address:      netip.AddrFrom16(addr.As16()),
		Power:        power,
	}
}

func (m *Print) Tag() continuity.Tag { return continuity.TagAirPrint }
func (m *Print) PayloadLen() int     { return PrintLen }

func decodePrint(b []byte) (continuity.Message, error) {
	if len(b) != PrintLen {
		return nil, continuity.Malformed(continuity.TagAirPrint, "expected %d bytes, got %d", PrintLen, len(b))
	}
	var ip [16]byte
	copy(ip[:], b[5:21])
	return &Print{
		AddressType:  b[0],
		ResourcePath: b[1],
		Security:     b[2],
		Port:         binary.BigEndian.Uint16(b[3:5]),
		Address:      netip.AddrFrom16(ip),
		Power:        b[21],
	}, nil
}

func encodePrint(msg continuity.Message) ([]byte, error) {
	m, ok := msg.(*Print)
	if !ok {
		return nil, errMessageType(continuity.TagAirPrint, msg)
	}
	out := make([]byte, PrintLen)
	out[0] = m.AddressType
	out[1] = m.ResourcePath
	out[2] = m.Security
	binary.BigEndian.PutUint16(out[3:5], m.Port)
	if m.Address.IsValid() {
		ip := m.Address.As16()
		copy(out[5:21], ip[:])
	}
	out[21] = m.Power
	return out, nil
}
