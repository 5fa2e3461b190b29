package continuity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	AddressLen = 6
	DigestLen  = 2
)

var ErrInvalidAddress = errors.New("continuity: invalid address")

// Address is a 48-bit radio address in display order (most significant byte first).
type Address [AddressLen]byte

func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != AddressLen {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a[i] = b[0]
	}
	return a, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// IsStaticRandom reports whether the two most significant bits are 0b11.
func (a Address) IsStaticRandom() bool {
	return a[0]&0xC0 == 0xC0
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Digest is a truncated SHA-256 of a contact identifier.
type Digest [DigestLen]byte

// HashIdentifier returns the wire-width digest of id.
func HashIdentifier(id []byte) Digest {
	sum := sha256.Sum256(id)
	var d Digest
	copy(d[:], sum[:DigestLen])
	return d
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
