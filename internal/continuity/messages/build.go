package messages

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/continuityctl/internal/continuity"
)

var (
	ErrUnknownFamily = errors.New("messages: unknown family")
	ErrInvalidParam  = errors.New("messages: invalid parameter")
)

// DigestSource hashes contact identifiers and supplies the configured contact
// digests used when an airdrop request names no identifiers.
type DigestSource interface {
	DigestFor(id []byte) continuity.Digest
	ContactDigests() []continuity.Digest
}

type hashOnly struct{}

func (hashOnly) DigestFor(id []byte) continuity.Digest { return continuity.HashIdentifier(id) }
func (hashOnly) ContactDigests() []continuity.Digest   { return nil }

// Request is a built message plus the advertising address it requires, if any.
type Request struct {
	Message continuity.Message
	Address *continuity.Address
}

// Families lists the names accepted by Build.
func Families() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build constructs a message from string parameters.
func Build(family string, params map[string]string, src DigestSource) (continuity.Message, error) {
	req, err := BuildRequest(family, params, src)
	if err != nil {
		return nil, err
	}
	return req.Message, nil
}

// BuildRequest is Build plus the advertising address the message requires. A
// nil src hashes identifiers without configured contacts.
func BuildRequest(family string, params map[string]string, src DigestSource) (Request, error) {
	fn, ok := builders[strings.ToLower(strings.TrimSpace(family))]
	if !ok {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	if src == nil {
		src = hashOnly{}
	}
	p := paramReader{values: params, seen: make(map[string]bool)}
	req, err := fn(&p, src)
	if err != nil {
		return Request{}, err
	}
	if err := p.unused(); err != nil {
		return Request{}, err
	}
	return req, nil
}

var builders = map[string]func(*paramReader, DigestSource) (Request, error){
	"airdrop":        buildFileShare,
	"airplay-source": buildStreamingSource,
	"airplay-target": buildStreamingTarget,
	"airprint":       buildPrint,
	"findmy":         buildTracking,
}

func buildFileShare(p *paramReader, src DigestSource) (Request, error) {
	var digests []continuity.Digest
	for _, key := range []string{"appleid", "phone", "email", "email2"} {
		if v, ok := p.get(key); ok {
			digests = append(digests, src.DigestFor([]byte(v)))
		}
	}
	if len(digests) == 0 {
		digests = src.ContactDigests()
	}
	m := NewFileShare(digests...)
	flags, err := p.uint8("flags", 0)
	if err != nil {
		return Request{}, err
	}
	m.Flags = flags
	return Request{Message: m}, nil
}

func buildStreamingSource(p *paramReader, _ DigestSource) (Request, error) {
	flags, err := p.uint8("flags", 0x00)
	if err != nil {
		return Request{}, err
	}
	return Request{Message: &Streaming{Role: RoleSource, Flags: flags}}, nil
}

func buildStreamingTarget(p *paramReader, _ DigestSource) (Request, error) {
	flags, err := p.uint8("flags", 0x03)
	if err != nil {
		return Request{}, err
	}
	seed, err := p.uint8("seed", 0x07)
	if err != nil {
		return Request{}, err
	}
	m := &Streaming{Role: RoleTarget, Flags: flags, Seed: seed}
	if v, ok := p.get("ip"); ok {
		addr, err := netip.ParseAddr(v)
		if err != nil || !addr.Unmap().Is4() {
			return Request{}, fmt.Errorf("%w: ip=%q must be ipv4", ErrInvalidParam, v)
		}
		m.Addr = addr.Unmap()
	}
	return Request{Message: m}, nil
}

func buildPrint(p *paramReader, _ DigestSource) (Request, error) {
	addr := netip.IPv6Unspecified()
	if v, ok := p.get("ip"); ok {
		parsed, err := netip.ParseAddr(v)
		if err != nil {
			return Request{}, fmt.Errorf("%w: ip=%q", ErrInvalidParam, v)
		}
		addr = parsed
	}
	port, err := p.uint16("port", 631)
	if err != nil {
		return Request{}, err
	}
	power, err := p.uint8("power", 0)
	if err != nil {
		return Request{}, err
	}
	m := NewPrint(addr, port, power)
	if m.AddressType, err = p.uint8("address_type", PrintAddressType); err != nil {
		return Request{}, err
	}
	if m.ResourcePath, err = p.uint8("resource_path", PrintResourcePath); err != nil {
		return Request{}, err
	}
	if m.Security, err = p.uint8("security", PrintSecurity); err != nil {
		return Request{}, err
	}
	return Request{Message: m}, nil
}

func buildTracking(p *paramReader, _ DigestSource) (Request, error) {
	raw, ok := p.get("key")
	if !ok {
		return Request{}, fmt.Errorf("%w: key is required", ErrInvalidParam)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil || len(b) != TrackingPublicKey {
		return Request{}, fmt.Errorf("%w: key must be %d hex-encoded bytes", ErrInvalidParam, TrackingPublicKey)
	}
	status, err := p.uint8("status", 0)
	if err != nil {
		return Request{}, err
	}
	hint, err := p.uint8("hint", 0)
	if err != nil {
		return Request{}, err
	}
	var key [TrackingPublicKey]byte
	copy(key[:], b)
	m, addr := NewTrackingFromKey(key, status)
	m.Hint = hint
	return Request{Message: m, Address: &addr}, nil
}

type paramReader struct {
	values map[string]string
	seen   map[string]bool
}

func (p *paramReader) get(key string) (string, bool) {
	p.seen[key] = true
	v, ok := p.values[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *paramReader) uint8(key string, def uint8) (uint8, error) {
	v, err := p.uint(key, uint64(def), 8)
	return uint8(v), err
}

func (p *paramReader) uint16(key string, def uint16) (uint16, error) {
	v, err := p.uint(key, uint64(def), 16)
	return uint16(v), err
}

func (p *paramReader) uint(key string, def uint64, bits int) (uint64, error) {
	raw, ok := p.get(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParam, key, raw)
	}
	return v, nil
}

func (p *paramReader) unused() error {
	var extra []string
	for key := range p.values {
		if !p.seen[key] {
			extra = append(extra, key)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fmt.Errorf("%w: unsupported %s", ErrInvalidParam, strings.Join(extra, ","))
}
