package continuity

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/danmuck/continuityctl/internal/testutil/testlog"
)

const testTag Tag = 0x42

type pair struct {
	A, B uint8
}

func (p *pair) Tag() Tag        { return testTag }
func (p *pair) PayloadLen() int { return 2 }

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := reg.Register(testTag, Codec{
		Name: "pair",
		Decode: func(b []byte) (Message, error) {
			if len(b) != 2 {
				return nil, Malformed(testTag, "expected 2 bytes, got %d", len(b))
			}
			return &pair{A: b[0], B: b[1]}, nil
		},
		Encode: func(m Message) ([]byte, error) {
			p, ok := m.(*pair)
			if !ok {
				return nil, fmt.Errorf("unexpected message %T", m)
			}
			return []byte{p.A, p.B}, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Seal()
	return reg
}

func TestUnknownTagPassthrough(t *testing.T) {
	testlog.Start(t)
	reg := testRegistry(t)
	in := []byte{0xEE, 0x02, 0x01, 0x02}

	rec, n, err := reg.DecodeRecord(in)
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if n != len(in) {
		t.Fatalf("expected %d bytes consumed, got %d", len(in), n)
	}
	u, ok := rec.Message.(*Unknown)
	if !ok {
		t.Fatalf("expected *Unknown, got %T", rec.Message)
	}
	if u.Type != 0xEE || !bytes.Equal(u.Data, []byte{0x01, 0x02}) {
		t.Fatalf("unexpected unknown record: %+v", u)
	}
	if rec.Err != nil {
		t.Fatalf("expected no record error, got %v", rec.Err)
	}
	out, err := reg.EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("expected %x, got %x", in, out)
	}
}

func TestPartialDecodeReturnsLeadingRecords(t *testing.T) {
	testlog.Start(t)
	reg := testRegistry(t)
	payload := []byte{
		0x42, 0x02, 0x0A, 0x0B,
		0xEE, 0x01, 0xFF,
		0x42,
	}

	frame, err := reg.DecodeFrame(payload)
	if !errors.Is(err, ErrTruncatedRecord) {
		t.Fatalf("expected ErrTruncatedRecord, got %v", err)
	}
	if len(frame.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(frame.Records))
	}
	if p, ok := frame.Records[0].Message.(*pair); !ok || p.A != 0x0A || p.B != 0x0B {
		t.Fatalf("unexpected first record: %+v", frame.Records[0])
	}
	if frame.Records[1].Tag != 0xEE {
		t.Fatalf("expected second record tag 0xee, got %s", frame.Records[1].Tag)
	}
}

func TestDeclaredLengthBeyondBufferIsTruncated(t *testing.T) {
	testlog.Start(t)
	reg := testRegistry(t)
	frame, err := reg.DecodeFrame([]byte{0x42, 0x09, 0x00})
	if !errors.Is(err, ErrTruncatedRecord) {
		t.Fatalf("expected ErrTruncatedRecord, got %v", err)
	}
	if len(frame.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(frame.Records))
	}
}

func TestMalformedKnownTagDegradesToUnknown(t *testing.T) {
	testlog.Start(t)
	reg := testRegistry(t)
	payload := []byte{
		0x42, 0x01, 0x0A,
		0x42, 0x02, 0x01, 0x02,
	}

	frame, err := reg.DecodeFrame(payload)
	if err != nil {
		t.Fatalf("expected malformed record to be non-fatal, got %v", err)
	}
	if len(frame.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(frame.Records))
	}
	bad := frame.Records[0]
	if !errors.Is(bad.Err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", bad.Err)
	}
	var me *MalformedRecordError
	if !errors.As(bad.Err, &me) || me.Tag != testTag {
		t.Fatalf("expected MalformedRecordError for tag 0x42, got %v", bad.Err)
	}
	if _, ok := bad.Message.(*Unknown); !ok {
		t.Fatalf("expected fallback *Unknown, got %T", bad.Message)
	}
	if len(frame.Malformed()) != 1 {
		t.Fatalf("expected 1 malformed entry, got %d", len(frame.Malformed()))
	}

	out, err := reg.EncodeFrame(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("expected %x, got %x", payload, out)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := testRegistry(t)
	frame := Frame{Records: []Record{
		NewRecord(&pair{A: 1, B: 2}),
		NewRecord(&Unknown{Type: 0x10, Data: []byte{0x05, 0x18, 0x00}}),
		NewRecord(&pair{A: 3, B: 4}),
	}}

	b, err := reg.EncodeFrame(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if len(b) != frame.Len() {
		t.Fatalf("expected encoded len %d, got %d", frame.Len(), len(b))
	}
	got, err := reg.DecodeFrame(b)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if !reflect.DeepEqual(got, frame) {
		t.Fatalf("expected %+v, got %+v", frame, got)
	}
}

func TestEncodeRecordRejections(t *testing.T) {
	testlog.Start(t)
	reg := testRegistry(t)

	_, err := reg.EncodeRecord(Record{Tag: 0xEE, Message: &Unknown{Type: 0xEE, Data: make([]byte, 256)}})
	if !errors.Is(err, ErrRecordTooLong) {
		t.Fatalf("expected ErrRecordTooLong, got %v", err)
	}
	_, err = NewRegistry().EncodeRecord(NewRecord(&pair{}))
	if !errors.Is(err, ErrUnregisteredTag) {
		t.Fatalf("expected ErrUnregisteredTag, got %v", err)
	}
	_, err = reg.EncodeRecord(Record{})
	if !errors.Is(err, ErrNilMessage) {
		t.Fatalf("expected ErrNilMessage, got %v", err)
	}
}

func TestRegistryRegistrationRules(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	codec := Codec{
		Decode: func(b []byte) (Message, error) { return &Unknown{Type: 0x01, Data: b}, nil },
		Encode: func(m Message) ([]byte, error) { return m.(*Unknown).Data, nil },
	}
	if err := reg.Register(0x01, codec); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(0x01, codec); !errors.Is(err, ErrTagRegistered) {
		t.Fatalf("expected ErrTagRegistered, got %v", err)
	}
	if err := reg.Register(0x02, Codec{}); !errors.Is(err, ErrInvalidCodec) {
		t.Fatalf("expected ErrInvalidCodec, got %v", err)
	}
	reg.Seal()
	if err := reg.Register(0x03, codec); !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("expected ErrRegistrySealed, got %v", err)
	}
	if tags := reg.Tags(); len(tags) != 1 || tags[0] != 0x01 {
		t.Fatalf("unexpected tags: %v", tags)
	}
	if c, ok := reg.Lookup(0x01); !ok || c.Name != "0x01" {
		t.Fatalf("expected default codec name 0x01, got %q ok=%v", c.Name, ok)
	}
}

func TestManufacturerDataVendor(t *testing.T) {
	testlog.Start(t)
	reg := testRegistry(t)
	md := JoinManufacturerData(VendorApple, []byte{0x42, 0x02, 0x01, 0x02})
	if md[0] != 0x4C || md[1] != 0x00 {
		t.Fatalf("expected little-endian vendor prefix, got %x", md[:2])
	}

	frame, err := ParseManufacturerData(reg, VendorApple, md)
	if err != nil {
		t.Fatalf("parse manufacturer data: %v", err)
	}
	if len(frame.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(frame.Records))
	}

	_, err = ParseManufacturerData(reg, VendorApple, JoinManufacturerData(0x0006, nil))
	if !errors.Is(err, ErrVendorMismatch) {
		t.Fatalf("expected ErrVendorMismatch, got %v", err)
	}
	_, _, err = SplitManufacturerData([]byte{0x4C})
	if !errors.Is(err, ErrShortManufacturerData) {
		t.Fatalf("expected ErrShortManufacturerData, got %v", err)
	}
}

func TestAddressParseAndFormat(t *testing.T) {
	testlog.Start(t)
	a, err := ParseAddress("c4:01:02:03:04:0f")
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if a.String() != "C4:01:02:03:04:0F" {
		t.Fatalf("unexpected address string %q", a.String())
	}
	if !a.IsStaticRandom() {
		t.Fatalf("expected static random address")
	}
	if _, err := ParseAddress("C4:01:02"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestHashIdentifierTruncatesSHA256(t *testing.T) {
	testlog.Start(t)
	// sha256("abc") = ba7816bf...
	d := HashIdentifier([]byte("abc"))
	if d != (Digest{0xBA, 0x78}) {
		t.Fatalf("expected ba78, got %s", d)
	}
}

func TestTagFamilyNames(t *testing.T) {
	testlog.Start(t)
	if fam, ok := TagFindMy.Family(); !ok || fam != "findmy" {
		t.Fatalf("expected findmy, got %q ok=%v", fam, ok)
	}
	if _, ok := Tag(0x7E).Family(); ok {
		t.Fatalf("expected unsupported tag to have no family")
	}
	if s := Tag(0x7E).String(); s != "0x7e" {
		t.Fatalf("expected 0x7e, got %v", s)
	}
}
