package continuity

import (
	"fmt"

	"github.com/danmuck/continuityctl/internal/continuity/tlv"
)

// Message is a decoded record payload.
type Message interface {
	Tag() Tag
	// PayloadLen is the encoded payload size without the record header.
	PayloadLen() int
}

// Unknown carries a record payload verbatim.
type Unknown struct {
	Type Tag
	Data []byte
}

func (u *Unknown) Tag() Tag        { return u.Type }
func (u *Unknown) PayloadLen() int { return len(u.Data) }

// Record is one decoded type-length-value unit.
//
// Err is nil for cleanly decoded records. For a known tag whose payload failed
// validation it holds a *MalformedRecordError and Message is an *Unknown with
// the raw payload.
type Record struct {
	Tag     Tag
	Message Message
	Err     error
}

// NewRecord wraps m in a record tagged with m.Tag().
func NewRecord(m Message) Record {
	return Record{Tag: m.Tag(), Message: m}
}

func (r Record) Len() int {
	if r.Message == nil {
		return tlv.HeaderLen
	}
	return tlv.HeaderLen + r.Message.PayloadLen()
}

// DecodeRecord decodes the record at the start of b and reports bytes consumed.
func (r *Registry) DecodeRecord(b []byte) (Record, int, error) {
	f, n, err := tlv.ReadField(b)
	if err != nil {
		return Record{}, 0, fmt.Errorf("%w: %w", ErrTruncatedRecord, err)
	}
	tag := Tag(f.Type)
	codec, ok := r.Lookup(tag)
	if !ok {
		return Record{Tag: tag, Message: &Unknown{Type: tag, Data: f.Value}}, n, nil
	}
	msg, err := codec.Decode(f.Value)
	if err == nil && (msg == nil || msg.Tag() != tag) {
		err = fmt.Errorf("codec %s produced mismatched message", codec.Name)
	}
	if err != nil {
		return Record{
			Tag:     tag,
			Message: &Unknown{Type: tag, Data: f.Value},
			Err:     asMalformed(tag, err),
		}, n, nil
	}
	return Record{Tag: tag, Message: msg}, n, nil
}

// EncodeRecord is the byte-exact inverse of DecodeRecord.
func (r *Registry) EncodeRecord(rec Record) ([]byte, error) {
	return r.AppendRecord(make([]byte, 0, rec.Len()), rec)
}

func (r *Registry) AppendRecord(dst []byte, rec Record) ([]byte, error) {
	if rec.Message == nil {
		return dst, ErrNilMessage
	}
	var payload []byte
	tag := rec.Message.Tag()
	if u, ok := rec.Message.(*Unknown); ok {
		payload = u.Data
	} else {
		codec, ok := r.Lookup(tag)
		if !ok || codec.Encode == nil {
			return dst, fmt.Errorf("%w: %s", ErrUnregisteredTag, tag)
		}
		var err error
		payload, err = codec.Encode(rec.Message)
		if err != nil {
			return dst, asMalformed(tag, err)
		}
	}
	if len(payload) > tlv.MaxValueLen {
		return dst, fmt.Errorf("%w: tag=%s len=%d", ErrRecordTooLong, tag, len(payload))
	}
	out, err := tlv.AppendField(dst, tlv.Field{Type: uint8(tag), Value: payload})
	if err != nil {
		return dst, err
	}
	return out, nil
}

func asMalformed(tag Tag, err error) error {
	if me, ok := err.(*MalformedRecordError); ok {
		return me
	}
	return &MalformedRecordError{Tag: tag, Err: err}
}
