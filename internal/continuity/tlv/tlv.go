package tlv

import (
	"errors"
	"fmt"
)

const (
	HeaderLen   = 2
	MaxValueLen = 255
)

var (
	ErrShortHeader  = errors.New("tlv: short field header")
	ErrShortValue   = errors.New("tlv: short field value")
	ErrValueTooLong = errors.New("tlv: value exceeds 255 bytes")
)

// Field is one `[type:1][length:1][value:length]` unit.
type Field struct {
	Type  uint8
	Value []byte
}

// ReadField decodes the field at the start of b and reports bytes consumed.
// The declared length is checked against the remaining buffer before slicing.
func ReadField(b []byte) (Field, int, error) {
	if len(b) < HeaderLen {
		return Field{}, 0, ErrShortHeader
	}
	typeID := b[0]
	l := int(b[1])
	if len(b)-HeaderLen < l {
		return Field{}, 0, fmt.Errorf("%w: type=0x%02x declared=%d remaining=%d", ErrShortValue, typeID, l, len(b)-HeaderLen)
	}
	val := make([]byte, l)
	copy(val, b[HeaderLen:HeaderLen+l])
	return Field{Type: typeID, Value: val}, HeaderLen + l, nil
}

// AppendField appends the encoding of f to dst.
func AppendField(dst []byte, f Field) ([]byte, error) {
	if len(f.Value) > MaxValueLen {
		return dst, ErrValueTooLong
	}
	dst = append(dst, f.Type, byte(len(f.Value)))
	return append(dst, f.Value...), nil
}
