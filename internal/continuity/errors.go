package continuity

import (
	"errors"
	"fmt"
)

var (
	ErrTruncatedRecord       = errors.New("continuity: truncated record")
	ErrMalformedRecord       = errors.New("continuity: malformed record")
	ErrRecordTooLong         = errors.New("continuity: record payload exceeds 255 bytes")
	ErrNilMessage            = errors.New("continuity: record has no message")
	ErrUnregisteredTag       = errors.New("continuity: no codec registered for tag")
	ErrTagRegistered         = errors.New("continuity: tag already registered")
	ErrRegistrySealed        = errors.New("continuity: registry is sealed")
	ErrInvalidCodec          = errors.New("continuity: invalid codec")
	ErrShortManufacturerData = errors.New("continuity: manufacturer data shorter than vendor id")
	ErrVendorMismatch        = errors.New("continuity: vendor id mismatch")
)

// MalformedRecordError reports a known tag whose payload failed validation.
type MalformedRecordError struct {
	Tag Tag
	Err error
}

func (e *MalformedRecordError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("continuity: malformed record tag=%s", e.Tag)
	}
	return fmt.Sprintf("continuity: malformed record tag=%s: %v", e.Tag, e.Err)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// Malformed builds a payload validation error for codecs.
func Malformed(tag Tag, format string, args ...any) error {
	return &MalformedRecordError{Tag: tag, Err: fmt.Errorf(format, args...)}
}
