package transport

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindFailed ErrorKind = iota
	KindAdapterUnavailable
	KindPermissionDenied
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindAdapterUnavailable:
		return "adapter_unavailable"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnsupported:
		return "unsupported"
	default:
		return "failed"
	}
}

// Error is a radio stack failure. Callers surface it verbatim.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a *Error.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var te *Error
	if !errors.As(err, &te) {
		return KindFailed, false
	}
	return te.Kind, true
}
