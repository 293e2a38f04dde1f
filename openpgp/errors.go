package openpgp

import "github.com/pkg/errors"

// Kind enumerates the error categories the core reports. The HTTP/socket
// front-ends (out of scope here) convert Kind to wire-level responses;
// NotFound becomes a "key not found" reply, everything else collapses to a
// generic failure.
type Kind int

const (
	// KindNone is the zero value; never compared against.
	KindNone Kind = iota
	KindNotFound
	KindInvalidParam
	KindInvalidPkt
	KindUnknownVer
	KindUnsupportedFeature
	KindBadSignature
	KindWeakSignature
	KindIoError
	KindDeadlock
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidParam:
		return "invalid parameter"
	case KindInvalidPkt:
		return "invalid packet"
	case KindUnknownVer:
		return "unknown version"
	case KindUnsupportedFeature:
		return "unsupported feature"
	case KindBadSignature:
		return "bad signature"
	case KindWeakSignature:
		return "weak signature"
	case KindIoError:
		return "io error"
	case KindDeadlock:
		return "deadlock"
	default:
		return "unknown error"
	}
}

// Error is a typed sentinel carrying a Kind.
// Lower layers wrap it with github.com/pkg/errors so callers can still
// recover the Kind with errors.Cause/errors.As while getting a stack trace
// at the point of wrapping.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// NewError constructs an *Error with a fixed message.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf is the formatted counterpart of NewError.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: errors.Errorf(format, args...).Error()}
}

// KindOf unwraps err (following Cause chains) to find its Kind, defaulting
// to KindIoError for errors that didn't originate here.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	cause := errors.Cause(err)
	var oe2 *Error
	if errors.As(cause, &oe2) {
		return oe2.Kind
	}
	return KindIoError
}

var (
	// ErrInvalidPkt is returned by the codec for malformed packet headers.
	ErrInvalidPkt = NewError(KindInvalidPkt, "malformed packet")
	// ErrUnsupportedFeature is returned for partial-length / indeterminate
	// length packets.
	ErrUnsupportedFeature = NewError(KindUnsupportedFeature, "unsupported packet framing")
)
