package rawimage

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the toolkit reports.
type Kind uint8

const (
	KindDecode Kind = iota + 1
	KindEncode
	KindProcess
	KindResize
	KindCropOutOfBounds
	KindNullPtr
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindProcess:
		return "process"
	case KindResize:
		return "resize"
	case KindCropOutOfBounds:
		return "crop out of bounds"
	case KindNullPtr:
		return "null pointer"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Error is the single error type returned across package boundaries.
// Op is set for KindProcess, Path for KindIO, Format where a codec or
// operation was involved.
type Error struct {
	Kind   Kind
	Op     string
	Format Format
	Path   string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDecode:
		return fmt.Sprintf("failed to decode %s image", e.Format)
	case KindEncode:
		return fmt.Sprintf("failed to encode image as %s", e.Format)
	case KindProcess:
		return fmt.Sprintf("cannot %s %s", e.Op, e.Format)
	case KindResize:
		return "failed to resize image"
	case KindCropOutOfBounds:
		return "crop out of bounds"
	case KindNullPtr:
		return "received null pointer"
	case KindIO:
		return fmt.Sprintf("failed to write %s", e.Path)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels such as
// ErrCropOutOfBounds work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrDecode          = &Error{Kind: KindDecode}
	ErrEncode          = &Error{Kind: KindEncode}
	ErrProcess         = &Error{Kind: KindProcess}
	ErrResize          = &Error{Kind: KindResize}
	ErrCropOutOfBounds = &Error{Kind: KindCropOutOfBounds}
	ErrNullPtr         = &Error{Kind: KindNullPtr}
	ErrIO              = &Error{Kind: KindIO}
)

func DecodeError(format Format, cause error) error {
	return &Error{Kind: KindDecode, Format: format, Err: cause}
}

func EncodeError(format Format, cause error) error {
	return &Error{Kind: KindEncode, Format: format, Err: cause}
}

// ProcessError reports an operation requested on a format it cannot handle,
// e.g. ProcessError("resize", JPEG).
func ProcessError(op string, format Format) error {
	return &Error{Kind: KindProcess, Op: op, Format: format}
}

func ResizeError(cause error) error {
	return &Error{Kind: KindResize, Err: cause}
}

func CropOutOfBoundsError() error {
	return &Error{Kind: KindCropOutOfBounds}
}

func NullPtrError() error {
	return &Error{Kind: KindNullPtr}
}

func IOError(path string, cause error) error {
	return &Error{Kind: KindIO, Path: path, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
