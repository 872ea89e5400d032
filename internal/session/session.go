// Package session is the stateful surface behind the C API. A Context
// carries default encode options and the last error; every operation
// reports a Status and, on failure, leaves the detailed error in the
// Context for later retrieval.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rkusa/wimg/internal/codec"
	"github.com/rkusa/wimg/internal/rawimage"
	"github.com/rkusa/wimg/internal/transform"
)

// Status is the result code of a boundary operation.
type Status int32

const (
	OK      Status = 0
	NullPtr Status = -1
	Decode  Status = -2
	Encode  Status = -3
	Resize  Status = -4
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case NullPtr:
		return "null pointer"
	case Decode:
		return "decode"
	case Encode:
		return "encode"
	case Resize:
		return "resize"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Context is safe for concurrent use, though the last error is shared by
// all callers of the same Context.
type Context struct {
	mu       sync.Mutex
	lastErr  error
	opts     codec.Options
	registry *codec.Registry
}

// New returns a Context with default encode options.
func New() *Context {
	return &Context{
		opts:     codec.DefaultOptions(),
		registry: codec.NewRegistry(),
	}
}

// Options returns a copy of the current encode options.
func (c *Context) Options() codec.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetJPEGQuality sets the default JPEG quality, clamped to 0-100.
func (c *Context) SetJPEGQuality(q int) {
	c.update(func(o *codec.Options) { o.JPEG.Quality = q })
}

// SetWebPQuality sets the default WEBP quality, clamped to 0-100.
func (c *Context) SetWebPQuality(q int) {
	c.update(func(o *codec.Options) { o.WebP.Quality = q })
}

// SetAVIFQuality sets the default AVIF quality, clamped to 0-100.
func (c *Context) SetAVIFQuality(q int) {
	c.update(func(o *codec.Options) { o.AVIF.Quality = q })
}

// SetAVIFSpeed sets the default AVIF speed, clamped to 1-10.
func (c *Context) SetAVIFSpeed(s int) {
	c.update(func(o *codec.Options) { o.AVIF.Speed = s })
}

func (c *Context) update(fn func(*codec.Options)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.opts)
	c.opts = c.opts.Normalize()
}

// LastError returns the error of the most recent failed operation.
func (c *Context) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError resets the error slot.
func (c *Context) ClearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}

// LastErrorMessage renders the last error followed by its numbered causes:
//
//	failed to decode PNG image
//
//	Caused by:
//	    0: animated PNGs are not supported
//
// It returns "" when no error is stored.
func (c *Context) LastErrorMessage() string {
	err := c.LastError()
	if err == nil {
		return ""
	}
	return FormatError(err)
}

// FormatError renders err and its unwrap chain, one line per level.
// Levels that only annotate their cause (stack traces) are skipped.
func FormatError(err error) string {
	var lines []string
	for ; err != nil; err = errors.Unwrap(err) {
		msg := ownMessage(err)
		if msg == "" || (len(lines) > 0 && lines[len(lines)-1] == msg) {
			continue
		}
		lines = append(lines, msg)
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lines[0])
	if len(lines) > 1 {
		b.WriteString("\n\nCaused by:")
		for i, msg := range lines[1:] {
			fmt.Fprintf(&b, "\n    %d: %s", i, msg)
		}
	}
	return b.String()
}

// ownMessage strips the ": <cause>" suffix that wrapping errors append.
func ownMessage(err error) string {
	msg := err.Error()
	next := errors.Unwrap(err)
	if next == nil {
		return msg
	}
	inner := next.Error()
	if msg == inner {
		return ""
	}
	return strings.TrimSuffix(msg, ": "+inner)
}

func (c *Context) fail(err error, status Status) Status {
	if rawimage.KindOf(err) == rawimage.KindNullPtr {
		status = NullPtr
	}
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	return status
}

// guard converts a panic escaping an operation into a stored error.
func (c *Context) guard(status Status, out **rawimage.Image, st *Status) {
	if r := recover(); r != nil {
		*out = nil
		*st = c.fail(fmt.Errorf("internal error: %v", r), status)
	}
}

// Decode decodes data in the given container format.
func (c *Context) Decode(format rawimage.Format, data []byte) (img *rawimage.Image, st Status) {
	defer c.guard(Decode, &img, &st)

	if data == nil {
		return nil, c.fail(rawimage.NullPtrError(), NullPtr)
	}
	dec := c.registry.Decoder(format)
	if dec == nil {
		return nil, c.fail(rawimage.ProcessError("decode", format), Decode)
	}
	img, err := dec.Decode(data)
	if err != nil {
		return nil, c.fail(err, Decode)
	}
	return img, OK
}

// Encode encodes img into the given container format using the context's
// options.
func (c *Context) Encode(format rawimage.Format, img *rawimage.Image) (out *rawimage.Image, st Status) {
	defer c.guard(Encode, &out, &st)

	if img.Released() {
		return nil, c.fail(rawimage.NullPtrError(), NullPtr)
	}
	enc := c.registry.Get(format)
	if enc == nil {
		return nil, c.fail(rawimage.ProcessError("encode as", format), Encode)
	}
	out, err := enc.Encode(img, c.Options())
	if err != nil {
		return nil, c.fail(err, Encode)
	}
	return out, OK
}

// Resize scales img; see transform.Resize.
func (c *Context) Resize(img *rawimage.Image, width, height uint32, maintainAspect bool) (out *rawimage.Image, st Status) {
	defer c.guard(Resize, &out, &st)

	if img.Released() {
		return nil, c.fail(rawimage.NullPtrError(), NullPtr)
	}
	out, err := transform.Resize(img, width, height, maintainAspect)
	if err != nil {
		return nil, c.fail(err, Resize)
	}
	return out, OK
}

// Seed returns the hash seed of the codec for format, or of the resize
// stage for raw formats.
func Seed(format rawimage.Format) uint64 {
	if format.IsRaw() {
		return transform.Seed()
	}
	if c := codec.NewRegistry().Get(format); c != nil {
		return c.Seed()
	}
	return 0
}
