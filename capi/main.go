// Command capi builds the C shared library:
//
//	go build -buildmode=c-shared -o libwimg.so ./capi
//
// Contexts and images cross the boundary as opaque handles. Functions
// returning int32_t report a session status (0 on success) and leave the
// detailed error in the context.
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/rkusa/wimg/internal/rawimage"
	"github.com/rkusa/wimg/internal/session"
)

func main() {}

// value resolves a handle, tolerating zero and stale handles.
func value[T any](h C.uintptr_t) (v T, ok bool) {
	if h == 0 {
		return v, false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	v, ok = cgo.Handle(h).Value().(T)
	return v, ok
}

func release(h C.uintptr_t) {
	if h == 0 {
		return
	}
	defer func() { _ = recover() }()
	cgo.Handle(h).Delete()
}

func status(s session.Status) C.int32_t { return C.int32_t(s) }

func goBytes(data *C.uint8_t, length C.size_t) []byte {
	if data == nil {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(data), C.int(length))
}

func newImage(img *rawimage.Image, out *C.uintptr_t) C.int32_t {
	*out = C.uintptr_t(cgo.NewHandle(img))
	return status(session.OK)
}

//export wimg_context_create
func wimg_context_create() C.uintptr_t {
	return C.uintptr_t(cgo.NewHandle(session.New()))
}

//export wimg_context_destroy
func wimg_context_destroy(ctx C.uintptr_t) {
	release(ctx)
}

// wimg_image_create copies length bytes from data. It returns 0 when the
// buffer does not match the format and dimensions.
//
//export wimg_image_create
func wimg_image_create(data *C.uint8_t, length C.size_t, format C.uint8_t, width, height C.uint32_t) C.uintptr_t {
	buf := goBytes(data, length)
	if buf == nil {
		return 0
	}
	img, err := rawimage.New(buf, rawimage.Format(format), uint32(width), uint32(height))
	if err != nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(img))
}

//export wimg_image_destroy
func wimg_image_destroy(img C.uintptr_t) {
	if v, ok := value[*rawimage.Image](img); ok {
		v.Release()
	}
	release(img)
}

//export wimg_image_info
func wimg_image_info(img C.uintptr_t, format *C.uint8_t, width, height *C.uint32_t, length *C.size_t) C.int32_t {
	v, ok := value[*rawimage.Image](img)
	if !ok || v.Released() {
		return status(session.NullPtr)
	}
	if format != nil {
		*format = C.uint8_t(v.Format())
	}
	if width != nil {
		*width = C.uint32_t(v.Width())
	}
	if height != nil {
		*height = C.uint32_t(v.Height())
	}
	if length != nil {
		*length = C.size_t(v.Len())
	}
	return status(session.OK)
}

// wimg_image_copy writes the image buffer into dst, which must hold at
// least the length reported by wimg_image_info.
//
//export wimg_image_copy
func wimg_image_copy(img C.uintptr_t, dst *C.uint8_t, capacity C.size_t) C.int32_t {
	v, ok := value[*rawimage.Image](img)
	if !ok || v.Released() || dst == nil || int(capacity) < v.Len() {
		return status(session.NullPtr)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(dst)), v.Len()), v.Bytes())
	return status(session.OK)
}

//export wimg_resize
func wimg_resize(ctx C.uintptr_t, img C.uintptr_t, width, height C.uint32_t, maintainAspect C.bool, out *C.uintptr_t) C.int32_t {
	s, ok := value[*session.Context](ctx)
	if !ok || out == nil {
		return status(session.NullPtr)
	}
	src, _ := value[*rawimage.Image](img)
	res, st := s.Resize(src, uint32(width), uint32(height), bool(maintainAspect))
	if st != session.OK {
		return status(st)
	}
	return newImage(res, out)
}

func decode(ctx C.uintptr_t, format rawimage.Format, data *C.uint8_t, length C.size_t, out *C.uintptr_t) C.int32_t {
	s, ok := value[*session.Context](ctx)
	if !ok || out == nil {
		return status(session.NullPtr)
	}
	img, st := s.Decode(format, goBytes(data, length))
	if st != session.OK {
		return status(st)
	}
	return newImage(img, out)
}

func encode(ctx C.uintptr_t, format rawimage.Format, img C.uintptr_t, out *C.uintptr_t) C.int32_t {
	s, ok := value[*session.Context](ctx)
	if !ok || out == nil {
		return status(session.NullPtr)
	}
	src, _ := value[*rawimage.Image](img)
	res, st := s.Encode(format, src)
	if st != session.OK {
		return status(st)
	}
	return newImage(res, out)
}

//export wimg_jpeg_decode
func wimg_jpeg_decode(ctx C.uintptr_t, data *C.uint8_t, length C.size_t, out *C.uintptr_t) C.int32_t {
	return decode(ctx, rawimage.JPEG, data, length, out)
}

//export wimg_jpeg_encode
func wimg_jpeg_encode(ctx C.uintptr_t, img C.uintptr_t, out *C.uintptr_t) C.int32_t {
	return encode(ctx, rawimage.JPEG, img, out)
}

//export wimg_png_decode
func wimg_png_decode(ctx C.uintptr_t, data *C.uint8_t, length C.size_t, out *C.uintptr_t) C.int32_t {
	return decode(ctx, rawimage.PNG, data, length, out)
}

//export wimg_png_encode
func wimg_png_encode(ctx C.uintptr_t, img C.uintptr_t, out *C.uintptr_t) C.int32_t {
	return encode(ctx, rawimage.PNG, img, out)
}

//export wimg_webp_decode
func wimg_webp_decode(ctx C.uintptr_t, data *C.uint8_t, length C.size_t, out *C.uintptr_t) C.int32_t {
	return decode(ctx, rawimage.WEBP, data, length, out)
}

//export wimg_webp_encode
func wimg_webp_encode(ctx C.uintptr_t, img C.uintptr_t, out *C.uintptr_t) C.int32_t {
	return encode(ctx, rawimage.WEBP, img, out)
}

//export wimg_avif_encode
func wimg_avif_encode(ctx C.uintptr_t, img C.uintptr_t, out *C.uintptr_t) C.int32_t {
	return encode(ctx, rawimage.AVIF, img, out)
}

//export wimg_resize_seed
func wimg_resize_seed() C.uint64_t { return C.uint64_t(session.Seed(rawimage.RGB8)) }

//export wimg_jpeg_seed
func wimg_jpeg_seed() C.uint64_t { return C.uint64_t(session.Seed(rawimage.JPEG)) }

//export wimg_png_seed
func wimg_png_seed() C.uint64_t { return C.uint64_t(session.Seed(rawimage.PNG)) }

//export wimg_webp_seed
func wimg_webp_seed() C.uint64_t { return C.uint64_t(session.Seed(rawimage.WEBP)) }

//export wimg_avif_seed
func wimg_avif_seed() C.uint64_t { return C.uint64_t(session.Seed(rawimage.AVIF)) }

//export wimg_jpeg_set_encode_quality
func wimg_jpeg_set_encode_quality(ctx C.uintptr_t, quality C.int32_t) {
	if s, ok := value[*session.Context](ctx); ok {
		s.SetJPEGQuality(int(quality))
	}
}

//export wimg_webp_set_encode_quality
func wimg_webp_set_encode_quality(ctx C.uintptr_t, quality C.int32_t) {
	if s, ok := value[*session.Context](ctx); ok {
		s.SetWebPQuality(int(quality))
	}
}

//export wimg_avif_set_encode_quality
func wimg_avif_set_encode_quality(ctx C.uintptr_t, quality C.int32_t) {
	if s, ok := value[*session.Context](ctx); ok {
		s.SetAVIFQuality(int(quality))
	}
}

//export wimg_avif_set_encode_speed
func wimg_avif_set_encode_speed(ctx C.uintptr_t, speed C.int32_t) {
	if s, ok := value[*session.Context](ctx); ok {
		s.SetAVIFSpeed(int(speed))
	}
}

// wimg_last_error_message returns NULL when no error is stored. The
// caller frees the string with wimg_error_message_destroy.
//
//export wimg_last_error_message
func wimg_last_error_message(ctx C.uintptr_t) *C.char {
	s, ok := value[*session.Context](ctx)
	if !ok {
		return nil
	}
	msg := s.LastErrorMessage()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

//export wimg_error_message_destroy
func wimg_error_message_destroy(msg *C.char) {
	if msg != nil {
		C.free(unsafe.Pointer(msg))
	}
}
