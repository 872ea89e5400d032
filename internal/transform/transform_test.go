package transform

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkusa/wimg/internal/rawimage"
)

// indexed builds an image whose first channel encodes the column and the
// second the row, so crop offsets can be read back from the pixels.
func indexed(t *testing.T, w, h uint32, pf rawimage.PixelFormat) *rawimage.Image {
	t.Helper()
	bpp := pf.BytesPerPixel()
	buf := make([]byte, int(w*h)*bpp)
	for y := 0; y < int(h); y++ {
		for x := 0; x < int(w); x++ {
			i := (y*int(w) + x) * bpp
			buf[i] = uint8(x)
			buf[i+1] = uint8(y)
			buf[i+2] = 7
			if bpp == 4 {
				buf[i+3] = 200
			}
		}
	}
	img, err := rawimage.New(buf, pf.Format(), w, h)
	require.NoError(t, err)
	return img
}

func TestCropBounds(t *testing.T) {
	img := indexed(t, 6, 4, rawimage.PixelRGB8)

	for w := uint32(0); w <= 8; w++ {
		for h := uint32(0); h <= 6; h++ {
			out, err := Crop(img, w, h, Contain)
			if w == 0 || h == 0 || w > 6 || h > 4 {
				assert.ErrorIs(t, err, rawimage.ErrCropOutOfBounds, "%dx%d", w, h)
				continue
			}
			require.NoError(t, err, "%dx%d", w, h)
			assert.Equal(t, w, out.Width())
			assert.Equal(t, h, out.Height())
			assert.Equal(t, int(w*h)*3, out.Len())
		}
	}
}

func TestCropCentered(t *testing.T) {
	for _, pf := range []rawimage.PixelFormat{rawimage.PixelRGB8, rawimage.PixelRGBA8} {
		t.Run(pf.String(), func(t *testing.T) {
			img := indexed(t, 10, 7, pf)
			before := append([]byte(nil), img.Bytes()...)

			out, err := Crop(img, 4, 2, Contain)
			require.NoError(t, err)
			assert.Equal(t, pf.Format(), out.Format())

			// x offset (10-4)/2 = 3, y offset (7-2)/2 = 2.
			bpp := pf.BytesPerPixel()
			px := out.Bytes()
			for y := 0; y < 2; y++ {
				for x := 0; x < 4; x++ {
					i := (y*4 + x) * bpp
					assert.Equal(t, uint8(x+3), px[i])
					assert.Equal(t, uint8(y+2), px[i+1])
				}
			}
			assert.Equal(t, before, img.Bytes(), "source must be untouched")
		})
	}
}

func TestCropEncodedInput(t *testing.T) {
	img, err := rawimage.New([]byte{0xff, 0xd8}, rawimage.JPEG, 10, 10)
	require.NoError(t, err)

	_, err = Crop(img, 5, 5, Contain)
	var e *rawimage.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, rawimage.KindProcess, e.Kind)
	assert.Equal(t, "crop", e.Op)
}

func TestResizeNeverUpscales(t *testing.T) {
	img := indexed(t, 40, 30, rawimage.PixelRGB8)

	for _, maintain := range []bool{true, false} {
		out, err := Resize(img, 400, 300, maintain)
		require.NoError(t, err)
		assert.Equal(t, uint32(40), out.Width())
		assert.Equal(t, uint32(30), out.Height())
	}

	out, err := Resize(img, 80, 10, true)
	require.NoError(t, err)
	assert.LessOrEqual(t, out.Width(), uint32(40))
	assert.LessOrEqual(t, out.Height(), uint32(10))
}

func TestResizeMaintainAspect(t *testing.T) {
	tests := []struct {
		srcW, srcH uint32
		w, h       uint32
		wantW      uint32
		wantH      uint32
	}{
		{1000, 500, 200, 200, 200, 100},
		{500, 1000, 200, 200, 100, 200},
		{300, 200, 150, 150, 150, 100},
		{640, 480, 320, 100, 133, 100},
		{100, 100, 50, 20, 20, 20},
	}
	for _, tt := range tests {
		img := indexed(t, tt.srcW, tt.srcH, rawimage.PixelRGB8)
		out, err := Resize(img, tt.w, tt.h, true)
		require.NoError(t, err)

		assert.Equal(t, tt.wantW, out.Width(), "%dx%d -> %dx%d", tt.srcW, tt.srcH, tt.w, tt.h)
		assert.Equal(t, tt.wantH, out.Height(), "%dx%d -> %dx%d", tt.srcW, tt.srcH, tt.w, tt.h)
		assert.LessOrEqual(t, out.Width(), tt.w)
		assert.LessOrEqual(t, out.Height(), tt.h)

		// Aspect matches the source within one pixel of rounding.
		want := float64(out.Width()) * float64(tt.srcH) / float64(tt.srcW)
		assert.InDelta(t, want, float64(out.Height()), 1)
	}
}

func TestResizeCropsToTargetAspect(t *testing.T) {
	// 1000x500 with a blue center square and red margins of 250px.
	const w, h = 1000, 500
	buf := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if x >= 250 && x < 750 {
				buf[i+2] = 255
			} else {
				buf[i] = 255
			}
		}
	}
	img, err := rawimage.New(buf, rawimage.RGB8, w, h)
	require.NoError(t, err)

	cw, ch := containBox(w, h, 1)
	assert.Equal(t, uint32(500), cw)
	assert.Equal(t, uint32(500), ch)

	out, err := Resize(img, 200, 200, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), out.Width())
	assert.Equal(t, uint32(200), out.Height())
	assert.Equal(t, 200*200*3, out.Len())

	// Only the blue center survives the pre-crop.
	px := out.Bytes()
	for i := 0; i < len(px); i += 3 {
		if px[i] > 1 || px[i+2] < 254 {
			t.Fatalf("pixel %d = %v, want pure blue", i/3, px[i:i+3])
		}
	}
}

func TestContainBox(t *testing.T) {
	tests := []struct {
		srcW, srcH uint32
		aspect     float64
		wantW      uint32
		wantH      uint32
	}{
		{1000, 500, 1, 500, 500},
		{500, 1000, 1, 500, 500},
		{800, 600, 16.0 / 9.0, 800, 450},
		{600, 800, 0.5, 400, 800},
		{1, 1000, 1000, 1, 1},
	}
	for _, tt := range tests {
		w, h := containBox(tt.srcW, tt.srcH, tt.aspect)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
		assert.LessOrEqual(t, w, tt.srcW)
		assert.LessOrEqual(t, h, tt.srcH)
	}
}

func TestResizeKeepsPixelFormat(t *testing.T) {
	img := indexed(t, 64, 64, rawimage.PixelRGBA8)
	out, err := Resize(img, 16, 16, false)
	require.NoError(t, err)

	assert.Equal(t, rawimage.RGBA8, out.Format())
	assert.Equal(t, 16*16*4, out.Len())
	for i := 3; i < out.Len(); i += 4 {
		assert.InDelta(t, 200, int(out.Bytes()[i]), 1)
	}
}

func TestResizeSameAspect(t *testing.T) {
	img := indexed(t, 100, 50, rawimage.PixelRGB8)
	for _, maintain := range []bool{true, false} {
		out, err := Resize(img, 40, 20, maintain)
		require.NoError(t, err)
		assert.Equal(t, uint32(40), out.Width())
		assert.Equal(t, uint32(20), out.Height())
	}
}

func TestResizeErrors(t *testing.T) {
	encoded, err := rawimage.New([]byte{0xff, 0xd8, 0xff}, rawimage.JPEG, 100, 100)
	require.NoError(t, err)

	_, err = Resize(encoded, 10, 10, false)
	var e *rawimage.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, rawimage.KindProcess, e.Kind)
	assert.Equal(t, "resize", e.Op)
	assert.Equal(t, rawimage.JPEG, e.Format)
	assert.EqualError(t, err, "cannot resize JPEG")

	img := indexed(t, 10, 10, rawimage.PixelRGB8)
	_, err = Resize(img, 0, 10, true)
	assert.ErrorIs(t, err, rawimage.ErrResize)

	img.Release()
	_, err = Resize(img, 5, 5, true)
	assert.ErrorIs(t, err, rawimage.ErrNullPtr)
}

func TestFitAspect(t *testing.T) {
	w, h := fitAspect(200, 200, 2)
	assert.Equal(t, uint32(200), w)
	assert.Equal(t, uint32(100), h)

	w, h = fitAspect(200, 200, 0.5)
	assert.Equal(t, uint32(100), w)
	assert.Equal(t, uint32(200), h)

	// Extreme aspects never collapse to zero.
	w, h = fitAspect(10, 10, math.MaxUint32)
	assert.Equal(t, uint32(10), w)
	assert.Equal(t, uint32(1), h)
}

func TestResizeRecoversResamplerPanic(t *testing.T) {
	orig := scale
	t.Cleanup(func() { scale = orig })
	scale = func(image.Image, int, int) *image.NRGBA { panic("kernel exploded") }

	out, err := Resize(indexed(t, 8, 8, rawimage.PixelRGB8), 4, 4, false)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, rawimage.ErrResize)
	assert.Contains(t, err.Error(), "failed to resize image")
	assert.Contains(t, errors.Unwrap(err).Error(), "resampler panic: kernel exploded")
}

func TestResizeRejectsWrongResamplerSize(t *testing.T) {
	orig := scale
	t.Cleanup(func() { scale = orig })
	scale = func(image.Image, int, int) *image.NRGBA { return image.NewNRGBA(image.Rect(0, 0, 1, 1)) }

	_, err := Resize(indexed(t, 8, 8, rawimage.PixelRGBA8), 4, 4, false)
	require.Error(t, err)
	assert.Equal(t, rawimage.KindResize, rawimage.KindOf(err))
	assert.Contains(t, errors.Unwrap(err).Error(), "resampler produced 1x1, want 4x4")
}
