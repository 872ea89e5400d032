package codec

import (
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/rkusa/wimg/internal/rawimage"
)

// AVIFSeed disambiguates AVIF outputs in content hashes.
const AVIFSeed uint64 = 4

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// AVIFCodec encodes images to AVIF by shelling out to avifenc.
// Install: brew install libavif / apt install libavif-bin
type AVIFCodec struct {
	once        sync.Once
	available   bool
	avifencPath string
}

func (c *AVIFCodec) Format() rawimage.Format { return rawimage.AVIF }
func (c *AVIFCodec) Seed() uint64            { return AVIFSeed }

func (c *AVIFCodec) Available() bool {
	c.once.Do(func() {
		path, err := exec.LookPath("avifenc")
		if err == nil {
			c.available = true
			c.avifencPath = path
		}
	})
	return c.available
}

// avifQuantizer maps quality 0-100 onto avifenc's quantizer scale, where
// 0 is lossless and 63 is worst.
func avifQuantizer(quality int) int {
	return 63 - clamp(quality, 0, 100)*63/100
}

func (c *AVIFCodec) Encode(img *rawimage.Image, opts Options) (*rawimage.Image, error) {
	if _, err := sourcePixels(img, rawimage.AVIF); err != nil {
		return nil, err
	}
	if !c.Available() {
		return nil, rawimage.EncodeError(rawimage.AVIF,
			errors.New("avifenc not found in PATH; install with: brew install libavif"))
	}
	return guardEncode(rawimage.AVIF, func() (*rawimage.Image, error) {
		data, err := c.run(img, opts.AVIF)
		if err != nil {
			return nil, rawimage.EncodeError(rawimage.AVIF, err)
		}
		return rawimage.New(data, rawimage.AVIF, img.Width(), img.Height())
	})
}

func (c *AVIFCodec) run(img *rawimage.Image, opts AVIFOptions) ([]byte, error) {
	src, err := img.ToNRGBA("encode as AVIF")
	if err != nil {
		return nil, err
	}
	q := avifQuantizer(opts.Quality)
	speed := clamp(opts.Speed, 1, 10)

	id := tempCounter.Add(1)
	srcFile, err := os.CreateTemp("", fmt.Sprintf("wimg_avif_src_%d_*.png", id))
	if err != nil {
		return nil, errors.WithMessage(err, "create temp")
	}
	srcPath := srcFile.Name()
	defer os.Remove(srcPath)

	dstFile, err := os.CreateTemp("", fmt.Sprintf("wimg_avif_dst_%d_*.avif", id))
	if err != nil {
		srcFile.Close()
		return nil, errors.WithMessage(err, "create temp")
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(dstPath)

	// Fast compression: the PNG only travels to avifenc.
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(srcFile, src); err != nil {
		srcFile.Close()
		return nil, errors.WithMessage(err, "encode temp png")
	}
	if err := srcFile.Close(); err != nil {
		return nil, errors.WithMessage(err, "close temp png")
	}

	cmd := exec.Command(c.avifencPath,
		"--min", fmt.Sprintf("%d", q),
		"--max", fmt.Sprintf("%d", q),
		"--speed", fmt.Sprintf("%d", speed),
		"-j", "all",
		srcPath,
		dstPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Errorf("avifenc: %v: %s", err, string(out))
	}

	return os.ReadFile(dstPath)
}
