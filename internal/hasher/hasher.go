// Package hasher derives the content hashes embedded in output file names.
//
// A hash is xxHash64 over the source bytes, seeded with the sum of the
// stage seeds (resize + codec). Encode options are not part of the hash:
// re-encoding at a different quality overwrites the same file.
package hasher

import (
	"encoding/hex"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Hash computes the seeded xxHash64 of data.
func Hash(data []byte, seed uint64) uint64 {
	h := xxhash.NewWithSeed(seed)
	_, _ = h.Write(data)
	return h.Sum64()
}

// HashReader computes the seeded xxHash64 from a reader, streaming.
func HashReader(r io.Reader, seed uint64) (uint64, error) {
	h := xxhash.NewWithSeed(seed)
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// WithVariant folds a variant name into a source hash by wrapping
// addition. An empty variant leaves sum unchanged.
func WithVariant(sum uint64, variant string, seed uint64) uint64 {
	if variant == "" {
		return sum
	}
	return sum + Hash([]byte(variant), seed)
}

// Compose returns the content hash for source bytes under seed, including
// the variant name when one is set.
func Compose(source []byte, variant string, seed uint64) uint64 {
	return WithVariant(Hash(source, seed), variant, seed)
}

// Hex renders v as 16 lowercase hex chars, big-endian.
func Hex(v uint64) string {
	return hex.EncodeToString(uint64ToBytes(v))
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
	return b
}
