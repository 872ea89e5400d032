package hasher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func TestHashDeterministic(t *testing.T) {
	data := []byte("the same source bytes")
	for seed := uint64(0); seed < 8; seed++ {
		if Hash(data, seed) != Hash(data, seed) {
			t.Fatalf("seed %d: hash not deterministic", seed)
		}
	}
}

func TestHashSeedZeroMatchesUnseeded(t *testing.T) {
	data := []byte("xxhash")
	if got, want := Hash(data, 0), xxhash.Sum64(data); got != want {
		t.Fatalf("Hash(seed 0) = %x, want %x", got, want)
	}
}

func TestHashSeedsDiffer(t *testing.T) {
	data := bytes.Repeat([]byte{0xab}, 1024)
	seen := map[uint64]uint64{}
	// resize seed 1 plus each codec seed 1..4
	for _, seed := range []uint64{2, 3, 4, 5} {
		h := Hash(data, seed)
		if prev, ok := seen[h]; ok {
			t.Fatalf("seeds %d and %d collide", prev, seed)
		}
		seen[h] = seed
	}
}

func TestHashReaderMatchesHash(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 1000)
	got, err := HashReader(bytes.NewReader(data), 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := Hash(data, 3); got != want {
		t.Fatalf("HashReader = %x, want %x", got, want)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestHashReaderError(t *testing.T) {
	if _, err := HashReader(failingReader{}, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestCompose(t *testing.T) {
	src := []byte("image bytes")
	const seed = 2

	if Compose(src, "", seed) != Hash(src, seed) {
		t.Fatal("empty variant must not change the hash")
	}

	want := Hash(src, seed) + Hash([]byte("thumb"), seed)
	if got := Compose(src, "thumb", seed); got != want {
		t.Fatalf("Compose = %x, want %x", got, want)
	}
	if Compose(src, "thumb", seed) == Compose(src, "large", seed) {
		t.Fatal("different variants should give different hashes")
	}
}

func TestWithVariantWraps(t *testing.T) {
	const seed = 5
	v := Hash([]byte("v"), seed)
	sum := ^uint64(0)
	if got := WithVariant(sum, "v", seed); got != v-1 {
		t.Fatalf("WithVariant = %x, want wrapped %x", got, v-1)
	}
}

func TestHex(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0000000000000000"},
		{1, "0000000000000001"},
		{0xef46db3751d8e999, "ef46db3751d8e999"},
		{^uint64(0), "ffffffffffffffff"},
	}
	for _, tt := range tests {
		if got := Hex(tt.in); got != tt.want {
			t.Errorf("Hex(%x) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// xxHash64 of the empty input with seed 0.
	if got := Hex(Hash(nil, 0)); got != "ef46db3751d8e999" {
		t.Errorf("Hex(Hash(nil)) = %q", got)
	}
}
