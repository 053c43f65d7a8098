package codec_test

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/indrora/reel/reel/codec"
	"github.com/indrora/reel/reel/format"
	"github.com/pkg/errors"
)

func TestDiffPatch(t *testing.T) {
	testCases := []struct {
		name string
		old  []byte
		cur  []byte
	}{
		{name: "identical", old: []byte("hello world"), cur: []byte("hello world")},
		{name: "one byte", old: []byte("hello world"), cur: []byte("hello World")},
		{name: "grow", old: []byte("abc"), cur: []byte("abcdef")},
		{name: "shrink", old: []byte("abcdef"), cur: []byte("abx")},
		{name: "from empty", old: nil, cur: []byte{1, 2, 3}},
		{name: "to empty", old: []byte{1, 2, 3}, cur: []byte{}},
		{name: "zeros past old", old: []byte{1}, cur: []byte{1, 0, 0, 7}},
		{name: "changed at both ends", old: []byte("0123456789"), cur: []byte("x12345678y")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			patch := codec.Diff(nil, tc.old, tc.cur)
			if len(patch) == 0 {
				t.Fatal("patch must never be empty")
			}
			got, err := codec.Patch(nil, tc.old, patch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tc.cur) {
				t.Errorf("patched %q, want %q (patch %s)", got, tc.cur, spew.Sdump(patch))
			}
		})
	}
}

func TestDiffIsSmall(t *testing.T) {
	old := make([]byte, 100)
	rand.Read(old)
	cur := append([]byte(nil), old...)
	for i := 0; i < 4; i++ {
		cur[i*25] ^= 0xFF
	}

	patch := codec.Diff(nil, old, cur)
	if len(patch) >= 30 {
		t.Errorf("Expected a small patch for 4 changed bytes, got %d bytes", len(patch))
	}
}

func TestDiffRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	old := make([]byte, 0)
	for i := 0; i < 200; i++ {
		cur := make([]byte, rng.Intn(300))
		for j := range cur {
			if j < len(old) && rng.Intn(4) != 0 {
				cur[j] = old[j]
			} else {
				cur[j] = byte(rng.Intn(256))
			}
		}
		got, err := codec.Patch(nil, old, codec.Diff(nil, old, cur))
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if !bytes.Equal(got, cur) {
			t.Fatalf("round %d: mismatch", i)
		}
		old = cur
	}
}

func TestPatchCorrupt(t *testing.T) {
	old := []byte("abcdef")
	patch := codec.Diff(nil, old, []byte("abXdef"))

	testCases := map[string][]byte{
		"empty":     {},
		"truncated": patch[:len(patch)-1],
		"trailing":  append(append([]byte(nil), patch...), 9),
		"huge":      {0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F},
		// one copy run producing a gigabyte of zeros
		"gigabyte": binary.AppendUvarint(binary.AppendUvarint(binary.AppendUvarint(nil, 1<<30), 1<<30), 0),
		"past cap": binary.AppendUvarint(nil, codec.MAX_PAYLOAD_SIZE+1),
	}
	for name, p := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := codec.Patch(nil, old, p); !errors.Is(err, codec.ErrCorruptPatch) {
				t.Errorf("Expected ErrCorruptPatch, got %v", err)
			}
		})
	}
}

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("snapshot data "), 100)

	for _, ct := range []format.CompressionType{format.COMPRESSION_NONE, format.COMPRESSION_ZSTD, format.COMPRESSION_BROTLI} {
		t.Run(ct.String(), func(t *testing.T) {
			c, err := codec.New(ct)
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()

			prefix := []byte{1, 2, 3}
			comp, err := c.Compress(append([]byte(nil), prefix...), data)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(comp[:3], prefix) {
				t.Fatal("Compress must append to dst")
			}
			if ct != format.COMPRESSION_NONE && len(comp)-3 >= len(data) {
				t.Errorf("Expected %s to shrink repetitive data, got %d bytes", ct, len(comp)-3)
			}

			out, err := c.Decompress(nil, comp[3:])
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(out, data) {
				t.Error("Decompressed data differs")
			}
		})
	}
}

func TestUnknownCompression(t *testing.T) {
	if _, err := codec.New(format.CompressionType(42)); !errors.Is(err, codec.ErrUnknownCompression) {
		t.Errorf("Expected ErrUnknownCompression, got %v", err)
	}
}

func TestSerializeDeterministic(t *testing.T) {
	v := map[string]uint64{"b": 2, "a": 1, "c": 3}
	first, err := codec.Serialize(nil, v)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := codec.Serialize(nil, v)
		if !bytes.Equal(first, again) {
			t.Fatal("Serialize is not deterministic")
		}
	}

	var back map[string]uint64
	if err := codec.Deserialize(first, &back); err != nil {
		t.Fatal(err)
	}
	if back["b"] != 2 || len(back) != 3 {
		t.Errorf("Unexpected round trip: %v", back)
	}
}

func TestPatchZeroFill(t *testing.T) {
	old := []byte{1, 2, 3}
	patch := binary.AppendUvarint(nil, 6)
	patch = binary.AppendUvarint(patch, 6)
	patch = binary.AppendUvarint(patch, 0)

	got, err := codec.Patch([]byte{9}, old, patch)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{9, 1, 2, 3, 0, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestDecompressLimit(t *testing.T) {
	const limit = 1 << 20
	big := make([]byte, 2*limit)
	small := make([]byte, limit/2)

	for _, ct := range []format.CompressionType{format.COMPRESSION_NONE, format.COMPRESSION_ZSTD, format.COMPRESSION_BROTLI} {
		t.Run(ct.String(), func(t *testing.T) {
			plain, err := codec.New(ct)
			if err != nil {
				t.Fatal(err)
			}
			defer plain.Close()
			limited, err := codec.New(ct, codec.WithMaxDecodedSize(limit))
			if err != nil {
				t.Fatal(err)
			}
			defer limited.Close()

			blob, err := plain.Compress(nil, big)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := limited.Decompress(nil, blob); !errors.Is(err, codec.ErrTooLarge) {
				t.Errorf("Expected ErrTooLarge, got %v", err)
			}

			blob, err = plain.Compress(nil, small)
			if err != nil {
				t.Fatal(err)
			}
			out, err := limited.Decompress(nil, blob)
			if err != nil {
				t.Fatalf("unexpected error below the limit: %v", err)
			}
			if len(out) != len(small) {
				t.Errorf("Expected %d bytes, got %d", len(small), len(out))
			}
		})
	}
}
