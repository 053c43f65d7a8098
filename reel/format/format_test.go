package format

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestHeaderSize(t *testing.T) {
	h := FileHeader{Len: 1, SizeExt: 2, SizeChunks: 3, Compression: COMPRESSION_ZSTD}
	b := h.ToBytes()
	if int64(len(b)) != HEADER_SIZE {
		t.Fatalf("Expected %d header bytes, got %d", HEADER_SIZE, len(b))
	}
	if string(b[:5]) != PREAMBLE_STRING {
		t.Errorf("Expected magic %q, got %q", PREAMBLE_STRING, b[:5])
	}
	if v := binary.LittleEndian.Uint64(b[5:]); v != FORMAT_VERSION {
		t.Errorf("Expected version %d, got %d", FORMAT_VERSION, v)
	}
	if v := binary.LittleEndian.Uint64(b[29:]); v != 3 {
		t.Errorf("Expected size_chunks 3 at offset 29, got %d", v)
	}
}

func TestReadHeader(t *testing.T) {
	testCases := []struct {
		name      string
		data      func() []byte
		expectErr error
	}{
		{
			name: "finalized",
			data: func() []byte {
				h := FileHeader{Len: uint64(time.Second), SizeExt: 10, SizeChunks: 20}
				return h.ToBytes()
			},
		},
		{
			name: "unfinished",
			data: func() []byte {
				h := FileHeader{SizeExt: 10}
				return h.ToBytes()
			},
			expectErr: ErrIncomplete,
		},
		{
			name: "bad magic",
			data: func() []byte {
				h := FileHeader{SizeChunks: 1}
				b := h.ToBytes()
				b[0] = 'X'
				return b
			},
			expectErr: ErrBadMagic,
		},
		{
			name: "future version",
			data: func() []byte {
				h := FileHeader{SizeChunks: 1}
				b := h.ToBytes()
				binary.LittleEndian.PutUint64(b[5:], FORMAT_VERSION+1)
				return b
			},
			expectErr: ErrUnsupportedVersion,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(tc.data()))
			if tc.expectErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.expectErr != nil && !errors.Is(err, tc.expectErr) {
				t.Fatalf("unexpected error; want %v, got %v", tc.expectErr, err)
			}
		})
	}
}

func TestReadHeaderTruncated(t *testing.T) {
	h := FileHeader{SizeChunks: 1}
	b := h.ToBytes()
	if _, err := ReadHeader(bytes.NewReader(b[:len(b)-1])); err == nil {
		t.Fatal("Expected truncated header to fail")
	}
}

func TestIndex(t *testing.T) {
	var idx Index
	idx.Insert(100, 5)
	idx.Insert(0, 0)
	idx.Insert(50, 3)
	idx.Insert(50, 4)

	if len(idx) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(idx))
	}
	for i := 1; i < len(idx); i++ {
		if idx[i-1].Tick >= idx[i].Tick {
			t.Fatalf("Index out of order: %v", idx)
		}
	}
	if off, ok := idx.Get(50); !ok || off != 4 {
		t.Errorf("Expected replaced offset 4, got %d (%v)", off, ok)
	}

	floors := map[uint64]uint64{0: 0, 49: 0, 50: 50, 99: 50, 100: 100, 1000: 100}
	for tick, want := range floors {
		e, ok := idx.Floor(tick)
		if !ok || e.Tick != want {
			t.Errorf("Floor(%d): expected %d, got %d (%v)", tick, want, e.Tick, ok)
		}
	}

	var empty Index
	if _, ok := empty.Floor(10); ok {
		t.Error("Floor on empty index should fail")
	}
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]CompressionType{"": COMPRESSION_ZSTD, "zstd": COMPRESSION_ZSTD, "brotli": COMPRESSION_BROTLI, "none": COMPRESSION_NONE} {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseCompression("lz4"); err == nil {
		t.Error("Expected lz4 to be rejected")
	}
}
