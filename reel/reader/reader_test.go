package reader_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/indrora/reel/reel/chunk"
	"github.com/indrora/reel/reel/format"
	"github.com/indrora/reel/reel/reader"
	"github.com/indrora/reel/reel/writer"
	"github.com/pkg/errors"
)

// record writes a small recording with snapshot chunks starting at ticks 0, 10 and 20.
func record(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	in := make(chan writer.Message, 4)
	for _, first := range []uint64{0, 10, 20} {
		var entries []chunk.Entry
		for tick := first; tick < first+10; tick++ {
			entries = append(entries, chunk.Entry{Tick: tick, Payload: format.Snapshot{byte(tick), 0xff}})
		}
		in <- writer.Message{Stream: format.STREAM_SNAPSHOTS, Entries: entries}
	}
	in <- writer.Message{Stream: format.STREAM_EVENTS, Entries: []chunk.Entry{
		{Tick: 12, Payload: format.Events{format.Event("goal")}},
	}}
	close(in)

	res, err := writer.New(writer.Config{
		TmpDir: filepath.Join(root, "tmp"),
		Dir:    root,
		Name:   "reader",
	}, format.HeaderExt{Map: "ctf2", TicksPerSecond: 10, CreatedAt: time.Unix(0, 0).UTC()}).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	return res.Path
}

func readAll(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestOpen(t *testing.T) {
	rec, err := reader.Open(record(t))
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	if rec.Ext.Map != "ctf2" {
		t.Errorf("Expected map ctf2, got %s", rec.Ext.Map)
	}
	if rec.Header.Duration() != 2900*time.Millisecond {
		t.Errorf("Expected 2.9s, got %v", rec.Header.Duration())
	}
	if err := rec.Verify(); err != nil {
		t.Errorf("checksum: %v", err)
	}

	events, err := rec.Events(rec.Tail.EventsIndex[0].Offset)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Tick != 12 || string(events[0].Value[0]) != "goal" {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestSeek(t *testing.T) {
	rec, err := reader.Open(record(t))
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	tests := []struct {
		tick      uint64
		wantFirst uint64
		found     bool
	}{
		{tick: 0, wantFirst: 0, found: true},
		{tick: 9, wantFirst: 0, found: true},
		{tick: 15, wantFirst: 10, found: true},
		{tick: 500, wantFirst: 20, found: true},
	}

	for _, tt := range tests {
		idx, ok := rec.Tail.SnapshotsIndex.Floor(tt.tick)
		if ok != tt.found {
			t.Fatalf("tick %d: expected found=%v", tt.tick, tt.found)
		}
		if idx.Tick != tt.wantFirst {
			t.Errorf("tick %d: expected chunk at %d, got %d", tt.tick, tt.wantFirst, idx.Tick)
		}
		snaps, err := rec.Snapshots(idx.Offset)
		if err != nil {
			t.Fatal(err)
		}
		if snaps[0].Tick != tt.wantFirst || !bytes.Equal(snaps[0].Value, []byte{byte(tt.wantFirst), 0xff}) {
			t.Errorf("tick %d: chunk starts with %v", tt.tick, snaps[0])
		}
	}
}

func TestParseRejects(t *testing.T) {
	good := readAll(t, record(t))

	corrupt := func(f func([]byte) []byte) []byte {
		return f(bytes.Clone(good))
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{
			name: "bad magic",
			data: corrupt(func(b []byte) []byte { b[0] = 'X'; return b }),
			want: format.ErrBadMagic,
		},
		{
			name: "future version",
			data: corrupt(func(b []byte) []byte { b[5] = 9; return b }),
			want: format.ErrUnsupportedVersion,
		},
		{
			name: "not finalized",
			data: corrupt(func(b []byte) []byte {
				h := format.FileHeader{SizeExt: 1}
				copy(b, h.ToBytes())
				return b
			}),
			want: format.ErrIncomplete,
		},
		{
			name: "cut short",
			data: good[:format.HEADER_SIZE+4],
			want: reader.ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reader.Parse(tt.data)
			if errors.Cause(err) != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestChecksumMismatch(t *testing.T) {
	path := record(t)
	data := readAll(t, path)

	rec, err := reader.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	// flip a byte inside the chunk section
	rec.ChunkSection()[len(rec.ChunkSection())/2] ^= 0xff
	if err := rec.Verify(); err != reader.ErrChecksum {
		t.Errorf("Expected ErrChecksum, got %v", err)
	}
	if _, err := rec.Validate(); errors.Cause(err) != reader.ErrChecksum {
		t.Errorf("Expected validation to fail with ErrChecksum, got %v", err)
	}
}

func TestBadOffset(t *testing.T) {
	rec, err := reader.Open(record(t))
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	if _, err := rec.ReadChunk(uint64(len(rec.ChunkSection()))); errors.Cause(err) != reader.ErrBadOffset {
		t.Errorf("Expected ErrBadOffset, got %v", err)
	}
}

func TestValidateFile(t *testing.T) {
	stats, err := reader.ValidateFile(record(t))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Chunks[format.STREAM_SNAPSHOTS] != 3 || stats.Entries[format.STREAM_SNAPSHOTS] != 30 {
		t.Errorf("unexpected snapshot stats: %+v", stats)
	}
	if stats.First[format.STREAM_SNAPSHOTS] != 0 || stats.Last[format.STREAM_SNAPSHOTS] != 29 {
		t.Errorf("unexpected snapshot range: %+v", stats)
	}
	if stats.Chunks[format.STREAM_EVENTS] != 1 {
		t.Errorf("unexpected event stats: %+v", stats)
	}
}
