package reader

import (
	"bytes"
	"os"

	"github.com/indrora/reel/reel/chunk"
	"github.com/indrora/reel/reel/codec"
	"github.com/indrora/reel/reel/format"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// The reader is much simpler than the writer: recordings are small enough to be
// read whole, and only finished recordings are accepted.

var (
	ErrTruncated   = errors.New("recording is shorter than its header claims")
	ErrNoIndex     = errors.New("recording has no chunk index")
	ErrChecksum    = errors.New("chunk section checksum does not match")
	ErrBadOffset   = errors.New("index offset outside of the chunk section")
	ErrOutOfOrder  = errors.New("chunk ticks are out of order")
	ErrIndexedTick = errors.New("chunk does not start at its indexed tick")
)

type Recording struct {
	Header format.FileHeader
	Ext    format.HeaderExt
	Tail   format.Tail

	chunks []byte
	codec  *codec.Codec
}

// Open reads and parses the recording at path.
func Open(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read recording")
	}
	return Parse(data)
}

// ReadHeader only reads the fixed header of the recording at path.
func ReadHeader(path string) (format.FileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return format.FileHeader{}, errors.Wrap(err, "failed to open recording")
	}
	defer f.Close()
	return format.ReadHeader(f)
}

// Parse validates data and decodes the header ext and the tail. Chunks are decoded
// on demand.
func Parse(data []byte) (*Recording, error) {
	header, err := format.ReadHeader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	rest := data[format.HEADER_SIZE:]
	if header.SizeExt > uint64(len(rest)) || header.SizeChunks > uint64(len(rest))-header.SizeExt {
		return nil, ErrTruncated
	}

	c, err := codec.New(header.Compression)
	if err != nil {
		return nil, err
	}

	rec := &Recording{Header: header, codec: c}

	ext, err := c.Decompress(nil, rest[:header.SizeExt])
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to read header ext")
	}
	if err := codec.Deserialize(ext, &rec.Ext); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to read header ext")
	}
	rest = rest[header.SizeExt:]

	rec.chunks = rest[:header.SizeChunks]
	rest = rest[header.SizeChunks:]

	tail, err := c.Decompress(nil, rest)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to read tail")
	}
	if err := codec.Deserialize(tail, &rec.Tail); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to read tail")
	}
	if len(rec.Tail.SnapshotsIndex) == 0 && len(rec.Tail.EventsIndex) == 0 {
		c.Close()
		return nil, ErrNoIndex
	}

	return rec, nil
}

func (r *Recording) Close() {
	r.codec.Close()
}

// ChunkSection is the raw chunk section, offsets in the tail are relative to it.
func (r *Recording) ChunkSection() []byte {
	return r.chunks
}

// ReadChunk decodes the chunk at offset.
func (r *Recording) ReadChunk(offset uint64) ([]chunk.RawEntry, error) {
	if offset >= uint64(len(r.chunks)) {
		return nil, errors.Wrapf(ErrBadOffset, "offset %d, section is %d bytes", offset, len(r.chunks))
	}
	entries, _, err := chunk.Decode(r.codec, r.chunks[offset:])
	return entries, err
}

// Snapshots decodes the snapshot chunk at offset.
func (r *Recording) Snapshots(offset uint64) ([]chunk.Typed[format.Snapshot], error) {
	if offset >= uint64(len(r.chunks)) {
		return nil, errors.Wrapf(ErrBadOffset, "offset %d", offset)
	}
	return chunk.DecodeInto[format.Snapshot](r.codec, r.chunks[offset:])
}

// Events decodes the event chunk at offset.
func (r *Recording) Events(offset uint64) ([]chunk.Typed[format.Events], error) {
	if offset >= uint64(len(r.chunks)) {
		return nil, errors.Wrapf(ErrBadOffset, "offset %d", offset)
	}
	return chunk.DecodeInto[format.Events](r.codec, r.chunks[offset:])
}

// Verify checks the chunk section against the checksum stored in the tail.
func (r *Recording) Verify() error {
	sum := blake2b.Sum256(r.chunks)
	if !bytes.Equal(sum[:], r.Tail.Checksum) {
		return ErrChecksum
	}
	return nil
}
