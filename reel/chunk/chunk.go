// Package chunk packs consecutive (tick, payload) entries of one stream into a single
// independently decodable, compressed blob.
//
// A chunk on disk is
//
//	[u64 LE: compressed size][compressed body]
//
// and the body is
//
//	[uvarint: entry count]
//	repeated: [uvarint: tick][uvarint: size][size bytes]
//
// The first entry carries its compressed serialization, every following entry a
// diff against the serialization of the entry before it. A size of 0 means the
// payload is identical to the one before.
package chunk

import (
	"bytes"
	"encoding/binary"

	"github.com/indrora/reel/reel/codec"
	"github.com/indrora/reel/reel/format"
	"github.com/pkg/errors"
)

const SIZE_PREFIX = 8

var (
	ErrEmptyChunk   = errors.New("empty chunks are not allowed")
	ErrUnordered    = errors.New("chunk entries are not in tick order")
	ErrCorruptChunk = errors.New("corrupt chunk")
)

// Entry is one payload waiting to be encoded.
type Entry struct {
	Tick    uint64
	Payload any
}

// RawEntry is a decoded entry; Data is the serialized payload.
type RawEntry struct {
	Tick uint64
	Data []byte
}

// Span describes the ticks an encoded chunk covers.
type Span struct {
	First uint64
	Last  uint64
	Count int
}

// Encoder reuses its scratch buffers between chunks.
type Encoder struct {
	codec *codec.Codec
	body  []byte
	ser   []byte
	prev  []byte
	enc   []byte
	out   []byte
}

func NewEncoder(c *codec.Codec) *Encoder {
	return &Encoder{codec: c}
}

// Encode builds one chunk from entries, which must be in ascending tick order.
// The returned slice is only valid until the next call.
func (e *Encoder) Encode(entries []Entry) (Span, []byte, error) {
	if len(entries) == 0 {
		return Span{}, nil, ErrEmptyChunk
	}

	span := Span{
		First: entries[0].Tick,
		Last:  entries[len(entries)-1].Tick,
		Count: len(entries),
	}

	e.body = binary.AppendUvarint(e.body[:0], uint64(len(entries)))
	e.prev = e.prev[:0]

	var err error
	for i, entry := range entries {
		if i > 0 && entry.Tick <= entries[i-1].Tick {
			return Span{}, nil, errors.Wrapf(ErrUnordered, "tick %d after %d", entry.Tick, entries[i-1].Tick)
		}

		e.ser, err = codec.Serialize(e.ser[:0], entry.Payload)
		if err != nil {
			return Span{}, nil, errors.Wrapf(err, "tick %d", entry.Tick)
		}

		switch {
		case i == 0:
			e.enc, err = e.codec.Compress(e.enc[:0], e.ser)
			if err != nil {
				return Span{}, nil, err
			}
		case bytes.Equal(e.ser, e.prev):
			// unchanged payload, stored with size 0
			e.enc = e.enc[:0]
		default:
			e.enc = codec.Diff(e.enc[:0], e.prev, e.ser)
		}

		e.body = binary.AppendUvarint(e.body, entry.Tick)
		e.body = binary.AppendUvarint(e.body, uint64(len(e.enc)))
		e.body = append(e.body, e.enc...)

		e.prev, e.ser = e.ser, e.prev
	}

	e.out = append(e.out[:0], make([]byte, SIZE_PREFIX)...)
	e.out, err = e.codec.Compress(e.out, e.body)
	if err != nil {
		return Span{}, nil, err
	}
	binary.LittleEndian.PutUint64(e.out, uint64(len(e.out)-SIZE_PREFIX))

	return span, e.out, nil
}

// Decode reads the chunk at the start of blob. It returns the entries and the
// number of bytes the chunk occupies.
func Decode(c *codec.Codec, blob []byte) ([]RawEntry, int, error) {
	if len(blob) < SIZE_PREFIX {
		return nil, 0, errors.Wrap(ErrCorruptChunk, "blob too short for size prefix")
	}
	size := binary.LittleEndian.Uint64(blob)
	if size > uint64(len(blob)-SIZE_PREFIX) {
		return nil, 0, errors.Wrapf(ErrCorruptChunk, "size %d exceeds %d available bytes", size, len(blob)-SIZE_PREFIX)
	}
	total := SIZE_PREFIX + int(size)

	body, err := c.Decompress(nil, blob[SIZE_PREFIX:total])
	if err != nil {
		return nil, 0, err
	}

	count, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, 0, errors.Wrap(ErrCorruptChunk, "bad entry count")
	}
	body = body[n:]
	if count > uint64(len(body)) {
		return nil, 0, errors.Wrapf(ErrCorruptChunk, "%d entries in %d bytes", count, len(body))
	}

	entries := make([]RawEntry, 0, count)
	var last []byte

	for i := uint64(0); i < count; i++ {
		var header format.ChunkHeader
		if header, body, err = readChunkHeader(body); err != nil {
			return nil, 0, err
		}
		if header.Size > uint64(len(body)) {
			return nil, 0, errors.Wrapf(ErrCorruptChunk, "entry %d wants %d bytes, %d left", i, header.Size, len(body))
		}
		if header.Size == 0 {
			if last == nil {
				return nil, 0, errors.Wrapf(ErrCorruptChunk, "entry %d (tick %d) repeats a payload that does not exist", i, header.MonotonicTick)
			}
			entries = append(entries, RawEntry{Tick: header.MonotonicTick, Data: bytes.Clone(last)})
			continue
		}
		data := body[:header.Size]
		body = body[header.Size:]

		var payload []byte
		if last == nil {
			payload, err = c.Decompress(nil, data)
		} else {
			payload, err = codec.Patch(nil, last, data)
		}
		if err != nil {
			return nil, 0, errors.Wrapf(err, "entry %d (tick %d)", i, header.MonotonicTick)
		}

		entries = append(entries, RawEntry{Tick: header.MonotonicTick, Data: payload})
		last = payload
	}

	return entries, total, nil
}

func readChunkHeader(body []byte) (format.ChunkHeader, []byte, error) {
	var header format.ChunkHeader
	var n int

	header.MonotonicTick, n = binary.Uvarint(body)
	if n <= 0 {
		return header, body, errors.Wrap(ErrCorruptChunk, "bad tick")
	}
	body = body[n:]
	header.Size, n = binary.Uvarint(body)
	if n <= 0 {
		return header, body, errors.Wrap(ErrCorruptChunk, "bad entry size")
	}
	return header, body[n:], nil
}

// Typed is a decoded entry with its payload deserialized.
type Typed[T any] struct {
	Tick  uint64
	Value T
}

// DecodeInto decodes a chunk and deserializes every payload into T.
func DecodeInto[T any](c *codec.Codec, blob []byte) ([]Typed[T], error) {
	raw, _, err := Decode(c, blob)
	if err != nil {
		return nil, err
	}
	out := make([]Typed[T], len(raw))
	for i, entry := range raw {
		out[i].Tick = entry.Tick
		if err := codec.Deserialize(entry.Data, &out[i].Value); err != nil {
			return nil, errors.Wrapf(err, "tick %d", entry.Tick)
		}
	}
	return out, nil
}
