package format

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// The header ext and the tail are CBOR records; they are compressed before hitting disk.

// HeaderExt is the session metadata, written once right after the header.
type HeaderExt struct {
	// Unique id of this recording
	ID ulid.ULID `cbor:"0,keyasint"`
	// Server the session was played on (open text field)
	Server string `cbor:"1,keyasint"`
	// Map name and content hash
	Map     string `cbor:"2,keyasint"`
	MapHash []byte `cbor:"3,keyasint"`
	// Simulation ticks per second, never 0
	TicksPerSecond uint64 `cbor:"4,keyasint"`
	// Resources a player needs (name -> identifier)
	RequiredResources map[string]string `cbor:"5,keyasint,omitempty"`
	PhysicsModule     string            `cbor:"6,keyasint"`
	RenderModule      string            `cbor:"7,keyasint"`
	PhysicsGroup      string            `cbor:"8,keyasint,omitempty"`
	// Game options, opaque to the recorder
	GameOptions []byte    `cbor:"9,keyasint,omitempty"`
	CreatedAt   time.Time `cbor:"10,keyasint"`
}

// ChunkHeader precedes every encoded payload inside a chunk body.
type ChunkHeader struct {
	MonotonicTick uint64
	// Number of encoded bytes that follow
	Size uint64
}

// Tail is written once at the very end and indexes both chunk streams.
type Tail struct {
	SnapshotsIndex Index `cbor:"0,keyasint"`
	EventsIndex    Index `cbor:"1,keyasint"`
	// BLAKE2b-256 of the chunk section
	Checksum []byte `cbor:"2,keyasint"`
}

// IndexFor returns the index of the given stream.
func (t *Tail) IndexFor(s Stream) *Index {
	if s == STREAM_EVENTS {
		return &t.EventsIndex
	}
	return &t.SnapshotsIndex
}

type Stream uint8

const (
	STREAM_SNAPSHOTS Stream = 0
	STREAM_EVENTS    Stream = 1
)

func (s Stream) String() string {
	switch s {
	case STREAM_SNAPSHOTS:
		return "snapshots"
	case STREAM_EVENTS:
		return "events"
	default:
		return "unknown"
	}
}

// A Snapshot is one serialized game state.
type Snapshot []byte

// An Event is one serialized game event.
type Event []byte

// Events are all events that share a tick, in insertion order.
type Events []Event
