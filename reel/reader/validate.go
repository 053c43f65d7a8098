package reader

import (
	"github.com/indrora/reel/reel/format"
	"github.com/pkg/errors"
)

// Stats summarizes a validated recording.
type Stats struct {
	Chunks  map[format.Stream]int
	Entries map[format.Stream]int
	First   map[format.Stream]uint64
	Last    map[format.Stream]uint64
}

// ValidateFile opens the recording at path and checks it end to end: header, checksum,
// every indexed chunk, and tick order across chunks.
func ValidateFile(path string) (Stats, error) {
	rec, err := Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer rec.Close()
	return rec.Validate()
}

func (r *Recording) Validate() (Stats, error) {
	stats := Stats{
		Chunks:  map[format.Stream]int{},
		Entries: map[format.Stream]int{},
		First:   map[format.Stream]uint64{},
		Last:    map[format.Stream]uint64{},
	}

	if err := r.Verify(); err != nil {
		return stats, err
	}

	for _, stream := range []format.Stream{format.STREAM_SNAPSHOTS, format.STREAM_EVENTS} {
		var prevFirst, prevLast uint64
		for i, idx := range *r.Tail.IndexFor(stream) {
			entries, err := r.ReadChunk(idx.Offset)
			if err != nil {
				return stats, errors.Wrapf(err, "%s chunk at %d", stream, idx.Offset)
			}
			if len(entries) == 0 || entries[0].Tick != idx.Tick {
				return stats, errors.Wrapf(ErrIndexedTick, "%s chunk at %d", stream, idx.Offset)
			}
			first, last := entries[0].Tick, entries[len(entries)-1].Tick
			// same rules the writer enforces
			if i > 0 && (first <= prevFirst || last < prevLast) {
				return stats, errors.Wrapf(ErrOutOfOrder, "%s chunk %d..%d after %d..%d", stream, first, last, prevFirst, prevLast)
			}
			if i == 0 {
				stats.First[stream] = first
			}
			stats.Last[stream] = last
			prevFirst, prevLast = first, last

			stats.Chunks[stream]++
			stats.Entries[stream] += len(entries)
		}
	}
	return stats, nil
}
