package format

import "sort"

// IndexEntry maps the first tick of a chunk to the chunk's byte offset,
// relative to the start of the chunk section.
type IndexEntry struct {
	_      struct{} `cbor:",toarray"`
	Tick   uint64
	Offset uint64
}

// Index is kept sorted by tick, one entry per chunk first tick.
type Index []IndexEntry

func (idx Index) search(tick uint64) int {
	return sort.Search(len(idx), func(i int) bool { return idx[i].Tick >= tick })
}

// Insert adds or replaces the offset for tick.
func (idx *Index) Insert(tick, offset uint64) {
	i := idx.search(tick)
	if i < len(*idx) && (*idx)[i].Tick == tick {
		(*idx)[i].Offset = offset
		return
	}
	*idx = append(*idx, IndexEntry{})
	copy((*idx)[i+1:], (*idx)[i:])
	(*idx)[i] = IndexEntry{Tick: tick, Offset: offset}
}

// Get returns the offset stored for exactly tick.
func (idx Index) Get(tick uint64) (uint64, bool) {
	i := idx.search(tick)
	if i < len(idx) && idx[i].Tick == tick {
		return idx[i].Offset, true
	}
	return 0, false
}

// Floor returns the entry of the last chunk starting at or before tick. That is
// the chunk a player has to decode to reach tick.
func (idx Index) Floor(tick uint64) (IndexEntry, bool) {
	i := sort.Search(len(idx), func(i int) bool { return idx[i].Tick > tick })
	if i == 0 {
		return IndexEntry{}, false
	}
	return idx[i-1], true
}

func (idx Index) First() (IndexEntry, bool) {
	if len(idx) == 0 {
		return IndexEntry{}, false
	}
	return idx[0], true
}
