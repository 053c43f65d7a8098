package recorder

import (
	"github.com/google/btree"
	"github.com/indrora/reel/reel/chunk"
)

type item[T any] struct {
	tick  uint64
	value T
}

func lessItem[T any](a, b item[T]) bool {
	return a.tick < b.tick
}

// pending is the ordered tick -> value buffer of one stream.
type pending[T any] struct {
	tree *btree.BTreeG[item[T]]
}

func newPending[T any]() *pending[T] {
	return &pending[T]{tree: btree.NewG[item[T]](16, lessItem[T])}
}

func (p *pending[T]) Len() int {
	return p.tree.Len()
}

func (p *pending[T]) newest() (uint64, bool) {
	it, ok := p.tree.Max()
	return it.tick, ok
}

func (p *pending[T]) get(tick uint64) (T, bool) {
	it, ok := p.tree.Get(item[T]{tick: tick})
	return it.value, ok
}

func (p *pending[T]) put(tick uint64, value T) {
	p.tree.ReplaceOrInsert(item[T]{tick: tick, value: value})
}

// keyAt returns the n-th oldest tick.
func (p *pending[T]) keyAt(n int) (uint64, bool) {
	var key uint64
	found := false
	i := 0
	p.tree.Ascend(func(it item[T]) bool {
		if i == n {
			key = it.tick
			found = true
			return false
		}
		i++
		return true
	})
	return key, found
}

// takeBefore removes and returns every entry older than tick.
func (p *pending[T]) takeBefore(tick uint64) []chunk.Entry {
	var entries []chunk.Entry
	p.tree.AscendLessThan(item[T]{tick: tick}, func(it item[T]) bool {
		entries = append(entries, chunk.Entry{Tick: it.tick, Payload: it.value})
		return true
	})
	for _, e := range entries {
		p.tree.Delete(item[T]{tick: e.Tick})
	}
	return entries
}

// drain empties the buffer in batches of at most size entries.
func (p *pending[T]) drain(size int) [][]chunk.Entry {
	var batches [][]chunk.Entry
	var batch []chunk.Entry
	p.tree.Ascend(func(it item[T]) bool {
		batch = append(batch, chunk.Entry{Tick: it.tick, Payload: it.value})
		if len(batch) == size {
			batches = append(batches, batch)
			batch = nil
		}
		return true
	})
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	p.tree.Clear(false)
	return batches
}
