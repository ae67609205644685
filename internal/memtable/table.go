// Package memtable implements the hash-consing memory manager: an
// open-addressed (chained) hash table of bucket heads over an arena.ChunkVec,
// providing find_or_create semantics, mark-sweep GC, and rehashing.
package memtable

import (
	"errors"
	"sync/atomic"

	"github.com/timandy/routine"

	"github.com/das67333/gohashlife/internal/arena"
	"github.com/das67333/gohashlife/internal/quadnode"
)

// DefaultCapLog2 is the default initial bucket count exponent.
const DefaultCapLog2 = 20

// ErrPoisoned is surfaced by engine update calls once capacity has been
// exhausted; find_or_create itself degrades silently to quadnode.Null.
var ErrPoisoned = errors.New("memtable: poisoned after capacity exhaustion")

// Table canonicalises quadtree nodes: equal (nw,ne,sw,se) tuples always
// resolve to the same arena index, so structural equality reduces to index
// equality.
type Table struct {
	arena    *arena.ChunkVec
	buckets  []quadnode.Idx
	len      uint32
	poisoned bool

	// lastGoroutine records the goroutine ID that most recently mutated the
	// table, so a caller contemplating a parallel find_or_create path can
	// confirm (or catch a regression disproving) single-writer use.
	lastGoroutine atomic.Int64
}

// LastGoroutine returns the ID of the goroutine that most recently called
// FindOrCreateNode, FindOrCreateLeaf, or Resolve. It is a debugging aid, not
// a concurrency guarantee.
func (t *Table) LastGoroutine() int64 { return t.lastGoroutine.Load() }

// New returns a Table with 1<<capLog2 initial buckets.
func New(capLog2 uint) *Table {
	return &Table{
		arena:   arena.New(),
		buckets: make([]quadnode.Idx, 1<<capLog2),
	}
}

// Get returns the node at idx. sizeLog2 is accepted for symmetry with the
// level-carrying callers but unused: the arena stores the same record shape
// at every level.
func (t *Table) Get(idx quadnode.Idx, _ uint) *quadnode.Node {
	return t.arena.Get(idx)
}

// GetMut is an alias of Get: Go pointers are already mutable.
func (t *Table) GetMut(idx quadnode.Idx, sizeLog2 uint) *quadnode.Node {
	return t.Get(idx, sizeLog2)
}

// Poisoned reports whether the table has stopped creating new nodes.
func (t *Table) Poisoned() bool { return t.poisoned || t.arena.Poisoned() }

// Len returns the number of live hash-consed nodes (excluding Idx(0)).
func (t *Table) Len() uint32 { return t.len }

// BytesTotal estimates resident memory: arena nodes plus the bucket array.
func (t *Table) BytesTotal() int {
	return t.arena.BytesTotal() + len(t.buckets)*4
}

func bucketMask(buckets []quadnode.Idx) uint32 { return uint32(len(buckets)) - 1 }

// FindOrCreateNode returns the canonical index for the given quadrant
// tuple, creating it on first use. The all-zero tuple resolves to
// quadnode.Null without probing; a hit moves its node to the head of the
// bucket chain.
func (t *Table) FindOrCreateNode(nw, ne, sw, se quadnode.Idx) quadnode.Idx {
	if nw == 0 && ne == 0 && sw == 0 && se == 0 {
		return quadnode.Null
	}
	return t.findOrCreate(nw, ne, sw, se, quadnode.Hash(nw, ne, sw, se))
}

// FindOrCreateLeaf looks up or creates a leaf encoding the given 8x8 bitmap.
func (t *Table) FindOrCreateLeaf(cells uint64) quadnode.Idx {
	nw := quadnode.Idx(uint32(cells))
	ne := quadnode.Idx(uint32(cells >> 32))
	return t.FindOrCreateNode(nw, ne, 0, 0)
}

func (t *Table) findOrCreate(nw, ne, sw, se quadnode.Idx, hash uint32) quadnode.Idx {
	t.lastGoroutine.Store(int64(routine.Goid()))
	if t.poisoned || t.arena.Poisoned() {
		return quadnode.Null
	}

	mask := bucketMask(t.buckets)
	bucket := hash & mask
	var prev quadnode.Idx
	cur := t.buckets[bucket]
	for cur != 0 {
		n := t.arena.Get(cur)
		if n.NW == nw && n.NE == ne && n.SW == sw && n.SE == se {
			if prev != 0 {
				pn := t.arena.Get(prev)
				pn.Next = n.Next
				n.Next = t.buckets[bucket]
				t.buckets[bucket] = cur
			}
			return cur
		}
		prev = cur
		cur = n.Next
	}

	idx, err := t.arena.Allocate()
	if err != nil {
		t.poisoned = true
		return quadnode.Null
	}
	n := t.arena.Get(idx)
	n.NW, n.NE, n.SW, n.SE = nw, ne, sw, se
	n.Next = t.buckets[bucket]
	t.buckets[bucket] = idx
	t.len++
	if t.len > uint32(len(t.buckets))/2 {
		t.rehash()
	}
	return idx
}

// rehash doubles the bucket count, re-threading every live chain (followed
// through the old buckets, not a full arena scan) into the new array.
func (t *Table) rehash() {
	old := t.buckets
	t.buckets = make([]quadnode.Idx, len(old)*2)
	mask := bucketMask(t.buckets)
	for _, head := range old {
		cur := head
		for cur != 0 {
			n := t.arena.Get(cur)
			next := n.Next
			b := quadnode.Hash(n.NW, n.NE, n.SW, n.SE) & mask
			n.Next = t.buckets[b]
			t.buckets[b] = cur
			cur = next
		}
	}
}

// PrefetchedLookup captures a precomputed hash (and an early, discarded read
// of the target bucket slot, to warm the cache line) so a caller can issue
// several lookups before resolving any of them, overlapping memory latency
// across sibling recursive calls.
type PrefetchedLookup struct {
	t              *Table
	nw, ne, sw, se quadnode.Idx
	hash           uint32
}

// Prefetch schedules a lookup without resolving it.
func (t *Table) Prefetch(nw, ne, sw, se quadnode.Idx) PrefetchedLookup {
	if nw == 0 && ne == 0 && sw == 0 && se == 0 {
		return PrefetchedLookup{t: t}
	}
	h := quadnode.Hash(nw, ne, sw, se)
	if len(t.buckets) > 0 {
		_ = t.buckets[h&bucketMask(t.buckets)] // touch the bucket slot early
	}
	return PrefetchedLookup{t: t, nw: nw, ne: ne, sw: sw, se: se, hash: h}
}

// Resolve completes a scheduled lookup.
func (p PrefetchedLookup) Resolve() quadnode.Idx {
	if p.nw == 0 && p.ne == 0 && p.sw == 0 && p.se == 0 {
		return quadnode.Null
	}
	return p.t.findOrCreate(p.nw, p.ne, p.sw, p.se, p.hash)
}

// GCMark recursively marks idx and its structural descendants down to (but
// not through) leaf level, stopping at Null and at already-marked nodes.
// cache edges are deliberately not traversed: Sweep clears HasCache on every
// node regardless of mark state, so a stale Cache pointer is never read.
func (t *Table) GCMark(idx quadnode.Idx, sizeLog2 uint) {
	if idx == 0 {
		return
	}
	n := t.arena.Get(idx)
	if n.GCMarked {
		return
	}
	n.GCMarked = true
	if sizeLog2 == quadnode.LeafSizeLog2 {
		return
	}
	t.GCMark(n.NW, sizeLog2-1)
	t.GCMark(n.NE, sizeLog2-1)
	t.GCMark(n.SW, sizeLog2-1)
	t.GCMark(n.SE, sizeLog2-1)
}

// GCFinish rebuilds the bucket table from the nodes GCMark left marked, then
// sweeps the arena: unmarked nodes are reclaimed and every cache is
// invalidated.
func (t *Table) GCFinish() {
	for i := range t.buckets {
		t.buckets[i] = 0
	}
	mask := bucketMask(t.buckets)
	var live uint32
	size := t.arena.Size()
	for i := quadnode.Idx(1); i < quadnode.Idx(size); i++ {
		n := t.arena.Get(i)
		if !n.GCMarked {
			continue
		}
		b := quadnode.Hash(n.NW, n.NE, n.SW, n.SE) & mask
		n.Next = t.buckets[b]
		t.buckets[b] = i
		live++
	}
	t.arena.Sweep()
	t.len = live
	t.poisoned = false
}
