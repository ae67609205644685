// Package arena implements the chunked, never-reallocating node store that
// backs the hash-cons table: a sequence of fixed-size chunks addressed by
// quadnode.Idx, plus a free-list for garbage-collected slots.
package arena

import (
	"errors"
	"unsafe"

	"github.com/das67333/gohashlife/internal/quadnode"
)

// ChunkSize is the number of nodes per chunk.
const ChunkSize = 1 << 13

// maxIdx reserves the top two bits of a 32-bit Idx, bounding the arena well
// below the point where index arithmetic could wrap.
const maxIdx = 1 << 30

// ErrCapacity is returned by Allocate once the arena has grown to maxIdx
// nodes.
var ErrCapacity = errors.New("arena: node index space exhausted")

// ChunkVec is a growable arena of quadnode.Node, indexed by quadnode.Idx.
// Idx(0) is permanently reserved as the canonical empty node and is never
// handed out by Allocate.
type ChunkVec struct {
	chunks   [][]quadnode.Node
	size     uint32 // number of slots ever bump-allocated, including Idx(0)
	freeHead quadnode.Idx
	poisoned bool
	capLimit uint32 // exposed for tests; defaults to maxIdx
}

// New returns a ChunkVec with slot 0 already reserved.
func New() *ChunkVec {
	c := &ChunkVec{capLimit: maxIdx}
	c.growTo(1)
	c.size = 1
	return c
}

func (c *ChunkVec) growTo(n uint32) {
	need := (int(n) + ChunkSize - 1) / ChunkSize
	for len(c.chunks) < need {
		c.chunks = append(c.chunks, make([]quadnode.Node, ChunkSize))
	}
}

// Size returns one past the highest index ever bump-allocated. Free-listed
// slots below this bound are still counted.
func (c *ChunkVec) Size() uint32 { return c.size }

// Poisoned reports whether capacity has been exhausted; further Allocate
// calls return ErrCapacity.
func (c *ChunkVec) Poisoned() bool { return c.poisoned }

// Get returns the node at idx. Indexing is unchecked in the sense that it
// trusts idx < Size(); callers never construct an Idx outside that range.
func (c *ChunkVec) Get(idx quadnode.Idx) *quadnode.Node {
	return &c.chunks[idx/ChunkSize][idx%ChunkSize]
}

// Allocate pops the free-list head, or bump-allocates a fresh slot (growing
// a new chunk as needed) when the free-list is empty.
func (c *ChunkVec) Allocate() (quadnode.Idx, error) {
	if c.poisoned {
		return 0, ErrCapacity
	}
	if c.freeHead != 0 {
		idx := c.freeHead
		n := c.Get(idx)
		c.freeHead = n.Next
		*n = quadnode.Node{}
		return idx, nil
	}
	if c.size >= c.capLimit {
		c.poisoned = true
		return 0, ErrCapacity
	}
	idx := quadnode.Idx(c.size)
	c.size++
	c.growTo(c.size)
	return idx, nil
}

// Release pushes a previously Allocated slot back onto the free-list without
// waiting for a GC sweep. The sharded table uses it to return the unused tail
// of a goroutine-local allocation batch.
func (c *ChunkVec) Release(idx quadnode.Idx) {
	n := c.Get(idx)
	*n = quadnode.Node{Next: c.freeHead}
	c.freeHead = idx
}

// Sweep performs the mark-sweep reclaim pass: walking every non-zero slot in
// reverse order, unmarked slots are pushed onto a fresh free-list and their
// quadrants cleared; marked slots are preserved with GCMarked cleared. In
// both cases HasCache/Cache are cleared, since a GC globally invalidates the
// evolution memoization cache.
func (c *ChunkVec) Sweep() {
	var newHead quadnode.Idx
	for i := int64(c.size) - 1; i >= 1; i-- {
		idx := quadnode.Idx(i)
		n := c.Get(idx)
		if n.GCMarked {
			n.GCMarked = false
		} else {
			n.NW, n.NE, n.SW, n.SE = 0, 0, 0, 0
			n.Meta = 0
			n.Next = newHead
			newHead = idx
		}
		n.HasCache = false
		n.Cache = 0
	}
	c.freeHead = newHead
}

// BytesTotal estimates the arena's resident memory footprint.
func (c *ChunkVec) BytesTotal() int {
	return len(c.chunks) * ChunkSize * int(unsafe.Sizeof(quadnode.Node{}))
}
