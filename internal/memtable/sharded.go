package memtable

import (
	"sync"
	"sync/atomic"

	"github.com/timandy/routine"

	"github.com/das67333/gohashlife/internal/arena"
	"github.com/das67333/gohashlife/internal/quadnode"
)

// shardCountLog2 sets the stripe count for the parallel table. A stripe
// guards every bucket congruent to it modulo the stripe count, so two
// lookups contend only when their buckets share a stripe.
const shardCountLog2 = 10

// allocBatchSize is how many arena slots a goroutine pulls from the central
// free-list at once. Large enough that the arena mutex is off the hot path,
// small enough that an idle worker doesn't strand much of the index space.
const allocBatchSize = 64

// allocBatch is a goroutine-local run of pre-reserved arena slots.
type allocBatch struct {
	slots []quadnode.Idx
}

// Sharded is the parallel find_or_create variant of Table: bucket chains are
// serialised by striped locks, and node allocation goes through goroutine-
// local batches pulled in bulk from the shared arena, so concurrent callers
// touch no shared mutable state except the chain their key lands on.
//
// Unlike Table, Sharded has a fixed bucket count: growing the bucket array
// under concurrent readers would need a global stop, so exceeding the load
// limit poisons the table instead of rehashing. Callers size capLog2 for the
// pattern up front. Hash-cons uniqueness holds globally: an insert holds its
// stripe lock from probe to publication, so of two racing inserts of the
// same key exactly one allocates and the other observes it.
//
// Callers fan work out per WorkerThreads and MinCoroutineSpawnSizeLog2 and
// must quiesce (no in-flight finds) before GC or teardown.
type Sharded struct {
	arena   *arena.ChunkVec
	arenaMu sync.Mutex
	buckets []quadnode.Idx
	stripes [1 << shardCountLog2]sync.Mutex

	len      atomic.Uint32
	poisoned atomic.Bool

	local routine.ThreadLocal[*allocBatch]
}

// NewSharded returns a Sharded table with 1<<capLog2 buckets.
func NewSharded(capLog2 uint) *Sharded {
	return &Sharded{
		arena:   arena.New(),
		buckets: make([]quadnode.Idx, 1<<capLog2),
		local:   routine.NewThreadLocal[*allocBatch](),
	}
}

// Get returns the node at idx. As with Table.Get, sizeLog2 is accepted for
// symmetry and unused.
func (s *Sharded) Get(idx quadnode.Idx, _ uint) *quadnode.Node {
	return s.arena.Get(idx)
}

// Poisoned reports whether the table has stopped creating new nodes.
func (s *Sharded) Poisoned() bool { return s.poisoned.Load() || s.arena.Poisoned() }

// Len returns the number of live hash-consed nodes (excluding Idx(0)).
func (s *Sharded) Len() uint32 { return s.len.Load() }

// BytesTotal estimates resident memory: arena nodes plus the bucket array.
func (s *Sharded) BytesTotal() int {
	return s.arena.BytesTotal() + len(s.buckets)*4
}

// FindOrCreateNode implements the same contract as Table.FindOrCreateNode,
// safe for concurrent use.
func (s *Sharded) FindOrCreateNode(nw, ne, sw, se quadnode.Idx) quadnode.Idx {
	if nw == 0 && ne == 0 && sw == 0 && se == 0 {
		return quadnode.Null
	}
	return s.findOrCreate(nw, ne, sw, se, quadnode.Hash(nw, ne, sw, se))
}

// FindOrCreateLeaf looks up or creates a leaf encoding the given 8x8 bitmap.
func (s *Sharded) FindOrCreateLeaf(cells uint64) quadnode.Idx {
	nw := quadnode.Idx(uint32(cells))
	ne := quadnode.Idx(uint32(cells >> 32))
	return s.FindOrCreateNode(nw, ne, 0, 0)
}

func (s *Sharded) findOrCreate(nw, ne, sw, se quadnode.Idx, hash uint32) quadnode.Idx {
	if s.Poisoned() {
		return quadnode.Null
	}

	bucket := hash & (uint32(len(s.buckets)) - 1)
	stripe := &s.stripes[bucket%uint32(len(s.stripes))]
	stripe.Lock()
	defer stripe.Unlock()

	cur := s.buckets[bucket]
	for cur != 0 {
		n := s.arena.Get(cur)
		if n.NW == nw && n.NE == ne && n.SW == sw && n.SE == se {
			return cur
		}
		cur = n.Next
	}

	idx := s.allocate()
	if idx == 0 {
		return quadnode.Null
	}
	n := s.arena.Get(idx)
	n.NW, n.NE, n.SW, n.SE = nw, ne, sw, se
	n.Next = s.buckets[bucket]
	s.buckets[bucket] = idx
	if s.len.Add(1) > uint32(len(s.buckets))/2 {
		s.poisoned.Store(true)
	}
	return idx
}

// allocate hands out a slot from the calling goroutine's batch, refilling it
// from the central arena when drained.
func (s *Sharded) allocate() quadnode.Idx {
	batch := s.local.Get()
	if batch == nil {
		batch = &allocBatch{slots: make([]quadnode.Idx, 0, allocBatchSize)}
		s.local.Set(batch)
	}
	if len(batch.slots) == 0 {
		s.arenaMu.Lock()
		for i := 0; i < allocBatchSize; i++ {
			idx, err := s.arena.Allocate()
			if err != nil {
				s.poisoned.Store(true)
				break
			}
			batch.slots = append(batch.slots, idx)
		}
		s.arenaMu.Unlock()
		if len(batch.slots) == 0 {
			return 0
		}
	}
	idx := batch.slots[len(batch.slots)-1]
	batch.slots = batch.slots[:len(batch.slots)-1]
	return idx
}

// ReleaseLocal returns the calling goroutine's unused pre-reserved slots to
// the central free-list. Workers call it before exiting so a short-lived
// goroutine doesn't strand a batch of index space.
func (s *Sharded) ReleaseLocal() {
	batch := s.local.Get()
	if batch == nil {
		return
	}
	s.arenaMu.Lock()
	for _, idx := range batch.slots {
		s.arena.Release(idx)
	}
	s.arenaMu.Unlock()
	batch.slots = batch.slots[:0]
	s.local.Remove()
}
