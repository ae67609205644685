package arena

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/das67333/gohashlife/internal/quadnode"
)

func TestNewReservesSlotZero(t *testing.T) {
	c := qt.New(t)
	a := New()
	c.Assert(a.Size(), qt.Equals, uint32(1))
}

func TestAllocateAcrossChunkBoundary(t *testing.T) {
	c := qt.New(t)
	a := New()
	var last quadnode.Idx
	for i := 0; i < ChunkSize+10; i++ {
		idx, err := a.Allocate()
		c.Assert(err, qt.IsNil)
		c.Assert(idx, qt.Not(qt.Equals), quadnode.Idx(0))
		last = idx
	}
	c.Assert(last, qt.Equals, quadnode.Idx(ChunkSize+10))
}

func TestAllocateReturnsZeroedNode(t *testing.T) {
	c := qt.New(t)
	a := New()
	idx, err := a.Allocate()
	c.Assert(err, qt.IsNil)
	n := a.Get(idx)
	n.NW = 7
	n.HasCache = true

	a.Get(idx).GCMarked = false
	a.Sweep() // unmarked -> freed, pushed to free-list

	idx2, err := a.Allocate()
	c.Assert(err, qt.IsNil)
	c.Assert(idx2, qt.Equals, idx) // reused from free-list
	n2 := a.Get(idx2)
	c.Assert(*n2, qt.Equals, quadnode.Node{})
}

func TestSweepPreservesMarkedNodes(t *testing.T) {
	c := qt.New(t)
	a := New()
	idx, _ := a.Allocate()
	n := a.Get(idx)
	n.NW, n.NE, n.SW, n.SE = 1, 2, 3, 4
	n.GCMarked = true

	a.Sweep()

	n2 := a.Get(idx)
	c.Assert(n2.GCMarked, qt.IsFalse) // unmark happens even for survivors
	c.Assert(n2.NW, qt.Equals, quadnode.Idx(1))
	c.Assert(n2.NE, qt.Equals, quadnode.Idx(2))
	c.Assert(n2.SW, qt.Equals, quadnode.Idx(3))
	c.Assert(n2.SE, qt.Equals, quadnode.Idx(4))
}

func TestSweepClearsCacheGlobally(t *testing.T) {
	c := qt.New(t)
	a := New()
	idxLive, _ := a.Allocate()
	live := a.Get(idxLive)
	live.GCMarked = true
	live.HasCache = true
	live.Cache = 99

	idxDead, _ := a.Allocate()
	dead := a.Get(idxDead)
	dead.HasCache = true
	dead.Cache = 42

	a.Sweep()

	c.Assert(a.Get(idxLive).HasCache, qt.IsFalse)
	c.Assert(a.Get(idxDead).HasCache, qt.IsFalse)
}

func TestAllocateExhaustion(t *testing.T) {
	c := qt.New(t)
	a := New()
	a.capLimit = 2 // only Idx(1) can be allocated beyond the reserved Idx(0)
	idx, err := a.Allocate()
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, quadnode.Idx(1))

	_, err = a.Allocate()
	c.Assert(err, qt.Equals, ErrCapacity)
	c.Assert(a.Poisoned(), qt.IsTrue)

	_, err = a.Allocate()
	c.Assert(err, qt.Equals, ErrCapacity)
}
