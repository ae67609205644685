package memtable

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/das67333/gohashlife/internal/quadnode"
)

func smallTable() *Table { return New(2) } // 4 buckets, forces early rehash

func TestFindOrCreateNodeDeduplicates(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	a := tb.FindOrCreateNode(1, 2, 3, 4)
	b := tb.FindOrCreateNode(1, 2, 3, 4)
	c.Assert(a, qt.Equals, b)
	c.Assert(tb.Len(), qt.Equals, uint32(1))
}

func TestFindOrCreateNodeDistinguishesTuples(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	a := tb.FindOrCreateNode(1, 2, 3, 4)
	b := tb.FindOrCreateNode(4, 3, 2, 1)
	c.Assert(a, qt.Not(qt.Equals), b)
}

func TestFindOrCreateNodeZeroCanonicalisation(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	c.Assert(tb.FindOrCreateNode(0, 0, 0, 0), qt.Equals, quadnode.Null)
	c.Assert(tb.Len(), qt.Equals, uint32(0))
}

func TestFindOrCreateLeafRoundTrip(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	idx := tb.FindOrCreateLeaf(0x0102030405060708)
	n := tb.Get(idx, quadnode.LeafSizeLog2)
	c.Assert(n.LeafCells(), qt.Equals, uint64(0x0102030405060708))

	idx2 := tb.FindOrCreateLeaf(0x0102030405060708)
	c.Assert(idx2, qt.Equals, idx)
}

func TestRehashPreservesLookups(t *testing.T) {
	c := qt.New(t)
	tb := smallTable() // 4 buckets; rehashes well before this loop ends
	idxs := make([]quadnode.Idx, 0, 64)
	for i := quadnode.Idx(1); i <= 64; i++ {
		idxs = append(idxs, tb.FindOrCreateNode(i, i+1, i+2, i+3))
	}
	for i, idx := range idxs {
		n := quadnode.Idx(i + 1)
		got := tb.FindOrCreateNode(n, n+1, n+2, n+3)
		c.Assert(got, qt.Equals, idx)
	}
}

func TestPrefetchedLookupMatchesDirect(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	direct := tb.FindOrCreateNode(9, 8, 7, 6)

	p := tb.Prefetch(9, 8, 7, 6)
	resolved := p.Resolve()
	c.Assert(resolved, qt.Equals, direct)
}

func TestPrefetchedLookupZero(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	p := tb.Prefetch(0, 0, 0, 0)
	c.Assert(p.Resolve(), qt.Equals, quadnode.Null)
}

func TestGCMarkAndSweepReclaimsUnreachable(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()

	leaf := tb.FindOrCreateLeaf(0xFF)
	kept := tb.FindOrCreateNode(leaf, 0, 0, 0)
	discarded := tb.FindOrCreateNode(leaf, leaf, 0, 0)
	_ = discarded

	tb.GCMark(kept, quadnode.LeafSizeLog2+1)
	tb.GCFinish()

	// kept and its leaf child must still resolve to the same handles.
	c.Assert(tb.FindOrCreateNode(leaf, 0, 0, 0), qt.Equals, kept)

	// discarded was never marked, so only leaf and kept survive the sweep:
	// its bucket entry is gone even though the slot may be physically reused.
	c.Assert(tb.Len(), qt.Equals, uint32(2))
}

func TestGCFinishClearsCaches(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	leaf := tb.FindOrCreateLeaf(0xFF)
	n := tb.Get(leaf, quadnode.LeafSizeLog2)
	n.HasCache = true
	n.Cache = 123

	tb.GCMark(leaf, quadnode.LeafSizeLog2)
	tb.GCFinish()

	c.Assert(tb.Get(leaf, quadnode.LeafSizeLog2).HasCache, qt.IsFalse)
}

func TestPoisonedTableReturnsNull(t *testing.T) {
	c := qt.New(t)
	tb := smallTable()
	tb.poisoned = true
	c.Assert(tb.FindOrCreateNode(1, 2, 3, 4), qt.Equals, quadnode.Null)
}
