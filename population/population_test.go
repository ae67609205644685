package population

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/das67333/gohashlife/internal/memtable"
	"github.com/das67333/gohashlife/internal/quadnode"
)

func TestGetBlankIsZeroWithoutCaching(t *testing.T) {
	c := qt.New(t)
	m := New(memtable.New(4))
	c.Assert(m.Get(quadnode.Null, 10), qt.Equals, float64(0))
	c.Assert(m.Len(), qt.Equals, 0)
}

func TestGetLeafPopcount(t *testing.T) {
	c := qt.New(t)
	mem := memtable.New(4)
	m := New(mem)
	leaf := mem.FindOrCreateLeaf(0b1011)
	c.Assert(m.Get(leaf, quadnode.LeafSizeLog2), qt.Equals, float64(3))
}

func TestGetRecursesAndCaches(t *testing.T) {
	c := qt.New(t)
	mem := memtable.New(4)
	m := New(mem)
	leafA := mem.FindOrCreateLeaf(0b1)
	leafB := mem.FindOrCreateLeaf(0b11)
	node := mem.FindOrCreateNode(leafA, leafB, quadnode.Null, quadnode.Null)

	got := m.Get(node, quadnode.LeafSizeLog2+1)
	c.Assert(got, qt.Equals, float64(3))
	// both leaves and the composite itself are now memoized.
	c.Assert(m.Len(), qt.Equals, 3)

	// second call hits the cache and doesn't grow it further.
	got2 := m.Get(node, quadnode.LeafSizeLog2+1)
	c.Assert(got2, qt.Equals, float64(3))
	c.Assert(m.Len(), qt.Equals, 3)
}

func TestResetClearsCache(t *testing.T) {
	c := qt.New(t)
	mem := memtable.New(4)
	m := New(mem)
	leaf := mem.FindOrCreateLeaf(0b1)
	m.Get(leaf, quadnode.LeafSizeLog2)
	c.Assert(m.Len(), qt.Not(qt.Equals), 0)
	m.Reset()
	c.Assert(m.Len(), qt.Equals, 0)
}
