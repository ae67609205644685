package hashlife

import (
	"math/bits"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/das67333/gohashlife/internal/quadnode"
)

// population sums live cells under idx at level sizeLog2 by plain recursion,
// independent of the memoized population manager, to check HashLife's
// evolution preserves or predictably changes cell counts.
func population(e *Engine, idx quadnode.Idx, sizeLog2 uint) int {
	if idx == quadnode.Null {
		return 0
	}
	n := e.Mem.Get(idx, sizeLog2)
	if sizeLog2 == quadnode.LeafSizeLog2 {
		return bits.OnesCount64(n.LeafCells())
	}
	return population(e, n.NW, sizeLog2-1) + population(e, n.NE, sizeLog2-1) +
		population(e, n.SW, sizeLog2-1) + population(e, n.SE, sizeLog2-1)
}

func TestUpdateBlankUniverseStaysBlank(t *testing.T) {
	c := qt.New(t)
	for _, topo := range []Topology{Torus, Unbounded} {
		e := New(6, topo)
		_, _, err := e.Update(3)
		c.Assert(err, qt.IsNil)
		c.Assert(population(e, e.Root, e.SizeLog2), qt.Equals, 0)
	}
}

func TestUpdateRejectsHugeGenerationCount(t *testing.T) {
	c := qt.New(t)
	e := New(6, Torus)
	_, _, err := e.Update(64)
	c.Assert(err, qt.ErrorIs, ErrGenerationsTooLarge)
}

func TestUpdateNodeMemoizes(t *testing.T) {
	c := qt.New(t)
	e := New(6, Torus)
	root := e.Root
	a := e.updateNode(root, e.SizeLog2)
	n := e.Mem.Get(root, e.SizeLog2)
	c.Assert(n.HasCache, qt.IsTrue)
	b := e.updateNode(root, e.SizeLog2)
	c.Assert(a, qt.Equals, b)
}

func TestWithFrameWithoutFrameRoundTrip(t *testing.T) {
	c := qt.New(t)
	e := New(5, Unbounded)
	leaf := e.Mem.FindOrCreateLeaf(0x8040201008040201)
	level4 := e.Mem.FindOrCreateNode(leaf, quadnode.Null, quadnode.Null, quadnode.Null)
	e.Root = e.Mem.FindOrCreateNode(level4, quadnode.Null, quadnode.Null, quadnode.Null)

	framed := e.withFrame(e.Root, e.SizeLog2)
	back := e.withoutFrame(framed, e.SizeLog2+1)
	c.Assert(back, qt.Equals, e.Root)
}

func TestHasBlankFrameOnFreshFrame(t *testing.T) {
	c := qt.New(t)
	e := New(5, Unbounded)
	leaf := e.Mem.FindOrCreateLeaf(1)
	level4 := e.Mem.FindOrCreateNode(leaf, quadnode.Null, quadnode.Null, quadnode.Null)
	e.Root = e.Mem.FindOrCreateNode(level4, quadnode.Null, quadnode.Null, quadnode.Null)

	e.Root = e.withFrame(e.Root, e.SizeLog2)
	e.SizeLog2++
	c.Assert(e.hasBlankFrame(), qt.IsTrue)
}

// gliderCells is a single glider in the top-left 3x3 of an 8x8 leaf, in the
// classic south-east-moving phase: (1,0),(2,1),(0,2),(1,2),(2,2).
func gliderCells() uint64 {
	var cells uint64
	set := func(x, y uint) { cells |= 1 << (8*y + x) }
	set(1, 0)
	set(2, 1)
	set(0, 2)
	set(1, 2)
	set(2, 2)
	return cells
}

func TestGliderPopulationConservedOnTorus(t *testing.T) {
	c := qt.New(t)
	e := New(6, Torus) // 64x64 torus, glider seeded at the top-left corner
	leaf := e.Mem.FindOrCreateLeaf(gliderCells())
	level4 := e.Mem.FindOrCreateNode(leaf, quadnode.Null, quadnode.Null, quadnode.Null)
	level5 := e.Mem.FindOrCreateNode(level4, quadnode.Null, quadnode.Null, quadnode.Null)
	e.Root = e.Mem.FindOrCreateNode(level5, quadnode.Null, quadnode.Null, quadnode.Null)

	for i := 0; i < 4; i++ {
		_, _, err := e.Update(0)
		c.Assert(err, qt.IsNil)
		c.Assert(population(e, e.Root, e.SizeLog2), qt.Equals, 5)
	}
}

func TestRunGCPreservesReachablePopulation(t *testing.T) {
	c := qt.New(t)
	e := New(6, Torus)
	leaf := e.Mem.FindOrCreateLeaf(gliderCells())
	level4 := e.Mem.FindOrCreateNode(leaf, quadnode.Null, quadnode.Null, quadnode.Null)
	level5 := e.Mem.FindOrCreateNode(level4, quadnode.Null, quadnode.Null, quadnode.Null)
	e.Root = e.Mem.FindOrCreateNode(level5, quadnode.Null, quadnode.Null, quadnode.Null)

	before := population(e, e.Root, e.SizeLog2)
	e.RunGC()
	after := population(e, e.Root, e.SizeLog2)
	c.Assert(after, qt.Equals, before)
}
