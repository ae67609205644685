package life

import (
	"math/bits"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/das67333/gohashlife/internal/leafstep"
	"github.com/das67333/gohashlife/internal/quadnode"
)

// gliderCells is a single glider in the top-left 3x3 of an 8x8 leaf, a phase
// of the classic south-east-moving glider.
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

func gliderCellsArray(sizeLog2 uint) []uint64 {
	n := uint64(1) << sizeLog2
	cells := make([]uint64, 1<<(sizeLog2*2-6))
	g := gliderCells()
	for y := uint64(0); y < 8; y++ {
		for x := uint64(0); x < 8; x++ {
			if g>>(8*y+x)&1 != 0 {
				idx := x + y*n
				cells[idx/64] |= 1 << (idx % 64)
			}
		}
	}
	return cells
}

func popcountCells(cells []uint64) int {
	total := 0
	for _, w := range cells {
		total += bits.OnesCount64(w)
	}
	return total
}

func TestHashLifeBlankUniverseStaysBlankUnderUpdate(t *testing.T) {
	c := qt.New(t)
	e := NewHashLifeEngine(7, Torus)
	_, _, err := e.Update(5, Torus)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Population(), qt.Equals, float64(0))
	c.Assert(e.Hash(), qt.Equals, uint64(0))
	c.Assert(e.SideLengthLog2(), qt.Equals, uint32(7))
}

func TestHashLifeGliderTranslatesOnTorus(t *testing.T) {
	c := qt.New(t)
	e := NewHashLifeEngine(7, Torus)
	c.Assert(e.FromCellsArray(7, gliderCellsArray(7)), qt.IsNil)

	for i := 0; i < 4; i++ {
		_, _, err := e.Update(0, Torus)
		c.Assert(err, qt.IsNil)
		c.Assert(e.Population(), qt.Equals, float64(5))
	}

	// This phase (live at (1,0),(2,1),(0,2),(1,2),(2,2)) is the classic
	// glider that drifts one cell south-east every four generations.
	side := uint64(1) << 7
	for y := uint64(0); y < 8; y++ {
		for x := uint64(0); x < 8; x++ {
			want := gliderCells()>>(8*y+x)&1 != 0
			got := e.GetCell((x+1)%side, (y+1)%side)
			c.Assert(got, qt.Equals, want, qt.Commentf("cell (%d,%d)", x, y))
		}
	}
}

func TestLeafAllLiveDiesOutInFourSteps(t *testing.T) {
	c := qt.New(t)
	const allLive = ^uint64(0)
	got := leafstep.Update(allLive, allLive, allLive, allLive, 4)
	c.Assert(got, qt.Equals, uint64(0))
}

func TestLeafSingleCellDiesInOneStep(t *testing.T) {
	c := qt.New(t)
	var nw uint64 = 1 << (8*3 + 3)
	got := leafstep.Update(nw, 0, 0, 0, 1)
	c.Assert(got, qt.Equals, uint64(0))
}

func TestHashLifeSetCellGetCellRoundTrip(t *testing.T) {
	c := qt.New(t)
	e := NewHashLifeEngine(7, Unbounded)
	e.SetCell(5, 9, true)
	c.Assert(e.GetCell(5, 9), qt.IsTrue)
	c.Assert(e.GetCell(5, 10), qt.IsFalse)
	e.SetCell(5, 9, false)
	c.Assert(e.GetCell(5, 9), qt.IsFalse)
}

func TestHashLifeSaveAndLoadMacrocellRoundTrips(t *testing.T) {
	c := qt.New(t)
	e := NewHashLifeEngine(7, Torus)
	c.Assert(e.FromCellsArray(7, gliderCellsArray(7)), qt.IsNil)
	before := e.Hash()
	data := e.SaveAsMacrocell()

	loaded, err := NewHashLifeEngineFromMacrocell(data, Torus)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.Hash(), qt.Equals, before)
	c.Assert(loaded.Population(), qt.Equals, e.Population())
}

func TestHashLifeRunGCPreservesPopulationAndHash(t *testing.T) {
	c := qt.New(t)
	e := NewHashLifeEngine(7, Torus)
	c.Assert(e.FromCellsArray(7, gliderCellsArray(7)), qt.IsNil)
	_, _, err := e.Update(0, Torus)
	c.Assert(err, qt.IsNil)

	beforePop, beforeHash := e.Population(), e.Hash()
	e.RunGC()
	c.Assert(e.Population(), qt.Equals, beforePop)
	c.Assert(e.Hash(), qt.Equals, beforeHash)
}

func TestStreamLifeMatchesHashLifePopulationOnGlider(t *testing.T) {
	c := qt.New(t)
	hl := NewHashLifeEngine(7, Torus)
	c.Assert(hl.FromCellsArray(7, gliderCellsArray(7)), qt.IsNil)
	sl := NewStreamLifeEngine(7, Torus)
	c.Assert(sl.FromCellsArray(7, gliderCellsArray(7)), qt.IsNil)

	for i := 0; i < 4; i++ {
		_, _, err := hl.Update(0, Torus)
		c.Assert(err, qt.IsNil)
		_, _, err = sl.Update(0, Torus)
		c.Assert(err, qt.IsNil)
		c.Assert(sl.Population(), qt.Equals, hl.Population())
	}
}

func TestSIMDEngineMatchesHashLifeOnGlider(t *testing.T) {
	c := qt.New(t)
	cells := gliderCellsArray(7)

	hl := NewHashLifeEngine(7, Torus)
	c.Assert(hl.FromCellsArray(7, cells), qt.IsNil)
	sd, err := NewSIMDEngine(7)
	c.Assert(err, qt.IsNil)
	c.Assert(sd.FromCellsArray(7, cells), qt.IsNil)

	for i := 0; i < 4; i++ {
		_, _, err := hl.Update(0, Torus)
		c.Assert(err, qt.IsNil)
		_, _, err = sd.Update(0, Torus)
		c.Assert(err, qt.IsNil)
		c.Assert(sd.Population(), qt.Equals, hl.Population())
	}
	c.Assert(popcountCells(sd.GetCells()), qt.Equals, popcountCells(hl.GetCells()))
}

func TestSIMDEngineRejectsUnboundedTopology(t *testing.T) {
	c := qt.New(t)
	sd, err := NewSIMDEngine(7)
	c.Assert(err, qt.IsNil)
	_, _, err = sd.Update(0, Unbounded)
	c.Assert(err, qt.ErrorIs, ErrSIMDTopologyUnsupported)
}

func TestFromRecursiveOTCAMetapixelRejectsDepthZero(t *testing.T) {
	c := qt.New(t)
	_, _, _, err := FromRecursiveOTCAMetapixel(0, [][]uint8{{0}}, nil, nil)
	c.Assert(err, qt.Equals, errOTCADepthZero)
}

func TestFromRecursiveOTCAMetapixelBuildsExpectedSize(t *testing.T) {
	c := qt.New(t)
	otcaSide := uint64(1) << otcaSizeLog2
	blank := make([]uint64, otcaSide*otcaSide/64)
	top := [][]uint8{{0, 1}, {1, 0}}
	_, root, sizeLog2, err := FromRecursiveOTCAMetapixel(1, top, blank, blank)
	c.Assert(err, qt.IsNil)
	c.Assert(sizeLog2, qt.Equals, uint(otcaSizeLog2+1))
	// both OTCA base states are blank here, so the whole tree canonicalises
	// to the shared empty node.
	c.Assert(root, qt.Equals, quadnode.Null)
}

func TestFillTextureSnapsViewportAndFillsEveryPixel(t *testing.T) {
	c := qt.New(t)
	e := NewHashLifeEngine(7, Torus)
	c.Assert(e.FromCellsArray(7, gliderCellsArray(7)), qt.IsNil)

	viewportX, viewportY, size, resolution := 0.0, 0.0, 64.0, 16.0
	var dst []float64
	e.FillTexture(&viewportX, &viewportY, &size, &resolution, &dst)
	c.Assert(dst, qt.HasLen, int(resolution*resolution))

	var total float64
	for _, v := range dst {
		total += v
	}
	c.Assert(total, qt.Equals, float64(5))
}
