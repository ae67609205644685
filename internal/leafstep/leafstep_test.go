package leafstep

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

// referenceStep advances a 16x16 zero-padded grid (rows of 16 bits, bit x is
// column x) by one generation using the textbook neighbour-counting rule.
// It is independent of updateRow and serves as a ground truth for the
// bit-parallel kernel, valid wherever the pattern stays clear of the grid's
// outer edge for the number of generations being checked.
func referenceStep(grid [16]uint16) [16]uint16 {
	bit := func(y, x int) int {
		if y < 0 || y > 15 || x < 0 || x > 15 {
			return 0
		}
		return int(grid[y]>>uint(x)) & 1
	}
	var out [16]uint16
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			n := bit(y-1, x-1) + bit(y-1, x) + bit(y-1, x+1) +
				bit(y, x-1) + bit(y, x+1) +
				bit(y+1, x-1) + bit(y+1, x) + bit(y+1, x+1)
			alive := bit(y, x) == 1
			next := (alive && (n == 2 || n == 3)) || (!alive && n == 3)
			if next {
				out[y] |= 1 << uint(x)
			}
		}
	}
	return out
}

// leavesFromGrid packs the nw/ne/sw/se leaf bitmaps (row-major, one byte per
// row) corresponding to a 16-row, 16-bit-wide grid.
func leavesFromGrid(grid [16]uint16) (nw, ne, sw, se uint64) {
	for y := uint(0); y < 8; y++ {
		nw |= uint64(uint8(grid[y])) << (8 * y)
		ne |= uint64(uint8(grid[y]>>8)) << (8 * y)
		sw |= uint64(uint8(grid[8+y])) << (8 * y)
		se |= uint64(uint8(grid[8+y]>>8)) << (8 * y)
	}
	return
}

// centralOctet extracts the grid's rows 4..11, columns 4..11, the same
// window Update returns, as a packed 8x8 bitmap.
func centralOctet(grid [16]uint16) uint64 {
	var out uint64
	for y := 0; y < 8; y++ {
		b := uint8(grid[4+y] >> 4)
		out |= uint64(b) << (8 * y)
	}
	return out
}

func setCell(grid *[16]uint16, y, x int) { grid[y] |= 1 << uint(x) }

func TestUpdateBlankStaysBlank(t *testing.T) {
	c := qt.New(t)
	for steps := 1; steps <= 4; steps++ {
		got := Update(0, 0, 0, 0, steps)
		c.Assert(got, qt.Equals, uint64(0))
	}
}

func TestUpdateBlockIsStillLife(t *testing.T) {
	c := qt.New(t)
	var grid [16]uint16
	setCell(&grid, 7, 7)
	setCell(&grid, 7, 8)
	setCell(&grid, 8, 7)
	setCell(&grid, 8, 8)
	nw, ne, sw, se := leavesFromGrid(grid)

	want := centralOctet(grid)
	for steps := 1; steps <= 4; steps++ {
		got := Update(nw, ne, sw, se, steps)
		c.Assert(got, qt.Equals, want, qt.Commentf("steps=%d", steps))
	}
}

func TestUpdateBlinkerOscillates(t *testing.T) {
	c := qt.New(t)
	var grid [16]uint16
	setCell(&grid, 7, 6)
	setCell(&grid, 7, 7)
	setCell(&grid, 7, 8)
	nw, ne, sw, se := leavesFromGrid(grid)

	gen1 := referenceStep(grid)
	gen2 := referenceStep(gen1)

	got1 := Update(nw, ne, sw, se, 1)
	c.Assert(got1, qt.Equals, centralOctet(gen1))

	got2 := Update(nw, ne, sw, se, 2)
	c.Assert(got2, qt.Equals, centralOctet(gen2))
}

func TestUpdateMatchesReferenceForRandomishPattern(t *testing.T) {
	c := qt.New(t)
	var grid [16]uint16
	// An asymmetric cluster kept at least 4 cells from every edge so the
	// zero-padded reference stays valid for up to 4 generations.
	cells := [][2]int{{6, 6}, {6, 7}, {7, 8}, {8, 6}, {8, 7}, {9, 7}}
	for _, xy := range cells {
		setCell(&grid, xy[0], xy[1])
	}
	nw, ne, sw, se := leavesFromGrid(grid)

	cur := grid
	for steps := 1; steps <= 4; steps++ {
		cur = referenceStep(cur)
		got := Update(nw, ne, sw, se, steps)
		c.Assert(got, qt.Equals, centralOctet(cur), qt.Commentf("steps=%d", steps))
	}
}
