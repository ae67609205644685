package life

import (
	"github.com/das67333/gohashlife/internal/memtable"
	"github.com/das67333/gohashlife/internal/quadnode"
	"github.com/das67333/gohashlife/patternio"
	"github.com/das67333/gohashlife/population"
)

// getCells flattens the quadtree into a row-major, word-packed bitmap (the
// same layout simdtorus and from_cells_array use).
func getCells(mem *memtable.Table, root quadnode.Idx, sizeLog2 uint) []uint64 {
	side := uint64(1) << sizeLog2
	result := make([]uint64, 1<<(sizeLog2*2-6))

	var inner func(x, y, nodeSizeLog2 uint64, node quadnode.Idx)
	inner = func(x, y, nodeSizeLog2 uint64, node quadnode.Idx) {
		if nodeSizeLog2 == quadnode.LeafSizeLog2 {
			cells := mem.Get(node, uint(nodeSizeLog2)).LeafCells()
			idx := x + y*side
			for row := uint64(0); row < quadnode.LeafSide; row++ {
				r := uint8(cells >> (8 * row))
				result[idx/64] |= uint64(r) << (idx % 64)
				idx += side
			}
			return
		}
		n := mem.Get(node, uint(nodeSizeLog2))
		childLevel := nodeSizeLog2 - 1
		children := [4]quadnode.Idx{n.NW, n.NE, n.SW, n.SE}
		for i, child := range children {
			cx := x + (uint64(i&1) << childLevel)
			cy := y + (uint64(i>>1&1) << childLevel)
			inner(cx, cy, childLevel, child)
		}
	}
	inner(0, 0, uint64(sizeLog2), root)
	return result
}

// reduceNodeGrid repeatedly composes a t x t grid of same-level node handles
// into 2x2 groups via FindOrCreateNode until a single root remains,
// returning it. t must be a power of two.
func reduceNodeGrid(mem *memtable.Table, nodes []quadnode.Idx, t uint64) quadnode.Idx {
	curr := nodes
	for t != 1 {
		next := make([]quadnode.Idx, 0, (t/2)*(t/2))
		for by := uint64(0); by < t; by += 2 {
			for bx := uint64(0); bx < t; bx += 2 {
				nw := curr[bx+by*t]
				ne := curr[(bx+1)+by*t]
				sw := curr[bx+(by+1)*t]
				se := curr[(bx+1)+(by+1)*t]
				next = append(next, mem.FindOrCreateNode(nw, ne, sw, se))
			}
		}
		curr = next
		t /= 2
	}
	return curr[0]
}

// buildQuadtreeFromCells builds a quadtree of side 2^sizeLog2 from a
// row-major, word-packed bitmap within mem, returning its root.
func buildQuadtreeFromCells(mem *memtable.Table, sizeLog2 uint, cells []uint64) quadnode.Idx {
	n := uint64(1) << sizeLog2
	t := n / quadnode.LeafSide

	curr := make([]quadnode.Idx, 0, t*t)
	for by := uint64(0); by < t; by++ {
		for bx := uint64(0); bx < t; bx++ {
			var leaf uint64
			for sy := uint64(0); sy < quadnode.LeafSide; sy++ {
				for sx := uint64(0); sx < quadnode.LeafSide; sx++ {
					gx := bx*quadnode.LeafSide + sx
					gy := by*quadnode.LeafSide + sy
					idx := gx + gy*n
					if cells[idx/64]&(1<<(idx%64)) != 0 {
						leaf |= 1 << (8*sy + sx)
					}
				}
			}
			curr = append(curr, mem.FindOrCreateLeaf(leaf))
		}
	}
	return reduceNodeGrid(mem, curr, t)
}

// fromCellsArray builds a quadtree from a row-major, word-packed bitmap of
// side 2^sizeLog2, returning the fresh table and its root.
func fromCellsArray(sizeLog2 uint, cells []uint64) (*memtable.Table, quadnode.Idx) {
	mem := memtable.New(uint(MemoryManagerCapLog2.Load()))
	return mem, buildQuadtreeFromCells(mem, sizeLog2, cells)
}

// hashTree combines every node reachable from root into a single 64-bit
// digest, recursing structurally and memoizing per (idx, sizeLog2) so
// shared subtrees are hashed once. The empty node hashes to 0 at every
// level, so a blank universe's digest is 0.
func hashTree(mem *memtable.Table, root quadnode.Idx, sizeLog2 uint) uint64 {
	type key struct {
		idx      quadnode.Idx
		sizeLog2 uint32
	}
	cache := make(map[key]uint64)

	combine := func(x, y uint64) uint64 {
		return x ^ (y + 0x9e3779b9 + x<<6 + x>>2)
	}

	var inner func(idx quadnode.Idx, sizeLog2 uint) uint64
	inner = func(idx quadnode.Idx, sizeLog2 uint) uint64 {
		if idx == quadnode.Null {
			return 0
		}
		k := key{idx, uint32(sizeLog2)}
		if v, ok := cache[k]; ok {
			return v
		}
		n := mem.Get(idx, sizeLog2)
		if sizeLog2 == quadnode.LeafSizeLog2 {
			return n.LeafCells()
		}
		var result uint64
		for _, child := range [4]quadnode.Idx{n.NW, n.NE, n.SW, n.SE} {
			result = combine(result, inner(child, sizeLog2-1))
		}
		cache[k] = result
		return result
	}
	return inner(root, sizeLog2)
}

// saveAsMacrocell serializes the subtree rooted at root into a Macrocell
// document with the conventional Conway rule line.
func saveAsMacrocell(mem *memtable.Table, root quadnode.Idx, sizeLog2 uint) []byte {
	body := patternio.WriteMacrocell(mem, root, sizeLog2)
	header := []byte("[M2] (gohashlife)\n#R B3/S23\n")
	// WriteMacrocell already emits its own "[M2]" line; drop it so the rule
	// line can follow immediately after ours.
	if i := indexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	return append(header, body...)
}

// loadMacrocell parses a Macrocell document into a fresh table.
func loadMacrocell(data []byte) (*memtable.Table, quadnode.Idx, uint, error) {
	mem := memtable.New(uint(MemoryManagerCapLog2.Load()))
	root, sizeLog2, err := patternio.ParseMacrocell(data, mem)
	return mem, root, sizeLog2, err
}

// loadRLE parses an RLE document into a fresh table, placing the pattern's
// top-left corner at the universe's origin.
func loadRLE(data []byte) (*memtable.Table, quadnode.Idx, uint, error) {
	grid, err := patternio.ParseRLE(data)
	if err != nil {
		return nil, quadnode.Null, 0, err
	}
	sizeLog2 := grid.SideLog2()
	n := uint64(1) << sizeLog2
	cells := make([]uint64, 1<<(sizeLog2*2-6))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			if grid.Get(x, y) {
				idx := uint64(x) + uint64(y)*n
				cells[idx/64] |= 1 << (idx % 64)
			}
		}
	}
	mem := memtable.New(uint(MemoryManagerCapLog2.Load()))
	return mem, buildQuadtreeFromCells(mem, sizeLog2, cells), sizeLog2, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// fillTexture rasterizes root's live-cell counts into dst, one entry per
// pixel, snapping the caller's requested viewport and resolution to the
// nearest representable step/leaf boundary and reporting the adjusted
// values back through the same pointers.
func fillTexture(mem *memtable.Table, root quadnode.Idx, sizeLog2 uint, pop *population.Manager,
	viewportX, viewportY, size, resolution *float64, dst *[]float64) {
	stepLog2 := uint(0)
	for ratio := uint64(*size / *resolution); ratio > 1; ratio >>= 1 {
		stepLog2++
	}

	step := int64(1) << stepLog2
	comMul := step
	if comMul < quadnode.LeafSide {
		comMul = quadnode.LeafSide
	}

	nextMultiple := func(v, m int64) int64 {
		if v%m == 0 {
			return v
		}
		return (v/m + 1) * m
	}

	sizeInt := nextMultiple(int64(*size), comMul) + comMul*2
	*size = float64(sizeInt)
	resolutionInt := sizeInt / step
	*resolution = float64(resolutionInt)
	xInt := nextMultiple(int64(*viewportX)+1, comMul) - comMul*2
	*viewportX = float64(xInt)
	yInt := nextMultiple(int64(*viewportY)+1, comMul) - comMul*2
	*viewportY = float64(yInt)

	*dst = make([]float64, resolutionInt*resolutionInt)
	if stepLog2 > sizeLog2 {
		return
	}

	var inner func(node quadnode.Idx, x, y int64, nodeSizeLog2 uint)
	inner = func(node quadnode.Idx, x, y int64, nodeSizeLog2 uint) {
		if stepLog2 == nodeSizeLog2 {
			j := (x - xInt) >> stepLog2
			i := (y - yInt) >> stepLog2
			(*dst)[j+i*resolutionInt] = pop.Get(node, nodeSizeLog2)
			return
		}
		if nodeSizeLog2 == quadnode.LeafSizeLog2 {
			cells := mem.Get(node, nodeSizeLog2).LeafCells()
			k := int64(quadnode.LeafSide) >> stepLog2
			for sy := int64(0); sy < k; sy++ {
				for sx := int64(0); sx < k; sx++ {
					var sum float64
					for dy := int64(0); dy < step; dy++ {
						for dx := int64(0); dx < step; dx++ {
							cx := (sx*step + dx) % quadnode.LeafSide
							cy := (sy*step + dy) % quadnode.LeafSide
							if cells>>(8*uint(cy)+uint(cx))&1 != 0 {
								sum++
							}
						}
					}
					j := sx + ((x - xInt) >> stepLog2)
					i := sy + ((y - yInt) >> stepLog2)
					(*dst)[j+i*resolutionInt] = sum
				}
			}
			return
		}
		n := mem.Get(node, nodeSizeLog2)
		childLevel := nodeSizeLog2 - 1
		half := int64(1) << childLevel
		children := [4]quadnode.Idx{n.NW, n.NE, n.SW, n.SE}
		for i, child := range children {
			cx := x + half*int64(i&1)
			cy := y + half*int64(i>>1&1)
			if cx+half > xInt && cx < xInt+sizeInt && cy+half > yInt && cy < yInt+sizeInt {
				inner(child, cx, cy, childLevel)
			}
		}
	}
	inner(root, 0, 0, sizeLog2)
}
