package life

import (
	"errors"
	"fmt"

	"github.com/das67333/gohashlife/internal/memtable"
	"github.com/das67333/gohashlife/internal/quadnode"
)

// otcaSizeLog2 is log2 of the side length of a single OTCA computer tile
// (the classical construction is 2048x2048 cells).
const otcaSizeLog2 = 11

var errOTCADepthZero = errors.New("life: otca depth must be >= 1 (use FromCellsArray for depth 0)")

// FromRecursiveOTCAMetapixel builds the universe by nesting self-similar
// OTCA computer tiles depth levels deep, then laying out the final level
// according to topPattern: each entry selects the "dead" (state0Cells) or
// "live" (state1Cells) tile. state0Cells and state1Cells are row-major,
// word-packed bitmaps of side 2^otcaSizeLog2, in the same layout
// FromCellsArray expects; callers typically obtain them by parsing the
// canonical otca_0.rle/otca_1.rle patterns with the patternio package.
func FromRecursiveOTCAMetapixel(depth uint, topPattern [][]uint8, state0Cells, state1Cells []uint64) (*memtable.Table, quadnode.Idx, uint, error) {
	if depth == 0 {
		return nil, quadnode.Null, 0, errOTCADepthZero
	}
	k := uint64(len(topPattern))
	for _, row := range topPattern {
		if uint64(len(row)) != k {
			return nil, quadnode.Null, 0, fmt.Errorf("life: otca top pattern must be square, got row of length %d in a %d-row grid", len(row), k)
		}
	}
	if k == 0 || k&(k-1) != 0 {
		return nil, quadnode.Null, 0, fmt.Errorf("life: otca top pattern side %d must be a power of two", k)
	}

	mem := memtable.New(uint(MemoryManagerCapLog2.Load()))
	otcaNodes := [2]quadnode.Idx{
		buildQuadtreeFromCells(mem, otcaSizeLog2, state0Cells),
		buildQuadtreeFromCells(mem, otcaSizeLog2, state1Cells),
	}

	otcaSize := uint64(1) << otcaSizeLog2
	for d := uint(1); d < depth; d++ {
		var next [2]quadnode.Idx
		for state, cells := range [2][]uint64{state0Cells, state1Cells} {
			tiles := make([]quadnode.Idx, 0, otcaSize*otcaSize)
			for y := uint64(0); y < otcaSize; y++ {
				for x := uint64(0); x < otcaSize; x++ {
					idx := x + y*otcaSize
					bit := (cells[idx/64] >> (idx % 64)) & 1
					tiles = append(tiles, otcaNodes[bit])
				}
			}
			next[state] = reduceNodeGrid(mem, tiles, otcaSize)
		}
		otcaNodes = next
	}

	top := make([]quadnode.Idx, 0, k*k)
	for _, row := range topPattern {
		for _, state := range row {
			if state != 0 && state != 1 {
				return nil, quadnode.Null, 0, fmt.Errorf("life: otca top pattern entries must be 0 or 1, got %d", state)
			}
			top = append(top, otcaNodes[state])
		}
	}
	root := reduceNodeGrid(mem, top, k)

	var kLog2 uint
	for (uint64(1) << kLog2) < k {
		kLog2++
	}
	sizeLog2 := otcaSizeLog2*depth + kLog2
	return mem, root, sizeLog2, nil
}
