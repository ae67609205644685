// Package hashlife implements the memoized update_node recursion over a
// hash-consed quadtree: the classical HashLife algorithm, plus the
// single-step/double-step dispatch and torus/unbounded framing needed to run
// it on a finite universe.
package hashlife

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/das67333/gohashlife/internal/leafstep"
	"github.com/das67333/gohashlife/internal/memtable"
	"github.com/das67333/gohashlife/internal/quadnode"
)

// Topology selects how the universe behaves at its edge.
type Topology int

const (
	// Unbounded treats everything outside the tracked frame as permanently
	// dead, growing the tree as live content approaches the edge.
	Unbounded Topology = iota
	// Torus wraps the universe onto itself; its side length never changes.
	Torus
)

func (t Topology) String() string {
	if t == Torus {
		return "torus"
	}
	return "unbounded"
}

// ErrGenerationsTooLarge is returned by Update when asked to advance by
// 2^64 or more generations in one call.
var ErrGenerationsTooLarge = errors.New("hashlife: generations_log2 must be < 64")

// Engine is a HashLife universe: a quadtree root plus the hash-cons table
// that owns every node reachable from it.
type Engine struct {
	Mem                      *memtable.Table
	Root                     quadnode.Idx
	SizeLog2                 uint
	GenerationsPerUpdateLog2 uint
	HasCache                 bool
	Topology                 Topology
}

// New returns a blank universe of side 2^sizeLog2.
func New(sizeLog2 uint, topology Topology) *Engine {
	return &Engine{
		Mem:      memtable.New(memtable.DefaultCapLog2),
		Root:     quadnode.Null,
		SizeLog2: sizeLog2,
		Topology: topology,
	}
}

func (e *Engine) get(idx quadnode.Idx, sizeLog2 uint) *quadnode.Node {
	return e.Mem.Get(idx, sizeLog2)
}

// updateLeaves advances the 2x2 block of leaves nw/ne/sw/se by steps
// generations and hash-conses the resulting central leaf.
func (e *Engine) updateLeaves(nw, ne, sw, se quadnode.Idx, steps int) quadnode.Idx {
	nwCells := e.get(nw, quadnode.LeafSizeLog2).LeafCells()
	neCells := e.get(ne, quadnode.LeafSizeLog2).LeafCells()
	swCells := e.get(sw, quadnode.LeafSizeLog2).LeafCells()
	seCells := e.get(se, quadnode.LeafSizeLog2).LeafCells()
	cells := leafstep.Update(nwCells, neCells, swCells, seCells, steps)
	return e.Mem.FindOrCreateLeaf(cells)
}

// updateNodesSingle performs a "single step" composition at level
// size_log2: structural peeling with no time passing for the nine
// level-(size_log2-2) centers, then one recursive update_node per overlap.
func (e *Engine) updateNodesSingle(nw, ne, sw, se quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	nwn, nwe, nws, nwse := e.get(nw, sizeLog2).NW, e.get(nw, sizeLog2).NE, e.get(nw, sizeLog2).SW, e.get(nw, sizeLog2).SE
	nen, nee, nes, nese := e.get(ne, sizeLog2).NW, e.get(ne, sizeLog2).NE, e.get(ne, sizeLog2).SW, e.get(ne, sizeLog2).SE
	swn, swe, sws, swse := e.get(sw, sizeLog2).NW, e.get(sw, sizeLog2).NE, e.get(sw, sizeLog2).SW, e.get(sw, sizeLog2).SE
	sen, see, ses, sese := e.get(se, sizeLog2).NW, e.get(se, sizeLog2).NE, e.get(se, sizeLog2).SW, e.get(se, sizeLog2).SE

	childSizeLog2 := sizeLog2 - 1
	var t [3][3]quadnode.Idx

	if sizeLog2 >= quadnode.LeafSizeLog2+2 {
		comp := func(a, b, c, d quadnode.Idx) quadnode.Idx {
			an := e.get(a, childSizeLog2)
			bn := e.get(b, childSizeLog2)
			cn := e.get(c, childSizeLog2)
			dn := e.get(d, childSizeLog2)
			return e.Mem.FindOrCreateNode(an.SE, bn.SW, cn.NE, dn.NW)
		}
		t[0][0] = comp(nwn, nwe, nws, nwse)
		t[0][1] = comp(nwe, nen, nwse, nes)
		t[0][2] = comp(nen, nee, nes, nese)
		t[1][0] = comp(nws, nwse, swn, swe)
		t[1][1] = comp(nwse, nes, swe, sen)
		t[1][2] = comp(nes, nese, sen, see)
		t[2][0] = comp(swn, swe, sws, swse)
		t[2][1] = comp(swe, sen, swse, ses)
		t[2][2] = comp(sen, see, ses, sese)
	} else {
		comp := func(a, b, c, d quadnode.Idx) quadnode.Idx {
			an := e.get(a, quadnode.LeafSizeLog2)
			bn := e.get(b, quadnode.LeafSizeLog2)
			cn := e.get(c, quadnode.LeafSizeLog2)
			dn := e.get(d, quadnode.LeafSizeLog2)
			parts := quadnode.AssembleLeafFromParts(
				quadnode.LeafSE(an.LeafCells()), quadnode.LeafSW(bn.LeafCells()),
				quadnode.LeafNE(cn.LeafCells()), quadnode.LeafNW(dn.LeafCells()))
			return e.Mem.FindOrCreateLeaf(parts)
		}
		t[0][0] = comp(nwn, nwe, nws, nwse)
		t[0][1] = comp(nwe, nen, nwse, nes)
		t[0][2] = comp(nen, nee, nes, nese)
		t[1][0] = comp(nws, nwse, swn, swe)
		t[1][1] = comp(nwse, nes, swe, sen)
		t[1][2] = comp(nes, nese, sen, see)
		t[2][0] = comp(swn, swe, sws, swse)
		t[2][1] = comp(swe, sen, swse, ses)
		t[2][2] = comp(sen, see, ses, sese)
	}

	q00 := e.Mem.FindOrCreateNode(t[0][0], t[0][1], t[1][0], t[1][1])
	q01 := e.Mem.FindOrCreateNode(t[0][1], t[0][2], t[1][1], t[1][2])
	q10 := e.Mem.FindOrCreateNode(t[1][0], t[1][1], t[2][0], t[2][1])
	q11 := e.Mem.FindOrCreateNode(t[1][1], t[1][2], t[2][1], t[2][2])

	s00 := e.updateNode(q00, sizeLog2)
	s01 := e.updateNode(q01, sizeLog2)
	s10 := e.updateNode(q10, sizeLog2)
	s11 := e.updateNode(q11, sizeLog2)

	return e.Mem.FindOrCreateNode(s00, s01, s10, s11)
}

// updateNodesDouble performs a "double step" composition at level
// size_log2: two layers of recursive update_node calls, each overlapping a
// 3x3 then 2x2 grid of compositions, with prefetching across the five
// non-corner first-stage lookups.
func (e *Engine) updateNodesDouble(nw, ne, sw, se quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	nwN, neN, swN, seN := e.get(nw, sizeLog2), e.get(ne, sizeLog2), e.get(sw, sizeLog2), e.get(se, sizeLog2)

	p11 := e.Mem.Prefetch(nwN.SE, neN.SW, swN.NE, seN.NW)
	p01 := e.Mem.Prefetch(nwN.NE, neN.NW, nwN.SE, neN.SW)
	p12 := e.Mem.Prefetch(neN.SW, neN.SE, seN.NW, seN.NE)
	p10 := e.Mem.Prefetch(nwN.SW, nwN.SE, swN.NW, swN.NE)
	p21 := e.Mem.Prefetch(swN.NE, seN.NW, swN.SE, seN.SW)

	t00 := e.updateNode(nw, sizeLog2)
	t01 := e.updateNode(p01.Resolve(), sizeLog2)
	t02 := e.updateNode(ne, sizeLog2)
	t12 := e.updateNode(p12.Resolve(), sizeLog2)
	t11 := e.updateNode(p11.Resolve(), sizeLog2)
	t10 := e.updateNode(p10.Resolve(), sizeLog2)
	t20 := e.updateNode(sw, sizeLog2)
	t21 := e.updateNode(p21.Resolve(), sizeLog2)
	t22 := e.updateNode(se, sizeLog2)

	pse := e.Mem.Prefetch(t11, t12, t21, t22)
	psw := e.Mem.Prefetch(t10, t11, t20, t21)
	pnw := e.Mem.Prefetch(t00, t01, t10, t11)
	pne := e.Mem.Prefetch(t01, t02, t11, t12)
	tSE := e.updateNode(pse.Resolve(), sizeLog2)
	tSW := e.updateNode(psw.Resolve(), sizeLog2)
	tNW := e.updateNode(pnw.Resolve(), sizeLog2)
	tNE := e.updateNode(pne.Resolve(), sizeLog2)

	return e.Mem.FindOrCreateNode(tNW, tNE, tSW, tSE)
}

// updateNode returns the memoized evolution of node by 2^min(j, sizeLog2-2)
// generations, where j is e.GenerationsPerUpdateLog2, as the center node at
// sizeLog2-1.
func (e *Engine) updateNode(node quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	n := e.get(node, sizeLog2)
	if n.HasCache {
		return n.Cache
	}

	bothStages := e.GenerationsPerUpdateLog2+2 >= sizeLog2
	var cache quadnode.Idx
	switch {
	case sizeLog2 == quadnode.LeafSizeLog2+1:
		steps := 1 << e.GenerationsPerUpdateLog2
		if bothStages {
			steps = quadnode.LeafSide / 2
		}
		cache = e.updateLeaves(n.NW, n.NE, n.SW, n.SE, steps)
	case bothStages:
		cache = e.updateNodesDouble(n.NW, n.NE, n.SW, n.SE, sizeLog2-1)
	default:
		cache = e.updateNodesSingle(n.NW, n.NE, n.SW, n.SE, sizeLog2-1)
	}

	n = e.get(node, sizeLog2)
	n.Cache = cache
	n.HasCache = true
	return cache
}

// withFrame returns a level-(sizeLog2+1) node with idx centered in it: the
// four quadrants mirror idx under Torus, or pad with the empty node under
// Unbounded.
func (e *Engine) withFrame(idx quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	n := *e.get(idx, sizeLog2)
	var nw, ne, sw, se quadnode.Idx
	switch e.Topology {
	case Torus:
		mirror := e.Mem.FindOrCreateNode(n.SE, n.SW, n.NE, n.NW)
		nw, ne, sw, se = mirror, mirror, mirror, mirror
	default:
		b := quadnode.Null
		nw = e.Mem.FindOrCreateNode(b, b, b, n.NW)
		ne = e.Mem.FindOrCreateNode(b, b, n.NE, b)
		sw = e.Mem.FindOrCreateNode(b, n.SW, b, b)
		se = e.Mem.FindOrCreateNode(n.SE, b, b, b)
	}
	return e.Mem.FindOrCreateNode(nw, ne, sw, se)
}

// withoutFrame is the inverse of withFrame: it returns the level-(sizeLog2-1)
// center of idx.
func (e *Engine) withoutFrame(idx quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	n := e.get(idx, sizeLog2)
	nwN := e.get(n.NW, sizeLog2-1)
	neN := e.get(n.NE, sizeLog2-1)
	swN := e.get(n.SW, sizeLog2-1)
	seN := e.get(n.SE, sizeLog2-1)
	return e.Mem.FindOrCreateNode(nwN.SE, neN.SW, swN.NE, seN.NW)
}

// hasBlankFrame reports whether the twelve outer level-(sizeLog2-2) children
// of the root are all the empty node.
func (e *Engine) hasBlankFrame() bool {
	if e.SizeLog2 <= quadnode.LeafSizeLog2+1 {
		return false
	}
	root := e.get(e.Root, e.SizeLog2)
	nw := e.get(root.NW, e.SizeLog2-1)
	ne := e.get(root.NE, e.SizeLog2-1)
	sw := e.get(root.SW, e.SizeLog2-1)
	se := e.get(root.SE, e.SizeLog2-1)
	outer := [...]quadnode.Idx{
		nw.SW, nw.NW, nw.NE, ne.NW, ne.NE, ne.SE, se.NE, se.SE, se.SW, sw.SE, sw.SW, sw.NW,
	}
	for _, x := range outer {
		if x != quadnode.Null {
			return false
		}
	}
	return true
}

// addFrame grows the universe by one frame, accumulating the induced offset
// into dx/dy.
func (e *Engine) addFrame(dx, dy *big.Int) {
	e.Root = e.withFrame(e.Root, e.SizeLog2)
	half := new(big.Int).Lsh(big.NewInt(1), e.SizeLog2-1)
	dx.Add(dx, half)
	dy.Add(dy, half)
	e.SizeLog2++
}

// popFrame shrinks the universe by one frame.
func (e *Engine) popFrame(dx, dy *big.Int) {
	e.Root = e.withoutFrame(e.Root, e.SizeLog2)
	quarter := new(big.Int).Lsh(big.NewInt(1), e.SizeLog2-2)
	dx.Sub(dx, quarter)
	dy.Sub(dy, quarter)
	e.SizeLog2--
}

// Get exposes the underlying node record, for callers (such as streamlife)
// that compose directly with the hash-cons table.
func (e *Engine) Get(idx quadnode.Idx, sizeLog2 uint) *quadnode.Node { return e.get(idx, sizeLog2) }

// UpdateNode is the exported form of updateNode, for callers that need to
// evolve a node outside the engine's own root.
func (e *Engine) UpdateNode(node quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	return e.updateNode(node, sizeLog2)
}

// UpdateLeaves is the exported form of updateLeaves.
func (e *Engine) UpdateLeaves(nw, ne, sw, se quadnode.Idx, steps int) quadnode.Idx {
	return e.updateLeaves(nw, ne, sw, se, steps)
}

// WithFrame is the exported form of withFrame.
func (e *Engine) WithFrame(idx quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	return e.withFrame(idx, sizeLog2)
}

// WithoutFrame is the exported form of withoutFrame.
func (e *Engine) WithoutFrame(idx quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	return e.withoutFrame(idx, sizeLog2)
}

// HasBlankFrame is the exported form of hasBlankFrame.
func (e *Engine) HasBlankFrame() bool { return e.hasBlankFrame() }

// AddFrame is the exported form of addFrame.
func (e *Engine) AddFrame(dx, dy *big.Int) { e.addFrame(dx, dy) }

// PopFrame is the exported form of popFrame.
func (e *Engine) PopFrame(dx, dy *big.Int) { e.popFrame(dx, dy) }

// GetCell reports whether (x, y) is alive.
func (e *Engine) GetCell(x, y uint64) bool {
	node, sizeLog2 := e.Root, e.SizeLog2
	for sizeLog2 != quadnode.LeafSizeLog2 {
		n := e.get(node, sizeLog2)
		sizeLog2--
		size := uint64(1) << sizeLog2
		switch {
		case x < size && y < size:
			node = n.NW
		case y < size:
			node = n.NE
			x -= size
		case x < size:
			node = n.SW
			y -= size
		default:
			node = n.SE
			x -= size
			y -= size
		}
	}
	return e.get(node, quadnode.LeafSizeLog2).LeafCells()>>(8*y+x)&1 != 0
}

// SetCell sets (x, y) to state, rebuilding the hash-consed spine down to the
// affected leaf.
func (e *Engine) SetCell(x, y uint64, state bool) {
	var inner func(x, y uint64, sizeLog2 uint, node quadnode.Idx) quadnode.Idx
	inner = func(x, y uint64, sizeLog2 uint, node quadnode.Idx) quadnode.Idx {
		if sizeLog2 == quadnode.LeafSizeLog2 {
			cells := e.get(node, sizeLog2).LeafCells()
			mask := uint64(1) << (8*y + x)
			if state {
				cells |= mask
			} else {
				cells &^= mask
			}
			return e.Mem.FindOrCreateLeaf(cells)
		}
		n := e.get(node, sizeLog2)
		arr := [4]quadnode.Idx{n.NW, n.NE, n.SW, n.SE}
		sizeLog2--
		size := uint64(1) << sizeLog2
		i := 0
		if x >= size {
			i++
			x -= size
		}
		if y >= size {
			i += 2
			y -= size
		}
		arr[i] = inner(x, y, sizeLog2, arr[i])
		return e.Mem.FindOrCreateNode(arr[0], arr[1], arr[2], arr[3])
	}
	e.Root = inner(x, y, e.SizeLog2, e.Root)
}

// gcMark recursively marks idx and its structural descendants, rescuing
// them from the next GCFinish.
func (e *Engine) gcMark(idx quadnode.Idx, sizeLog2 uint) {
	e.Mem.GCMark(idx, sizeLog2)
}

// RunGC marks every node reachable from the root and reclaims the rest,
// invalidating all evolution caches in the process.
func (e *Engine) RunGC() {
	e.gcMark(e.Root, e.SizeLog2)
	e.Mem.GCFinish()
}

// Update advances the universe by 2^generationsLog2 generations and returns
// the displacement (dx, dy) of the universe's logical origin — always
// (0,0) for Torus, since the universe never grows there.
func (e *Engine) Update(generationsLog2 uint) (*big.Int, *big.Int, error) {
	if generationsLog2 >= 64 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrGenerationsTooLarge, generationsLog2)
	}

	if e.HasCache && e.GenerationsPerUpdateLog2 != generationsLog2 {
		e.RunGC()
	}
	e.HasCache = true
	e.GenerationsPerUpdateLog2 = generationsLog2

	framesCnt := generationsLog2 + 2
	if e.SizeLog2+1 > framesCnt {
		framesCnt = e.SizeLog2 + 1
	}
	framesCnt -= e.SizeLog2

	dx, dy := big.NewInt(0), big.NewInt(0)
	for i := uint(0); i < framesCnt; i++ {
		e.addFrame(dx, dy)
	}

	e.Root = e.updateNode(e.Root, e.SizeLog2)
	e.SizeLog2--
	half := new(big.Int).Lsh(big.NewInt(1), e.SizeLog2-1)
	dx.Sub(dx, half)
	dy.Sub(dy, half)

	switch e.Topology {
	case Torus:
		for i := uint(0); i+1 < framesCnt; i++ {
			e.popFrame(dx, dy)
		}
	default:
		for e.hasBlankFrame() {
			e.popFrame(dx, dy)
		}
	}

	if e.Mem.Poisoned() {
		return nil, nil, memtable.ErrPoisoned
	}
	return dx, dy, nil
}

// BytesTotal reports the engine's resident memory footprint.
func (e *Engine) BytesTotal() int { return e.Mem.BytesTotal() }

// Statistics renders a short human-readable report, in the style of the
// original engine's text dump.
func (e *Engine) Statistics() string {
	return fmt.Sprintf("Engine: Hashlife\nSide length: 2^%d\nNodes: %d\nBytes total: %d\nLast writer goroutine: %d\n",
		e.SizeLog2, e.Mem.Len(), e.BytesTotal(), e.Mem.LastGoroutine())
}
