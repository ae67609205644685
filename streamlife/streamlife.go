// Package streamlife implements the StreamLife algorithm: a refinement of
// HashLife that splits the universe into a bi-root pair (two disjoint parts
// whose union is the whole universe) and, wherever the two parts can be
// proven solitonic — incapable of interacting during the update — evolves
// each part on its own, merging them back into a single root afterwards.
package streamlife

import (
	"math/big"
	"strconv"

	"github.com/das67333/gohashlife/hashlife"
	"github.com/das67333/gohashlife/internal/memtable"
	"github.com/das67333/gohashlife/internal/quadnode"
)

const leafSizeLog2 = quadnode.LeafSizeLog2

// metaComputed marks, in a Node's Meta field, that node2lanes has already
// filled in the cached lane/direction data for that node.
const metaComputed = uint64(1) << 16

// metaResultMask extracts the cached (direction mask, lane bitmap) pair
// from a Meta value, discarding the metaComputed flag bit.
const metaResultMask = uint64(0xffffffff0000ffff)

// Engine is a StreamLife universe built on top of a HashLife engine: base
// carries the hash-cons table and the synchronized root/size bookkeeping,
// while biroot/bicache track the bi-root recursion's own state.
type Engine struct {
	base    *hashlife.Engine
	biroot  *biPair
	bicache *bicache
}

// New returns a blank universe of side 2^sizeLog2.
func New(sizeLog2 uint, topology hashlife.Topology) *Engine {
	return &Engine{
		base:    hashlife.New(sizeLog2, topology),
		bicache: newBicache(),
	}
}

// Base exposes the underlying HashLife engine, for callers that need direct
// access to the hash-cons table (pattern I/O, population counting).
func (e *Engine) Base() *hashlife.Engine { return e.base }

// determineDirection inspects a level-(leafSizeLog2+1) node's four leaves,
// evolves their shared center by four generations, and reports which of the
// eight compass offsets would reproduce that center (bits 0..7), plus, in
// the high 32 bits, a small lane mask set when the center is non-empty and
// some offset matched — the raw material node2lanes packs into a per-node
// direction/lane bitmask.
func (e *Engine) determineDirection(idx quadnode.Idx) uint64 {
	n := e.base.Get(idx, leafSizeLog2+1)
	nw, ne, sw, se := n.NW, n.NE, n.SW, n.SE

	m := e.base.UpdateLeaves(nw, ne, sw, se, 4)
	centre := e.base.Get(m, leafSizeLog2).LeafCells()

	nwc := e.base.Get(nw, leafSizeLog2).LeafCells()
	nec := e.base.Get(ne, leafSizeLog2).LeafCells()
	swc := e.base.Get(sw, leafSizeLog2).LeafCells()
	sec := e.base.Get(se, leafSizeLog2).LeafCells()

	z64CentreToU64 := func(x, y int) uint64 {
		xs := uint(4 + x)
		ys := uint(4+y) << 3
		bitmask := (uint64(0x0101010101010101) << xs) - 0x0101010101010101
		left := (nwc >> ys) | (swc << (64 - ys))
		right := (nec >> ys) | (sec << (64 - ys))
		return ((right & bitmask) << (8 - xs)) | ((left &^ bitmask) >> xs)
	}

	var dmap uint64
	if centre == z64CentreToU64(-1, -1) {
		dmap |= 1
	}
	if centre == z64CentreToU64(0, -2) {
		dmap |= 2
	}
	if centre == z64CentreToU64(1, -1) {
		dmap |= 4
	}
	if centre == z64CentreToU64(2, 0) {
		dmap |= 8
	}
	if centre == z64CentreToU64(1, 1) {
		dmap |= 16
	}
	if centre == z64CentreToU64(0, 2) {
		dmap |= 32
	}
	if centre == z64CentreToU64(-1, 1) {
		dmap |= 64
	}
	if centre == z64CentreToU64(-2, 0) {
		dmap |= 128
	}

	var lmask uint64
	if centre != 0 {
		if dmap&170 != 0 {
			lmask |= 3
		}
		if dmap&85 != 0 {
			lmask |= 7
		}
	}

	return dmap | (lmask << 32)
}

func rotl32(x uint64, y uint) uint64 { return (x << y) | (x >> (32 - y)) }
func rotr32(x uint64, y uint) uint64 { return (x >> y) | (x << (32 - y)) }

// node2lanes returns a node's cached (directions-it-can-move, lanes-it-
// occupies) pair, computing and caching it on first use. The low bits carry
// an 8-way direction bitmask (zero means the node is entirely static or
// otherwise can't be isolated); the high 32 bits carry which of the node's
// rows/columns/diagonals a moving glider-like pattern could occupy.
func (e *Engine) node2lanes(idx quadnode.Idx, sizeLog2 uint) uint64 {
	if idx == quadnode.Null {
		return 0xffff
	}

	if sizeLog2 == leafSizeLog2+1 {
		n := e.base.Get(idx, sizeLog2)
		if n.Meta&0xffff0000 != metaComputed {
			n.Meta = e.determineDirection(idx) | metaComputed
		}
		return n.Meta & metaResultMask
	}

	n := e.base.Get(idx, sizeLog2)
	nw, ne, sw, se, meta := n.NW, n.NE, n.SW, n.SE, n.Meta
	if meta&0xffff0000 != metaComputed {
		var childlanes [9]uint64
		adml := uint64(0xff)

		if adml != 0 {
			childlanes[0] = e.node2lanes(nw, sizeLog2-1)
			adml &= childlanes[0]
		}
		if adml != 0 {
			childlanes[2] = e.node2lanes(ne, sizeLog2-1)
			adml &= childlanes[2]
		}
		if adml != 0 {
			childlanes[6] = e.node2lanes(sw, sizeLog2-1)
			adml &= childlanes[6]
		}
		if adml != 0 {
			childlanes[8] = e.node2lanes(se, sizeLog2-1)
			adml &= childlanes[8]
		}
		if adml == 0 {
			e.base.Get(idx, sizeLog2).Meta = metaComputed
			return 0
		}

		if sizeLog2 == leafSizeLog2+2 {
			leafCells := func(idx quadnode.Idx) uint64 { return e.base.Get(idx, leafSizeLog2).LeafCells() }
			quad := func(idx quadnode.Idx) [4]uint64 {
				q := e.base.Get(idx, leafSizeLog2+1)
				return [4]uint64{leafCells(q.NW), leafCells(q.NE), leafCells(q.SW), leafCells(q.SE)}
			}
			tlx, trx, blx, brx := quad(nw), quad(ne), quad(sw), quad(se)

			cc := [4]uint64{tlx[3], trx[2], blx[1], brx[0]}
			tc := [4]uint64{tlx[1], trx[0], tlx[3], trx[2]}
			bc := [4]uint64{blx[1], brx[0], blx[3], brx[2]}
			cl := [4]uint64{tlx[2], tlx[3], blx[0], blx[1]}
			cr := [4]uint64{trx[2], trx[3], brx[0], brx[1]}

			prepared := func(x [4]uint64) quadnode.Idx {
				nw := e.base.Mem.FindOrCreateLeaf(x[0])
				ne := e.base.Mem.FindOrCreateLeaf(x[1])
				sw := e.base.Mem.FindOrCreateLeaf(x[2])
				se := e.base.Mem.FindOrCreateLeaf(x[3])
				return e.base.Mem.FindOrCreateNode(nw, ne, sw, se)
			}

			childlanes[1] = e.node2lanes(prepared(tc), leafSizeLog2+1)
			childlanes[3] = e.node2lanes(prepared(cl), leafSizeLog2+1)
			childlanes[4] = e.node2lanes(prepared(cc), leafSizeLog2+1)
			childlanes[5] = e.node2lanes(prepared(cr), leafSizeLog2+1)
			childlanes[7] = e.node2lanes(prepared(bc), leafSizeLog2+1)
			adml &= childlanes[1] & childlanes[3] & childlanes[4] & childlanes[5] & childlanes[7]
		} else {
			tl := e.base.Get(nw, sizeLog2-1)
			tr := e.base.Get(ne, sizeLog2-1)
			bl := e.base.Get(sw, sizeLog2-1)
			br := e.base.Get(se, sizeLog2-1)

			cc := [4]quadnode.Idx{tl.SE, tr.SW, bl.NE, br.NW}
			tc := [4]quadnode.Idx{tl.NE, tr.NW, tl.SE, tr.SW}
			bc := [4]quadnode.Idx{bl.NE, br.NW, bl.SE, br.SW}
			cl := [4]quadnode.Idx{tl.SW, tl.SE, bl.NW, bl.NE}
			cr := [4]quadnode.Idx{tr.SW, tr.SE, br.NW, br.NE}

			prepared := func(x [4]quadnode.Idx) quadnode.Idx {
				return e.base.Mem.FindOrCreateNode(x[0], x[1], x[2], x[3])
			}

			childlanes[1] = e.node2lanes(prepared(tc), sizeLog2-1)
			childlanes[3] = e.node2lanes(prepared(cl), sizeLog2-1)
			childlanes[4] = e.node2lanes(prepared(cc), sizeLog2-1)
			childlanes[5] = e.node2lanes(prepared(cr), sizeLog2-1)
			childlanes[7] = e.node2lanes(prepared(bc), sizeLog2-1)
			adml &= childlanes[1] & childlanes[3] & childlanes[4] & childlanes[5] & childlanes[7]
		}

		for i := range childlanes {
			childlanes[i] >>= 32
		}
		var lanes uint64

		var a uint
		if sizeLog2-leafSizeLog2-2 <= 4 {
			a = 1 << (sizeLog2 - leafSizeLog2 - 2)
		}
		a2 := (2 * a) & 31

		if adml&0x88 != 0 {
			lanes |= rotl32(childlanes[0]|childlanes[1]|childlanes[2], a)
			lanes |= childlanes[3] | childlanes[4] | childlanes[5]
			lanes |= rotr32(childlanes[6]|childlanes[7]|childlanes[8], a)
		}
		if adml&0x44 != 0 {
			lanes |= rotl32(childlanes[0], a2)
			lanes |= rotl32(childlanes[3]|childlanes[1], a)
			lanes |= childlanes[6] | childlanes[4] | childlanes[2]
			lanes |= rotr32(childlanes[7]|childlanes[5], a)
			lanes |= rotr32(childlanes[8], a2)
		}
		if adml&0x22 != 0 {
			lanes |= rotl32(childlanes[0]|childlanes[3]|childlanes[6], a)
			lanes |= childlanes[1] | childlanes[4] | childlanes[7]
			lanes |= rotr32(childlanes[2]|childlanes[5]|childlanes[8], a)
		}
		if adml&0x11 != 0 {
			lanes |= rotl32(childlanes[2], a2)
			lanes |= rotl32(childlanes[1]|childlanes[5], a)
			lanes |= childlanes[0] | childlanes[4] | childlanes[8]
			lanes |= rotr32(childlanes[3]|childlanes[7], a)
			lanes |= rotr32(childlanes[6], a2)
		}

		e.base.Get(idx, sizeLog2).Meta = adml | metaComputed | (lanes << 32)
	}

	return e.base.Get(idx, sizeLog2).Meta & metaResultMask
}

// isSolitonic reports whether the two parts of idx are guaranteed not to
// interact within this update: both have a non-zero direction mask, their
// lane bitmaps are disjoint, and the upper four direction bits of one part
// overlap the lower four of the other.
func (e *Engine) isSolitonic(idx biPair, sizeLog2 uint) bool {
	lanes1 := e.node2lanes(idx.a, sizeLog2)
	if lanes1&255 == 0 {
		return false
	}
	lanes2 := e.node2lanes(idx.b, sizeLog2)
	if lanes2&255 == 0 {
		return false
	}
	if (lanes1&lanes2)>>32 != 0 {
		return false
	}
	return (((lanes1>>4)&lanes2)|((lanes2>>4)&lanes1))&15 != 0
}

// fourChildren composes a 3x3 grid of level-sizeLog2 fragments into the four
// level-(sizeLog2+1) quadrants they overlap to form.
func (e *Engine) fourChildren(frags *[9]quadnode.Idx, sizeLog2 uint) [4]quadnode.Idx {
	m := e.base.Mem
	return [4]quadnode.Idx{
		m.FindOrCreateNode(frags[0], frags[1], frags[3], frags[4]),
		m.FindOrCreateNode(frags[1], frags[2], frags[4], frags[5]),
		m.FindOrCreateNode(frags[3], frags[4], frags[6], frags[7]),
		m.FindOrCreateNode(frags[4], frags[5], frags[7], frags[8]),
	}
}

// nineChildren decomposes a level-sizeLog2 node into the 3x3 grid of
// level-(sizeLog2-1) fragments fourChildren is the inverse of: the four
// actual children plus the five overlaps between them.
func (e *Engine) nineChildren(idx quadnode.Idx, sizeLog2 uint) [9]quadnode.Idx {
	n := e.base.Get(idx, sizeLog2)
	nw, ne, sw, se := n.NW, n.NE, n.SW, n.SE
	nwN := *e.base.Get(nw, sizeLog2-1)
	neN := *e.base.Get(ne, sizeLog2-1)
	swN := *e.base.Get(sw, sizeLog2-1)
	seN := *e.base.Get(se, sizeLog2-1)
	m := e.base.Mem

	return [9]quadnode.Idx{
		nw,
		m.FindOrCreateNode(nwN.NE, neN.NW, nwN.SE, neN.SW),
		ne,
		m.FindOrCreateNode(nwN.SW, nwN.SE, swN.NW, swN.NE),
		m.FindOrCreateNode(nwN.SE, neN.SW, swN.NE, seN.NW),
		m.FindOrCreateNode(neN.SW, neN.SE, seN.NW, seN.NE),
		sw,
		m.FindOrCreateNode(swN.NE, seN.NW, swN.SE, seN.SW),
		se,
	}
}

// mergeUniverses flattens a bi-root pair back into a single root by ORing
// the two parts cell by cell, panicking if they overlap.
func (e *Engine) mergeUniverses(idx biPair, sizeLog2 uint) quadnode.Idx {
	if idx.b == quadnode.Null {
		return idx.a
	}
	m0 := *e.base.Get(idx.a, sizeLog2)
	m1 := *e.base.Get(idx.b, sizeLog2)
	if sizeLog2 == leafSizeLog2 {
		l0 := m0.LeafCells()
		l1 := m1.LeafCells()
		if l0&l1 != 0 {
			panic("streamlife: merged universes overlap")
		}
		return e.base.Mem.FindOrCreateLeaf(l0 | l1)
	}
	nw := e.mergeUniverses(biPair{m0.NW, m1.NW}, sizeLog2-1)
	ne := e.mergeUniverses(biPair{m0.NE, m1.NE}, sizeLog2-1)
	sw := e.mergeUniverses(biPair{m0.SW, m1.SW}, sizeLog2-1)
	se := e.mergeUniverses(biPair{m0.SE, m1.SE}, sizeLog2-1)
	return e.base.Mem.FindOrCreateNode(nw, ne, sw, se)
}

// updateNodeNull evolves a single-root node with no time passing for its
// immediate children — used in place of a recursive bi-root update whenever
// both stages of this generation's update are not yet due at this level.
func (e *Engine) updateNodeNull(node quadnode.Idx, sizeLog2 uint) quadnode.Idx {
	n := e.base.Get(node, sizeLog2)
	nwse := e.base.Get(n.NW, sizeLog2-1).SE
	nesw := e.base.Get(n.NE, sizeLog2-1).SW
	swne := e.base.Get(n.SW, sizeLog2-1).NE
	senw := e.base.Get(n.SE, sizeLog2-1).NW
	return e.base.Mem.FindOrCreateNode(nwse, nesw, swne, senw)
}

// iterateRecurse is the bi-root analogue of HashLife's update_node: it
// advances both parts of idx by one update period, evolving them
// independently wherever isSolitonic proves that's safe and otherwise
// recursing into pair children, with a full merge-then-update at level
// leafSizeLog2+2.
func (e *Engine) iterateRecurse(idx biPair, sizeLog2 uint) biPair {
	if e.isSolitonic(idx, sizeLog2) {
		i1 := e.base.UpdateNode(idx.a, sizeLog2)
		i2 := e.base.UpdateNode(idx.b, sizeLog2)

		if idx.a == quadnode.Null || idx.b == quadnode.Null {
			i3 := quadnode.Idx(uint32(i1) | uint32(i2))
			ind3 := quadnode.Idx(uint32(idx.a) | uint32(idx.b))
			lanes := e.node2lanes(ind3, sizeLog2)
			if lanes&0xf0 != 0 {
				return biPair{quadnode.Null, i3}
			}
			return biPair{i3, quadnode.Null}
		}
		return biPair{i1, i2}
	}

	key := biKey{pair: idx, sizeLog2: uint32(sizeLog2)}
	if cached, ok := e.bicache.get(key); ok {
		return cached
	}

	var res biPair
	if sizeLog2 == leafSizeLog2+2 {
		hnode2 := e.mergeUniverses(idx, sizeLog2)
		i3 := e.base.UpdateNode(hnode2, sizeLog2)
		if i3 != quadnode.Null {
			lanes := e.node2lanes(hnode2, sizeLog2)
			if lanes&0xf0 != 0 {
				res = biPair{quadnode.Null, i3}
			} else {
				res = biPair{i3, quadnode.Null}
			}
		}
	} else {
		ch91 := e.nineChildren(idx.a, sizeLog2)
		ch92 := e.nineChildren(idx.b, sizeLog2)

		bothStages := e.base.GenerationsPerUpdateLog2+2 >= sizeLog2

		for i := 0; i < 9; i++ {
			if !bothStages {
				ch91[i] = e.updateNodeNull(ch91[i], sizeLog2-1)
				ch92[i] = e.updateNodeNull(ch92[i], sizeLog2-1)
			} else {
				p := e.iterateRecurse(biPair{ch91[i], ch92[i]}, sizeLog2-1)
				ch91[i], ch92[i] = p.a, p.b
			}
		}

		ch41 := e.fourChildren(&ch91, sizeLog2-2)
		ch42 := e.fourChildren(&ch92, sizeLog2-2)

		for i := 0; i < 4; i++ {
			p := e.iterateRecurse(biPair{ch41[i], ch42[i]}, sizeLog2-1)
			ch41[i], ch42[i] = p.a, p.b
		}

		m := e.base.Mem
		res = biPair{
			m.FindOrCreateNode(ch41[0], ch41[1], ch41[2], ch41[3]),
			m.FindOrCreateNode(ch42[0], ch42[1], ch42[2], ch42[3]),
		}
	}
	e.bicache.set(key, res)
	return res
}

func (e *Engine) addFrame(dx, dy *big.Int) {
	if e.biroot != nil {
		e.biroot = &biPair{
			e.base.WithFrame(e.biroot.a, e.base.SizeLog2),
			e.base.WithFrame(e.biroot.b, e.base.SizeLog2),
		}
	}
	e.base.AddFrame(dx, dy)
}

func (e *Engine) popFrame(dx, dy *big.Int) {
	if e.biroot != nil {
		e.biroot = &biPair{
			e.base.WithoutFrame(e.biroot.a, e.base.SizeLog2),
			e.base.WithoutFrame(e.biroot.b, e.base.SizeLog2),
		}
	}
	e.base.PopFrame(dx, dy)
}

// Update advances the universe by 2^generationsLog2 generations and returns
// the displacement (dx, dy) of the universe's logical origin.
func (e *Engine) Update(generationsLog2 uint, topology hashlife.Topology) (*big.Int, *big.Int, error) {
	if generationsLog2 >= 64 {
		return nil, nil, hashlife.ErrGenerationsTooLarge
	}
	e.base.Topology = topology

	if e.base.HasCache && e.base.GenerationsPerUpdateLog2 != generationsLog2 {
		e.RunGC()
	}
	e.base.HasCache = true
	e.base.GenerationsPerUpdateLog2 = generationsLog2

	framesCnt := generationsLog2 + 2
	if e.base.SizeLog2+1 > framesCnt {
		framesCnt = e.base.SizeLog2 + 1
	}
	framesCnt -= e.base.SizeLog2

	dx, dy := big.NewInt(0), big.NewInt(0)
	for i := uint(0); i < framesCnt; i++ {
		e.addFrame(dx, dy)
	}

	bi := biPair{e.base.Root, quadnode.Null}
	if e.biroot != nil {
		bi = *e.biroot
	}
	bi = e.iterateRecurse(bi, e.base.SizeLog2)
	e.base.SizeLog2--
	e.biroot = &bi
	e.base.Root = e.mergeUniverses(bi, e.base.SizeLog2)

	half := new(big.Int).Lsh(big.NewInt(1), e.base.SizeLog2-1)
	dx.Sub(dx, half)
	dy.Sub(dy, half)

	switch topology {
	case hashlife.Torus:
		for i := uint(0); i+1 < framesCnt; i++ {
			e.popFrame(dx, dy)
		}
	default:
		for e.base.HasBlankFrame() {
			e.popFrame(dx, dy)
		}
	}

	if e.base.Mem.Poisoned() {
		return nil, nil, memtable.ErrPoisoned
	}
	return dx, dy, nil
}

// RunGC drops the bi-root, marks every node reachable from the merged root
// and reclaims the rest, discarding every cache — including the bicache,
// whose entries reference nodes the sweep may have just freed. The next
// Update starts again from the merged root as a single part.
func (e *Engine) RunGC() {
	e.bicache.clear()
	e.biroot = nil
	e.base.RunGC()
}

// BytesTotal reports the engine's resident memory footprint, including the
// bicache.
func (e *Engine) BytesTotal() int {
	const bicacheEntrySize = 40 // biKey (12 bytes, padded) + biPair (8 bytes) + bool, rounded up
	return e.base.BytesTotal() + len(e.bicache.slots)*bicacheEntrySize
}

// Statistics renders a short human-readable report, mirroring the base
// engine's but annotated with bicache occupancy.
func (e *Engine) Statistics() string {
	return e.base.Statistics() + "Bicache entries: " + strconv.Itoa(e.bicache.len()) + "\n"
}
