// Package population memoizes the total live-cell count of a quadtree node,
// keyed on (index, level), so repeated queries over the same universe avoid
// re-walking unchanged subtrees.
package population

import (
	"math/bits"

	"github.com/das67333/gohashlife/internal/memtable"
	"github.com/das67333/gohashlife/internal/quadnode"
)

type key struct {
	idx      quadnode.Idx
	sizeLog2 uint
}

// Manager caches population(idx, sizeLog2) over a shared hash-cons table.
// The cache must be dropped whenever the table's arena runs a GC, since node
// indices are repurposed by the sweep.
type Manager struct {
	mem   *memtable.Table
	cache map[key]float64
}

// New returns a population manager reading nodes from mem.
func New(mem *memtable.Table) *Manager {
	return &Manager{mem: mem, cache: make(map[key]float64)}
}

// Reset drops the entire cache. Call after every memtable GC.
func (m *Manager) Reset() {
	clear(m.cache)
}

// Get returns the number of live cells under idx at level sizeLog2.
func (m *Manager) Get(idx quadnode.Idx, sizeLog2 uint) float64 {
	if idx == quadnode.Null {
		return 0
	}
	k := key{idx, sizeLog2}
	if v, ok := m.cache[k]; ok {
		return v
	}

	n := m.mem.Get(idx, sizeLog2)
	var total float64
	if sizeLog2 == quadnode.LeafSizeLog2 {
		total = float64(bits.OnesCount64(n.LeafCells()))
	} else {
		total = m.Get(n.NW, sizeLog2-1) + m.Get(n.NE, sizeLog2-1) +
			m.Get(n.SW, sizeLog2-1) + m.Get(n.SE, sizeLog2-1)
	}
	m.cache[k] = total
	return total
}

// Len reports how many (index, level) pairs are currently memoized.
func (m *Manager) Len() int { return len(m.cache) }

// BytesTotal estimates the cache's resident memory footprint.
func (m *Manager) BytesTotal() int {
	const entrySize = 24 // padded key plus float64 value
	return len(m.cache) * entrySize
}
