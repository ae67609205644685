// Package life is the root façade: it exposes every evolution strategy
// (HashLife, StreamLife, the SIMD torus engine) behind one Engine interface,
// so callers such as a GUI or CLI can swap strategies without caring which
// one is currently loaded.
package life

import (
	"math/big"

	"github.com/das67333/gohashlife/hashlife"
)

// Topology re-exports hashlife.Topology, so callers of this package never
// need to import hashlife directly just to pick Torus or Unbounded.
type Topology = hashlife.Topology

const (
	Unbounded = hashlife.Unbounded
	Torus     = hashlife.Torus
)

// Engine is implemented by every evolution strategy in this module:
// HashLifeEngine, StreamLifeEngine, and SIMDEngine.
type Engine interface {
	// FromCellsArray replaces the universe with one built from a row-major,
	// word-packed bitmap of side 2^sizeLog2.
	FromCellsArray(sizeLog2 uint, cells []uint64) error

	// FromRLE replaces the universe with one parsed from an RLE document.
	FromRLE(data []byte) error

	// FromMacrocell replaces the universe with one parsed from a Macrocell
	// document.
	FromMacrocell(data []byte) error

	// SaveAsMacrocell serializes the current universe to a Macrocell
	// document.
	SaveAsMacrocell() []byte

	// GetCells returns the universe's cells as a row-major, word-packed
	// bitmap.
	GetCells() []uint64

	// SideLengthLog2 reports the universe's side length as a power of two.
	SideLengthLog2() uint32

	// GetCell reports whether (x, y) is alive.
	GetCell(x, y uint64) bool

	// SetCell sets (x, y) to state.
	SetCell(x, y uint64, state bool)

	// Update advances the universe by 2^generationsLog2 generations under
	// the given topology and returns the displacement of its logical
	// origin (always (0,0) under Torus).
	Update(generationsLog2 uint, topology Topology) (dx, dy *big.Int, err error)

	// FillTexture rasterizes a viewport of the universe into dst, snapping
	// the caller's requested viewport and resolution to the nearest
	// representable boundary and reporting the adjusted values back.
	FillTexture(viewportX, viewportY, size, resolution *float64, dst *[]float64)

	// Population reports the universe's total live-cell count.
	Population() float64

	// Hash returns a 64-bit structural digest of the universe.
	Hash() uint64

	// BytesTotal reports the engine's resident memory footprint.
	BytesTotal() int

	// RunGC reclaims every node unreachable from the current root(s).
	RunGC()

	// Statistics renders a short human-readable report.
	Statistics() string
}
