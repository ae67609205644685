// Package simdtorus implements a flat, word-packed torus engine: the whole
// universe lives in one []uint64 (64 cells per word, row-major), advanced one
// generation at a time by the same half-adder/full-adder bit-parallel
// technique as the HashLife leaf evolver, but applied across word boundaries
// with toroidal wraparound instead of being confined to an 8x8 tile.
package simdtorus

import (
	"errors"
	"fmt"
)

// cellsPerWord is the number of cells packed into each uint64.
const cellsPerWord = 64

// ErrTooSmall is returned by New when side is below the minimum the engine
// supports (one word wide).
var ErrTooSmall = errors.New("simdtorus: side must be at least 64 and a power of two")

// ErrGenerationsTooLarge is returned by Update when asked to advance by 2^64
// or more generations in one call.
var ErrGenerationsTooLarge = errors.New("simdtorus: generations_log2 must be < 64")

// Engine is a torus-topology Game of Life universe stored as a packed bitmap.
type Engine struct {
	data []uint64
	n    int // side length in cells; always a power of two, >= cellsPerWord
}

// New wraps data (row-major, cellsPerWord cells per word, n/cellsPerWord
// words per row) as an Engine of side n. It takes ownership of data.
func New(data []uint64, n int) (*Engine, error) {
	if n < cellsPerWord || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrTooSmall, n)
	}
	if len(data) != n*n/cellsPerWord {
		return nil, fmt.Errorf("simdtorus: data has %d words, want %d", len(data), n*n/cellsPerWord)
	}
	return &Engine{data: data, n: n}, nil
}

// Blank returns an all-dead torus of side n.
func Blank(n int) (*Engine, error) {
	if n < cellsPerWord || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrTooSmall, n)
	}
	return &Engine{data: make([]uint64, n*n/cellsPerWord), n: n}, nil
}

// Side returns the universe's side length in cells.
func (e *Engine) Side() int { return e.n }

// Data exposes the packed row-major bitmap directly.
func (e *Engine) Data() []uint64 { return e.data }

// GetCell reports whether the cell at (x, y) is alive.
func (e *Engine) GetCell(x, y int) bool {
	w := e.n / cellsPerWord
	word := e.data[y*w+x/cellsPerWord]
	return word>>uint(x%cellsPerWord)&1 != 0
}

// SetCell sets the cell at (x, y).
func (e *Engine) SetCell(x, y int, alive bool) {
	w := e.n / cellsPerWord
	idx := y*w + x/cellsPerWord
	bit := uint64(1) << uint(x%cellsPerWord)
	if alive {
		e.data[idx] |= bit
	} else {
		e.data[idx] &^= bit
	}
}

// updateRow advances one row of w words, given the row above and below (each
// w words wide), wrapping horizontally within the row.
func updateRow(rowPrev, rowCurr, rowNext []uint64, dst []uint64) {
	w := len(rowPrev)
	const shift = cellsPerWord - 1

	step := func(x int) {
		x1 := (x - 1 + w) % w
		x2 := (x + 1) % w

		b := rowPrev[x]
		a := (b << 1) | (rowPrev[x1] >> shift)
		cc := (b >> 1) | (rowPrev[x2] << shift)
		i := rowCurr[x]
		h := (i << 1) | (rowCurr[x1] >> shift)
		d := (i >> 1) | (rowCurr[x2] << shift)
		f := rowNext[x]
		g := (f << 1) | (rowNext[x1] >> shift)
		e := (f >> 1) | (rowNext[x2] << shift)

		ab0, ab1 := a^b, a&b
		cd0, cd1 := cc^d, cc&d
		ef0, ef1 := e^f, e&f
		gh0, gh1 := g^h, g&h

		ad0 := ab0 ^ cd0
		ad1 := ab1 ^ cd1 ^ (ab0 & cd0)
		ad2 := ab1 & cd1

		eh0 := ef0 ^ gh0
		eh1 := ef1 ^ gh1 ^ (ef0 & gh0)
		eh2 := ef1 & gh1

		ah0 := ad0 ^ eh0
		xx := ad0 & eh0
		yy := ad1 ^ eh1
		ah1 := xx ^ yy
		ah23 := ad2 | eh2 | (ad1 & eh1) | (xx & yy)

		z := ^ah23 & ah1
		i2 := ^ah0 & z
		i3 := ah0 & z
		dst[x] = (i & i2) | i3
	}

	for x := 0; x < w; x++ {
		step(x)
	}
}

// updateInner advances the whole torus by one generation.
func (e *Engine) updateInner() {
	w := e.n / cellsPerWord
	h := e.n

	rowPrev := append([]uint64(nil), e.data[(h-1)*w:]...)
	rowCurr := append([]uint64(nil), e.data[:w]...)
	rowPreserved := append([]uint64(nil), rowCurr...)
	rowNext := append([]uint64(nil), e.data[w:2*w]...)

	updateRow(rowPrev, rowCurr, rowNext, e.data[:w])

	for y := 1; y < h-1; y++ {
		// Rotate the three buffers: the old rowCurr becomes the new rowPrev
		// and the old rowNext the new rowCurr, freeing what was rowPrev to be
		// refilled as rowNext.
		// A plain rowPrev, rowCurr = rowCurr, rowNext would leave rowCurr and
		// rowNext aliasing the same array, corrupting rowCurr on refill.
		rowPrev, rowCurr, rowNext = rowCurr, rowNext, rowPrev
		rowNext = append(rowNext[:0], e.data[(y+1)*w:(y+2)*w]...)
		updateRow(rowPrev, rowCurr, rowNext, e.data[y*w:(y+1)*w])
	}

	rowPrev, rowCurr = rowCurr, rowNext
	updateRow(rowPrev, rowCurr, rowPreserved, e.data[(h-1)*w:])
}

// Update advances the torus by 2^generationsLog2 generations.
func (e *Engine) Update(generationsLog2 uint) error {
	if generationsLog2 >= 64 {
		return fmt.Errorf("%w: got %d", ErrGenerationsTooLarge, generationsLog2)
	}
	for i := uint64(0); i < uint64(1)<<generationsLog2; i++ {
		e.updateInner()
	}
	return nil
}

// BytesTotal reports the engine's resident memory footprint.
func (e *Engine) BytesTotal() int { return cap(e.data) * 8 }
