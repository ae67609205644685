package life

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"

	"github.com/das67333/gohashlife/population"
	"github.com/das67333/gohashlife/simdtorus"
)

// ErrSIMDTopologyUnsupported is returned whenever an operation asks the SIMD
// torus engine for anything other than Torus topology.
var ErrSIMDTopologyUnsupported = errors.New("life: simd engine only supports torus topology")

// SIMDEngine is the Engine implementation backed by the stand-alone,
// bit-parallel torus engine: a flat packed bitmap with no quadtree, no
// hash-consing, and no growth — the reference engine for small patterns
// below the HashLife threshold.
type SIMDEngine struct {
	eng *simdtorus.Engine
}

var _ Engine = (*SIMDEngine)(nil)

// NewSIMDEngine returns a blank torus of side 2^sizeLog2.
func NewSIMDEngine(sizeLog2 uint) (*SIMDEngine, error) {
	eng, err := simdtorus.Blank(1 << sizeLog2)
	if err != nil {
		return nil, err
	}
	return &SIMDEngine{eng: eng}, nil
}

func (e *SIMDEngine) FromCellsArray(sizeLog2 uint, cells []uint64) error {
	data := append([]uint64(nil), cells...)
	eng, err := simdtorus.New(data, 1<<sizeLog2)
	if err != nil {
		return err
	}
	e.eng = eng
	return nil
}

func (e *SIMDEngine) FromRLE(data []byte) error {
	mem, root, sizeLog2, err := loadRLE(data)
	if err != nil {
		return err
	}
	cells := getCells(mem, root, sizeLog2)
	return e.FromCellsArray(sizeLog2, cells)
}

func (e *SIMDEngine) FromMacrocell(data []byte) error {
	mem, root, sizeLog2, err := loadMacrocell(data)
	if err != nil {
		return err
	}
	cells := getCells(mem, root, sizeLog2)
	return e.FromCellsArray(sizeLog2, cells)
}

func (e *SIMDEngine) SaveAsMacrocell() []byte {
	mem, root := fromCellsArray(e.sideLog2(), e.eng.Data())
	return saveAsMacrocell(mem, root, e.sideLog2())
}

func (e *SIMDEngine) sideLog2() uint {
	var log2 uint
	for 1<<log2 < e.eng.Side() {
		log2++
	}
	return log2
}

func (e *SIMDEngine) GetCells() []uint64 {
	return append([]uint64(nil), e.eng.Data()...)
}

func (e *SIMDEngine) SideLengthLog2() uint32 { return uint32(e.sideLog2()) }

func (e *SIMDEngine) GetCell(x, y uint64) bool { return e.eng.GetCell(int(x), int(y)) }

func (e *SIMDEngine) SetCell(x, y uint64, state bool) { e.eng.SetCell(int(x), int(y), state) }

func (e *SIMDEngine) Update(generationsLog2 uint, topology Topology) (*big.Int, *big.Int, error) {
	if topology != Torus {
		return nil, nil, fmt.Errorf("%w: got %s", ErrSIMDTopologyUnsupported, topology)
	}
	if err := e.eng.Update(generationsLog2); err != nil {
		return nil, nil, err
	}
	return big.NewInt(0), big.NewInt(0), nil
}

func (e *SIMDEngine) FillTexture(viewportX, viewportY, size, resolution *float64, dst *[]float64) {
	mem, root := fromCellsArray(e.sideLog2(), e.eng.Data())
	pop := population.New(mem)
	fillTexture(mem, root, e.sideLog2(), pop, viewportX, viewportY, size, resolution, dst)
}

func (e *SIMDEngine) Population() float64 {
	var total float64
	for _, w := range e.eng.Data() {
		total += float64(bits.OnesCount64(w))
	}
	return total
}

func (e *SIMDEngine) Hash() uint64 {
	mem, root := fromCellsArray(e.sideLog2(), e.eng.Data())
	return hashTree(mem, root, e.sideLog2())
}

func (e *SIMDEngine) BytesTotal() int { return e.eng.BytesTotal() }

// RunGC is a no-op: the SIMD engine holds no hash-consed arena to sweep.
func (e *SIMDEngine) RunGC() {}

func (e *SIMDEngine) Statistics() string {
	return fmt.Sprintf("Engine: SIMD torus\nSide length: %d\nBytes total: %d\n", e.eng.Side(), e.eng.BytesTotal())
}
