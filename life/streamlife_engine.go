package life

import (
	"math/big"

	"github.com/das67333/gohashlife/population"
	"github.com/das67333/gohashlife/streamlife"
)

// StreamLifeEngine is the Engine implementation backed by the StreamLife
// bi-root overlay on top of HashLife.
type StreamLifeEngine struct {
	eng *streamlife.Engine
	pop *population.Manager
}

var _ Engine = (*StreamLifeEngine)(nil)

// NewStreamLifeEngine returns a blank universe of side 2^sizeLog2.
func NewStreamLifeEngine(sizeLog2 uint, topology Topology) *StreamLifeEngine {
	eng := streamlife.New(sizeLog2, topology)
	return &StreamLifeEngine{eng: eng, pop: population.New(eng.Base().Mem)}
}

func (e *StreamLifeEngine) FromCellsArray(sizeLog2 uint, cells []uint64) error {
	mem, root := fromCellsArray(sizeLog2, cells)
	topology := e.eng.Base().Topology
	e.eng = streamlife.New(sizeLog2, topology)
	e.eng.Base().Mem = mem
	e.eng.Base().Root = root
	e.pop = population.New(mem)
	return nil
}

func (e *StreamLifeEngine) FromRLE(data []byte) error {
	mem, root, sizeLog2, err := loadRLE(data)
	if err != nil {
		return err
	}
	topology := e.eng.Base().Topology
	e.eng = streamlife.New(sizeLog2, topology)
	e.eng.Base().Mem = mem
	e.eng.Base().Root = root
	e.pop = population.New(mem)
	return nil
}

func (e *StreamLifeEngine) FromMacrocell(data []byte) error {
	mem, root, sizeLog2, err := loadMacrocell(data)
	if err != nil {
		return err
	}
	topology := e.eng.Base().Topology
	e.eng = streamlife.New(sizeLog2, topology)
	e.eng.Base().Mem = mem
	e.eng.Base().Root = root
	e.pop = population.New(mem)
	return nil
}

func (e *StreamLifeEngine) SaveAsMacrocell() []byte {
	b := e.eng.Base()
	return saveAsMacrocell(b.Mem, b.Root, b.SizeLog2)
}

func (e *StreamLifeEngine) GetCells() []uint64 {
	b := e.eng.Base()
	return getCells(b.Mem, b.Root, b.SizeLog2)
}

func (e *StreamLifeEngine) SideLengthLog2() uint32 { return uint32(e.eng.Base().SizeLog2) }

func (e *StreamLifeEngine) GetCell(x, y uint64) bool { return e.eng.Base().GetCell(x, y) }

func (e *StreamLifeEngine) SetCell(x, y uint64, state bool) { e.eng.Base().SetCell(x, y, state) }

func (e *StreamLifeEngine) Update(generationsLog2 uint, topology Topology) (*big.Int, *big.Int, error) {
	dx, dy, err := e.eng.Update(generationsLog2, topology)
	if err == nil {
		e.pop.Reset()
	}
	return dx, dy, err
}

func (e *StreamLifeEngine) FillTexture(viewportX, viewportY, size, resolution *float64, dst *[]float64) {
	b := e.eng.Base()
	fillTexture(b.Mem, b.Root, b.SizeLog2, e.pop, viewportX, viewportY, size, resolution, dst)
}

func (e *StreamLifeEngine) Population() float64 {
	b := e.eng.Base()
	return e.pop.Get(b.Root, b.SizeLog2)
}

func (e *StreamLifeEngine) Hash() uint64 {
	b := e.eng.Base()
	return hashTree(b.Mem, b.Root, b.SizeLog2)
}

func (e *StreamLifeEngine) BytesTotal() int { return e.eng.BytesTotal() + e.pop.BytesTotal() }

func (e *StreamLifeEngine) RunGC() {
	e.eng.RunGC()
	e.pop.Reset()
}

func (e *StreamLifeEngine) Statistics() string { return e.eng.Statistics() }
