package life

import (
	"math/big"

	"github.com/das67333/gohashlife/hashlife"
	"github.com/das67333/gohashlife/population"
)

// HashLifeEngine is the Engine implementation backed by the classical
// HashLife update_node recursion.
type HashLifeEngine struct {
	eng *hashlife.Engine
	pop *population.Manager
}

var _ Engine = (*HashLifeEngine)(nil)

// NewHashLifeEngine returns a blank universe of side 2^sizeLog2.
func NewHashLifeEngine(sizeLog2 uint, topology Topology) *HashLifeEngine {
	eng := hashlife.New(sizeLog2, topology)
	return &HashLifeEngine{eng: eng, pop: population.New(eng.Mem)}
}

// NewHashLifeEngineFromRLE parses data and builds a universe from it.
func NewHashLifeEngineFromRLE(data []byte, topology Topology) (*HashLifeEngine, error) {
	mem, root, sizeLog2, err := loadRLE(data)
	if err != nil {
		return nil, err
	}
	return &HashLifeEngine{
		eng: &hashlife.Engine{Mem: mem, Root: root, SizeLog2: sizeLog2, Topology: topology},
		pop: population.New(mem),
	}, nil
}

// NewHashLifeEngineFromMacrocell parses data and builds a universe from it.
func NewHashLifeEngineFromMacrocell(data []byte, topology Topology) (*HashLifeEngine, error) {
	mem, root, sizeLog2, err := loadMacrocell(data)
	if err != nil {
		return nil, err
	}
	return &HashLifeEngine{
		eng: &hashlife.Engine{Mem: mem, Root: root, SizeLog2: sizeLog2, Topology: topology},
		pop: population.New(mem),
	}, nil
}

// NewHashLifeEngineFromRecursiveOTCAMetapixel builds a universe by nesting
// OTCA computer tiles, as described by FromRecursiveOTCAMetapixel.
func NewHashLifeEngineFromRecursiveOTCAMetapixel(depth uint, topPattern [][]uint8, state0Cells, state1Cells []uint64, topology Topology) (*HashLifeEngine, error) {
	mem, root, sizeLog2, err := FromRecursiveOTCAMetapixel(depth, topPattern, state0Cells, state1Cells)
	if err != nil {
		return nil, err
	}
	return &HashLifeEngine{
		eng: &hashlife.Engine{Mem: mem, Root: root, SizeLog2: sizeLog2, Topology: topology},
		pop: population.New(mem),
	}, nil
}

func (e *HashLifeEngine) FromCellsArray(sizeLog2 uint, cells []uint64) error {
	mem, root := fromCellsArray(sizeLog2, cells)
	e.eng = &hashlife.Engine{Mem: mem, Root: root, SizeLog2: sizeLog2, Topology: e.eng.Topology}
	e.pop = population.New(mem)
	return nil
}

func (e *HashLifeEngine) FromRLE(data []byte) error {
	mem, root, sizeLog2, err := loadRLE(data)
	if err != nil {
		return err
	}
	e.eng = &hashlife.Engine{Mem: mem, Root: root, SizeLog2: sizeLog2, Topology: e.eng.Topology}
	e.pop = population.New(mem)
	return nil
}

func (e *HashLifeEngine) FromMacrocell(data []byte) error {
	mem, root, sizeLog2, err := loadMacrocell(data)
	if err != nil {
		return err
	}
	e.eng = &hashlife.Engine{Mem: mem, Root: root, SizeLog2: sizeLog2, Topology: e.eng.Topology}
	e.pop = population.New(mem)
	return nil
}

func (e *HashLifeEngine) SaveAsMacrocell() []byte {
	return saveAsMacrocell(e.eng.Mem, e.eng.Root, e.eng.SizeLog2)
}

func (e *HashLifeEngine) GetCells() []uint64 {
	return getCells(e.eng.Mem, e.eng.Root, e.eng.SizeLog2)
}

func (e *HashLifeEngine) SideLengthLog2() uint32 { return uint32(e.eng.SizeLog2) }

func (e *HashLifeEngine) GetCell(x, y uint64) bool { return e.eng.GetCell(x, y) }

func (e *HashLifeEngine) SetCell(x, y uint64, state bool) { e.eng.SetCell(x, y, state) }

func (e *HashLifeEngine) Update(generationsLog2 uint, topology Topology) (*big.Int, *big.Int, error) {
	e.eng.Topology = topology
	dx, dy, err := e.eng.Update(generationsLog2)
	if err == nil {
		e.pop.Reset()
	}
	return dx, dy, err
}

func (e *HashLifeEngine) FillTexture(viewportX, viewportY, size, resolution *float64, dst *[]float64) {
	fillTexture(e.eng.Mem, e.eng.Root, e.eng.SizeLog2, e.pop, viewportX, viewportY, size, resolution, dst)
}

func (e *HashLifeEngine) Population() float64 {
	return e.pop.Get(e.eng.Root, e.eng.SizeLog2)
}

func (e *HashLifeEngine) Hash() uint64 {
	return hashTree(e.eng.Mem, e.eng.Root, e.eng.SizeLog2)
}

func (e *HashLifeEngine) BytesTotal() int { return e.eng.BytesTotal() + e.pop.BytesTotal() }

func (e *HashLifeEngine) RunGC() {
	e.eng.RunGC()
	e.pop.Reset()
}

func (e *HashLifeEngine) Statistics() string { return e.eng.Statistics() }
