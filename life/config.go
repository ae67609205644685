package life

import (
	"runtime"
	"sync/atomic"
)

// MemoryManagerCapLog2 is the initial bucket-count exponent for the hash-cons
// table of a universe built from a cells array, an RLE or Macrocell document,
// or OTCA tiles. Changing it only affects universes built afterwards. Blank
// engines from NewHashLifeEngine and NewStreamLifeEngine do not read it; they
// always start with memtable.DefaultCapLog2.
var MemoryManagerCapLog2 atomic.Uint32

// MinCoroutineSpawnSizeLog2 is the node level at which the optional
// parallel update_node variant fans recursion out to worker goroutines
// instead of running inline. Unused by the baseline single-threaded
// engines in this package; carried for callers that build a parallel
// memtable variant on top of internal/memtable.
var MinCoroutineSpawnSizeLog2 atomic.Uint32

// WorkerThreads is the worker-pool size the parallel variant should use.
var WorkerThreads atomic.Int64

func init() {
	MemoryManagerCapLog2.Store(20)
	MinCoroutineSpawnSizeLog2.Store(15)
	WorkerThreads.Store(int64(runtime.GOMAXPROCS(0)))
}
