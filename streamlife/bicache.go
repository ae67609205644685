package streamlife

import (
	"github.com/dolthub/maphash"

	"github.com/das67333/gohashlife/internal/quadnode"
)

// biPair is an ordered pair of quadtree handles: the two disjoint parts of
// the universe that StreamLife evolves side by side and ORs back together.
type biPair struct {
	a, b quadnode.Idx
}

// biKey identifies a memoized iterateRecurse call.
type biKey struct {
	pair     biPair
	sizeLog2 uint32
}

type bicacheSlot struct {
	key  biKey
	val  biPair
	full bool
}

// bicache is a linear-probing hash map from biKey to biPair, hashed with
// dolthub/maphash for speed: entries are inserted and looked up on every
// non-solitonic iterateRecurse call, so allocation-free probing matters.
type bicache struct {
	hasher maphash.Hasher[biKey]
	slots  []bicacheSlot
	used   int
}

func newBicache() *bicache {
	return &bicache{
		hasher: maphash.NewHasher[biKey](),
		slots:  make([]bicacheSlot, 16),
	}
}

func (c *bicache) get(k biKey) (biPair, bool) {
	mask := uint64(len(c.slots) - 1)
	i := c.hasher.Hash(k) & mask
	for {
		s := &c.slots[i]
		if !s.full {
			return biPair{}, false
		}
		if s.key == k {
			return s.val, true
		}
		i = (i + 1) & mask
	}
}

func (c *bicache) set(k biKey, v biPair) {
	if (c.used+1)*4 >= len(c.slots)*3 {
		c.grow()
	}
	mask := uint64(len(c.slots) - 1)
	i := c.hasher.Hash(k) & mask
	for {
		s := &c.slots[i]
		if !s.full {
			*s = bicacheSlot{key: k, val: v, full: true}
			c.used++
			return
		}
		if s.key == k {
			s.val = v
			return
		}
		i = (i + 1) & mask
	}
}

func (c *bicache) grow() {
	old := c.slots
	c.slots = make([]bicacheSlot, len(old)*2)
	c.used = 0
	for _, s := range old {
		if s.full {
			c.set(s.key, s.val)
		}
	}
}

func (c *bicache) clear() {
	c.slots = make([]bicacheSlot, 16)
	c.used = 0
}

func (c *bicache) len() int { return c.used }
