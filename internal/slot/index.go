package slot

import (
	"fmt"

	"github.com/hupe1980/bufcache/internal/core"
)

// Index maps (device, block) to the resident slot holding it.
// Buckets are chained through the slots' hash links.
type Index struct {
	pool    *Pool
	buckets []ID
	n       int
}

// NewIndex creates an empty index over p with the given bucket count.
// A non-positive count uses one bucket per slot.
func NewIndex(p *Pool, buckets int) *Index {
	if buckets <= 0 {
		buckets = p.Len()
	}
	b := make([]ID, buckets)
	for i := range b {
		b[i] = None
	}
	return &Index{pool: p, buckets: b}
}

func (x *Index) bucket(block core.BlockNo) int {
	return int(block % uint64(len(x.buckets)))
}

// Len returns the number of indexed slots.
func (x *Index) Len() int { return x.n }

// Buckets returns the bucket count.
func (x *Index) Buckets() int { return len(x.buckets) }

// Lookup returns the slot holding (dev, block), or None.
func (x *Index) Lookup(dev core.DevID, block core.BlockNo) ID {
	for id := x.buckets[x.bucket(block)]; id != None; {
		s := x.pool.At(id)
		if s.Dev == dev && s.Block == block {
			return id
		}
		id = s.hnext
	}
	return None
}

// Insert adds the slot under its current Dev and Block.
// Inserting an already indexed slot panics.
func (x *Index) Insert(id ID) {
	s := x.pool.At(id)
	if s.hashed {
		panic(fmt.Sprintf("slot: insert of indexed slot %d", id))
	}
	b := x.bucket(s.Block)
	s.hnext = x.buckets[b]
	s.hashed = true
	x.buckets[b] = id
	x.n++
}

// Remove unlinks the slot from its bucket. The slot's Block must not have
// changed since Insert. Returns false if the slot was not indexed.
func (x *Index) Remove(id ID) bool {
	s := x.pool.At(id)
	if !s.hashed {
		return false
	}

	b := x.bucket(s.Block)
	if x.buckets[b] == id {
		x.buckets[b] = s.hnext
	} else {
		prev := x.buckets[b]
		for prev != None {
			ps := x.pool.At(prev)
			if ps.hnext == id {
				ps.hnext = s.hnext
				break
			}
			prev = ps.hnext
		}
		if prev == None {
			panic(fmt.Sprintf("slot: indexed slot %d missing from bucket %d", id, b))
		}
	}

	s.hnext = None
	s.hashed = false
	x.n--
	return true
}
