package slot

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bufcache/internal/core"
	"github.com/hupe1980/bufcache/internal/mem"
	"github.com/hupe1980/bufcache/internal/mmap"
)

// ID addresses a slot within a Pool.
type ID int32

// None is the absent slot link.
const None ID = -1

// ErrInvalidPool is returned when a pool cannot be built with the given shape.
var ErrInvalidPool = errors.New("slot: invalid pool shape")

// Slot is one cached block.
//
// Dev, Block, Data, Pins and Dirty belong to the cache protocol. The links are
// private to List and Index.
type Slot struct {
	Dev   core.DevID
	Block core.BlockNo
	Data  []byte
	Pins  int32
	Dirty bool

	prev, next ID
	linked     bool

	hnext  ID
	hashed bool
}

// Linked reports whether the slot is on a recency list.
func (s *Slot) Linked() bool { return s.linked }

// Hashed reports whether the slot is in a hash index.
func (s *Slot) Hashed() bool { return s.hashed }

// Resident reports whether the slot holds a valid block.
func (s *Slot) Resident() bool { return s.Dev != core.NoDev }

// Pool is a fixed arena of slots sharing one contiguous buffer allocation.
type Pool struct {
	slots     []Slot
	blockSize int
	mapping   *mmap.Mapping
}

// PoolConfig describes the shape of a pool.
type PoolConfig struct {
	// Slots is the number of slots. Must be > 0.
	Slots int
	// BlockSize is the size of each slot buffer in bytes. Must be > 0.
	BlockSize int
	// OffHeap backs the buffers with an anonymous memory mapping instead of
	// the Go heap.
	OffHeap bool
}

// NewPool allocates a pool. Every slot starts with Dev = NoDev, no pins and
// no links.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Slots <= 0 || cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: slots=%d blockSize=%d", ErrInvalidPool, cfg.Slots, cfg.BlockSize)
	}

	total := cfg.Slots * cfg.BlockSize
	if total/cfg.Slots != cfg.BlockSize {
		return nil, fmt.Errorf("%w: size overflow", ErrInvalidPool)
	}

	p := &Pool{
		slots:     make([]Slot, cfg.Slots),
		blockSize: cfg.BlockSize,
	}

	var backing []byte
	if cfg.OffHeap {
		m, err := mmap.MapAnon(total)
		if err != nil {
			return nil, fmt.Errorf("slot: map pool: %w", err)
		}
		// Slots are recycled in recency order, not address order.
		_ = m.Advise(mmap.AccessRandom)
		p.mapping = m
		backing = m.Bytes()
	} else {
		backing = mem.AllocAligned(total, mem.SectorAlignment)
	}

	bufs := mem.Carve(backing, cfg.Slots, cfg.BlockSize)
	for i := range p.slots {
		p.slots[i] = Slot{
			Data:  bufs[i],
			prev:  None,
			next:  None,
			hnext: None,
		}
	}

	return p, nil
}

// Len returns the number of slots.
func (p *Pool) Len() int { return len(p.slots) }

// BlockSize returns the size of each slot buffer.
func (p *Pool) BlockSize() int { return p.blockSize }

// OffHeap reports whether the buffers live in a memory mapping.
func (p *Pool) OffHeap() bool { return p.mapping != nil }

// At returns the slot with the given ID. It panics on an out-of-range ID.
func (p *Pool) At(id ID) *Slot {
	return &p.slots[id]
}

// Each calls fn for every slot in ID order.
func (p *Pool) Each(fn func(id ID, s *Slot)) {
	for i := range p.slots {
		fn(ID(i), &p.slots[i])
	}
}

// Close releases the backing memory. The pool must not be used afterwards.
func (p *Pool) Close() error {
	for i := range p.slots {
		p.slots[i].Data = nil
	}
	p.slots = nil
	if p.mapping != nil {
		m := p.mapping
		p.mapping = nil
		return m.Close()
	}
	return nil
}
