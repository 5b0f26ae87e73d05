package bufcache

import (
	"github.com/hupe1980/bufcache/internal/slot"
)

// Buf is a pinned reference to one cache slot, returned by Get and given
// back with Put. The zero Buf is the absent reference; putting it is a
// no-op.
//
// A Buf is only usable between Get and the matching Put, and only within
// the pool generation it came from. Resize and SetBlockSize start a new
// generation; using an older Buf panics.
type Buf struct {
	c   *Cache
	id  slot.ID
	gen uint32
}

func (c *Cache) handle(id slot.ID) Buf {
	return Buf{c: c, id: id, gen: c.gen}
}

// IsZero reports whether b is the absent reference.
func (b Buf) IsZero() bool { return b.c == nil }

func (b Buf) slot() *slot.Slot {
	if b.c == nil {
		panic("bufcache: use of zero Buf")
	}
	if b.c.pool == nil || b.gen != b.c.gen {
		panic("bufcache: Buf from a previous pool generation")
	}
	return b.c.pool.At(b.id)
}

// Data returns the block buffer. It stays valid until the final Put.
func (b Buf) Data() []byte { return b.slot().Data }

// Dev returns the device of the block, or NoDev for a scratch block or an
// unfilled read-ahead slot.
func (b Buf) Dev() DevID { return b.slot().Dev }

// Block returns the block number.
func (b Buf) Block() BlockNo { return b.slot().Block }

// ID returns the (device, block) pair.
func (b Buf) ID() BlockID {
	s := b.slot()
	return BlockID{Dev: s.Dev, Block: s.Block}
}

// Valid reports whether the buffer holds the content of a device block.
func (b Buf) Valid() bool { return b.slot().Dev != NoDev }

// Dirty reports whether the buffer has unwritten changes.
func (b Buf) Dirty() bool { return b.slot().Dirty }

// Pins returns the number of outstanding Gets of this block.
func (b Buf) Pins() int { return int(b.slot().Pins) }

// MarkDirty records that the caller modified the buffer. Blocks without a
// device have nowhere to be written and stay clean.
func (b Buf) MarkDirty() {
	s := b.slot()
	if s.Pins <= 0 {
		panic("bufcache: MarkDirty on unpinned block")
	}
	if s.Dev == NoDev {
		return
	}
	b.c.setDirty(b.id)
}

// ZeroFill clears the buffer and marks it dirty.
func (c *Cache) ZeroFill(b Buf) {
	clear(b.Data())
	b.MarkDirty()
}
