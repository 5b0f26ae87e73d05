package bufcache

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/hupe1980/bufcache/blockdev"
	"github.com/hupe1980/bufcache/internal/slot"
)

// Get pins the block and returns a handle to it.
//
// A resident block is returned as is. Otherwise the slot at the front of
// the recency list is recycled: a dirty victim first causes a write-back of
// every dirty block of its device, a clean one is handed to the second
// level. The requested block is then filled according to intent.
//
// dev may be NoDev for a scratch block that is never read or written.
//
// Get panics with a *CapacityError when every slot is pinned. A failed read
// returns an *IOError and leaves nothing pinned.
func (c *Cache) Get(ctx context.Context, dev DevID, block BlockNo, intent Intent) (Buf, error) {
	if c.closed {
		return Buf{}, ErrClosed
	}

	want := BlockID{Dev: dev, Block: block}

	var m *mount
	if dev != NoDev {
		if id := c.index.Lookup(dev, block); id != slot.None {
			s := c.pool.At(id)
			if s.Pins == 0 {
				c.lru.Remove(id)
			}
			s.Pins++
			c.st.hits++
			c.mc.RecordHit()
			return c.handle(id), nil
		}

		var err error
		if m, err = c.mounted(dev); err != nil {
			return Buf{}, ioError("read", want, err)
		}
		if _, err = c.offset(block, 1); err != nil {
			return Buf{}, ioError("read", want, err)
		}
		c.st.misses++
		c.mc.RecordMiss()
	}

	id := c.lru.PopFront()
	if id == slot.None {
		panic(&CapacityError{Slots: c.pool.Len(), Want: want})
	}

	yield, err := c.evict(ctx, id)
	if err != nil {
		return Buf{}, err
	}

	s := c.pool.At(id)
	s.Dev = NoDev
	s.Block = block
	s.Pins = 1

	if dev == NoDev {
		if yield.Valid() {
			c.l2.Offer(ctx, yield, s.Data)
		}
		return c.handle(id), nil
	}

	useL2 := c.l2 != nil && m.secondLevel()
	switch {
	case intent != NoReadNeeded && useL2:
		hit := c.l2.Fetch(ctx, yield, want, s.Data)
		c.mc.RecordSecondLevel(hit)
		if hit {
			c.st.l2Hits++
			c.validate(id, dev)
			return c.handle(id), nil
		}
		c.st.l2Misses++
	default:
		if yield.Valid() {
			c.l2.Offer(ctx, yield, s.Data)
		}
		if intent == NoReadNeeded && useL2 {
			c.forget(ctx, want)
		}
	}

	switch intent {
	case PrefetchOnly:
		return c.handle(id), nil
	case NoReadNeeded:
		c.validate(id, dev)
		return c.handle(id), nil
	}

	if err := c.read(ctx, m, want, s.Data); err != nil {
		s.Pins = 0
		c.lru.PushFront(id)
		return Buf{}, err
	}

	c.validate(id, dev)
	return c.handle(id), nil
}

// evict detaches a popped slot from its previous block. It returns the
// identity to hand to the second level, or NoBlock.
func (c *Cache) evict(ctx context.Context, id slot.ID) (BlockID, error) {
	s := c.pool.At(id)
	if s.Dev == NoDev {
		c.setClean(id)
		return NoBlock, nil
	}

	victim := BlockID{Dev: s.Dev, Block: s.Block}
	c.index.Remove(id)

	if s.Dirty {
		if err := c.flushDevice(ctx, victim.Dev); err != nil && ctx.Err() != nil {
			if s.Dev != NoDev {
				c.index.Insert(id)
			}
			c.lru.PushFront(id)
			return NoBlock, err
		}
	}

	c.st.evictions++
	if s.Dev == NoDev {
		// The flush dropped it.
		c.mc.RecordEviction(false)
		return NoBlock, nil
	}

	if s.Dirty {
		c.setClean(id)
		c.forget(ctx, victim)
		c.st.discarded++
		c.mc.RecordEviction(true)
		c.log.LogEviction(ctx, victim, true)
		return NoBlock, nil
	}

	c.mc.RecordEviction(false)
	c.log.LogEviction(ctx, victim, false)
	if !c.secondLevelFor(victim.Dev) {
		return NoBlock, nil
	}
	return victim, nil
}

// validate associates a filled slot with its device.
func (c *Cache) validate(id slot.ID, dev DevID) {
	c.pool.At(id).Dev = dev
	c.index.Insert(id)
}

// offset returns the byte offset of block. The range of blocks blocks
// starting there must end within int64.
func (c *Cache) offset(block BlockNo, blocks int) (int64, error) {
	limit := uint64(math.MaxInt64) / uint64(c.pool.BlockSize())
	if blocks < 0 || uint64(blocks) > limit || block > limit-uint64(blocks) {
		return 0, fmt.Errorf("block %d: offset overflows: %w", block, blockdev.ErrOutOfBounds)
	}
	return int64(block) * int64(c.pool.BlockSize()), nil
}

func (c *Cache) read(ctx context.Context, m *mount, id BlockID, buf []byte) error {
	start := time.Now()
	off, err := c.offset(id.Block, 1)
	var n int
	if err == nil {
		n, err = m.dev.ReadAt(ctx, buf, off)
	}
	if err == nil && n < len(buf) {
		err = fmt.Errorf("read %d of %d bytes: %w", n, len(buf), io.ErrUnexpectedEOF)
	}
	c.mc.RecordRead(time.Since(start), err)
	c.st.reads++
	if err != nil {
		c.st.readErrors++
		c.log.LogIOError(ctx, "read", id, err)
		return ioError("read", id, err)
	}
	return nil
}
