package bufcache

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Put unpins the block. When the last pin is gone the slot becomes a
// candidate for eviction: OneShot blocks, blocks of volatile devices and
// blocks without a device go to the front of the recency list, the rest to
// the rear.
//
// With WriteImmediate a dirty block is written to its device before Put
// returns. If that write fails the block is dropped and the *IOError is
// returned.
//
// Putting the zero Buf is a no-op. Putting a block that is not pinned
// panics.
func (c *Cache) Put(ctx context.Context, b Buf, hint Hint) error {
	if b.IsZero() {
		return nil
	}

	s := b.slot()
	if s.Pins <= 0 {
		panic(fmt.Sprintf("bufcache: Put of unpinned block %s#%d", s.Dev, s.Block))
	}
	s.Pins--
	if s.Pins > 0 {
		return nil
	}

	m := c.devices[s.Dev]
	if hint&OneShot != 0 || s.Dev == NoDev || (m != nil && m.volatile) {
		c.lru.PushFront(b.id)
	} else {
		c.lru.PushRear(b.id)
	}

	if hint&WriteImmediate == 0 || !s.Dirty || s.Dev == NoDev || m == nil {
		return nil
	}

	id := BlockID{Dev: s.Dev, Block: s.Block}
	if err := c.rc.AcquireIO(ctx, len(s.Data)); err != nil {
		return err
	}

	start := time.Now()
	off, err := c.offset(s.Block, 1)
	var n int
	if err == nil {
		n, err = m.dev.WriteAt(ctx, s.Data, off)
	}
	if err == nil && n < len(s.Data) {
		err = fmt.Errorf("wrote %d of %d bytes: %w", n, len(s.Data), io.ErrUnexpectedEOF)
	}
	c.mc.RecordWrite(1, time.Since(start), err)
	if err != nil {
		c.st.writeErrors++
		c.log.LogIOError(ctx, "write", id, err)
		c.invalidate(ctx, b.id)
		c.lru.Remove(b.id)
		c.lru.PushFront(b.id)
		return ioError("write", id, err)
	}

	c.st.writes++
	c.setClean(b.id)
	return nil
}
