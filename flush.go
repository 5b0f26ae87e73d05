package bufcache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/bufcache/blockdev"
	"github.com/hupe1980/bufcache/internal/slot"
)

// Sync writes back every dirty block of every device. Write errors are
// logged and counted, never returned; the blocks stay dirty for a later
// attempt unless their device has failed. Only a done ctx fails Sync.
func (c *Cache) Sync(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}

	devs := make(map[DevID]struct{})
	for _, id := range c.dirty.ToArray() {
		if dev := c.pool.At(slot.ID(id)).Dev; dev != NoDev {
			devs[dev] = struct{}{}
		}
	}

	for _, dev := range slices.Sorted(maps.Keys(devs)) {
		if err := c.flushDevice(ctx, dev); err != nil && ctx.Err() != nil {
			return err
		}
	}
	return nil
}

// FlushAndInvalidate writes back and then drops every block of dev. It
// fails with ErrDeviceBusy while a block of dev is pinned.
func (c *Cache) FlushAndInvalidate(ctx context.Context, dev DevID) error {
	if c.closed {
		return ErrClosed
	}
	if n := c.pinnedOf(dev); n > 0 {
		return fmt.Errorf("%s: %d blocks pinned: %w", dev, n, ErrDeviceBusy)
	}
	if err := c.flushDevice(ctx, dev); err != nil && ctx.Err() != nil {
		return err
	}
	c.Invalidate(ctx, dev)
	return nil
}

// Invalidate drops every cached block of dev without writing it back, and
// makes the second level forget the device. Pinned blocks stay pinned but
// lose their identity.
func (c *Cache) Invalidate(ctx context.Context, dev DevID) {
	if c.closed || dev == NoDev {
		return
	}

	n := 0
	c.pool.Each(func(id slot.ID, s *slot.Slot) {
		if s.Dev != dev {
			return
		}
		c.index.Remove(id)
		s.Dev = NoDev
		c.setClean(id)
		n++
	})
	c.st.invalidated += int64(n)

	if c.secondLevelFor(dev) {
		c.l2.ForgetAll(ctx, dev)
	}
	c.log.LogInvalidate(ctx, dev, n)
}

func (c *Cache) pinnedOf(dev DevID) int {
	n := 0
	c.pool.Each(func(_ slot.ID, s *slot.Slot) {
		if s.Dev == dev && s.Pins > 0 {
			n++
		}
	})
	return n
}

// flushDevice writes the dirty blocks of dev in ascending block order, one
// vectored call per run of consecutive blocks. Blocks covered by a short
// transfer are marked clean; the rest stay dirty, or are dropped when the
// device has failed. A run that writes nothing ends the flush, so one
// unwritable block holds back every block after it.
//
// The returned error is the first write error, or ctx's.
func (c *Cache) flushDevice(ctx context.Context, dev DevID) error {
	ids := c.dirtyOf(dev)
	if len(ids) == 0 {
		return nil
	}

	m, err := c.mounted(dev)
	if err != nil {
		return err
	}

	slices.SortStableFunc(ids, func(a, b slot.ID) int {
		return cmp.Compare(c.pool.At(a).Block, c.pool.At(b).Block)
	})

	var (
		firstErr error
		written  int
		bs       = c.pool.BlockSize()
	)

	for len(ids) > 0 && !m.failed {
		if err := ctx.Err(); err != nil {
			return err
		}

		run := c.run(ids, m.maxBatch)
		bufs := make([][]byte, len(run))
		for i, id := range run {
			bufs[i] = c.pool.At(id).Data
		}

		first := c.pool.At(run[0]).Block
		if err := c.rc.AcquireIO(ctx, len(run)*bs); err != nil {
			return err
		}

		start := time.Now()
		off, err := c.offset(first, len(run))
		var n int
		if err == nil {
			n, err = blockdev.WriteVector(ctx, m.dev, bufs, off)
		}
		if err == nil && n < len(run)*bs {
			err = fmt.Errorf("wrote %d of %d bytes: %w", n, len(run)*bs, io.ErrUnexpectedEOF)
		}
		c.mc.RecordWrite(len(run), time.Since(start), err)

		done := min(n/bs, len(run))
		for _, id := range run[:done] {
			c.setClean(id)
		}
		written += done
		c.st.writes += int64(done)
		ids = ids[done:]

		if err != nil {
			c.st.writeErrors++
			c.log.LogWriteBack(ctx, dev, first, len(run), done, err)
			if firstErr == nil {
				firstErr = ioError("write", BlockID{Dev: dev, Block: first + BlockNo(done)}, err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, blockdev.ErrDeviceFailed) {
				m.markFailed()
			}
		} else {
			c.log.LogWriteBack(ctx, dev, first, len(run), done, nil)
		}

		if done == 0 {
			break
		}
	}

	invalidated := 0
	if m.failed {
		for _, id := range ids {
			c.invalidate(ctx, id)
			invalidated++
		}
		ids = nil
	}

	if firstErr == nil && !m.failed {
		if err := blockdev.Sync(ctx, m.dev); err != nil {
			m.log.ErrorContext(ctx, "device sync failed", "error", err)
			firstErr = err
		}
	}

	c.log.LogFlush(ctx, dev, written, len(ids), invalidated)
	return firstErr
}

// run returns the longest prefix of ids holding consecutive blocks, capped
// at limit.
func (c *Cache) run(ids []slot.ID, limit int) []slot.ID {
	if limit <= 0 {
		limit = blockdev.DefaultMaxBatch
	}
	first := c.pool.At(ids[0]).Block
	n := 1
	for n < len(ids) && n < limit && c.pool.At(ids[n]).Block == first+BlockNo(n) {
		n++
	}
	return ids[:n]
}

func (c *Cache) dirtyOf(dev DevID) []slot.ID {
	var ids []slot.ID
	for _, v := range c.dirty.ToArray() {
		id := slot.ID(v)
		if c.pool.At(id).Dev == dev {
			ids = append(ids, id)
		}
	}
	return ids
}
