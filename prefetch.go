package bufcache

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/hupe1980/bufcache/blockdev"
)

// Prefetch reads blocks of dev that are not cached yet, in runs of
// consecutive blocks, and releases them as Reusable. At most as many blocks
// as there are free slots are loaded.
//
// A run that comes back short ends the read-ahead; the unread blocks are
// released without content. Read errors are logged, not returned. Prefetch
// only fails for an unmounted device or a done ctx.
func (c *Cache) Prefetch(ctx context.Context, dev DevID, blocks []BlockNo) error {
	m, err := c.mounted(dev)
	if err != nil {
		return err
	}

	blocks = slices.Compact(slices.Sorted(slices.Values(blocks)))
	if free := c.lru.Len(); len(blocks) > free {
		blocks = blocks[:free]
	}

	pending := make([]Buf, 0, len(blocks))
	for _, blk := range blocks {
		b, err := c.Get(ctx, dev, blk, PrefetchOnly)
		if err != nil {
			c.putAll(ctx, pending)
			return err
		}
		if b.Valid() {
			if err := c.Put(ctx, b, Reusable); err != nil {
				c.putAll(ctx, pending)
				return err
			}
			continue
		}
		pending = append(pending, b)
	}

	defer c.putAll(ctx, pending)

	bs := c.pool.BlockSize()
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := 1
		first := pending[0].Block()
		for n < len(pending) && n < m.maxBatch && pending[n].Block() == first+BlockNo(n) {
			n++
		}
		run := pending[:n]

		bufs := make([][]byte, n)
		for i, b := range run {
			bufs[i] = b.Data()
		}

		if err := c.rc.AcquireIO(ctx, n*bs); err != nil {
			return err
		}

		start := time.Now()
		off, err := c.offset(first, n)
		var got int
		if err == nil {
			got, err = blockdev.ReadVector(ctx, m.dev, bufs, off)
		}
		if err == nil && got < n*bs {
			err = fmt.Errorf("read %d of %d bytes: %w", got, n*bs, io.ErrUnexpectedEOF)
		}
		c.mc.RecordRead(time.Since(start), err)
		c.st.reads++

		done := min(got/bs, n)
		for _, b := range run[:done] {
			c.validate(b.id, dev)
		}

		if err != nil {
			c.st.readErrors++
			c.log.LogIOError(ctx, "prefetch", BlockID{Dev: dev, Block: first + BlockNo(done)}, err)
			return ctx.Err()
		}
		pending = pending[n:]
	}

	return nil
}

func (c *Cache) putAll(ctx context.Context, bufs []Buf) {
	for _, b := range bufs {
		_ = c.Put(ctx, b, Reusable)
	}
}
