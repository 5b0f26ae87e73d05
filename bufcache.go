package bufcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/bufcache/internal/slot"
	"github.com/hupe1980/bufcache/resource"
)

// Cache is a fixed-size block buffer cache.
//
// A Cache is not safe for concurrent use. Callers serialize access and keep
// every Get paired with a Put, so that fewer blocks are pinned at any time
// than the pool has slots.
type Cache struct {
	opts options
	log  *Logger
	mc   MetricsCollector
	rc   *resource.Controller

	pool     *slot.Pool
	index    *slot.Index
	lru      *slot.List
	dirty    *roaring.Bitmap // slot ids
	gen      uint32
	reserved int64

	devices map[DevID]*mount

	// l2 is nil when no second level is attached, use is switched off, or
	// the support check in New failed.
	l2 SecondLevel

	closed bool
	st     counters
}

type counters struct {
	hits        int64
	misses      int64
	evictions   int64
	discarded   int64
	reads       int64
	readErrors  int64
	writes      int64
	writeErrors int64
	invalidated int64
	l2Hits      int64
	l2Misses    int64
}

// New creates a cache of slots buffers of blockSize bytes each.
func New(slots, blockSize int, opts ...Option) (*Cache, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	c := &Cache{
		opts:    o,
		log:     o.logger,
		mc:      o.metricsCollector,
		rc:      o.rc,
		dirty:   roaring.New(),
		devices: make(map[DevID]*mount),
	}

	if err := c.allocate("New", slots, blockSize); err != nil {
		return nil, err
	}

	c.checkSecondLevel()

	return c, nil
}

func (c *Cache) checkSecondLevel() {
	l2 := c.opts.secondLevel
	if l2 == nil || !c.opts.useSecondLevel {
		return
	}

	if err := l2.Forget(context.Background(), NoBlock); errors.Is(err, errors.ErrUnsupported) {
		c.log.Info("second-level cache unsupported, disabled")
		return
	}

	c.l2 = l2
}

func validShape(slots, blockSize int) bool {
	return slots > 0 && blockSize > 0
}

// allocate builds a new pool generation. Every slot starts free, in id
// order on the recency list.
func (c *Cache) allocate(op string, slots, blockSize int) error {
	if !validShape(slots, blockSize) {
		return &ConfigError{Op: op, Slots: slots, Size: blockSize, cause: ErrInvalidArgument}
	}

	bytes := int64(slots) * int64(blockSize)
	if !c.rc.TryAcquireMemory(bytes) {
		return &ConfigError{Op: op, Slots: slots, Size: blockSize, cause: ErrMemoryLimit}
	}

	pool, err := slot.NewPool(slot.PoolConfig{
		Slots:     slots,
		BlockSize: blockSize,
		OffHeap:   c.opts.offHeap,
	})
	if err != nil {
		c.rc.ReleaseMemory(bytes)
		return &ConfigError{Op: op, Slots: slots, Size: blockSize, cause: fmt.Errorf("%w: %w", ErrInvalidArgument, err)}
	}

	c.pool = pool
	c.index = slot.NewIndex(pool, c.opts.hashBuckets)
	c.lru = slot.NewList(pool)
	for i := range slots {
		c.lru.PushRear(slot.ID(i))
	}
	c.dirty.Clear()
	c.reserved = bytes
	c.gen++

	return nil
}

func (c *Cache) releasePool() error {
	if c.pool == nil {
		return nil
	}
	err := c.pool.Close()
	c.rc.ReleaseMemory(c.reserved)
	c.pool, c.index, c.lru = nil, nil, nil
	c.reserved = 0
	return err
}

// pinned returns the number of slots with a pin. Free slots are exactly the
// linked ones.
func (c *Cache) pinned() int {
	return c.pool.Len() - c.lru.Len()
}

// Resize replaces the pool with one of slots buffers. Fails with a
// *ConfigError wrapping ErrBusy while any block is pinned.
func (c *Cache) Resize(ctx context.Context, slots int) error {
	if c.closed {
		return ErrClosed
	}
	return c.reconfigure(ctx, "Resize", slots, c.pool.BlockSize())
}

// SetBlockSize replaces the pool with one of buffers of size bytes. Every
// cached block is dropped. Fails with a *ConfigError wrapping ErrBusy while
// any block is pinned.
func (c *Cache) SetBlockSize(ctx context.Context, size int) error {
	if c.closed {
		return ErrClosed
	}
	return c.reconfigure(ctx, "SetBlockSize", c.pool.Len(), size)
}

func (c *Cache) reconfigure(ctx context.Context, op string, slots, blockSize int) error {
	if n := c.pinned(); n > 0 {
		return &ConfigError{Op: op, Slots: slots, Size: blockSize, Pinned: n, cause: ErrBusy}
	}
	if !validShape(slots, blockSize) {
		return &ConfigError{Op: op, Slots: slots, Size: blockSize, cause: ErrInvalidArgument}
	}

	if err := c.Sync(ctx); err != nil {
		return err
	}
	if n := c.dirty.GetCardinality(); n > 0 {
		c.log.WarnContext(ctx, "dropping unwritable dirty blocks", "op", op, "blocks", n)
		c.st.discarded += int64(n)
	}

	oldSlots, oldSize := c.pool.Len(), c.pool.BlockSize()
	if err := c.releasePool(); err != nil {
		c.log.WarnContext(ctx, "release pool", "error", err)
	}
	c.forgetAll(ctx, NoDev)

	if err := c.allocate(op, slots, blockSize); err != nil {
		if rerr := c.allocate(op, oldSlots, oldSize); rerr != nil {
			c.closed = true
			return errors.Join(err, rerr)
		}
		return err
	}

	c.log.InfoContext(ctx, "pool reallocated",
		"op", op,
		"slots", slots,
		"block_size", blockSize,
		"generation", c.gen,
	)
	return nil
}

// Close writes back every dirty block, releases the pool and closes the
// second level. Mounted devices are left open.
func (c *Cache) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}

	var errs []error
	if err := c.Sync(ctx); err != nil {
		errs = append(errs, err)
	}
	c.closed = true

	if err := c.releasePool(); err != nil {
		errs = append(errs, err)
	}
	if l2 := c.opts.secondLevel; l2 != nil {
		if err := l2.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close second level: %w", err))
		}
	}
	c.l2 = nil
	clear(c.devices)

	return errors.Join(errs...)
}

// BlockSize returns the size of every slot buffer.
func (c *Cache) BlockSize() int {
	if c.pool == nil {
		return 0
	}
	return c.pool.BlockSize()
}

// Stats returns a snapshot of the cache.
func (c *Cache) Stats() Stats {
	st := Stats{
		SecondLevel: c.l2 != nil,
		Generation:  c.gen,
		Hits:        c.st.hits,
		Misses:      c.st.misses,
		Evictions:   c.st.evictions,
		Discarded:   c.st.discarded,
		Reads:       c.st.reads,
		ReadErrors:  c.st.readErrors,
		Writes:      c.st.writes,
		WriteErrors: c.st.writeErrors,
		Invalidated: c.st.invalidated,
		L2Hits:      c.st.l2Hits,
		L2Misses:    c.st.l2Misses,
	}
	if c.pool != nil {
		st.Slots = c.pool.Len()
		st.BlockSize = c.pool.BlockSize()
		st.Free = c.lru.Len()
		st.Pinned = c.pinned()
		st.Dirty = int(c.dirty.GetCardinality())
		st.Resident = c.index.Len()
	}
	return st
}

// setDirty marks a slot dirty. The second level may hold the content the
// slot had when it was last clean, so the first transition forgets it there.
func (c *Cache) setDirty(id slot.ID) {
	s := c.pool.At(id)
	if !s.Dirty && s.Dev != NoDev {
		c.forget(context.Background(), BlockID{Dev: s.Dev, Block: s.Block})
	}
	s.Dirty = true
	c.dirty.Add(uint32(id))
}

func (c *Cache) setClean(id slot.ID) {
	c.pool.At(id).Dirty = false
	c.dirty.Remove(uint32(id))
}

// invalidate dissociates a slot from its block without writing it.
func (c *Cache) invalidate(ctx context.Context, id slot.ID) {
	s := c.pool.At(id)
	if s.Dev == NoDev {
		return
	}
	bid := BlockID{Dev: s.Dev, Block: s.Block}
	c.index.Remove(id)
	s.Dev = NoDev
	c.setClean(id)
	c.forget(ctx, bid)
	c.st.invalidated++
}

// secondLevelFor reports whether blocks of dev may pass through the second
// level.
func (c *Cache) secondLevelFor(dev DevID) bool {
	if c.l2 == nil || dev == NoDev {
		return false
	}
	m := c.devices[dev]
	return m != nil && m.secondLevel()
}

func (c *Cache) forget(ctx context.Context, id BlockID) {
	if !c.secondLevelFor(id.Dev) {
		return
	}
	if err := c.l2.Forget(ctx, id); err != nil {
		c.log.DebugContext(ctx, "second-level forget", "block", id.String(), "error", err)
	}
}

func (c *Cache) forgetAll(ctx context.Context, dev DevID) {
	if c.l2 == nil {
		return
	}
	c.l2.ForgetAll(ctx, dev)
}
