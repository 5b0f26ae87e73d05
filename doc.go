// Package bufcache provides a block buffer cache for file system services.
//
// Every block a file system reads or writes goes through a fixed pool of
// block-sized slots. A slot is found by (device, block) through a chained
// hash index and recycled in least-recently-released order from a recency
// list. Dirty blocks are written back lazily, a whole device at a time and
// in ascending block order, before any of them is recycled.
//
// # Quick Start
//
//	dev := bufcache.MakeDev(3, 0)
//	disk, _ := blockdev.OpenFile("disk.img", blockdev.FileOptions{BlockSize: 4096})
//
//	c, _ := bufcache.New(1024, 4096)
//	_ = c.Mount(dev, disk, bufcache.MountOptions{})
//
//	b, err := c.Get(ctx, dev, 17, bufcache.ReadThrough)
//	if err != nil {
//	    return err
//	}
//	copy(b.Data()[128:], record)
//	b.MarkDirty()
//	_ = c.Put(ctx, b, bufcache.Reusable)
//
//	_ = c.Sync(ctx)
//
// # Pins
//
// Get pins a block and Put releases it. A pinned block is never recycled,
// so every Get must be paired with a Put on all paths and callers must
// keep fewer blocks pinned than the pool has slots. Running out of slots
// is a programming error and panics with a *CapacityError.
//
// # Hints
//
// Put takes a hint about reuse. OneShot blocks are recycled first,
// Reusable ones last. WriteImmediate writes a dirty block through at once.
//
// # Second Level
//
// A SecondLevel cache (see package cache) receives clean evicted blocks and
// is asked for a block before the device is read. It is checked once in New
// and ignored if it reports errors.ErrUnsupported.
//
// # Concurrency
//
// A Cache has no internal locking. Device I/O blocks the caller.
package bufcache
