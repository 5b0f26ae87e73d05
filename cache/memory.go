package cache

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/bufcache/internal/core"
	"github.com/hupe1980/bufcache/resource"
)

// Memory is a byte-budgeted LRU second-level cache held on the heap.
type Memory struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[core.BlockID]*list.Element
	lru      *list.List
	devs     map[core.DevID]*roaring64.Bitmap
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
	offers atomic.Int64
}

type entry struct {
	id   core.BlockID
	data []byte
}

// NewMemory creates a cache holding up to capacity bytes of block data.
// If rc is provided, every cached byte is also reserved from it.
func NewMemory(capacity int64, rc *resource.Controller) *Memory {
	return &Memory{
		capacity: capacity,
		items:    make(map[core.BlockID]*list.Element),
		lru:      list.New(),
		devs:     make(map[core.DevID]*roaring64.Bitmap),
		rc:       rc,
	}
}

// Offer stores a copy of data under id.
func (c *Memory) Offer(_ context.Context, id core.BlockID, data []byte) {
	if !id.Valid() {
		return
	}
	c.offers.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(id, data)
}

func (c *Memory) put(id core.BlockID, data []byte) {
	itemSize := int64(len(data))

	if el, ok := c.items[id]; ok {
		ent := el.Value.(*entry)
		if len(ent.data) == len(data) {
			copy(ent.data, data)
			c.lru.MoveToFront(el)
			return
		}
		c.remove(el)
	}

	if itemSize > c.capacity {
		return
	}

	for c.size+itemSize > c.capacity {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.remove(back)
	}

	// Respect the global budget; evict our own entries before giving up.
	for !c.rc.TryAcquireMemory(itemSize) {
		back := c.lru.Back()
		if back == nil {
			return
		}
		c.remove(back)
	}

	c.items[id] = c.lru.PushFront(&entry{id: id, data: slices.Clone(data)})
	c.size += itemSize

	bm, ok := c.devs[id.Dev]
	if !ok {
		bm = roaring64.New()
		c.devs[id.Dev] = bm
	}
	bm.Add(id.Block)
}

// Fetch stores the evicted block held in buf and replaces buf with the
// requested block if it is cached.
func (c *Memory) Fetch(_ context.Context, evicted, requested core.BlockID, buf []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, hit := c.items[requested]
	if hit && len(el.Value.(*entry).data) != len(buf) {
		c.remove(el)
		hit = false
	}

	var data []byte
	if hit {
		c.lru.MoveToFront(el)
		data = el.Value.(*entry).data
	}

	// buf still holds the evicted block.
	if evicted.Valid() && evicted != requested {
		c.put(evicted, buf)
	}

	if !hit {
		c.misses.Add(1)
		return false
	}
	copy(buf, data)
	c.hits.Add(1)
	return true
}

// Forget drops id. Forget(ctx, core.NoBlock) succeeds, which tells the block
// cache the second level is usable.
func (c *Memory) Forget(_ context.Context, id core.BlockID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.remove(el)
	}
	return nil
}

// ForgetAll drops every block of dev, or everything for core.NoDev.
func (c *Memory) ForgetAll(_ context.Context, dev core.DevID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dev == core.NoDev {
		for el := c.lru.Front(); el != nil; {
			next := el.Next()
			c.remove(el)
			el = next
		}
		return
	}

	bm, ok := c.devs[dev]
	if !ok {
		return
	}
	for _, blk := range bm.ToArray() {
		if el, ok := c.items[core.BlockID{Dev: dev, Block: blk}]; ok {
			c.remove(el)
		}
	}
}

func (c *Memory) remove(el *list.Element) {
	ent := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.items, ent.id)
	size := int64(len(ent.data))
	c.size -= size
	c.rc.ReleaseMemory(size)

	if bm, ok := c.devs[ent.id.Dev]; ok {
		bm.Remove(ent.id.Block)
		if bm.IsEmpty() {
			delete(c.devs, ent.id.Dev)
		}
	}
}

// Contains reports whether id is cached.
func (c *Memory) Contains(id core.BlockID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[id]
	return ok
}

// Stats returns cache statistics.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Offers:  c.offers.Load(),
		Entries: len(c.items),
		Bytes:   c.size,
	}
}

// Close drops all entries and returns their memory to the controller.
func (c *Memory) Close() error {
	c.ForgetAll(context.Background(), core.NoDev)
	return nil
}
