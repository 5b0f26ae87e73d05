package cache

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	natomic "github.com/natefinch/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/bufcache/internal/core"
	"github.com/hupe1980/bufcache/resource"
)

// DiskConfig holds configuration for the disk cache.
type DiskConfig struct {
	// RootDir is the directory where cache files are stored.
	RootDir string
	// MaxSizeBytes is the maximum size of the cache files in bytes.
	MaxSizeBytes int64
	// MaxConcurrentWrites limits background writes. Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
	// Codec compresses payloads.
	Codec Codec
	// Resource supplies the shared background worker budget. Nil means only
	// MaxConcurrentWrites applies.
	Resource *resource.Controller
}

// Disk is a second-level cache persisted as one file per block under
// RootDir. The in-memory LRU index is rebuilt from the directory on start.
//
// Offers are written in the background and become visible to Fetch once the
// write completes. An offer that is forgotten before then is discarded.
type Disk struct {
	mu          sync.Mutex
	rootDir     string
	maxSize     int64
	currentSize int64
	codec       Codec
	rc          *resource.Controller

	writeSem *semaphore.Weighted
	wg       sync.WaitGroup
	inflight map[core.BlockID]int

	items   map[core.BlockID]*lruEntry
	lruHead *lruEntry
	lruTail *lruEntry

	hits    atomic.Int64
	misses  atomic.Int64
	offers  atomic.Int64
	corrupt atomic.Int64
}

type lruEntry struct {
	id         core.BlockID
	size       int64
	pending    bool
	next, prev *lruEntry
}

// NewDisk creates a disk cache, scanning RootDir for entries left by a
// previous process.
func NewDisk(cfg DiskConfig) (*Disk, error) {
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, err
	}

	maxWrites := cfg.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	c := &Disk{
		rootDir:  cfg.RootDir,
		maxSize:  cfg.MaxSizeBytes,
		codec:    cfg.Codec,
		rc:       cfg.Resource,
		items:    make(map[core.BlockID]*lruEntry),
		inflight: make(map[core.BlockID]int),
		writeSem: semaphore.NewWeighted(maxWrites),
	}
	c.scanExistingFiles()

	return c, nil
}

func (c *Disk) scanExistingFiles() {
	_ = filepath.WalkDir(c.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // keep scanning
		}
		if d.IsDir() {
			return nil
		}
		id, ok := c.parsePath(path)
		if !ok {
			// Leftover temporary file from an interrupted write.
			_ = os.Remove(path)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // keep scanning
		}
		c.pushFront(&lruEntry{id: id, size: info.Size()})
		return nil
	})

	for c.currentSize > c.maxSize && c.lruTail != nil {
		c.evictOne()
	}
}

// Format: <root>/<dev hex>/<block hex>.blk
func (c *Disk) path(id core.BlockID) string {
	return filepath.Join(c.rootDir, fmt.Sprintf("%08x", uint32(id.Dev)), fmt.Sprintf("%016x.blk", id.Block))
}

func (c *Disk) parsePath(absPath string) (core.BlockID, bool) {
	rel, err := filepath.Rel(c.rootDir, absPath)
	if err != nil {
		return core.NoBlock, false
	}
	var dev uint32
	var blk uint64
	n, err := fmt.Sscanf(filepath.ToSlash(rel), "%08x/%016x.blk", &dev, &blk)
	if err != nil || n != 2 {
		return core.NoBlock, false
	}
	id := core.BlockID{Dev: core.DevID(dev), Block: blk}
	if !id.Valid() || c.path(id) != absPath {
		return core.NoBlock, false
	}
	return id, true
}

// Offer writes data for id in the background. It is dropped if all writer
// slots or all shared background workers are busy. Any older entry for id is
// removed either way. An offer for a block whose previous write is still in
// flight forgets the block instead, since the two writes could land in
// either order.
func (c *Disk) Offer(_ context.Context, id core.BlockID, data []byte) {
	if !id.Valid() {
		return
	}
	c.offers.Add(1)

	payload, err := encodeEntry(data, c.codec)
	if err != nil {
		return
	}
	size := int64(len(payload))

	c.mu.Lock()
	if ent, ok := c.items[id]; ok {
		c.discard(ent)
	}
	if c.inflight[id] > 0 || size > c.maxSize || !c.writeSem.TryAcquire(1) {
		c.mu.Unlock()
		return
	}
	if !c.rc.TryAcquireBackground() {
		c.writeSem.Release(1)
		c.mu.Unlock()
		return
	}
	ent := &lruEntry{id: id, size: size, pending: true}
	c.pushFront(ent)
	for c.currentSize > c.maxSize && c.lruTail != ent {
		c.evictOne()
	}
	c.inflight[id]++
	c.mu.Unlock()

	path := c.path(id)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)
		defer c.rc.ReleaseBackground()

		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err == nil {
			err = natomic.WriteFile(path, bytes.NewReader(payload))
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.inflight[id]--; c.inflight[id] == 0 {
			delete(c.inflight, id)
		}

		cur, ok := c.items[id]
		switch {
		case ok && cur == ent && err == nil:
			cur.pending = false
		case ok && cur == ent:
			c.removeEntry(cur)
		case err == nil:
			// Forgotten or evicted while in flight.
			_ = os.Remove(path)
		}
	}()
}

// Fetch stores the evicted block held in buf and loads the requested block
// into buf if it is cached and valid.
func (c *Disk) Fetch(ctx context.Context, evicted, requested core.BlockID, buf []byte) bool {
	// Offer encodes synchronously, so buf is free once it returns.
	if evicted.Valid() && evicted != requested {
		c.Offer(ctx, evicted, buf)
	}

	c.mu.Lock()
	ent, ok := c.items[requested]
	if ok && ent.pending {
		ok = false
	}
	if ok {
		c.moveToFront(ent)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return false
	}

	// Decode into scratch so a corrupt entry leaves buf untouched.
	data, err := os.ReadFile(c.path(requested))
	scratch := make([]byte, len(buf))
	if err == nil {
		err = decodeEntry(data, scratch)
	}
	if err != nil {
		c.corrupt.Add(1)
		c.drop(requested, ent)
		c.misses.Add(1)
		return false
	}

	copy(buf, scratch)
	c.hits.Add(1)
	return true
}

func (c *Disk) drop(id core.BlockID, ent *lruEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.items[id]; ok && cur == ent {
		c.discard(cur)
	}
}

// Forget drops id. Forget(ctx, core.NoBlock) succeeds, which tells the block
// cache the second level is usable.
func (c *Disk) Forget(_ context.Context, id core.BlockID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[id]; ok {
		c.discard(ent)
	}
	return nil
}

// ForgetAll drops every block of dev, or everything for core.NoDev.
func (c *Disk) ForgetAll(_ context.Context, dev core.DevID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*lruEntry
	for id, ent := range c.items {
		if dev == core.NoDev || id.Dev == dev {
			toRemove = append(toRemove, ent)
		}
	}
	for _, ent := range toRemove {
		c.discard(ent)
	}
}

// Wait blocks until all background writes have completed.
func (c *Disk) Wait() {
	c.wg.Wait()
}

// Close waits for all background writes to complete. Files stay on disk for
// the next process.
func (c *Disk) Close() error {
	c.wg.Wait()
	return nil
}

// Contains reports whether a completed entry for id exists.
func (c *Disk) Contains(id core.BlockID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.items[id]
	return ok && !ent.pending
}

// Stats returns cache statistics.
func (c *Disk) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Offers:  c.offers.Load(),
		Entries: len(c.items),
		Bytes:   c.currentSize,
	}
}

// Corrupt returns the number of entries dropped for failing validation.
func (c *Disk) Corrupt() int64 { return c.corrupt.Load() }

// Internal LRU helpers (must hold lock)

func (c *Disk) pushFront(ent *lruEntry) {
	c.items[ent.id] = ent
	c.currentSize += ent.size

	ent.prev = nil
	ent.next = c.lruHead
	if c.lruHead != nil {
		c.lruHead.prev = ent
	}
	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *Disk) moveToFront(ent *lruEntry) {
	if c.lruHead == ent {
		return
	}

	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if c.lruTail == ent {
		c.lruTail = ent.prev
	}

	ent.next = c.lruHead
	ent.prev = nil
	if c.lruHead != nil {
		c.lruHead.prev = ent
	}
	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *Disk) removeEntry(ent *lruEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.lruHead = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.lruTail = ent.prev
	}
	ent.next, ent.prev = nil, nil

	delete(c.items, ent.id)
	c.currentSize -= ent.size
}

func (c *Disk) evictOne() {
	if c.lruTail != nil {
		c.discard(c.lruTail)
	}
}

// discard removes ent and its file. A pending entry's file is removed by its
// writer once it sees the entry is gone.
func (c *Disk) discard(ent *lruEntry) {
	if !ent.pending {
		_ = os.Remove(c.path(ent.id))
	}
	c.removeEntry(ent)
}
