package bufcache

import (
	"context"

	"github.com/hupe1980/bufcache/internal/core"
)

// DevID identifies a block device.
type DevID = core.DevID

// BlockNo is a block index on a device.
type BlockNo = core.BlockNo

// BlockID names one block on one device.
type BlockID = core.BlockID

// NoDev is the device id of an unassociated slot.
const NoDev = core.NoDev

// MemoryMajor is the major number of RAM disks. Their blocks are released
// to the front of the recency list and never reach the second level.
const MemoryMajor = core.MemoryMajor

// NoBlock is the BlockID with no device.
var NoBlock = core.NoBlock

// MakeDev composes a DevID from a major and a minor number.
func MakeDev(major, minor uint32) DevID { return core.MakeDev(major, minor) }

// Intent tells Get what the caller will do with the block.
type Intent uint8

const (
	// ReadThrough loads the block from the second level or the device.
	ReadThrough Intent = iota
	// NoReadNeeded skips the read; the caller overwrites the whole block.
	NoReadNeeded
	// PrefetchOnly reserves a slot without I/O. Unless the block was
	// already resident or the second level had it, the returned Buf is
	// not valid and a later Get still misses.
	PrefetchOnly
)

func (i Intent) String() string {
	switch i {
	case ReadThrough:
		return "read"
	case NoReadNeeded:
		return "noread"
	case PrefetchOnly:
		return "prefetch"
	default:
		return "unknown"
	}
}

// Hint tells Put how likely the block is to be needed again. Hints are bit
// flags; OneShot|WriteImmediate is allowed.
type Hint uint8

const (
	// Reusable releases the block to the rear of the recency list.
	Reusable Hint = 0
	// OneShot releases the block to the front, making it the next victim.
	OneShot Hint = 1 << (iota - 1)
	// WriteImmediate writes a dirty block to its device before Put returns.
	WriteImmediate
)

func (h Hint) String() string {
	switch h {
	case Reusable:
		return "reuse"
	case OneShot:
		return "oneshot"
	case WriteImmediate:
		return "immed"
	case OneShot | WriteImmediate:
		return "oneshot|immed"
	default:
		return "unknown"
	}
}

// SecondLevel is a larger content cache consulted on misses and fed with
// evicted blocks. Implementations live in package cache.
type SecondLevel interface {
	// Offer hands over the content of an evicted clean block.
	Offer(ctx context.Context, id BlockID, data []byte)
	// Fetch exchanges blocks: buf holds the content of evicted on entry
	// (evicted may be NoBlock). On a hit, buf holds requested on return.
	Fetch(ctx context.Context, evicted, requested BlockID, buf []byte) bool
	// Forget drops one block. Forget(ctx, NoBlock) checks for support and
	// returns errors.ErrUnsupported when the cache cannot be used.
	Forget(ctx context.Context, id BlockID) error
	// ForgetAll drops every block of dev, or everything for NoDev.
	ForgetAll(ctx context.Context, dev DevID)
	Close() error
}

// Stats is a snapshot of cache state and counters.
type Stats struct {
	Slots       int
	BlockSize   int
	Free        int
	Pinned      int
	Dirty       int
	Resident    int
	Generation  uint32
	SecondLevel bool
	Hits        int64
	Misses      int64
	Evictions   int64
	Discarded   int64
	Reads       int64
	ReadErrors  int64
	Writes      int64
	WriteErrors int64
	Invalidated int64
	L2Hits      int64
	L2Misses    int64
}
