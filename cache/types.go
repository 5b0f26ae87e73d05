package cache

import (
	"context"

	"github.com/hupe1980/bufcache/internal/core"
)

// SecondLevel is the contract between the block cache and a second-level
// cache. It mirrors bufcache.SecondLevel.
type SecondLevel interface {
	Offer(ctx context.Context, id core.BlockID, data []byte)
	Fetch(ctx context.Context, evicted, requested core.BlockID, buf []byte) bool
	Forget(ctx context.Context, id core.BlockID) error
	ForgetAll(ctx context.Context, dev core.DevID)
	Close() error
}

// Stats is a snapshot of second-level cache counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Offers  int64
	Entries int
	Bytes   int64
}

var (
	_ SecondLevel = (*Memory)(nil)
	_ SecondLevel = (*Disk)(nil)
	_ SecondLevel = Unsupported{}
)
