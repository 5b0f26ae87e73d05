package bufcache_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/bufcache"
	"github.com/hupe1980/bufcache/blockdev"
	"github.com/hupe1980/bufcache/cache"
)

func Example() {
	ctx := context.Background()

	c, err := bufcache.New(16, 512)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close(ctx)

	dev := bufcache.MakeDev(3, 0)
	disk := blockdev.NewMemory(512, 128)
	if err := c.Mount(dev, disk, bufcache.MountOptions{}); err != nil {
		log.Fatal(err)
	}

	b, err := c.Get(ctx, dev, 42, bufcache.NoReadNeeded)
	if err != nil {
		log.Fatal(err)
	}
	copy(b.Data(), "superblock")
	b.MarkDirty()
	if err := c.Put(ctx, b, bufcache.Reusable); err != nil {
		log.Fatal(err)
	}

	if err := c.Sync(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(disk.Bytes()[42*512 : 42*512+10]))
	// Output: superblock
}

func ExampleWithSecondLevel() {
	ctx := context.Background()

	l2 := cache.NewMemory(1<<20, nil)
	c, err := bufcache.New(1, 512, bufcache.WithSecondLevel(l2))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close(ctx)

	dev := bufcache.MakeDev(3, 0)
	disk := blockdev.NewFaulty(blockdev.NewMemory(512, 8), 512)
	if err := c.Mount(dev, disk, bufcache.MountOptions{}); err != nil {
		log.Fatal(err)
	}

	for _, blk := range []bufcache.BlockNo{0, 1, 0, 1} {
		b, err := c.Get(ctx, dev, blk, bufcache.ReadThrough)
		if err != nil {
			log.Fatal(err)
		}
		_ = c.Put(ctx, b, bufcache.Reusable)
	}

	st := c.Stats()
	fmt.Println("device reads:", disk.Reads())
	fmt.Println("second-level hits:", st.L2Hits)
	// Output:
	// device reads: 2
	// second-level hits: 2
}
