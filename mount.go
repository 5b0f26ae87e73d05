package bufcache

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/bufcache/blockdev"
)

// MountOptions describe how the cache treats a device.
type MountOptions struct {
	// Volatile marks a RAM-backed device. Its blocks are released to the
	// front of the recency list and never reach the second level. Devices
	// implementing blockdev.Volatile, or with major number MemoryMajor, are
	// volatile regardless.
	Volatile bool

	// NoSecondLevel keeps the device's blocks out of the second level.
	NoSecondLevel bool
}

type mount struct {
	dev      blockdev.Device
	volatile bool
	noL2     bool
	failed   bool
	maxBatch int
	log      *Logger
}

func (m *mount) secondLevel() bool {
	return !m.volatile && !m.noL2
}

func (m *mount) markFailed() {
	if !m.failed {
		m.failed = true
		m.log.Warn("device marked failed")
	}
}

// Mount attaches device under id dev.
func (c *Cache) Mount(dev DevID, device blockdev.Device, opts MountOptions) error {
	if c.closed {
		return ErrClosed
	}
	if dev == NoDev || device == nil {
		return fmt.Errorf("mount %s: %w", dev, ErrInvalidArgument)
	}
	if _, ok := c.devices[dev]; ok {
		return fmt.Errorf("mount %s: %w", dev, ErrAlreadyMounted)
	}

	batch := blockdev.MaxBatch(device)
	if c.opts.maxBatch > 0 {
		batch = min(batch, c.opts.maxBatch)
	}

	m := &mount{
		dev:      device,
		volatile: opts.Volatile || blockdev.IsVolatile(device) || dev.Major() == MemoryMajor,
		noL2:     opts.NoSecondLevel,
		maxBatch: batch,
		log:      c.log.WithDevice(dev),
	}
	c.devices[dev] = m

	m.log.Info("device mounted", "max_batch", batch)
	return nil
}

// Unmount writes back and drops every block of dev, then detaches it. The
// device is not closed. Fails with ErrDeviceBusy while a block of dev is
// pinned.
func (c *Cache) Unmount(ctx context.Context, dev DevID) error {
	m, err := c.mounted(dev)
	if err != nil {
		return err
	}
	if err := c.FlushAndInvalidate(ctx, dev); err != nil {
		return err
	}
	delete(c.devices, dev)
	m.log.InfoContext(ctx, "device unmounted")
	return nil
}

// MarkFailed records that dev can no longer be written. Dirty blocks that
// fail to write back are dropped instead of kept for a retry.
func (c *Cache) MarkFailed(dev DevID) error {
	m, err := c.mounted(dev)
	if err != nil {
		return err
	}
	m.markFailed()
	return nil
}

// Devices returns the mounted device ids in ascending order.
func (c *Cache) Devices() []DevID {
	return slices.Sorted(maps.Keys(c.devices))
}

func (c *Cache) mounted(dev DevID) (*mount, error) {
	if c.closed {
		return nil, ErrClosed
	}
	m, ok := c.devices[dev]
	if !ok {
		return nil, fmt.Errorf("%s: %w", dev, ErrNotMounted)
	}
	return m, nil
}
