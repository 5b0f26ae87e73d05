package blockdev

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/bufcache/blobstore"
)

// Blob is a block device storing one object per block in a blobstore.Store.
// Blocks that were never written read as zeros.
type Blob struct {
	store       blobstore.Store
	prefix      string
	blockSize   int64
	blocks      int64
	concurrency int
	closed      atomic.Bool
}

// BlobOption configures a Blob device.
type BlobOption func(*Blob)

// WithBlobPrefix sets a name prefix for block objects (e.g. "disk0/").
func WithBlobPrefix(prefix string) BlobOption {
	return func(b *Blob) { b.prefix = prefix }
}

// WithBlobConcurrency bounds concurrent object requests per vectored call.
func WithBlobConcurrency(n int) BlobOption {
	return func(b *Blob) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBlob creates a device of blocks blocks of blockSize bytes on store.
func NewBlob(store blobstore.Store, blockSize int, blocks int64, opts ...BlobOption) *Blob {
	b := &Blob{
		store:       store,
		blockSize:   int64(blockSize),
		blocks:      blocks,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ObjectName returns the object holding block.
func (b *Blob) ObjectName(block int64) string {
	return fmt.Sprintf("%s%016x", b.prefix, block)
}

func (b *Blob) check(n int, off int64) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if off%b.blockSize != 0 {
		return fmt.Errorf("%w: off %d", ErrBlockSize, off)
	}
	if int64(n)%b.blockSize != 0 {
		return fmt.Errorf("%w: len %d", ErrBlockSize, n)
	}
	if off < 0 || off+int64(n) > b.Size() {
		return fmt.Errorf("%w: [%d, %d)", ErrOutOfBounds, off, off+int64(n))
	}
	return nil
}

// split cuts bufs into block-sized pieces.
func (b *Blob) split(bufs [][]byte) [][]byte {
	var out [][]byte
	for _, p := range bufs {
		for i := int64(0); i < int64(len(p)); i += b.blockSize {
			out = append(out, p[i:i+b.blockSize])
		}
	}
	return out
}

func (b *Blob) readBlock(ctx context.Context, p []byte, block int64) error {
	data, err := b.store.Get(ctx, b.ObjectName(block))
	if errors.Is(err, blobstore.ErrNotFound) {
		clear(p)
		return nil
	}
	if err != nil {
		return err
	}
	n := copy(p, data)
	clear(p[n:])
	return nil
}

func (b *Blob) writeBlock(ctx context.Context, p []byte, block int64) error {
	return b.store.Put(ctx, b.ObjectName(block), p)
}

// transfer runs op for every block concurrently and reports the contiguous
// successful prefix, in bytes, and the error of the first failed block.
func (b *Blob) transfer(ctx context.Context, bufs [][]byte, off int64, op func(context.Context, []byte, int64) error) (int, error) {
	blocks := b.split(bufs)
	errs := make([]error, len(blocks))
	first := off / b.blockSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, p := range blocks {
		g.Go(func() error {
			errs[i] = op(gctx, p, first+int64(i))
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for i, p := range blocks {
		if errs[i] != nil {
			return n, errs[i]
		}
		n += len(p)
	}
	return n, nil
}

// ReadAt implements Device.
func (b *Blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	return b.ReadVector(ctx, [][]byte{p}, off)
}

// WriteAt implements Device.
func (b *Blob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	return b.WriteVector(ctx, [][]byte{p}, off)
}

// ReadVector implements Vectored, fetching blocks concurrently.
func (b *Blob) ReadVector(ctx context.Context, bufs [][]byte, off int64) (int, error) {
	if err := b.check(vectorLen(bufs), off); err != nil {
		return 0, err
	}
	return b.transfer(ctx, bufs, off, b.readBlock)
}

// WriteVector implements Vectored, putting blocks concurrently.
func (b *Blob) WriteVector(ctx context.Context, bufs [][]byte, off int64) (int, error) {
	if err := b.check(vectorLen(bufs), off); err != nil {
		return 0, err
	}
	return b.transfer(ctx, bufs, off, b.writeBlock)
}

// MaxBatch implements Vectored.
func (b *Blob) MaxBatch() int { return DefaultMaxBatch }

// Size implements Sizer.
func (b *Blob) Size() int64 { return b.blocks * b.blockSize }

// Close implements Device. The store is owned by the caller.
func (b *Blob) Close() error {
	b.closed.Store(true)
	return nil
}
