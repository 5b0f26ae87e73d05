package blockdev

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInjected is returned by Faulty for injected failures.
var ErrInjected = errors.New("blockdev: injected fault")

// Transfer records one call that reached a Faulty device.
type Transfer struct {
	Write  bool
	Off    int64
	Blocks int
}

// Faulty wraps a Device and injects failures at block granularity.
// It always implements Vectored so batched calls are recorded as one
// Transfer. It never reports itself Volatile, so a wrapped RAM disk behaves
// like a persistent disk to the cache.
type Faulty struct {
	inner     Device
	blockSize int64

	mu         sync.Mutex
	failAfter  int64 // blocks, -1 disabled
	afterErr   error
	written    int64
	failBlocks map[int64]struct{}
	failReads  bool
	failed     bool
	log        []Transfer
}

// NewFaulty wraps dev, whose block size is blockSize.
func NewFaulty(dev Device, blockSize int) *Faulty {
	return &Faulty{
		inner:      dev,
		blockSize:  int64(blockSize),
		failAfter:  -1,
		afterErr:   ErrInjected,
		failBlocks: make(map[int64]struct{}),
	}
}

// FailAfterBlocks makes writes fail once n more blocks were written.
// A negative n disables the limit.
func (f *Faulty) FailAfterBlocks(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter, f.written = n, 0
	f.afterErr = ErrInjected
}

// FailDeviceAfterBlocks is FailAfterBlocks with errors wrapping
// ErrDeviceFailed, as from a disk that died in the middle of a transfer.
func (f *Faulty) FailDeviceAfterBlocks(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter, f.written = n, 0
	f.afterErr = ErrDeviceFailed
}

// FailBlock makes every write to block fail.
func (f *Faulty) FailBlock(block int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failBlocks[block] = struct{}{}
}

// FailReads makes every read fail.
func (f *Faulty) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = fail
}

// MarkFailed makes all writes fail with an error wrapping ErrDeviceFailed.
func (f *Faulty) MarkFailed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = true
}

// Reset clears all injected faults and the transfer log.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter, f.written = -1, 0
	f.afterErr = ErrInjected
	f.failBlocks = make(map[int64]struct{})
	f.failReads, f.failed = false, false
	f.log = nil
}

// Transfers returns the calls seen so far, including failed ones.
func (f *Faulty) Transfers() []Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transfer(nil), f.log...)
}

// Writes returns the number of write calls seen.
func (f *Faulty) Writes() int { return f.count(true) }

// Reads returns the number of read calls seen.
func (f *Faulty) Reads() int { return f.count(false) }

func (f *Faulty) count(write bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.log {
		if t.Write == write {
			n++
		}
	}
	return n
}

// allowed returns how many leading blocks of a write at off may proceed and
// the error for the first refused one.
func (f *Faulty) allowed(off int64, blocks int) (int, error) {
	first := off / f.blockSize
	for i := range blocks {
		blk := first + int64(i)
		if f.failed {
			return i, fmt.Errorf("block %d: %w", blk, ErrDeviceFailed)
		}
		if _, bad := f.failBlocks[blk]; bad {
			return i, fmt.Errorf("block %d: %w", blk, ErrInjected)
		}
		if f.failAfter >= 0 && f.written+int64(i) >= f.failAfter {
			return i, fmt.Errorf("block %d: %w", blk, f.afterErr)
		}
	}
	return blocks, nil
}

// ReadAt implements Device.
func (f *Faulty) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	return f.ReadVector(ctx, [][]byte{p}, off)
}

// WriteAt implements Device.
func (f *Faulty) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	return f.WriteVector(ctx, [][]byte{p}, off)
}

// ReadVector implements Vectored.
func (f *Faulty) ReadVector(ctx context.Context, bufs [][]byte, off int64) (int, error) {
	f.mu.Lock()
	f.log = append(f.log, Transfer{Off: off, Blocks: f.blocks(bufs)})
	fail := f.failReads
	f.mu.Unlock()

	if fail {
		return 0, ErrInjected
	}
	return ReadVector(ctx, f.inner, bufs, off)
}

// WriteVector implements Vectored. Blocks before the first refused block are
// written, so a refused vector reports a short count.
func (f *Faulty) WriteVector(ctx context.Context, bufs [][]byte, off int64) (int, error) {
	f.mu.Lock()
	blocks := f.blocks(bufs)
	f.log = append(f.log, Transfer{Write: true, Off: off, Blocks: blocks})
	ok, ferr := f.allowed(off, blocks)
	f.written += int64(ok)
	f.mu.Unlock()

	prefix, rest := f.cut(bufs, ok)
	n := 0
	if len(prefix) > 0 {
		var err error
		n, err = WriteVector(ctx, f.inner, prefix, off)
		if err != nil {
			return n, err
		}
	}
	if len(rest) > 0 {
		return n, ferr
	}
	return n, nil
}

func (f *Faulty) blocks(bufs [][]byte) int {
	return int(int64(vectorLen(bufs)) / f.blockSize)
}

// cut splits bufs after the first blocks blocks.
func (f *Faulty) cut(bufs [][]byte, blocks int) (prefix, rest [][]byte) {
	limit := int64(blocks) * f.blockSize
	for i, b := range bufs {
		if limit <= 0 {
			return prefix, bufs[i:]
		}
		if int64(len(b)) <= limit {
			prefix = append(prefix, b)
			limit -= int64(len(b))
			continue
		}
		prefix = append(prefix, b[:limit])
		rest = append([][]byte{b[limit:]}, bufs[i+1:]...)
		return prefix, rest
	}
	return prefix, nil
}

// MaxBatch implements Vectored.
func (f *Faulty) MaxBatch() int { return MaxBatch(f.inner) }

// Sync implements Syncer.
func (f *Faulty) Sync(ctx context.Context) error { return Sync(ctx, f.inner) }

// Close implements Device.
func (f *Faulty) Close() error { return f.inner.Close() }
