// Package blockdev defines the block device interface consumed by the buffer
// cache and provides file, memory, blob and fault-injecting devices.
package blockdev

import (
	"context"
	"errors"
)

var (
	// ErrDeviceFailed marks a device that can no longer be written. The
	// cache discards dirty blocks instead of retrying them.
	ErrDeviceFailed = errors.New("blockdev: device failed")

	// ErrBlockSize indicates that an offset or length is not a multiple of
	// the device block size.
	ErrBlockSize = errors.New("blockdev: argument is not a multiple of blocksize")

	// ErrOutOfBounds indicates that the requested range is outside the device.
	ErrOutOfBounds = errors.New("blockdev: range is out of bounds")

	// ErrClosed is returned for I/O on a closed device.
	ErrClosed = errors.New("blockdev: device closed")
)

// Device is a synchronous block device addressed by byte offset.
//
// ReadAt and WriteAt return a non-nil error whenever n < len(p).
type Device interface {
	ReadAt(ctx context.Context, p []byte, off int64) (n int, err error)
	WriteAt(ctx context.Context, p []byte, off int64) (n int, err error)
	Close() error
}

// Vectored is implemented by devices that transfer several buffers at
// consecutive offsets in one operation.
//
// n counts bytes from the start of bufs[0]; buffers are transferred in order,
// so every buffer fully covered by n completed.
type Vectored interface {
	ReadVector(ctx context.Context, bufs [][]byte, off int64) (n int, err error)
	WriteVector(ctx context.Context, bufs [][]byte, off int64) (n int, err error)
	// MaxBatch is the largest number of buffers accepted per call.
	MaxBatch() int
}

// Volatile is implemented by devices whose content does not survive the
// process, such as RAM disks.
type Volatile interface {
	Volatile() bool
}

// Syncer is implemented by devices that buffer writes.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Sizer is implemented by devices with a fixed size in bytes.
type Sizer interface {
	Size() int64
}

// DefaultMaxBatch is the batch size used for devices that do not implement
// Vectored.
const DefaultMaxBatch = 64

// MaxBatch returns the device's batch limit, or DefaultMaxBatch if it is not
// vectored.
func MaxBatch(d Device) int {
	if v, ok := d.(Vectored); ok {
		if n := v.MaxBatch(); n > 0 {
			return n
		}
	}
	return DefaultMaxBatch
}

// IsVolatile reports whether d implements Volatile and reports true.
func IsVolatile(d Device) bool {
	v, ok := d.(Volatile)
	return ok && v.Volatile()
}

// WriteVector writes bufs at consecutive offsets starting at off, using a
// single vectored call when the device supports it.
func WriteVector(ctx context.Context, d Device, bufs [][]byte, off int64) (int, error) {
	if v, ok := d.(Vectored); ok {
		return v.WriteVector(ctx, bufs, off)
	}
	return loop(ctx, bufs, off, d.WriteAt)
}

// ReadVector reads consecutive blocks into bufs starting at off.
func ReadVector(ctx context.Context, d Device, bufs [][]byte, off int64) (int, error) {
	if v, ok := d.(Vectored); ok {
		return v.ReadVector(ctx, bufs, off)
	}
	return loop(ctx, bufs, off, d.ReadAt)
}

// Sync flushes the device if it implements Syncer.
func Sync(ctx context.Context, d Device) error {
	if s, ok := d.(Syncer); ok {
		return s.Sync(ctx)
	}
	return nil
}

func loop(ctx context.Context, bufs [][]byte, off int64, op func(context.Context, []byte, int64) (int, error)) (int, error) {
	total := 0
	for _, b := range bufs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := op(ctx, b, off)
		total += n
		if err != nil {
			return total, err
		}
		off += int64(n)
	}
	return total, nil
}

func vectorLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}
