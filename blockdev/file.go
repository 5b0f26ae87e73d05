package blockdev

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/bufcache/internal/fs"
)

// File is a block device backed by an image file.
type File struct {
	mu        sync.Mutex
	f         fs.File
	name      string
	size      int64
	blockSize int64
	maxBatch  int
	closed    bool
}

// FileOptions configures OpenFile.
type FileOptions struct {
	// FS is the file system the image is opened on. Defaults to fs.Default.
	FS fs.FileSystem
	// BlockSize is the alignment enforced on every transfer. Defaults to 512.
	BlockSize int
	// Size creates or extends the image to this many bytes. Zero keeps the
	// current size.
	Size int64
	// ReadOnly opens the image without write access.
	ReadOnly bool
	// MaxBatch bounds vectored transfers. Defaults to DefaultMaxBatch.
	MaxBatch int
}

// OpenFile opens the image at name.
func OpenFile(name string, opts FileOptions) (*File, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.Default
	}

	flag := os.O_RDWR
	switch {
	case opts.ReadOnly:
		flag = os.O_RDONLY
	case opts.Size > 0:
		flag |= os.O_CREATE
	}

	f, err := fsys.OpenFile(name, flag, 0o644)
	if err != nil {
		return nil, err
	}

	if opts.Size > 0 && !opts.ReadOnly {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if info.Size() < opts.Size {
			if err := f.Truncate(opts.Size); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
	}

	d, err := NewFile(f, name, opts.BlockSize)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if opts.MaxBatch > 0 {
		d.maxBatch = opts.MaxBatch
	}
	return d, nil
}

// NewFile creates a device using f as the backing store. The device size is
// the size of f. NewFile does not close f on error.
func NewFile(f fs.File, name string, blockSize int) (*File, error) {
	if blockSize <= 0 {
		blockSize = 512
	}

	info, err := f.Stat()
	if err != nil {
		return nil, &os.PathError{Op: "NewFile", Path: name, Err: err}
	}

	return &File{
		f:         f,
		name:      name,
		size:      info.Size(),
		blockSize: int64(blockSize),
		maxBatch:  DefaultMaxBatch,
	}, nil
}

func (d *File) check(n int, off int64, op string) error {
	if d.closed {
		return &os.PathError{Op: op, Path: d.name, Err: ErrClosed}
	}
	if off%d.blockSize != 0 {
		return &os.PathError{Op: op, Path: d.name, Err: fmt.Errorf("%w: off (%v)", ErrBlockSize, off)}
	}
	if int64(n)%d.blockSize != 0 {
		return &os.PathError{Op: op, Path: d.name, Err: fmt.Errorf("%w: len (%v)", ErrBlockSize, n)}
	}
	if off < 0 || off+int64(n) > d.size {
		return &os.PathError{Op: op, Path: d.name, Err: fmt.Errorf("%w: [%v, %v)", ErrOutOfBounds, off, off+int64(n))}
	}
	return nil
}

// Size implements Sizer.
func (d *File) Size() int64 { return d.size }

// Name returns the image path.
func (d *File) Name() string { return d.name }

// ReadAt implements Device.
func (d *File) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(len(p), off, "ReadAt"); err != nil {
		return 0, err
	}
	return d.f.ReadAt(p, off)
}

// WriteAt implements Device.
func (d *File) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(len(p), off, "WriteAt"); err != nil {
		return 0, err
	}
	return d.f.WriteAt(p, off)
}

// ReadVector implements Vectored with preadv(2) where available.
func (d *File) ReadVector(ctx context.Context, bufs [][]byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(vectorLen(bufs), off, "ReadVector"); err != nil {
		return 0, err
	}
	if n, ok, err := preadv(d.f, bufs, off); ok {
		return n, err
	}
	return loop(ctx, bufs, off, func(_ context.Context, p []byte, o int64) (int, error) {
		return d.f.ReadAt(p, o)
	})
}

// WriteVector implements Vectored with pwritev(2) where available.
func (d *File) WriteVector(ctx context.Context, bufs [][]byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(vectorLen(bufs), off, "WriteVector"); err != nil {
		return 0, err
	}
	if n, ok, err := pwritev(d.f, bufs, off); ok {
		return n, err
	}
	return loop(ctx, bufs, off, func(_ context.Context, p []byte, o int64) (int, error) {
		return d.f.WriteAt(p, o)
	})
}

// MaxBatch implements Vectored.
func (d *File) MaxBatch() int { return d.maxBatch }

// Sync commits written data to stable storage.
func (d *File) Sync(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &os.PathError{Op: "Sync", Path: d.name, Err: ErrClosed}
	}
	return datasync(d.f)
}

// Close syncs and closes the image.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if err := datasync(d.f); err != nil {
		_ = d.f.Close()
		return err
	}
	return d.f.Close()
}
