//go:build linux

package blockdev

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hupe1980/bufcache/internal/fs"
)

// preadv reads bufs with preadv(2). ok is false when f is not an *os.File.
func preadv(f fs.File, bufs [][]byte, off int64) (n int, ok bool, err error) {
	of, ok := f.(*os.File)
	if !ok {
		return 0, false, nil
	}
	n, err = vectorIO(bufs, off, func(iov [][]byte, o int64) (int, error) {
		return unix.Preadv(int(of.Fd()), iov, o)
	})
	return n, true, err
}

func pwritev(f fs.File, bufs [][]byte, off int64) (n int, ok bool, err error) {
	of, ok := f.(*os.File)
	if !ok {
		return 0, false, nil
	}
	n, err = vectorIO(bufs, off, func(iov [][]byte, o int64) (int, error) {
		return unix.Pwritev(int(of.Fd()), iov, o)
	})
	return n, true, err
}

// vectorIO repeats op until all of bufs is transferred, an error occurs or
// op makes no progress.
func vectorIO(bufs [][]byte, off int64, op func([][]byte, int64) (int, error)) (int, error) {
	want := vectorLen(bufs)
	total := 0
	iov := bufs
	for total < want {
		n, err := op(iov, off+int64(total))
		if err == unix.EINTR {
			continue
		}
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
		iov = advance(iov, n)
	}
	return total, nil
}

// advance drops the first n bytes from iov.
func advance(iov [][]byte, n int) [][]byte {
	for n > 0 && len(iov) > 0 {
		if n < len(iov[0]) {
			rest := make([][]byte, len(iov))
			copy(rest, iov)
			rest[0] = rest[0][n:]
			return rest
		}
		n -= len(iov[0])
		iov = iov[1:]
	}
	return iov
}

func datasync(f fs.File) error {
	if of, ok := f.(*os.File); ok {
		for {
			err := unix.Fdatasync(int(of.Fd()))
			if err != unix.EINTR {
				return err
			}
		}
	}
	return f.Sync()
}
