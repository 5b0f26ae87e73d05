package blockdev

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bufcache/internal/fs"
)

func TestFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "disk.img")

	d, err := OpenFile(path, FileOptions{BlockSize: 512, Size: 8 * 512})
	require.NoError(t, err)
	assert.Equal(t, int64(8*512), d.Size())
	assert.False(t, IsVolatile(d))

	bufs := [][]byte{
		bytes.Repeat([]byte{1}, 512),
		bytes.Repeat([]byte{2}, 512),
		bytes.Repeat([]byte{3}, 512),
	}
	n, err := d.WriteVector(ctx, bufs, 2*512)
	require.NoError(t, err)
	assert.Equal(t, 3*512, n)
	require.NoError(t, d.Sync(ctx))

	got := [][]byte{make([]byte, 512), make([]byte, 1024)}
	n, err = d.ReadVector(ctx, got, 2*512)
	require.NoError(t, err)
	assert.Equal(t, 3*512, n)
	assert.Equal(t, bufs[0], got[0])
	assert.Equal(t, append(bufs[1], bufs[2]...), got[1])

	_, err = d.WriteAt(ctx, make([]byte, 512), 100)
	var pe *os.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "WriteAt", pe.Op)
	assert.ErrorIs(t, err, ErrBlockSize)

	_, err = d.ReadAt(ctx, make([]byte, 512), 8*512)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bufs[1], raw[3*512:4*512])
}

func TestFile_OpenMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.img"), FileOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFile_ShortVectorWrite(t *testing.T) {
	ctx := context.Background()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("disk.img", fs.Fault{FailAfterBytes: 512 + 100})

	d, err := OpenFile(filepath.Join(t.TempDir(), "disk.img"), FileOptions{FS: ffs, BlockSize: 512, Size: 4 * 512})
	require.NoError(t, err)
	defer d.Close()

	bufs := [][]byte{make([]byte, 512), make([]byte, 512), make([]byte, 512)}
	n, err := d.WriteVector(ctx, bufs, 0)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, 512+100, n, "the injected file does not support pwritev and falls back to WriteAt")
}

func TestFile_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o644))

	d, err := OpenFile(path, FileOptions{ReadOnly: true})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.WriteAt(context.Background(), make([]byte, 512), 0)
	assert.Error(t, err)
}
