package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "images")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "disk.img")
	f, err := lfs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(1024))
	n, err := f.WriteAt([]byte("block"), 512)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, f.Sync())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 512)
	require.NoError(t, err)
	assert.Equal(t, "block", string(buf))

	info, err := lfs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.Size())
	require.NoError(t, f.Close())

	require.NoError(t, lfs.Remove(path))
	_, err = lfs.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_ShortWrite(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("disk", Fault{FailAfterBytes: 6})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "disk.img"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.WriteAt([]byte("abcd"), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = f.WriteAt([]byte("efgh"), 4)
	require.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 2, n)

	assert.Equal(t, int64(6), f.(*FaultyFile).Written())

	buf := make([]byte, 6)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(buf))
}

func TestFaultyFS_Rules(t *testing.T) {
	tmp := t.TempDir()
	boom := os.ErrDeadlineExceeded

	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule(".img", Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("bad.img", Fault{FailAfterBytes: -1, FailReads: true, Err: boom})

	good, err := ffs.OpenFile(filepath.Join(tmp, "good.img"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer good.Close()
	assert.ErrorIs(t, good.Sync(), ErrInjected)

	bad, err := ffs.OpenFile(filepath.Join(tmp, "bad.img"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer bad.Close()
	_, err = bad.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, boom)

	other, err := ffs.OpenFile(filepath.Join(tmp, "plain.dat"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer other.Close()
	assert.NoError(t, other.Sync())
}
