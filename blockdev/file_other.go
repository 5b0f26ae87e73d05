//go:build !linux

package blockdev

import "github.com/hupe1980/bufcache/internal/fs"

func preadv(fs.File, [][]byte, int64) (int, bool, error)  { return 0, false, nil }
func pwritev(fs.File, [][]byte, int64) (int, bool, error) { return 0, false, nil }

func datasync(f fs.File) error { return f.Sync() }
