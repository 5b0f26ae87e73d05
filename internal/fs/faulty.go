package fs

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by FaultyFS when no specific error is configured.
var ErrInjected = errors.New("fs: injected fault")

// Fault defines the failure behavior of files matching a rule.
type Fault struct {
	// FailAfterBytes makes WriteAt fail once this many bytes were written to
	// the file. The write that crosses the limit is performed partially.
	// -1 disables the limit.
	FailAfterBytes int64
	// FailReads makes every ReadAt fail.
	FailReads  bool
	FailOnSync bool
	Err        error
}

// FaultyFS wraps a FileSystem and injects errors into the files it opens.
type FaultyFS struct {
	FS      FileSystem
	Default Fault

	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS wraps fs, or Default if fs is nil.
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:      fs,
		Default: Fault{FailAfterBytes: -1},
		rules:   make(map[string]Fault),
	}
}

// AddRule applies fault to files whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault := f.Default
	best := -1
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) && len(pattern) > best {
			fault, best = rule, len(pattern)
		}
	}
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &FaultyFile{File: file, fault: f.faultFor(name)}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

// FaultyFile is a File opened through a FaultyFS.
type FaultyFile struct {
	File

	mu      sync.Mutex
	fault   Fault
	written int64
}

// Written returns the number of bytes written through WriteAt.
func (ff *FaultyFile) Written() int64 {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.written
}

func (ff *FaultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fault.FailReads {
		return 0, ff.fault.Err
	}
	return ff.File.ReadAt(p, off)
}

func (ff *FaultyFile) WriteAt(p []byte, off int64) (int, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	allowed := int64(len(p))
	if lim := ff.fault.FailAfterBytes; lim >= 0 && ff.written+allowed > lim {
		allowed = max(lim-ff.written, 0)
	}

	n, err := ff.File.WriteAt(p[:allowed], off)
	ff.written += int64(n)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, ff.fault.Err
	}
	return n, nil
}

func (ff *FaultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.Err
	}
	return ff.File.Sync()
}

var _ io.WriterAt = (*FaultyFile)(nil)
