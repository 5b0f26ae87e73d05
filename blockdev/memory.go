package blockdev

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a RAM disk. It is volatile and vectored.
type Memory struct {
	mu        sync.RWMutex
	data      []byte
	blockSize int64
	closed    bool
}

// NewMemory creates a zeroed RAM disk of blocks blocks of blockSize bytes.
func NewMemory(blockSize int, blocks int64) *Memory {
	return &Memory{
		data:      make([]byte, int64(blockSize)*blocks),
		blockSize: int64(blockSize),
	}
}

func (m *Memory) check(n int, off int64) error {
	if m.closed {
		return ErrClosed
	}
	if off%m.blockSize != 0 {
		return fmt.Errorf("%w: off %d", ErrBlockSize, off)
	}
	if int64(n)%m.blockSize != 0 {
		return fmt.Errorf("%w: len %d", ErrBlockSize, n)
	}
	if off < 0 || off+int64(n) > int64(len(m.data)) {
		return fmt.Errorf("%w: [%d, %d)", ErrOutOfBounds, off, off+int64(n))
	}
	return nil
}

// ReadAt implements Device.
func (m *Memory) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(len(p), off); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt implements Device.
func (m *Memory) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(len(p), off); err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}

// ReadVector implements Vectored.
func (m *Memory) ReadVector(_ context.Context, bufs [][]byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(vectorLen(bufs), off); err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bufs {
		n += copy(b, m.data[off+int64(n):])
	}
	return n, nil
}

// WriteVector implements Vectored.
func (m *Memory) WriteVector(_ context.Context, bufs [][]byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(vectorLen(bufs), off); err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bufs {
		n += copy(m.data[off+int64(n):], b)
	}
	return n, nil
}

// MaxBatch implements Vectored.
func (m *Memory) MaxBatch() int { return DefaultMaxBatch }

// Volatile implements Volatile.
func (m *Memory) Volatile() bool { return true }

// Size implements Sizer.
func (m *Memory) Size() int64 { return int64(len(m.data)) }

// Bytes returns the device content. Callers must not write to it.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Close implements Device.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
