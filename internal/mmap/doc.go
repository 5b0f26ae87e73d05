// Package mmap provides anonymous memory mappings for off-heap buffers.
//
// The slot pool can place all block buffers of a cache in one mapping so that
// a pool reset returns the memory to the operating system immediately instead
// of waiting for the garbage collector:
//
//	m, err := mmap.MapAnon(slots * blockSize)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes()[i*blockSize : (i+1)*blockSize]
//
// # Platform Support
//
//   - Unix: mmap(2) with MAP_ANON, madvise(2) for access hints
//   - Windows: VirtualAlloc (Advise is a no-op)
//
// Close is idempotent. Callers must not touch Bytes() after Close returns.
package mmap
