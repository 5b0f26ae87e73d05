// Package mem provides memory allocation utilities.
package mem

import (
	"unsafe"
)

// SectorAlignment is the buffer alignment required for direct block I/O.
const SectorAlignment = 512

// AllocAligned allocates a byte slice of the given size whose first byte sits
// at an address divisible by align. align must be a power of two.
//
// The function allocates up to align-1 extra bytes; the underlying array is
// kept alive by the returned slice.
func AllocAligned(size, align int) []byte {
	if size <= 0 {
		return nil
	}
	if align <= 1 {
		return make([]byte, size)
	}

	buf := make([]byte, size+align)

	ptr := unsafe.Pointer(&buf[0]) //nolint:gosec // unsafe is required for memory alignment
	addr := uintptr(ptr)
	offset := (uintptr(align) - (addr & uintptr(align-1))) & uintptr(align-1)

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// Carve splits one aligned allocation into n buffers of size bytes each.
// Every buffer is capacity-limited so an append can never spill into its
// neighbour. If size is a multiple of align, every buffer is aligned.
func Carve(backing []byte, n, size int) [][]byte {
	if n <= 0 || size <= 0 || len(backing) < n*size {
		return nil
	}

	out := make([][]byte, n)
	for i := range n {
		lo := i * size
		out[i] = backing[lo : lo+size : lo+size]
	}
	return out
}
