// Package mem provides memory allocation utilities.
//
// # Aligned Allocation
//
// Block buffers are aligned to SectorAlignment so they can be handed to
// devices opened for direct I/O. Carve slices one contiguous allocation into
// fixed-size block buffers.
package mem
