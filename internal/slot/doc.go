// Package slot implements the storage of the block cache: a fixed pool of
// block-sized slots, a chained hash index over (device, block) and the
// recency list of unpinned slots.
//
// Slots live in one arena and are addressed by ID. Links are IDs, never
// pointers, so a slot can only be reached through the structure that owns
// the corresponding link:
//
//   - the List owns prev/next and the linked flag
//   - the Index owns the bucket chain and the hashed flag
//
// None of the types in this package are safe for concurrent use.
package slot
