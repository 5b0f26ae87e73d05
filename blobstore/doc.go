// Package blobstore provides object storage for blob-backed block devices.
//
// Store is the interface for reading and writing small named blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: a directory, with atomic file replacement
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with CRC32C-checked puts
//
// # Custom Implementations
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error     // atomic replace
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
