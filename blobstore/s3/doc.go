// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("disk0/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	dev := blockdev.NewBlob(store, 4096, blocks)
//
// # Features
//
//   - CRC32C integrity checks on every put
//   - Multipart uploads above a configurable threshold
//   - Automatic pagination for listing
//   - Custom endpoints with path-style addressing for S3-compatible servers
package s3
