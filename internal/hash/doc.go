// Package hash provides the checksum used for cached block payloads.
//
// Disk second-level cache entries and S3 uploads are protected with
// CRC32-Castagnoli. The crc32 package uses SSE4.2 or the ARM CRC extension
// when available.
package hash
