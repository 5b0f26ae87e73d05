// Package fs provides file system abstractions for block images.
//
//   - [LocalFS]: production implementation on top of package os
//   - [FaultyFS]: fault injection for tests (short writes, failing reads
//     and syncs)
//
// Production code uses fs.Default. Tests inject a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("disk.img", fs.Fault{FailAfterBytes: 1024})
//
// Operations take no context. Local file I/O is not interruptible at the
// syscall level; remote storage goes through blobstore instead.
package fs
