// Package mmap maps checkpoint blobs into memory read-only.
//
// A Mapping is safe for concurrent reads. Close is idempotent; slices
// returned by Bytes must not be used after it.
//
// On Unix the mapping uses mmap(2) and honors access hints through
// madvise(2). On Windows it uses CreateFileMapping/MapViewOfFile and
// hints are ignored.
package mmap
