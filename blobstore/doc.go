// Package blobstore abstracts the storage that checkpoints are written to.
//
// A checkpoint is a set of named blobs (a manifest plus one blob per
// variable) under a common prefix. Store implementations must be safe for
// concurrent use, because checkpoint.Save uploads variables in parallel.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic writes via rename, mmap reads
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Names use forward slashes regardless of platform.
package blobstore
