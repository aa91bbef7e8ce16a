// Package fs abstracts the local filesystem used by the local checkpoint
// store, so tests can inject write failures.
//
//   - [LocalFS] delegates to package os and is the [Default].
//   - [FaultyFS] wraps another FileSystem and fails writes, syncs or closes
//     of files whose name matches a rule.
//
// Operations take no context: local syscalls cannot be interrupted.
// Remote stores live behind blobstore.Store, which does.
package fs
