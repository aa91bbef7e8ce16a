// Package resource implements the Controller for shared limits.
//
// The Controller manages three resource types:
//
//   - Memory: track and limit the bytes held by field buffers
//   - Concurrency: limit parallel checkpoint transfers
//   - IO: rate-limit checkpoint traffic
//
// # Memory Management
//
// Field allocation reserves its buffers up front. Reserve is non-blocking
// and returns ErrMemoryLimitExceeded when the limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//
//	if err := rc.Reserve(n); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//	defer rc.ReleaseMemory(n)
//
// AcquireMemory is the blocking variant for callers that can wait.
//
// # IO Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 100 << 20,
//	})
//
//	writer := resource.NewRateLimitedWriter(ctx, blob, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller; they become no-ops.
package resource
