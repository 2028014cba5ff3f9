// Package workers implements the bounded worker pool that runs job
// instances.
//
// The pool owns a fixed number of goroutines fed from a FIFO queue:
//   - the scheduler submits one task per ready instance
//   - the pool size caps how many instances run at once
//   - on shutdown, queued tasks still run so their runs can settle
//
// The health monitor tracks worker status and records pool metrics.
package workers
