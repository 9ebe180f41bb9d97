// Package writequeue serializes all writes to the storage through a single
// worker goroutine.
//
// Request handlers accept writes concurrently but the storage must observe
// them in the order they were accepted: a "process stopped" write that
// overtakes the matching "process started" write corrupts every reader that
// derives state from both. Submit therefore only appends the operation to a
// lock-free multi-producer single-consumer queue and returns, the worker
// applies operations one after another in submission order.
//
// The caller is told that its write was accepted, not that it was persisted.
// A failing operation (error or panic) is logged and counted in the
// dgate_write_failures_total metric, then the worker continues with the next
// operation. There is no channel back to the submitter.
//
// Shutdown stops accepting operations, waits a bounded time for the worker
// to drain the queue and only then shuts down the storage, so the storage
// never closes underneath an in-flight write.
package writequeue
