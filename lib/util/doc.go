// Package util provides small concurrency helpers shared by the gateway
// components.
//
// MPSC is an unbounded lock-free multi-producer single-consumer queue:
//
//   - Lock-Free Push: producers append with atomic compare-and-swap, any number
//     of goroutines may push concurrently
//   - Unbounded Size: the queue grows as needed, limited only by memory
//   - Single Consumer: values are delivered in push order over the channel
//     returned by Recv, which is closed once the queue was closed and drained
//   - Ordering: values pushed by one goroutine are received in push order.
//     Values pushed concurrently are ordered by the producer that completes
//     its append first.
package util
