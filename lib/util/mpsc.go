package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// mpscNode is a single element of the linked list
type mpscNode[T any] struct {
	value T
	next  atomic.Pointer[mpscNode[T]]
}

// MPSC is a lock-free multi-producer single-consumer queue. Producers append
// to a linked list, a dedicated goroutine moves the values to the channel
// returned by Recv.
type MPSC[T any] struct {
	head   atomic.Pointer[mpscNode[T]]
	tail   atomic.Pointer[mpscNode[T]]
	out    chan T
	done   chan struct{}
	closed atomic.Bool
	pushed atomic.Uint64
	// producers between their closed check and the end of their append
	inflight atomic.Int64

	// wakes the forwarding goroutine, signals are sent while holding mu
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSC creates a new queue and starts its forwarding goroutine
func NewMPSC[T any]() *MPSC[T] {
	sentinel := &mpscNode[T]{}

	q := &MPSC[T]{
		out:  make(chan T),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()
	return q
}

// Push appends a value. It returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSC[T]) Push(value T) bool {
	q.inflight.Add(1)
	defer q.inflight.Add(-1)
	if q.closed.Load() {
		return false
	}

	n := &mpscNode[T]{value: value}
	var backoff uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// another producer may already have advanced the tail
				q.tail.CompareAndSwap(tail, n)
				q.pushed.Add(1)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin at low contention, yield at high contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the forwarding goroutine. Holding mu while signalling
// prevents a wakeup from getting lost between the consumer's emptiness
// check and its call to Wait.
func (q *MPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// forward moves values from the list to the output channel until the queue
// is closed and empty
func (q *MPSC[T]) forward() {
	defer close(q.done)
	defer close(q.out)

	var zero T
	for {
		moved := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			moved = true
			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = zero
		}

		if moved {
			continue
		}
		if q.closed.Load() {
			if q.inflight.Load() == 0 && q.head.Load().next.Load() == nil {
				return
			}
			// a producer passed its closed check before Close and is still appending
			runtime.Gosched()
			continue
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// Recv returns the channel values are delivered on. It is closed once the
// queue was closed and every pushed value was received.
func (q *MPSC[T]) Recv() <-chan T {
	return q.out
}

// Done is closed when the forwarding goroutine exited
func (q *MPSC[T]) Done() <-chan struct{} {
	return q.done
}

// Close rejects further pushes. Values already pushed are still delivered.
func (q *MPSC[T]) Close() {
	q.mu.Lock()
	q.closed.Store(true)
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed returns true if the queue is closed.
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Pushed returns the number of values accepted since the queue was created
func (q *MPSC[T]) Pushed() uint64 {
	return q.pushed.Load()
}

// Len returns an approximate count of the values waiting in the list.
// This is O(n) and should only be used for debugging and metrics.
func (q *MPSC[T]) Len() int {
	count := 0
	for cur := q.head.Load().next.Load(); cur != nil; cur = cur.next.Load() {
		count++
	}
	return count
}
