package util

import (
	"container/heap"
	"time"
)

// expiryItem is one tracked key with the time it was last touched
type expiryItem[K comparable] struct {
	key     K
	touched time.Time
	index   int
}

// expiryItems implements heap.Interface as a min heap by touch time
type expiryItems[K comparable] struct {
	items []*expiryItem[K]
	byKey map[K]*expiryItem[K]
}

func (h *expiryItems[K]) Len() int { return len(h.items) }

func (h *expiryItems[K]) Less(i, j int) bool {
	return h.items[i].touched.Before(h.items[j].touched)
}

func (h *expiryItems[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *expiryItems[K]) Push(x any) {
	it := x.(*expiryItem[K])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.byKey[it.key] = it
}

func (h *expiryItems[K]) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	h.items = old[:n-1]
	delete(h.byKey, it.key)
	return it
}

// ExpiryHeap tracks the last access time of keys and hands out the keys
// that were not touched since a deadline, oldest first. Touch, Remove and
// PopExpired are O(log n), lookups are O(1).
//
// Concurrency: ExpiryHeap is not thread-safe, callers must synchronize.
type ExpiryHeap[K comparable] struct {
	h expiryItems[K]
}

// NewExpiryHeap creates an empty heap
func NewExpiryHeap[K comparable]() *ExpiryHeap[K] {
	return &ExpiryHeap[K]{h: expiryItems[K]{byKey: make(map[K]*expiryItem[K])}}
}

// Touch records an access of key at the given time, adding the key if needed
func (e *ExpiryHeap[K]) Touch(key K, at time.Time) {
	if it, ok := e.h.byKey[key]; ok {
		it.touched = at
		heap.Fix(&e.h, it.index)
		return
	}
	heap.Push(&e.h, &expiryItem[K]{key: key, touched: at})
}

// Remove stops tracking key. It returns false if the key was not tracked.
func (e *ExpiryHeap[K]) Remove(key K) bool {
	it, ok := e.h.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&e.h, it.index)
	return true
}

// Contains reports whether key is tracked
func (e *ExpiryHeap[K]) Contains(key K) bool {
	_, ok := e.h.byKey[key]
	return ok
}

// LastTouched returns the last access time of key
func (e *ExpiryHeap[K]) LastTouched(key K) (time.Time, bool) {
	it, ok := e.h.byKey[key]
	if !ok {
		return time.Time{}, false
	}
	return it.touched, true
}

// Peek returns the least recently touched key
func (e *ExpiryHeap[K]) Peek() (key K, touched time.Time, ok bool) {
	if len(e.h.items) == 0 {
		return key, touched, false
	}
	it := e.h.items[0]
	return it.key, it.touched, true
}

// PopExpired removes and returns all keys last touched strictly before the
// deadline, oldest first
func (e *ExpiryHeap[K]) PopExpired(deadline time.Time) []K {
	var out []K
	for len(e.h.items) > 0 && e.h.items[0].touched.Before(deadline) {
		it := heap.Pop(&e.h).(*expiryItem[K])
		out = append(out, it.key)
	}
	return out
}

// Len returns the number of tracked keys
func (e *ExpiryHeap[K]) Len() int {
	return len(e.h.items)
}
