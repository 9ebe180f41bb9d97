package util

import (
	"testing"
	"time"
)

func TestExpiryHeapTouchAndPeek(t *testing.T) {
	eh := NewExpiryHeap[int32]()
	base := time.Unix(1000, 0)

	eh.Touch(1, base.Add(100*time.Second))
	eh.Touch(2, base.Add(200*time.Second))
	eh.Touch(3, base.Add(50*time.Second))

	if eh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", eh.Len())
	}

	key, touched, ok := eh.Peek()
	if !ok || key != 3 || !touched.Equal(base.Add(50*time.Second)) {
		t.Errorf("Expected least recently touched key 3, got %d at %v", key, touched)
	}

	// touching moves the key to the back
	eh.Touch(3, base.Add(300*time.Second))
	if key, _, _ := eh.Peek(); key != 1 {
		t.Errorf("Expected key 1 after re-touching 3, got %d", key)
	}
	if eh.Len() != 3 {
		t.Errorf("Touching an existing key must not add it twice, len %d", eh.Len())
	}
}

func TestExpiryHeapPopExpired(t *testing.T) {
	eh := NewExpiryHeap[string]()
	base := time.Unix(1000, 0)

	items := []struct {
		key string
		at  int
	}{
		{"e", 50}, {"c", 30}, {"a", 10}, {"d", 40}, {"b", 20},
	}
	for _, it := range items {
		eh.Touch(it.key, base.Add(time.Duration(it.at)*time.Second))
	}

	expired := eh.PopExpired(base.Add(40 * time.Second))
	want := []string{"a", "b", "c"}
	if len(expired) != len(want) {
		t.Fatalf("Expected %v, got %v", want, expired)
	}
	for i := range want {
		if expired[i] != want[i] {
			t.Errorf("Pop %d: expected %s, got %s", i, want[i], expired[i])
		}
	}

	if eh.Contains("a") || !eh.Contains("d") {
		t.Errorf("Expired keys must be removed, others kept")
	}
	if eh.Len() != 2 {
		t.Errorf("Expected 2 remaining items, got %d", eh.Len())
	}
}

func TestExpiryHeapRemove(t *testing.T) {
	eh := NewExpiryHeap[int]()
	now := time.Now()
	eh.Touch(1, now)
	eh.Touch(2, now.Add(time.Second))

	if !eh.Remove(1) {
		t.Errorf("Expected key 1 to be removed")
	}
	if eh.Remove(1) {
		t.Errorf("Removing a key twice must report false")
	}
	if _, ok := eh.LastTouched(1); ok {
		t.Errorf("Removed key must not be tracked")
	}
	if at, ok := eh.LastTouched(2); !ok || !at.Equal(now.Add(time.Second)) {
		t.Errorf("Unexpected last touch for key 2: %v %v", at, ok)
	}
}

func TestExpiryHeapEmpty(t *testing.T) {
	eh := NewExpiryHeap[int]()
	if _, _, ok := eh.Peek(); ok {
		t.Errorf("Peek on an empty heap must report false")
	}
	if got := eh.PopExpired(time.Now()); len(got) != 0 {
		t.Errorf("Expected nothing to expire, got %v", got)
	}
}
