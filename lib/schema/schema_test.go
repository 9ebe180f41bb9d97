package schema

import (
	"errors"
	"sync"
	"testing"
)

func testKeys() []Key {
	return []Key{
		KeyAgentID,
		NewKey("name", KeyTypeString),
		NewKey("count", KeyTypeLong),
	}
}

func TestKeyEqualityIgnoresType(t *testing.T) {
	a := NewKey("foo", KeyTypeString)
	b := NewKey("foo", KeyTypeLong)
	if !a.Equal(b) {
		t.Errorf("keys with same name should be equal")
	}
	if a.Equal(NewKey("bar", KeyTypeString)) {
		t.Errorf("keys with different names should not be equal")
	}
}

func TestDefineRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Define("vm-info", "VmInfo", testKeys(), nil); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	_, err := r.Define("vm-info", "Other", testKeys(), nil)
	if !errors.Is(err, ErrCategoryExists) {
		t.Fatalf("expected ErrCategoryExists, got %v", err)
	}
}

func TestRegistriesAreIsolated(t *testing.T) {
	r1, r2 := NewRegistry(), NewRegistry()
	if _, err := r1.Define("host-info", "HostInfo", testKeys(), nil); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if _, err := r2.Define("host-info", "HostInfo", testKeys(), nil); err != nil {
		t.Fatalf("second registry should accept the same name: %v", err)
	}
}

func TestDefineValidation(t *testing.T) {
	tests := []struct {
		name    string
		cat     string
		keys    []Key
		indexed []string
	}{
		{"empty name", "", testKeys(), nil},
		{"no keys", "x", nil, nil},
		{"duplicate key", "x", []Key{NewKey("a", KeyTypeAny), NewKey("a", KeyTypeLong)}, nil},
		{"unknown type", "x", []Key{NewKey("a", "timestamp")}, nil},
		{"unknown indexed key", "x", testKeys(), []string{"missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry().Define(tt.cat, "P", tt.keys, tt.indexed); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestConcurrentDefineOnlyOneWins(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Define("race", "P", testKeys(), nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("expected exactly one successful define, got %d", wins)
	}
}

func TestCategoryKeysAreCopies(t *testing.T) {
	c, err := NewRegistry().Define("c", "P", testKeys(), []string{"agentId"})
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	keys := c.Keys()
	keys[0] = NewKey("mutated", KeyTypeAny)
	if _, ok := c.Key("mutated"); ok {
		t.Errorf("category keys must not be modifiable")
	}
	if c.Keys()[0].Name != "agentId" {
		t.Errorf("unexpected first key %s", c.Keys()[0].Name)
	}
	if !c.IsIndexed("agentId") || c.IsIndexed("name") {
		t.Errorf("indexed keys wrong: %v", c.IndexedKeys())
	}
}

func TestAggregateView(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Define("cpu-stats", "CpuStat", testKeys(), nil)

	view, err := c.Aggregate(PayloadAggregateCount)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if view.Name() != c.Name() || !view.IsAggregate() || view.Base() != c {
		t.Errorf("unexpected view %v", view)
	}
	if got, _ := r.Get("cpu-stats"); got != c {
		t.Errorf("view must not replace the registered category")
	}
	if _, err := c.Aggregate("CpuStat"); err == nil {
		t.Errorf("non aggregate payload should fail")
	}
}

func TestDescriptorIdentity(t *testing.T) {
	r := NewRegistry()
	c1, _ := r.Define("c1", "P", testKeys(), nil)
	c2, _ := r.Define("c2", "P", testKeys(), nil)
	text := "QUERY c1"

	if NewStatementDescriptor(c1, text).Equal(NewStatementDescriptor(c2, text)) {
		t.Errorf("same text on different categories must differ")
	}
	if !NewStatementDescriptor(c1, text).Equal(NewStatementDescriptor(c1, text)) {
		t.Errorf("same category and text must be equal")
	}
	view, _ := c1.Aggregate(PayloadAggregateCount)
	if NewStatementDescriptor(c1, text).Key() == NewStatementDescriptor(view, text).Key() {
		t.Errorf("aggregate view descriptors must differ from base descriptors")
	}
}

func TestCoerce(t *testing.T) {
	c, _ := NewRegistry().Define("c", "P", []Key{
		NewKey("l", KeyTypeLong),
		NewKey("i", KeyTypeInt),
		NewKey("d", KeyTypeDouble),
		NewKey("s", KeyTypeString),
	}, nil)

	row := c.Coerce(Pojo{"l": float64(42), "i": float64(7), "d": int64(3), "s": "x", "extra": 1.5})
	if v, ok := row["l"].(int64); !ok || v != 42 {
		t.Errorf("long not coerced: %#v", row["l"])
	}
	if v, ok := row["i"].(int32); !ok || v != 7 {
		t.Errorf("int not coerced: %#v", row["i"])
	}
	if v, ok := row["d"].(float64); !ok || v != 3 {
		t.Errorf("double not coerced: %#v", row["d"])
	}
	if row["extra"] != 1.5 {
		t.Errorf("unknown keys must be kept")
	}
}
