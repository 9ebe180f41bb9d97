package mstore

import (
	"testing"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
	storagetesting "github.com/ValentinKolb/dGate/lib/storage/testing"
)

func Test(t *testing.T) {
	storagetesting.RunStorageTests(t, "MemoryStore", func(t *testing.T) storage.IStorage {
		return NewMemoryStore()
	})
}

func TestMatchesMissingKey(t *testing.T) {
	row := schema.Pojo{"agentId": "a"}

	tests := []struct {
		name string
		expr statement.Expression
		want bool
	}{
		{"equal on missing key", statement.Equal("vmId", "x"), false},
		{"not equal on missing key", statement.Compare("vmId", statement.OpNotEqual, "x"), true},
		{"greater on missing key", statement.Compare("vmId", statement.OpGreater, int64(1)), false},
		{"in on missing key", statement.NewIn("vmId", []string{"x"}), false},
		{"nil expression", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := matches(tc.expr, row); got != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCompareValuesAcrossWidths(t *testing.T) {
	tests := []struct {
		a, b any
		want int
		ok   bool
	}{
		{int32(5), int64(5), 0, true},
		{int64(4), float64(4.5), -1, true},
		{float64(3), int32(2), 1, true},
		{"a", "b", -1, true},
		{false, true, -1, true},
		{"1", int64(1), 0, false},
	}
	for _, tc := range tests {
		got, ok := compareValues(tc.a, tc.b)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("compareValues(%v, %v) = %d, %v; expected %d, %v", tc.a, tc.b, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRegisterAggregateCategoryFails(t *testing.T) {
	s := NewMemoryStore()
	defer s.Shutdown()

	cat, err := schema.NewRegistry().Define("vm-info", "VmInfo", []schema.Key{schema.KeyVmID}, nil)
	if err != nil {
		t.Fatalf("Failed to define category: %v", err)
	}
	view, err := cat.Aggregate(schema.PayloadAggregateCount)
	if err != nil {
		t.Fatalf("Failed to create view: %v", err)
	}
	if err := s.RegisterCategory(view); err == nil {
		t.Errorf("Expected an error when registering an aggregate view")
	}
}
