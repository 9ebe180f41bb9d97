package storage

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dGate/lib/schema"
)

func TestSliceCursor(t *testing.T) {
	rows := []schema.Pojo{{"n": 1}, {"n": 2}, {"n": 3}}
	c := NewSliceCursor(rows)

	for i := 1; i <= 3; i++ {
		if !c.HasNext() {
			t.Fatalf("Expected row %d to be available", i)
		}
		row, err := c.Next()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if row["n"] != i {
			t.Errorf("Expected row %d, got %v", i, row)
		}
	}
	if c.HasNext() {
		t.Errorf("Expected cursor to be exhausted")
	}

	var serr *Error
	if _, err := c.Next(); !errors.As(err, &serr) || serr.Code != RetCInvalidOperation {
		t.Errorf("Expected RetCInvalidOperation after exhaustion, got %v", err)
	}
}

func TestEmptyCursor(t *testing.T) {
	c := EmptyCursor()
	if c.HasNext() {
		t.Errorf("Empty cursor must not have rows")
	}
	if _, err := c.Next(); err == nil {
		t.Errorf("Expected an error from Next on an empty cursor")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Unexpected error on close: %v", err)
	}
}

func TestDrain(t *testing.T) {
	rows, err := Drain(NewSliceCursor([]schema.Pojo{{"a": "x"}, {"a": "y"}}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[1]["a"] != "y" {
		t.Errorf("Unexpected rows %v", rows)
	}
}

func TestAggregateRows(t *testing.T) {
	if CountRow(3)[AggregateCountField] != int64(3) {
		t.Errorf("Unexpected count row")
	}
	values := DistinctRow("agentId", nil)[AggregateValuesField].([]any)
	if values == nil || len(values) != 0 {
		t.Errorf("Expected an empty, non nil value list")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(RetCUnknownCategory, "category %q", "vm-info")
	if err.Error() != `StorageError (code UnknownCategory): category "vm-info"` {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
