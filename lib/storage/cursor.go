package storage

import "github.com/ValentinKolb/dGate/lib/schema"

// --------------------------------------------------------------------------
// Slice cursor
// --------------------------------------------------------------------------

type sliceCursor struct {
	rows []schema.Pojo
	pos  int
}

// NewSliceCursor returns a cursor over an already materialized result
func NewSliceCursor(rows []schema.Pojo) Cursor {
	return &sliceCursor{rows: rows}
}

func (c *sliceCursor) HasNext() bool {
	return c.pos < len(c.rows)
}

func (c *sliceCursor) Next() (schema.Pojo, error) {
	if c.pos >= len(c.rows) {
		return nil, NewError(RetCInvalidOperation, "cursor is exhausted")
	}
	row := c.rows[c.pos]
	c.rows[c.pos] = nil
	c.pos++
	return row, nil
}

func (c *sliceCursor) Close() error {
	c.rows = nil
	c.pos = 0
	return nil
}

// --------------------------------------------------------------------------
// Empty cursor
// --------------------------------------------------------------------------

type emptyCursor struct{}

// EmptyCursor returns a cursor without rows. It is used wherever a query must
// yield nothing without reaching the backend.
func EmptyCursor() Cursor {
	return emptyCursor{}
}

func (emptyCursor) HasNext() bool { return false }
func (emptyCursor) Next() (schema.Pojo, error) {
	return nil, NewError(RetCInvalidOperation, "cursor is empty")
}
func (emptyCursor) Close() error { return nil }

// Drain reads all remaining rows of a cursor and closes it
func Drain(c Cursor) ([]schema.Pojo, error) {
	defer c.Close()
	var rows []schema.Pojo
	for c.HasNext() {
		row, err := c.Next()
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
