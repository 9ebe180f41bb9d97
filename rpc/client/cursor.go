package client

import (
	"errors"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statecache"
	"github.com/ValentinKolb/dGate/rpc/common"
)

// notStored is the cursor id of results that were returned completely
const notStored = -1

// ErrExhausted is returned by Next if the cursor has no more rows
var ErrExhausted = errors.New("cursor is exhausted")

// Cursor iterates over the result of a query, fetching further pages from
// the gateway as needed. Rows carry the declared types of the category.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	client    *Client
	category  *schema.Category
	stmt      statecache.SharedStateId
	batchSize int

	rows     []schema.Pojo
	cursorID int32
	hasMore  bool
	err      error
}

func newCursor(c *Client, category *schema.Category, stmt statecache.SharedStateId, resp *common.Message, batchSize int) *Cursor {
	return &Cursor{
		client:    c,
		category:  category,
		stmt:      stmt,
		batchSize: batchSize,
		rows:      resp.Rows,
		cursorID:  resp.CursorID,
		hasMore:   resp.HasMore && resp.CursorID != notStored,
	}
}

// HasNext reports whether another row is available. A failed page fetch
// also reports true, Next returns the error.
func (c *Cursor) HasNext() bool {
	if len(c.rows) > 0 || c.err != nil {
		return true
	}
	if !c.hasMore {
		return false
	}

	resp, err := c.client.getMore(c.stmt, c.cursorID, c.batchSize)
	if err != nil {
		c.err = err
		c.hasMore = false
		return true
	}
	c.rows = resp.Rows
	c.hasMore = resp.HasMore
	return len(c.rows) > 0 || c.hasMore
}

// Next returns the next row
func (c *Cursor) Next() (schema.Pojo, error) {
	if !c.HasNext() {
		return nil, ErrExhausted
	}
	if c.err != nil {
		err := c.err
		c.err = nil
		return nil, err
	}
	row := c.rows[0]
	c.rows = c.rows[1:]
	return c.category.Coerce(row), nil
}

// All reads all remaining rows
func (c *Cursor) All() ([]schema.Pojo, error) {
	var out []schema.Pojo
	for c.HasNext() {
		row, err := c.Next()
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Close discards the cursor. The gateway releases unread results when the
// cursor times out.
func (c *Cursor) Close() error {
	c.rows = nil
	c.hasMore = false
	return nil
}
