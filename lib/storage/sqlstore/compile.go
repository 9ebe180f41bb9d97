package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
)

// countAlias names the result column of a QUERY-COUNT
const countAlias = "__count"

// compiled is a parameterized SQL statement
type compiled struct {
	sql  string
	args []any
}

// whereBuilder renders where expressions. Every comparison is wrapped in
// COALESCE so a missing (NULL) value behaves like in the memory store: it
// never matches except for '!='.
type whereBuilder struct {
	cat  *schema.Category
	sb   strings.Builder
	args []any
}

func (b *whereBuilder) write(expr statement.Expression) error {
	switch e := expr.(type) {
	case *statement.And:
		return b.binary("AND", e.Left, e.Right)
	case *statement.Or:
		return b.binary("OR", e.Left, e.Right)
	case *statement.Not:
		b.sb.WriteString("(NOT ")
		if err := b.write(e.Expr); err != nil {
			return err
		}
		b.sb.WriteString(")")
		return nil
	case *statement.In:
		if _, ok := b.cat.Key(e.Key); !ok || len(e.Values) == 0 {
			b.sb.WriteString("0")
			return nil
		}
		b.sb.WriteString("COALESCE(" + quoteIdent(e.Key) + " IN (")
		for i, v := range e.Values {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			enc, err := encodeValue(v)
			if err != nil {
				return err
			}
			b.sb.WriteString("?")
			b.args = append(b.args, enc)
		}
		b.sb.WriteString("), 0)")
		return nil
	case *statement.Comparison:
		key, ok := e.Left.(statement.KeyRef)
		lit, ok2 := e.Right.(statement.Literal)
		if !ok || !ok2 {
			return storage.Errorf(storage.RetCInvalidOperation, "unbound comparison %s", e)
		}
		missing := "0"
		if e.Op == statement.OpNotEqual {
			missing = "1"
		}
		if _, known := b.cat.Key(key.Name); !known {
			b.sb.WriteString(missing)
			return nil
		}
		enc, err := encodeValue(lit.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b.sb, "COALESCE(%s %s ?, %s)", quoteIdent(key.Name), e.Op, missing)
		b.args = append(b.args, enc)
		return nil
	}
	return storage.Errorf(storage.RetCInvalidOperation, "unsupported expression %T", expr)
}

func (b *whereBuilder) binary(op string, left, right statement.Expression) error {
	b.sb.WriteString("(")
	if err := b.write(left); err != nil {
		return err
	}
	b.sb.WriteString(" " + op + " ")
	if err := b.write(right); err != nil {
		return err
	}
	b.sb.WriteString(")")
	return nil
}

// where renders " WHERE ..." or nothing for a nil expression
func where(cat *schema.Category, expr statement.Expression) (string, []any, error) {
	if expr == nil {
		return "", nil, nil
	}
	b := &whereBuilder{cat: cat}
	if err := b.write(expr); err != nil {
		return "", nil, err
	}
	return " WHERE " + b.sb.String(), b.args, nil
}

func columnList(cat *schema.Category) string {
	cols := make([]string, 0, len(cat.Keys()))
	for _, k := range cat.Keys() {
		cols = append(cols, quoteIdent(k.Name))
	}
	return strings.Join(cols, ", ")
}

// compileQuery renders a select for plain and distinct queries and a count
// for QUERY-COUNT. Distinct values are collected by the caller so the
// statement's sort order decides the order of the values.
func compileQuery(cat *schema.Category, q *statement.Query) (string, []any, error) {
	whereSQL, args, err := where(cat, q.Where)
	if err != nil {
		return "", nil, err
	}
	table := quoteIdent(tableName(cat))

	if q.Kind == statement.KindQueryCount {
		target := "*"
		if q.AggregateKey != "" {
			target = quoteIdent(q.AggregateKey)
		}
		return fmt.Sprintf("SELECT COUNT(%s) AS %s FROM %s%s", target, countAlias, table, whereSQL), args, nil
	}

	var order []string
	for _, s := range q.Sort {
		if _, ok := cat.Key(s.Key); !ok {
			continue
		}
		dir := "ASC"
		if s.Order == statement.Descending {
			dir = "DESC"
		}
		order = append(order, quoteIdent(s.Key)+" "+dir)
	}
	order = append(order, quoteIdent(seqColumn)+" ASC")

	sqlText := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", columnList(cat), table, whereSQL, strings.Join(order, ", "))
	if q.Limit > 0 && q.Kind == statement.KindQuery {
		sqlText += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return sqlText, args, nil
}

func compileDelete(cat *schema.Category, expr statement.Expression) (compiled, error) {
	whereSQL, args, err := where(cat, expr)
	if err != nil {
		return compiled{}, err
	}
	return compiled{sql: "DELETE FROM " + quoteIdent(tableName(cat)) + whereSQL, args: args}, nil
}

func compileUpdate(cat *schema.Category, w *statement.Write) (compiled, error) {
	values := cat.Coerce(w.Values())
	var (
		sets []string
		args []any
	)
	for _, a := range w.Set {
		enc, err := encodeValue(values[a.Key])
		if err != nil {
			return compiled{}, err
		}
		sets = append(sets, quoteIdent(a.Key)+" = ?")
		args = append(args, enc)
	}
	whereSQL, whereArgs, err := where(cat, w.Where)
	if err != nil {
		return compiled{}, err
	}
	return compiled{
		sql:  fmt.Sprintf("UPDATE %s SET %s%s", quoteIdent(tableName(cat)), strings.Join(sets, ", "), whereSQL),
		args: append(args, whereArgs...),
	}, nil
}

func exec(tx *sql.Tx, c compiled) (int64, error) {
	res, err := tx.Exec(c.sql, c.args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insert(tx *sql.Tx, cat *schema.Category, w *statement.Write) (int64, error) {
	values := cat.Coerce(w.Values())
	var (
		cols, marks []string
		args        []any
	)
	for _, a := range w.Set {
		enc, err := encodeValue(values[a.Key])
		if err != nil {
			return 0, err
		}
		cols = append(cols, quoteIdent(a.Key))
		marks = append(marks, "?")
		args = append(args, enc)
	}
	return exec(tx, compiled{
		sql: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(tableName(cat)), strings.Join(cols, ", "), strings.Join(marks, ", ")),
		args: args,
	})
}

// --------------------------------------------------------------------------
// Value conversion
// --------------------------------------------------------------------------

// encodeValue converts a row value to a value the driver can bind. Maps and
// slices are stored as JSON text.
func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, []byte:
		return val, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		return val.Float64()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, storage.Errorf(storage.RetCInvalidOperation, "can not store %T: %v", v, err)
	}
	return string(data), nil
}

// decodeValue converts a scanned column value back to the go type of the key
func decodeValue(t schema.KeyType, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case schema.KeyTypeBool:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		}
	case schema.KeyTypePojo:
		if s, ok := v.(string); ok {
			var m map[string]any
			if json.Unmarshal([]byte(s), &m) == nil {
				return schema.Pojo(m)
			}
		}
	case schema.KeyTypeList:
		if s, ok := v.(string); ok {
			var l []any
			if json.Unmarshal([]byte(s), &l) == nil {
				return l
			}
		}
	}
	return schema.CoerceValue(t, v)
}

// scanRows reads all rows of a result set into pojos, omitting NULL columns
func scanRows(cat *schema.Category, rows *sql.Rows) ([]schema.Pojo, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types := make([]schema.KeyType, len(cols))
	for i, c := range cols {
		if k, ok := cat.Key(c); ok {
			types[i] = k.Type
		}
	}

	var out []schema.Pojo
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(schema.Pojo, len(cols))
		for i, c := range cols {
			if vals[i] == nil {
				continue
			}
			row[c] = decodeValue(types[i], vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
