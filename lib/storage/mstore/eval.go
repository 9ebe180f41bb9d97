package mstore

import (
	"reflect"
	"sort"
	"strings"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
)

// matches evaluates a bound where expression against a row. A nil
// expression matches every row.
func matches(expr statement.Expression, row schema.Pojo) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case *statement.And:
		return matches(e.Left, row) && matches(e.Right, row)
	case *statement.Or:
		return matches(e.Left, row) || matches(e.Right, row)
	case *statement.Not:
		return !matches(e.Expr, row)
	case *statement.In:
		v, ok := row[e.Key]
		if !ok {
			return false
		}
		for _, candidate := range e.Values {
			if valuesEqual(v, candidate) {
				return true
			}
		}
		return false
	case *statement.Comparison:
		return compareOp(e, row)
	}
	return false
}

func compareOp(c *statement.Comparison, row schema.Pojo) bool {
	key, ok := c.Left.(statement.KeyRef)
	if !ok {
		return false
	}
	lit, ok := c.Right.(statement.Literal)
	if !ok {
		return false
	}
	v, present := row[key.Name]

	switch c.Op {
	case statement.OpEqual:
		return present && valuesEqual(v, lit.Value)
	case statement.OpNotEqual:
		return !present || !valuesEqual(v, lit.Value)
	}

	if !present {
		return false
	}
	cmp, ok := compareValues(v, lit.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case statement.OpLess:
		return cmp < 0
	case statement.OpLessEqual:
		return cmp <= 0
	case statement.OpGreater:
		return cmp > 0
	case statement.OpGreaterEqual:
		return cmp >= 0
	}
	return false
}

func valuesEqual(a, b any) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two scalars of compatible kinds. Numbers of any width
// are compared by value.
func compareValues(a, b any) (int, bool) {
	if ai, ok := schema.AsInt64(a); ok {
		if bi, ok := schema.AsInt64(b); ok {
			switch {
			case ai < bi:
				return -1, true
			case ai > bi:
				return 1, true
			}
			return 0, true
		}
	}
	if af, ok := schema.AsFloat64(a); ok {
		if bf, ok := schema.AsFloat64(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

// sortRows sorts rows in place by the sort terms. Missing and incomparable
// values sort first.
func sortRows(rows []schema.Pojo, terms []statement.Sort) {
	if len(terms) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range terms {
			cmp := orderOf(rows[i][term.Key], rows[j][term.Key])
			if cmp == 0 {
				continue
			}
			if term.Order == statement.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func orderOf(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	cmp, _ := compareValues(a, b)
	return cmp
}
