package statement

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Operands
// --------------------------------------------------------------------------

// Operand is one side of a comparison or set list pair
type Operand interface {
	isOperand()
	String() string
}

// KeyRef references a key of the category by name
type KeyRef struct {
	Name string
}

// Literal is a concrete value
type Literal struct {
	Value any
}

// Placeholder is a free parameter that is bound by Patch
type Placeholder struct {
	Index int
	Type  ParamType
}

func (KeyRef) isOperand()      {}
func (Literal) isOperand()     {}
func (Placeholder) isOperand() {}

func (k KeyRef) String() string      { return "'" + k.Name + "'" }
func (l Literal) String() string     { return formatValue(l.Value) }
func (p Placeholder) String() string { return fmt.Sprintf("?%s#%d", p.Type, p.Index) }

// --------------------------------------------------------------------------
// Expressions
// --------------------------------------------------------------------------

// Operator is a binary comparison operator
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

func parseOperator(tok string) (Operator, bool) {
	switch Operator(tok) {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return Operator(tok), true
	}
	return "", false
}

// Expression is a node of a where tree
type Expression interface {
	isExpression()
	String() string
}

// Comparison compares a key with a value. After patching Left is always a
// KeyRef and Right is always a Literal.
type Comparison struct {
	Left  Operand
	Op    Operator
	Right Operand
}

// And is the conjunction of two expressions
type And struct {
	Left, Right Expression
}

// Or is the disjunction of two expressions
type Or struct {
	Left, Right Expression
}

// Not negates an expression
type Not struct {
	Expr Expression
}

// In is true if the value of Key is one of Values
type In struct {
	Key    string
	Values []any
}

func (*Comparison) isExpression() {}
func (*And) isExpression()        {}
func (*Or) isExpression()         {}
func (*Not) isExpression()        {}
func (*In) isExpression()         {}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}
func (a *And) String() string { return fmt.Sprintf("(%s AND %s)", a.Left, a.Right) }
func (o *Or) String() string  { return fmt.Sprintf("(%s OR %s)", o.Left, o.Right) }
func (n *Not) String() string { return fmt.Sprintf("NOT %s", n.Expr) }
func (i *In) String() string {
	vals := make([]string, len(i.Values))
	for n, v := range i.Values {
		vals[n] = formatValue(v)
	}
	return fmt.Sprintf("'%s' IN [%s]", i.Key, strings.Join(vals, ", "))
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// Compare builds a patched comparison between a key and a value
func Compare(key string, op Operator, value any) *Comparison {
	return &Comparison{Left: KeyRef{Name: key}, Op: op, Right: Literal{Value: value}}
}

// Equal builds key = value
func Equal(key string, value any) *Comparison {
	return Compare(key, OpEqual, value)
}

// NewAnd combines two expressions. A nil side yields the other side.
func NewAnd(left, right Expression) Expression {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &And{Left: left, Right: right}
}

// NewIn builds a set membership expression
func NewIn[T any](key string, values []T) *In {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return &In{Key: key, Values: vals}
}

// Walk calls fn for every node of the tree in depth first order until fn returns false
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case *And:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case *Or:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case *Not:
		Walk(e.Expr, fn)
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + val + "'"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", val)
	}
}
