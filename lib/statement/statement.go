package statement

import (
	"fmt"

	"github.com/ValentinKolb/dGate/lib/schema"
)

// Kind is the statement type keyword
type Kind uint8

const (
	KindQuery Kind = iota
	KindQueryCount
	KindQueryDistinct
	KindAdd
	KindReplace
	KindUpdate
	KindRemove
)

var kindNames = map[Kind]string{
	KindQuery:         "QUERY",
	KindQueryCount:    "QUERY-COUNT",
	KindQueryDistinct: "QUERY-DISTINCT",
	KindAdd:           "ADD",
	KindReplace:       "REPLACE",
	KindUpdate:        "UPDATE",
	KindRemove:        "REMOVE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsQuery reports whether statements of this kind read data
func (k Kind) IsQuery() bool {
	return k == KindQuery || k == KindQueryCount || k == KindQueryDistinct
}

// IsAggregate reports whether the kind is an aggregate query
func (k Kind) IsAggregate() bool {
	return k == KindQueryCount || k == KindQueryDistinct
}

// Order is a sort direction
type Order uint8

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "DSC"
	}
	return "ASC"
}

// --------------------------------------------------------------------------
// Parsed statements (may still contain placeholders)
// --------------------------------------------------------------------------

// SetPair is one 'key' = value entry of a SET list
type SetPair struct {
	Key   Operand
	Value Operand
}

// SortTerm is one entry of a SORT list
type SortTerm struct {
	Key   Operand
	Order Order
}

// Parsed is a parsed and semantically valid statement. It is immutable and
// can be patched any number of times.
type Parsed struct {
	Descriptor   schema.StatementDescriptor
	Kind         Kind
	AggregateKey string
	Set          []SetPair
	Where        Expression
	Sort         []SortTerm
	Limit        Operand
	NumParams    int

	types []ParamType
}

// ParamTypes returns the declared type of every placeholder in positional order
func (p *Parsed) ParamTypes() []ParamType {
	out := make([]ParamType, len(p.types))
	copy(out, p.types)
	return out
}

// --------------------------------------------------------------------------
// Bound statements
// --------------------------------------------------------------------------

// Statement is a fully bound statement. It is either a *Query or a *Write.
type Statement interface {
	isStatement()
	Descriptor() schema.StatementDescriptor
}

// Sort is a bound sort term
type Sort struct {
	Key   string
	Order Order
}

// Assignment is a bound SET list entry
type Assignment struct {
	Key   string
	Value any
}

// Query is a bound read statement
type Query struct {
	desc schema.StatementDescriptor

	Category     *schema.Category
	Kind         Kind
	AggregateKey string
	Where        Expression
	Sort         []Sort
	// Limit is the maximum number of rows, zero means unlimited
	Limit int
}

// Write is a bound ADD, REPLACE, UPDATE or REMOVE statement
type Write struct {
	desc schema.StatementDescriptor

	Category *schema.Category
	Kind     Kind
	Set      []Assignment
	Where    Expression
}

func (*Query) isStatement() {}
func (*Write) isStatement() {}

func (q *Query) Descriptor() schema.StatementDescriptor { return q.desc }
func (w *Write) Descriptor() schema.StatementDescriptor { return w.desc }

// WithWhere returns a copy of the query using the given where expression
func (q *Query) WithWhere(where Expression) *Query {
	cp := *q
	cp.Where = where
	return &cp
}

// Values returns the SET list as a row
func (w *Write) Values() schema.Pojo {
	row := make(schema.Pojo, len(w.Set))
	for _, a := range w.Set {
		row[a.Key] = a.Value
	}
	return row
}

func (q *Query) String() string {
	s := q.Kind.String()
	if q.AggregateKey != "" {
		s += "('" + q.AggregateKey + "')"
	}
	s += " " + q.Category.Name()
	if q.Where != nil {
		s += " WHERE " + q.Where.String()
	}
	for i, st := range q.Sort {
		if i == 0 {
			s += " SORT"
		} else {
			s += " ,"
		}
		s += fmt.Sprintf(" '%s' %s", st.Key, st.Order)
	}
	if q.Limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return s
}

func (w *Write) String() string {
	s := w.Kind.String() + " " + w.Category.Name()
	for i, a := range w.Set {
		if i == 0 {
			s += " SET"
		} else {
			s += " ,"
		}
		s += fmt.Sprintf(" '%s' = %s", a.Key, formatValue(a.Value))
	}
	if w.Where != nil {
		s += " WHERE " + w.Where.String()
	}
	return s
}
