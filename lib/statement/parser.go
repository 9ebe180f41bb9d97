package statement

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dGate/lib/schema"
)

const (
	kwSet   = "SET"
	kwWhere = "WHERE"
	kwSort  = "SORT"
	kwLimit = "LIMIT"
	kwAnd   = "AND"
	kwOr    = "OR"
	kwNot   = "NOT"
	kwAsc   = "ASC"
	kwDesc  = "DSC"
	comma   = ","

	placeholderPrefix = "?"
	quote             = "'"
)

var aggregatePattern = regexp.MustCompile(`^(QUERY-COUNT|QUERY-DISTINCT)(?:\(([a-zA-Z_]+)\))?$`)

// termContext restricts which terms are allowed at a position
type termContext uint8

const (
	ctxSet termContext = iota
	ctxWhere
	ctxSort
	ctxLimit
)

type parser struct {
	desc   schema.StatementDescriptor
	tokens []string
	pos    int
	types  []ParamType
}

// Parse parses and validates the statement text of a descriptor
func Parse(desc schema.StatementDescriptor) (*Parsed, error) {
	if desc.Category == nil {
		return nil, &ParseError{Text: desc.Text, Msg: "descriptor has no category"}
	}
	p := &parser{desc: desc, tokens: strings.Fields(desc.Text)}
	parsed, err := p.parse()
	if err != nil {
		return nil, err
	}
	if err := checkSemantics(parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Text: p.desc.Text, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

func (p *parser) parse() (*Parsed, error) {
	if len(p.tokens) < 2 {
		return nil, p.errorf("statement type and category expected")
	}
	out := &Parsed{Descriptor: p.desc}

	if err := p.parseStatementType(out); err != nil {
		return nil, err
	}

	cat, _ := p.next()
	if cat != p.desc.Category.Name() {
		return nil, p.errorf("unknown category %q, expected %q", cat, p.desc.Category.Name())
	}

	if p.peek() == kwSet {
		p.pos++
		set, err := p.parseSetList()
		if err != nil {
			return nil, err
		}
		out.Set = set
	}

	if err := p.parseSuffix(out); err != nil {
		return nil, err
	}

	if p.pos != len(p.tokens) {
		return nil, p.errorf("incomplete parse, unexpected token %q", p.peek())
	}
	out.types = p.types
	out.NumParams = len(p.types)
	return out, nil
}

func (p *parser) parseStatementType(out *Parsed) error {
	tok, _ := p.next()
	switch tok {
	case "QUERY":
		out.Kind = KindQuery
		return nil
	case "ADD":
		out.Kind = KindAdd
		return nil
	case "REPLACE":
		out.Kind = KindReplace
		return nil
	case "UPDATE":
		out.Kind = KindUpdate
		return nil
	case "REMOVE":
		out.Kind = KindRemove
		return nil
	}
	m := aggregatePattern.FindStringSubmatch(tok)
	if m == nil {
		return p.errorf("unknown statement type %q", tok)
	}
	if m[1] == "QUERY-COUNT" {
		out.Kind = KindQueryCount
	} else {
		out.Kind = KindQueryDistinct
	}
	out.AggregateKey = m[2]
	return nil
}

func (p *parser) parseSetList() ([]SetPair, error) {
	var set []SetPair
	for {
		lhs, err := p.parseTerm(ctxSet, true)
		if err != nil {
			return nil, err
		}
		if tok, _ := p.next(); tok != string(OpEqual) {
			return nil, p.errorf("expected '=' in set list, got %q", tok)
		}
		rhs, err := p.parseTerm(ctxSet, false)
		if err != nil {
			return nil, err
		}
		set = append(set, SetPair{Key: lhs, Value: rhs})
		if p.peek() != comma {
			return set, nil
		}
		p.pos++
	}
}

func (p *parser) parseSuffix(out *Parsed) (err error) {
	switch p.peek() {
	case "":
		return nil
	case kwWhere:
		p.pos++
		if out.Where, err = p.parseOr(); err != nil {
			return err
		}
		if p.peek() == kwSort {
			p.pos++
			if out.Sort, err = p.parseSort(); err != nil {
				return err
			}
		}
		if p.peek() == kwLimit {
			p.pos++
			out.Limit, err = p.parseTerm(ctxLimit, false)
		}
		return err
	case kwSort:
		p.pos++
		if out.Sort, err = p.parseSort(); err != nil {
			return err
		}
		if p.peek() == kwLimit {
			p.pos++
			out.Limit, err = p.parseTerm(ctxLimit, false)
		}
		return err
	case kwLimit:
		p.pos++
		out.Limit, err = p.parseTerm(ctxLimit, false)
		return err
	}
	return p.errorf("unexpected token %q, expected WHERE, SORT or LIMIT", p.peek())
}

// --------------------------------------------------------------------------
// Where clause
// --------------------------------------------------------------------------

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == kwOr {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	for p.peek() == kwAnd {
		p.pos++
		right, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseCondition() (Expression, error) {
	if p.peek() == kwNot {
		p.pos++
		inner, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	}
	left, err := p.parseTerm(ctxWhere, true)
	if err != nil {
		return nil, err
	}
	tok, ok := p.next()
	op, valid := parseOperator(tok)
	if !ok || !valid {
		return nil, p.errorf("expected comparison operator, got %q", tok)
	}
	right, err := p.parseTerm(ctxWhere, false)
	if err != nil {
		return nil, err
	}
	return &Comparison{Left: left, Op: op, Right: right}, nil
}

// --------------------------------------------------------------------------
// Sort clause
// --------------------------------------------------------------------------

func (p *parser) parseSort() ([]SortTerm, error) {
	var terms []SortTerm
	for {
		key, err := p.parseTerm(ctxSort, true)
		if err != nil {
			return nil, err
		}
		var order Order
		switch tok, _ := p.next(); tok {
		case kwAsc:
			order = Ascending
		case kwDesc:
			order = Descending
		default:
			return nil, p.errorf("expected sort order ASC or DSC, got %q", tok)
		}
		terms = append(terms, SortTerm{Key: key, Order: order})
		if p.peek() != comma {
			return terms, nil
		}
		p.pos++
	}
}

// --------------------------------------------------------------------------
// Terms
// --------------------------------------------------------------------------

func (p *parser) parseTerm(ctx termContext, lhs bool) (Operand, error) {
	tok, ok := p.next()
	if !ok || isKeyword(tok) {
		return nil, p.errorf("term expected, got %q", tok)
	}
	if strings.HasPrefix(tok, placeholderPrefix) {
		return p.parsePlaceholder(tok, ctx, lhs)
	}

	switch ctx {
	case ctxLimit:
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return nil, p.errorf("invalid limit %q, expected an int", tok)
		}
		if n < 0 {
			return nil, p.errorf("limit must not be negative")
		}
		return Literal{Value: int32(n)}, nil
	case ctxSort:
		lhs = true
	}

	if lhs {
		name, ok := unquote(tok)
		if !ok || name == "" {
			return nil, p.errorf("expected a quoted key name, got %q", tok)
		}
		return KeyRef{Name: name}, nil
	}
	v, err := parseLiteral(tok)
	if err != nil {
		return nil, p.errorf("%s", err)
	}
	return Literal{Value: v}, nil
}

func (p *parser) parsePlaceholder(tok string, ctx termContext, lhs bool) (Operand, error) {
	t, ok := ParseParamType(strings.TrimPrefix(tok, placeholderPrefix))
	if !ok {
		return nil, p.errorf("unknown free parameter type %q", tok)
	}
	switch ctx {
	case ctxSort:
		if t != ParamString {
			return nil, p.errorf("sort parameters must be of type ?s, got %q", tok)
		}
	case ctxLimit:
		if t != ParamInt {
			return nil, p.errorf("limit parameters must be of type ?i, got %q", tok)
		}
	case ctxWhere:
		if t.IsList() || t == ParamPojo {
			return nil, p.errorf("list and pojo parameters are not allowed in where clauses, got %q", tok)
		}
		if lhs && t != ParamString {
			return nil, p.errorf("key parameters must be of type ?s, got %q", tok)
		}
	}
	idx := len(p.types)
	p.types = append(p.types, t)
	return Placeholder{Index: idx, Type: t}, nil
}

func isKeyword(tok string) bool {
	switch tok {
	case kwSet, kwWhere, kwSort, kwLimit, kwAnd, kwOr, kwNot, comma:
		return true
	}
	return false
}

func unquote(tok string) (string, bool) {
	if len(tok) >= 2 && strings.HasPrefix(tok, quote) && strings.HasSuffix(tok, quote) {
		return tok[1 : len(tok)-1], true
	}
	return "", false
}

func parseLiteral(tok string) (any, error) {
	if s, ok := unquote(tok); ok {
		return s, nil
	}
	switch tok {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if strings.HasSuffix(tok, "l") || strings.HasSuffix(tok, "L") {
		if n, err := strconv.ParseInt(tok[:len(tok)-1], 10, 64); err == nil {
			return n, nil
		}
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil && n >= math.MinInt32 && n <= math.MaxInt32 {
		return int32(n), nil
	}
	return nil, fmt.Errorf("illegal literal %q", tok)
}
