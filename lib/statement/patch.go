package statement

// Patch binds the positional parameters and returns the bound statement.
// The parsed statement is not modified.
func (p *Parsed) Patch(params []Param) (Statement, error) {
	if len(params) != p.NumParams {
		return nil, patchErrorf("expected %d parameters, got %d", p.NumParams, len(params))
	}
	for i, param := range params {
		if param.Value == nil {
			return nil, patchErrorf("parameter %d is nil", i)
		}
		if param.Type != p.types[i] {
			return nil, patchErrorf("parameter %d has type ?%s, expected ?%s", i, param.Type, p.types[i])
		}
		if err := param.Validate(); err != nil {
			return nil, patchErrorf("parameter %d: %s", i, err)
		}
	}

	b := binder{params: params}
	where := b.expression(p.Where)
	if b.err != nil {
		return nil, b.err
	}

	if p.Kind.IsQuery() {
		q := &Query{
			desc:         p.Descriptor,
			Category:     p.Descriptor.Category,
			Kind:         p.Kind,
			AggregateKey: p.AggregateKey,
			Where:        where,
		}
		for _, s := range p.Sort {
			q.Sort = append(q.Sort, Sort{Key: b.key(s.Key), Order: s.Order})
		}
		if p.Limit != nil {
			limit, _ := b.value(p.Limit).(int32)
			if limit < 0 && b.err == nil {
				return nil, patchErrorf("limit must not be negative, got %d", limit)
			}
			q.Limit = int(limit)
		}
		if b.err != nil {
			return nil, b.err
		}
		return q, nil
	}

	w := &Write{
		desc:     p.Descriptor,
		Category: p.Descriptor.Category,
		Kind:     p.Kind,
		Where:    where,
	}
	for _, s := range p.Set {
		w.Set = append(w.Set, Assignment{Key: b.key(s.Key), Value: b.value(s.Value)})
	}
	if b.err != nil {
		return nil, b.err
	}
	return w, nil
}

// binder substitutes placeholders and records the first error
type binder struct {
	params []Param
	err    error
}

func (b *binder) key(op Operand) string {
	switch o := op.(type) {
	case KeyRef:
		return o.Name
	case Placeholder:
		name, _ := b.params[o.Index].Value.(string)
		if name == "" && b.err == nil {
			b.err = patchErrorf("parameter %d must name a key", o.Index)
		}
		return name
	}
	return ""
}

func (b *binder) value(op Operand) any {
	switch o := op.(type) {
	case Literal:
		return o.Value
	case Placeholder:
		return b.params[o.Index].Value
	}
	return nil
}

func (b *binder) expression(expr Expression) Expression {
	switch e := expr.(type) {
	case nil:
		return nil
	case *Comparison:
		return &Comparison{Left: KeyRef{Name: b.key(e.Left)}, Op: e.Op, Right: Literal{Value: b.value(e.Right)}}
	case *And:
		return &And{Left: b.expression(e.Left), Right: b.expression(e.Right)}
	case *Or:
		return &Or{Left: b.expression(e.Left), Right: b.expression(e.Right)}
	case *Not:
		return &Not{Expr: b.expression(e.Expr)}
	case *In:
		vals := make([]any, len(e.Values))
		copy(vals, e.Values)
		return &In{Key: e.Key, Values: vals}
	}
	return expr
}
