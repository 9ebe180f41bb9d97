package statement

import (
	"sort"
	"strings"
)

// checkSemantics validates the parts of a statement that depend on its kind
// and on the keys of its category
func checkSemantics(p *Parsed) error {
	fail := func(msg string) error { return &ParseError{Text: p.Descriptor.Text, Msg: msg} }
	cat := p.Descriptor.Category

	if !p.Kind.IsQuery() && (len(p.Sort) > 0 || p.Limit != nil) {
		return fail("only queries may have SORT or LIMIT")
	}
	for _, s := range p.Set {
		if _, ok := s.Key.(Placeholder); ok {
			return fail("keys of a set list must not be free parameters")
		}
	}

	switch p.Kind {
	case KindQuery, KindQueryCount, KindQueryDistinct:
		if len(p.Set) > 0 {
			return fail("queries must not have a set list")
		}
		if p.Kind == KindQueryDistinct && p.AggregateKey == "" {
			return fail("aggregate key for DISTINCT must not be empty")
		}
		if p.AggregateKey != "" {
			if _, ok := cat.Key(p.AggregateKey); !ok {
				return fail("unknown aggregate key '" + p.AggregateKey + "'")
			}
		}
	case KindAdd:
		if p.Where != nil {
			return fail("ADD must not have a where clause")
		}
		if err := setMatchesAllKeys(p); err != "" {
			return fail(err)
		}
	case KindReplace:
		if p.Where == nil {
			return fail("REPLACE requires a where clause")
		}
		if err := setMatchesAllKeys(p); err != "" {
			return fail(err)
		}
	case KindUpdate:
		if p.Where == nil {
			return fail("UPDATE requires a where clause")
		}
		if len(p.Set) == 0 {
			return fail("UPDATE requires a non-empty set list")
		}
		for _, s := range p.Set {
			name := s.Key.(KeyRef).Name
			if _, ok := cat.Key(name); !ok {
				return fail("unknown key '" + name + "' in set list")
			}
		}
	case KindRemove:
		if len(p.Set) > 0 {
			return fail("REMOVE must not have a set list")
		}
	}
	return nil
}

// setMatchesAllKeys returns a message if the set list does not name every key
// of the category exactly once
func setMatchesAllKeys(p *Parsed) string {
	var want []string
	for _, k := range p.Descriptor.Category.Keys() {
		want = append(want, k.Name)
	}
	var got []string
	for _, s := range p.Set {
		got = append(got, s.Key.(KeyRef).Name)
	}
	sort.Strings(want)
	sort.Strings(got)
	if strings.Join(want, ",") != strings.Join(got, ",") {
		return p.Kind.String() + " must set exactly the keys of the category [" +
			strings.Join(want, ", ") + "], got [" + strings.Join(got, ", ") + "]"
	}
	return ""
}
