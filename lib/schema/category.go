package schema

import (
	"fmt"
	"strings"
)

// Payload names of the synthesized aggregate views
const (
	PayloadAggregateCount    = "AggregateCount"
	PayloadAggregateDistinct = "AggregateDistinct"
)

// IsAggregatePayload reports whether the payload name denotes an aggregate view
func IsAggregatePayload(payload string) bool {
	return payload == PayloadAggregateCount || payload == PayloadAggregateDistinct
}

// Category is an immutable, named schema.
type Category struct {
	name    string
	payload string
	keys    []Key
	indexed map[string]struct{}
	byName  map[string]Key
	base    *Category // non nil for aggregate views
}

// newCategory validates and builds a category. It does not check name uniqueness,
// this is the job of the Registry.
func newCategory(name, payload string, keys []Key, indexed []string) (*Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("category name must not be empty")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("category %q has no keys", name)
	}

	c := &Category{
		name:    name,
		payload: payload,
		keys:    make([]Key, 0, len(keys)),
		indexed: make(map[string]struct{}, len(indexed)),
		byName:  make(map[string]Key, len(keys)),
	}

	for _, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("category %q has a key without name", name)
		}
		if !k.Type.Valid() {
			return nil, fmt.Errorf("key %q of category %q has unknown type %q", k.Name, name, k.Type)
		}
		if _, dup := c.byName[k.Name]; dup {
			return nil, fmt.Errorf("duplicate key %q in category %q", k.Name, name)
		}
		c.keys = append(c.keys, k)
		c.byName[k.Name] = k
	}

	for _, idx := range indexed {
		if _, ok := c.byName[idx]; !ok {
			return nil, fmt.Errorf("indexed key %q is not a key of category %q", idx, name)
		}
		c.indexed[idx] = struct{}{}
	}

	return c, nil
}

// Name returns the category name
func (c *Category) Name() string { return c.name }

// Payload returns the name of the payload type the category produces
func (c *Category) Payload() string { return c.payload }

// Keys returns a copy of the keys of the category in definition order
func (c *Category) Keys() []Key {
	out := make([]Key, len(c.keys))
	copy(out, c.keys)
	return out
}

// Key returns the key with the given name
func (c *Category) Key(name string) (Key, bool) {
	k, ok := c.byName[name]
	return k, ok
}

// IsIndexed reports whether the named key is indexed
func (c *Category) IsIndexed(name string) bool {
	_, ok := c.indexed[name]
	return ok
}

// IndexedKeys returns the indexed keys in definition order
func (c *Category) IndexedKeys() []Key {
	var out []Key
	for _, k := range c.keys {
		if c.IsIndexed(k.Name) {
			out = append(out, k)
		}
	}
	return out
}

// IsAggregate reports whether the category is a synthesized aggregate view
func (c *Category) IsAggregate() bool { return c.base != nil }

// Base returns the category an aggregate view was derived from, or the category itself
func (c *Category) Base() *Category {
	if c.base != nil {
		return c.base
	}
	return c
}

// Aggregate synthesizes an aggregate view over this category. The view has the
// same name and keys but produces the given aggregate payload. It is not
// defined in any registry.
func (c *Category) Aggregate(payload string) (*Category, error) {
	if !IsAggregatePayload(payload) {
		return nil, fmt.Errorf("%q is not an aggregate payload", payload)
	}
	base := c.Base()
	return &Category{
		name:    base.name,
		payload: payload,
		keys:    base.keys,
		indexed: base.indexed,
		byName:  base.byName,
		base:    base,
	}, nil
}

// Coerce converts values of a row to the declared key types where the wire
// format lost them (JSON numbers decode as float64). Unknown keys and values
// that cannot be converted are kept as they are.
func (c *Category) Coerce(row Pojo) Pojo {
	if row == nil {
		return nil
	}
	out := make(Pojo, len(row))
	for name, v := range row {
		k, ok := c.byName[name]
		if !ok {
			out[name] = v
			continue
		}
		out[name] = CoerceValue(k.Type, v)
	}
	return out
}

// Spec returns the wire description of the category
func (c *Category) Spec() Spec {
	spec := Spec{Name: c.name, Payload: c.payload}
	for _, k := range c.keys {
		spec.Keys = append(spec.Keys, KeySpec{Name: k.Name, Type: k.Type, Indexed: c.IsIndexed(k.Name)})
	}
	return spec
}

func (c *Category) String() string {
	return fmt.Sprintf("%s(%s)", c.name, c.payload)
}

// --------------------------------------------------------------------------
// Wire description
// --------------------------------------------------------------------------

// KeySpec describes one key of a category on the wire
type KeySpec struct {
	Name    string  `json:"name" yaml:"name"`
	Type    KeyType `json:"type,omitempty" yaml:"type,omitempty"`
	Indexed bool    `json:"indexed,omitempty" yaml:"indexed,omitempty"`
}

// Spec is the raw schema a client sends when registering a category
type Spec struct {
	Name    string    `json:"name" yaml:"name"`
	Payload string    `json:"payload" yaml:"payload"`
	Keys    []KeySpec `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// KeyList converts the key specs to keys and the names of the indexed keys
func (s Spec) KeyList() (keys []Key, indexed []string) {
	for _, ks := range s.Keys {
		keys = append(keys, Key{Name: ks.Name, Type: ks.Type})
		if ks.Indexed {
			indexed = append(indexed, ks.Name)
		}
	}
	return keys, indexed
}
