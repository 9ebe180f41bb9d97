package schema

import (
	"encoding/json"
	"math"
)

// Pojo is a single stored row, mapping key names to values
type Pojo map[string]any

// Clone returns a shallow copy of the row
func (p Pojo) Clone() Pojo {
	if p == nil {
		return nil
	}
	out := make(Pojo, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// CoerceValue converts v to the go type that represents the key type.
// Values that do not fit are returned unchanged.
func CoerceValue(t KeyType, v any) any {
	switch t {
	case KeyTypeLong:
		if n, ok := AsInt64(v); ok {
			return n
		}
	case KeyTypeInt:
		if n, ok := AsInt64(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n)
		}
	case KeyTypeDouble:
		if f, ok := AsFloat64(v); ok {
			return f
		}
	case KeyTypePojo:
		if m, ok := v.(map[string]any); ok {
			return Pojo(m)
		}
	}
	return v
}

// AsInt64 converts integral numbers (and integral floats) to int64
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		if float32(int64(n)) == n {
			return int64(n), true
		}
	case float64:
		if float64(int64(n)) == n {
			return int64(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

// AsFloat64 converts any number to float64
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := AsInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
