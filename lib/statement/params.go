package statement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ValentinKolb/dGate/lib/schema"
)

// ParamType is the type tag of a free parameter as it appears after the '?'
type ParamType string

const (
	ParamString ParamType = "s"
	ParamInt    ParamType = "i"
	ParamLong   ParamType = "l"
	ParamBool   ParamType = "b"
	ParamDouble ParamType = "d"
	ParamPojo   ParamType = "p"

	listSuffix = "["
)

// ParseParamType parses the type tag of a placeholder token without the leading '?'
func ParseParamType(s string) (ParamType, bool) {
	t := ParamType(s)
	return t, t.Valid()
}

// Valid reports whether t is a known scalar or list type
func (t ParamType) Valid() bool {
	switch t.Elem() {
	case ParamString, ParamInt, ParamLong, ParamBool, ParamDouble, ParamPojo:
		return len(t) == 1 || (len(t) == 2 && t.IsList())
	}
	return false
}

// IsList reports whether t is a list type
func (t ParamType) IsList() bool {
	return strings.HasSuffix(string(t), listSuffix)
}

// Elem returns the element type of a list type or t itself
func (t ParamType) Elem() ParamType {
	return ParamType(strings.TrimSuffix(string(t), listSuffix))
}

// ListOf returns the list type with element type t
func (t ParamType) ListOf() ParamType {
	return t.Elem() + listSuffix
}

// --------------------------------------------------------------------------
// Param
// --------------------------------------------------------------------------

// Param is a typed value bound to a placeholder. Value holds one of
// string, int32, int64, bool, float64, schema.Pojo or a slice of those.
type Param struct {
	Type  ParamType `json:"type"`
	Value any       `json:"value"`
}

func StringParam(v string) Param       { return Param{Type: ParamString, Value: v} }
func IntParam(v int32) Param           { return Param{Type: ParamInt, Value: v} }
func LongParam(v int64) Param          { return Param{Type: ParamLong, Value: v} }
func BoolParam(v bool) Param           { return Param{Type: ParamBool, Value: v} }
func DoubleParam(v float64) Param      { return Param{Type: ParamDouble, Value: v} }
func PojoParam(v schema.Pojo) Param    { return Param{Type: ParamPojo, Value: v} }
func StringListParam(v []string) Param { return Param{Type: ParamString.ListOf(), Value: v} }
func IntListParam(v []int32) Param     { return Param{Type: ParamInt.ListOf(), Value: v} }
func LongListParam(v []int64) Param    { return Param{Type: ParamLong.ListOf(), Value: v} }
func PojoListParam(v []schema.Pojo) Param {
	return Param{Type: ParamPojo.ListOf(), Value: v}
}

// Validate checks that the Go type of Value matches Type
func (p Param) Validate() error {
	ok := false
	switch p.Type {
	case ParamString:
		_, ok = p.Value.(string)
	case ParamInt:
		_, ok = p.Value.(int32)
	case ParamLong:
		_, ok = p.Value.(int64)
	case ParamBool:
		_, ok = p.Value.(bool)
	case ParamDouble:
		_, ok = p.Value.(float64)
	case ParamPojo:
		_, ok = p.Value.(schema.Pojo)
	case ParamString.ListOf():
		_, ok = p.Value.([]string)
	case ParamInt.ListOf():
		_, ok = p.Value.([]int32)
	case ParamLong.ListOf():
		_, ok = p.Value.([]int64)
	case ParamBool.ListOf():
		_, ok = p.Value.([]bool)
	case ParamDouble.ListOf():
		_, ok = p.Value.([]float64)
	case ParamPojo.ListOf():
		_, ok = p.Value.([]schema.Pojo)
	default:
		return fmt.Errorf("unknown parameter type %q", p.Type)
	}
	if !ok {
		return fmt.Errorf("value %v (%T) does not match parameter type ?%s", p.Value, p.Value, p.Type)
	}
	return nil
}

// UnmarshalJSON decodes {"type": "l", "value": 42} into a Param whose Value
// carries the Go type of its tag
func (p *Param) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  ParamType       `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("unknown parameter type %q", raw.Type)
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.UseNumber()

	var err error
	p.Type = raw.Type
	switch raw.Type {
	case ParamString:
		var v string
		err = dec.Decode(&v)
		p.Value = v
	case ParamBool:
		var v bool
		err = dec.Decode(&v)
		p.Value = v
	case ParamDouble:
		var v float64
		err = dec.Decode(&v)
		p.Value = v
	case ParamInt, ParamLong:
		var n json.Number
		if err = dec.Decode(&n); err == nil {
			p.Value, err = decodeInteger(n, raw.Type)
		}
	case ParamPojo:
		var v map[string]any
		err = dec.Decode(&v)
		p.Value = schema.Pojo(v)
	case ParamString.ListOf():
		var v []string
		err = dec.Decode(&v)
		p.Value = v
	case ParamBool.ListOf():
		var v []bool
		err = dec.Decode(&v)
		p.Value = v
	case ParamDouble.ListOf():
		var v []float64
		err = dec.Decode(&v)
		p.Value = v
	case ParamInt.ListOf():
		var ns []json.Number
		if err = dec.Decode(&ns); err == nil {
			out := make([]int32, len(ns))
			for i, n := range ns {
				var v any
				if v, err = decodeInteger(n, ParamInt); err != nil {
					break
				}
				out[i] = v.(int32)
			}
			p.Value = out
		}
	case ParamLong.ListOf():
		var ns []json.Number
		if err = dec.Decode(&ns); err == nil {
			out := make([]int64, len(ns))
			for i, n := range ns {
				var v any
				if v, err = decodeInteger(n, ParamLong); err != nil {
					break
				}
				out[i] = v.(int64)
			}
			p.Value = out
		}
	case ParamPojo.ListOf():
		var v []map[string]any
		if err = dec.Decode(&v); err == nil {
			out := make([]schema.Pojo, len(v))
			for i, m := range v {
				out[i] = m
			}
			p.Value = out
		}
	}
	if err != nil {
		return fmt.Errorf("invalid value for parameter type ?%s: %w", raw.Type, err)
	}
	return nil
}

func decodeInteger(n json.Number, t ParamType) (any, error) {
	v, err := n.Int64()
	if err != nil {
		return nil, err
	}
	if t == ParamInt {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fmt.Errorf("%d overflows int", v)
		}
		return int32(v), nil
	}
	return v, nil
}
