package stmt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dGate/lib/statement"
)

// parseParam parses a command line parameter of the form TYPE:VALUE, where
// TYPE is a parameter tag (s, i, l, b, d, p) optionally followed by "[" for
// a list. List values are comma separated, pojo values are JSON objects.
//
//	s:agent-1  l:42  b:true  s[:a,b,c  l[:1,2  p:{"vmId":"a"}
func parseParam(arg string) (statement.Param, error) {
	tag, value, ok := strings.Cut(arg, ":")
	if !ok {
		return statement.Param{}, fmt.Errorf("parameter %q is not of the form TYPE:VALUE", arg)
	}

	t, ok := statement.ParseParamType(tag)
	if !ok {
		return statement.Param{}, fmt.Errorf("unknown parameter type %q in %q", tag, arg)
	}

	var raw []byte
	switch {
	case t == statement.ParamString:
		raw, _ = json.Marshal(value)
	case t == statement.ParamString.ListOf():
		raw, _ = json.Marshal(splitList(value))
	case t == statement.ParamPojo.ListOf():
		raw = []byte("[" + value + "]")
	case t.IsList():
		raw = []byte("[" + strings.Join(splitList(value), ",") + "]")
	default:
		raw = []byte(value)
	}

	wire, err := json.Marshal(struct {
		Type  statement.ParamType `json:"type"`
		Value json.RawMessage     `json:"value"`
	}{t, raw})
	if err != nil {
		return statement.Param{}, fmt.Errorf("invalid value in %q: %v", arg, err)
	}

	var p statement.Param
	if err := json.Unmarshal(wire, &p); err != nil {
		return statement.Param{}, fmt.Errorf("invalid parameter %q: %v", arg, err)
	}
	return p, nil
}

func splitList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseParams(args []string) ([]statement.Param, error) {
	params := make([]statement.Param, 0, len(args))
	for _, arg := range args {
		p, err := parseParam(arg)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}
