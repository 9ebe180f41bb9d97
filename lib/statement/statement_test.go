package statement

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vmCategory(t *testing.T) *schema.Category {
	t.Helper()
	reg := schema.NewRegistry()
	cat, err := reg.Define("vm-info", "VmInfo", []schema.Key{
		schema.KeyAgentID,
		schema.KeyVmID,
		schema.NewKey("startTime", schema.KeyTypeLong),
		schema.NewKey("stopTime", schema.KeyTypeLong),
	}, []string{"agentId", "vmId"})
	require.NoError(t, err)
	return cat
}

func parse(t *testing.T, cat *schema.Category, text string) (*Parsed, error) {
	t.Helper()
	return Parse(schema.NewStatementDescriptor(cat, text))
}

func TestParseValidStatements(t *testing.T) {
	cat := vmCategory(t)
	tests := []struct {
		text      string
		kind      Kind
		numParams int
	}{
		{"QUERY vm-info", KindQuery, 0},
		{"QUERY vm-info WHERE 'agentId' = ?s", KindQuery, 1},
		{"QUERY vm-info WHERE 'agentId' = ?s AND 'startTime' > ?l SORT 'startTime' DSC LIMIT 10", KindQuery, 2},
		{"QUERY vm-info SORT ?s ASC , 'vmId' DSC LIMIT ?i", KindQuery, 2},
		{"QUERY vm-info LIMIT 1", KindQuery, 0},
		{"QUERY-COUNT vm-info WHERE 'agentId' = ?s", KindQueryCount, 1},
		{"QUERY-COUNT(vmId) vm-info", KindQueryCount, 0},
		{"QUERY-DISTINCT(agentId) vm-info", KindQueryDistinct, 0},
		{"ADD vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l , 'stopTime' = -1l", KindAdd, 3},
		{"REPLACE vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l , 'stopTime' = ?l WHERE 'vmId' = ?s", KindReplace, 5},
		{"UPDATE vm-info SET 'stopTime' = ?l WHERE 'vmId' = ?s", KindUpdate, 2},
		{"REMOVE vm-info WHERE 'agentId' = ?s", KindRemove, 1},
		{"REMOVE vm-info", KindRemove, 0},
		{"QUERY vm-info WHERE NOT 'agentId' = 'a' OR ?s != true", KindQuery, 1},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			p, err := parse(t, cat, tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, p.Kind)
			assert.Equal(t, tc.numParams, p.NumParams)
		})
	}
}

func TestParseRejectsInvalidStatements(t *testing.T) {
	cat := vmCategory(t)
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"unknown type", "SELECT vm-info"},
		{"wrong category", "QUERY agent-info"},
		{"trailing tokens", "QUERY vm-info WHERE 'agentId' = ?s foo"},
		{"missing operator", "QUERY vm-info WHERE 'agentId' ?s"},
		{"dangling and", "QUERY vm-info WHERE 'agentId' = ?s AND"},
		{"unquoted key", "QUERY vm-info WHERE agentId = ?s"},
		{"list in where", "QUERY vm-info WHERE 'agentId' = ?s["},
		{"pojo in where", "QUERY vm-info WHERE 'agentId' = ?p"},
		{"unknown param type", "QUERY vm-info WHERE 'agentId' = ?x"},
		{"sort param not string", "QUERY vm-info SORT ?i ASC"},
		{"bad sort order", "QUERY vm-info SORT 'vmId' UP"},
		{"limit param not int", "QUERY vm-info LIMIT ?l"},
		{"limit literal not int", "QUERY vm-info LIMIT 'ten'"},
		{"negative limit", "QUERY vm-info LIMIT -1"},
		{"illegal literal", "QUERY vm-info WHERE 'vmId' = 1.5"},
		{"query with set", "QUERY vm-info SET 'vmId' = ?s"},
		{"distinct without key", "QUERY-DISTINCT vm-info"},
		{"unknown aggregate key", "QUERY-COUNT(nope) vm-info"},
		{"add with where", "ADD vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l , 'stopTime' = ?l WHERE 'vmId' = ?s"},
		{"add missing key", "ADD vm-info SET 'agentId' = ?s"},
		{"replace without where", "REPLACE vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l , 'stopTime' = ?l"},
		{"update without where", "UPDATE vm-info SET 'stopTime' = ?l"},
		{"update unknown key", "UPDATE vm-info SET 'nope' = ?l WHERE 'vmId' = ?s"},
		{"update free key", "UPDATE vm-info SET ?s = ?l WHERE 'vmId' = ?s"},
		{"remove with set", "REMOVE vm-info SET 'vmId' = ?s"},
		{"write with sort", "REMOVE vm-info SORT 'vmId' ASC"},
		{"write with limit", "REMOVE vm-info LIMIT 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, cat, tc.text)
			var perr *ParseError
			require.Error(t, err)
			assert.True(t, errors.As(err, &perr), "expected *ParseError, got %T", err)
		})
	}
}

func TestOperatorPrecedence(t *testing.T) {
	cat := vmCategory(t)
	p, err := parse(t, cat, "QUERY vm-info WHERE 'a' = 1 OR 'b' = 2 AND NOT 'c' = 3")
	require.NoError(t, err)

	or, ok := p.Where.(*Or)
	require.True(t, ok, "top level must be OR, got %s", p.Where)
	and, ok := or.Right.(*And)
	require.True(t, ok, "right side must be AND, got %s", or.Right)
	_, ok = and.Right.(*Not)
	assert.True(t, ok, "NOT must bind tighter than AND")
}

func TestLiteralTypes(t *testing.T) {
	cat := vmCategory(t)
	p, err := parse(t, cat, "QUERY vm-info WHERE 'a' = 'x' AND 'b' = 7 AND 'c' = 7l AND 'd' = false")
	require.NoError(t, err)

	var got []any
	Walk(p.Where, func(e Expression) bool {
		if c, ok := e.(*Comparison); ok {
			got = append(got, c.Right.(Literal).Value)
		}
		return true
	})
	assert.Equal(t, []any{"x", int32(7), int64(7), false}, got)
}

func TestPatchQuery(t *testing.T) {
	cat := vmCategory(t)
	p, err := parse(t, cat, "QUERY vm-info WHERE 'agentId' = ?s AND 'startTime' > ?l SORT ?s DSC LIMIT ?i")
	require.NoError(t, err)
	assert.Equal(t, []ParamType{ParamString, ParamLong, ParamString, ParamInt}, p.ParamTypes())

	stmt, err := p.Patch([]Param{StringParam("agent-1"), LongParam(100), StringParam("startTime"), IntParam(5)})
	require.NoError(t, err)

	q, ok := stmt.(*Query)
	require.True(t, ok)
	assert.Equal(t, &And{
		Left:  Equal("agentId", "agent-1"),
		Right: Compare("startTime", OpGreater, int64(100)),
	}, q.Where)
	assert.Equal(t, []Sort{{Key: "startTime", Order: Descending}}, q.Sort)
	assert.Equal(t, 5, q.Limit)
	assert.True(t, q.Descriptor().Equal(p.Descriptor))

	// the parsed statement keeps its placeholders
	_, isPlaceholder := p.Where.(*And).Left.(*Comparison).Right.(Placeholder)
	assert.True(t, isPlaceholder)
}

func TestPatchWrite(t *testing.T) {
	cat := vmCategory(t)
	p, err := parse(t, cat, "UPDATE vm-info SET 'stopTime' = ?l WHERE 'vmId' = ?s")
	require.NoError(t, err)

	stmt, err := p.Patch([]Param{LongParam(42), StringParam("vm-1")})
	require.NoError(t, err)

	w, ok := stmt.(*Write)
	require.True(t, ok)
	assert.Equal(t, KindUpdate, w.Kind)
	assert.Equal(t, schema.Pojo{"stopTime": int64(42)}, w.Values())
	assert.Equal(t, Equal("vmId", "vm-1"), w.Where)
}

func TestPatchRejectsBadParameters(t *testing.T) {
	cat := vmCategory(t)
	p, err := parse(t, cat, "QUERY vm-info WHERE 'agentId' = ?s AND 'startTime' > ?l")
	require.NoError(t, err)

	tests := []struct {
		name   string
		params []Param
	}{
		{"too few", []Param{StringParam("a")}},
		{"too many", []Param{StringParam("a"), LongParam(1), LongParam(2)}},
		{"wrong tag", []Param{StringParam("a"), IntParam(1)}},
		{"tag and value disagree", []Param{StringParam("a"), {Type: ParamLong, Value: "1"}}},
		{"nil value", []Param{StringParam("a"), {Type: ParamLong}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Patch(tc.params)
			var perr *PatchError
			assert.True(t, errors.As(err, &perr), "expected *PatchError, got %v", err)
		})
	}
}

func TestPatchRejectsNegativeLimit(t *testing.T) {
	cat := vmCategory(t)
	p, err := parse(t, cat, "QUERY vm-info LIMIT ?i")
	require.NoError(t, err)

	_, err = p.Patch([]Param{IntParam(-1)})
	var perr *PatchError
	assert.True(t, errors.As(err, &perr), "expected *PatchError, got %v", err)

	stmt, err := p.Patch([]Param{IntParam(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, stmt.(*Query).Limit)
}

func TestParamJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Param
	}{
		{`{"type":"s","value":"x"}`, StringParam("x")},
		{`{"type":"i","value":3}`, IntParam(3)},
		{`{"type":"l","value":9007199254740993}`, LongParam(9007199254740993)},
		{`{"type":"b","value":true}`, BoolParam(true)},
		{`{"type":"d","value":1.5}`, DoubleParam(1.5)},
		{`{"type":"s[","value":["a","b"]}`, StringListParam([]string{"a", "b"})},
		{`{"type":"l[","value":[1,2]}`, LongListParam([]int64{1, 2})},
		{`{"type":"p","value":{"k":"v"}}`, PojoParam(schema.Pojo{"k": "v"})},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			var p Param
			require.NoError(t, json.Unmarshal([]byte(tc.in), &p))
			assert.Equal(t, tc.want, p)
			assert.NoError(t, p.Validate())
		})
	}

	for _, bad := range []string{
		`{"type":"q","value":1}`,
		`{"type":"i","value":3000000000}`,
		`{"type":"i","value":1.5}`,
		`{"type":"s","value":1}`,
	} {
		var p Param
		assert.Error(t, json.Unmarshal([]byte(bad), &p), bad)
	}
}

func TestNewAnd(t *testing.T) {
	a := Equal("agentId", "x")
	b := Compare("timeStamp", OpGreater, int64(100))
	assert.Equal(t, a, NewAnd(a, nil))
	assert.Equal(t, b, NewAnd(nil, b))
	assert.Equal(t, &And{Left: a, Right: b}, NewAnd(a, b))
	assert.Equal(t, "'agentId' IN ['a', 'b']", NewIn("agentId", []string{"a", "b"}).String())
}
