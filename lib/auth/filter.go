package auth

import (
	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
)

// ResultType classifies the outcome of an entitlement filter
type ResultType int

const (
	// ResultAll leaves the query unrestricted
	ResultAll ResultType = iota
	// ResultQueryExpression restricts the query with Expr
	ResultQueryExpression
	// ResultEmpty means the principal may see nothing
	ResultEmpty
)

func (t ResultType) String() string {
	switch t {
	case ResultAll:
		return "ALL"
	case ResultQueryExpression:
		return "QUERY_EXPRESSION"
	case ResultEmpty:
		return "EMPTY"
	default:
		return "UNKNOWN"
	}
}

// FilterResult is the outcome of an entitlement filter
type FilterResult struct {
	Type ResultType
	// Expr is only set for ResultQueryExpression
	Expr statement.Expression
}

// allOrParent passes the parent restriction on unchanged
func allOrParent(parent statement.Expression) FilterResult {
	if parent == nil {
		return FilterResult{Type: ResultAll}
	}
	return FilterResult{Type: ResultQueryExpression, Expr: parent}
}

// Metadata describes what a bound query asks for. AgentID and VmID are set if
// the where clause pins the key to a single value.
type Metadata struct {
	AgentID string
	VmID    string
}

// MetadataOf extracts the pinned agentId and vmId of a query. Only equality
// comparisons reachable through AND nodes pin a key.
func MetadataOf(q *statement.Query) Metadata {
	var md Metadata
	if q == nil {
		return md
	}
	var visit func(e statement.Expression)
	visit = func(e statement.Expression) {
		switch n := e.(type) {
		case *statement.And:
			visit(n.Left)
			visit(n.Right)
		case *statement.Comparison:
			if n.Op != statement.OpEqual {
				return
			}
			key, ok := n.Left.(statement.KeyRef)
			if !ok {
				return
			}
			lit, ok := n.Right.(statement.Literal)
			if !ok {
				return
			}
			val, ok := lit.Value.(string)
			if !ok {
				return
			}
			switch key.Name {
			case schema.KeyAgentID.Name:
				md.AgentID = val
			case schema.KeyVmID.Name:
				md.VmID = val
			}
		}
	}
	visit(q.Where)
	return md
}

// IFilter restricts a query on behalf of a principal
type IFilter interface {
	// Apply returns the restriction for the query, combined with the
	// restriction of the previous filter
	Apply(category *schema.Category, md Metadata, parent statement.Expression) FilterResult
}

// IdFilter restricts queries on categories that have a given key to the
// values granted to the principal
type IdFilter struct {
	key       string
	prefix    string
	principal *Principal
}

// NewAgentIdFilter restricts on the agentId key
func NewAgentIdFilter(p *Principal) *IdFilter {
	return &IdFilter{key: schema.KeyAgentID.Name, prefix: GrantAgentsReadPrefix, principal: p}
}

// NewVmIdFilter restricts on the vmId key
func NewVmIdFilter(p *Principal) *IdFilter {
	return &IdFilter{key: schema.KeyVmID.Name, prefix: GrantVmsReadPrefix, principal: p}
}

// Apply implements IFilter
func (f *IdFilter) Apply(category *schema.Category, md Metadata, parent statement.Expression) FilterResult {
	if f.principal.HasRole(f.prefix + grantAll) {
		return allOrParent(parent)
	}

	pinned := md.AgentID
	if f.key == schema.KeyVmID.Name {
		pinned = md.VmID
	}
	if pinned != "" {
		if f.principal.HasRole(f.prefix + pinned) {
			return allOrParent(parent)
		}
		return FilterResult{Type: ResultEmpty}
	}

	if category == nil {
		return allOrParent(parent)
	}
	if _, ok := category.Key(f.key); !ok {
		return allOrParent(parent)
	}

	granted := f.principal.Granted(f.prefix)
	if len(granted) == 0 {
		return FilterResult{Type: ResultEmpty}
	}
	in := statement.NewIn(f.key, granted)
	return FilterResult{Type: ResultQueryExpression, Expr: statement.NewAnd(parent, in)}
}

// FilterChain applies all entitlement filters of a principal in order
type FilterChain struct {
	principal *Principal
	filters   []IFilter
}

// NewFilterChain creates the default chain: agentId then vmId
func NewFilterChain(p *Principal) *FilterChain {
	return &FilterChain{
		principal: p,
		filters:   []IFilter{NewAgentIdFilter(p), NewVmIdFilter(p)},
	}
}

// Apply runs every filter, each one receives the restriction of its
// predecessor. The first EMPTY result ends the chain.
func (c *FilterChain) Apply(q *statement.Query) FilterResult {
	if c.principal.HasRole(RoleAdminReadAll) {
		return FilterResult{Type: ResultAll}
	}

	md := MetadataOf(q)
	var category *schema.Category
	if q != nil {
		category = q.Category
	}

	var parent statement.Expression
	for _, f := range c.filters {
		res := f.Apply(category, md, parent)
		switch res.Type {
		case ResultEmpty:
			return res
		case ResultQueryExpression:
			parent = res.Expr
		}
	}
	return allOrParent(parent)
}
