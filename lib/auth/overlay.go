package auth

import "github.com/ValentinKolb/dGate/lib/statement"

// Overlay applies a filter result to a query. It returns the query to run
// and false if the result is EMPTY, in which case nothing may be run and the
// caller answers with an empty result. The original query is never modified.
func Overlay(res FilterResult, q *statement.Query) (*statement.Query, bool) {
	switch res.Type {
	case ResultAll:
		return q, true
	case ResultQueryExpression:
		if res.Expr == nil {
			return q, true
		}
		return q.WithWhere(statement.NewAnd(res.Expr, q.Where)), true
	default:
		return nil, false
	}
}
