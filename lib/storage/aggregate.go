package storage

import "github.com/ValentinKolb/dGate/lib/schema"

// Keys of the rows produced by aggregate queries
const (
	AggregateCountField  = "count"
	AggregateKeyField    = "key"
	AggregateValuesField = "values"
)

// CountRow is the single result row of a QUERY-COUNT
func CountRow(n int64) schema.Pojo {
	return schema.Pojo{AggregateCountField: n}
}

// DistinctRow is the single result row of a QUERY-DISTINCT
func DistinctRow(key string, values []any) schema.Pojo {
	if values == nil {
		values = []any{}
	}
	return schema.Pojo{AggregateKeyField: key, AggregateValuesField: values}
}
