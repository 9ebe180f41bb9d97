// Package schema describes the shapes of the entities stored behind the
// gateway. Every other package references these descriptions by identity or
// by name.
//
// Key Components:
//
//   - Key: a named, typed attribute. Two keys with the same name are equal
//     regardless of their declared type.
//
//   - Category: a named set of keys plus the subset of keys that are indexed
//     and the name of the payload the category produces. A category never
//     changes after it was defined.
//
//   - Registry: the set of categories known to one server instance. Category
//     names are unique within a registry. Tests can create isolated registries.
//
//   - StatementDescriptor: a (category, statement text) pair, the unit the
//     statement cache deduplicates on.
//
//   - Pojo: one stored row, a map from key name to value.
//
// Aggregate views (counts and distinct values over an existing category) are
// synthesized with Category.Aggregate. They share name and keys with the base
// category but are never defined in a registry.
//
// Thread Safety:
//
//	Registry is safe for concurrent use. Key, Category and StatementDescriptor
//	are immutable values and can be shared freely.
package schema
