// Package mstore implements an in-memory storage.IStorage. Every registered
// category is a table of rows kept in insertion order, all tables live in a
// concurrent map and every table is guarded by its own read-write lock so
// queries of one category never wait for writes to another one.
//
// Where expressions are evaluated row by row. Numbers compare by value
// regardless of their width, strings compare lexically and booleans order
// false before true. A missing key never matches a comparison except '!='.
// Sorting is stable, rows without a sort key come first.
//
// Data is stored entirely in memory and is not persisted between process
// restarts. The store is meant for tests, development and deployments that
// treat the gateway as a cache in front of agents that resend their data.
package mstore
