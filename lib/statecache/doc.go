// Package statecache deduplicates category registrations and prepared
// statements for the lifetime of a server process and hands clients small
// epoch scoped handles instead of the full schema or statement text.
//
// Handles are SharedStateIds: a counter value paired with the server token,
// a random UUID generated once per process start. A client that presents a
// handle from an earlier process receives ErrEpochMismatch and has to
// register and prepare again, so a restarted server never honors handles
// that reference state it no longer holds.
//
// Both managers are a trust boundary. A category is only materialized if its
// name is on the trusted category list and a statement is only parsed if its
// text is on the trusted statement list. Rejected requests never reach the
// storage.
//
// Entries are never evicted. The number of entries is bounded by the trusted
// lists, every accepted category and statement is one of a finite set.
package statecache
