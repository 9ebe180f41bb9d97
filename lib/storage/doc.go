// Package storage defines the interface of the backing store that bound
// statements are executed against, together with the cursor abstraction used
// to stream query results and a unified error type.
//
// Key Components:
//
//   - IStorage Interface: registers categories, prepares statement
//     descriptors, executes bound queries and writes, purges the data of an
//     agent and stores named blobs. The gateway never talks to a database
//     directly, it only talks to an IStorage.
//
//   - Cursor: a forward only iterator over query results. The package
//     provides a slice backed cursor for materialized results and an empty
//     cursor that is handed out whenever a query must not reach the backend
//     (for example if the caller is not entitled to see any rows).
//
//   - Error System: storage errors carry a RetCode so callers can tell an
//     unknown category apart from an internal failure.
//
// Implementations:
//
//   - Memory Store (mstore): keeps all rows in concurrent maps. Nothing is
//     persisted. Available in "github.com/ValentinKolb/dGate/lib/storage/mstore".
//
//   - SQLite Store (sqlstore): one table per category in a SQLite database.
//     Available in "github.com/ValentinKolb/dGate/lib/storage/sqlstore".
//
// Both implementations share the semantics of the statement kinds: ADD inserts
// a row, REPLACE removes all rows matching the where clause and inserts the set
// list, UPDATE changes the set keys of all matching rows and REMOVE deletes all
// matching rows. QUERY-COUNT yields a single row {"count": n} and
// QUERY-DISTINCT yields a single row {"key": k, "values": [...]}.
package storage
