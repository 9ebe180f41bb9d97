// Package cursor keeps partially consumed query results alive between
// requests so clients can page through them.
//
// A Manager belongs to one client session. Put stores a result stream and
// returns a cursor id, GetBatch hands out the next rows of a stored stream.
// Streams that are exhausted are removed automatically, streams that were not
// accessed for longer than the timeout are closed by a background sweep.
//
// Sessions maps session ids to their Manager and closes the Managers of
// sessions that stayed idle.
//
// Concurrent GetBatch calls for the same cursor id are not serialized, a
// client is expected to fetch the pages of one cursor sequentially.
package cursor
