// Package rpc provides the request layer of the gateway. It connects the
// clients to the statement cache, the cursors, the write queue and the token
// authority of a gateway server.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, response codes, configuration structures,
//     and logging.
//
//   - transport: Network communication abstractions. The HTTP implementation
//     authenticates every request and binds it to a client session.
//
//   - serializer: Message serialization (JSON, GOB) for converting between
//     Message objects and byte arrays.
//
//   - client: A typed client that registers categories, prepares statements,
//     pages through query results and recovers from server restarts.
//
//   - server: The RPC server that checks roles, dispatches requests to its
//     adapters and maps failures to response codes.
package rpc
