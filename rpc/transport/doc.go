// Package transport defines the interfaces and abstractions for RPC
// communication between gateway clients and the server. It provides a common
// contract that transport implementations fulfill, so the server and client
// stay independent of the wire protocol.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management, credentials and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     authenticate callers, track client sessions and hand requests to the handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
//   - StatusError: Error of the client side for responses that are not OK.
package transport
