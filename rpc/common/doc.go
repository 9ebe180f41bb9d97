// Package common provides the data structures shared by the gateway server,
// the transports and the client.
//
// Key Components:
//
//   - Message: the single structure of every request and response. Which
//     fields are used depends on the MessageType. Factory functions build the
//     request and response of each operation.
//
//   - Response codes: statement requests answer with CodeSuccess or one of the
//     negative failure codes, prepare requests with their own code family.
//     Codes travel in the message, Status is the transport level outcome
//     (forbidden, unavailable, ...) and is mapped to the transport's own
//     status representation.
//
//   - ServerConfig and ClientConfig: configuration of the server and client
//     components, each with a sectioned String() for startup logs.
//
//   - Logger: custom logger factory for the dragonboat logger facade that all
//     packages log through.
package common
