// Package server implements the RPC server of the gateway.
//
// The server decodes every request, checks that the caller holds the role of
// the message type and hands the request to the adapter of its type. Adapters
// report failures as response codes (prepare and statement codes) or as a
// transport status (forbidden, unavailable, bad request).
//
// Key Components:
//
//   - IRPCServerAdapter: Interface of the adapters. NewStatementServerAdapter
//     handles categories, statements, queries, paging and writes,
//     NewFileServerAdapter handles blobs and agent purges and
//     NewTokenServerAdapter handles command channel tokens.
//
//   - Components: The statement cache, write queue, cursor sessions, token
//     authority and storage the adapters work with. A missing component
//     makes its operations answer with StatusUnavailable.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Query results pass the authorization overlay of the caller before they reach
// the storage. A caller that may not see any result gets an empty page and the
// storage is not asked at all.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:  "0.0.0.0:8080",
//	  Storage:   common.StorageSQLite,
//	  DataDir:   "data",
//	  TrustFile: "trust.yaml",
//	  LogLevel:  "info",
//	}
//
//	users, _ := auth.LoadUsers("users.yaml")
//	s := server.NewRPCServer(
//	  config,
//	  http.NewHttpServerTransport(users),
//	  serializer.NewJSONSerializer(),
//	)
//
//	// Blocks until SIGINT or SIGTERM, then drains the write queue
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server handles concurrent requests. Writes of all callers are applied
//	by a single worker in the order they were accepted.
package server
