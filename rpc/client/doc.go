// Package client implements the RPC client of the gateway.
//
// A Client registers categories and prepares statements once and keeps their
// server handles. Handles are scoped to a server process: if the server
// answers with a stale handle code the client registers and prepares again
// and repeats the request once.
//
// Key Components:
//
//   - NewRPCClient: Factory function that connects the transport and returns a Client.
//
//   - Category, Statement: Registered categories and prepared statements.
//
//   - Cursor: Iterates over a query result and fetches further pages on demand.
//     Rows are converted to the declared key types of the category, so numbers
//     decoded by the JSON serializer arrive as int32, int64 or float64.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  Endpoints:     []string{"http://localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	  User:          "agent",
//	  Password:      "secret",
//	}
//
//	c, _ := client.NewRPCClient(config, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//
//	vms, _ := c.RegisterCategory(spec)
//	query, _ := c.Prepare(vms, "QUERY vm-info WHERE 'agentId' = ?s")
//
//	cur, _ := c.Query(query, 100, statement.StringParam("agent-1"))
//	for cur.HasNext() {
//	  row, err := cur.Next()
//	  ...
//	}
//
// Writes are acknowledged once the server has queued them, they are applied
// in the order they were accepted.
//
// Thread Safety:
//
//	A Client may be used from multiple goroutines. Cursors are not thread-safe.
package client
