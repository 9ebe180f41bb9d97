// Package cmd implements the command-line interface of the dGate storage
// gateway. It provides a hierarchical command structure with operations for
// running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the dGate server
//   - stmt: Commands for registering categories and running statements (query, write, purge, files, perf)
//   - token: Commands for command channel tokens (generate, verify)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//   - dgate: The main package of the dgate binary
//
// See dgate -help for a list of all commands.
package cmd
