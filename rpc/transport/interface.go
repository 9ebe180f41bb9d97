package transport

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dGate/lib/auth"
	"github.com/ValentinKolb/dGate/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// Request is an authenticated request as delivered by a server transport
type Request struct {
	// Body is the serialized request message
	Body []byte
	// Principal is the authenticated caller, never nil
	Principal *auth.Principal
	// SessionID identifies the client session the request belongs to
	SessionID string
}

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It returns the serialized response and the status the transport reports
type ServerHandleFunc func(req Request) (resp []byte, status common.Status)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when an authenticated request is received
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and listens for incoming requests
	// It blocks until the transport is shut down
	Listen(config common.ServerConfig) error
	// Shutdown stops accepting requests and waits for running ones
	Shutdown(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	// A response with a status other than StatusOK is returned as *StatusError
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}

// StatusError is returned by client transports if the server did not answer
// with StatusOK. Body holds the serialized error message if the server sent one.
type StatusError struct {
	Status common.Status
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport status: %s", e.Status)
}
