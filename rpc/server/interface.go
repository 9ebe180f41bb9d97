package server

import (
	"github.com/ValentinKolb/dGate/lib/auth"
	"github.com/ValentinKolb/dGate/rpc/common"
)

// Call is a decoded request together with the identity of its caller
type Call struct {
	Msg       *common.Message
	Principal *auth.Principal
	SessionID string
}

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// The role required for the message type was checked by the server
	// Failures are reported through the response code or the response status
	Handle(call Call, c *Components) (resp *common.Message)
	// MessageTypes returns the message types the adapter handles
	MessageTypes() []common.MessageType
}
