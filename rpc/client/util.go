package client

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/ValentinKolb/dGate/rpc/serializer"
	"github.com/ValentinKolb/dGate/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed to talk to a gateway
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used by the client to send requests
// It takes a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
func invokeRPCRequest(req *common.Message, t transport.IRPCClientTransport, s serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := s.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := t.Send(reqBytes)
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return nil, statusError(statusErr, s)
	}
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	err = s.Deserialize(respBytes, resp)
	if err != nil {
		return nil, fmt.Errorf("RPC Client - Error: %s", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, fmt.Errorf("RPC Client - Error: %s", resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC Client - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}

// statusError converts a transport status into one of the status errors,
// keeping the message of the server if the body carries one
func statusError(e *transport.StatusError, s serializer.IRPCSerializer) error {
	var sentinel error
	switch e.Status {
	case common.StatusBadRequest:
		sentinel = ErrBadRequest
	case common.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case common.StatusForbidden:
		sentinel = ErrForbidden
	case common.StatusUnavailable:
		sentinel = ErrUnavailable
	default:
		sentinel = ErrInternal
	}

	var msg common.Message
	if len(e.Body) > 0 && s.Deserialize(e.Body, &msg) == nil && msg.Err != "" {
		return fmt.Errorf("%w: %s", sentinel, msg.Err)
	}
	return sentinel
}
