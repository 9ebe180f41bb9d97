package server

import (
	"fmt"

	"github.com/ValentinKolb/dGate/rpc/common"
)

// NewTokenServerAdapter creates the adapter for command channel tokens
func NewTokenServerAdapter() IRPCServerAdapter {
	return &tokenServerAdapter{}
}

type tokenServerAdapter struct{}

func (adapter *tokenServerAdapter) MessageTypes() []common.MessageType {
	return []common.MessageType{common.MsgTGenerateToken, common.MsgTVerifyToken}
}

func (adapter *tokenServerAdapter) Handle(call Call, c *Components) *common.Message {
	if c.Tokens == nil {
		return unavailable()
	}
	req := call.Msg
	action := req.Name

	switch req.MsgType {
	case common.MsgTGenerateToken:
		if !call.Principal.CanGrantAction(action) {
			return forbidden("%s may not grant action %q", call.Principal.Name, action)
		}
		tok, err := c.Tokens.Issue(req.Nonce, action)
		if err != nil {
			Logger.Errorf("failed to issue token: %v", err)
			return common.NewErrorResponse(common.StatusInternal, err.Error())
		}
		return common.NewGenerateTokenResponse(tok)

	case common.MsgTVerifyToken:
		if !c.Tokens.Verify(req.Nonce, action, req.Value) {
			return forbidden("token for action %q did not verify", action)
		}
		return common.NewVerifyTokenResponse(true)

	default:
		return common.NewErrorResponse(common.StatusBadRequest,
			fmt.Sprintf("RPC TokenAdapter - Unsupported message type: %s", req.MsgType))
	}
}
