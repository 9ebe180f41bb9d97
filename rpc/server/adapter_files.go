package server

import (
	"fmt"

	"github.com/ValentinKolb/dGate/lib/writequeue"
	"github.com/ValentinKolb/dGate/rpc/common"
)

// NewFileServerAdapter creates the adapter for blob storage and agent purges.
// Saves and purges go through the write queue, loads read the storage directly.
func NewFileServerAdapter() IRPCServerAdapter {
	return &fileServerAdapter{}
}

type fileServerAdapter struct{}

func (adapter *fileServerAdapter) MessageTypes() []common.MessageType {
	return []common.MessageType{common.MsgTPurge, common.MsgTSaveFile, common.MsgTLoadFile}
}

func (adapter *fileServerAdapter) Handle(call Call, c *Components) *common.Message {
	req := call.Msg

	switch req.MsgType {
	case common.MsgTPurge:
		if c.Writes == nil {
			return unavailable()
		}
		if req.AgentID == "" {
			return common.NewErrorResponse(common.StatusBadRequest, "missing agent id")
		}
		if err := c.Writes.Submit(writequeue.PurgeOp(req.AgentID)); err != nil {
			return common.NewErrorResponse(common.StatusUnavailable, err.Error())
		}
		Logger.Infof("%s purged agent %s", call.Principal.Name, req.AgentID)
		return common.NewAckResponse(common.MsgTPurge)

	case common.MsgTSaveFile:
		if c.Writes == nil {
			return unavailable()
		}
		if !call.Principal.CanWriteFile(req.Name) {
			return forbidden("%s may not write file %q", call.Principal.Name, req.Name)
		}
		if err := c.Writes.Submit(writequeue.SaveFileOp(req.Name, req.Value)); err != nil {
			return common.NewErrorResponse(common.StatusUnavailable, err.Error())
		}
		return common.NewAckResponse(common.MsgTSaveFile)

	case common.MsgTLoadFile:
		if c.Storage == nil {
			return unavailable()
		}
		if !call.Principal.CanReadFile(req.Name) {
			return forbidden("%s may not read file %q", call.Principal.Name, req.Name)
		}
		data, ok, err := c.Storage.LoadFile(req.Name)
		if err != nil {
			Logger.Errorf("failed to load file %q: %v", req.Name, err)
			return common.NewErrorResponse(common.StatusInternal, err.Error())
		}
		return common.NewLoadFileResponse(data, ok)

	default:
		return common.NewErrorResponse(common.StatusBadRequest,
			fmt.Sprintf("RPC FileAdapter - Unsupported message type: %s", req.MsgType))
	}
}
