package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dGate/lib/auth"
	"github.com/ValentinKolb/dGate/lib/cursor"
	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statecache"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/stats"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/ValentinKolb/dGate/lib/writequeue"
	"github.com/ValentinKolb/dGate/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	categoriesRegistered = stats.Counter("dgate_categories_registered_total")
	statementsPrepared   = stats.Counter("dgate_statements_prepared_total")
	queriesDenied        = stats.Counter("dgate_queries_denied_total")
	queryFailures        = stats.Counter("dgate_query_failures_total")
)

// NewStatementServerAdapter creates the adapter for category registration,
// statement preparation, queries, paging and writes
func NewStatementServerAdapter() IRPCServerAdapter {
	return &statementServerAdapter{
		queryTimer: stats.Timer("server.query"),
	}
}

type statementServerAdapter struct {
	queryTimer gometrics.Timer
}

func (adapter *statementServerAdapter) MessageTypes() []common.MessageType {
	return []common.MessageType{
		common.MsgTRegisterCategory,
		common.MsgTPrepareStatement,
		common.MsgTQueryExecute,
		common.MsgTGetMore,
		common.MsgTWriteExecute,
	}
}

func (adapter *statementServerAdapter) Handle(call Call, c *Components) *common.Message {
	req := call.Msg

	switch req.MsgType {
	case common.MsgTRegisterCategory:
		return adapter.registerCategory(req, c)
	case common.MsgTPrepareStatement:
		return adapter.prepare(req, c)
	case common.MsgTQueryExecute:
		return adapter.query(call, c)
	case common.MsgTGetMore:
		return adapter.getMore(call, c)
	case common.MsgTWriteExecute:
		return adapter.write(req, c)
	default:
		return common.NewErrorResponse(common.StatusBadRequest,
			fmt.Sprintf("RPC StatementAdapter - Unsupported message type: %s", req.MsgType))
	}
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (adapter *statementServerAdapter) registerCategory(req *common.Message, c *Components) *common.Message {
	if c.Categories == nil {
		return unavailable()
	}
	if req.Category == nil {
		return common.NewErrorResponse(common.StatusBadRequest, "missing category")
	}

	handle, err := c.Categories.Register(*req.Category)
	switch {
	case err == nil:
		categoriesRegistered.Inc()
		return common.NewRegisterCategoryResponse(handle)
	case errors.Is(err, statecache.ErrForbidden):
		return common.NewErrorResponse(common.StatusForbidden, err.Error())
	case errors.Is(err, schema.ErrCategoryExists), errors.Is(err, statecache.ErrUnknownCategory):
		return common.NewErrorResponse(common.StatusBadRequest, err.Error())
	case errors.Is(err, statecache.ErrTooManyCategories):
		Logger.Errorf("category cache is full: %v", err)
		return common.NewErrorResponse(common.StatusUnavailable, err.Error())
	default:
		Logger.Errorf("failed to register category %q: %v", req.Category.Name, err)
		return common.NewErrorResponse(common.StatusInternal, err.Error())
	}
}

func (adapter *statementServerAdapter) prepare(req *common.Message, c *Components) *common.Message {
	if c.Categories == nil || c.Statements == nil {
		return unavailable()
	}

	category, err := c.Categories.Lookup(req.Handle)
	if err != nil {
		Logger.Debugf("prepare against unknown category %s: %v", req.Handle, err)
		return common.NewPrepareResponse(common.CodeCategoryOutOfSync, statecache.SharedStateId{}, 0)
	}

	holder, err := c.Statements.Prepare(schema.NewStatementDescriptor(category, req.Statement))
	if err != nil {
		var parseErr *statement.ParseError
		var storageErr *storage.Error
		switch {
		case errors.Is(err, statecache.ErrIllegalStatement):
			return common.NewPrepareResponse(common.CodeIllegalStatement, statecache.SharedStateId{}, 0)
		case errors.As(err, &parseErr):
			return common.NewPrepareResponse(common.CodeDescriptorParseFailed, statecache.SharedStateId{}, 0)
		case errors.As(err, &storageErr) && storageErr.Code == storage.RetCUnknownCategory:
			return common.NewPrepareResponse(common.CodeCategoryOutOfSync, statecache.SharedStateId{}, 0)
		case errors.Is(err, statecache.ErrTooManyStatements):
			Logger.Errorf("statement cache is full: %v", err)
			return common.NewErrorResponse(common.StatusUnavailable, err.Error())
		default:
			Logger.Warningf("failed to prepare %q: %v", req.Statement, err)
			return common.NewPrepareResponse(common.CodeDescriptorParseFailed, statecache.SharedStateId{}, 0)
		}
	}

	statementsPrepared.Inc()
	return common.NewPrepareResponse(common.CodePrepareSuccess, holder.ID, holder.NumParams())
}

func (adapter *statementServerAdapter) query(call Call, c *Components) *common.Message {
	if c.Statements == nil || c.Storage == nil || c.Cursors == nil {
		return unavailable()
	}
	req := call.Msg

	bound, code := bind(req, c)
	if code != common.CodeSuccess {
		return common.NewQueryResponse(code, nil, cursor.NotStored, false)
	}
	query, ok := bound.(*statement.Query)
	if !ok {
		return common.NewQueryResponse(common.CodeIllegalPatch, nil, cursor.NotStored, false)
	}

	// Restrict the query to what the caller may see
	query, allowed := auth.Overlay(auth.NewFilterChain(call.Principal).Apply(query), query)

	var stream storage.Cursor
	if !allowed {
		queriesDenied.Inc()
		Logger.Debugf("%s may not see any result of %s", call.Principal, bound.Descriptor())
		stream = storage.EmptyCursor()
	} else {
		start := time.Now()
		var err error
		stream, err = c.Storage.ExecuteQuery(query)
		adapter.queryTimer.UpdateSince(start)
		if err != nil {
			queryFailures.Inc()
			Logger.Errorf("query %s failed: %v", query, err)
			return common.NewQueryResponse(common.CodeQueryFailure, nil, cursor.NotStored, false)
		}
	}

	rows, err := cursor.ReadBatch(stream, c.batchSize(req.BatchSize))
	if err != nil {
		stream.Close()
		queryFailures.Inc()
		Logger.Errorf("reading result of %s failed: %v", query, err)
		return common.NewQueryResponse(common.CodeQueryFailure, nil, cursor.NotStored, false)
	}

	// Put closes an exhausted stream and returns NotStored
	id := c.Cursors.Get(call.SessionID).Put(stream)
	return common.NewQueryResponse(common.CodeSuccess, rows, id, id != cursor.NotStored)
}

func (adapter *statementServerAdapter) getMore(call Call, c *Components) *common.Message {
	if c.Cursors == nil || c.Statements == nil {
		return unavailable()
	}
	req := call.Msg

	// cursors do not outlive the server, a stale statement means the cursor is gone
	if _, err := c.Statements.Resolve(req.Handle); err != nil {
		Logger.Debugf("rejected get more of cursor %d for statement %s: %v", req.CursorID, req.Handle, err)
		return common.NewGetMoreResponse(common.CodeBadServerToken, nil, req.CursorID, false)
	}

	if req.CursorID == cursor.NotStored {
		return common.NewGetMoreResponse(common.CodeGetMoreNullCursor, nil, req.CursorID, false)
	}

	rows, hasMore, err := c.Cursors.Get(call.SessionID).GetBatch(req.CursorID, c.batchSize(req.BatchSize))
	switch {
	case errors.Is(err, cursor.ErrNoSuchCursor):
		return common.NewGetMoreResponse(common.CodeGetMoreNullCursor, nil, req.CursorID, false)
	case err != nil:
		queryFailures.Inc()
		Logger.Errorf("reading cursor %d failed: %v", req.CursorID, err)
		return common.NewGetMoreResponse(common.CodeQueryFailure, nil, req.CursorID, false)
	}
	return common.NewGetMoreResponse(common.CodeSuccess, rows, req.CursorID, hasMore)
}

func (adapter *statementServerAdapter) write(req *common.Message, c *Components) *common.Message {
	if c.Statements == nil || c.Writes == nil {
		return unavailable()
	}

	bound, code := bind(req, c)
	if code != common.CodeSuccess {
		return common.NewWriteResponse(code)
	}
	w, ok := bound.(*statement.Write)
	if !ok {
		return common.NewWriteResponse(common.CodeIllegalPatch)
	}

	// Accepted means queued, the outcome of the write is only logged
	if err := c.Writes.Submit(writequeue.WriteOp(w)); err != nil {
		Logger.Warningf("write %s rejected: %v", w, err)
		return common.NewWriteResponse(common.CodeWriteGenericFailure)
	}
	return common.NewWriteResponse(common.CodeSuccess)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// bind resolves the statement handle of the request and patches in its parameters
func bind(req *common.Message, c *Components) (statement.Statement, int32) {
	holder, err := c.Statements.Resolve(req.Handle)
	if err != nil {
		// Unknown handles of the current epoch are treated like stale ones,
		// the client recovers by preparing again
		Logger.Debugf("rejected statement handle %s: %v", req.Handle, err)
		return nil, common.CodeBadServerToken
	}

	bound, err := holder.Parsed.Patch(req.Params)
	if err != nil {
		Logger.Debugf("failed to patch %s: %v", holder.Descriptor, err)
		return nil, common.CodeIllegalPatch
	}
	return bound, common.CodeSuccess
}

// batchSize returns the requested batch size or the configured default
func (c *Components) batchSize(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return cursor.DefaultBatchSize
}
