package server

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dGate/lib/auth"
	"github.com/ValentinKolb/dGate/lib/cursor"
	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statecache"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/ValentinKolb/dGate/lib/storage/mstore"
	"github.com/ValentinKolb/dGate/lib/trust"
	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/ValentinKolb/dGate/rpc/serializer"
	"github.com/ValentinKolb/dGate/rpc/transport"
	"github.com/google/uuid"
)

const (
	queryAll     = "QUERY vm-info SORT 'vmId' ASC"
	queryByAgent = "QUERY vm-info WHERE 'agentId' = ?s SORT 'vmId' ASC"
	addVM        = "ADD vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l"
	removeAll    = "REMOVE vm-info"
)

var vmSpec = schema.Spec{
	Name:    "vm-info",
	Payload: "VmInfo",
	Keys: []schema.KeySpec{
		{Name: "agentId", Type: schema.KeyTypeString, Indexed: true},
		{Name: "vmId", Type: schema.KeyTypeString, Indexed: true},
		{Name: "startTime", Type: schema.KeyTypeLong},
	},
}

// countingStorage counts the queries that reach the backing store
type countingStorage struct {
	storage.IStorage
	queries atomic.Int32
}

func (s *countingStorage) ExecuteQuery(q *statement.Query) (storage.Cursor, error) {
	s.queries.Add(1)
	return s.IStorage.ExecuteQuery(q)
}

// fixture is a server with in-memory components, requests bypass the transport
type fixture struct {
	server  *rpcServer
	c       *Components
	storage *countingStorage
	ser     serializer.IRPCSerializer
}

func newFixture(t *testing.T, config common.ServerConfig) *fixture {
	t.Helper()
	store := &countingStorage{IStorage: mstore.NewMemoryStore()}
	trusted := trust.New(
		[]string{"vm-info"},
		[]string{queryAll, queryByAgent, addVM, removeAll},
	)
	c := NewComponentsWith(store, trusted, config)
	t.Cleanup(func() { c.Close() })

	ser := serializer.NewJSONSerializer()
	return &fixture{
		server:  NewRPCServerWith(config, nil, ser, c),
		c:       c,
		storage: store,
		ser:     ser,
	}
}

// admin has every role of the gateway
func admin() *auth.Principal {
	return auth.NewPrincipal("admin",
		auth.RoleLogin,
		auth.RoleRegisterCategory,
		auth.RolePrepareStatement,
		auth.RoleRead,
		auth.RoleWrite,
		auth.RolePurge,
		auth.RoleSaveFile,
		auth.RoleLoadFile,
		auth.RoleCmdChannelGen,
		auth.RoleCmdChannelVerify,
		auth.RoleAdminReadAll,
		auth.GrantFilesReadAll,
		auth.GrantFilesWriteAll,
		auth.GrantCmdChannelPrefix+"dump-heap",
	)
}

func (f *fixture) call(t *testing.T, p *auth.Principal, msg *common.Message) (*common.Message, common.Status) {
	t.Helper()
	return f.callIn(t, "session-1", p, msg)
}

func (f *fixture) callIn(t *testing.T, session string, p *auth.Principal, msg *common.Message) (*common.Message, common.Status) {
	t.Helper()
	body, err := f.ser.Serialize(*msg)
	if err != nil {
		t.Fatalf("Failed to serialize request: %v", err)
	}
	raw, status := f.server.handle(transport.Request{Body: body, Principal: p, SessionID: session})
	var resp common.Message
	if err := f.ser.Deserialize(raw, &resp); err != nil {
		t.Fatalf("Failed to deserialize response: %v", err)
	}
	return &resp, status
}

func (f *fixture) register(t *testing.T) statecache.SharedStateId {
	t.Helper()
	resp, status := f.call(t, admin(), common.NewRegisterCategoryRequest(vmSpec))
	if status != common.StatusOK {
		t.Fatalf("Failed to register category: %s %s", status, resp.Err)
	}
	return resp.Handle
}

func (f *fixture) prepare(t *testing.T, category statecache.SharedStateId, text string) statecache.SharedStateId {
	t.Helper()
	resp, status := f.call(t, admin(), common.NewPrepareRequest(category, text))
	if status != common.StatusOK || resp.Code != common.CodePrepareSuccess {
		t.Fatalf("Failed to prepare %q: %s code %d", text, status, resp.Code)
	}
	return resp.Handle
}

// seed adds n vms, alternating between agent-1 and agent-2, and waits for the writes
func (f *fixture) seed(t *testing.T, category statecache.SharedStateId, n int) {
	t.Helper()
	add := f.prepare(t, category, addVM)
	before := f.c.Writes.Applied()
	for i := 0; i < n; i++ {
		agent := "agent-1"
		if i%2 == 1 {
			agent = "agent-2"
		}
		resp, _ := f.call(t, admin(), common.NewWriteRequest(add, []statement.Param{
			statement.StringParam(agent),
			statement.StringParam(string(rune('a' + i))),
			statement.LongParam(int64(i)),
		}))
		if resp.Code != common.CodeSuccess {
			t.Fatalf("Write %d not accepted: code %d", i, resp.Code)
		}
	}
	f.waitApplied(t, before+uint64(n))
}

func (f *fixture) waitApplied(t *testing.T, n uint64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for f.c.Writes.Applied() < n {
		select {
		case <-deadline:
			t.Fatalf("Timeout waiting for %d applied writes, got %d", n, f.c.Writes.Applied())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func vmIDs(rows []schema.Pojo) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		id, _ := r["vmId"].(string)
		ids = append(ids, id)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRegisterCategory(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})

	first := f.register(t)
	if again := f.register(t); again != first {
		t.Errorf("Expected same handle %s for same category, got %s", first, again)
	}
	if first.ServerToken != f.c.ServerToken {
		t.Errorf("Handle carries wrong server token")
	}

	t.Run("Untrusted", func(t *testing.T) {
		spec := vmSpec
		spec.Name = "secret-info"
		resp, status := f.call(t, admin(), common.NewRegisterCategoryRequest(spec))
		if status != common.StatusForbidden {
			t.Errorf("Expected forbidden, got %s (%s)", status, resp.Err)
		}
	})

	t.Run("MissingCategory", func(t *testing.T) {
		_, status := f.call(t, admin(), &common.Message{MsgType: common.MsgTRegisterCategory})
		if status != common.StatusBadRequest {
			t.Errorf("Expected bad request, got %s", status)
		}
	})
}

func TestPrepareStatement(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})
	category := f.register(t)

	t.Run("SameDescriptorSameHandle", func(t *testing.T) {
		a := f.prepare(t, category, queryAll)
		b := f.prepare(t, category, queryAll)
		if a != b {
			t.Errorf("Expected same handle, got %s and %s", a, b)
		}
		c := f.prepare(t, category, queryByAgent)
		if c == a {
			t.Errorf("Different statements must get different handles")
		}
	})

	t.Run("NumParams", func(t *testing.T) {
		resp, _ := f.call(t, admin(), common.NewPrepareRequest(category, addVM))
		if resp.NumParams != 3 {
			t.Errorf("Expected 3 free parameters, got %d", resp.NumParams)
		}
	})

	tests := []struct {
		name     string
		category statecache.SharedStateId
		text     string
		code     int32
	}{
		{"Untrusted", category, "QUERY vm-info LIMIT 1", common.CodeIllegalStatement},
		{"OtherEpoch", statecache.SharedStateId{ID: category.ID, ServerToken: uuid.New()}, queryAll, common.CodeCategoryOutOfSync},
		{"UnknownCategory", statecache.SharedStateId{ID: 99, ServerToken: category.ServerToken}, queryAll, common.CodeCategoryOutOfSync},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, status := f.call(t, admin(), common.NewPrepareRequest(tt.category, tt.text))
			if status != common.StatusOK {
				t.Fatalf("Expected OK status, got %s", status)
			}
			if resp.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, resp.Code)
			}
		})
	}
}

func TestPrepareParseFailure(t *testing.T) {
	store := mstore.NewMemoryStore()
	broken := "QUERY vm-info WHERE agentId = ?s"
	c := NewComponentsWith(store, trust.New([]string{"vm-info"}, []string{broken}), common.ServerConfig{})
	defer c.Close()
	f := &fixture{server: NewRPCServerWith(common.ServerConfig{}, nil, serializer.NewJSONSerializer(), c), c: c, ser: serializer.NewJSONSerializer()}

	category := f.register(t)
	resp, _ := f.call(t, admin(), common.NewPrepareRequest(category, broken))
	if resp.Code != common.CodeDescriptorParseFailed {
		t.Errorf("Expected DESCRIPTOR_PARSE_FAILED, got %d", resp.Code)
	}
}

func TestEpochInvalidation(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})
	category := f.register(t)
	query := f.prepare(t, category, queryAll)
	add := f.prepare(t, category, addVM)

	// The same ids issued by another server process
	staleQuery := statecache.SharedStateId{ID: query.ID, ServerToken: uuid.New()}
	staleAdd := statecache.SharedStateId{ID: add.ID, ServerToken: uuid.New()}

	resp, _ := f.call(t, admin(), common.NewQueryRequest(staleQuery, nil, 0))
	if resp.Code != common.CodeBadServerToken {
		t.Errorf("Expected BAD_STOKEN for query, got %d", resp.Code)
	}

	params := []statement.Param{statement.StringParam("a"), statement.StringParam("b"), statement.LongParam(1)}
	resp, _ = f.call(t, admin(), common.NewWriteRequest(staleAdd, params))
	if resp.Code != common.CodeBadServerToken {
		t.Errorf("Expected BAD_STOKEN for write, got %d", resp.Code)
	}

	if n := f.storage.queries.Load(); n != 0 {
		t.Errorf("Stale handles must not reach the storage, got %d queries", n)
	}

	t.Run("GetMore", func(t *testing.T) {
		f.seed(t, category, 3)
		resp, _ := f.call(t, admin(), common.NewQueryRequest(query, nil, 1))
		if !resp.HasMore {
			t.Fatalf("Expected a stored cursor")
		}
		cursorID := resp.CursorID

		resp, _ = f.call(t, admin(), common.NewGetMoreRequest(staleQuery, cursorID, 1))
		if resp.Code != common.CodeBadServerToken {
			t.Errorf("Expected BAD_STOKEN for get more, got %d", resp.Code)
		}
		if len(resp.Rows) != 0 {
			t.Errorf("Stale get more must not return rows")
		}

		resp, _ = f.call(t, admin(), common.NewGetMoreRequest(query, cursorID, 1))
		if resp.Code != common.CodeSuccess || len(resp.Rows) != 1 {
			t.Errorf("Cursor must stay readable with the current handle, got code %d and %d rows", resp.Code, len(resp.Rows))
		}
	})
}

func TestIllegalPatch(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})
	category := f.register(t)
	byAgent := f.prepare(t, category, queryByAgent)
	add := f.prepare(t, category, addVM)

	tests := []struct {
		name string
		msg  *common.Message
	}{
		{"MissingParam", common.NewQueryRequest(byAgent, nil, 0)},
		{"WrongType", common.NewQueryRequest(byAgent, []statement.Param{statement.IntParam(1)}, 0)},
		{"WriteAsQuery", common.NewQueryRequest(add, []statement.Param{statement.StringParam("a"), statement.StringParam("b"), statement.LongParam(1)}, 0)},
		{"QueryAsWrite", common.NewWriteRequest(byAgent, []statement.Param{statement.StringParam("a")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.call(t, admin(), tt.msg)
			if resp.Code != common.CodeIllegalPatch {
				t.Errorf("Expected ILLEGAL_PATCH, got %d", resp.Code)
			}
		})
	}
}

func TestPagination(t *testing.T) {
	f := newFixture(t, common.ServerConfig{BatchSize: 2})
	category := f.register(t)
	f.seed(t, category, 5)
	query := f.prepare(t, category, queryAll)

	resp, _ := f.call(t, admin(), common.NewQueryRequest(query, nil, 0))
	if resp.Code != common.CodeSuccess {
		t.Fatalf("Query failed with code %d", resp.Code)
	}
	if len(resp.Rows) != 2 || !resp.HasMore || resp.CursorID == cursor.NotStored {
		t.Fatalf("Expected first page of 2 with a cursor, got %d rows, more=%v, cursor=%d", len(resp.Rows), resp.HasMore, resp.CursorID)
	}

	ids := vmIDs(resp.Rows)
	cursorID := resp.CursorID
	for pages := 0; resp.HasMore; pages++ {
		if pages > 5 {
			t.Fatalf("Paging does not terminate")
		}
		resp, _ = f.call(t, admin(), common.NewGetMoreRequest(query, cursorID, 0))
		if resp.Code != common.CodeSuccess {
			t.Fatalf("GetMore failed with code %d", resp.Code)
		}
		ids = append(ids, vmIDs(resp.Rows)...)
	}

	if want := []string{"a", "b", "c", "d", "e"}; !equalStrings(ids, want) {
		t.Errorf("Expected %v, got %v", want, ids)
	}

	// The exhausted cursor is gone
	resp, _ = f.call(t, admin(), common.NewGetMoreRequest(query, cursorID, 0))
	if resp.Code != common.CodeGetMoreNullCursor {
		t.Errorf("Expected GET_MORE_NULL_CURSOR after exhaustion, got %d", resp.Code)
	}

	t.Run("SinglePageNotStored", func(t *testing.T) {
		resp, _ := f.call(t, admin(), common.NewQueryRequest(query, nil, 10))
		if len(resp.Rows) != 5 || resp.HasMore || resp.CursorID != cursor.NotStored {
			t.Errorf("Expected all rows without cursor, got %d rows, more=%v, cursor=%d", len(resp.Rows), resp.HasMore, resp.CursorID)
		}
	})

	t.Run("CursorsAreBoundToSession", func(t *testing.T) {
		resp, _ := f.callIn(t, "session-a", admin(), common.NewQueryRequest(query, nil, 1))
		if !resp.HasMore {
			t.Fatalf("Expected a stored cursor")
		}
		other, _ := f.callIn(t, "session-b", admin(), common.NewGetMoreRequest(query, resp.CursorID, 1))
		if other.Code != common.CodeGetMoreNullCursor {
			t.Errorf("Cursor of another session must not be readable, got code %d", other.Code)
		}
	})
}

func TestCursorExpiry(t *testing.T) {
	f := newFixture(t, common.ServerConfig{BatchSize: 1, CursorTimeout: 20 * time.Millisecond})
	category := f.register(t)
	f.seed(t, category, 3)
	query := f.prepare(t, category, queryAll)

	resp, _ := f.call(t, admin(), common.NewQueryRequest(query, nil, 0))
	if !resp.HasMore {
		t.Fatalf("Expected a stored cursor")
	}

	time.Sleep(60 * time.Millisecond)
	f.c.Cursors.Get("session-1").Sweep()

	resp, _ = f.call(t, admin(), common.NewGetMoreRequest(query, resp.CursorID, 0))
	if resp.Code != common.CodeGetMoreNullCursor {
		t.Errorf("Expected GET_MORE_NULL_CURSOR for expired cursor, got %d", resp.Code)
	}
}

func TestWriteOrdering(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})
	category := f.register(t)
	add := f.prepare(t, category, addVM)
	remove := f.prepare(t, category, removeAll)
	query := f.prepare(t, category, queryAll)

	before := f.c.Writes.Applied()
	f.call(t, admin(), common.NewWriteRequest(add, []statement.Param{statement.StringParam("agent-1"), statement.StringParam("x"), statement.LongParam(1)}))
	f.call(t, admin(), common.NewWriteRequest(remove, nil))
	f.call(t, admin(), common.NewWriteRequest(add, []statement.Param{statement.StringParam("agent-1"), statement.StringParam("y"), statement.LongParam(2)}))
	f.waitApplied(t, before+3)

	resp, _ := f.call(t, admin(), common.NewQueryRequest(query, nil, 0))
	if ids := vmIDs(resp.Rows); !equalStrings(ids, []string{"y"}) {
		t.Errorf("Writes were not applied in order, got %v", ids)
	}
}

func TestQueryOverlay(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})
	category := f.register(t)
	f.seed(t, category, 4)
	query := f.prepare(t, category, queryAll)
	byAgent := f.prepare(t, category, queryByAgent)

	reader := func(grants ...string) *auth.Principal {
		return auth.NewPrincipal("reader", append([]string{auth.RoleRead}, grants...)...)
	}

	tests := []struct {
		name      string
		principal *auth.Principal
		msg       *common.Message
		want      []string
		executes  bool
	}{
		{"Admin", admin(), common.NewQueryRequest(query, nil, 0), []string{"a", "b", "c", "d"}, true},
		{"AllAgentsAllVms", reader(auth.GrantAgentsReadAll, auth.GrantVmsReadAll), common.NewQueryRequest(query, nil, 0), []string{"a", "b", "c", "d"}, true},
		{"SingleAgent", reader(auth.GrantAgentsReadPrefix+"agent-1", auth.GrantVmsReadAll), common.NewQueryRequest(query, nil, 0), []string{"a", "c"}, true},
		{"SingleVm", reader(auth.GrantAgentsReadAll, auth.GrantVmsReadPrefix+"b"), common.NewQueryRequest(query, nil, 0), []string{"b"}, true},
		{"PinnedGrantedAgent", reader(auth.GrantAgentsReadPrefix+"agent-2", auth.GrantVmsReadAll), common.NewQueryRequest(byAgent, []statement.Param{statement.StringParam("agent-2")}, 0), []string{"b", "d"}, true},
		{"PinnedOtherAgent", reader(auth.GrantAgentsReadPrefix+"agent-2", auth.GrantVmsReadAll), common.NewQueryRequest(byAgent, []statement.Param{statement.StringParam("agent-1")}, 0), []string{}, false},
		{"NoGrants", reader(), common.NewQueryRequest(query, nil, 0), []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.storage.queries.Load()
			resp, status := f.call(t, tt.principal, tt.msg)
			if status != common.StatusOK || resp.Code != common.CodeSuccess {
				t.Fatalf("Query failed: %s code %d", status, resp.Code)
			}
			if ids := vmIDs(resp.Rows); !equalStrings(ids, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, ids)
			}
			if executed := f.storage.queries.Load() > before; executed != tt.executes {
				t.Errorf("Expected storage execution %v, got %v", tt.executes, executed)
			}
			if !tt.executes && (resp.HasMore || resp.CursorID != cursor.NotStored) {
				t.Errorf("Empty result must not store a cursor")
			}
		})
	}
}

func TestRoleChecks(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})
	category := f.register(t)
	query := f.prepare(t, category, queryAll)

	nobody := auth.NewPrincipal("nobody", auth.RoleLogin)
	requests := []*common.Message{
		common.NewRegisterCategoryRequest(vmSpec),
		common.NewPrepareRequest(category, queryAll),
		common.NewQueryRequest(query, nil, 0),
		common.NewGetMoreRequest(query, 0, 0),
		common.NewWriteRequest(query, nil),
		common.NewPurgeRequest("agent-1"),
		common.NewSaveFileRequest("f", []byte("x")),
		common.NewLoadFileRequest("f"),
		common.NewGenerateTokenRequest("n", "dump-heap"),
		common.NewVerifyTokenRequest("n", "dump-heap", []byte("x")),
	}
	for _, req := range requests {
		t.Run(req.MsgType.String(), func(t *testing.T) {
			resp, status := f.call(t, nobody, req)
			if status != common.StatusForbidden {
				t.Errorf("Expected forbidden, got %s", status)
			}
			if resp.MsgType != common.MsgTError {
				t.Errorf("Expected error message, got %s", resp.MsgType)
			}
		})
	}

	t.Run("Ping", func(t *testing.T) {
		resp, status := f.call(t, nobody, common.NewPingRequest())
		if status != common.StatusOK {
			t.Fatalf("Expected OK, got %s", status)
		}
		if resp.Handle.ServerToken != f.c.ServerToken || resp.Version != Version {
			t.Errorf("Unexpected ping response %+v", resp)
		}
	})

	t.Run("UnknownMessageType", func(t *testing.T) {
		_, status := f.call(t, admin(), &common.Message{MsgType: common.MsgTUnknown})
		if status != common.StatusBadRequest {
			t.Errorf("Expected bad request, got %s", status)
		}
	})

	t.Run("GarbageBody", func(t *testing.T) {
		_, status := f.server.handle(transport.Request{Body: []byte("{"), Principal: admin(), SessionID: "s"})
		if status != common.StatusBadRequest {
			t.Errorf("Expected bad request, got %s", status)
		}
	})
}

func TestMissingComponents(t *testing.T) {
	f := &fixture{
		server: NewRPCServerWith(common.ServerConfig{}, nil, serializer.NewJSONSerializer(), &Components{}),
		ser:    serializer.NewJSONSerializer(),
	}

	requests := []*common.Message{
		common.NewRegisterCategoryRequest(vmSpec),
		common.NewPrepareRequest(statecache.SharedStateId{}, queryAll),
		common.NewQueryRequest(statecache.SharedStateId{}, nil, 0),
		common.NewGetMoreRequest(statecache.SharedStateId{}, 0, 0),
		common.NewWriteRequest(statecache.SharedStateId{}, nil),
		common.NewPurgeRequest("agent-1"),
		common.NewSaveFileRequest("f", nil),
		common.NewLoadFileRequest("f"),
		common.NewGenerateTokenRequest("n", "dump-heap"),
		common.NewVerifyTokenRequest("n", "dump-heap", nil),
	}
	for _, req := range requests {
		t.Run(req.MsgType.String(), func(t *testing.T) {
			if _, status := f.call(t, admin(), req); status != common.StatusUnavailable {
				t.Errorf("Expected unavailable, got %s", status)
			}
		})
	}
}

func TestFiles(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})

	writer := auth.NewPrincipal("writer", auth.RoleSaveFile, auth.RoleLoadFile,
		auth.GrantFilesWritePrefix+"heap.hprof", auth.GrantFilesReadPrefix+"heap.hprof")

	before := f.c.Writes.Applied()
	if _, status := f.call(t, writer, common.NewSaveFileRequest("heap.hprof", []byte("dump"))); status != common.StatusOK {
		t.Fatalf("Save failed: %s", status)
	}
	f.waitApplied(t, before+1)

	resp, status := f.call(t, writer, common.NewLoadFileRequest("heap.hprof"))
	if status != common.StatusOK || !resp.Ok || string(resp.Value) != "dump" {
		t.Errorf("Unexpected load result %s ok=%v value=%q", status, resp.Ok, resp.Value)
	}

	resp, _ = f.call(t, admin(), common.NewLoadFileRequest("missing"))
	if resp.Ok {
		t.Errorf("Missing file must not be reported as loaded")
	}

	if _, status := f.call(t, writer, common.NewSaveFileRequest("other", []byte("x"))); status != common.StatusForbidden {
		t.Errorf("Expected forbidden save without grant, got %s", status)
	}
	if _, status := f.call(t, writer, common.NewLoadFileRequest("other")); status != common.StatusForbidden {
		t.Errorf("Expected forbidden load without grant, got %s", status)
	}
}

func TestPurge(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})
	category := f.register(t)
	f.seed(t, category, 4)
	query := f.prepare(t, category, queryAll)

	before := f.c.Writes.Applied()
	if _, status := f.call(t, admin(), common.NewPurgeRequest("agent-1")); status != common.StatusOK {
		t.Fatalf("Purge failed: %s", status)
	}
	f.waitApplied(t, before+1)

	resp, _ := f.call(t, admin(), common.NewQueryRequest(query, nil, 0))
	if ids := vmIDs(resp.Rows); !equalStrings(ids, []string{"b", "d"}) {
		t.Errorf("Expected only agent-2 vms, got %v", ids)
	}
}

func TestTokens(t *testing.T) {
	f := newFixture(t, common.ServerConfig{})

	resp, status := f.call(t, admin(), common.NewGenerateTokenRequest("nonce", "dump-heap"))
	if status != common.StatusOK || len(resp.Value) != 256 {
		t.Fatalf("Expected a 256 byte token, got %s with %d bytes", status, len(resp.Value))
	}
	tok := resp.Value

	t.Run("NotGranted", func(t *testing.T) {
		if _, status := f.call(t, admin(), common.NewGenerateTokenRequest("nonce", "kill-vm")); status != common.StatusForbidden {
			t.Errorf("Expected forbidden, got %s", status)
		}
	})

	t.Run("WrongAction", func(t *testing.T) {
		if _, status := f.call(t, admin(), common.NewVerifyTokenRequest("nonce", "kill-vm", tok)); status != common.StatusForbidden {
			t.Errorf("Expected forbidden, got %s", status)
		}
	})

	resp, status = f.call(t, admin(), common.NewVerifyTokenRequest("nonce", "dump-heap", tok))
	if status != common.StatusOK || !resp.Ok {
		t.Fatalf("Expected token to verify, got %s", status)
	}

	// Tokens are single use
	if _, status := f.call(t, admin(), common.NewVerifyTokenRequest("nonce", "dump-heap", tok)); status != common.StatusForbidden {
		t.Errorf("Expected second verification to fail, got %s", status)
	}
}
