package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statecache"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/ValentinKolb/dGate/rpc/serializer"
	"github.com/ValentinKolb/dGate/rpc/transport"
	"github.com/google/uuid"
)

// NewRPCClient creates a new gateway client
// The function takes a config, a transport and a serializer as parameters
// The transport is connected before the client is returned
func NewRPCClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Client, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		registry: schema.NewRegistry(),
	}, nil
}

// Client talks to a gateway. Categories and statements remember their server
// handles and are registered and prepared again after the server restarted.
type Client struct {
	rpcClientAdapter

	// registry holds the local copies of registered categories, used to
	// restore the declared types of result rows
	registry *schema.Registry
}

// Category is a category registered with the gateway
type Category struct {
	spec  schema.Spec
	local *schema.Category

	mu     sync.Mutex
	handle statecache.SharedStateId
}

// Name returns the name of the category
func (c *Category) Name() string { return c.spec.Name }

// Handle returns the current server handle of the category
func (c *Category) Handle() statecache.SharedStateId {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Statement is a statement prepared by the gateway
type Statement struct {
	category *Category
	text     string

	mu        sync.Mutex
	handle    statecache.SharedStateId
	numParams int
}

// Handle returns the current server handle of the statement
func (s *Statement) Handle() statecache.SharedStateId {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// NumParams returns the number of free parameters of the statement
func (s *Statement) NumParams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numParams
}

// Text returns the statement text
func (s *Statement) Text() string { return s.text }

// --------------------------------------------------------------------------
// Statements
// --------------------------------------------------------------------------

// RegisterCategory registers a category with the gateway
func (c *Client) RegisterCategory(spec schema.Spec) (*Category, error) {
	local, err := c.localCategory(spec)
	if err != nil {
		return nil, err
	}
	cat := &Category{spec: spec, local: local}
	if err := c.register(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Client) register(cat *Category) error {
	resp, err := invokeRPCRequest(common.NewRegisterCategoryRequest(cat.spec), c.transport, c.serializer)
	if err != nil {
		return fmt.Errorf("register category %q: %w", cat.spec.Name, err)
	}
	cat.mu.Lock()
	cat.handle = resp.Handle
	cat.mu.Unlock()
	return nil
}

// localCategory returns the local copy of a category, aggregate views are
// derived from their base category
func (c *Client) localCategory(spec schema.Spec) (*schema.Category, error) {
	if schema.IsAggregatePayload(spec.Payload) {
		base, ok := c.registry.Get(spec.Name)
		if !ok {
			return nil, fmt.Errorf("aggregate view of unregistered category %q", spec.Name)
		}
		return base.Aggregate(spec.Payload)
	}
	if cat, ok := c.registry.Get(spec.Name); ok {
		return cat, nil
	}
	keys, indexed := spec.KeyList()
	cat, err := c.registry.Define(spec.Name, spec.Payload, keys, indexed)
	if errors.Is(err, schema.ErrCategoryExists) {
		// defined concurrently
		cat, _ = c.registry.Get(spec.Name)
		return cat, nil
	}
	return cat, err
}

// Prepare prepares a statement against a registered category
func (c *Client) Prepare(cat *Category, text string) (*Statement, error) {
	stmt := &Statement{category: cat, text: text}
	if err := c.prepare(stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (c *Client) prepare(stmt *Statement) error {
	err := c.prepareOnce(stmt)
	if errors.Is(err, ErrCategoryOutOfSync) {
		// The server forgot the category, it restarted
		if err = c.register(stmt.category); err != nil {
			return err
		}
		err = c.prepareOnce(stmt)
	}
	return err
}

func (c *Client) prepareOnce(stmt *Statement) error {
	req := common.NewPrepareRequest(stmt.category.Handle(), stmt.text)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return fmt.Errorf("prepare %q: %w", stmt.text, err)
	}
	if err := prepareError(resp.Code); err != nil {
		return fmt.Errorf("prepare %q: %w", stmt.text, err)
	}
	stmt.mu.Lock()
	stmt.handle = resp.Handle
	stmt.numParams = resp.NumParams
	stmt.mu.Unlock()
	return nil
}

// Query runs a prepared query and returns a cursor over its result. A non
// positive batch size uses the default of the server.
func (c *Client) Query(stmt *Statement, batchSize int, params ...statement.Param) (*Cursor, error) {
	resp, err := c.execute(stmt, func() *common.Message {
		return common.NewQueryRequest(stmt.Handle(), params, batchSize)
	})
	if err != nil {
		return nil, err
	}
	return newCursor(c, stmt.category.local, stmt.Handle(), resp, batchSize), nil
}

// Write runs a prepared ADD, REPLACE, UPDATE or REMOVE statement. A nil error
// means the gateway accepted the write, it is applied asynchronously.
func (c *Client) Write(stmt *Statement, params ...statement.Param) error {
	_, err := c.execute(stmt, func() *common.Message {
		return common.NewWriteRequest(stmt.Handle(), params)
	})
	return err
}

// execute sends a statement request. If the statement handle is stale the
// statement is prepared again and the request is repeated once.
func (c *Client) execute(stmt *Statement, request func() *common.Message) (*common.Message, error) {
	resp, err := c.executeOnce(stmt, request())
	if errors.Is(err, ErrBadServerToken) {
		Logger.Infof("statement %q is stale, preparing again", stmt.text)
		if err = c.prepare(stmt); err != nil {
			return nil, err
		}
		resp, err = c.executeOnce(stmt, request())
	}
	return resp, err
}

func (c *Client) executeOnce(stmt *Statement, req *common.Message) (*common.Message, error) {
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", req.MsgType, stmt.text, err)
	}
	if err := statementError(resp.Code); err != nil {
		return nil, fmt.Errorf("%s %q: %w", req.MsgType, stmt.text, err)
	}
	return resp, nil
}

// getMore fetches the next page of a cursor opened by the statement stmt
func (c *Client) getMore(stmt statecache.SharedStateId, cursorID int32, batchSize int) (*common.Message, error) {
	resp, err := invokeRPCRequest(common.NewGetMoreRequest(stmt, cursorID, batchSize), c.transport, c.serializer)
	if err != nil {
		return nil, fmt.Errorf("get more of cursor %d: %w", cursorID, err)
	}
	if err := statementError(resp.Code); err != nil {
		return nil, fmt.Errorf("get more of cursor %d: %w", cursorID, err)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Files and agents
// --------------------------------------------------------------------------

// Purge removes all data of an agent. The purge is applied asynchronously.
func (c *Client) Purge(agentID string) error {
	_, err := invokeRPCRequest(common.NewPurgeRequest(agentID), c.transport, c.serializer)
	return err
}

// SaveFile stores a blob. The save is applied asynchronously.
func (c *Client) SaveFile(name string, data []byte) error {
	_, err := invokeRPCRequest(common.NewSaveFileRequest(name, data), c.transport, c.serializer)
	return err
}

// LoadFile loads a blob, loaded is false if no blob with that name exists
func (c *Client) LoadFile(name string) (data []byte, loaded bool, err error) {
	resp, err := invokeRPCRequest(common.NewLoadFileRequest(name), c.transport, c.serializer)
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

// --------------------------------------------------------------------------
// Tokens
// --------------------------------------------------------------------------

// GenerateToken requests a single use token for an action
func (c *Client) GenerateToken(nonce, action string) ([]byte, error) {
	resp, err := invokeRPCRequest(common.NewGenerateTokenRequest(nonce, action), c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// VerifyToken verifies and consumes a token. A token that does not verify
// is reported as false without an error.
func (c *Client) VerifyToken(nonce, action string, token []byte) (bool, error) {
	_, err := invokeRPCRequest(common.NewVerifyTokenRequest(nonce, action, token), c.transport, c.serializer)
	if errors.Is(err, ErrForbidden) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --------------------------------------------------------------------------
// Misc
// --------------------------------------------------------------------------

// Ping checks the credentials and returns the server epoch and version
func (c *Client) Ping() (serverToken uuid.UUID, version string, err error) {
	resp, err := invokeRPCRequest(common.NewPingRequest(), c.transport, c.serializer)
	if err != nil {
		return uuid.Nil, "", err
	}
	return resp.Handle.ServerToken, resp.Version, nil
}

// Close closes the transport of the client
func (c *Client) Close() error {
	return c.transport.Close()
}
