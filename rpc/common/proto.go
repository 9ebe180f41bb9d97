package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statecache"
	"github.com/ValentinKolb/dGate/lib/statement"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Category  *schema.Spec             `json:"category,omitempty"`  // Used for: RegisterCategory
	Handle    statecache.SharedStateId `json:"handle"`              // Used for: Prepare (category), Query, GetMore, Write (statement), all handle responses
	Statement string                   `json:"statement,omitempty"` // Used for: Prepare
	Params    []statement.Param        `json:"params,omitempty"`    // Used for: Query, Write
	CursorID  int32                    `json:"cursorId"`            // Used for: GetMore (request), Query and GetMore (response)
	BatchSize int                      `json:"batchSize,omitempty"` // Used for: Query, GetMore
	AgentID   string                   `json:"agentId,omitempty"`   // Used for: Purge
	Name      string                   `json:"name,omitempty"`      // Used for: SaveFile, LoadFile (file name), tokens (action)
	Nonce     string                   `json:"nonce,omitempty"`     // Used for: GenerateToken, VerifyToken
	Value     []byte                   `json:"value,omitempty"`     // Used for: SaveFile, LoadFile (response), tokens

	// Response only fields
	Code      int32         `json:"code"`                // statement or prepare response code
	NumParams int           `json:"numParams,omitempty"` // Used for: Prepare responses
	Rows      []schema.Pojo `json:"rows,omitempty"`      // Used for: Query, GetMore responses
	HasMore   bool          `json:"hasMore,omitempty"`   // Used for: Query, GetMore responses
	Ok        bool          `json:"ok,omitempty"`        // Used for: LoadFile, VerifyToken responses
	Version   string        `json:"version,omitempty"`   // Used for: Ping responses
	Err       string        `json:"err,omitempty"`       // Empty if no error, otherwise contains the error message

	// Status is the transport level outcome, it is not serialized
	Status Status `json:"-"`
}

// --------------------------------------------------------------------------
// Response codes
// --------------------------------------------------------------------------

// Response codes of query, get more and write requests
const (
	CodeSuccess             int32 = 0
	CodeIllegalPatch        int32 = -1
	CodeBadServerToken      int32 = -2
	CodeQueryFailure        int32 = -100
	CodeGetMoreNullCursor   int32 = -151
	CodeWriteGenericFailure int32 = -200
)

// Response codes of prepare requests
const (
	CodePrepareSuccess        int32 = 0
	CodeIllegalStatement      int32 = -1
	CodeDescriptorParseFailed int32 = -2
	CodeCategoryOutOfSync     int32 = -3
)

// --------------------------------------------------------------------------
// Transport status
// --------------------------------------------------------------------------

// Status is the outcome of a request as reported by the transport
type Status uint8

const (
	StatusOK Status = iota
	StatusBadRequest
	StatusUnauthorized
	StatusForbidden
	StatusUnavailable
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad request"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusForbidden:
		return "forbidden"
	case StatusUnavailable:
		return "service unavailable"
	case StatusInternal:
		return "internal error"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRegisterCategoryRequest creates a new RegisterCategory request
func NewRegisterCategoryRequest(spec schema.Spec) *Message {
	return &Message{
		MsgType:  MsgTRegisterCategory,
		Category: &spec,
	}
}

// NewRegisterCategoryResponse creates a new RegisterCategory response
func NewRegisterCategoryResponse(handle statecache.SharedStateId) *Message {
	return &Message{
		MsgType: MsgTRegisterCategory,
		Handle:  handle,
	}
}

// NewPrepareRequest creates a new PrepareStatement request
func NewPrepareRequest(category statecache.SharedStateId, text string) *Message {
	return &Message{
		MsgType:   MsgTPrepareStatement,
		Handle:    category,
		Statement: text,
	}
}

// NewPrepareResponse creates a new PrepareStatement response. On failure
// only the code is set.
func NewPrepareResponse(code int32, handle statecache.SharedStateId, numParams int) *Message {
	return &Message{
		MsgType:   MsgTPrepareStatement,
		Code:      code,
		Handle:    handle,
		NumParams: numParams,
	}
}

// NewQueryRequest creates a new QueryExecute request
func NewQueryRequest(stmt statecache.SharedStateId, params []statement.Param, batchSize int) *Message {
	return &Message{
		MsgType:   MsgTQueryExecute,
		Handle:    stmt,
		Params:    params,
		BatchSize: batchSize,
	}
}

// NewQueryResponse creates a new QueryExecute response
func NewQueryResponse(code int32, rows []schema.Pojo, cursorID int32, hasMore bool) *Message {
	return &Message{
		MsgType:  MsgTQueryExecute,
		Code:     code,
		Rows:     rows,
		CursorID: cursorID,
		HasMore:  hasMore,
	}
}

// NewGetMoreRequest creates a new GetMore request for a cursor opened by the
// query statement stmt
func NewGetMoreRequest(stmt statecache.SharedStateId, cursorID int32, batchSize int) *Message {
	return &Message{
		MsgType:   MsgTGetMore,
		Handle:    stmt,
		CursorID:  cursorID,
		BatchSize: batchSize,
	}
}

// NewGetMoreResponse creates a new GetMore response
func NewGetMoreResponse(code int32, rows []schema.Pojo, cursorID int32, hasMore bool) *Message {
	return &Message{
		MsgType:  MsgTGetMore,
		Code:     code,
		Rows:     rows,
		CursorID: cursorID,
		HasMore:  hasMore,
	}
}

// NewWriteRequest creates a new WriteExecute request
func NewWriteRequest(stmt statecache.SharedStateId, params []statement.Param) *Message {
	return &Message{
		MsgType: MsgTWriteExecute,
		Handle:  stmt,
		Params:  params,
	}
}

// NewWriteResponse creates a new WriteExecute response
func NewWriteResponse(code int32) *Message {
	return &Message{
		MsgType: MsgTWriteExecute,
		Code:    code,
	}
}

// NewPurgeRequest creates a new Purge request
func NewPurgeRequest(agentID string) *Message {
	return &Message{
		MsgType: MsgTPurge,
		AgentID: agentID,
	}
}

// NewSaveFileRequest creates a new SaveFile request
func NewSaveFileRequest(name string, data []byte) *Message {
	return &Message{
		MsgType: MsgTSaveFile,
		Name:    name,
		Value:   data,
	}
}

// NewLoadFileRequest creates a new LoadFile request
func NewLoadFileRequest(name string) *Message {
	return &Message{
		MsgType: MsgTLoadFile,
		Name:    name,
	}
}

// NewLoadFileResponse creates a new LoadFile response
func NewLoadFileResponse(data []byte, ok bool) *Message {
	return &Message{
		MsgType: MsgTLoadFile,
		Value:   data,
		Ok:      ok,
	}
}

// NewGenerateTokenRequest creates a new GenerateToken request
func NewGenerateTokenRequest(nonce, action string) *Message {
	return &Message{
		MsgType: MsgTGenerateToken,
		Nonce:   nonce,
		Name:    action,
	}
}

// NewGenerateTokenResponse creates a new GenerateToken response
func NewGenerateTokenResponse(token []byte) *Message {
	return &Message{
		MsgType: MsgTGenerateToken,
		Value:   token,
	}
}

// NewVerifyTokenRequest creates a new VerifyToken request
func NewVerifyTokenRequest(nonce, action string, token []byte) *Message {
	return &Message{
		MsgType: MsgTVerifyToken,
		Nonce:   nonce,
		Name:    action,
		Value:   token,
	}
}

// NewVerifyTokenResponse creates a new VerifyToken response
func NewVerifyTokenResponse(ok bool) *Message {
	return &Message{
		MsgType: MsgTVerifyToken,
		Ok:      ok,
	}
}

// NewPingRequest creates a new Ping request
func NewPingRequest() *Message {
	return &Message{MsgType: MsgTPing}
}

// NewPingResponse creates a new Ping response
func NewPingResponse(serverToken statecache.SharedStateId, version string) *Message {
	return &Message{
		MsgType: MsgTPing,
		Handle:  serverToken,
		Version: version,
	}
}

// NewAckResponse acknowledges a request of the given type
func NewAckResponse(t MessageType) *Message {
	return &Message{MsgType: t}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(status Status, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
		Status:  status,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:          "unknown",
	MsgTError:            "error",
	MsgTRegisterCategory: "registerCategory",
	MsgTPrepareStatement: "prepareStatement",
	MsgTQueryExecute:     "queryExecute",
	MsgTGetMore:          "getMore",
	MsgTWriteExecute:     "writeExecute",
	MsgTPurge:            "purge",
	MsgTSaveFile:         "saveFile",
	MsgTLoadFile:         "loadFile",
	MsgTGenerateToken:    "generateToken",
	MsgTVerifyToken:      "verifyToken",
	MsgTPing:             "ping",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTError               // Indicates an error occurred

	// Statement operations

	MsgTRegisterCategory // Register a category schema
	MsgTPrepareStatement // Prepare a statement against a category
	MsgTQueryExecute     // Run a prepared query
	MsgTGetMore          // Fetch the next page of a cursor
	MsgTWriteExecute     // Run a prepared write

	// Agent data and files

	MsgTPurge    // Remove all data of an agent
	MsgTSaveFile // Store a blob
	MsgTLoadFile // Load a blob

	// Command channel tokens

	MsgTGenerateToken // Issue a single use token
	MsgTVerifyToken   // Verify and consume a token

	MsgTPing // Check credentials and fetch the server token
)
