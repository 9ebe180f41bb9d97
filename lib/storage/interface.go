package storage

import (
	"fmt"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStorage is the backing store every statement is finally executed against.
// Implementations must tolerate concurrent reads and writes: queries are run
// from request goroutines while writes arrive from the write queue.
type IStorage interface {
	// RegisterCategory makes the category known to the backend (tables,
	// indexes). Registering the same category twice is not an error.
	RegisterCategory(category *schema.Category) error
	// Prepare parses the descriptor and checks that its category was registered.
	Prepare(desc schema.StatementDescriptor) (*statement.Parsed, error)
	// ExecuteQuery runs a bound query and returns a cursor over its result.
	// Aggregate queries return a single row.
	ExecuteQuery(query *statement.Query) (Cursor, error)
	// ExecuteWrite applies a bound write and returns the number of affected rows.
	ExecuteWrite(write *statement.Write) (affected int, err error)
	// Purge removes all rows of all categories that belong to an agent.
	Purge(agentID string) error
	// SaveFile stores a blob under a name, replacing an existing one.
	SaveFile(name string, data []byte) error
	// LoadFile returns the blob stored under a name. The boolean is false if no blob exists.
	LoadFile(name string) (data []byte, loaded bool, err error)
	// Shutdown releases all resources. No other method may be called afterwards.
	Shutdown() error
}

// Cursor iterates over the rows of a query result. Cursors are not safe for
// concurrent use.
type Cursor interface {
	// HasNext reports whether another row is available.
	HasNext() bool
	// Next returns the next row.
	Next() (schema.Pojo, error)
	// Close releases the resources held by the cursor.
	Close() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StorageError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new storage error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new storage error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the backend.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCUnknownCategory                     // 4: The category was never registered.
	RetCShutdown                            // 5: The storage was shut down.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCUnknownCategory:
		return "UnknownCategory"
	case RetCShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}
