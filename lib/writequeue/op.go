package writequeue

import (
	"fmt"

	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
)

// OpKind tells the worker what to do with an Op
type OpKind uint8

const (
	OpWrite OpKind = iota
	OpSaveFile
	OpPurge
)

func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpSaveFile:
		return "saveFile"
	case OpPurge:
		return "purge"
	default:
		return fmt.Sprintf("OpKind(%d)", k)
	}
}

// Op is a single queued storage mutation
type Op struct {
	Kind    OpKind
	Write   *statement.Write
	Name    string
	Data    []byte
	AgentID string
}

// WriteOp queues a bound ADD, REPLACE, UPDATE or REMOVE statement
func WriteOp(w *statement.Write) Op {
	return Op{Kind: OpWrite, Write: w}
}

// SaveFileOp queues storing a blob
func SaveFileOp(name string, data []byte) Op {
	return Op{Kind: OpSaveFile, Name: name, Data: data}
}

// PurgeOp queues removing all data of an agent
func PurgeOp(agentID string) Op {
	return Op{Kind: OpPurge, AgentID: agentID}
}

// apply runs the operation against the storage
func (o Op) apply(s storage.IStorage) error {
	switch o.Kind {
	case OpWrite:
		_, err := s.ExecuteWrite(o.Write)
		return err
	case OpSaveFile:
		return s.SaveFile(o.Name, o.Data)
	case OpPurge:
		return s.Purge(o.AgentID)
	}
	return fmt.Errorf("unknown operation %s", o.Kind)
}

func (o Op) String() string {
	switch o.Kind {
	case OpWrite:
		if o.Write != nil {
			return o.Write.String()
		}
	case OpSaveFile:
		return fmt.Sprintf("saveFile(%s, %d bytes)", o.Name, len(o.Data))
	case OpPurge:
		return fmt.Sprintf("purge(%s)", o.AgentID)
	}
	return o.Kind.String()
}
