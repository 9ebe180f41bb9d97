package statecache

import (
	"fmt"
	"math"
	"sync"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/google/uuid"
)

// maxStatementID is the first statement or category handle that is never issued
const maxStatementID = math.MaxInt32 - 1

// Holder is a cached prepared statement
type Holder struct {
	ID         SharedStateId
	Parsed     *statement.Parsed
	Descriptor schema.StatementDescriptor
}

// NumParams returns the number of free parameters of the statement
func (h *Holder) NumParams() int {
	return h.Parsed.NumParams
}

// Payload returns the payload type the statement produces
func (h *Holder) Payload() string {
	return h.Descriptor.Category.Payload()
}

// StatementManager caches prepared statements by descriptor and by handle
type StatementManager struct {
	// mu guards both maps, they are always updated together
	mu      sync.Mutex
	trust   ITrustList
	storage storage.IStorage
	token   uuid.UUID

	byDesc map[schema.DescriptorKey]*Holder
	byID   map[int32]*Holder
	next   int32
}

// NewStatementManager creates a manager whose handles start at zero
func NewStatementManager(trust ITrustList, s storage.IStorage, token uuid.UUID) *StatementManager {
	return newStatementManagerAt(trust, s, token, 0)
}

func newStatementManagerAt(trust ITrustList, s storage.IStorage, token uuid.UUID, start int32) *StatementManager {
	return &StatementManager{
		trust:   trust,
		storage: s,
		token:   token,
		byDesc:  make(map[schema.DescriptorKey]*Holder),
		byID:    make(map[int32]*Holder),
		next:    start,
	}
}

// Prepare returns the holder of a descriptor, parsing it through the storage
// on first use. Equal descriptors share one holder and one handle.
func (m *StatementManager) Prepare(desc schema.StatementDescriptor) (*Holder, error) {
	if !m.trust.IsTrustedStatement(desc.Text) {
		Logger.Warningf("rejected untrusted statement %q", desc.Text)
		return nil, fmt.Errorf("%w: %q", ErrIllegalStatement, desc.Text)
	}

	key := desc.Key()
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.byDesc[key]; ok {
		return h, nil
	}

	if m.next >= maxStatementID {
		Logger.Errorf("prepared statement handles exhausted at %d, refusing %s", m.next, desc)
		return nil, ErrTooManyStatements
	}

	parsed, err := m.storage.Prepare(desc)
	if err != nil {
		return nil, err
	}

	h := &Holder{
		ID:         SharedStateId{ID: m.next, ServerToken: m.token},
		Parsed:     parsed,
		Descriptor: desc,
	}
	m.next++
	m.byDesc[key] = h
	m.byID[h.ID.ID] = h
	Logger.Debugf("prepared %s as %s", desc, h.ID)
	return h, nil
}

// Resolve returns the holder of a handle
func (m *StatementManager) Resolve(id SharedStateId) (*Holder, error) {
	if id.ServerToken != m.token {
		return nil, ErrEpochMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byID[id.ID]
	if !ok {
		return nil, fmt.Errorf("%w: statement %d", ErrUnknownHandle, id.ID)
	}
	return h, nil
}

// ResolveByDescriptor returns the holder of a descriptor or nil
func (m *StatementManager) ResolveByDescriptor(desc schema.StatementDescriptor) *Holder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byDesc[desc.Key()]
}

// Len returns the number of cached statements
func (m *StatementManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
