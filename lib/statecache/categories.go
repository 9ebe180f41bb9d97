package statecache

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("statecache")

// categoryKey identifies a registration request
type categoryKey struct {
	name    string
	payload string
}

// CategoryManager caches category registrations
type CategoryManager struct {
	mu       sync.Mutex
	registry *schema.Registry
	trust    ITrustList
	storage  storage.IStorage
	token    uuid.UUID

	byKey map[categoryKey]SharedStateId
	byID  map[int32]*schema.Category
	next  int32
}

// NewCategoryManager creates a manager that defines categories in registry
// and registers them with the storage
func NewCategoryManager(registry *schema.Registry, trust ITrustList, s storage.IStorage, token uuid.UUID) *CategoryManager {
	return newCategoryManagerAt(registry, trust, s, token, 0)
}

// newCategoryManagerAt starts handing out handles at start
func newCategoryManagerAt(registry *schema.Registry, trust ITrustList, s storage.IStorage, token uuid.UUID, start int32) *CategoryManager {
	return &CategoryManager{
		registry: registry,
		trust:    trust,
		storage:  s,
		token:    token,
		byKey:    make(map[categoryKey]SharedStateId),
		byID:     make(map[int32]*schema.Category),
		next:     start,
	}
}

// Register returns the handle of a category, registering it on first use.
// Aggregate payloads are synthesized as views over the already registered
// base category and never reach the storage.
func (m *CategoryManager) Register(spec schema.Spec) (SharedStateId, error) {
	key := categoryKey{name: spec.Name, payload: spec.Payload}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[key]; ok {
		return id, nil
	}

	if !m.trust.IsTrustedCategory(spec.Name) {
		Logger.Warningf("rejected registration of untrusted category %q", spec.Name)
		return SharedStateId{}, fmt.Errorf("%w: %q", ErrForbidden, spec.Name)
	}

	if m.next >= maxStatementID {
		Logger.Errorf("category handles exhausted at %d, refusing %q", m.next, spec.Name)
		return SharedStateId{}, ErrTooManyCategories
	}

	var (
		cat *schema.Category
		err error
	)
	if schema.IsAggregatePayload(spec.Payload) {
		base, ok := m.registry.Get(spec.Name)
		if !ok {
			return SharedStateId{}, fmt.Errorf("%w: %q", ErrUnknownCategory, spec.Name)
		}
		if cat, err = base.Aggregate(spec.Payload); err != nil {
			return SharedStateId{}, err
		}
	} else {
		if cat, err = m.materialize(spec); err != nil {
			return SharedStateId{}, err
		}
	}

	id := SharedStateId{ID: m.next, ServerToken: m.token}
	m.next++
	m.byKey[key] = id
	m.byID[id.ID] = cat
	Logger.Infof("registered category %s as %s", cat, id)
	return id, nil
}

// materialize defines the category and registers it with the storage. The
// caller must hold mu.
func (m *CategoryManager) materialize(spec schema.Spec) (*schema.Category, error) {
	cat, ok := m.registry.Get(spec.Name)
	if ok && cat.Payload() != spec.Payload {
		return nil, fmt.Errorf("%w: %q with payload %s", schema.ErrCategoryExists, spec.Name, cat.Payload())
	}
	if !ok {
		keys, indexed := spec.KeyList()
		var err error
		if cat, err = m.registry.Define(spec.Name, spec.Payload, keys, indexed); err != nil {
			return nil, err
		}
	}
	if err := m.storage.RegisterCategory(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// Lookup resolves a category handle
func (m *CategoryManager) Lookup(id SharedStateId) (*schema.Category, error) {
	if id.ServerToken != m.token {
		return nil, ErrEpochMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cat, ok := m.byID[id.ID]
	if !ok {
		return nil, fmt.Errorf("%w: category %d", ErrUnknownHandle, id.ID)
	}
	return cat, nil
}

// Len returns the number of cached registrations
func (m *CategoryManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
