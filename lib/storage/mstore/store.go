package mstore

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("storage")

// table holds the rows of one category in insertion order
type table struct {
	category *schema.Category
	mu       sync.RWMutex
	rows     []schema.Pojo
}

type storeImpl struct {
	tables *xsync.MapOf[string, *table]
	files  *xsync.MapOf[string, []byte]
	closed atomic.Bool
}

// NewMemoryStore creates a new in-memory storage.
// Nothing is persisted, all data is lost on shutdown.
func NewMemoryStore() storage.IStorage {
	return &storeImpl{
		tables: xsync.NewMapOf[string, *table](),
		files:  xsync.NewMapOf[string, []byte](),
	}
}

// tableFor returns the table of a (possibly aggregate) category
func (s *storeImpl) tableFor(category *schema.Category) (*table, error) {
	if s.closed.Load() {
		return nil, storage.NewError(storage.RetCShutdown, "storage is shut down")
	}
	name := category.Base().Name()
	t, ok := s.tables.Load(name)
	if !ok {
		return nil, storage.Errorf(storage.RetCUnknownCategory, "category %q is not registered", name)
	}
	return t, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) RegisterCategory(category *schema.Category) error {
	if s.closed.Load() {
		return storage.NewError(storage.RetCShutdown, "storage is shut down")
	}
	if category.IsAggregate() {
		return storage.Errorf(storage.RetCInvalidOperation, "aggregate category %s can not be registered", category)
	}
	_, loaded := s.tables.LoadOrStore(category.Name(), &table{category: category})
	if !loaded {
		Logger.Debugf("registered category %s", category)
	}
	return nil
}

func (s *storeImpl) Prepare(desc schema.StatementDescriptor) (*statement.Parsed, error) {
	if desc.Category == nil {
		return nil, storage.NewError(storage.RetCInvalidOperation, "descriptor without category")
	}
	if _, err := s.tableFor(desc.Category); err != nil {
		return nil, err
	}
	return statement.Parse(desc)
}

func (s *storeImpl) ExecuteQuery(q *statement.Query) (storage.Cursor, error) {
	t, err := s.tableFor(q.Category)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	var result []schema.Pojo
	for _, row := range t.rows {
		if matches(q.Where, row) {
			result = append(result, row.Clone())
		}
	}
	t.mu.RUnlock()

	sortRows(result, q.Sort)

	switch q.Kind {
	case statement.KindQueryCount:
		n := int64(0)
		for _, row := range result {
			if q.AggregateKey == "" || row[q.AggregateKey] != nil {
				n++
			}
		}
		return storage.NewSliceCursor([]schema.Pojo{storage.CountRow(n)}), nil
	case statement.KindQueryDistinct:
		var values []any
		for _, row := range result {
			v, ok := row[q.AggregateKey]
			if !ok || containsValue(values, v) {
				continue
			}
			values = append(values, v)
		}
		return storage.NewSliceCursor([]schema.Pojo{storage.DistinctRow(q.AggregateKey, values)}), nil
	}

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return storage.NewSliceCursor(result), nil
}

func (s *storeImpl) ExecuteWrite(w *statement.Write) (int, error) {
	t, err := s.tableFor(w.Category)
	if err != nil {
		return 0, err
	}
	values := t.category.Coerce(w.Values())

	t.mu.Lock()
	defer t.mu.Unlock()

	switch w.Kind {
	case statement.KindAdd:
		t.rows = append(t.rows, values)
		return 1, nil
	case statement.KindReplace:
		t.removeMatching(w.Where)
		t.rows = append(t.rows, values)
		return 1, nil
	case statement.KindUpdate:
		n := 0
		for i, row := range t.rows {
			if !matches(w.Where, row) {
				continue
			}
			updated := row.Clone()
			for k, v := range values {
				updated[k] = v
			}
			t.rows[i] = updated
			n++
		}
		return n, nil
	case statement.KindRemove:
		return t.removeMatching(w.Where), nil
	}
	return 0, storage.Errorf(storage.RetCInvalidOperation, "%s is not a write", w.Kind)
}

func (s *storeImpl) Purge(agentID string) error {
	if s.closed.Load() {
		return storage.NewError(storage.RetCShutdown, "storage is shut down")
	}
	filter := statement.Equal(schema.KeyAgentID.Name, agentID)
	s.tables.Range(func(name string, t *table) bool {
		if _, ok := t.category.Key(schema.KeyAgentID.Name); !ok {
			return true
		}
		t.mu.Lock()
		n := t.removeMatching(filter)
		t.mu.Unlock()
		if n > 0 {
			Logger.Debugf("purged %d rows of agent %s from %s", n, agentID, name)
		}
		return true
	})
	return nil
}

func (s *storeImpl) SaveFile(name string, data []byte) error {
	if s.closed.Load() {
		return storage.NewError(storage.RetCShutdown, "storage is shut down")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.files.Store(name, cp)
	return nil
}

func (s *storeImpl) LoadFile(name string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, storage.NewError(storage.RetCShutdown, "storage is shut down")
	}
	data, ok := s.files.Load(name)
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (s *storeImpl) Shutdown() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.tables.Clear()
	s.files.Clear()
	Logger.Infof("memory storage shut down")
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// removeMatching deletes all matching rows, the caller must hold the write lock
func (t *table) removeMatching(where statement.Expression) int {
	kept := t.rows[:0]
	removed := 0
	for _, row := range t.rows {
		if matches(where, row) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	for i := len(kept); i < len(t.rows); i++ {
		t.rows[i] = nil
	}
	t.rows = kept
	return removed
}

func containsValue(values []any, v any) bool {
	for _, existing := range values {
		if valuesEqual(existing, v) {
			return true
		}
	}
	return false
}
