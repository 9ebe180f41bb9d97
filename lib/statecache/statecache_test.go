package statecache

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/ValentinKolb/dGate/lib/storage/mstore"
	"github.com/google/uuid"
)

// countingStorage counts the calls that must only happen once per entry
type countingStorage struct {
	storage.IStorage
	registers atomic.Int32
	prepares  atomic.Int32
}

func (c *countingStorage) RegisterCategory(cat *schema.Category) error {
	c.registers.Add(1)
	return c.IStorage.RegisterCategory(cat)
}

func (c *countingStorage) Prepare(desc schema.StatementDescriptor) (*statement.Parsed, error) {
	c.prepares.Add(1)
	return c.IStorage.Prepare(desc)
}

// allowList trusts the listed names and texts, nil trusts everything
type allowList struct {
	categories map[string]bool
	statements map[string]bool
}

func (a allowList) IsTrustedCategory(name string) bool {
	return a.categories == nil || a.categories[name]
}

func (a allowList) IsTrustedStatement(text string) bool {
	return a.statements == nil || a.statements[text]
}

var vmInfoSpec = schema.Spec{
	Name:    "vm-info",
	Payload: "VmInfo",
	Keys: []schema.KeySpec{
		{Name: "agentId", Type: schema.KeyTypeString, Indexed: true},
		{Name: "vmId", Type: schema.KeyTypeString},
		{Name: "startTime", Type: schema.KeyTypeLong},
	},
}

func newFixture(trust ITrustList) (*CategoryManager, *StatementManager, *countingStorage, uuid.UUID) {
	st := &countingStorage{IStorage: mstore.NewMemoryStore()}
	token := NewServerToken()
	return NewCategoryManager(schema.NewRegistry(), trust, st, token),
		NewStatementManager(trust, st, token),
		st, token
}

func TestCategoryRegistration(t *testing.T) {
	t.Run("DedupeAndLookup", func(t *testing.T) {
		cats, _, st, token := newFixture(allowList{})

		id1, err := cats.Register(vmInfoSpec)
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		id2, err := cats.Register(vmInfoSpec)
		if err != nil {
			t.Fatalf("Second Register failed: %v", err)
		}
		if id1 != id2 {
			t.Errorf("Expected identical handles, got %s and %s", id1, id2)
		}
		if id1.ServerToken != token {
			t.Errorf("Handle carries wrong server token")
		}
		if n := st.registers.Load(); n != 1 {
			t.Errorf("Expected one storage registration, got %d", n)
		}

		cat, err := cats.Lookup(id1)
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if cat.Name() != "vm-info" || cat.Payload() != "VmInfo" {
			t.Errorf("Unexpected category %s", cat)
		}
	})

	t.Run("AggregateViews", func(t *testing.T) {
		cats, _, st, _ := newFixture(allowList{})

		countSpec := schema.Spec{Name: "vm-info", Payload: schema.PayloadAggregateCount}
		if _, err := cats.Register(countSpec); !errors.Is(err, ErrUnknownCategory) {
			t.Errorf("Aggregate before base must fail with ErrUnknownCategory, got %v", err)
		}

		baseID, _ := cats.Register(vmInfoSpec)
		countID, err := cats.Register(countSpec)
		if err != nil {
			t.Fatalf("Register aggregate failed: %v", err)
		}
		if countID == baseID {
			t.Errorf("Aggregate view must have its own handle")
		}
		view, _ := cats.Lookup(countID)
		if !view.IsAggregate() || view.Payload() != schema.PayloadAggregateCount {
			t.Errorf("Expected count view, got %s", view)
		}
		if n := st.registers.Load(); n != 1 {
			t.Errorf("Aggregate views must not reach the storage, got %d registrations", n)
		}
	})

	t.Run("Untrusted", func(t *testing.T) {
		cats, _, st, _ := newFixture(allowList{categories: map[string]bool{"host-info": true}})

		if _, err := cats.Register(vmInfoSpec); !errors.Is(err, ErrForbidden) {
			t.Errorf("Expected ErrForbidden, got %v", err)
		}
		if st.registers.Load() != 0 {
			t.Errorf("Untrusted category reached the storage")
		}
		if cats.Len() != 0 {
			t.Errorf("Untrusted category was cached")
		}
	})

	t.Run("ConflictingPayload", func(t *testing.T) {
		cats, _, _, _ := newFixture(allowList{})
		cats.Register(vmInfoSpec)

		other := vmInfoSpec
		other.Payload = "OtherInfo"
		if _, err := cats.Register(other); !errors.Is(err, schema.ErrCategoryExists) {
			t.Errorf("Expected ErrCategoryExists, got %v", err)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		st := &countingStorage{IStorage: mstore.NewMemoryStore()}
		cats := newCategoryManagerAt(schema.NewRegistry(), allowList{}, st, NewServerToken(), math.MaxInt32-2)

		id, err := cats.Register(vmInfoSpec)
		if err != nil {
			t.Fatalf("Last handle must still be issued: %v", err)
		}
		if id.ID != math.MaxInt32-2 {
			t.Errorf("Unexpected handle %d", id.ID)
		}

		hostSpec := schema.Spec{Name: "host-info", Payload: "HostInfo"}
		if _, err := cats.Register(hostSpec); !errors.Is(err, ErrTooManyCategories) {
			t.Errorf("Expected ErrTooManyCategories, got %v", err)
		}
		if n := st.registers.Load(); n != 1 {
			t.Errorf("Refused category reached the storage, got %d registrations", n)
		}
		if again, err := cats.Register(vmInfoSpec); err != nil || again != id {
			t.Errorf("Registered categories must still resolve, got %s, %v", again, err)
		}
	})

	t.Run("EpochAndUnknown", func(t *testing.T) {
		cats, _, _, token := newFixture(allowList{})
		id, _ := cats.Register(vmInfoSpec)

		stale := SharedStateId{ID: id.ID, ServerToken: uuid.New()}
		if _, err := cats.Lookup(stale); !errors.Is(err, ErrEpochMismatch) {
			t.Errorf("Expected ErrEpochMismatch, got %v", err)
		}
		if _, err := cats.Lookup(SharedStateId{ID: 42, ServerToken: token}); !errors.Is(err, ErrUnknownHandle) {
			t.Errorf("Expected ErrUnknownHandle, got %v", err)
		}
	})
}

func TestStatementPreparation(t *testing.T) {
	const text = "QUERY vm-info WHERE 'agentId' = ?s SORT 'startTime' DSC"

	setup := func(t *testing.T, trust ITrustList) (*StatementManager, *countingStorage, *schema.Category, uuid.UUID) {
		t.Helper()
		cats, stmts, st, token := newFixture(trust)
		id, err := cats.Register(vmInfoSpec)
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		cat, _ := cats.Lookup(id)
		return stmts, st, cat, token
	}

	t.Run("DedupeAndResolve", func(t *testing.T) {
		stmts, st, cat, _ := setup(t, allowList{})
		desc := schema.NewStatementDescriptor(cat, text)

		h1, err := stmts.Prepare(desc)
		if err != nil {
			t.Fatalf("Prepare failed: %v", err)
		}
		h2, err := stmts.Prepare(schema.NewStatementDescriptor(cat, text))
		if err != nil {
			t.Fatalf("Second Prepare failed: %v", err)
		}
		if h1 != h2 {
			t.Errorf("Equal descriptors must share a holder")
		}
		if n := st.prepares.Load(); n != 1 {
			t.Errorf("Expected one storage prepare, got %d", n)
		}
		if h1.NumParams() != 1 || h1.Payload() != "VmInfo" {
			t.Errorf("Unexpected holder params=%d payload=%s", h1.NumParams(), h1.Payload())
		}

		resolved, err := stmts.Resolve(h1.ID)
		if err != nil || resolved != h1 {
			t.Errorf("Resolve returned %v, %v", resolved, err)
		}
		if stmts.ResolveByDescriptor(desc) != h1 {
			t.Errorf("ResolveByDescriptor did not find the holder")
		}
		if stmts.ResolveByDescriptor(schema.NewStatementDescriptor(cat, "QUERY vm-info")) != nil {
			t.Errorf("ResolveByDescriptor found an unprepared statement")
		}
	})

	t.Run("ConcurrentPrepare", func(t *testing.T) {
		stmts, st, cat, _ := setup(t, allowList{})

		var wg sync.WaitGroup
		ids := make([]SharedStateId, 16)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				h, err := stmts.Prepare(schema.NewStatementDescriptor(cat, text))
				if err != nil {
					t.Errorf("Prepare failed: %v", err)
					return
				}
				ids[i] = h.ID
			}(i)
		}
		wg.Wait()

		for _, id := range ids[1:] {
			if id != ids[0] {
				t.Fatalf("Concurrent prepares returned different handles %v", ids)
			}
		}
		if n := st.prepares.Load(); n != 1 {
			t.Errorf("Expected one storage prepare, got %d", n)
		}
	})

	t.Run("Untrusted", func(t *testing.T) {
		stmts, st, cat, _ := setup(t, allowList{statements: map[string]bool{"QUERY vm-info": true}})

		if _, err := stmts.Prepare(schema.NewStatementDescriptor(cat, text)); !errors.Is(err, ErrIllegalStatement) {
			t.Errorf("Expected ErrIllegalStatement, got %v", err)
		}
		if st.prepares.Load() != 0 {
			t.Errorf("Untrusted statement reached the storage")
		}
	})

	t.Run("ParseFailure", func(t *testing.T) {
		stmts, _, cat, _ := setup(t, allowList{})

		_, err := stmts.Prepare(schema.NewStatementDescriptor(cat, "QUERY vm-info WHERE"))
		var perr *statement.ParseError
		if !errors.As(err, &perr) {
			t.Errorf("Expected ParseError, got %v", err)
		}
		if stmts.Len() != 0 {
			t.Errorf("Failed statements must not be cached")
		}
	})

	t.Run("EpochMismatch", func(t *testing.T) {
		stmts, _, cat, _ := setup(t, allowList{})
		h, _ := stmts.Prepare(schema.NewStatementDescriptor(cat, text))

		if _, err := stmts.Resolve(SharedStateId{ID: h.ID.ID, ServerToken: uuid.New()}); !errors.Is(err, ErrEpochMismatch) {
			t.Errorf("Expected ErrEpochMismatch, got %v", err)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		st := &countingStorage{IStorage: mstore.NewMemoryStore()}
		token := NewServerToken()
		cats := NewCategoryManager(schema.NewRegistry(), allowList{}, st, token)
		id, _ := cats.Register(vmInfoSpec)
		cat, _ := cats.Lookup(id)

		stmts := newStatementManagerAt(allowList{}, st, token, math.MaxInt32-2)
		h, err := stmts.Prepare(schema.NewStatementDescriptor(cat, text))
		if err != nil {
			t.Fatalf("Last handle must still be issued: %v", err)
		}
		if h.ID.ID != math.MaxInt32-2 {
			t.Errorf("Unexpected handle %d", h.ID.ID)
		}
		if _, err := stmts.Prepare(schema.NewStatementDescriptor(cat, "QUERY vm-info")); !errors.Is(err, ErrTooManyStatements) {
			t.Errorf("Expected ErrTooManyStatements, got %v", err)
		}
		if _, err := stmts.Prepare(schema.NewStatementDescriptor(cat, text)); err != nil {
			t.Errorf("Already prepared statements must still resolve: %v", err)
		}
	})
}
