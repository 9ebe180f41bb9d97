package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
)

// StorageFactory creates a fresh, empty storage for a single test
type StorageFactory func(t *testing.T) storage.IStorage

// RunStorageTests runs the conformance suite for an IStorage implementation.
func RunStorageTests(t *testing.T, name string, factory StorageFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("RegisterCategory", func(t *testing.T) {
			testRegisterCategory(t, factory(t))
		})

		t.Run("AddAndQuery", func(t *testing.T) {
			testAddAndQuery(t, factory(t))
		})

		t.Run("WhereOperators", func(t *testing.T) {
			testWhereOperators(t, factory(t))
		})

		t.Run("SortAndLimit", func(t *testing.T) {
			testSortAndLimit(t, factory(t))
		})

		t.Run("Aggregates", func(t *testing.T) {
			testAggregates(t, factory(t))
		})

		t.Run("UpdateReplaceRemove", func(t *testing.T) {
			testUpdateReplaceRemove(t, factory(t))
		})

		t.Run("InExpression", func(t *testing.T) {
			testInExpression(t, factory(t))
		})

		t.Run("Purge", func(t *testing.T) {
			testPurge(t, factory(t))
		})

		t.Run("Files", func(t *testing.T) {
			testFiles(t, factory(t))
		})

		t.Run("ConcurrentReadWrite", func(t *testing.T) {
			testConcurrentReadWrite(t, factory(t))
		})

		t.Run("Shutdown", func(t *testing.T) {
			testShutdown(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const vmAdd = "ADD vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l , 'mainClass' = ?s"

func vmCategory(t *testing.T, s storage.IStorage) *schema.Category {
	t.Helper()
	cat, err := schema.NewRegistry().Define("vm-info", "VmInfo", []schema.Key{
		schema.KeyAgentID,
		schema.KeyVmID,
		schema.NewKey("startTime", schema.KeyTypeLong),
		schema.NewKey("mainClass", schema.KeyTypeString),
	}, []string{"agentId", "vmId"})
	if err != nil {
		t.Fatalf("Failed to define category: %v", err)
	}
	if err := s.RegisterCategory(cat); err != nil {
		t.Fatalf("Failed to register category: %v", err)
	}
	return cat
}

func bind(t *testing.T, s storage.IStorage, cat *schema.Category, text string, params ...statement.Param) statement.Statement {
	t.Helper()
	parsed, err := s.Prepare(schema.NewStatementDescriptor(cat, text))
	if err != nil {
		t.Fatalf("Failed to prepare %q: %v", text, err)
	}
	stmt, err := parsed.Patch(params)
	if err != nil {
		t.Fatalf("Failed to patch %q: %v", text, err)
	}
	return stmt
}

func write(t *testing.T, s storage.IStorage, cat *schema.Category, text string, params ...statement.Param) int {
	t.Helper()
	n, err := s.ExecuteWrite(bind(t, s, cat, text, params...).(*statement.Write))
	if err != nil {
		t.Fatalf("Failed to execute %q: %v", text, err)
	}
	return n
}

func query(t *testing.T, s storage.IStorage, cat *schema.Category, text string, params ...statement.Param) []schema.Pojo {
	t.Helper()
	c, err := s.ExecuteQuery(bind(t, s, cat, text, params...).(*statement.Query))
	if err != nil {
		t.Fatalf("Failed to execute %q: %v", text, err)
	}
	rows, err := storage.Drain(c)
	if err != nil {
		t.Fatalf("Failed to read result of %q: %v", text, err)
	}
	return rows
}

func addVM(t *testing.T, s storage.IStorage, cat *schema.Category, agent, vm string, start int64, mainClass string) {
	t.Helper()
	write(t, s, cat, vmAdd,
		statement.StringParam(agent),
		statement.StringParam(vm),
		statement.LongParam(start),
		statement.StringParam(mainClass))
}

func seed(t *testing.T, s storage.IStorage, cat *schema.Category) {
	t.Helper()
	addVM(t, s, cat, "agent-1", "vm-1", 100, "com.example.A")
	addVM(t, s, cat, "agent-1", "vm-2", 300, "com.example.B")
	addVM(t, s, cat, "agent-2", "vm-3", 200, "com.example.A")
	addVM(t, s, cat, "agent-2", "vm-4", 400, "com.example.C")
}

func vmIDs(rows []schema.Pojo) []string {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = fmt.Sprint(row["vmId"])
	}
	return ids
}

func sameStrings(a, b []string) bool {
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
// Test functions
// --------------------------------------------------------------------------

func testRegisterCategory(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()

	cat := vmCategory(t, s)
	if err := s.RegisterCategory(cat); err != nil {
		t.Errorf("Registering a category twice must not fail: %v", err)
	}

	other, err := schema.NewRegistry().Define("unknown", "Unknown", []schema.Key{schema.KeyAgentID}, nil)
	if err != nil {
		t.Fatalf("Failed to define category: %v", err)
	}
	_, err = s.Prepare(schema.NewStatementDescriptor(other, "QUERY unknown"))
	var serr *storage.Error
	if !errors.As(err, &serr) || serr.Code != storage.RetCUnknownCategory {
		t.Errorf("Expected RetCUnknownCategory for an unregistered category, got %v", err)
	}

	_, err = s.Prepare(schema.NewStatementDescriptor(cat, "QUERY vm-info WHERE"))
	var perr *statement.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("Expected a parse error, got %v", err)
	}
}

func testAddAndQuery(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)
	seed(t, s, cat)

	rows := query(t, s, cat, "QUERY vm-info")
	if got := vmIDs(rows); !sameStrings(got, []string{"vm-1", "vm-2", "vm-3", "vm-4"}) {
		t.Errorf("Expected rows in insertion order, got %v", got)
	}

	rows = query(t, s, cat, "QUERY vm-info WHERE 'vmId' = ?s", statement.StringParam("vm-3"))
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row["agentId"] != "agent-2" || row["mainClass"] != "com.example.A" {
		t.Errorf("Unexpected row %v", row)
	}
	if start, ok := schema.AsInt64(row["startTime"]); !ok || start != 200 {
		t.Errorf("Expected startTime 200, got %v (%T)", row["startTime"], row["startTime"])
	}

	rows = query(t, s, cat, "QUERY vm-info WHERE 'vmId' = ?s", statement.StringParam("nope"))
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %v", rows)
	}
}

func testWhereOperators(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)
	seed(t, s, cat)

	tests := []struct {
		text   string
		params []statement.Param
		want   []string
	}{
		{"QUERY vm-info WHERE 'startTime' > ?l", []statement.Param{statement.LongParam(200)}, []string{"vm-2", "vm-4"}},
		{"QUERY vm-info WHERE 'startTime' >= ?l", []statement.Param{statement.LongParam(200)}, []string{"vm-2", "vm-3", "vm-4"}},
		{"QUERY vm-info WHERE 'startTime' < ?l", []statement.Param{statement.LongParam(200)}, []string{"vm-1"}},
		{"QUERY vm-info WHERE 'startTime' <= 200l", nil, []string{"vm-1", "vm-3"}},
		{"QUERY vm-info WHERE 'agentId' != ?s", []statement.Param{statement.StringParam("agent-1")}, []string{"vm-3", "vm-4"}},
		{"QUERY vm-info WHERE 'agentId' = 'agent-1' AND 'startTime' > 100l", nil, []string{"vm-2"}},
		{"QUERY vm-info WHERE 'vmId' = 'vm-1' OR 'vmId' = 'vm-4'", nil, []string{"vm-1", "vm-4"}},
		{"QUERY vm-info WHERE NOT 'mainClass' = 'com.example.A'", nil, []string{"vm-2", "vm-4"}},
		{"QUERY vm-info WHERE ?s = ?s", []statement.Param{statement.StringParam("vmId"), statement.StringParam("vm-2")}, []string{"vm-2"}},
	}
	for _, tc := range tests {
		got := vmIDs(query(t, s, cat, tc.text, tc.params...))
		if !sameStrings(got, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.text, tc.want, got)
		}
	}
}

func testSortAndLimit(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)
	seed(t, s, cat)

	got := vmIDs(query(t, s, cat, "QUERY vm-info SORT 'startTime' DSC"))
	if !sameStrings(got, []string{"vm-4", "vm-2", "vm-3", "vm-1"}) {
		t.Errorf("Unexpected descending order %v", got)
	}

	got = vmIDs(query(t, s, cat, "QUERY vm-info SORT 'mainClass' ASC , 'startTime' DSC"))
	if !sameStrings(got, []string{"vm-3", "vm-1", "vm-2", "vm-4"}) {
		t.Errorf("Unexpected multi key order %v", got)
	}

	got = vmIDs(query(t, s, cat, "QUERY vm-info WHERE 'agentId' = ?s SORT ?s ASC LIMIT ?i",
		statement.StringParam("agent-2"), statement.StringParam("startTime"), statement.IntParam(1)))
	if !sameStrings(got, []string{"vm-3"}) {
		t.Errorf("Unexpected limited result %v", got)
	}

	got = vmIDs(query(t, s, cat, "QUERY vm-info LIMIT 0"))
	if len(got) != 4 {
		t.Errorf("LIMIT 0 must not restrict the result, got %v", got)
	}
}

func testAggregates(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)
	seed(t, s, cat)

	rows := query(t, s, cat, "QUERY-COUNT vm-info WHERE 'agentId' = ?s", statement.StringParam("agent-1"))
	if len(rows) != 1 {
		t.Fatalf("Expected a single count row, got %v", rows)
	}
	if n, ok := schema.AsInt64(rows[0][storage.AggregateCountField]); !ok || n != 2 {
		t.Errorf("Expected count 2, got %v", rows[0])
	}

	rows = query(t, s, cat, "QUERY-COUNT vm-info WHERE 'agentId' = ?s", statement.StringParam("agent-9"))
	if n, ok := schema.AsInt64(rows[0][storage.AggregateCountField]); !ok || n != 0 {
		t.Errorf("Expected count 0, got %v", rows[0])
	}

	rows = query(t, s, cat, "QUERY-DISTINCT(mainClass) vm-info SORT 'mainClass' ASC")
	if len(rows) != 1 {
		t.Fatalf("Expected a single distinct row, got %v", rows)
	}
	if rows[0][storage.AggregateKeyField] != "mainClass" {
		t.Errorf("Unexpected distinct key %v", rows[0])
	}
	values, ok := rows[0][storage.AggregateValuesField].([]any)
	if !ok || len(values) != 3 || values[0] != "com.example.A" || values[2] != "com.example.C" {
		t.Errorf("Unexpected distinct values %v", rows[0][storage.AggregateValuesField])
	}
}

func testUpdateReplaceRemove(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)
	seed(t, s, cat)

	n := write(t, s, cat, "UPDATE vm-info SET 'mainClass' = ?s WHERE 'agentId' = ?s",
		statement.StringParam("com.example.Z"), statement.StringParam("agent-1"))
	if n != 2 {
		t.Errorf("Expected 2 updated rows, got %d", n)
	}
	got := vmIDs(query(t, s, cat, "QUERY vm-info WHERE 'mainClass' = 'com.example.Z'"))
	if !sameStrings(got, []string{"vm-1", "vm-2"}) {
		t.Errorf("Unexpected rows after update %v", got)
	}

	write(t, s, cat, "REPLACE vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l , 'mainClass' = ?s WHERE 'vmId' = ?s",
		statement.StringParam("agent-2"), statement.StringParam("vm-3"), statement.LongParam(999),
		statement.StringParam("com.example.R"), statement.StringParam("vm-3"))
	rows := query(t, s, cat, "QUERY vm-info WHERE 'vmId' = 'vm-3'")
	if len(rows) != 1 || rows[0]["mainClass"] != "com.example.R" {
		t.Errorf("Expected exactly one replaced row, got %v", rows)
	}

	write(t, s, cat, "REPLACE vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l , 'mainClass' = ?s WHERE 'vmId' = ?s",
		statement.StringParam("agent-3"), statement.StringParam("vm-5"), statement.LongParam(1),
		statement.StringParam("com.example.N"), statement.StringParam("vm-5"))
	if rows := query(t, s, cat, "QUERY vm-info WHERE 'vmId' = 'vm-5'"); len(rows) != 1 {
		t.Errorf("REPLACE without a match must insert, got %v", rows)
	}

	n = write(t, s, cat, "REMOVE vm-info WHERE 'agentId' = ?s", statement.StringParam("agent-1"))
	if n != 2 {
		t.Errorf("Expected 2 removed rows, got %d", n)
	}
	got = vmIDs(query(t, s, cat, "QUERY vm-info SORT 'vmId' ASC"))
	if !sameStrings(got, []string{"vm-3", "vm-4", "vm-5"}) {
		t.Errorf("Unexpected rows after remove %v", got)
	}

	write(t, s, cat, "REMOVE vm-info")
	if rows := query(t, s, cat, "QUERY vm-info"); len(rows) != 0 {
		t.Errorf("REMOVE without where must clear the category, got %v", rows)
	}
}

func testInExpression(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)
	seed(t, s, cat)

	q := bind(t, s, cat, "QUERY vm-info WHERE 'startTime' > ?l", statement.LongParam(150)).(*statement.Query)
	restricted := q.WithWhere(statement.NewAnd(statement.NewIn("agentId", []string{"agent-2", "agent-7"}), q.Where))

	c, err := s.ExecuteQuery(restricted)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	rows, _ := storage.Drain(c)
	if got := vmIDs(rows); !sameStrings(got, []string{"vm-3", "vm-4"}) {
		t.Errorf("Unexpected rows for IN restriction %v", got)
	}

	empty := q.WithWhere(statement.NewIn("agentId", []string{}))
	c, err = s.ExecuteQuery(empty)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rows, _ := storage.Drain(c); len(rows) != 0 {
		t.Errorf("An empty IN set must match nothing, got %v", rows)
	}
}

func testPurge(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)
	seed(t, s, cat)

	noAgent, err := schema.NewRegistry().Define("global", "Global", []schema.Key{schema.NewKey("name", schema.KeyTypeString)}, nil)
	if err != nil {
		t.Fatalf("Failed to define category: %v", err)
	}
	if err := s.RegisterCategory(noAgent); err != nil {
		t.Fatalf("Failed to register category: %v", err)
	}
	write(t, s, noAgent, "ADD global SET 'name' = ?s", statement.StringParam("agent-1"))

	if err := s.Purge("agent-1"); err != nil {
		t.Fatalf("Unexpected error during purge: %v", err)
	}
	got := vmIDs(query(t, s, cat, "QUERY vm-info"))
	if !sameStrings(got, []string{"vm-3", "vm-4"}) {
		t.Errorf("Unexpected rows after purge %v", got)
	}
	if rows := query(t, s, noAgent, "QUERY global"); len(rows) != 1 {
		t.Errorf("Purge must not touch categories without an agentId key, got %v", rows)
	}
}

func testFiles(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()

	if _, loaded, err := s.LoadFile("missing"); err != nil || loaded {
		t.Errorf("Expected missing file to not be loaded, got loaded=%v err=%v", loaded, err)
	}

	data := []byte("heap dump")
	if err := s.SaveFile("heapdump-1", data); err != nil {
		t.Fatalf("Unexpected error during save: %v", err)
	}
	data[0] = 'X'

	got, loaded, err := s.LoadFile("heapdump-1")
	if err != nil || !loaded {
		t.Fatalf("Expected file to be loaded, got loaded=%v err=%v", loaded, err)
	}
	if !bytes.Equal(got, []byte("heap dump")) {
		t.Errorf("Expected stored copy, got %q", got)
	}

	if err := s.SaveFile("heapdump-1", []byte("second")); err != nil {
		t.Fatalf("Unexpected error during save: %v", err)
	}
	got, _, _ = s.LoadFile("heapdump-1")
	if string(got) != "second" {
		t.Errorf("Expected file to be replaced, got %q", got)
	}
}

func testConcurrentReadWrite(t *testing.T, s storage.IStorage) {
	defer s.Shutdown()
	cat := vmCategory(t, s)

	parsedAdd, err := s.Prepare(schema.NewStatementDescriptor(cat, vmAdd))
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	parsedCount, err := s.Prepare(schema.NewStatementDescriptor(cat, "QUERY-COUNT vm-info"))
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				stmt, err := parsedAdd.Patch([]statement.Param{
					statement.StringParam(fmt.Sprintf("agent-%d", w)),
					statement.StringParam(fmt.Sprintf("vm-%d-%d", w, i)),
					statement.LongParam(int64(i)),
					statement.StringParam("Main"),
				})
				if err != nil {
					t.Errorf("Failed to patch: %v", err)
					return
				}
				if _, err := s.ExecuteWrite(stmt.(*statement.Write)); err != nil {
					t.Errorf("Failed to write: %v", err)
					return
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			stmt, _ := parsedCount.Patch(nil)
			for i := 0; i < perWriter; i++ {
				c, err := s.ExecuteQuery(stmt.(*statement.Query))
				if err != nil {
					t.Errorf("Failed to query: %v", err)
					return
				}
				storage.Drain(c)
			}
		}()
	}
	wg.Wait()

	rows := query(t, s, cat, "QUERY-COUNT vm-info")
	if n, _ := schema.AsInt64(rows[0][storage.AggregateCountField]); n != writers*perWriter {
		t.Errorf("Expected %d rows, got %d", writers*perWriter, n)
	}
}

func testShutdown(t *testing.T, s storage.IStorage) {
	cat := vmCategory(t, s)
	q := bind(t, s, cat, "QUERY vm-info").(*statement.Query)

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Unexpected error during shutdown: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Errorf("Shutdown must be idempotent, got %v", err)
	}
	if _, err := s.ExecuteQuery(q); err == nil {
		t.Errorf("Expected an error when querying a shut down storage")
	}
}
