package sqlstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
	storagetesting "github.com/ValentinKolb/dGate/lib/storage/testing"
)

func Test(t *testing.T) {
	storagetesting.RunStorageTests(t, "SQLiteStore", func(t *testing.T) storage.IStorage {
		s, err := Open(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		return s
	})
}

func openTest(t *testing.T, path string) *storeImpl {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return s.(*storeImpl)
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s := openTest(t, path)
	defer s.Shutdown()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil || mode != "wal" {
		t.Errorf("journal_mode = %q (%v), expected wal", mode, err)
	}
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil || version != currentSchemaVersion {
		t.Errorf("user_version = %d (%v), expected %d", version, err, currentSchemaVersion)
	}
}

func TestRowsAndFilesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	keys := []schema.Key{schema.KeyAgentID, schema.NewKey("alive", schema.KeyTypeBool)}

	s1 := openTest(t, path)
	cat, err := schema.NewRegistry().Define("agent-config", "AgentInfo", keys, []string{"agentId"})
	if err != nil {
		t.Fatalf("Define() failed: %v", err)
	}
	if err := s1.RegisterCategory(cat); err != nil {
		t.Fatalf("RegisterCategory() failed: %v", err)
	}
	parsed, err := s1.Prepare(schema.NewStatementDescriptor(cat, "ADD agent-config SET 'agentId' = ?s , 'alive' = ?b"))
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	stmt, err := parsed.Patch([]statement.Param{statement.StringParam("a1"), statement.BoolParam(true)})
	if err != nil {
		t.Fatalf("Patch() failed: %v", err)
	}
	if _, err := s1.ExecuteWrite(stmt.(*statement.Write)); err != nil {
		t.Fatalf("ExecuteWrite() failed: %v", err)
	}
	if err := s1.SaveFile("profile", []byte{1, 2, 3}); err != nil {
		t.Fatalf("SaveFile() failed: %v", err)
	}
	s1.Shutdown()

	s2 := openTest(t, path)
	defer s2.Shutdown()

	// a new process registers the category again before using it
	cat2, _ := schema.NewRegistry().Define("agent-config", "AgentInfo", keys, []string{"agentId"})
	if err := s2.RegisterCategory(cat2); err != nil {
		t.Fatalf("RegisterCategory() failed: %v", err)
	}
	parsed, err = s2.Prepare(schema.NewStatementDescriptor(cat2, "QUERY agent-config"))
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	q, _ := parsed.Patch(nil)
	c, err := s2.ExecuteQuery(q.(*statement.Query))
	if err != nil {
		t.Fatalf("ExecuteQuery() failed: %v", err)
	}
	rows, _ := storage.Drain(c)
	if len(rows) != 1 || rows[0]["agentId"] != "a1" || rows[0]["alive"] != true {
		t.Errorf("Unexpected rows after reopen: %v", rows)
	}

	data, loaded, err := s2.LoadFile("profile")
	if err != nil || !loaded || len(data) != 3 {
		t.Errorf("Unexpected file after reopen: %v %v %v", data, loaded, err)
	}
}

func TestRegisterAddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1 := openTest(t, path)
	v1, _ := schema.NewRegistry().Define("host-info", "HostInfo", []schema.Key{schema.KeyAgentID}, nil)
	if err := s1.RegisterCategory(v1); err != nil {
		t.Fatalf("RegisterCategory() failed: %v", err)
	}
	s1.Shutdown()

	s2 := openTest(t, path)
	defer s2.Shutdown()
	v2, _ := schema.NewRegistry().Define("host-info", "HostInfo",
		[]schema.Key{schema.KeyAgentID, schema.NewKey("cpuCount", schema.KeyTypeInt)}, []string{"cpuCount"})
	if err := s2.RegisterCategory(v2); err != nil {
		t.Fatalf("RegisterCategory() with a new key failed: %v", err)
	}

	parsed, err := s2.Prepare(schema.NewStatementDescriptor(v2, "ADD host-info SET 'agentId' = ?s , 'cpuCount' = ?i"))
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	stmt, _ := parsed.Patch([]statement.Param{statement.StringParam("a1"), statement.IntParam(8)})
	if _, err := s2.ExecuteWrite(stmt.(*statement.Write)); err != nil {
		t.Fatalf("ExecuteWrite() failed: %v", err)
	}

	var n int
	if err := s2.db.QueryRow(`SELECT COUNT(*) FROM "cat_host-info" WHERE "cpuCount" = 8`).Scan(&n); err != nil || n != 1 {
		t.Errorf("Expected the new column to be written, got %d (%v)", n, err)
	}
}

func TestEncodeDecodeValues(t *testing.T) {
	tests := []struct {
		name string
		t    schema.KeyType
		in   any
		want any
	}{
		{"long", schema.KeyTypeLong, int64(7), int64(7)},
		{"int", schema.KeyTypeInt, int32(7), int32(7)},
		{"double", schema.KeyTypeDouble, 1.25, 1.25},
		{"string", schema.KeyTypeString, "x", "x"},
		{"pojo", schema.KeyTypePojo, schema.Pojo{"a": "b"}, schema.Pojo{"a": "b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := encodeValue(tc.in)
			if err != nil {
				t.Fatalf("encodeValue() failed: %v", err)
			}
			// the driver hands integers back as int64
			if i, ok := enc.(int32); ok {
				enc = int64(i)
			}
			got := decodeValue(tc.t, enc)
			if p, ok := tc.want.(schema.Pojo); ok {
				gp, isPojo := got.(schema.Pojo)
				if !isPojo || gp["a"] != p["a"] {
					t.Errorf("Expected %v, got %v", tc.want, got)
				}
				return
			}
			if got != tc.want {
				t.Errorf("Expected %v (%T), got %v (%T)", tc.want, tc.want, got, got)
			}
		})
	}
}
