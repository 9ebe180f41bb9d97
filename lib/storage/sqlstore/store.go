package sqlstore

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statement"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("storage")

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added categories table
const currentSchemaVersion = 1

// seqColumn keeps the insertion order of the rows of a category table
const seqColumn = "_seq"

type storeImpl struct {
	db         *sql.DB
	categories *xsync.MapOf[string, *schema.Category]
	// registerMu serializes DDL statements
	registerMu sync.Mutex
	closed     atomic.Bool
}

// Open creates or opens a SQLite database at the given path and returns it
// as a storage. Pragmas and migrations are applied automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string) (storage.IStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	Logger.Infof("opened sqlite storage at %s", path)
	return &storeImpl{
		db:         db,
		categories: xsync.NewMapOf[string, *schema.Category](),
	}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// version 0 databases only lack the categories table, which schema.sql
	// creates, so no further migration steps are needed yet
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func (s *storeImpl) checkOpen() error {
	if s.closed.Load() {
		return storage.NewError(storage.RetCShutdown, "storage is shut down")
	}
	return nil
}

// categoryFor returns the registered base category of a (possibly aggregate) category
func (s *storeImpl) categoryFor(category *schema.Category) (*schema.Category, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	name := category.Base().Name()
	cat, ok := s.categories.Load(name)
	if !ok {
		return nil, storage.Errorf(storage.RetCUnknownCategory, "category %q is not registered", name)
	}
	return cat, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) RegisterCategory(category *schema.Category) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if category.IsAggregate() {
		return storage.Errorf(storage.RetCInvalidOperation, "aggregate category %s can not be registered", category)
	}
	if _, ok := s.categories.Load(category.Name()); ok {
		return nil
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	if err := s.ensureTable(category); err != nil {
		return storage.Errorf(storage.RetCInternalError, "register category %s: %v", category, err)
	}
	s.categories.Store(category.Name(), category)
	Logger.Debugf("registered category %s as table %s", category, tableName(category))
	return nil
}

func (s *storeImpl) Prepare(desc schema.StatementDescriptor) (*statement.Parsed, error) {
	if desc.Category == nil {
		return nil, storage.NewError(storage.RetCInvalidOperation, "descriptor without category")
	}
	if _, err := s.categoryFor(desc.Category); err != nil {
		return nil, err
	}
	return statement.Parse(desc)
}

func (s *storeImpl) ExecuteQuery(q *statement.Query) (storage.Cursor, error) {
	cat, err := s.categoryFor(q.Category)
	if err != nil {
		return nil, err
	}

	sqlText, args, err := compileQuery(cat, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(sqlText, args...)
	if err != nil {
		return nil, storage.Errorf(storage.RetCInternalError, "query %s: %v", cat, err)
	}
	result, err := scanRows(cat, rows)
	if err != nil {
		return nil, storage.Errorf(storage.RetCInternalError, "read %s: %v", cat, err)
	}

	switch q.Kind {
	case statement.KindQueryCount:
		n, _ := schema.AsInt64(result[0][countAlias])
		return storage.NewSliceCursor([]schema.Pojo{storage.CountRow(n)}), nil
	case statement.KindQueryDistinct:
		var values []any
		seen := make(map[string]struct{})
		for _, row := range result {
			v, ok := row[q.AggregateKey]
			if !ok {
				continue
			}
			id := fmt.Sprintf("%T:%v", v, v)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			values = append(values, v)
		}
		return storage.NewSliceCursor([]schema.Pojo{storage.DistinctRow(q.AggregateKey, values)}), nil
	}
	return storage.NewSliceCursor(result), nil
}

func (s *storeImpl) ExecuteWrite(w *statement.Write) (int, error) {
	cat, err := s.categoryFor(w.Category)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storage.Errorf(storage.RetCInternalError, "begin: %v", err)
	}
	defer tx.Rollback()

	var affected int64
	switch w.Kind {
	case statement.KindAdd:
		affected, err = insert(tx, cat, w)
	case statement.KindReplace:
		var c compiled
		if c, err = compileDelete(cat, w.Where); err == nil {
			if _, err = exec(tx, c); err == nil {
				affected, err = insert(tx, cat, w)
			}
		}
	case statement.KindUpdate:
		var c compiled
		if c, err = compileUpdate(cat, w); err == nil {
			affected, err = exec(tx, c)
		}
	case statement.KindRemove:
		var c compiled
		if c, err = compileDelete(cat, w.Where); err == nil {
			affected, err = exec(tx, c)
		}
	default:
		return 0, storage.Errorf(storage.RetCInvalidOperation, "%s is not a write", w.Kind)
	}
	if err != nil {
		var serr *storage.Error
		if errors.As(err, &serr) {
			return 0, serr
		}
		return 0, storage.Errorf(storage.RetCInternalError, "%s %s: %v", w.Kind, cat, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.Errorf(storage.RetCInternalError, "commit: %v", err)
	}
	return int(affected), nil
}

func (s *storeImpl) Purge(agentID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	var firstErr error
	s.categories.Range(func(name string, cat *schema.Category) bool {
		if _, ok := cat.Key(schema.KeyAgentID.Name); !ok {
			return true
		}
		res, err := s.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(tableName(cat)), quoteIdent(schema.KeyAgentID.Name)),
			agentID)
		if err != nil {
			firstErr = storage.Errorf(storage.RetCInternalError, "purge %s: %v", name, err)
			return false
		}
		if n, _ := res.RowsAffected(); n > 0 {
			Logger.Debugf("purged %d rows of agent %s from %s", n, agentID, name)
		}
		return true
	})
	return firstErr
}

func (s *storeImpl) SaveFile(name string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`
		INSERT INTO files (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, name, data, time.Now().UnixMilli())
	if err != nil {
		return storage.Errorf(storage.RetCInternalError, "save file %q: %v", name, err)
	}
	return nil
}

func (s *storeImpl) LoadFile(name string) ([]byte, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	var data []byte
	err := s.db.QueryRow("SELECT data FROM files WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.Errorf(storage.RetCInternalError, "load file %q: %v", name, err)
	}
	return data, true, nil
}

func (s *storeImpl) Shutdown() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	Logger.Infof("closing sqlite storage")
	return s.db.Close()
}

// --------------------------------------------------------------------------
// DDL
// --------------------------------------------------------------------------

// tableName maps a category to the name of its table
func tableName(cat *schema.Category) string {
	return "cat_" + cat.Base().Name()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnType(t schema.KeyType) string {
	switch t {
	case schema.KeyTypeString, schema.KeyTypePojo, schema.KeyTypeList:
		return "TEXT"
	case schema.KeyTypeInt, schema.KeyTypeLong:
		return "INTEGER"
	case schema.KeyTypeBool:
		return "BOOLEAN"
	case schema.KeyTypeDouble:
		return "REAL"
	}
	return ""
}

// ensureTable creates the table of a category, adds columns for keys an
// existing table lacks and creates the indexes of all indexed keys
func (s *storeImpl) ensureTable(cat *schema.Category) error {
	table := tableName(cat)

	existing := make(map[string]bool)
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(existing) == 0 {
		cols := []string{quoteIdent(seqColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
		for _, k := range cat.Keys() {
			cols = append(cols, strings.TrimSpace(quoteIdent(k.Name)+" "+columnType(k.Type)))
		}
		ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
		if _, err := tx.Exec(ddl); err != nil {
			return err
		}
	} else {
		for _, k := range cat.Keys() {
			if existing[k.Name] {
				continue
			}
			ddl := strings.TrimSpace(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				quoteIdent(table), quoteIdent(k.Name), columnType(k.Type)))
			if _, err := tx.Exec(ddl); err != nil {
				return err
			}
		}
	}

	for _, k := range cat.IndexedKeys() {
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent("idx_"+table+"_"+k.Name), quoteIdent(table), quoteIdent(k.Name))
		if _, err := tx.Exec(ddl); err != nil {
			return err
		}
	}

	spec, err := json.Marshal(cat.Spec())
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO categories (name, payload, spec, table_name) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, spec = excluded.spec
	`, cat.Name(), cat.Payload(), string(spec), table)
	if err != nil {
		return err
	}
	return tx.Commit()
}
