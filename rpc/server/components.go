package server

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dGate/lib/cursor"
	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/statecache"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/ValentinKolb/dGate/lib/storage/mstore"
	"github.com/ValentinKolb/dGate/lib/storage/sqlstore"
	"github.com/ValentinKolb/dGate/lib/token"
	"github.com/ValentinKolb/dGate/lib/trust"
	"github.com/ValentinKolb/dGate/lib/writequeue"
	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/google/uuid"
)

// Components are the collaborators the adapters work with. A nil component
// disables the operations that need it, they answer with StatusUnavailable.
type Components struct {
	Categories *statecache.CategoryManager
	Statements *statecache.StatementManager
	Writes     *writequeue.Queue
	Cursors    *cursor.Sessions
	Tokens     token.IAuthority
	Storage    storage.IStorage

	ServerToken uuid.UUID
	BatchSize   int
	Version     string
}

// NewComponents builds all components from the server configuration
func NewComponents(config common.ServerConfig) (*Components, error) {
	s, err := openStorage(config)
	if err != nil {
		return nil, err
	}

	trusted, err := loadTrust(config)
	if err != nil {
		s.Shutdown()
		return nil, err
	}

	return NewComponentsWith(s, trusted, config), nil
}

// NewComponentsWith builds the components around an existing storage and trust list
func NewComponentsWith(s storage.IStorage, trusted statecache.ITrustList, config common.ServerConfig) *Components {
	serverToken := statecache.NewServerToken()

	cursorOpts := cursor.DefaultOptions()
	if config.CursorTimeout > 0 {
		cursorOpts.Timeout = config.CursorTimeout
	}

	queueOpts := writequeue.DefaultOptions()
	if config.DrainTimeout > 0 {
		queueOpts.DrainTimeout = config.DrainTimeout
	}

	tokenTimeout := config.TokenTimeout
	if tokenTimeout <= 0 {
		tokenTimeout = token.DefaultTimeout
	}

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = cursor.DefaultBatchSize
	}

	Logger.Infof("server epoch is %s", serverToken)

	return &Components{
		Categories:  statecache.NewCategoryManager(schema.NewRegistry(), trusted, s, serverToken),
		Statements:  statecache.NewStatementManager(trusted, s, serverToken),
		Writes:      writequeue.New(s, queueOpts),
		Cursors:     cursor.NewSessions(cursorOpts, config.SessionTimeout),
		Tokens:      token.NewAuthority(tokenTimeout),
		Storage:     s,
		ServerToken: serverToken,
		BatchSize:   batchSize,
		Version:     Version,
	}
}

// Close releases all components. Queued writes are drained before the
// storage shuts down.
func (c *Components) Close() error {
	if c.Cursors != nil {
		c.Cursors.Close()
	}
	if c.Tokens != nil {
		c.Tokens.Close()
	}
	if c.Writes != nil {
		return c.Writes.Shutdown()
	}
	if c.Storage != nil {
		return c.Storage.Shutdown()
	}
	return nil
}

// openStorage creates the backing store selected by the configuration
func openStorage(config common.ServerConfig) (storage.IStorage, error) {
	switch config.Storage {
	case common.StorageMemory, "":
		Logger.Infof("using in-memory storage")
		return mstore.NewMemoryStore(), nil
	case common.StorageSQLite:
		if err := os.MkdirAll(config.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		Logger.Infof("using sqlite storage at %s", config.SQLitePath())
		return sqlstore.Open(config.SQLitePath())
	default:
		return nil, fmt.Errorf("invalid storage type: %s", config.Storage)
	}
}

// loadTrust reads the allow-list file and adds the trusted categories of the config
func loadTrust(config common.ServerConfig) (*trust.AllowList, error) {
	list := trust.New(nil, nil)
	if config.TrustFile != "" {
		var err error
		if list, err = trust.Load(config.TrustFile); err != nil {
			return nil, err
		}
	}
	list = list.WithCategories(config.TrustedCategories...)

	if len(list.Categories()) == 0 || len(list.Statements()) == 0 {
		Logger.Warningf("allow-list is incomplete (%d categories, %d statements), untrusted requests will be rejected",
			len(list.Categories()), len(list.Statements()))
	}
	return list, nil
}
