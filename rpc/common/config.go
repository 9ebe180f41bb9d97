package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// StorageType selects the backing store of the server
type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageSQLite StorageType = "sqlite"
)

// ServerConfig holds all configuration parameters of the gateway server.
type ServerConfig struct {
	// HTTP api settings
	Endpoint string

	// Backing store
	Storage StorageType
	DataDir string

	// Access control
	UsersFile         string
	TrustFile         string
	TrustedCategories []string

	// Lifetimes
	TokenTimeout   time.Duration
	CursorTimeout  time.Duration
	SessionTimeout time.Duration
	DrainTimeout   time.Duration

	// Paging
	BatchSize int

	// Interval of the latency report, zero disables it
	StatsInterval time.Duration

	// Logging configuration
	LogLevel string
	LogFile  string
}

// SQLitePath returns the database file inside the data directory
func (c *ServerConfig) SQLitePath() string {
	return strings.TrimRight(c.DataDir, "/") + "/dgate.db"
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orNone := func(s string) string {
		if s == "" {
			return "<none>"
		}
		return s
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Batch Size", strconv.Itoa(c.BatchSize))

	// Storage
	addSection("Storage")
	addField("Type", string(c.Storage))
	if c.Storage == StorageSQLite {
		addField("Database", c.SQLitePath())
	}
	addField("Drain Timeout", c.DrainTimeout.String())

	// Access control
	addSection("Access Control")
	addField("Users File", orNone(c.UsersFile))
	addField("Trust File", orNone(c.TrustFile))
	addField("Log File", orNone(c.LogFile))
	addField("Trusted Categories", orNone(strings.Join(c.TrustedCategories, ", ")))

	// Lifetimes
	addSection("Lifetimes")
	addField("Token Timeout", c.TokenTimeout.String())
	addField("Cursor Timeout", c.CursorTimeout.String())
	addField("Session Timeout", c.SessionTimeout.String())

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.StatsInterval > 0 {
		addField("Stats Interval", c.StatsInterval.String())
	} else {
		addField("Stats Interval", "disabled")
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int
	User          string
	Password      string
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("User", c.User)

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
