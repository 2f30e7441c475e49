package dbclient

import (
	"context"
	"fmt"
)

// ── Connector ──────────────────────────────────────────────
// Read-only access to external databases used as row sources. The
// pipeline never mutates a source system, so connectors expose exactly
// a connectivity check and cursor-paged reads.

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
}

// ConnInfo describes how to reach an external database.
type ConnInfo struct {
	Driver   string            // "sqlite" | "mysql" | "postgres" | "mongo"
	Host     string            // server host, or full URI for mongo
	Port     int               // 0 = driver default
	Database string            //
	Username string            //
	Password string            //
	SSLMode  string            // postgres sslmode / mysql tls toggle
	Path     string            // sqlite file path
	Options  map[string]string // driver-specific extras (mongo authSource, ...)
}

// Connector abstracts cursor-paged reads from an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a read query, opens a cursor, and fetches the first
	// fetchSize rows. For mongo the query is a JSON document (see
	// mongoQuery); for SQL drivers it must be a SELECT-shaped
	// statement.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Close closes the connection and any open cursor.
	Close() error
}

// New creates a Connector for the given connection info.
func New(info ConnInfo) (Connector, error) {
	switch info.Driver {
	case "sqlite":
		return newSQLiteConnector(info)
	case "mysql":
		return newSQLConnector("mysql", buildMySQLDSN(info))
	case "postgres":
		return newSQLConnector("postgres", buildPostgresDSN(info))
	case "mongo":
		return newMongoConnector(info)
	default:
		return nil, fmt.Errorf("unsupported driver: %q", info.Driver)
	}
}
