package dbclient

import (
	"fmt"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an external SQLite file.
// Opens in WAL mode with busy timeout so a concurrently written file
// can still be read.
func newSQLiteConnector(info ConnInfo) (*sqlConnector, error) {
	if info.Path == "" {
		return nil, fmt.Errorf("sqlite source requires a file path")
	}
	dsn := info.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	return newSQLConnector("sqlite", dsn)
}
