package dbclient

import (
	"fmt"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a Postgres connection string from
// connection info.
func buildPostgresDSN(info ConnInfo) string {
	port := info.Port
	if port == 0 {
		port = 5432
	}
	sslMode := info.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		info.Host, port, info.Username, info.Password, info.Database, sslMode,
	)
}
