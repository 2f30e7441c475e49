package dbclient

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN from connection info.
func buildMySQLDSN(info ConnInfo) string {
	port := info.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		info.Username, info.Password, info.Host, port, info.Database,
	)
	if info.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
