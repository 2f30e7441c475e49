package readers

import (
	"context"
	"fmt"

	"scrub/internal/dbclient"
	"scrub/internal/pipeline"
)

// ── Database Reader ────────────────────────────────────────
// Streams rows from a SQL query against an external database. Pages
// through the cursor in batches so a large table never has to fit in
// memory.

const dbFetchSize = 500

type databaseReader struct{}

func init() { Register(&databaseReader{}) }

func (r *databaseReader) Spec() Spec {
	return Spec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []ConfigField{
			{Key: "driver", Label: "Driver", Type: "select", Required: true, Options: []string{"sqlite", "mysql", "postgres"}},
			{Key: "query", Label: "Query", Type: "string", Required: true, Help: "SELECT statement producing the raw rows"},
			{Key: "path", Label: "File Path", Type: "file", Required: false, Help: "SQLite database file (sqlite driver only)"},
			{Key: "host", Label: "Host", Type: "string", Required: false},
			{Key: "port", Label: "Port", Type: "number", Required: false},
			{Key: "database", Label: "Database", Type: "string", Required: false},
			{Key: "username", Label: "Username", Type: "string", Required: false},
			{Key: "password", Label: "Password", Type: "password", Required: false},
			{Key: "sslMode", Label: "SSL Mode", Type: "string", Required: false, Default: "disable"},
		},
	}
}

// connInfo builds the dbclient connection info from reader config.
func connInfo(cfg Config) (dbclient.ConnInfo, string, error) {
	driver, _ := cfg["driver"].(string)
	query, _ := cfg["query"].(string)
	if driver == "" || query == "" {
		return dbclient.ConnInfo{}, "", fmt.Errorf("driver and query are required")
	}

	port := 0
	switch p := cfg["port"].(type) {
	case float64:
		port = int(p)
	case int:
		port = p
	}

	info := dbclient.ConnInfo{
		Driver:   driver,
		Host:     str(cfg, "host"),
		Port:     port,
		Database: str(cfg, "database"),
		Username: str(cfg, "username"),
		Password: str(cfg, "password"),
		SSLMode:  str(cfg, "sslMode"),
		Path:     str(cfg, "path"),
	}
	return info, query, nil
}

func str(cfg Config, key string) string {
	s, _ := cfg[key].(string)
	return s
}

func (r *databaseReader) Discover(ctx context.Context, cfg Config) ([]string, error) {
	info, query, err := connInfo(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := dbclient.New(info)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	page, err := conn.Execute(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	return page.Columns, nil
}

func (r *databaseReader) Rows(ctx context.Context, cfg Config) (<-chan pipeline.SourceRow, <-chan error) {
	out := make(chan pipeline.SourceRow, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		info, query, err := connInfo(cfg)
		if err != nil {
			errCh <- err
			return
		}
		conn, err := dbclient.New(info)
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()

		// Fail the run up front on an unreachable source rather than on
		// the first query.
		if err := conn.TestConnection(ctx); err != nil {
			errCh <- fmt.Errorf("connect: %w", err)
			return
		}

		page, err := conn.Execute(ctx, query, dbFetchSize)
		if err != nil {
			errCh <- fmt.Errorf("execute: %w", err)
			return
		}

		rowNum := 0
		if !emitPage(ctx, out, page, &rowNum) {
			return
		}
		for page.HasMore {
			page, err = conn.FetchMore(ctx, dbFetchSize)
			if err != nil {
				errCh <- fmt.Errorf("fetch more: %w", err)
				return
			}
			if !emitPage(ctx, out, page, &rowNum) {
				return
			}
		}
	}()

	return out, errCh
}

// emitPage streams one cursor page. Shared with the mongo reader.
func emitPage(ctx context.Context, out chan<- pipeline.SourceRow, page *dbclient.QueryPage, rowNum *int) bool {
	for _, row := range page.Rows {
		*rowNum++
		values := make(map[string]any, len(page.Columns))
		for i, col := range page.Columns {
			if i < len(row) {
				values[col] = row[i]
			}
		}
		sr := pipeline.SourceRow{Row: pipeline.RawRow{Num: *rowNum, Values: values}}
		select {
		case out <- sr:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
