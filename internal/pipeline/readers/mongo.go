package readers

import (
	"context"
	"encoding/json"
	"fmt"

	"scrub/internal/dbclient"
	"scrub/internal/pipeline"
)

// ── MongoDB Reader ─────────────────────────────────────────
// Streams rows from a MongoDB collection find. Documents are
// flattened into column-labelled rows by the connector so the field
// map can address nested values with dot paths.

type mongoReader struct{}

func init() { Register(&mongoReader{}) }

func (r *mongoReader) Spec() Spec {
	return Spec{
		Type:  "mongo",
		Label: "MongoDB Collection",
		ConfigFields: []ConfigField{
			{Key: "host", Label: "Host / URI", Type: "string", Required: true, Help: "Host name or full mongodb:// / mongodb+srv:// URI"},
			{Key: "port", Label: "Port", Type: "number", Required: false, Default: "27017"},
			{Key: "database", Label: "Database", Type: "string", Required: true},
			{Key: "collection", Label: "Collection", Type: "string", Required: true},
			{Key: "username", Label: "Username", Type: "string", Required: false},
			{Key: "password", Label: "Password", Type: "password", Required: false},
			{Key: "filter", Label: "Filter", Type: "string", Required: false, Help: "Find filter as a JSON document (default: all documents)"},
		},
	}
}

// mongoConfig assembles the connection info and the JSON query doc the
// mongo connector executes.
func mongoConfig(cfg Config) (dbclient.ConnInfo, string, error) {
	host := str(cfg, "host")
	database := str(cfg, "database")
	collection := str(cfg, "collection")
	if host == "" || database == "" || collection == "" {
		return dbclient.ConnInfo{}, "", fmt.Errorf("host, database and collection are required")
	}

	port := 0
	switch p := cfg["port"].(type) {
	case float64:
		port = int(p)
	case int:
		port = p
	}
	info := dbclient.ConnInfo{
		Driver:   "mongo",
		Host:     host,
		Port:     port,
		Database: database,
		Username: str(cfg, "username"),
		Password: str(cfg, "password"),
	}

	query := map[string]any{"collection": collection}
	if filter := str(cfg, "filter"); filter != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(filter), &parsed); err != nil {
			return dbclient.ConnInfo{}, "", fmt.Errorf("parse filter: %w", err)
		}
		query["filter"] = parsed
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return dbclient.ConnInfo{}, "", fmt.Errorf("marshal query: %w", err)
	}
	return info, string(queryJSON), nil
}

func (r *mongoReader) Discover(ctx context.Context, cfg Config) ([]string, error) {
	info, query, err := mongoConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := dbclient.New(info)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	page, err := conn.Execute(ctx, query, 10)
	if err != nil {
		return nil, err
	}
	return page.Columns, nil
}

func (r *mongoReader) Rows(ctx context.Context, cfg Config) (<-chan pipeline.SourceRow, <-chan error) {
	out := make(chan pipeline.SourceRow, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		info, query, err := mongoConfig(cfg)
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

		// mongo.Connect does not dial; ping before the find so an
		// unreachable server fails the run up front.
		if err := conn.TestConnection(ctx); err != nil {
			errCh <- fmt.Errorf("connect: %w", err)
			return
		}

		page, err := conn.Execute(ctx, query, dbFetchSize)
		if err != nil {
			errCh <- fmt.Errorf("find: %w", err)
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
