package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoConnector implements Connector for MongoDB. Find-only: the
// pipeline treats collections strictly as row sources.
type mongoConnector struct {
	client *mongo.Client
	dbName string

	mu           sync.Mutex
	cursor       *mongo.Cursor
	cancelCursor context.CancelFunc
	fetched      int
}

// mongoQuery is the JSON document a database query config holds for
// MongoDB sources.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Limit      int64          `json:"limit,omitempty"`
}

func newMongoConnector(info ConnInfo) (*mongoConnector, error) {
	uri := buildMongoURI(info)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	dbName := info.Database
	if dbName == "" {
		return nil, fmt.Errorf("mongo source requires a database name")
	}
	return &mongoConnector{client: client, dbName: dbName}, nil
}

// buildMongoURI accepts either a full mongodb:// / mongodb+srv:// URI
// in Host or assembles one from the connection fields.
func buildMongoURI(info ConnInfo) string {
	if strings.HasPrefix(info.Host, "mongodb://") || strings.HasPrefix(info.Host, "mongodb+srv://") {
		uri := info.Host
		// Atlas connection strings ship with a password placeholder.
		if info.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", info.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", info.Password)
		}
		return uri
	}

	port := info.Port
	if port == 0 {
		port = 27017
	}
	var uri string
	if info.Username != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", info.Username, info.Password, info.Host, port)
	} else {
		uri = fmt.Sprintf("mongodb://%s:%d", info.Host, port)
	}
	if len(info.Options) > 0 {
		params := make([]string, 0, len(info.Options))
		for k, v := range info.Options {
			params = append(params, k+"="+v)
		}
		sort.Strings(params)
		uri += "?" + strings.Join(params, "&")
	}
	return uri
}

func (c *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.client.Ping(ctx, nil)
}

func (c *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCursorLocked(ctx)

	var q mongoQuery
	if err := json.Unmarshal([]byte(query), &q); err != nil {
		return nil, fmt.Errorf("parse mongo query: %w", err)
	}
	if q.Collection == "" {
		return nil, fmt.Errorf("mongo query requires a collection")
	}
	if fetchSize <= 0 {
		fetchSize = 500
	}

	filter := q.Filter
	if filter == nil {
		filter = map[string]any{}
	}
	opts := options.Find()
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}
	if q.Sort != nil {
		opts.SetSort(q.Sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	// The cursor is paged across later FetchMore calls, so its context
	// must survive this call. closeCursorLocked owns the cancel.
	findCtx, cancel := context.WithCancel(ctx)

	cur, err := c.client.Database(c.dbName).Collection(q.Collection).Find(findCtx, filter, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("find: %w", err)
	}
	c.cursor = cur
	c.cancelCursor = cancel
	c.fetched = 0

	return c.fetchBatchLocked(ctx, fetchSize)
}

func (c *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor == nil {
		return nil, fmt.Errorf("no active cursor — execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = 500
	}
	return c.fetchBatchLocked(ctx, fetchSize)
}

// fetchBatchLocked reads up to fetchSize documents, flattens them, and
// shapes the batch into the columnar QueryPage. Columns are the sorted
// union of keys seen in the batch.
func (c *mongoConnector) fetchBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []map[string]any
	for len(docs) < fetchSize && c.cursor.Next(ctx) {
		var raw bson.M
		if err := c.cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		flat := make(map[string]any)
		flattenDoc("", raw, flat)
		docs = append(docs, flat)
	}

	c.fetched += len(docs)
	total := c.fetched

	hasMore := true
	if len(docs) < fetchSize {
		if err := c.cursor.Err(); err != nil {
			c.closeCursorLocked(ctx)
			return nil, fmt.Errorf("iterate: %w", err)
		}
		hasMore = false
		c.closeCursorLocked(ctx)
	}

	colSet := make(map[string]bool)
	for _, d := range docs {
		for k := range d {
			colSet[k] = true
		}
	}
	columns := make([]string, 0, len(colSet))
	for k := range colSet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]any, len(docs))
	for i, d := range docs {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = d[col]
		}
		rows[i] = row
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: total,
		HasMore:      hasMore,
	}, nil
}

// flattenDoc flattens nested documents into dot-path keys and maps
// BSON types onto the pipeline's scalar model. Arrays are carried as
// their JSON text; the extractor decides whether to use them.
func flattenDoc(prefix string, doc map[string]any, out map[string]any) {
	for k, v := range doc {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch x := v.(type) {
		case bson.M:
			flattenDoc(key, x, out)
		case map[string]any:
			flattenDoc(key, x, out)
		case bson.D:
			m := make(map[string]any, len(x))
			for _, e := range x {
				m[e.Key] = e.Value
			}
			flattenDoc(key, m, out)
		default:
			out[key] = convertBSONValue(x)
		}
	}
}

func convertBSONValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case bson.A:
		b, _ := json.Marshal(x)
		return string(b)
	case []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return v
	}
}

func (c *mongoConnector) closeCursorLocked(ctx context.Context) {
	if c.cursor != nil {
		c.cursor.Close(ctx)
		c.cursor = nil
	}
	if c.cancelCursor != nil {
		c.cancelCursor()
		c.cancelCursor = nil
	}
	c.fetched = 0
}

func (c *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.mu.Lock()
	c.closeCursorLocked(ctx)
	c.mu.Unlock()
	return c.client.Disconnect(ctx)
}
