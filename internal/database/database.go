// Package database provides read-only connectors for user databases: schema
// introspection and execution of compiled parameterized queries. Connectors
// never interpolate values into query text; parameters travel separately to
// the driver.
package database

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/schema"
)

// Database is the connector interface consumed by the executor and pipeline.
type Database interface {
	// Introspect returns the current schema snapshot. Implementations cache
	// snapshots for a short TTL.
	Introspect(ctx context.Context) (schema.Snapshot, error)

	// Query executes parameterized query text against the database. The
	// params map must cover every :name placeholder in the text.
	Query(ctx context.Context, text string, params map[string]interface{}) ([]map[string]interface{}, error)

	// Ping tests connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// paramTokenPattern matches :name placeholders in compiled query text.
var paramTokenPattern = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

// ParamNames returns the placeholder names in the text, in first-occurrence
// order, without duplicates.
func ParamNames(text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range paramTokenPattern.FindAllStringSubmatch(text, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// checkParamCoverage verifies the params map covers every placeholder.
func checkParamCoverage(text string, params map[string]interface{}) error {
	for _, name := range ParamNames(text) {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("missing value for parameter '%s'", name)
		}
	}
	return nil
}

// schemaCache holds an introspected snapshot for a short TTL so repeated
// pipeline runs do not re-read table definitions.
type schemaCache struct {
	mu        sync.RWMutex
	snapshot  schema.Snapshot
	fetchedAt time.Time
	ttl       time.Duration
}

func newSchemaCache(ttl time.Duration) *schemaCache {
	return &schemaCache{ttl: ttl}
}

func (c *schemaCache) get() (schema.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return c.snapshot, true
}

func (c *schemaCache) set(snap schema.Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

func (c *schemaCache) invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

// scanRows reads all result rows into generic maps keyed by column name.
// Driver-level byte slices are converted to strings for JSON rendering.
func scanRows(rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}

	return results, nil
}
