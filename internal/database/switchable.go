package database

import (
	"context"
	"sync"

	"github.com/askdb/askdb/internal/schema"
)

// Switchable is a Database whose underlying connector can be replaced at
// runtime, used when a new database file is uploaded. In-flight queries
// finish on the connector they started with.
type Switchable struct {
	mu      sync.RWMutex
	current Database
}

// NewSwitchable wraps an initial connector
func NewSwitchable(initial Database) *Switchable {
	return &Switchable{current: initial}
}

// Swap replaces the active connector and returns the previous one so the
// caller can close it.
func (s *Switchable) Swap(db Database) Database {
	s.mu.Lock()
	previous := s.current
	s.current = db
	s.mu.Unlock()
	return previous
}

// Current returns the active connector
func (s *Switchable) Current() Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Introspect delegates to the active connector
func (s *Switchable) Introspect(ctx context.Context) (schema.Snapshot, error) {
	return s.Current().Introspect(ctx)
}

// Query delegates to the active connector
func (s *Switchable) Query(ctx context.Context, text string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return s.Current().Query(ctx, text, params)
}

// Ping delegates to the active connector
func (s *Switchable) Ping(ctx context.Context) error {
	return s.Current().Ping(ctx)
}

// Close closes the active connector
func (s *Switchable) Close() error {
	return s.Current().Close()
}
