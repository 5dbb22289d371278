// Package history persists past question runs with embeddings so similar
// questions can be surfaced before spending a model call.
package history

import (
	"context"
	"time"
)

// Entry is one recorded question run.
type Entry struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	QueryText  string    `json:"query_text"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// SimilarQuestion is a past question ranked by embedding similarity.
type SimilarQuestion struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	QueryText  string    `json:"query_text"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the persistence interface for question history.
type Store interface {
	// Record stores one run. Re-asking the same question updates the
	// existing row instead of growing the table.
	Record(ctx context.Context, entry Entry, embedding []float32) error

	// Recent returns the most recent entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// FindSimilar returns past questions ranked by cosine similarity to the
	// embedding, best first. Only matches above the similarity floor return.
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]SimilarQuestion, error)

	// Ping tests store connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}
