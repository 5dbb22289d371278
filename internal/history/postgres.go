package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// similarityFloor is the minimum cosine similarity for FindSimilar matches.
const similarityFloor = 0.8

// PostgresConfig holds PostgreSQL connection configuration for the history
// store.
type PostgresConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// PostgresStore implements Store on PostgreSQL with pgvector.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity
func NewPostgresStore(config PostgresConfig) (*PostgresStore, error) {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// Ping tests the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Record stores one question run, updating the row on question conflicts.
func (s *PostgresStore) Record(ctx context.Context, entry Entry, embedding []float32) error {
	vector := pgvector.NewVector(embedding)

	query := `
		INSERT INTO question_history (id, question, query_text, embedding, success, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (question) DO UPDATE SET
			query_text = EXCLUDED.query_text,
			embedding = EXCLUDED.embedding,
			success = EXCLUDED.success,
			duration_ms = EXCLUDED.duration_ms,
			created_at = EXCLUDED.created_at
	`

	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query, id, entry.Question, entry.QueryText, vector, entry.Success, entry.DurationMs, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record question history: %w", err)
	}

	return nil
}

// Recent returns the most recent entries, newest first
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, question, query_text, success, duration_ms, created_at
		FROM question_history
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query question history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Question, &entry.QueryText, &entry.Success, &entry.DurationMs, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}

// FindSimilar returns past questions ranked by cosine similarity
func (s *PostgresStore) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]SimilarQuestion, error) {
	if limit <= 0 {
		limit = 5
	}

	vector := pgvector.NewVector(embedding)

	query := `
		SELECT id, question, query_text,
		       1 - (embedding <=> $1) AS similarity,
		       created_at
		FROM question_history
		WHERE success AND 1 - (embedding <=> $1) > $2
		ORDER BY similarity DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, vector, similarityFloor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar questions: %w", err)
	}
	defer rows.Close()

	var similar []SimilarQuestion
	for rows.Next() {
		var sq SimilarQuestion
		if err := rows.Scan(&sq.ID, &sq.Question, &sq.QueryText, &sq.Similarity, &sq.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan similar question row: %w", err)
		}
		similar = append(similar, sq)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating similar question rows: %w", err)
	}

	return similar, nil
}
