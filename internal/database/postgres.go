package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// PostgresDB is a read-only connector for PostgreSQL user databases.
type PostgresDB struct {
	db     *sql.DB
	cache  *schemaCache
	logger *observability.Logger
}

// NewPostgres opens a connection pool and verifies connectivity
func NewPostgres(config PostgresConfig) (*PostgresDB, error) {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s default_transaction_read_only=on",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresDB{
		db:     db,
		cache:  newSchemaCache(schemaCacheTTL),
		logger: observability.NewLogger("postgres"),
	}, nil
}

// Ping tests the database connection
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// InvalidateSchema drops the cached snapshot
func (p *PostgresDB) InvalidateSchema() {
	p.cache.invalidate()
}

// Introspect reads table and column definitions from information_schema for
// the public schema, with estimated row counts from pg_class.
func (p *PostgresDB) Introspect(ctx context.Context) (schema.Snapshot, error) {
	if snap, ok := p.cache.get(); ok {
		return snap, nil
	}

	query := `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_name = c.table_name
		             AND kcu.column_name = c.column_name
		       ) AS is_primary
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_name = c.table_name AND t.table_schema = c.table_schema
		WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.NewSchemaIntrospectionError(err)
	}
	defer rows.Close()

	snap := make(schema.Snapshot)
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		var isPrimary bool
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable, &isPrimary); err != nil {
			return nil, apperrors.NewSchemaIntrospectionError(err)
		}

		table, exists := snap[tableName]
		if !exists {
			table = schema.Table{
				Name:    tableName,
				Columns: make(map[string]schema.Column),
			}
		}
		table.Columns[columnName] = schema.Column{
			Name:       columnName,
			Type:       normalizePostgresType(dataType),
			Nullable:   isNullable == "YES",
			PrimaryKey: isPrimary,
		}
		snap[tableName] = table
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewSchemaIntrospectionError(err)
	}

	for tableName, table := range snap {
		var estimate sql.NullInt64
		err := p.db.QueryRowContext(ctx,
			`SELECT reltuples::bigint FROM pg_class WHERE relname = $1`, tableName).Scan(&estimate)
		if err == nil && estimate.Valid && estimate.Int64 >= 0 {
			table.RowCount = estimate.Int64
			snap[tableName] = table
		}
	}

	p.cache.set(snap)
	p.logger.Debug(ctx, "Schema snapshot refreshed", map[string]interface{}{
		"tables": len(snap),
	})
	return snap, nil
}

// normalizePostgresType maps information_schema data types onto the
// normalized type vocabulary.
func normalizePostgresType(dataType string) string {
	t := strings.ToUpper(dataType)
	switch {
	case t == "SMALLINT" || t == "INTEGER" || t == "BIGINT":
		return "INTEGER"
	case t == "NUMERIC" || t == "DECIMAL":
		return "DECIMAL"
	case t == "REAL" || t == "DOUBLE PRECISION":
		return "REAL"
	case strings.HasPrefix(t, "TIMESTAMP"):
		return "TIMESTAMP"
	case t == "DATE":
		return "DATE"
	case t == "BOOLEAN":
		return "BOOLEAN"
	case t == "TEXT" || strings.HasPrefix(t, "CHARACTER"):
		return "TEXT"
	default:
		return t
	}
}

// Query executes parameterized query text. lib/pq has no named-argument
// support, so :name placeholders are rewritten to $N positionals with values
// bound in first-occurrence order.
func (p *PostgresDB) Query(ctx context.Context, text string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if err := checkParamCoverage(text, params); err != nil {
		return nil, apperrors.NewQueryExecutionError(err)
	}

	positionalText, args := rewriteToPositional(text, params)

	rows, err := p.db.QueryContext(ctx, positionalText, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionError(err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func rewriteToPositional(text string, params map[string]interface{}) (string, []interface{}) {
	names := ParamNames(text)
	position := make(map[string]int, len(names))
	args := make([]interface{}, 0, len(names))
	for i, name := range names {
		position[name] = i + 1
		args = append(args, params[name])
	}

	rewritten := paramTokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		return fmt.Sprintf("$%d", position[token[1:]])
	})
	return rewritten, args
}
