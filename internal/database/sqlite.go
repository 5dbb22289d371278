package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
)

const schemaCacheTTL = 5 * time.Minute

// SQLiteDB is a read-only connector for SQLite database files.
type SQLiteDB struct {
	db     *sql.DB
	path   string
	cache  *schemaCache
	logger *observability.Logger
}

// NewSQLite opens the database file in read-only mode and verifies
// connectivity. Write statements fail at the driver level.
func NewSQLite(path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=true", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY on concurrent reads of the same file handle.
	db.SetMaxOpenConns(1)

	return &SQLiteDB{
		db:     db,
		path:   path,
		cache:  newSchemaCache(schemaCacheTTL),
		logger: observability.NewLogger("sqlite"),
	}, nil
}

// Path returns the database file path
func (s *SQLiteDB) Path() string {
	return s.path
}

// Ping tests the database connection
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// InvalidateSchema drops the cached snapshot so the next Introspect re-reads
// table definitions.
func (s *SQLiteDB) InvalidateSchema() {
	s.cache.invalidate()
}

// Introspect reads table and column definitions plus row counts. Results are
// cached; call InvalidateSchema after replacing the database file.
func (s *SQLiteDB) Introspect(ctx context.Context) (schema.Snapshot, error) {
	if snap, ok := s.cache.get(); ok {
		return snap, nil
	}

	tableNames, err := s.listTables(ctx)
	if err != nil {
		return nil, apperrors.NewSchemaIntrospectionError(err)
	}

	snap := make(schema.Snapshot, len(tableNames))
	for _, tableName := range tableNames {
		table, err := s.introspectTable(ctx, tableName)
		if err != nil {
			return nil, apperrors.NewSchemaIntrospectionError(err)
		}
		snap[tableName] = table
	}

	s.cache.set(snap)
	s.logger.Debug(ctx, "Schema snapshot refreshed", map[string]interface{}{
		"tables": len(snap),
	})
	return snap, nil
}

func (s *SQLiteDB) listTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteDB) introspectTable(ctx context.Context, tableName string) (schema.Table, error) {
	// Table names come from sqlite_master, not user input; quoting guards
	// against names with spaces or keywords.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, tableName))
	if err != nil {
		return schema.Table{}, fmt.Errorf("failed to read columns of %s: %w", tableName, err)
	}
	defer rows.Close()

	columns := make(map[string]schema.Column)
	for rows.Next() {
		var (
			cid          int
			name         string
			declaredType string
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &name, &declaredType, &notNull, &defaultValue, &primaryKey); err != nil {
			return schema.Table{}, fmt.Errorf("failed to scan column of %s: %w", tableName, err)
		}
		columns[name] = schema.Column{
			Name:       name,
			Type:       normalizeSQLiteType(declaredType),
			Nullable:   notNull == 0,
			PrimaryKey: primaryKey > 0,
		}
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, err
	}

	var rowCount int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, tableName)).Scan(&rowCount); err != nil {
		return schema.Table{}, fmt.Errorf("failed to count rows of %s: %w", tableName, err)
	}

	return schema.Table{
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// normalizeSQLiteType maps declared column types onto the normalized type
// vocabulary. SQLite declared types are free-form, so this follows the
// engine's own affinity rules.
func normalizeSQLiteType(declared string) string {
	t := strings.ToUpper(strings.TrimSpace(declared))
	if idx := strings.Index(t, "("); idx >= 0 {
		t = strings.TrimSpace(t[:idx])
	}

	switch {
	case t == "":
		return "TEXT"
	case strings.Contains(t, "INT"):
		return "INTEGER"
	case t == "REAL" || strings.Contains(t, "DOUB") || strings.Contains(t, "FLOA"):
		return "REAL"
	case strings.Contains(t, "DECIMAL") || strings.Contains(t, "NUMERIC"):
		return "DECIMAL"
	case t == "DATETIME" || t == "TIMESTAMP" || t == "DATE":
		return t
	case strings.Contains(t, "BOOL"):
		return "BOOLEAN"
	case strings.Contains(t, "CHAR") || strings.Contains(t, "TEXT") || strings.Contains(t, "CLOB"):
		return "TEXT"
	case strings.Contains(t, "BLOB"):
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Query executes parameterized query text. Named placeholders are passed to
// the driver as named arguments; SQLite resolves :name natively.
func (s *SQLiteDB) Query(ctx context.Context, text string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if err := checkParamCoverage(text, params); err != nil {
		return nil, apperrors.NewQueryExecutionError(err)
	}

	args := make([]interface{}, 0, len(params))
	for _, name := range ParamNames(text) {
		args = append(args, sql.Named(name, params[name]))
	}

	rows, err := s.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionError(err)
	}
	defer rows.Close()

	return scanRows(rows)
}
