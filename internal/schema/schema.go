// Package schema defines the read-only database schema snapshot consumed by
// the normalizer, validator and compiler. Snapshots are produced by the
// database connectors and treated as immutable for the duration of a run.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Column describes a single table column with its normalized type.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// Table describes a table and its columns, keyed by column name.
type Table struct {
	Name     string            `json:"name"`
	Columns  map[string]Column `json:"columns"`
	RowCount int64             `json:"row_count"`
}

// Snapshot maps table name to table schema. It must not be mutated after
// construction; concurrent pipeline runs share it without coordination.
type Snapshot map[string]Table

// numericTypes are the normalized types eligible for SUM/AVG aggregation and
// for semantic money-term matching.
var numericTypes = map[string]bool{
	"INTEGER": true,
	"REAL":    true,
	"DECIMAL": true,
	"FLOAT":   true,
	"NUMERIC": true,
}

// temporalTypes are the normalized types recognized as time columns.
var temporalTypes = map[string]bool{
	"TIMESTAMP": true,
	"DATETIME":  true,
	"DATE":      true,
}

// IsNumericType reports whether a normalized column type is numeric.
func IsNumericType(t string) bool {
	return numericTypes[strings.ToUpper(t)]
}

// IsTemporalType reports whether a normalized column type holds time values.
func IsTemporalType(t string) bool {
	return temporalTypes[strings.ToUpper(t)]
}

// TableNames returns all table names in deterministic order.
func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnNames returns the table's column names in deterministic order.
func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasColumn reports whether the table contains the column, matched verbatim.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Columns[name]
	return ok
}

// PromptContext renders the snapshot as a compact text block suitable for
// inclusion in a language model prompt.
func (s Snapshot) PromptContext() string {
	var sb strings.Builder
	for _, tableName := range s.TableNames() {
		table := s[tableName]
		cols := make([]string, 0, len(table.Columns))
		for _, colName := range table.ColumnNames() {
			col := table.Columns[colName]
			cols = append(cols, fmt.Sprintf("%s (%s)", col.Name, col.Type))
		}
		sb.WriteString(fmt.Sprintf("- %s (%d rows): %s\n", tableName, table.RowCount, strings.Join(cols, ", ")))
	}
	return sb.String()
}
