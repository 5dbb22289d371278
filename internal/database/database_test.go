package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/schema"
)

func TestParamNames(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "none",
			text: "SELECT * FROM orders",
			want: nil,
		},
		{
			name: "first occurrence order",
			text: "SELECT * FROM orders WHERE status = :param1 AND amount > :param0",
			want: []string{"param1", "param0"},
		},
		{
			name: "duplicates collapse",
			text: "SELECT * FROM orders WHERE a = :p AND b = :p AND c = :q",
			want: []string{"p", "q"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParamNames(tt.text))
		})
	}
}

func TestCheckParamCoverage(t *testing.T) {
	text := "SELECT * FROM orders WHERE status = :param0 AND amount > :param1"

	err := checkParamCoverage(text, map[string]interface{}{
		"param0": "completed",
		"param1": 100,
	})
	assert.NoError(t, err)

	err = checkParamCoverage(text, map[string]interface{}{"param0": "completed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "param1")
}

func TestRewriteToPositional(t *testing.T) {
	text := "SELECT * FROM orders WHERE status = :param0 AND amount > :param1 AND region = :param0"
	params := map[string]interface{}{
		"param0": "completed",
		"param1": 100,
	}

	rewritten, args := rewriteToPositional(text, params)

	assert.Equal(t, "SELECT * FROM orders WHERE status = $1 AND amount > $2 AND region = $1", rewritten)
	assert.Equal(t, []interface{}{"completed", 100}, args)
}

func TestNormalizeSQLiteType(t *testing.T) {
	tests := []struct {
		declared string
		want     string
	}{
		{"INTEGER", "INTEGER"},
		{"int", "INTEGER"},
		{"BIGINT", "INTEGER"},
		{"REAL", "REAL"},
		{"DOUBLE", "REAL"},
		{"FLOAT", "REAL"},
		{"DECIMAL(10,2)", "DECIMAL"},
		{"NUMERIC", "DECIMAL"},
		{"DATETIME", "DATETIME"},
		{"TIMESTAMP", "TIMESTAMP"},
		{"DATE", "DATE"},
		{"BOOLEAN", "BOOLEAN"},
		{"VARCHAR(255)", "TEXT"},
		{"TEXT", "TEXT"},
		{"CLOB", "TEXT"},
		{"BLOB", "BLOB"},
		{"", "TEXT"},
		{"something odd", "TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSQLiteType(tt.declared))
		})
	}
}

func TestNormalizePostgresType(t *testing.T) {
	tests := []struct {
		dataType string
		want     string
	}{
		{"smallint", "INTEGER"},
		{"integer", "INTEGER"},
		{"bigint", "INTEGER"},
		{"numeric", "DECIMAL"},
		{"real", "REAL"},
		{"double precision", "REAL"},
		{"timestamp without time zone", "TIMESTAMP"},
		{"timestamp with time zone", "TIMESTAMP"},
		{"date", "DATE"},
		{"boolean", "BOOLEAN"},
		{"text", "TEXT"},
		{"character varying", "TEXT"},
		{"uuid", "UUID"},
	}

	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePostgresType(tt.dataType))
		})
	}
}

func TestSchemaCache(t *testing.T) {
	cache := newSchemaCache(time.Hour)

	_, ok := cache.get()
	assert.False(t, ok)

	snap := schema.Snapshot{"orders": {Name: "orders"}}
	cache.set(snap)

	got, ok := cache.get()
	require.True(t, ok)
	assert.Equal(t, snap, got)

	cache.invalidate()
	_, ok = cache.get()
	assert.False(t, ok)
}

func TestSchemaCacheExpiry(t *testing.T) {
	cache := newSchemaCache(time.Nanosecond)
	cache.set(schema.Snapshot{"orders": {Name: "orders"}})

	time.Sleep(time.Millisecond)
	_, ok := cache.get()
	assert.False(t, ok)
}
