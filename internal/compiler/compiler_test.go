package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

func testSnapshot() schema.Snapshot {
	return schema.Snapshot{
		"orders": {
			Name: "orders",
			Columns: map[string]schema.Column{
				"id":         {Name: "id", Type: "INTEGER", PrimaryKey: true},
				"amount":     {Name: "amount", Type: "REAL"},
				"status":     {Name: "status", Type: "TEXT"},
				"created_at": {Name: "created_at", Type: "TIMESTAMP"},
			},
		},
	}
}

func TestCompileStatements(t *testing.T) {
	c := New()
	snap := testSnapshot()

	tests := []struct {
		name       string
		descriptor *ir.CanonicalDescriptor
		wantText   string
		wantKind   ir.Intent
	}{
		{
			name: "aggregate",
			descriptor: &ir.CanonicalDescriptor{
				Intent: ir.IntentAggregate, Entity: "orders", Metric: "amount", Aggregation: "sum",
			},
			wantText: "SELECT SUM(amount) AS result FROM orders",
			wantKind: ir.IntentAggregate,
		},
		{
			name: "count intent",
			descriptor: &ir.CanonicalDescriptor{
				Intent: ir.IntentCount, Entity: "orders",
			},
			wantText: "SELECT COUNT(*) AS result FROM orders",
			wantKind: ir.IntentCount,
		},
		{
			name: "retrieve",
			descriptor: &ir.CanonicalDescriptor{
				Intent: ir.IntentRetrieve, Entity: "orders",
			},
			wantText: "SELECT * FROM orders",
			wantKind: ir.IntentRetrieve,
		},
		{
			name: "count aggregation with wildcard metric",
			descriptor: &ir.CanonicalDescriptor{
				Intent: ir.IntentAggregate, Entity: "orders", Metric: "*", Aggregation: "count",
			},
			wantText: "SELECT COUNT(*) AS result FROM orders",
			wantKind: ir.IntentAggregate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := c.Compile(tt.descriptor, snap)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, compiled.Text)
			assert.Equal(t, tt.wantKind, compiled.Kind)
			assert.Empty(t, compiled.Parameters)
		})
	}
}

func TestCompileFilters(t *testing.T) {
	c := New()

	descriptor := &ir.CanonicalDescriptor{
		Intent: ir.IntentRetrieve,
		Entity: "orders",
		Filters: []ir.Filter{
			{Column: "status", Operator: "=", Value: "completed", ParameterName: "param0"},
			{Column: "amount", Operator: ">", Value: 100, ParameterName: "param1"},
		},
	}

	compiled, err := c.Compile(descriptor, testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM orders WHERE status = :param0 AND amount > :param1", compiled.Text)
	assert.Equal(t, map[string]interface{}{
		"param0": "completed",
		"param1": 100,
	}, compiled.Parameters)
}

func TestCompileFilterOrderIsPreserved(t *testing.T) {
	c := New()

	descriptor := &ir.CanonicalDescriptor{
		Intent: ir.IntentRetrieve,
		Entity: "orders",
		Filters: []ir.Filter{
			{Column: "amount", Operator: ">=", Value: 10, ParameterName: "param0"},
			{Column: "status", Operator: "=", Value: "completed", ParameterName: "param1"},
			{Column: "created_at", Operator: "<", Value: "2025-02-01 00:00:00", ParameterName: "param2"},
		},
	}

	compiled, err := c.Compile(descriptor, testSnapshot())
	require.NoError(t, err)

	first := strings.Index(compiled.Text, ":param0")
	second := strings.Index(compiled.Text, ":param1")
	third := strings.Index(compiled.Text, ":param2")
	assert.True(t, first < second && second < third)
}

func TestCompilePlaceholdersMatchParameters(t *testing.T) {
	c := New()

	descriptor := &ir.CanonicalDescriptor{
		Intent:      ir.IntentAggregate,
		Entity:      "orders",
		Metric:      "amount",
		Aggregation: "avg",
		Filters: []ir.Filter{
			{Column: "status", Operator: "=", Value: "completed", ParameterName: "param0"},
			{Column: "created_at", Operator: ">=", Value: "2025-01-01 00:00:00", ParameterName: "param1"},
		},
	}

	compiled, err := c.Compile(descriptor, testSnapshot())
	require.NoError(t, err)

	// Every :name in the text has exactly one entry in Parameters and
	// vice versa.
	for name := range compiled.Parameters {
		assert.Contains(t, compiled.Text, ":"+name)
	}
	assert.Len(t, compiled.Parameters, strings.Count(compiled.Text, ":"))
}

func TestCompileRejectsUnknownIdentifiers(t *testing.T) {
	c := New()
	snap := testSnapshot()

	tests := []struct {
		name       string
		descriptor *ir.CanonicalDescriptor
	}{
		{
			name:       "unknown entity",
			descriptor: &ir.CanonicalDescriptor{Intent: ir.IntentRetrieve, Entity: "invoices"},
		},
		{
			name: "unknown metric",
			descriptor: &ir.CanonicalDescriptor{
				Intent: ir.IntentAggregate, Entity: "orders", Metric: "total", Aggregation: "sum",
			},
		},
		{
			name: "unknown filter column",
			descriptor: &ir.CanonicalDescriptor{
				Intent: ir.IntentRetrieve, Entity: "orders",
				Filters: []ir.Filter{{Column: "region", Operator: "=", Value: "x", ParameterName: "param0"}},
			},
		},
		{
			name: "unknown time range column",
			descriptor: &ir.CanonicalDescriptor{
				Intent: ir.IntentRetrieve, Entity: "orders",
				TimeRange: &ir.TimeRange{Column: "updated_at"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.descriptor, snap)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnsafeQuery))
		})
	}
}

func TestCompileRejectsBadAggregates(t *testing.T) {
	c := New()
	snap := testSnapshot()

	t.Run("wildcard metric with sum", func(t *testing.T) {
		_, err := c.Compile(&ir.CanonicalDescriptor{
			Intent: ir.IntentAggregate, Entity: "orders", Metric: "*", Aggregation: "sum",
		}, snap)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnsupportedIntent))
	})

	t.Run("missing aggregation", func(t *testing.T) {
		_, err := c.Compile(&ir.CanonicalDescriptor{
			Intent: ir.IntentAggregate, Entity: "orders", Metric: "amount",
		}, snap)
		require.Error(t, err)
	})

	t.Run("unknown intent", func(t *testing.T) {
		_, err := c.Compile(&ir.CanonicalDescriptor{Intent: "upsert", Entity: "orders"}, snap)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnsupportedIntent))
	})
}

func TestValidateParameterValue(t *testing.T) {
	t.Run("oversized string is rejected", func(t *testing.T) {
		_, err := validateParameterValue("param0", strings.Repeat("a", maxParameterLength+1))
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidParameter))
	})

	t.Run("numbers pass unchanged", func(t *testing.T) {
		v, err := validateParameterValue("param0", 42)
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		v, err = validateParameterValue("param0", 3.14)
		require.NoError(t, err)
		assert.Equal(t, 3.14, v)
	})

	t.Run("nil passes", func(t *testing.T) {
		v, err := validateParameterValue("param0", nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("other types are stringified", func(t *testing.T) {
		v, err := validateParameterValue("param0", true)
		require.NoError(t, err)
		assert.Equal(t, "true", v)
	})
}

func TestCheckGeneratedText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "plain select", text: "SELECT * FROM orders"},
		{name: "trailing separator tolerated", text: "SELECT * FROM orders;"},
		{name: "created_at does not trip CREATE", text: "SELECT * FROM orders WHERE created_at >= :param0"},
		{name: "updated_by does not trip UPDATE", text: "SELECT updated_by FROM orders"},
		{name: "not a select", text: "DROP TABLE orders", wantErr: true},
		{name: "embedded keyword", text: "SELECT * FROM orders WHERE id IN (DELETE FROM orders)", wantErr: true},
		{name: "stacked statements", text: "SELECT * FROM orders; DROP TABLE orders", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkGeneratedText(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
