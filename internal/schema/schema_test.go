package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypePredicates(t *testing.T) {
	assert.True(t, IsNumericType("INTEGER"))
	assert.True(t, IsNumericType("real"))
	assert.True(t, IsNumericType("Decimal"))
	assert.False(t, IsNumericType("TEXT"))
	assert.False(t, IsNumericType("TIMESTAMP"))

	assert.True(t, IsTemporalType("TIMESTAMP"))
	assert.True(t, IsTemporalType("datetime"))
	assert.True(t, IsTemporalType("DATE"))
	assert.False(t, IsTemporalType("INTEGER"))
}

func TestDeterministicOrdering(t *testing.T) {
	snap := Snapshot{
		"zebras": {Name: "zebras"},
		"apples": {Name: "apples"},
		"mangos": {Name: "mangos"},
	}
	assert.Equal(t, []string{"apples", "mangos", "zebras"}, snap.TableNames())

	table := Table{
		Name: "orders",
		Columns: map[string]Column{
			"status": {Name: "status"},
			"amount": {Name: "amount"},
			"id":     {Name: "id"},
		},
	}
	assert.Equal(t, []string{"amount", "id", "status"}, table.ColumnNames())
}

func TestHasColumnIsVerbatim(t *testing.T) {
	table := Table{
		Name:    "orders",
		Columns: map[string]Column{"Amount": {Name: "Amount"}},
	}

	assert.True(t, table.HasColumn("Amount"))
	assert.False(t, table.HasColumn("amount"))
}

func TestPromptContext(t *testing.T) {
	snap := Snapshot{
		"orders": {
			Name: "orders",
			Columns: map[string]Column{
				"id":     {Name: "id", Type: "INTEGER"},
				"amount": {Name: "amount", Type: "REAL"},
			},
			RowCount: 42,
		},
	}

	context := snap.PromptContext()
	assert.Equal(t, "- orders (42 rows): amount (REAL), id (INTEGER)\n", context)
}
