package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

// fakeDB returns canned rows and records the last query it received.
type fakeDB struct {
	rows     []map[string]interface{}
	err      error
	lastText string
	lastArgs map[string]interface{}
}

func (f *fakeDB) Introspect(ctx context.Context) (schema.Snapshot, error) {
	return schema.Snapshot{}, nil
}

func (f *fakeDB) Query(ctx context.Context, text string, params map[string]interface{}) ([]map[string]interface{}, error) {
	f.lastText = text
	f.lastArgs = params
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }

func TestCheckSafety(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "select passes", text: "SELECT * FROM orders"},
		{name: "select with trailing separator", text: "SELECT * FROM orders;"},
		{name: "created_at passes", text: "SELECT * FROM orders WHERE created_at >= :param0"},
		{name: "non-select rejected", text: "UPDATE orders SET status = 'x'", wantErr: true},
		{name: "dangerous keyword rejected", text: "SELECT * FROM orders; DROP TABLE orders", wantErr: true},
		{name: "pragma rejected", text: "SELECT * FROM orders WHERE x = PRAGMA", wantErr: true},
		{name: "stacked statements rejected", text: "SELECT 1; SELECT 2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSafety(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnsafeQuery))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExecuteScalarResult(t *testing.T) {
	db := &fakeDB{rows: []map[string]interface{}{{"result": 1234.5678}}}
	e := New(db, DefaultConfig())

	result, err := e.Execute(context.Background(), &ir.CompiledQuery{
		Text:       "SELECT SUM(amount) AS result FROM orders",
		Parameters: map[string]interface{}{},
		Kind:       ir.IntentAggregate,
	})
	require.NoError(t, err)

	// Floats are rounded to two decimals.
	assert.Equal(t, 1234.57, result.Value)
	assert.Nil(t, result.Rows)
}

func TestExecuteScalarFallsBackToFirstColumn(t *testing.T) {
	db := &fakeDB{rows: []map[string]interface{}{{"count(*)": int64(7)}}}
	e := New(db, DefaultConfig())

	result, err := e.Execute(context.Background(), &ir.CompiledQuery{
		Text: "SELECT COUNT(*) FROM orders",
		Kind: ir.IntentCount,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Value)
}

func TestExecuteEmptyScalar(t *testing.T) {
	db := &fakeDB{rows: nil}
	e := New(db, DefaultConfig())

	result, err := e.Execute(context.Background(), &ir.CompiledQuery{
		Text: "SELECT SUM(amount) AS result FROM orders",
		Kind: ir.IntentAggregate,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Value)
}

func TestExecuteRetrieveRowCap(t *testing.T) {
	rows := make([]map[string]interface{}, 10)
	for i := range rows {
		rows[i] = map[string]interface{}{"id": i}
	}
	db := &fakeDB{rows: rows}
	e := New(db, Config{Timeout: time.Second, MaxRows: 5})

	result, err := e.Execute(context.Background(), &ir.CompiledQuery{
		Text: "SELECT * FROM orders",
		Kind: ir.IntentRetrieve,
	})
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Len(t, result.Rows, 5)
	assert.Equal(t, 5, result.RowCount)
}

func TestExecuteRefusesUnsafeText(t *testing.T) {
	db := &fakeDB{}
	e := New(db, DefaultConfig())

	_, err := e.Execute(context.Background(), &ir.CompiledQuery{
		Text: "DELETE FROM orders",
		Kind: ir.IntentRetrieve,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnsafeQuery))
	assert.Empty(t, db.lastText, "unsafe text must never reach the connector")
}

func TestExecutePassesParametersThrough(t *testing.T) {
	db := &fakeDB{rows: []map[string]interface{}{}}
	e := New(db, DefaultConfig())

	params := map[string]interface{}{"param0": "completed"}
	_, err := e.Execute(context.Background(), &ir.CompiledQuery{
		Text:       "SELECT * FROM orders WHERE status = :param0",
		Parameters: params,
		Kind:       ir.IntentRetrieve,
	})
	require.NoError(t, err)
	assert.Equal(t, params, db.lastArgs)
}
