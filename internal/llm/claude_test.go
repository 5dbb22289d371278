package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/ir"
)

func TestNewClaudeClient(t *testing.T) {
	client, err := NewClaudeClient("sk-test", "")
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClaudeClient("", "")
	assert.Error(t, err)
}

func TestParseHintJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    *ir.SemanticHint
		wantErr bool
	}{
		{
			name: "plain json",
			text: `{"intent": "aggregate", "entity_hint": "orders", "metric_hint": "revenue", "aggregation_hint": "sum"}`,
			want: &ir.SemanticHint{
				Intent: ir.IntentAggregate, EntityHint: "orders",
				MetricHint: "revenue", AggregationHint: "sum",
			},
		},
		{
			name: "fenced json",
			text: "```json\n{\"intent\": \"count\", \"entity_hint\": \"customers\"}\n```",
			want: &ir.SemanticHint{Intent: ir.IntentCount, EntityHint: "customers"},
		},
		{
			name: "bare fence",
			text: "```\n{\"intent\": \"retrieve\", \"entity_hint\": \"orders\"}\n```",
			want: &ir.SemanticHint{Intent: ir.IntentRetrieve, EntityHint: "orders"},
		},
		{
			name: "prose prefix",
			text: `Here is the extraction: {"intent": "count", "entity_hint": "orders"}`,
			want: &ir.SemanticHint{Intent: ir.IntentCount, EntityHint: "orders"},
		},
		{
			name: "filters and time expression",
			text: `{"intent": "retrieve", "entity_hint": "orders", "filter_hints": [{"column_hint": "status", "operator": "=", "value_hint": "completed"}], "time_expression": "last month"}`,
			want: &ir.SemanticHint{
				Intent: ir.IntentRetrieve, EntityHint: "orders",
				FilterHints: []ir.FilterHint{
					{ColumnHint: "status", Operator: "=", ValueHint: "completed"},
				},
				TimeExpression: "last month",
			},
		},
		{
			name:    "unknown intent",
			text:    `{"intent": "upsert", "entity_hint": "orders"}`,
			wantErr: true,
		},
		{
			name:    "empty intent",
			text:    `{"entity_hint": "orders"}`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			text:    "I cannot answer that question.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint, err := ParseHintJSON(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, hint)
		})
	}
}

func TestGetEmbedding(t *testing.T) {
	client, err := NewClaudeClient("sk-test", "")
	require.NoError(t, err)

	first, err := client.GetEmbedding(context.Background(), "total revenue this month")
	require.NoError(t, err)
	require.Len(t, first, 384)

	// Deterministic for identical input.
	second, err := client.GetEmbedding(context.Background(), "total revenue this month")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Different questions produce different vectors.
	other, err := client.GetEmbedding(context.Background(), "count all customers")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	// Keyword features fire for domain terms.
	assert.NotZero(t, first[50], "revenue keyword feature")
}

func TestCreateSimpleEmbeddingEmptyText(t *testing.T) {
	embedding := createSimpleEmbedding("")
	require.Len(t, embedding, 384)
	for _, v := range embedding {
		assert.Zero(t, v)
	}
}
