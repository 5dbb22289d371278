package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

// fakeLLM returns a canned hint without any network traffic.
type fakeLLM struct {
	hint  *ir.SemanticHint
	err   error
	calls int
}

func (f *fakeLLM) ParseQuestion(ctx context.Context, question string, snap schema.Snapshot) (*ir.SemanticHint, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hint, nil
}

func (f *fakeLLM) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 384), nil
}

// fakeDB serves a fixed snapshot and canned rows.
type fakeDB struct {
	snap schema.Snapshot
	rows []map[string]interface{}
}

func (f *fakeDB) Introspect(ctx context.Context) (schema.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeDB) Query(ctx context.Context, text string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return f.rows, nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }

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
			RowCount: 10,
		},
	}
}

func aggregateHint() *ir.SemanticHint {
	return &ir.SemanticHint{
		Intent:          ir.IntentAggregate,
		EntityHint:      "orders",
		MetricHint:      "revenue",
		AggregationHint: "sum",
	}
}

func TestRunCompileOnly(t *testing.T) {
	llmClient := &fakeLLM{hint: aggregateHint()}
	db := &fakeDB{snap: testSnapshot()}

	p := New(llmClient, db, nil, DefaultConfig())

	response, err := p.Run(context.Background(), &Request{Question: "total revenue"})
	require.NoError(t, err)

	assert.Equal(t, "SELECT SUM(amount) AS result FROM orders WHERE status = :param0", response.QueryText)
	assert.Equal(t, map[string]interface{}{"param0": "completed"}, response.Parameters)
	assert.Equal(t, "aggregate", response.Kind)
	assert.Nil(t, response.Result)
	assert.False(t, response.CacheHit)

	names := make([]string, 0, len(response.Steps))
	for _, step := range response.Steps {
		names = append(names, step.Name)
	}
	assert.Equal(t, []string{"parse", "normalize", "validate", "compile"}, names)
}

func TestRunWithExecution(t *testing.T) {
	llmClient := &fakeLLM{hint: aggregateHint()}
	db := &fakeDB{
		snap: testSnapshot(),
		rows: []map[string]interface{}{{"result": 300.5}},
	}

	p := New(llmClient, db, nil, DefaultConfig()).
		WithExecutor(executor.New(db, executor.DefaultConfig()))

	response, err := p.Run(context.Background(), &Request{Question: "total revenue", Execute: true})
	require.NoError(t, err)

	require.NotNil(t, response.Result)
	assert.Equal(t, 300.5, response.Result.Value)
}

func TestRunQuestionValidation(t *testing.T) {
	p := New(&fakeLLM{hint: aggregateHint()}, &fakeDB{snap: testSnapshot()}, nil, Config{MaxQuestion: 10})

	_, err := p.Run(context.Background(), &Request{Question: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = p.Run(context.Background(), &Request{Question: "a question far beyond the limit"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

func TestRunSemanticParseFailure(t *testing.T) {
	llmClient := &fakeLLM{err: apperrors.NewSemanticParseError(fmt.Errorf("no json"), "gibberish")}
	p := New(llmClient, &fakeDB{snap: testSnapshot()}, nil, DefaultConfig())

	_, err := p.Run(context.Background(), &Request{Question: "gibberish"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSemanticParse))
}

func TestRunValidationFailure(t *testing.T) {
	// min resolves in the normalizer but is outside the validator's scope.
	hint := aggregateHint()
	hint.AggregationHint = "min"

	p := New(&fakeLLM{hint: hint}, &fakeDB{snap: testSnapshot()}, nil, DefaultConfig())

	_, err := p.Run(context.Background(), &Request{Question: "smallest order"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))

	structured := err.(*apperrors.Error)
	assert.NotEmpty(t, structured.Metadata["errors"])
}

func TestRunCacheHit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	llmClient := &fakeLLM{hint: aggregateHint()}
	p := New(llmClient, &fakeDB{snap: testSnapshot()}, nil, DefaultConfig()).
		WithCache(cache)

	first, err := p.Run(context.Background(), &Request{Question: "total revenue"})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := p.Run(context.Background(), &Request{Question: "total revenue"})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.QueryText, second.QueryText)

	// The second run never reached the language model.
	assert.Equal(t, 1, llmClient.calls)
}

func TestCacheKeyChangesWithSchema(t *testing.T) {
	p := New(&fakeLLM{hint: aggregateHint()}, &fakeDB{snap: testSnapshot()}, nil, DefaultConfig())

	base := p.cacheKey("total revenue", "schema-a", false)
	assert.NotEqual(t, base, p.cacheKey("total revenue", "schema-b", false))
	assert.NotEqual(t, base, p.cacheKey("total revenue", "schema-a", true))
	assert.NotEqual(t, base, p.cacheKey("count orders", "schema-a", false))
	assert.Equal(t, base, p.cacheKey("total revenue", "schema-a", false))
}
