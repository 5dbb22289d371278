// Package executor runs compiled queries against a database connector with a
// timeout, a row cap and a pre-flight safety gate. It is the only component
// that hands query text to a driver, so it re-checks safety even though the
// compiler already did.
package executor

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/database"
	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/observability"
)

// Config controls execution limits.
type Config struct {
	Timeout time.Duration
	MaxRows int
}

// DefaultConfig returns the stock execution limits
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		MaxRows: 1000,
	}
}

// Result is the outcome of one execution. For aggregate and count queries
// Value holds the single scalar; for retrieve queries Rows holds the data.
type Result struct {
	Rows      []map[string]interface{} `json:"rows,omitempty"`
	Value     interface{}              `json:"value,omitempty"`
	RowCount  int                      `json:"row_count"`
	Truncated bool                     `json:"truncated,omitempty"`
	Duration  time.Duration            `json:"-"`
}

// Executor runs compiled queries.
type Executor struct {
	db      database.Database
	config  Config
	logger  *observability.Logger
	metrics *observability.MetricsCollector
}

// New creates an executor over a database connector
func New(db database.Database, config Config) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.MaxRows <= 0 {
		config.MaxRows = DefaultConfig().MaxRows
	}
	return &Executor{
		db:      db,
		config:  config,
		logger:  observability.NewLogger("executor"),
		metrics: observability.GetGlobalMetrics(),
	}
}

var dangerousStatementPattern = regexp.MustCompile(
	`\b(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|TRUNCATE|REPLACE|MERGE|EXEC|EXECUTE|PRAGMA|ATTACH|DETACH)\b`)

// checkSafety gates execution on the same constraints the compiler enforces.
func checkSafety(text string) error {
	upper := strings.ToUpper(strings.TrimSpace(text))

	if !strings.HasPrefix(upper, "SELECT") {
		return apperrors.NewUnsafeQueryError("only SELECT statements can be executed")
	}

	if match := dangerousStatementPattern.FindString(upper); match != "" {
		return apperrors.NewUnsafeQueryError(fmt.Sprintf("dangerous keyword '%s' found in query text", match))
	}

	if strings.Contains(strings.TrimRight(text, "; \t\n"), ";") {
		return apperrors.NewUnsafeQueryError("multiple statements are not allowed")
	}

	return nil
}

// Execute runs the compiled query and shapes the result by query kind.
func (e *Executor) Execute(ctx context.Context, query *ir.CompiledQuery) (*Result, error) {
	if err := checkSafety(query.Text); err != nil {
		e.metrics.Inc(observability.MetricSafetyViolations, nil)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.Query(ctx, query.Text, query.Parameters)
	duration := time.Since(start)

	e.metrics.Inc(observability.MetricDBQueries, nil)
	e.metrics.Observe(observability.MetricDBDuration, duration.Seconds(), nil)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			e.metrics.Inc(observability.MetricDBErrors, map[string]string{"type": "timeout"})
			return nil, apperrors.Wrap(err, apperrors.ErrCodeQueryTimeout, "Query timed out").
				WithDetails(fmt.Sprintf("Execution exceeded the %s limit", e.config.Timeout))
		}
		e.metrics.Inc(observability.MetricDBErrors, map[string]string{"type": "query"})
		return nil, err
	}

	result := &Result{
		RowCount: len(rows),
		Duration: duration,
	}

	switch query.Kind {
	case ir.IntentAggregate, ir.IntentCount:
		result.Value = scalarResult(rows)
	default:
		if len(rows) > e.config.MaxRows {
			rows = rows[:e.config.MaxRows]
			result.Truncated = true
		}
		result.Rows = rows
		result.RowCount = len(rows)
	}

	e.logger.Info(ctx, "Query executed", map[string]interface{}{
		"kind":        string(query.Kind),
		"rows":        result.RowCount,
		"duration_ms": duration.Milliseconds(),
	})
	return result, nil
}

// scalarResult pulls the single aggregate value out of the result set.
// Floats are rounded to two decimals for presentation.
func scalarResult(rows []map[string]interface{}) interface{} {
	if len(rows) == 0 {
		return nil
	}

	value, ok := rows[0]["result"]
	if !ok {
		for _, v := range rows[0] {
			value = v
			break
		}
	}

	if f, ok := value.(float64); ok {
		return math.Round(f*100) / 100
	}
	return value
}
