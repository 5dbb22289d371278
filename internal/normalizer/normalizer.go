// Package normalizer resolves an untrusted semantic hint into a fully
// schema-qualified canonical descriptor. Resolution is heuristic but
// deterministic: each identifier goes through an ordered chain of resolver
// strategies, short-circuiting on the first match. The chain order is
// behavior; it is declared as a named constant and covered by tests.
package normalizer

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/rules"
	"github.com/askdb/askdb/internal/schema"
)

// ValidOperators is the closed set of filter operators accepted from hints.
var ValidOperators = []string{"=", ">", "<", ">=", "<=", "LIKE"}

// moneyTerms are generic aggregate words resolved semantically against
// numeric columns when no direct column match exists.
var moneyTerms = map[string]bool{
	"revenue": true, "sales": true, "total": true, "amount": true,
	"price": true, "cost": true, "value": true,
}

// moneyColumnSubstrings mark numeric columns likely to hold money values.
var moneyColumnSubstrings = []string{"amount", "price", "cost", "value", "total"}

// countTerms are identifier-ish words resolved against id/count columns.
var countTerms = map[string]bool{"count": true, "number": true, "id": true}

// Normalizer turns semantic hints into canonical descriptors. It borrows the
// rule set and schema snapshot for the duration of one Normalize call and
// keeps no per-run state, so a single Normalizer is safe for concurrent use.
type Normalizer struct {
	rules  *rules.Rules
	clock  Clock
	logger *observability.Logger
}

// New creates a normalizer. A nil rule set falls back to the built-in
// defaults; a nil clock falls back to the fixed deterministic instant.
func New(r *rules.Rules, clock Clock) *Normalizer {
	if r == nil {
		r = rules.Defaults()
	}
	if clock == nil {
		clock = DefaultClock()
	}
	return &Normalizer{
		rules:  r,
		clock:  clock,
		logger: observability.NewLogger("normalizer"),
	}
}

// Normalize resolves every identifier in the hint against the schema
// snapshot. Parameter names restart at param0 for each call.
func (n *Normalizer) Normalize(ctx context.Context, hint ir.SemanticHint, snap schema.Snapshot) (*ir.CanonicalDescriptor, error) {
	counter := &paramCounter{}

	entity, err := n.resolveEntity(ctx, hint.EntityHint, snap)
	if err != nil {
		return nil, err
	}

	metric, err := n.resolveMetric(hint.MetricHint, entity, snap)
	if err != nil {
		return nil, err
	}

	aggregation, err := n.resolveAggregation(hint.AggregationHint)
	if err != nil {
		return nil, err
	}

	filters, err := n.resolveFilters(hint.FilterHints, entity, snap, counter)
	if err != nil {
		return nil, err
	}

	filters = append(filters, n.defaultFilters(ctx, entity, snap, counter)...)

	timeRange := n.resolveTimeRange(ctx, hint.TimeExpression, entity, snap)
	if timeRange != nil {
		filters = append(filters, timeRangeFilters(timeRange, counter)...)
	}

	descriptor := &ir.CanonicalDescriptor{
		Intent:      hint.Intent,
		Entity:      entity,
		Metric:      metric,
		Aggregation: aggregation,
		Filters:     filters,
		TimeRange:   timeRange,
	}

	n.logger.Info(ctx, "Normalization completed", map[string]interface{}{
		"entity":  entity,
		"metric":  metric,
		"filters": len(filters),
	})
	return descriptor, nil
}

// paramCounter assigns sequential parameter names within one run.
type paramCounter struct {
	n int
}

func (c *paramCounter) next() string {
	name := fmt.Sprintf("param%d", c.n)
	c.n++
	return name
}

// --- entity resolution ---

type entityResolverFunc func(hintLower string, snap schema.Snapshot, r *rules.Rules) (string, bool)

type entityResolver struct {
	name    string
	resolve entityResolverFunc
}

// entityResolutionOrder is the tie-break order for entity resolution. Earlier
// strategies win; reordering changes behavior.
var entityResolutionOrder = []entityResolver{
	{"exact", resolveEntityExact},
	{"rule-mapped", resolveEntityMapped},
	{"fuzzy", resolveEntityFuzzy},
}

func (n *Normalizer) resolveEntity(ctx context.Context, hint string, snap schema.Snapshot) (string, error) {
	if hint == "" {
		// Single-table schemas need no hint.
		if names := snap.TableNames(); len(names) == 1 {
			return names[0], nil
		}
		return "", apperrors.NewUnknownEntityError(hint, snap.TableNames()).
			WithDetails("An entity hint is required for multi-table databases")
	}

	hintLower := strings.ToLower(hint)
	for _, resolver := range entityResolutionOrder {
		if table, ok := resolver.resolve(hintLower, snap, n.rules); ok {
			return table, nil
		}
	}

	if names := snap.TableNames(); len(names) == 1 {
		n.logger.Warn(ctx, "Entity hint not found, falling back to only available table", map[string]interface{}{
			"hint":  hint,
			"table": names[0],
		})
		return names[0], nil
	}

	return "", apperrors.NewUnknownEntityError(hint, snap.TableNames())
}

func resolveEntityExact(hintLower string, snap schema.Snapshot, _ *rules.Rules) (string, bool) {
	for _, tableName := range snap.TableNames() {
		if strings.ToLower(tableName) == hintLower {
			return tableName, true
		}
	}
	return "", false
}

func resolveEntityMapped(hintLower string, snap schema.Snapshot, r *rules.Rules) (string, bool) {
	mapped, ok := r.EntityMappings[hintLower]
	if !ok {
		return "", false
	}
	// The mapping is advisory; it only resolves if the mapped table exists.
	return resolveEntityExact(strings.ToLower(mapped), snap, r)
}

func resolveEntityFuzzy(hintLower string, snap schema.Snapshot, _ *rules.Rules) (string, bool) {
	for _, tableName := range snap.TableNames() {
		tableLower := strings.ToLower(tableName)

		if strings.Contains(tableLower, hintLower) || strings.Contains(hintLower, tableLower) {
			return tableName, true
		}

		if hintLower+"s" == tableLower ||
			hintLower == tableLower+"s" ||
			strings.TrimRight(hintLower, "s") == strings.TrimRight(tableLower, "s") {
			return tableName, true
		}
	}
	return "", false
}

// --- metric resolution ---

func (n *Normalizer) resolveMetric(hint, entity string, snap schema.Snapshot) (string, error) {
	if hint == "" {
		return "", nil
	}

	table := snap[entity]
	hintLower := strings.ToLower(hint)

	if column, ok := resolveColumnExact(hintLower, table); ok {
		return column, nil
	}

	if candidates, ok := n.rules.MetricMappings[hintLower]; ok {
		for _, candidate := range candidates {
			if column, ok := resolveColumnExact(strings.ToLower(candidate), table); ok {
				return column, nil
			}
		}
	}

	if column, ok := resolveColumnFuzzy(hintLower, table); ok {
		return column, nil
	}

	if column, ok := resolveMetricSemantic(hintLower, table); ok {
		return column, nil
	}

	return "", apperrors.NewUnknownMetricError(hint, entity, table.ColumnNames())
}

func resolveColumnExact(hintLower string, table schema.Table) (string, bool) {
	for _, columnName := range table.ColumnNames() {
		if strings.ToLower(columnName) == hintLower {
			return columnName, true
		}
	}
	return "", false
}

func resolveColumnFuzzy(hintLower string, table schema.Table) (string, bool) {
	for _, columnName := range table.ColumnNames() {
		columnLower := strings.ToLower(columnName)
		if strings.Contains(columnLower, hintLower) || strings.Contains(hintLower, columnLower) {
			return columnName, true
		}
	}
	return "", false
}

// resolveMetricSemantic matches generic money and count terms against column
// types when nothing matched by name.
func resolveMetricSemantic(hintLower string, table schema.Table) (string, bool) {
	switch {
	case moneyTerms[hintLower]:
		// Prefer numeric columns named like money, then any numeric column.
		for _, columnName := range table.ColumnNames() {
			column := table.Columns[columnName]
			if !schema.IsNumericType(column.Type) {
				continue
			}
			columnLower := strings.ToLower(columnName)
			for _, term := range moneyColumnSubstrings {
				if strings.Contains(columnLower, term) {
					return columnName, true
				}
			}
		}
		for _, columnName := range table.ColumnNames() {
			if schema.IsNumericType(table.Columns[columnName].Type) {
				return columnName, true
			}
		}

	case countTerms[hintLower]:
		for _, columnName := range table.ColumnNames() {
			columnLower := strings.ToLower(columnName)
			if columnLower == "id" || columnLower == "count" || strings.Contains(columnLower, "id") {
				return columnName, true
			}
		}
	}
	return "", false
}

// --- aggregation resolution ---

func (n *Normalizer) resolveAggregation(hint string) (string, error) {
	if hint == "" {
		return "", nil
	}

	aggregation := strings.ToLower(hint)
	if !n.rules.SupportsAggregation(aggregation) {
		return "", apperrors.NewUnsupportedAggregationError(hint, n.rules.AggregationFunctions)
	}
	return aggregation, nil
}

// --- filter resolution ---

func (n *Normalizer) resolveFilters(hints []ir.FilterHint, entity string, snap schema.Snapshot, counter *paramCounter) ([]ir.Filter, error) {
	filters := make([]ir.Filter, 0, len(hints))
	table := snap[entity]

	for _, hint := range hints {
		column, err := resolveFilterColumn(hint.ColumnHint, entity, table)
		if err != nil {
			return nil, err
		}

		operator, err := validateOperator(hint.Operator)
		if err != nil {
			return nil, err
		}

		filters = append(filters, ir.Filter{
			Column:        column,
			Operator:      operator,
			Value:         hint.ValueHint,
			ParameterName: counter.next(),
		})
	}

	return filters, nil
}

func resolveFilterColumn(hint, entity string, table schema.Table) (string, error) {
	hintLower := strings.ToLower(hint)

	if column, ok := resolveColumnExact(hintLower, table); ok {
		return column, nil
	}

	if column, ok := resolveColumnFuzzy(hintLower, table); ok {
		return column, nil
	}

	// Semantic tier: status-like words match status/state columns.
	if hintLower == "status" || hintLower == "state" {
		for _, columnName := range table.ColumnNames() {
			columnLower := strings.ToLower(columnName)
			if strings.Contains(columnLower, "status") || strings.Contains(columnLower, "state") {
				return columnName, nil
			}
		}
	}

	return "", apperrors.NewUnknownFilterColumnError(hint, entity, table.ColumnNames())
}

func validateOperator(operator string) (string, error) {
	for _, valid := range ValidOperators {
		if operator == valid {
			return operator, nil
		}
	}
	return "", apperrors.NewInvalidOperatorError(operator, ValidOperators)
}

// defaultFilters appends the configured per-table filters whose columns exist
// in the schema. A missing column skips the filter with a warning; it never
// fails the run.
func (n *Normalizer) defaultFilters(ctx context.Context, entity string, snap schema.Snapshot, counter *paramCounter) []ir.Filter {
	configured, ok := n.rules.DefaultFilters[entity]
	if !ok {
		return nil
	}

	table := snap[entity]
	var filters []ir.Filter
	for _, df := range configured {
		if !table.HasColumn(df.Column) {
			n.logger.Warn(ctx, "Default filter column not found, skipping", map[string]interface{}{
				"entity": entity,
				"column": df.Column,
			})
			continue
		}
		filters = append(filters, ir.Filter{
			Column:        df.Column,
			Operator:      df.Operator,
			Value:         df.Value,
			ParameterName: counter.next(),
		})
	}
	return filters
}
