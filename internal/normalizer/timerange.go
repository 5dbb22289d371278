package normalizer

import (
	"context"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

// Clock supplies the "now" instant for time-expression resolution. The
// production wiring injects a fixed clock so identical questions compile to
// identical queries; a wall clock can be substituted per deployment.
type Clock interface {
	Now() time.Time
}

// DefaultAnchor is the fixed instant used by the default clock.
var DefaultAnchor = time.Date(2025, time.January, 3, 12, 0, 0, 0, time.UTC)

type fixedClock struct {
	instant time.Time
}

func (c fixedClock) Now() time.Time {
	return c.instant
}

// FixedClock returns a clock pinned to the given instant.
func FixedClock(instant time.Time) Clock {
	return fixedClock{instant: instant}
}

// DefaultClock returns a clock pinned to DefaultAnchor.
func DefaultClock() Clock {
	return fixedClock{instant: DefaultAnchor}
}

// timeValueLayout is the format time bounds take as parameter values.
const timeValueLayout = "2006-01-02 15:04:05"

// timeColumnPatterns is the first-tier name search for time columns, in
// priority order.
var timeColumnPatterns = []string{"created_at", "updated_at", "date", "timestamp", "time", "created", "updated"}

// timeColumnTerms is the broader third-tier substring search.
var timeColumnTerms = []string{"date", "time", "created", "updated", "when"}

// resolveTimeRange maps one of the three recognized time expressions onto a
// time column of the entity. Unrecognized expressions and entities without a
// time column drop the range with a log line, never an error.
func (n *Normalizer) resolveTimeRange(ctx context.Context, expression, entity string, snap schema.Snapshot) *ir.TimeRange {
	if expression == "" {
		return nil
	}

	column, ok := findTimeColumn(snap[entity])
	if !ok {
		n.logger.Warn(ctx, "No time column found for entity, skipping time filter", map[string]interface{}{
			"entity":     entity,
			"expression": expression,
		})
		return nil
	}

	now := n.clock.Now().UTC()

	switch strings.ToLower(expression) {
	case "this month":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &ir.TimeRange{Column: column, Start: &start}

	case "last month":
		// time.Date normalizes month 0 to December of the previous year.
		start := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &ir.TimeRange{Column: column, Start: &start, End: &end}

	case "last 7 days":
		start := now.Add(-7 * 24 * time.Hour)
		return &ir.TimeRange{Column: column, Start: &start}

	default:
		n.logger.Warn(ctx, "Unknown time expression, ignoring", map[string]interface{}{
			"expression": expression,
		})
		return nil
	}
}

// findTimeColumn locates the entity's time column: common name patterns
// first, then temporal column types, then a broader name search.
func findTimeColumn(table schema.Table) (string, bool) {
	for _, pattern := range timeColumnPatterns {
		for _, columnName := range table.ColumnNames() {
			if strings.Contains(strings.ToLower(columnName), pattern) {
				return columnName, true
			}
		}
	}

	for _, columnName := range table.ColumnNames() {
		if schema.IsTemporalType(table.Columns[columnName].Type) {
			return columnName, true
		}
	}

	for _, columnName := range table.ColumnNames() {
		columnLower := strings.ToLower(columnName)
		for _, term := range timeColumnTerms {
			if strings.Contains(columnLower, term) {
				return columnName, true
			}
		}
	}

	return "", false
}

// timeRangeFilters converts resolved bounds into ordinary filters: >= for the
// start, < for the end. They are appended after all other filters and take
// the next sequential parameter names.
func timeRangeFilters(timeRange *ir.TimeRange, counter *paramCounter) []ir.Filter {
	var filters []ir.Filter

	if timeRange.Start != nil {
		filters = append(filters, ir.Filter{
			Column:        timeRange.Column,
			Operator:      ">=",
			Value:         timeRange.Start.Format(timeValueLayout),
			ParameterName: counter.next(),
		})
	}

	if timeRange.End != nil {
		filters = append(filters, ir.Filter{
			Column:        timeRange.Column,
			Operator:      "<",
			Value:         timeRange.End.Format(timeValueLayout),
			ParameterName: counter.next(),
		})
	}

	return filters
}
