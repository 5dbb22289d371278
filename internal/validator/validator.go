// Package validator checks canonical descriptors for structural completeness,
// schema consistency, safety-rule compliance and scope compliance. Validation
// is pure: findings are returned as data, never as errors, and warnings never
// block compilation.
package validator

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

// SafetyRules is the configurable constraint set applied to every descriptor.
type SafetyRules struct {
	// DangerousKeywords must not appear in the entity name, case-insensitive.
	DangerousKeywords []string

	// DangerousOperators are rejected outright.
	DangerousOperators []string

	// SystemTables are never queryable.
	SystemTables []string

	// MaxFilters caps query complexity.
	MaxFilters int

	// SupportedIntents is the scope allow-list for intents.
	SupportedIntents []ir.Intent

	// SupportedAggregations is the scope allow-list for aggregations. It is
	// deliberately narrower than the normalizer's resolvable set: min/max
	// resolve upstream but are out of scope here. Widen only with a
	// deliberate scope decision.
	SupportedAggregations []string
}

// DefaultSafetyRules returns the stock constraint set.
func DefaultSafetyRules() *SafetyRules {
	return &SafetyRules{
		DangerousKeywords: []string{
			"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "CREATE",
			"TRUNCATE", "REPLACE", "MERGE", "EXEC", "EXECUTE",
		},
		DangerousOperators: []string{"!=", "NOT", "<>"},
		SystemTables: []string{
			"sqlite_master", "sqlite_sequence", "sqlite_stat1",
			"sqlite_stat2", "sqlite_stat3", "sqlite_stat4",
		},
		MaxFilters:            10,
		SupportedIntents:      []ir.Intent{ir.IntentAggregate, ir.IntentRetrieve, ir.IntentCount},
		SupportedAggregations: []string{"sum", "count", "avg"},
	}
}

// Validator validates canonical descriptors against a schema snapshot and the
// configured safety rules.
type Validator struct {
	safety *SafetyRules
}

// New creates a validator. A nil rule set falls back to the defaults.
func New(safety *SafetyRules) *Validator {
	if safety == nil {
		safety = DefaultSafetyRules()
	}
	return &Validator{safety: safety}
}

// Validate runs every check and accumulates findings. Checks are independent
// and all run every time, except that a missing entity gates the remaining
// schema checks (they would be meaningless without a table to check against).
func (v *Validator) Validate(descriptor *ir.CanonicalDescriptor, snap schema.Snapshot) ir.ValidationResult {
	var errors []string
	var warnings []string

	errors = append(errors, v.checkStructure(descriptor)...)
	errors = append(errors, v.checkSchema(descriptor, snap)...)
	errors = append(errors, v.checkSafety(descriptor)...)
	errors = append(errors, v.checkScope(descriptor)...)
	errors = append(errors, v.checkBusinessLogic(descriptor)...)
	warnings = append(warnings, v.checkPerformance(descriptor)...)

	return ir.ValidationResult{
		Valid:    len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
	}
}

func (v *Validator) checkStructure(d *ir.CanonicalDescriptor) []string {
	var errors []string

	if d.Intent == "" {
		errors = append(errors, "Intent is required")
	}
	if d.Entity == "" {
		errors = append(errors, "Entity (table name) is required")
	}

	switch d.Intent {
	case ir.IntentAggregate:
		if d.Aggregation == "" {
			errors = append(errors, "Aggregation function is required for aggregate intent")
		}
		if d.Metric == "" {
			errors = append(errors, "Metric (column) is required for aggregate intent")
		}
	case ir.IntentCount:
		if d.Aggregation != "" && d.Aggregation != "count" {
			errors = append(errors, "Count intent should use 'count' aggregation or none")
		}
	case ir.IntentRetrieve, "":
		// No structural requirements beyond the shared ones.
	default:
		// Unknown intents are reported by the scope check.
	}

	return errors
}

func (v *Validator) checkSchema(d *ir.CanonicalDescriptor, snap schema.Snapshot) []string {
	var errors []string

	table, exists := snap[d.Entity]
	if !exists {
		errors = append(errors, fmt.Sprintf("Table '%s' does not exist in database schema", d.Entity))
		return errors
	}

	if d.Metric != "" {
		column, ok := table.Columns[d.Metric]
		if !ok {
			errors = append(errors, fmt.Sprintf("Column '%s' does not exist in table '%s'", d.Metric, d.Entity))
		} else if d.Aggregation == "sum" || d.Aggregation == "avg" {
			if !schema.IsNumericType(column.Type) {
				errors = append(errors, fmt.Sprintf(
					"Aggregation '%s' requires numeric column, but '%s' is %s",
					d.Aggregation, d.Metric, column.Type))
			}
		}
	}

	for _, filter := range d.Filters {
		if !table.HasColumn(filter.Column) {
			errors = append(errors, fmt.Sprintf("Filter column '%s' does not exist in table '%s'", filter.Column, d.Entity))
		}
	}

	if d.TimeRange != nil && !table.HasColumn(d.TimeRange.Column) {
		errors = append(errors, fmt.Sprintf("Time range column '%s' does not exist in table '%s'", d.TimeRange.Column, d.Entity))
	}

	return errors
}

func (v *Validator) checkSafety(d *ir.CanonicalDescriptor) []string {
	var errors []string

	entityUpper := strings.ToUpper(d.Entity)
	for _, keyword := range v.safety.DangerousKeywords {
		if strings.Contains(entityUpper, keyword) {
			errors = append(errors, fmt.Sprintf("Dangerous keyword '%s' detected in entity name", keyword))
		}
	}

	entityLower := strings.ToLower(d.Entity)
	for _, systemTable := range v.safety.SystemTables {
		if entityLower == strings.ToLower(systemTable) {
			errors = append(errors, fmt.Sprintf("Access to system table '%s' is not allowed", d.Entity))
			break
		}
	}

	for _, filter := range d.Filters {
		for _, dangerous := range v.safety.DangerousOperators {
			if filter.Operator == dangerous {
				errors = append(errors, fmt.Sprintf("Dangerous operator '%s' is not allowed", filter.Operator))
			}
		}
	}

	if len(d.Filters) > v.safety.MaxFilters {
		errors = append(errors, fmt.Sprintf("Too many filters (%d). Maximum allowed: %d", len(d.Filters), v.safety.MaxFilters))
	}

	return errors
}

func (v *Validator) checkScope(d *ir.CanonicalDescriptor) []string {
	var errors []string

	supported := false
	for _, intent := range v.safety.SupportedIntents {
		if d.Intent == intent {
			supported = true
			break
		}
	}
	if !supported {
		errors = append(errors, fmt.Sprintf("Intent '%s' is not supported. Supported intents: %v", d.Intent, v.safety.SupportedIntents))
	}

	if d.Aggregation != "" {
		supported = false
		for _, aggregation := range v.safety.SupportedAggregations {
			if d.Aggregation == aggregation {
				supported = true
				break
			}
		}
		if !supported {
			errors = append(errors, fmt.Sprintf("Aggregation '%s' is not supported. Supported aggregations: %v", d.Aggregation, v.safety.SupportedAggregations))
		}
	}

	return errors
}

func (v *Validator) checkBusinessLogic(d *ir.CanonicalDescriptor) []string {
	var errors []string

	for _, filter := range d.Filters {
		if filter.Value == nil || filter.Value == "" {
			errors = append(errors, fmt.Sprintf("Filter value for column '%s' cannot be empty", filter.Column))
		}
	}

	if d.TimeRange != nil && d.TimeRange.Start != nil && d.TimeRange.End != nil {
		if !d.TimeRange.Start.Before(*d.TimeRange.End) {
			errors = append(errors, "Time range start must be before end")
		}
	}

	return errors
}

func (v *Validator) checkPerformance(d *ir.CanonicalDescriptor) []string {
	var warnings []string

	if len(d.Filters) > 5 {
		warnings = append(warnings, fmt.Sprintf("Query has %d filters, which may impact performance", len(d.Filters)))
	}

	for _, filter := range d.Filters {
		if filter.Operator == "LIKE" {
			warnings = append(warnings, fmt.Sprintf("LIKE operator on column '%s' may be slow on large tables", filter.Column))
		}
	}

	return warnings
}
