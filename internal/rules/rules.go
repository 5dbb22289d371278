// Package rules holds the business-rule data consumed by the normalizer:
// word-to-table and word-to-column hint mappings, per-table default filters
// and the aggregation allow-list. Rules are pure lookup data with no behavior
// and are immutable once handed to a pipeline run.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFilter is a fixed filter applied to every query against a table,
// e.g. status = 'completed' for orders.
type DefaultFilter struct {
	Column   string      `yaml:"column" json:"column"`
	Operator string      `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
}

// Rules is the full business-rule set. Zero values are filled from Defaults
// when loading from a file.
type Rules struct {
	// MetricMappings maps a lowercased metric word to candidate column names,
	// tried in order and re-validated against the schema.
	MetricMappings map[string][]string `yaml:"metric_mappings" json:"metric_mappings"`

	// EntityMappings maps a lowercased entity word to a table name, which is
	// re-validated against the schema before use.
	EntityMappings map[string]string `yaml:"entity_mappings" json:"entity_mappings"`

	// DefaultFilters maps a table name to filters appended to every query
	// against it, when their columns exist in the schema.
	DefaultFilters map[string][]DefaultFilter `yaml:"default_filters" json:"default_filters"`

	// AggregationFunctions is the allow-list the normalizer resolves
	// aggregation hints against.
	AggregationFunctions []string `yaml:"aggregation_functions" json:"aggregation_functions"`
}

// Defaults returns the built-in rule set. It is kept minimal: the normalizer
// is schema-aware and these mappings are fallbacks, not the primary mechanism.
func Defaults() *Rules {
	return &Rules{
		MetricMappings: map[string][]string{
			"revenue": {"amount", "total", "price", "value", "cost"},
			"sales":   {"amount", "total", "price", "value"},
			"total":   {"amount", "sum", "total", "value"},
			"price":   {"amount", "price", "cost", "value"},
			"count":   {"id", "count"},
		},
		EntityMappings: map[string]string{
			"order":    "orders",
			"sale":     "orders",
			"customer": "customers",
			"user":     "customers",
			"product":  "products",
			"item":     "products",
		},
		DefaultFilters: map[string][]DefaultFilter{
			"orders": {
				{Column: "status", Operator: "=", Value: "completed"},
			},
		},
		AggregationFunctions: []string{"sum", "count", "avg", "min", "max"},
	}
}

// Load reads a YAML rules file and merges it over the built-in defaults.
// Mappings from the file are added to (or override entries of) the defaults;
// a non-empty aggregation list replaces the default list wholesale.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var loaded Rules
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	merged := Defaults()
	merged.merge(&loaded)
	return merged, nil
}

func (r *Rules) merge(other *Rules) {
	for word, candidates := range other.MetricMappings {
		r.MetricMappings[word] = candidates
	}
	for word, table := range other.EntityMappings {
		r.EntityMappings[word] = table
	}
	for table, filters := range other.DefaultFilters {
		r.DefaultFilters[table] = filters
	}
	if len(other.AggregationFunctions) > 0 {
		r.AggregationFunctions = other.AggregationFunctions
	}
}

// SupportsAggregation reports whether the function is in the allow-list.
// Callers must lowercase the name first.
func (r *Rules) SupportsAggregation(fn string) bool {
	for _, supported := range r.AggregationFunctions {
		if supported == fn {
			return true
		}
	}
	return false
}
