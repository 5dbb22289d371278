// Package ir defines the intermediate representations exchanged between the
// pipeline stages: the unverified semantic hint produced by the language
// model, the schema-verified canonical descriptor, and the compiled query.
package ir

import "time"

// Intent is the closed set of query intents supported by the compiler.
type Intent string

const (
	IntentAggregate Intent = "aggregate"
	IntentRetrieve  Intent = "retrieve"
	IntentCount     Intent = "count"
)

// Known reports whether the intent is one of the supported kinds.
func (i Intent) Known() bool {
	switch i {
	case IntentAggregate, IntentRetrieve, IntentCount:
		return true
	}
	return false
}

// FilterHint is an unverified filter condition extracted by the language model.
type FilterHint struct {
	ColumnHint string      `json:"column_hint"`
	Operator   string      `json:"operator"`
	ValueHint  interface{} `json:"value_hint"`
}

// SemanticHint is the language model's guess at query semantics. Nothing in it
// is trusted until the normalizer has matched it against the schema snapshot.
type SemanticHint struct {
	Intent          Intent       `json:"intent"`
	EntityHint      string       `json:"entity_hint"`
	MetricHint      string       `json:"metric_hint,omitempty"`
	AggregationHint string       `json:"aggregation_hint,omitempty"`
	FilterHints     []FilterHint `json:"filter_hints,omitempty"`
	TimeExpression  string       `json:"time_expression,omitempty"`
}

// Filter is a schema-verified filter condition with a unique named parameter.
type Filter struct {
	Column        string      `json:"column"`
	Operator      string      `json:"operator"`
	Value         interface{} `json:"value"`
	ParameterName string      `json:"parameter_name"`
}

// TimeRange is a resolved time window over a schema-verified column. A nil
// bound means the window is open on that side.
type TimeRange struct {
	Column string     `json:"column"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
}

// CanonicalDescriptor is a fully resolved query specification. Every
// identifier in it has been matched against the schema snapshot by the
// normalizer. It is read-only once produced.
type CanonicalDescriptor struct {
	Intent      Intent     `json:"intent"`
	Entity      string     `json:"entity"`
	Metric      string     `json:"metric,omitempty"`
	Aggregation string     `json:"aggregation,omitempty"`
	Filters     []Filter   `json:"filters"`
	TimeRange   *TimeRange `json:"time_range,omitempty"`
}

// ValidationResult carries validator findings. Errors block compilation,
// warnings never do. Valid is true iff Errors is empty.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// CompiledQuery is the final output: parameterized query text plus the named
// parameter values. Every :name placeholder in Text has exactly one entry in
// Parameters and vice versa.
type CompiledQuery struct {
	Text       string                 `json:"text"`
	Parameters map[string]interface{} `json:"parameters"`
	Kind       Intent                 `json:"query_kind"`
}
