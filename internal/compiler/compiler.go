// Package compiler deterministically renders a validated canonical descriptor
// into parameterized query text. Identifiers are emitted as literal text (the
// query language cannot parameterize them), so the compiler re-asserts the
// normalizer's invariant that every identifier is a verbatim schema member
// before emitting anything, and re-checks the rendered text afterwards.
package compiler

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

// maxParameterLength caps string parameter values.
const maxParameterLength = 1000

// dangerousKeywords is the post-generation deny list. It extends the
// validator's list with statement kinds only meaningful at the engine level.
var dangerousKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "CREATE",
	"TRUNCATE", "REPLACE", "MERGE", "EXEC", "EXECUTE",
	"PRAGMA", "ATTACH", "DETACH",
}

// keywordPatterns match dangerous keywords on word boundaries, so column
// names like created_at do not trip the CREATE check.
var keywordPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(dangerousKeywords))
	for _, keyword := range dangerousKeywords {
		patterns[keyword] = regexp.MustCompile(`\b` + keyword + `\b`)
	}
	return patterns
}()

// Compiler renders canonical descriptors into compiled queries. It is
// stateless and safe for concurrent use.
type Compiler struct{}

// New creates a compiler
func New() *Compiler {
	return &Compiler{}
}

// Compile renders the descriptor into query text plus a named parameter map.
// It must only be called on descriptors that passed validation; the intent
// dispatch failure is defensive and should be unreachable.
func (c *Compiler) Compile(descriptor *ir.CanonicalDescriptor, snap schema.Snapshot) (*ir.CompiledQuery, error) {
	if err := checkIdentifiers(descriptor, snap); err != nil {
		return nil, err
	}

	var text string
	var kind ir.Intent

	switch descriptor.Intent {
	case ir.IntentAggregate:
		aggregateText, err := aggregateStatement(descriptor)
		if err != nil {
			return nil, err
		}
		text = aggregateText
		kind = ir.IntentAggregate

	case ir.IntentCount:
		text = fmt.Sprintf("SELECT COUNT(*) AS result FROM %s", descriptor.Entity)
		kind = ir.IntentCount

	case ir.IntentRetrieve:
		text = fmt.Sprintf("SELECT * FROM %s", descriptor.Entity)
		kind = ir.IntentRetrieve

	default:
		return nil, apperrors.NewUnsupportedIntentError(string(descriptor.Intent))
	}

	parameters := make(map[string]interface{})
	if len(descriptor.Filters) > 0 {
		conditions := make([]string, 0, len(descriptor.Filters))
		for _, filter := range descriptor.Filters {
			conditions = append(conditions, fmt.Sprintf("%s %s :%s", filter.Column, filter.Operator, filter.ParameterName))

			value, err := validateParameterValue(filter.ParameterName, filter.Value)
			if err != nil {
				return nil, err
			}
			parameters[filter.ParameterName] = value
		}
		text += " WHERE " + strings.Join(conditions, " AND ")
	}

	if err := checkGeneratedText(text); err != nil {
		return nil, err
	}

	return &ir.CompiledQuery{
		Text:       text,
		Parameters: parameters,
		Kind:       kind,
	}, nil
}

func aggregateStatement(descriptor *ir.CanonicalDescriptor) (string, error) {
	if descriptor.Aggregation == "" {
		return "", apperrors.New(apperrors.ErrCodeUnsupportedIntent, "Aggregation function is required for aggregate queries")
	}
	if descriptor.Metric == "" {
		return "", apperrors.New(apperrors.ErrCodeUnsupportedIntent, "Metric column is required for aggregate queries")
	}

	function := strings.ToUpper(descriptor.Aggregation)
	if descriptor.Metric == "*" {
		// A wildcard metric only makes sense for counting rows.
		if descriptor.Aggregation != "count" {
			return "", apperrors.New(apperrors.ErrCodeUnsupportedIntent,
				fmt.Sprintf("Wildcard metric is only valid for count aggregation, got '%s'", descriptor.Aggregation))
		}
		return fmt.Sprintf("SELECT %s(*) AS result FROM %s", function, descriptor.Entity), nil
	}

	return fmt.Sprintf("SELECT %s(%s) AS result FROM %s", function, descriptor.Metric, descriptor.Entity), nil
}

// checkIdentifiers re-asserts that every identifier in the descriptor is a
// verbatim schema member. Descriptors normally come from the normalizer,
// which guarantees this; hand-built descriptors do not get a free pass.
func checkIdentifiers(descriptor *ir.CanonicalDescriptor, snap schema.Snapshot) error {
	table, exists := snap[descriptor.Entity]
	if !exists {
		return apperrors.NewUnsafeQueryError(
			fmt.Sprintf("entity '%s' is not a schema table", descriptor.Entity))
	}

	if descriptor.Metric != "" && descriptor.Metric != "*" && !table.HasColumn(descriptor.Metric) {
		return apperrors.NewUnsafeQueryError(
			fmt.Sprintf("metric '%s' is not a column of table '%s'", descriptor.Metric, descriptor.Entity))
	}

	for _, filter := range descriptor.Filters {
		if !table.HasColumn(filter.Column) {
			return apperrors.NewUnsafeQueryError(
				fmt.Sprintf("filter column '%s' is not a column of table '%s'", filter.Column, descriptor.Entity))
		}
	}

	if descriptor.TimeRange != nil && !table.HasColumn(descriptor.TimeRange.Column) {
		return apperrors.NewUnsafeQueryError(
			fmt.Sprintf("time range column '%s' is not a column of table '%s'", descriptor.TimeRange.Column, descriptor.Entity))
	}

	return nil
}

// validateParameterValue applies basic sanity rules to a parameter value:
// oversized strings are rejected, numbers and nil pass unchanged, anything
// else is stringified.
func validateParameterValue(name string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		if len(v) > maxParameterLength {
			return nil, apperrors.NewInvalidParameterError(name,
				fmt.Sprintf("string value exceeds %d characters", maxParameterLength))
		}
		return v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v, nil
	case nil:
		return nil, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// checkGeneratedText is the mandatory post-generation re-check: the text must
// be a single SELECT statement free of dangerous keywords.
func checkGeneratedText(text string) error {
	upper := strings.ToUpper(strings.TrimSpace(text))

	if !strings.HasPrefix(upper, "SELECT") {
		return apperrors.NewUnsafeQueryError("generated text is not a SELECT statement")
	}

	for _, keyword := range dangerousKeywords {
		if keywordPatterns[keyword].MatchString(upper) {
			return apperrors.NewUnsafeQueryError(fmt.Sprintf("dangerous keyword '%s' found in generated text", keyword))
		}
	}

	// One optional trailing separator is tolerated, stacked statements are not.
	if strings.Contains(strings.TrimRight(text, "; \t\n"), ";") {
		return apperrors.NewUnsafeQueryError("multiple statements detected in generated text")
	}

	return nil
}
