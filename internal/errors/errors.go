// Package errors provides structured error types with stable codes, candidate
// lists and suggestions. Resolution failures carry the attempted value and the
// valid alternatives as typed fields; human-readable text is rendered at the
// API boundary, not here.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Resolution errors (normalizer)
	ErrCodeUnknownEntity          ErrorCode = "UNKNOWN_ENTITY"
	ErrCodeUnknownMetric          ErrorCode = "UNKNOWN_METRIC"
	ErrCodeUnsupportedAggregation ErrorCode = "UNSUPPORTED_AGGREGATION"
	ErrCodeUnknownFilterColumn    ErrorCode = "UNKNOWN_FILTER_COLUMN"
	ErrCodeInvalidOperator        ErrorCode = "INVALID_OPERATOR"

	// Compilation errors
	ErrCodeUnsupportedIntent ErrorCode = "UNSUPPORTED_INTENT"
	ErrCodeInvalidParameter  ErrorCode = "INVALID_PARAMETER"
	ErrCodeUnsafeQuery       ErrorCode = "UNSAFE_QUERY"

	// Pipeline errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeSemanticParse    ErrorCode = "SEMANTIC_PARSE_FAILED"
	ErrCodeQueryExecution   ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout     ErrorCode = "QUERY_TIMEOUT"

	// Database errors
	ErrCodeDatabaseConnection  ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeSchemaIntrospection ErrorCode = "SCHEMA_INTROSPECTION_FAILED"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Cache errors
	ErrCodeCacheRead  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE_FAILED"
)

// Error represents a failure with additional context. Attempted and
// Candidates are populated for resolution failures so callers can show the
// user what was tried and what would have worked.
type Error struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Attempted  string                 `json:"attempted,omitempty"`
	Candidates []string               `json:"candidates,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message including candidates and
// suggestions when present.
func (e *Error) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if len(e.Candidates) > 0 {
		sb.WriteString(fmt.Sprintf("\n\nAvailable options: %s", strings.Join(e.Candidates, ", ")))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	return sb.String()
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with structured context
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// WithAttempted records the value that failed to resolve
func (e *Error) WithAttempted(attempted string) *Error {
	e.Attempted = attempted
	return e
}

// WithCandidates records the valid alternatives for a failed resolution
func (e *Error) WithCandidates(candidates []string) *Error {
	e.Candidates = candidates
	return e
}

// WithMetadata adds additional metadata to the error
func (e *Error) WithMetadata(key string, value interface{}) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	structured, ok := err.(*Error)
	return ok && structured.Code == code
}

// Common error constructors with pre-configured messages

// NewUnknownEntityError creates an error for an unresolvable table hint
func NewUnknownEntityError(hint string, tables []string) *Error {
	return New(ErrCodeUnknownEntity, "Unknown entity").
		WithDetails(fmt.Sprintf("Could not match '%s' to any table in the database schema", hint)).
		WithSuggestion("Rephrase your question using one of the available table names.").
		WithAttempted(hint).
		WithCandidates(tables)
}

// NewUnknownMetricError creates an error for an unresolvable metric hint
func NewUnknownMetricError(hint, entity string, columns []string) *Error {
	return New(ErrCodeUnknownMetric, "Unknown metric").
		WithDetails(fmt.Sprintf("Could not match '%s' to any column of table '%s'", hint, entity)).
		WithSuggestion("Rephrase your question using one of the table's column names.").
		WithAttempted(hint).
		WithCandidates(columns).
		WithMetadata("entity", entity)
}

// NewUnsupportedAggregationError creates an error for a disallowed aggregation
func NewUnsupportedAggregationError(hint string, supported []string) *Error {
	return New(ErrCodeUnsupportedAggregation, "Unsupported aggregation function").
		WithDetails(fmt.Sprintf("Aggregation '%s' is not in the configured allow-list", hint)).
		WithSuggestion("Use one of the supported aggregation functions.").
		WithAttempted(hint).
		WithCandidates(supported)
}

// NewUnknownFilterColumnError creates an error for an unresolvable filter column
func NewUnknownFilterColumnError(hint, entity string, columns []string) *Error {
	return New(ErrCodeUnknownFilterColumn, "Unknown filter column").
		WithDetails(fmt.Sprintf("Could not match filter column '%s' to any column of table '%s'", hint, entity)).
		WithAttempted(hint).
		WithCandidates(columns).
		WithMetadata("entity", entity)
}

// NewInvalidOperatorError creates an error for an operator outside the allowed set
func NewInvalidOperatorError(operator string, valid []string) *Error {
	return New(ErrCodeInvalidOperator, "Invalid filter operator").
		WithDetails(fmt.Sprintf("Operator '%s' is not allowed", operator)).
		WithAttempted(operator).
		WithCandidates(valid)
}

// NewUnsupportedIntentError creates an error for an intent outside the known kinds.
// Unreachable after validation; kept as a defensive check in the compiler.
func NewUnsupportedIntentError(intent string) *Error {
	return New(ErrCodeUnsupportedIntent, "Unsupported query intent").
		WithDetails(fmt.Sprintf("Intent '%s' cannot be compiled", intent)).
		WithAttempted(intent).
		WithCandidates([]string{"aggregate", "retrieve", "count"})
}

// NewInvalidParameterError creates an error for a parameter value failing sanity checks
func NewInvalidParameterError(name, reason string) *Error {
	return New(ErrCodeInvalidParameter, "Invalid parameter value").
		WithDetails(fmt.Sprintf("Parameter '%s' rejected: %s", name, reason)).
		WithMetadata("parameter", name)
}

// NewUnsafeQueryError creates an error for generated text failing the safety re-check
func NewUnsafeQueryError(reason string) *Error {
	return New(ErrCodeUnsafeQuery, "Generated query failed safety validation").
		WithDetails(reason).
		WithSuggestion("This is an internal error in query generation. Please report it.")
}

// NewSemanticParseError creates an error for language model parsing failures
func NewSemanticParseError(err error, question string) *Error {
	return Wrap(err, ErrCodeSemanticParse, "Failed to understand the question").
		WithDetails(fmt.Sprintf("The language model could not extract query intent from: '%s'", question)).
		WithSuggestion("Try rephrasing your question. For example: 'What is the total revenue this month?' or 'Count all customers'.").
		WithMetadata("retryable", true)
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *Error {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the database").
		WithMetadata("retryable", true)
}

// NewSchemaIntrospectionError creates an error for schema introspection failures
func NewSchemaIntrospectionError(err error) *Error {
	return Wrap(err, ErrCodeSchemaIntrospection, "Schema introspection failed").
		WithDetails("Unable to read table and column definitions from the database").
		WithMetadata("retryable", true)
}

// NewQueryExecutionError creates an error for query execution failures
func NewQueryExecutionError(err error) *Error {
	return Wrap(err, ErrCodeQueryExecution, "Query execution failed").
		WithDetails("The compiled query could not be executed against the database")
}

// NewInvalidInputError creates an error for invalid API input
func NewInvalidInputError(field string, reason string) *Error {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason))
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *Error {
	return New(ErrCodeInvalidCredentials, "Invalid API key").
		WithDetails("Authentication failed with the provided credentials").
		WithSuggestion("Check your API key and try again.")
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *Error {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Include a valid API key in the 'X-API-Key' header or a bearer token in 'Authorization'.")
}
