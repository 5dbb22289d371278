// Package llm integrates the language model used for semantic parsing. The
// model only ever sees the question and the schema outline; its output is an
// untrusted hint that the normalizer verifies against the schema.
package llm

import (
	"context"

	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

// Client interface for language model integration
type Client interface {
	// ParseQuestion extracts a semantic hint from a natural language question
	// given the schema snapshot for context.
	ParseQuestion(ctx context.Context, question string, snap schema.Snapshot) (*ir.SemanticHint, error)

	// GetEmbedding returns a vector representation of the text for
	// similar-question lookup.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}
