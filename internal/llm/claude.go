package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/schema"
)

const (
	ClaudeAPIBaseURL = "https://api.anthropic.com/v1"
	ClaudeVersion    = "2023-06-01"
	MaxTokens        = 1000
	Temperature      = 0.0 // Zero temperature for reproducible hint extraction
)

// ClaudeClient implements the Client interface using Anthropic's Claude API
type ClaudeClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Claude API request structures
type ClaudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Claude API response structures
type ClaudeResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   Usage          `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Error response structure
type ClaudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ClaudeErrorResponse struct {
	Error ClaudeError `json:"error"`
}

// NewClaudeClient creates a new Claude client
func NewClaudeClient(apiKey, model string) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}

	return &ClaudeClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: ClaudeAPIBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// ParseQuestion asks Claude to extract a semantic hint from the question.
// The returned hint is unverified; every identifier in it is a guess.
func (c *ClaudeClient) ParseQuestion(ctx context.Context, question string, snap schema.Snapshot) (*ir.SemanticHint, error) {
	request := ClaudeRequest{
		Model:       c.model,
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
		Messages: []Message{
			{
				Role:    "user",
				Content: buildParsePrompt(question, snap),
			},
		},
	}

	response, err := c.sendClaudeRequestWithRetry(ctx, request)
	if err != nil {
		return nil, apperrors.NewSemanticParseError(err, question)
	}

	if len(response.Content) == 0 {
		return nil, apperrors.NewSemanticParseError(fmt.Errorf("empty response"), question)
	}

	hint, err := ParseHintJSON(response.Content[0].Text)
	if err != nil {
		return nil, apperrors.NewSemanticParseError(err, question)
	}

	return hint, nil
}

// buildParsePrompt renders the extraction prompt. Only table and column names
// with types are exposed, never row data.
func buildParsePrompt(question string, snap schema.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("You extract structured query intent from natural language questions about a database.\n\n")
	sb.WriteString("Database schema:\n")
	sb.WriteString(snap.PromptContext())
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nRespond with a single JSON object and nothing else:\n")
	sb.WriteString(`{
  "intent": "aggregate" | "retrieve" | "count",
  "entity_hint": "<table the question is about>",
  "metric_hint": "<column being measured, or empty>",
  "aggregation_hint": "<sum|count|avg|min|max, or empty>",
  "filter_hints": [{"column_hint": "<column>", "operator": "=|>|<|>=|<=|LIKE", "value_hint": <value>}],
  "time_expression": "<this month|last month|last 7 days, or empty>"
}
`)
	sb.WriteString("\nUse empty strings and empty arrays for fields that do not apply. Do not invent tables or columns; if unsure, use the closest word from the question itself.")
	return sb.String()
}

// ParseHintJSON decodes the model's reply into a semantic hint. Markdown code
// fences around the JSON are tolerated and stripped.
func ParseHintJSON(text string) (*ir.SemanticHint, error) {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	// The model sometimes prefixes prose; recover by slicing to the first
	// opening brace.
	if !strings.HasPrefix(cleaned, "{") {
		if idx := strings.Index(cleaned, "{"); idx >= 0 {
			cleaned = cleaned[idx:]
		}
	}

	var hint ir.SemanticHint
	if err := json.Unmarshal([]byte(cleaned), &hint); err != nil {
		return nil, fmt.Errorf("failed to decode hint JSON: %w", err)
	}

	if !hint.Intent.Known() {
		return nil, fmt.Errorf("unknown intent %q in hint", hint.Intent)
	}

	return &hint, nil
}

// GetEmbedding creates a basic text representation for similarity matching.
// Claude does not expose an embedding endpoint, so this uses lexical features;
// good enough for approximate duplicate-question lookup.
func (c *ClaudeClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	return createSimpleEmbedding(text), nil
}

// sendClaudeRequest handles the HTTP communication with Claude API
func (c *ClaudeClient) sendClaudeRequest(ctx context.Context, request ClaudeRequest) (*ClaudeResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", ClaudeVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleAPIError(resp.StatusCode, body)
	}

	var claudeResponse ClaudeResponse
	if err := json.Unmarshal(body, &claudeResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &claudeResponse, nil
}

// handleAPIError processes Claude API errors
func (c *ClaudeClient) handleAPIError(statusCode int, body []byte) error {
	var errorResponse ClaudeErrorResponse
	if err := json.Unmarshal(body, &errorResponse); err != nil {
		return fmt.Errorf("API error %d: %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("invalid API key: %s", errorResponse.Error.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limit exceeded: %s", errorResponse.Error.Message)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", errorResponse.Error.Message)
	case http.StatusInternalServerError:
		return fmt.Errorf("Claude API internal error: %s", errorResponse.Error.Message)
	default:
		return fmt.Errorf("Claude API error %d: %s", statusCode, errorResponse.Error.Message)
	}
}

// createSimpleEmbedding builds a lexical feature vector for similarity
// matching between questions.
func createSimpleEmbedding(text string) []float32 {
	const embeddingDim = 384
	embedding := make([]float32, embeddingDim)

	text = strings.ToLower(text)
	if len(text) == 0 {
		return embedding
	}

	// Features 0-36: character frequencies
	charCounts := make(map[rune]int)
	for _, char := range text {
		charCounts[char]++
	}

	chars := "abcdefghijklmnopqrstuvwxyz0123456789 "
	for i, char := range chars {
		if count, exists := charCounts[char]; exists {
			embedding[i] = float32(count) / float32(len(text))
		}
	}

	// Features 50-99: domain keyword indicators
	keywords := []string{
		"revenue", "sales", "total", "amount", "price", "cost", "value",
		"count", "number", "how many", "sum", "average", "avg", "min", "max",
		"customer", "order", "product", "user", "invoice", "payment",
		"status", "completed", "pending", "cancelled", "active",
		"this month", "last month", "last 7 days", "today", "week", "year",
		"show", "list", "find", "top", "highest", "lowest", "most", "least",
		"greater", "less", "more than", "under", "over", "between",
		"group", "filter", "where", "each", "per",
	}

	for i, keyword := range keywords {
		if i+50 < embeddingDim && strings.Contains(text, keyword) {
			embedding[i+50] = 1.0
		}
	}

	// Features 150+: length and structure
	embedding[150] = float32(len(text)) / 1000.0
	embedding[151] = float32(strings.Count(text, " ")) / float32(len(text))
	embedding[152] = float32(strings.Count(text, "?"))

	var magnitude float32
	for _, val := range embedding {
		magnitude += val * val
	}
	if magnitude > 0 {
		magnitude = float32(1.0 / (magnitude + 0.001))
		for i := range embedding {
			embedding[i] *= magnitude
		}
	}

	return embedding
}
