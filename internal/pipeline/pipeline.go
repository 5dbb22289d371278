// Package pipeline orchestrates the question-to-query flow: semantic parse,
// normalize, validate, compile and optionally execute. Each stage either
// succeeds or fails the run with a structured error; validation findings are
// data and only fail the run when errors are present.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/askdb/askdb/internal/compiler"
	"github.com/askdb/askdb/internal/database"
	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/ir"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/normalizer"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/rules"
	"github.com/askdb/askdb/internal/validator"
)

// Request is one question to answer.
type Request struct {
	Question string `json:"question" binding:"required"`
	// Execute controls whether the compiled query runs against the database.
	// When false the response carries only the compiled text and parameters.
	Execute bool `json:"execute"`
}

// Step records the duration of one pipeline stage.
type Step struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// Response is the outcome of one pipeline run.
type Response struct {
	Question         string                    `json:"question"`
	QueryText        string                    `json:"query_text"`
	Parameters       map[string]interface{}    `json:"parameters"`
	Kind             string                    `json:"query_kind"`
	Warnings         []string                  `json:"warnings,omitempty"`
	Result           *executor.Result          `json:"result,omitempty"`
	SimilarQuestions []history.SimilarQuestion `json:"similar_questions,omitempty"`
	CacheHit         bool                      `json:"cache_hit"`
	ProcessingMs     int64                     `json:"processing_ms"`
	Steps            []Step                    `json:"steps,omitempty"`
}

// Config holds pipeline tunables.
type Config struct {
	CacheTTL    time.Duration
	MaxQuestion int
}

// DefaultConfig returns the stock pipeline tunables
func DefaultConfig() Config {
	return Config{
		CacheTTL:    5 * time.Minute,
		MaxQuestion: 500,
	}
}

// Pipeline wires the stages together. The cache, history store and executor
// are optional; a nil value disables that concern.
type Pipeline struct {
	llmClient    llm.Client
	db           database.Database
	ruleProvider rules.Provider
	clock        normalizer.Clock
	validator    *validator.Validator
	compiler     *compiler.Compiler
	executor     *executor.Executor
	cache        *redis.Client
	historyStore history.Store
	config       Config
	logger       *observability.Logger
}

// New creates a pipeline
func New(llmClient llm.Client, db database.Database, ruleProvider rules.Provider, config Config) *Pipeline {
	if ruleProvider == nil {
		ruleProvider = rules.NewStatic(nil)
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.MaxQuestion <= 0 {
		config.MaxQuestion = DefaultConfig().MaxQuestion
	}
	return &Pipeline{
		llmClient:    llmClient,
		db:           db,
		ruleProvider: ruleProvider,
		clock:        normalizer.DefaultClock(),
		validator:    validator.New(nil),
		compiler:     compiler.New(),
		config:       config,
		logger:       observability.NewLogger("pipeline"),
	}
}

// WithExecutor enables query execution
func (p *Pipeline) WithExecutor(e *executor.Executor) *Pipeline {
	p.executor = e
	return p
}

// WithCache enables Redis result caching
func (p *Pipeline) WithCache(cache *redis.Client) *Pipeline {
	p.cache = cache
	return p
}

// WithHistory enables question history recording and similar-question lookup
func (p *Pipeline) WithHistory(store history.Store) *Pipeline {
	p.historyStore = store
	return p
}

// WithClock overrides the time anchor used for time-expression resolution
func (p *Pipeline) WithClock(clock normalizer.Clock) *Pipeline {
	p.clock = clock
	return p
}

// Run processes one question end to end.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, apperrors.NewInvalidInputError("question", "must not be empty")
	}
	if len(question) > p.config.MaxQuestion {
		return nil, apperrors.NewInvalidInputError("question",
			fmt.Sprintf("exceeds maximum length of %d characters", p.config.MaxQuestion))
	}

	var errorType string
	var response *Response
	var runErr error

	defer func() {
		duration := time.Since(start)
		success := runErr == nil
		cached := response != nil && response.CacheHit
		observability.RecordPipelineMetrics(duration, success, cached, errorType)

		if runErr != nil {
			p.logger.Error(ctx, "Pipeline run failed", runErr, map[string]interface{}{
				"question":    question,
				"duration_ms": duration.Milliseconds(),
				"error_type":  errorType,
			})
		} else {
			p.logger.Info(ctx, "Pipeline run completed", map[string]interface{}{
				"question":    question,
				"duration_ms": duration.Milliseconds(),
				"cache_hit":   cached,
			})
		}
	}()

	var steps []Step
	timed := func(name string, fn func() error) error {
		stepStart := time.Now()
		err := fn()
		steps = append(steps, Step{Name: name, DurationMs: time.Since(stepStart).Milliseconds()})
		return err
	}

	snap, err := p.db.Introspect(ctx)
	if err != nil {
		errorType = "introspection"
		runErr = err
		return nil, err
	}

	cacheKey := p.cacheKey(question, snap.PromptContext(), req.Execute)
	if cached := p.getCached(ctx, cacheKey); cached != nil {
		cached.CacheHit = true
		cached.ProcessingMs = time.Since(start).Milliseconds()
		response = cached
		return cached, nil
	}

	var similar []history.SimilarQuestion
	var embedding []float32
	if p.historyStore != nil {
		embedding, err = p.llmClient.GetEmbedding(ctx, question)
		if err == nil {
			similar, err = p.historyStore.FindSimilar(ctx, embedding, 3)
			if err != nil {
				// Similar questions are advisory only.
				p.logger.Warn(ctx, "Similar question lookup failed", map[string]interface{}{
					"error": err.Error(),
				})
				similar = nil
			}
		}
	}

	var hint *ir.SemanticHint
	if err := timed("parse", func() error {
		var parseErr error
		hint, parseErr = p.llmClient.ParseQuestion(ctx, question, snap)
		return parseErr
	}); err != nil {
		errorType = "semantic_parse"
		runErr = err
		return nil, err
	}

	var descriptor *ir.CanonicalDescriptor
	if err := timed("normalize", func() error {
		var normErr error
		norm := normalizer.New(p.ruleProvider.Current(), p.clock)
		descriptor, normErr = norm.Normalize(ctx, *hint, snap)
		return normErr
	}); err != nil {
		errorType = "normalization"
		runErr = err
		return nil, err
	}

	var validation ir.ValidationResult
	_ = timed("validate", func() error {
		validation = p.validator.Validate(descriptor, snap)
		return nil
	})
	if !validation.Valid {
		errorType = "validation"
		observability.GetGlobalMetrics().Inc(observability.MetricValidationFailures, nil)
		runErr = apperrors.New(apperrors.ErrCodeValidationFailed, "Query validation failed").
			WithDetails(strings.Join(validation.Errors, "; ")).
			WithMetadata("errors", validation.Errors).
			WithMetadata("warnings", validation.Warnings)
		return nil, runErr
	}

	var compiled *ir.CompiledQuery
	if err := timed("compile", func() error {
		var compileErr error
		compiled, compileErr = p.compiler.Compile(descriptor, snap)
		return compileErr
	}); err != nil {
		errorType = "compilation"
		runErr = err
		return nil, err
	}

	response = &Response{
		Question:         question,
		QueryText:        compiled.Text,
		Parameters:       compiled.Parameters,
		Kind:             string(compiled.Kind),
		Warnings:         validation.Warnings,
		SimilarQuestions: similar,
	}

	if req.Execute && p.executor != nil {
		var result *executor.Result
		if err := timed("execute", func() error {
			var execErr error
			result, execErr = p.executor.Execute(ctx, compiled)
			return execErr
		}); err != nil {
			errorType = "execution"
			p.record(ctx, question, compiled.Text, embedding, false, time.Since(start))
			runErr = err
			return nil, err
		}
		response.Result = result
	}

	response.Steps = steps
	response.ProcessingMs = time.Since(start).Milliseconds()

	p.record(ctx, question, compiled.Text, embedding, true, time.Since(start))
	p.setCached(ctx, cacheKey, response)

	return response, nil
}

// cacheKey derives the cache key from the question, the schema shape and the
// execute flag. A schema change invalidates old entries by changing the key.
func (p *Pipeline) cacheKey(question, schemaContext string, execute bool) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%t", question, schemaContext, execute)))
	return fmt.Sprintf("askdb:query:%x", sum)
}

func (p *Pipeline) getCached(ctx context.Context, key string) *Response {
	if p.cache == nil {
		return nil
	}

	cached, err := p.cache.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var response Response
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		p.logger.Warn(ctx, "Failed to decode cached response", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return &response
}

func (p *Pipeline) setCached(ctx context.Context, key string, response *Response) {
	if p.cache == nil {
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		return
	}

	if err := p.cache.Set(ctx, key, data, p.config.CacheTTL).Err(); err != nil {
		p.logger.Warn(ctx, "Failed to cache pipeline response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (p *Pipeline) record(ctx context.Context, question, queryText string, embedding []float32, success bool, duration time.Duration) {
	if p.historyStore == nil || embedding == nil {
		return
	}

	entry := history.Entry{
		Question:   question,
		QueryText:  queryText,
		Success:    success,
		DurationMs: duration.Milliseconds(),
	}
	if err := p.historyStore.Record(ctx, entry, embedding); err != nil {
		p.logger.Warn(ctx, "Failed to record question history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
