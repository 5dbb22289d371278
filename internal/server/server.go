// Package server exposes the question pipeline over HTTP with gin.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/database"
	apperrors "github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
)

// RulesReloader forces a business-rules reload outside of filesystem events.
type RulesReloader interface {
	Reload(ctx context.Context) error
}

// Server wires the pipeline and its supporting services into HTTP routes.
type Server struct {
	pipeline      *pipeline.Pipeline
	db            database.Database
	historyStore  history.Store
	authManager   *auth.Manager
	healthChecker *observability.HealthChecker
	rulesReloader RulesReloader
	uploadDir     string
	onUpload      func(ctx context.Context, path string) error
	logger        *observability.Logger
	metrics       *observability.MetricsCollector
}

// New creates a server around the pipeline
func New(p *pipeline.Pipeline, db database.Database) *Server {
	return &Server{
		pipeline: p,
		db:       db,
		logger:   observability.NewLogger("server"),
		metrics:  observability.GetGlobalMetrics(),
	}
}

// WithHistory enables the history endpoint
func (s *Server) WithHistory(store history.Store) *Server {
	s.historyStore = store
	return s
}

// WithAuth enables authentication on the API routes
func (s *Server) WithAuth(manager *auth.Manager) *Server {
	s.authManager = manager
	return s
}

// WithHealthChecker enables detailed health reporting
func (s *Server) WithHealthChecker(checker *observability.HealthChecker) *Server {
	s.healthChecker = checker
	return s
}

// WithRulesReloader enables the rules reload endpoint
func (s *Server) WithRulesReloader(reloader RulesReloader) *Server {
	s.rulesReloader = reloader
	return s
}

// WithUpload enables database file uploads. onUpload is called with the
// stored file path and is responsible for swapping the active connector.
func (s *Server) WithUpload(dir string, onUpload func(ctx context.Context, path string) error) *Server {
	s.uploadDir = dir
	s.onUpload = onUpload
	return s
}

// Router builds the gin engine with all routes and middleware
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(s.correlationMiddleware())
	r.Use(s.metricsMiddleware())

	r.GET("/health", s.handleHealth)

	if s.authManager != nil {
		r.POST("/api/v1/auth/login", s.handleLogin)
	}

	api := r.Group("/api/v1")
	if s.authManager != nil {
		api.Use(s.authManager.Middleware())
	}
	{
		api.POST("/query", s.handleQuery)
		api.GET("/schema", s.handleSchema)
		api.GET("/history", s.handleHistory)
		api.GET("/metrics", s.handleMetrics)
		api.POST("/rules/reload", s.handleRulesReload)
		api.POST("/databases", s.handleUpload)
	}

	return r
}

// Run starts the HTTP server on the given port
func (s *Server) Run(port string) error {
	return s.Router().Run(":" + port)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.healthChecker == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "askdb"})
		return
	}

	response := s.healthChecker.GetHealthResponse(c.Request.Context())
	statusCode := http.StatusOK
	if response.Status == observability.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, formatErrorResponse(apperrors.NewInvalidInputError("request body", err.Error())))
		return
	}

	token, user, err := s.authManager.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"roles":    user.Roles,
		},
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, formatErrorResponse(apperrors.NewInvalidInputError("request body", err.Error())))
		return
	}

	response, err := s.pipeline.Run(c.Request.Context(), &req)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleSchema(c *gin.Context) {
	snap, err := s.db.Introspect(c.Request.Context())
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tables": snap,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.historyStore == nil {
		c.JSON(http.StatusNotFound, formatErrorResponse(
			apperrors.New(apperrors.ErrCodeInvalidInput, "Question history is not enabled")))
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	entries, err := s.historyStore.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetAll())
}

func (s *Server) handleRulesReload(c *gin.Context) {
	if s.rulesReloader == nil {
		c.JSON(http.StatusNotFound, formatErrorResponse(
			apperrors.New(apperrors.ErrCodeInvalidInput, "Rules hot reload is not enabled")))
		return
	}

	if err := s.rulesReloader.Reload(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadRequest, formatErrorResponse(
			apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "Failed to reload business rules")))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.onUpload == nil {
		c.JSON(http.StatusNotFound, formatErrorResponse(
			apperrors.New(apperrors.ErrCodeInvalidInput, "Database upload is not enabled")))
		return
	}

	file, header, err := c.Request.FormFile("database")
	if err != nil {
		c.JSON(http.StatusBadRequest, formatErrorResponse(
			apperrors.NewInvalidInputError("database", "multipart file field 'database' is required")))
		return
	}
	defer file.Close()

	if filepath.Ext(header.Filename) != ".db" && filepath.Ext(header.Filename) != ".sqlite" {
		c.JSON(http.StatusBadRequest, formatErrorResponse(
			apperrors.NewInvalidInputError("database", "only .db and .sqlite files are accepted")))
		return
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, formatErrorResponse(err))
		return
	}

	storedPath := filepath.Join(s.uploadDir, fmt.Sprintf("%s-%s", uuid.New().String(), filepath.Base(header.Filename)))
	out, err := os.Create(storedPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, formatErrorResponse(err))
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		c.JSON(http.StatusInternalServerError, formatErrorResponse(err))
		return
	}
	out.Close()

	if err := s.onUpload(c.Request.Context(), storedPath); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	s.logger.Info(c.Request.Context(), "Database uploaded", map[string]interface{}{
		"filename": header.Filename,
		"path":     storedPath,
	})

	c.JSON(http.StatusOK, gin.H{"status": "active", "path": storedPath})
}

// corsMiddleware allows browser clients to reach the API
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// correlationMiddleware attaches a correlation ID to each request context
func (s *Server) correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}

		ctx := observability.WithCorrelationID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-ID", id)

		c.Next()
	}
}

// metricsMiddleware records request counts and durations
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		labels := map[string]string{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": strconv.Itoa(c.Writer.Status()),
		}
		s.metrics.Inc(observability.MetricHTTPRequests, labels)
		s.metrics.Observe(observability.MetricHTTPDuration, time.Since(start).Seconds(), nil)
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.metrics.Inc(observability.MetricHTTPErrors, labels)
		}
	}
}

// formatErrorResponse formats an error into a user-facing response body
func formatErrorResponse(err error) gin.H {
	if structured, ok := err.(*apperrors.Error); ok {
		errorBody := gin.H{
			"code":    structured.Code,
			"message": structured.Message,
		}

		if structured.Details != "" {
			errorBody["details"] = structured.Details
		}
		if structured.Suggestion != "" {
			errorBody["suggestion"] = structured.Suggestion
		}
		if structured.Attempted != "" {
			errorBody["attempted"] = structured.Attempted
		}
		if len(structured.Candidates) > 0 {
			errorBody["candidates"] = structured.Candidates
		}
		if len(structured.Metadata) > 0 {
			errorBody["metadata"] = structured.Metadata
		}

		return gin.H{"error": errorBody}
	}

	return gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	}
}

// getErrorStatusCode maps error codes onto HTTP status codes
func getErrorStatusCode(err error) int {
	structured, ok := err.(*apperrors.Error)
	if !ok {
		return http.StatusInternalServerError
	}

	switch structured.Code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeInvalidOperator, apperrors.ErrCodeInvalidParameter:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnknownEntity, apperrors.ErrCodeUnknownMetric,
		apperrors.ErrCodeUnknownFilterColumn, apperrors.ErrCodeUnsupportedAggregation,
		apperrors.ErrCodeValidationFailed, apperrors.ErrCodeUnsafeQuery,
		apperrors.ErrCodeUnsupportedIntent:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeInvalidCredentials, apperrors.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case apperrors.ErrCodeSemanticParse:
		return http.StatusBadGateway
	case apperrors.ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
