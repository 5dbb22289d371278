package config

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Target user database
	Database DatabaseConfig

	// History store (PostgreSQL with pgvector)
	History HistoryConfig

	// Redis cache
	Redis RedisConfig

	// Claude LLM configuration
	Claude ClaudeConfig

	// Authentication configuration
	Auth AuthConfig

	// HTTP server configuration
	Server ServerConfig

	// Business rules configuration
	Rules RulesConfig

	// Query processing limits
	Query QueryConfig
}

// DatabaseConfig describes the user database the service answers questions
// about. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string

	// SQLite
	Path string

	// PostgreSQL
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// HistoryConfig holds the question-history PostgreSQL configuration
type HistoryConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClaudeConfig holds Claude API configuration
type ClaudeConfig struct {
	APIKey string
	Model  string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	AllowAnonymous bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    string
	GinMode string
}

// RulesConfig points at the business rules file
type RulesConfig struct {
	Path      string
	HotReload bool
}

// QueryConfig holds query processing limits
type QueryConfig struct {
	Timeout     time.Duration
	MaxRows     int
	CacheTTL    time.Duration
	MaxQuestion int
}

// Loader handles loading configuration from a secret provider
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain: mounted
// secret files first, environment variables as the fallback.
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Database = DatabaseConfig{
		Driver:   l.getString(ctx, "DB_DRIVER", "sqlite"),
		Path:     l.getString(ctx, "DB_PATH", "./data/askdb.db"),
		Host:     l.getString(ctx, "DB_HOST", "localhost"),
		Port:     l.getString(ctx, "DB_PORT", "5432"),
		Database: l.getString(ctx, "DB_NAME", "askdb"),
		Username: l.getString(ctx, "DB_USER", "askdb"),
		Password: l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
	}

	cfg.History = HistoryConfig{
		Enabled:  l.getBool(ctx, "HISTORY_ENABLED", false),
		Host:     l.getString(ctx, "HISTORY_DB_HOST", "localhost"),
		Port:     l.getString(ctx, "HISTORY_DB_PORT", "5432"),
		Database: l.getString(ctx, "HISTORY_DB_NAME", "askdb_history"),
		Username: l.getString(ctx, "HISTORY_DB_USER", "askdb"),
		Password: l.getString(ctx, "HISTORY_DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "HISTORY_DB_SSLMODE", "disable"),
	}

	cfg.Redis = RedisConfig{
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	cfg.Claude = ClaudeConfig{
		APIKey: l.getString(ctx, "CLAUDE_API_KEY", ""),
		Model:  l.getString(ctx, "CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:      l.getString(ctx, "JWT_SECRET", ""),
		JWTExpiry:      l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		AllowAnonymous: l.getBool(ctx, "ALLOW_ANONYMOUS", false),
	}

	cfg.Server = ServerConfig{
		Port:    l.getString(ctx, "PORT", "8080"),
		GinMode: l.getString(ctx, "GIN_MODE", "debug"),
	}

	cfg.Rules = RulesConfig{
		Path:      l.getString(ctx, "RULES_PATH", "./configs/business_rules.yaml"),
		HotReload: l.getBool(ctx, "RULES_HOT_RELOAD", true),
	}

	cfg.Query = QueryConfig{
		Timeout:     l.getDuration(ctx, "QUERY_TIMEOUT", 30*time.Second),
		MaxRows:     l.getInt(ctx, "QUERY_MAX_ROWS", 1000),
		CacheTTL:    l.getDuration(ctx, "CACHE_TTL", 5*time.Minute),
		MaxQuestion: l.getInt(ctx, "MAX_QUESTION_LENGTH", 500),
	}

	return cfg, nil
}

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// MustLoad loads configuration and panics on error; used at startup.
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
