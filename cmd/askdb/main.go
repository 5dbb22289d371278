package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/rules"
	"github.com/askdb/askdb/internal/server"
)

func main() {
	ctx := context.Background()
	logger := observability.NewLogger("main")

	cfg := config.NewDefaultLoader().MustLoad(ctx)
	gin.SetMode(cfg.Server.GinMode)

	// User database
	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	switchable := database.NewSwitchable(db)
	defer switchable.Close()

	// Language model client with circuit breaker protection
	claudeClient, err := llm.NewClaudeClient(cfg.Claude.APIKey, cfg.Claude.Model)
	if err != nil {
		log.Fatal("Failed to initialize LLM client: ", err)
	}
	llmClient := llm.NewCircuitBreakerClient(claudeClient, "claude", llm.DefaultCircuitBreakerConfig)

	// Business rules, optionally hot-reloaded
	var ruleProvider rules.Provider
	var reloader server.RulesReloader
	if cfg.Rules.HotReload {
		watcher, err := rules.NewWatcher(cfg.Rules.Path)
		if err != nil {
			logger.Warn(ctx, "Rules file unavailable, using built-in defaults", map[string]interface{}{
				"path":  cfg.Rules.Path,
				"error": err.Error(),
			})
			ruleProvider = rules.NewStatic(nil)
		} else {
			watcher.Start()
			defer watcher.Close()
			ruleProvider = watcher
			reloader = watcher
		}
	} else {
		loaded, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			logger.Warn(ctx, "Rules file unavailable, using built-in defaults", map[string]interface{}{
				"path":  cfg.Rules.Path,
				"error": err.Error(),
			})
			loaded = nil
		}
		ruleProvider = rules.NewStatic(loaded)
	}

	// Redis cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Question history (optional)
	var historyStore history.Store
	if cfg.History.Enabled {
		store, err := history.NewPostgresStore(history.PostgresConfig{
			Host:     cfg.History.Host,
			Port:     cfg.History.Port,
			Database: cfg.History.Database,
			Username: cfg.History.Username,
			Password: cfg.History.Password,
			SSLMode:  cfg.History.SSLMode,
		})
		if err != nil {
			logger.Warn(ctx, "History store unavailable, continuing without it", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			historyStore = store
			defer store.Close()
		}
	}

	// Pipeline
	exec := executor.New(switchable, executor.Config{
		Timeout: cfg.Query.Timeout,
		MaxRows: cfg.Query.MaxRows,
	})

	p := pipeline.New(llmClient, switchable, ruleProvider, pipeline.Config{
		CacheTTL:    cfg.Query.CacheTTL,
		MaxQuestion: cfg.Query.MaxQuestion,
	}).
		WithExecutor(exec).
		WithCache(rdb).
		WithHistory(historyStore)

	// Authentication
	authManager := auth.NewManager(auth.Config{
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTExpiry:      cfg.Auth.JWTExpiry,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
	})

	// Health checks
	healthChecker := observability.NewHealthChecker()
	healthChecker.Register("database", observability.PingHealthCheck("database", switchable.Ping))
	healthChecker.Register("redis", observability.PingHealthCheck("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	if historyStore != nil {
		healthChecker.Register("history", observability.PingHealthCheck("history", historyStore.Ping))
	}

	// HTTP server
	srv := server.New(p, switchable).
		WithAuth(authManager).
		WithHealthChecker(healthChecker).
		WithHistory(historyStore).
		WithUpload("./data/uploads", func(ctx context.Context, path string) error {
			replacement, err := database.NewSQLite(path)
			if err != nil {
				return err
			}
			if _, err := replacement.Introspect(ctx); err != nil {
				replacement.Close()
				return err
			}
			if previous := switchable.Swap(replacement); previous != nil {
				previous.Close()
			}
			return nil
		})
	if reloader != nil {
		srv = srv.WithRulesReloader(reloader)
	}

	logger.Info(ctx, "askdb starting", map[string]interface{}{
		"port":   cfg.Server.Port,
		"driver": cfg.Database.Driver,
	})
	if err := srv.Run(cfg.Server.Port); err != nil {
		logger.Error(ctx, "Server exited", err, nil)
		log.Fatal("Failed to start server: ", err)
	}
}

func openDatabase(cfg config.DatabaseConfig) (database.Database, error) {
	if cfg.Driver == "postgres" {
		return database.NewPostgres(database.PostgresConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
			SSLMode:  cfg.SSLMode,
		})
	}
	return database.NewSQLite(cfg.Path)
}
