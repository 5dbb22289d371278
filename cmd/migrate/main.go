// Command migrate applies history-store schema migrations.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/askdb/askdb/internal/database"
)

func main() {
	databaseURL := buildDatabaseURL()

	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	log.Println("Running history store migrations...")
	if err := database.RunMigrations(database.MigrationConfig{
		DatabaseURL:    databaseURL,
		MigrationsPath: migrationsPath,
	}); err != nil {
		log.Fatal("Migration failed: ", err)
	}
	log.Println("Migrations applied successfully")

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatal("Failed to open database for health check: ", err)
	}
	defer db.Close()

	if err := database.HealthCheck(db); err != nil {
		log.Fatal("Post-migration health check failed: ", err)
	}
	log.Println("History store is healthy")
}

func buildDatabaseURL() string {
	host := getEnv("HISTORY_DB_HOST", "localhost")
	port := getEnv("HISTORY_DB_PORT", "5432")
	name := getEnv("HISTORY_DB_NAME", "askdb_history")
	user := getEnv("HISTORY_DB_USER", "askdb")
	password := getEnv("HISTORY_DB_PASSWORD", "")
	sslMode := getEnv("HISTORY_DB_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
