package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/adapters/postgres"
	"github.com/dumu-tech/cafe-orders/internal/config"
	"github.com/dumu-tech/cafe-orders/internal/logging"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Usage: run_migration [file.sql ...]
// Without arguments every migrations/*.sql file runs in name order after
// the schema migration.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	// Use DATABASE_PUBLIC_URL for runs from outside the private network
	dbURL := cfg.DBURL
	if publicURL := os.Getenv("DATABASE_PUBLIC_URL"); publicURL != "" {
		dbURL = publicURL
		zlog.Info("using DATABASE_PUBLIC_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dbpool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbpool.Close()

	// Verify connection
	if err := dbpool.Ping(ctx); err != nil {
		zlog.Fatal("failed to ping database", zap.Error(err))
	}
	zlog.Info("database connection established")

	repo, err := postgres.NewRepository(dbURL, zlog)
	if err != nil {
		zlog.Fatal("failed to open repository", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		zlog.Fatal("schema migration failed", zap.Error(err))
	}
	zlog.Info("schema migrated")

	files := os.Args[1:]
	if len(files) == 0 {
		files, err = filepath.Glob(filepath.Join("migrations", "*.sql"))
		if err != nil {
			zlog.Fatal("failed to list migrations", zap.Error(err))
		}
		sort.Strings(files)
	}

	for _, file := range files {
		sqlContent, err := os.ReadFile(file)
		if err != nil {
			zlog.Fatal("failed to read migration file", zap.String("file", file), zap.Error(err))
		}
		if strings.TrimSpace(string(sqlContent)) == "" {
			continue
		}

		zlog.Info("executing migration", zap.String("file", file))
		if _, err := dbpool.Exec(ctx, string(sqlContent)); err != nil {
			zlog.Fatal("migration failed", zap.String("file", file), zap.Error(err))
		}
	}

	zlog.Info("migrations completed", zap.Int("files", len(files)))
}
