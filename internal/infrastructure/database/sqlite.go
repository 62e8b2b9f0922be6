package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"honeyshield/internal/config"
	"honeyshield/pkg/logger"
)

// SQLiteDB is a single-file database for deployments without Postgres.
type SQLiteDB struct {
	db     *sql.DB
	path   string
	logger *logger.Logger
}

// NewSQLite opens (and creates) the database file at cfg.Path.
func NewSQLite(ctx context.Context, cfg config.SQLiteConfig, log *logger.Logger) (*SQLiteDB, error) {
	log = log.WithComponent("sqlite")

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL", cfg.Path, busy.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// go-sqlite3 serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	log.Info().Str("path", cfg.Path).Msg("opened SQLite database")
	return &SQLiteDB{db: db, path: cfg.Path, logger: log}, nil
}

// DB returns the underlying handle.
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	s.logger.Info().Msg("closing SQLite database")
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	for i, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	s.logger.Debug().Int("steps", len(sqliteSchema)).Msg("schema migrated")
	return nil
}
