package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"honeyshield/internal/config"
	"honeyshield/pkg/logger"
)

// migrationLockID keys the advisory lock held while the schema is applied.
const migrationLockID int64 = 0x686f6e6579

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// PostgresDB holds the pool shared by the Postgres repositories.
type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgres connects to cfg, retrying while the server comes up.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*PostgresDB, error) {
	log = log.WithComponent("postgres")

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err := connect(ctx, poolCfg)
		if err == nil {
			log.Info().
				Str("host", cfg.Host).
				Str("dbname", cfg.DBName).
				Int("attempt", attempt).
				Msg("connected to PostgreSQL")
			return &PostgresDB{pool: pool, logger: log}, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("PostgreSQL not reachable yet")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * connectBackoff):
		}
	}
	return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, lastErr)
}

func connect(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (db *PostgresDB) Pool() *pgxpool.Pool { return db.pool }

func (db *PostgresDB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

func (db *PostgresDB) Close() {
	db.logger.Info().Msg("closing PostgreSQL pool")
	db.pool.Close()
}

// Migrate applies the schema in one transaction. Concurrent replicas
// serialize on an advisory lock.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		for i, stmt := range postgresSchema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration step %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.logger.Info().Int("steps", len(postgresSchema)).Msg("schema migrated")
	return nil
}
