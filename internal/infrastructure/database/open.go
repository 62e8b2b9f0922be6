package database

import (
	"context"
	"fmt"

	"honeyshield/internal/config"
	"honeyshield/internal/infrastructure/database/repository"
	"honeyshield/pkg/logger"
)

type postgresStore struct {
	*repository.Repositories
	db *PostgresDB
}

func (s *postgresStore) Close() error {
	s.db.Close()
	return nil
}

type sqliteStore struct {
	*repository.SQLiteStore
	db *SQLiteDB
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// Open connects the configured backend, migrates it and returns the store.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &postgresStore{Repositories: repository.NewRepositories(db.Pool()), db: db}, nil

	case "sqlite", "":
		db, err := NewSQLite(ctx, cfg.SQLite, log)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &sqliteStore{SQLiteStore: repository.NewSQLiteStore(db.DB()), db: db}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
