package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles the Postgres repositories into a Store.
type Repositories struct {
	*MessageRepository
	*ThreatRepository
	*AlertRepository
	*DashboardRepository

	pool *pgxpool.Pool
}

var _ Store = (*Repositories)(nil)

// NewRepositories creates all repositories over one pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		MessageRepository:   NewMessageRepository(pool),
		ThreatRepository:    NewThreatRepository(pool),
		AlertRepository:     NewAlertRepository(pool),
		DashboardRepository: NewDashboardRepository(pool),
		pool:                pool,
	}
}

func (r *Repositories) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to database.PostgresDB.
func (r *Repositories) Close() error {
	return nil
}
