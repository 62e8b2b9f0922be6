package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"honeyshield/internal/domain/models"
)

// DashboardRepository runs the aggregate queries behind the dashboard.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

const statsQuery = `
	SELECT
		(SELECT COUNT(*) FROM messages),
		(SELECT COUNT(*) FROM messages WHERE risk_level = 'High'),
		(SELECT COUNT(*) FROM messages WHERE risk_level = 'Medium'),
		(SELECT COUNT(DISTINCT CASE WHEN sender_profile_url = '' THEN platform || ':' || sender_name ELSE sender_profile_url END) FROM messages),
		(SELECT COUNT(*) FROM security_alerts WHERE status = 'OPEN'),
		(SELECT COUNT(*) FROM threat_actors)`

// Stats computes the overview counters.
func (r *DashboardRepository) Stats(ctx context.Context) (*models.DashboardStats, error) {
	s := &models.DashboardStats{GeneratedAt: time.Now().UTC()}
	err := r.pool.QueryRow(ctx, statsQuery).Scan(
		&s.TotalMessages, &s.HighRisk, &s.MediumRisk, &s.UniqueSenders, &s.OpenAlerts, &s.ActiveThreats,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return s, nil
}

// RiskDistribution counts messages per risk level.
func (r *DashboardRepository) RiskDistribution(ctx context.Context) ([]models.RiskBucket, error) {
	rows, err := r.pool.Query(ctx, `SELECT risk_level, COUNT(*) FROM messages GROUP BY risk_level ORDER BY risk_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute risk distribution: %w", err)
	}
	defer rows.Close()

	out := []models.RiskBucket{}
	for rows.Next() {
		var b models.RiskBucket
		var level string
		if err := rows.Scan(&level, &b.Count); err != nil {
			return nil, err
		}
		b.Level = models.RiskLevel(level)
		out = append(out, b)
	}
	return out, rows.Err()
}

// TechniqueCounts counts how many messages each technique was mapped to.
func (r *DashboardRepository) TechniqueCounts(ctx context.Context) ([]models.TechniqueCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t, COUNT(*) FROM messages, unnest(mitre_techniques) AS t
		GROUP BY t ORDER BY COUNT(*) DESC, t`)
	if err != nil {
		return nil, fmt.Errorf("failed to count techniques: %w", err)
	}
	defer rows.Close()

	out := []models.TechniqueCount{}
	for rows.Next() {
		var c models.TechniqueCount
		if err := rows.Scan(&c.TechniqueID, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
