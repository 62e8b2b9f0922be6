package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"honeyshield/internal/domain/models"
)

const threatColumns = `
	sender_profile_url, sender_name, platform, first_detected, last_detected,
	total_messages, max_risk_score, mitre_techniques`

// ThreatRepository handles threat actor persistence
type ThreatRepository struct {
	pool *pgxpool.Pool
}

// NewThreatRepository creates a new threat repository
func NewThreatRepository(pool *pgxpool.Pool) *ThreatRepository {
	return &ThreatRepository{pool: pool}
}

// UpsertThreat folds an observation into the sender's threat row, creating
// it on first sight. The row is locked for the read-modify-write.
func (r *ThreatRepository) UpsertThreat(ctx context.Context, u models.ThreatUpdate) (*models.Threat, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + threatColumns + ` FROM threat_actors WHERE sender_profile_url = $1 FOR UPDATE`
	t, err := scanThreat(tx.QueryRow(ctx, query, u.SenderProfileURL))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		t = &models.Threat{SenderProfileURL: u.SenderProfileURL}
	case err != nil:
		return nil, err
	}
	t.Apply(u)

	upsert := `
		INSERT INTO threat_actors (` + threatColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sender_profile_url) DO UPDATE SET
			sender_name = EXCLUDED.sender_name,
			platform = EXCLUDED.platform,
			first_detected = EXCLUDED.first_detected,
			last_detected = EXCLUDED.last_detected,
			total_messages = EXCLUDED.total_messages,
			max_risk_score = EXCLUDED.max_risk_score,
			mitre_techniques = EXCLUDED.mitre_techniques`
	_, err = tx.Exec(ctx, upsert,
		t.SenderProfileURL, t.SenderName, string(t.Platform), t.FirstDetected, t.LastDetected,
		t.TotalMessages, t.MaxRiskScore, nonNil(t.MITRETechniques),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert threat: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit threat: %w", err)
	}
	return t, nil
}

// GetThreat retrieves a threat by sender profile
func (r *ThreatRepository) GetThreat(ctx context.Context, profileURL string) (*models.Threat, error) {
	query := `SELECT ` + threatColumns + ` FROM threat_actors WHERE sender_profile_url = $1`
	t, err := scanThreat(r.pool.QueryRow(ctx, query, profileURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListThreats lists threats, riskiest and most recent first.
func (r *ThreatRepository) ListThreats(ctx context.Context, limit int) ([]*models.Threat, error) {
	query := `
		SELECT ` + threatColumns + ` FROM threat_actors
		ORDER BY max_risk_score DESC, last_detected DESC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, clampLimit(limit, 50, maxLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list threats: %w", err)
	}
	defer rows.Close()

	out := []*models.Threat{}
	for rows.Next() {
		t, err := scanThreat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanThreat(row pgx.Row) (*models.Threat, error) {
	var (
		t        models.Threat
		platform string
	)
	err := row.Scan(
		&t.SenderProfileURL, &t.SenderName, &platform, &t.FirstDetected, &t.LastDetected,
		&t.TotalMessages, &t.MaxRiskScore, &t.MITRETechniques,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan threat: %w", err)
	}
	t.Platform = models.Platform(platform)
	return &t, nil
}
