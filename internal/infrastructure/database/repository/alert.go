package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"honeyshield/internal/domain/models"
)

const alertColumns = `
	id, alert_id, created_at, severity, status, source_platform,
	sender_name, sender_profile, message_id, message_content, risk_score,
	threat_type, indicators, mitre_techniques, recommended_action,
	analyst_notes, ml_confidence, resolved_at`

// AlertRepository handles security alert persistence
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// CreateAlert inserts a new alert
func (r *AlertRepository) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO security_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.AlertID, a.CreatedAt, string(a.Severity), string(a.Status), a.SourcePlatform,
		a.SenderName, a.SenderProfile, uuidToNullUUID(a.MessageID), a.MessageContent, a.RiskScore,
		a.ThreatType, a.Indicators, nonNil(a.MITRETechniques), a.RecommendedAction,
		a.AnalystNotes, a.MLConfidence, timeToTimestamptzPtr(a.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by its ALT- identifier
func (r *AlertRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM security_alerts WHERE alert_id = $1`
	a, err := scanAlert(r.pool.QueryRow(ctx, query, alertID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// RecentAlerts lists alerts matching f, newest first.
func (r *AlertRepository) RecentAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.Severity != "" {
		args = append(args, string(f.Severity))
		where = append(where, fmt.Sprintf("severity = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, clampLimit(f.Limit, 100, maxLimit))

	query := `SELECT ` + alertColumns + ` FROM security_alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	out := []*models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAlertStatus applies an analyst triage action. Closing statuses set
// resolved_at; reopening clears it.
func (r *AlertRepository) UpdateAlertStatus(ctx context.Context, alertID string, u models.AlertUpdate, at time.Time) (*models.Alert, error) {
	var resolved pgtype.Timestamptz
	if u.Status.Closed() {
		resolved = pgtype.Timestamptz{Time: at, Valid: true}
	}

	query := `
		UPDATE security_alerts
		SET status = $2,
			analyst_notes = CASE WHEN $3::text = '' THEN analyst_notes ELSE $3::text END,
			resolved_at = $4
		WHERE alert_id = $1
		RETURNING ` + alertColumns

	a, err := scanAlert(r.pool.QueryRow(ctx, query, alertID, string(u.Status), u.AnalystNotes, resolved))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// AlertStats counts alerts by severity and status.
func (r *AlertRepository) AlertStats(ctx context.Context) (*models.AlertStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT severity, status, COUNT(*) FROM security_alerts GROUP BY severity, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	stats := newAlertStats()
	for rows.Next() {
		var (
			sev, status string
			n           int
		)
		if err := rows.Scan(&sev, &status, &n); err != nil {
			return nil, err
		}
		stats.add(models.Severity(sev), models.AlertStatus(status), n)
	}
	return stats.AlertStats, rows.Err()
}

type alertStatsBuilder struct {
	*models.AlertStats
}

func newAlertStats() alertStatsBuilder {
	return alertStatsBuilder{&models.AlertStats{
		BySeverity: map[models.Severity]int{},
		ByStatus:   map[models.AlertStatus]int{},
	}}
}

func (b alertStatsBuilder) add(sev models.Severity, status models.AlertStatus, n int) {
	b.Total += n
	b.BySeverity[sev] += n
	b.ByStatus[status] += n
	if status == models.AlertStatusOpen {
		b.Open += n
	}
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var (
		a                models.Alert
		severity, status string
		messageID        pgtype.UUID
		resolvedAt       pgtype.Timestamptz
	)
	err := row.Scan(
		&a.ID, &a.AlertID, &a.CreatedAt, &severity, &status, &a.SourcePlatform,
		&a.SenderName, &a.SenderProfile, &messageID, &a.MessageContent, &a.RiskScore,
		&a.ThreatType, &a.Indicators, &a.MITRETechniques, &a.RecommendedAction,
		&a.AnalystNotes, &a.MLConfidence, &resolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.MessageID = nullUUIDToPtr(messageID)
	a.ResolvedAt = timestamptzToTimePtr(resolvedAt)
	return &a, nil
}
