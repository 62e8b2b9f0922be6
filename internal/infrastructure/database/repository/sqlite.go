package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"honeyshield/internal/domain/models"
)

// SQLiteStore implements Store on a go-sqlite3 handle. List columns are
// stored as JSON arrays.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Messages

func (s *SQLiteStore) SaveMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		m.ID.String(), m.SourceSlug, string(m.Platform), m.ExternalID, m.SenderName, m.SenderProfileURL,
		m.Content, m.Fingerprint, m.ReceivedAt.UTC(), m.AnalyzedAt.UTC(),
		m.RiskScore, string(m.RiskLevel), string(m.Severity), encodeList(m.Keywords), encodeList(m.AnalysisNotes),
		encodeList(m.MITRETechniques), m.ThreatType,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id.String())
	m, err := scanSQLiteMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	return s.listMessages(ctx,
		`SELECT `+messageColumns+` FROM messages ORDER BY received_at DESC LIMIT ?`,
		clampLimit(limit, defaultLimit, maxLimit))
}

func (s *SQLiteStore) HighRiskMessages(ctx context.Context, minScore, limit int) ([]*models.Message, error) {
	return s.listMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE risk_score >= ?
		ORDER BY risk_score DESC, received_at DESC
		LIMIT ?`,
		minScore, clampLimit(limit, 10, maxLimit))
}

func (s *SQLiteStore) listMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		m, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row rowScanner) (*models.Message, error) {
	var (
		m                             models.Message
		id, platform, level, severity string
		keywords, notes, techniques   string
	)
	err := row.Scan(
		&id, &m.SourceSlug, &platform, &m.ExternalID, &m.SenderName, &m.SenderProfileURL,
		&m.Content, &m.Fingerprint, &m.ReceivedAt, &m.AnalyzedAt,
		&m.RiskScore, &level, &severity, &keywords, &notes,
		&techniques, &m.ThreatType,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad message id %q: %w", id, err)
	}
	m.Platform = models.Platform(platform)
	m.RiskLevel = models.RiskLevel(level)
	m.Severity = models.Severity(severity)
	m.Keywords = decodeList(keywords)
	m.AnalysisNotes = decodeList(notes)
	m.MITRETechniques = decodeList(techniques)
	return &m, nil
}

// Threats

func (s *SQLiteStore) UpsertThreat(ctx context.Context, u models.ThreatUpdate) (*models.Threat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, `SELECT `+threatColumns+` FROM threat_actors WHERE sender_profile_url = ?`, u.SenderProfileURL)
	t, err := scanSQLiteThreat(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		t = &models.Threat{SenderProfileURL: u.SenderProfileURL}
	case err != nil:
		return nil, err
	}
	u.ObservedAt = u.ObservedAt.UTC()
	t.Apply(u)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threat_actors (`+threatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sender_profile_url) DO UPDATE SET
			sender_name = excluded.sender_name,
			platform = excluded.platform,
			first_detected = excluded.first_detected,
			last_detected = excluded.last_detected,
			total_messages = excluded.total_messages,
			max_risk_score = excluded.max_risk_score,
			mitre_techniques = excluded.mitre_techniques`,
		t.SenderProfileURL, t.SenderName, string(t.Platform), t.FirstDetected.UTC(), t.LastDetected.UTC(),
		t.TotalMessages, t.MaxRiskScore, encodeList(t.MITRETechniques),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert threat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit threat: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) GetThreat(ctx context.Context, profileURL string) (*models.Threat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+threatColumns+` FROM threat_actors WHERE sender_profile_url = ?`, profileURL)
	t, err := scanSQLiteThreat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) ListThreats(ctx context.Context, limit int) ([]*models.Threat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+threatColumns+` FROM threat_actors
		ORDER BY max_risk_score DESC, last_detected DESC
		LIMIT ?`, clampLimit(limit, 50, maxLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list threats: %w", err)
	}
	defer rows.Close()

	out := []*models.Threat{}
	for rows.Next() {
		t, err := scanSQLiteThreat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanSQLiteThreat(row rowScanner) (*models.Threat, error) {
	var (
		t                    models.Threat
		platform, techniques string
	)
	err := row.Scan(
		&t.SenderProfileURL, &t.SenderName, &platform, &t.FirstDetected, &t.LastDetected,
		&t.TotalMessages, &t.MaxRiskScore, &techniques,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan threat: %w", err)
	}
	t.Platform = models.Platform(platform)
	t.MITRETechniques = decodeList(techniques)
	return &t, nil
}

// Alerts

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	var messageID any
	if a.MessageID != nil {
		messageID = a.MessageID.String()
	}
	var resolved any
	if a.ResolvedAt != nil {
		resolved = a.ResolvedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.AlertID, a.CreatedAt.UTC(), string(a.Severity), string(a.Status), a.SourcePlatform,
		a.SenderName, a.SenderProfile, messageID, a.MessageContent, a.RiskScore,
		a.ThreatType, a.Indicators, encodeList(a.MITRETechniques), a.RecommendedAction,
		a.AnalystNotes, a.MLConfidence, resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM security_alerts WHERE alert_id = ?`, alertID)
	a, err := scanSQLiteAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) RecentAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + alertColumns + ` FROM security_alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, clampLimit(f.Limit, 100, maxLimit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	out := []*models.Alert{}
	for rows.Next() {
		a, err := scanSQLiteAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateAlertStatus(ctx context.Context, alertID string, u models.AlertUpdate, at time.Time) (*models.Alert, error) {
	var resolved any
	if u.Status.Closed() {
		resolved = at.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE security_alerts
		SET status = ?,
			analyst_notes = CASE WHEN ? = '' THEN analyst_notes ELSE ? END,
			resolved_at = ?
		WHERE alert_id = ?`,
		string(u.Status), u.AnalystNotes, u.AnalystNotes, resolved, alertID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetAlert(ctx, alertID)
}

func (s *SQLiteStore) AlertStats(ctx context.Context) (*models.AlertStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT severity, status, COUNT(*) FROM security_alerts GROUP BY severity, status`)
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

func scanSQLiteAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                    models.Alert
		id, severity, status string
		techniques           string
		messageID            sql.NullString
		resolvedAt           sql.NullTime
	)
	err := row.Scan(
		&id, &a.AlertID, &a.CreatedAt, &severity, &status, &a.SourcePlatform,
		&a.SenderName, &a.SenderProfile, &messageID, &a.MessageContent, &a.RiskScore,
		&a.ThreatType, &a.Indicators, &techniques, &a.RecommendedAction,
		&a.AnalystNotes, &a.MLConfidence, &resolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad alert id %q: %w", id, err)
	}
	if messageID.Valid {
		if mid, err := uuid.Parse(messageID.String); err == nil {
			a.MessageID = &mid
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.MITRETechniques = decodeList(techniques)
	return &a, nil
}

// Dashboard

const sqliteStatsQuery = `
	SELECT
		(SELECT COUNT(*) FROM messages),
		(SELECT COUNT(*) FROM messages WHERE risk_level = 'High'),
		(SELECT COUNT(*) FROM messages WHERE risk_level = 'Medium'),
		(SELECT COUNT(DISTINCT CASE WHEN sender_profile_url = '' THEN platform || ':' || sender_name ELSE sender_profile_url END) FROM messages),
		(SELECT COUNT(*) FROM security_alerts WHERE status = 'OPEN'),
		(SELECT COUNT(*) FROM threat_actors)`

func (s *SQLiteStore) Stats(ctx context.Context) (*models.DashboardStats, error) {
	st := &models.DashboardStats{GeneratedAt: time.Now().UTC()}
	err := s.db.QueryRowContext(ctx, sqliteStatsQuery).Scan(
		&st.TotalMessages, &st.HighRisk, &st.MediumRisk, &st.UniqueSenders, &st.OpenAlerts, &st.ActiveThreats,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) RiskDistribution(ctx context.Context) ([]models.RiskBucket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT risk_level, COUNT(*) FROM messages GROUP BY risk_level ORDER BY risk_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute risk distribution: %w", err)
	}
	defer rows.Close()

	out := []models.RiskBucket{}
	for rows.Next() {
		var (
			level string
			n     int
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		out = append(out, models.RiskBucket{Level: models.RiskLevel(level), Count: n})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TechniqueCounts(ctx context.Context) ([]models.TechniqueCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.value, COUNT(*) FROM messages, json_each(messages.mitre_techniques) AS j
		GROUP BY j.value ORDER BY COUNT(*) DESC, j.value`)
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
