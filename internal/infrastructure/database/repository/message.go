package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"honeyshield/internal/domain/models"
)

const messageColumns = `
	id, source, platform, external_id, sender_name, sender_profile_url,
	message_content, fingerprint, received_at, analyzed_at,
	risk_score, risk_level, severity, keywords_found, analysis_notes,
	mitre_techniques, threat_type`

// MessageRepository handles message persistence
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// SaveMessage inserts an analyzed message. A stored fingerprint yields
// ErrDuplicate.
func (r *MessageRepository) SaveMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SourceSlug, string(m.Platform), m.ExternalID, m.SenderName, m.SenderProfileURL,
		m.Content, m.Fingerprint, m.ReceivedAt, m.AnalyzedAt,
		m.RiskScore, string(m.RiskLevel), string(m.Severity), nonNil(m.Keywords), nonNil(m.AnalysisNotes),
		nonNil(m.MITRETechniques), m.ThreatType,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID
func (r *MessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// RecentMessages lists messages by arrival, newest first.
func (r *MessageRepository) RecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY received_at DESC LIMIT $1`
	return r.list(ctx, query, clampLimit(limit, defaultLimit, maxLimit))
}

// HighRiskMessages lists messages scoring at least minScore, riskiest first.
func (r *MessageRepository) HighRiskMessages(ctx context.Context, minScore, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE risk_score >= $1
		ORDER BY risk_score DESC, received_at DESC
		LIMIT $2`
	return r.list(ctx, query, minScore, clampLimit(limit, 10, maxLimit))
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		m                         models.Message
		platform, level, severity string
	)
	err := row.Scan(
		&m.ID, &m.SourceSlug, &platform, &m.ExternalID, &m.SenderName, &m.SenderProfileURL,
		&m.Content, &m.Fingerprint, &m.ReceivedAt, &m.AnalyzedAt,
		&m.RiskScore, &level, &severity, &m.Keywords, &m.AnalysisNotes,
		&m.MITRETechniques, &m.ThreatType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Platform = models.Platform(platform)
	m.RiskLevel = models.RiskLevel(level)
	m.Severity = models.Severity(severity)
	return &m, nil
}
