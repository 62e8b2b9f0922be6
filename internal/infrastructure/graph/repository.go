package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

const defaultRelatedLimit = 20

// cypherRecordMessage upserts the sender, the decoy it contacted and every
// technique its message was mapped to.
const cypherRecordMessage = `
MERGE (s:Sender {key: $key})
ON CREATE SET s.first_seen = $at, s.messages = 0, s.max_risk_score = 0
SET s.name = $name,
	s.profile_url = $profile_url,
	s.platform = $platform,
	s.last_seen = $at,
	s.messages = s.messages + 1,
	s.max_risk_score = CASE WHEN $score > s.max_risk_score THEN $score ELSE s.max_risk_score END
MERGE (d:Decoy {slug: $source})
ON CREATE SET d.platform = $platform
MERGE (s)-[c:CONTACTED]->(d)
ON CREATE SET c.count = 0
SET c.count = c.count + 1, c.last_seen = $at
WITH s
UNWIND $techniques AS tid
MERGE (t:Technique {id: tid})
MERGE (s)-[u:USED]->(t)
ON CREATE SET u.count = 0
SET u.count = u.count + 1, u.last_seen = $at`

// cypherRelatedSenders finds senders sharing at least one technique.
const cypherRelatedSenders = `
MATCH (s:Sender {key: $key})-[:USED]->(t:Technique)<-[:USED]-(o:Sender)
WHERE o <> s
WITH o, collect(DISTINCT t.id) AS shared
RETURN o.key AS key, o.name AS name, shared, o.max_risk_score AS max_risk_score
ORDER BY size(shared) DESC, max_risk_score DESC
LIMIT $limit`

// ThreatGraph records which senders contact which decoys with which
// techniques, and answers relationship queries over that graph.
type ThreatGraph struct {
	client *Neo4jClient
	logger *logger.Logger
}

// NewThreatGraph creates the graph repository.
func NewThreatGraph(client *Neo4jClient, log *logger.Logger) *ThreatGraph {
	return &ThreatGraph{
		client: client,
		logger: log.WithComponent("threat-graph"),
	}
}

// messageParams builds the parameters of cypherRecordMessage.
func messageParams(m *models.Message) map[string]any {
	techniques := m.MITRETechniques
	if techniques == nil {
		techniques = []string{}
	}
	source := m.SourceSlug
	if source == "" {
		source = string(m.Platform)
	}
	return map[string]any{
		"key":         m.SenderKey(),
		"name":        m.SenderName,
		"profile_url": m.SenderProfileURL,
		"platform":    string(m.Platform),
		"source":      source,
		"score":       int64(m.RiskScore),
		"at":          m.ReceivedAt.UTC().Unix(),
		"techniques":  techniques,
	}
}

// RecordMessage adds one analyzed message to the graph.
func (g *ThreatGraph) RecordMessage(ctx context.Context, m *models.Message) error {
	params := messageParams(m)
	_, err := g.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypherRecordMessage, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to record message in graph: %w", err)
	}
	g.logger.Debug().
		Str("sender", m.SenderName).
		Int("techniques", len(m.MITRETechniques)).
		Msg("message recorded in graph")
	return nil
}

// RelatedSenders returns senders that used techniques in common with the
// sender identified by key, most overlapping first.
func (g *ThreatGraph) RelatedSenders(ctx context.Context, key string, limit int) ([]models.RelatedSender, error) {
	if limit <= 0 {
		limit = defaultRelatedLimit
	}
	out, err := g.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypherRelatedSenders, map[string]any{"key": key, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		related := make([]models.RelatedSender, 0, len(records))
		for _, rec := range records {
			related = append(related, relatedFromRecord(rec))
		}
		return related, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query related senders: %w", err)
	}
	return out.([]models.RelatedSender), nil
}

func relatedFromRecord(rec *neo4j.Record) models.RelatedSender {
	var r models.RelatedSender
	if v, ok := rec.Get("key"); ok {
		r.SenderProfileURL, _ = v.(string)
	}
	if v, ok := rec.Get("name"); ok {
		r.SenderName, _ = v.(string)
	}
	if v, ok := rec.Get("shared"); ok {
		if items, ok := v.([]any); ok {
			for _, it := range items {
				if s, ok := it.(string); ok {
					r.SharedTechniques = append(r.SharedTechniques, s)
				}
			}
		}
	}
	if v, ok := rec.Get("max_risk_score"); ok {
		if n, ok := v.(int64); ok {
			r.MaxRiskScore = int(n)
		}
	}
	return r
}

// Health checks the underlying connection.
func (g *ThreatGraph) Health(ctx context.Context) error {
	return g.client.Health(ctx)
}

// Stats returns node and relationship counts.
func (g *ThreatGraph) Stats(ctx context.Context) (map[string]int64, error) {
	return g.client.Stats(ctx)
}
