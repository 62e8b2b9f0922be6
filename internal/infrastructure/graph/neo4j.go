package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"honeyshield/internal/config"
	"honeyshield/pkg/logger"
)

// Neo4jClient wraps the Neo4j driver
type Neo4jClient struct {
	driver neo4j.DriverWithContext
	config config.Neo4jConfig
	logger *logger.Logger
}

// NewNeo4jClient connects to Neo4j and creates the sender graph indexes.
func NewNeo4jClient(ctx context.Context, cfg config.Neo4jConfig, log *logger.Logger) (*Neo4jClient, error) {
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnections > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnections
		}
		if cfg.MaxLifetimeMinutes > 0 {
			c.MaxConnectionLifetime = time.Duration(cfg.MaxLifetimeMinutes) * time.Minute
		}
		c.ConnectionAcquisitionTimeout = 30 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	client := &Neo4jClient{
		driver: driver,
		config: cfg,
		logger: log.WithComponent("neo4j"),
	}

	if err := client.initializeSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to initialize Neo4j schema")
	}

	log.Info().Str("uri", cfg.URI).Msg("connected to Neo4j")
	return client, nil
}

// Close closes the Neo4j driver
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Neo4jClient) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.config.Database,
	})
}

// ExecuteWrite executes a write transaction
func (c *Neo4jClient) ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	return session.ExecuteWrite(ctx, work)
}

// ExecuteRead executes a read transaction
func (c *Neo4jClient) ExecuteRead(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	return session.ExecuteRead(ctx, work)
}

var schemaStatements = []string{
	"CREATE CONSTRAINT sender_key IF NOT EXISTS FOR (s:Sender) REQUIRE s.key IS UNIQUE",
	"CREATE CONSTRAINT technique_id IF NOT EXISTS FOR (t:Technique) REQUIRE t.id IS UNIQUE",
	"CREATE CONSTRAINT decoy_slug IF NOT EXISTS FOR (d:Decoy) REQUIRE d.slug IS UNIQUE",
	"CREATE INDEX sender_name IF NOT EXISTS FOR (s:Sender) ON (s.name)",
	"CREATE INDEX sender_risk IF NOT EXISTS FOR (s:Sender) ON (s.max_risk_score)",
}

func (c *Neo4jClient) initializeSchema(ctx context.Context) error {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			c.logger.Warn().Err(err).Str("statement", stmt).Msg("failed to create schema element")
		}
	}
	c.logger.Debug().Msg("Neo4j schema initialized")
	return nil
}

// Health checks Neo4j connectivity
func (c *Neo4jClient) Health(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Stats counts nodes by label and all relationships.
func (c *Neo4jClient) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	for _, label := range []string{"Sender", "Technique", "Decoy"} {
		result, err := session.Run(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", label), nil)
		if err != nil {
			return nil, fmt.Errorf("count %s nodes: %w", label, err)
		}
		if result.Next(ctx) {
			if n, ok := result.Record().Get("count"); ok {
				if v, ok := n.(int64); ok {
					stats[label] = v
				}
			}
		}
	}

	result, err := session.Run(ctx, "MATCH ()-[r]->() RETURN count(r) AS count", nil)
	if err == nil && result.Next(ctx) {
		if n, ok := result.Record().Get("count"); ok {
			if v, ok := n.(int64); ok {
				stats["relationships"] = v
			}
		}
	}
	return stats, nil
}
