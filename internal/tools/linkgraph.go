package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/state"
)

// LinkGraphTool queries the entity link graph in Neo4j for connections
// to previously flagged entities. Shared devices, cards and addresses
// within two hops count as links.
type LinkGraphTool struct {
	driver neo4j.DriverWithContext
}

// NewLinkGraphTool connects to Neo4j and verifies connectivity before
// returning
func NewLinkGraphTool(ctx context.Context, cfg config.GraphConfig) (*LinkGraphTool, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 25
			config.MaxConnectionLifetime = 30 * time.Minute
			config.ConnectionAcquisitionTimeout = 30 * time.Second
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	logging.Info("link graph tool connected", "uri", cfg.Neo4jURI)
	return &LinkGraphTool{driver: driver}, nil
}

func (t *LinkGraphTool) Name() string { return "link_graph" }

// Run counts flagged entities reachable within two hops of the entity
// under investigation and lists the shared artifacts
func (t *LinkGraphTool) Run(ctx context.Context, snapshot *state.InvestigationState) (any, error) {
	query := `
		MATCH (e:Entity {entity_id: $entity_id})-[r:SHARES_DEVICE|SHARES_CARD|SHARES_ADDRESS*1..2]-(linked:Entity)
		WHERE linked.flagged = true
		RETURN count(DISTINCT linked) AS linked_flagged,
		       collect(DISTINCT linked.entity_id)[..10] AS linked_ids
	`

	result, err := neo4j.ExecuteQuery(ctx, t.driver, query,
		map[string]any{"entity_id": snapshot.EntityID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("link graph query failed: %w", err)
	}

	out := map[string]any{
		"linked_flagged_entities": int64(0),
		"linked_ids":              []any{},
		"depth":                   2,
	}
	if len(result.Records) > 0 {
		rec := result.Records[0]
		if v, ok := rec.Get("linked_flagged"); ok {
			out["linked_flagged_entities"] = v
		}
		if v, ok := rec.Get("linked_ids"); ok {
			out["linked_ids"] = v
		}
	}
	return out, nil
}

// Close releases the driver
func (t *LinkGraphTool) Close(ctx context.Context) error {
	return t.driver.Close(ctx)
}
