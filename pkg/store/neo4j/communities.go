package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphmesh/graphmesh/pkg/common"
)

// DeleteCommunityData wipes communities and memberships of the index.
func (s *GraphDBStore) DeleteCommunityData(ctx context.Context, index string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, `
				MATCH (c:Community {graph_index: $graph_index})
				DETACH DELETE c`,
				map[string]any{"graph_index": index})
		})
		if err != nil {
			return fmt.Errorf("failed to delete community data: %w", err)
		}
		return nil
	})
}

// AddMemberships links member nodes to their community via MEMBER_OF. The
// community node is created on first reference.
func (s *GraphDBStore) AddMemberships(ctx context.Context, memberships []common.CommunityNode) error {
	if len(memberships) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(memberships))
	for _, m := range memberships {
		rows = append(rows, map[string]any{
			"graph_index":  m.Index,
			"community_id": m.CommunityID,
			"node_id":      m.NodeID,
		})
	}

	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, `
				UNWIND $rows AS row
				MATCH (n:Node {id: row.node_id, graph_index: row.graph_index})
				MERGE (c:Community {community_id: row.community_id, graph_index: row.graph_index})
				MERGE (n)-[:MEMBER_OF]->(c)`,
				map[string]any{"rows": rows})
		})
		if err != nil {
			return fmt.Errorf("failed to insert community memberships: %w", err)
		}
		return nil
	})
}

// AddCommunity upserts the community node with its summary.
func (s *GraphDBStore) AddCommunity(ctx context.Context, community common.Community) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, `
				MERGE (c:Community {community_id: $community_id, graph_index: $graph_index})
				SET c.summaries = $summaries`,
				map[string]any{
					"community_id": community.CommunityID,
					"graph_index":  community.Index,
					"summaries":    community.Summaries,
				})
		})
		if err != nil {
			return fmt.Errorf("failed to upsert community: %w", err)
		}
		return nil
	})
}

// GetCommunities returns all communities of the index ordered by id.
func (s *GraphDBStore) GetCommunities(ctx context.Context, index string) ([]common.Community, error) {
	var communities []common.Community
	err := s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (c:Community {graph_index: $graph_index})
				RETURN c.community_id AS community_id, c.graph_index AS graph_index, c.summaries AS summaries
				ORDER BY c.community_id`,
				map[string]any{"graph_index": index})
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}

			collected := make([]common.Community, 0, len(records))
			for _, record := range records {
				collected = append(collected, common.Community{
					CommunityID: recordString(record, "community_id"),
					Index:       recordString(record, "graph_index"),
					Summaries:   recordString(record, "summaries"),
				})
			}
			return collected, nil
		})
		if err != nil {
			return fmt.Errorf("failed to query communities: %w", err)
		}
		communities = result.([]common.Community)
		return nil
	})
	return communities, err
}

// GetMemberships returns all community memberships of the index.
func (s *GraphDBStore) GetMemberships(ctx context.Context, index string) ([]common.CommunityNode, error) {
	var memberships []common.CommunityNode
	err := s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (n:Node)-[:MEMBER_OF]->(c:Community {graph_index: $graph_index})
				RETURN c.graph_index AS graph_index, c.community_id AS community_id, n.id AS node_id
				ORDER BY c.community_id, n.id`,
				map[string]any{"graph_index": index})
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}

			collected := make([]common.CommunityNode, 0, len(records))
			for _, record := range records {
				collected = append(collected, common.CommunityNode{
					Index:       recordString(record, "graph_index"),
					CommunityID: recordString(record, "community_id"),
					NodeID:      recordString(record, "node_id"),
				})
			}
			return collected, nil
		})
		if err != nil {
			return fmt.Errorf("failed to query community memberships: %w", err)
		}
		memberships = result.([]common.CommunityNode)
		return nil
	})
	return memberships, err
}

// UpsertGlobal writes the single per-index global summary.
func (s *GraphDBStore) UpsertGlobal(ctx context.Context, global common.Global) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, `
				MERGE (g:Global {graph_index: $graph_index})
				SET g.summaries = $summaries`,
				map[string]any{
					"graph_index": global.Index,
					"summaries":   global.Summaries,
				})
		})
		if err != nil {
			return fmt.Errorf("failed to upsert global summary: %w", err)
		}
		return nil
	})
}

// GetGlobal returns the global summary of the index, or nil if none exists.
func (s *GraphDBStore) GetGlobal(ctx context.Context, index string) (*common.Global, error) {
	var global *common.Global
	err := s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (g:Global {graph_index: $graph_index})
				RETURN g.graph_index AS graph_index, g.summaries AS summaries
				LIMIT 1`,
				map[string]any{"graph_index": index})
			if err != nil {
				return nil, err
			}
			return res.Collect(ctx)
		})
		if err != nil {
			return fmt.Errorf("failed to query global summary: %w", err)
		}

		records := result.([]*neo4j.Record)
		if len(records) > 0 {
			global = &common.Global{
				Index:     recordString(records[0], "graph_index"),
				Summaries: recordString(records[0], "summaries"),
			}
		}
		return nil
	})
	return global, err
}

// ListIndices returns the distinct indices that currently hold nodes.
func (s *GraphDBStore) ListIndices(ctx context.Context) ([]string, error) {
	var indices []string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (n:Node)
				RETURN DISTINCT n.graph_index AS graph_index
				ORDER BY graph_index`, nil)
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}

			collected := make([]string, 0, len(records))
			for _, record := range records {
				collected = append(collected, recordString(record, "graph_index"))
			}
			return collected, nil
		})
		if err != nil {
			return fmt.Errorf("failed to list indices: %w", err)
		}
		indices = result.([]string)
		return nil
	})
	return indices, err
}

// DeleteIndex removes every entity of the index. DETACH DELETE drops edges
// and memberships together with their endpoints.
func (s *GraphDBStore) DeleteIndex(ctx context.Context, index string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			statements := []string{
				`MATCH (g:Global {graph_index: $graph_index}) DETACH DELETE g`,
				`MATCH (c:Community {graph_index: $graph_index}) DETACH DELETE c`,
				`MATCH (n:Node {graph_index: $graph_index}) DETACH DELETE n`,
			}
			for _, stmt := range statements {
				if _, err := tx.Run(ctx, stmt, map[string]any{"graph_index": index}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete index data: %w", err)
		}
		return nil
	})
}
