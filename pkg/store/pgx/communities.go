package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/graphmesh/graphmesh/pkg/common"
)

// DeleteCommunityData wipes communities and memberships of the index. Called
// at the start of every community rebuild; community ids are not stable
// across runs.
func (s *GraphDBStore) DeleteCommunityData(ctx context.Context, index string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM community_nodes WHERE graph_index = $1`, index); err != nil {
		return fmt.Errorf("failed to delete community memberships: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM communities WHERE graph_index = $1`, index); err != nil {
		return fmt.Errorf("failed to delete communities: %w", err)
	}

	return tx.Commit(ctx)
}

// AddMemberships persists a batch of community memberships.
func (s *GraphDBStore) AddMemberships(ctx context.Context, memberships []common.CommunityNode) error {
	if len(memberships) == 0 {
		return nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, m := range memberships {
		if _, err := tx.Exec(ctx, `
			INSERT INTO community_nodes (graph_index, community_id, node_id)
			VALUES ($1, $2, $3)`,
			m.Index, m.CommunityID, m.NodeID,
		); err != nil {
			return fmt.Errorf("failed to insert community membership: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// AddCommunity persists a community with its summary.
func (s *GraphDBStore) AddCommunity(ctx context.Context, community common.Community) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO communities (community_id, graph_index, summaries)
		VALUES ($1, $2, $3)
		ON CONFLICT (graph_index, community_id)
		DO UPDATE SET summaries = EXCLUDED.summaries`,
		community.CommunityID, community.Index, community.Summaries,
	)
	if err != nil {
		return fmt.Errorf("failed to insert community: %w", err)
	}
	return nil
}

// GetCommunities returns all communities of the index ordered by id.
func (s *GraphDBStore) GetCommunities(ctx context.Context, index string) ([]common.Community, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT community_id, graph_index, summaries
		FROM communities WHERE graph_index = $1
		ORDER BY community_id`,
		index,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query communities: %w", err)
	}
	defer rows.Close()

	var communities []common.Community
	for rows.Next() {
		var c common.Community
		if err := rows.Scan(&c.CommunityID, &c.Index, &c.Summaries); err != nil {
			return nil, err
		}
		communities = append(communities, c)
	}
	return communities, rows.Err()
}

// GetMemberships returns all community memberships of the index.
func (s *GraphDBStore) GetMemberships(ctx context.Context, index string) ([]common.CommunityNode, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT graph_index, community_id, node_id
		FROM community_nodes WHERE graph_index = $1
		ORDER BY community_id, node_id`,
		index,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query community memberships: %w", err)
	}
	defer rows.Close()

	var memberships []common.CommunityNode
	for rows.Next() {
		var m common.CommunityNode
		if err := rows.Scan(&m.Index, &m.CommunityID, &m.NodeID); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// UpsertGlobal writes the single per-index global summary.
func (s *GraphDBStore) UpsertGlobal(ctx context.Context, global common.Global) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO globals (graph_index, summaries)
		VALUES ($1, $2)
		ON CONFLICT (graph_index)
		DO UPDATE SET summaries = EXCLUDED.summaries`,
		global.Index, global.Summaries,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert global summary: %w", err)
	}
	return nil
}

// GetGlobal returns the global summary of the index, or nil if none exists.
func (s *GraphDBStore) GetGlobal(ctx context.Context, index string) (*common.Global, error) {
	var g common.Global
	err := s.conn.QueryRow(ctx, `
		SELECT graph_index, summaries FROM globals WHERE graph_index = $1`,
		index,
	).Scan(&g.Index, &g.Summaries)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query global summary: %w", err)
	}
	return &g, nil
}

// ListIndices returns the distinct indices that currently hold nodes.
func (s *GraphDBStore) ListIndices(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT graph_index FROM nodes ORDER BY graph_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	defer rows.Close()

	var indices []string
	for rows.Next() {
		var index string
		if err := rows.Scan(&index); err != nil {
			return nil, err
		}
		indices = append(indices, index)
	}
	return indices, rows.Err()
}

// DeleteIndex removes every row of the index in an order that preserves
// referential integrity: globals, communities, memberships, edges, nodes.
func (s *GraphDBStore) DeleteIndex(ctx context.Context, index string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`DELETE FROM globals WHERE graph_index = $1`,
		`DELETE FROM communities WHERE graph_index = $1`,
		`DELETE FROM community_nodes WHERE graph_index = $1`,
		`DELETE FROM edges WHERE graph_index = $1`,
		`DELETE FROM nodes WHERE graph_index = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, index); err != nil {
			return fmt.Errorf("failed to delete index data: %w", err)
		}
	}

	return tx.Commit(ctx)
}
