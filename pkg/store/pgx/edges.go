package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/graphmesh/graphmesh/pkg/common"
	"github.com/graphmesh/graphmesh/pkg/store"
)

// AddEdge persists a new edge. Edges referencing missing endpoints or
// connecting a node to itself are rejected with ErrIntegrity.
func (s *GraphDBStore) AddEdge(ctx context.Context, edge common.Edge) error {
	if edge.Source == edge.Target {
		return fmt.Errorf("%w: edge %s is a self-loop", store.ErrIntegrity, edge.ID)
	}

	var endpoints int
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM nodes
		WHERE graph_index = $1 AND id = ANY($2)`,
		edge.Index, []string{edge.Source, edge.Target},
	).Scan(&endpoints)
	if err != nil {
		return fmt.Errorf("failed to check edge endpoints: %w", err)
	}
	if endpoints != 2 {
		return fmt.Errorf("%w: edge %s references a missing endpoint", store.ErrIntegrity, edge.ID)
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO edges (id, graph_index, source_id, target_id, relationship)
		VALUES ($1, $2, $3, $4, $5)`,
		edge.ID, edge.Index, edge.Source, edge.Target, edge.Relationship,
	)
	if err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

// UpdateEdgeRelationship replaces the relationship label of an edge.
func (s *GraphDBStore) UpdateEdgeRelationship(ctx context.Context, index, id, relationship string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE edges SET relationship = $3
		WHERE graph_index = $1 AND id = $2`,
		index, id, relationship,
	)
	if err != nil {
		return fmt.Errorf("failed to update edge relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("edge %s not found in index %s", id, index)
	}
	return nil
}

// DeleteEdge removes an edge by id.
func (s *GraphDBStore) DeleteEdge(ctx context.Context, index, id string) error {
	_, err := s.conn.Exec(ctx, `
		DELETE FROM edges WHERE graph_index = $1 AND id = $2`,
		index, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	return nil
}

// GetEdgesByIndex returns every edge of the index ordered by id.
func (s *GraphDBStore) GetEdgesByIndex(ctx context.Context, index string) ([]common.Edge, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, graph_index, source_id, target_id, relationship
		FROM edges WHERE graph_index = $1
		ORDER BY id`,
		index,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// GetEdgesByNodeIDs returns edges incident to any of ids. Subgraph expansion
// relies on edges reaching outside the set to discover new endpoints.
func (s *GraphDBStore) GetEdgesByNodeIDs(ctx context.Context, index string, ids []string) ([]common.Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, graph_index, source_id, target_id, relationship
		FROM edges
		WHERE graph_index = $1 AND (source_id = ANY($2) OR target_id = ANY($2))
		ORDER BY id`,
		index, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges by node ids: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// EdgeBetween returns the edge connecting a and b in either direction, or nil.
func (s *GraphDBStore) EdgeBetween(ctx context.Context, index, a, b string) (*common.Edge, error) {
	var e common.Edge
	err := s.conn.QueryRow(ctx, `
		SELECT id, graph_index, source_id, target_id, relationship
		FROM edges
		WHERE graph_index = $1
		  AND ((source_id = $2 AND target_id = $3) OR (source_id = $3 AND target_id = $2))
		LIMIT 1`,
		index, a, b,
	).Scan(&e.ID, &e.Index, &e.Source, &e.Target, &e.Relationship)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query edge between nodes: %w", err)
	}
	return &e, nil
}

func scanEdges(rows rowScanner) ([]common.Edge, error) {
	var edges []common.Edge
	for rows.Next() {
		var e common.Edge
		if err := rows.Scan(&e.ID, &e.Index, &e.Source, &e.Target, &e.Relationship); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
