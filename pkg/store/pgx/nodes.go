package pgx

import (
	"context"
	"fmt"

	"github.com/graphmesh/graphmesh/pkg/common"
)

// AddNode persists a new node.
func (s *GraphDBStore) AddNode(ctx context.Context, node common.Node) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO nodes (id, graph_index, name, type, description)
		VALUES ($1, $2, $3, $4, $5)`,
		node.ID, node.Index, node.Name, node.Type, node.Desc,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

// UpdateNodeDescription replaces the description of an existing node.
func (s *GraphDBStore) UpdateNodeDescription(ctx context.Context, index, id, desc string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE nodes SET description = $3
		WHERE graph_index = $1 AND id = $2`,
		index, id, desc,
	)
	if err != nil {
		return fmt.Errorf("failed to update node description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("node %s not found in index %s", id, index)
	}
	return nil
}

// GetNodesByIndex returns every node of the index ordered by id for
// deterministic iteration.
func (s *GraphDBStore) GetNodesByIndex(ctx context.Context, index string) ([]common.Node, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, graph_index, name, type, description
		FROM nodes WHERE graph_index = $1
		ORDER BY id`,
		index,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// GetNodesByIDs resolves nodes by id across indices.
func (s *GraphDBStore) GetNodesByIDs(ctx context.Context, ids []string) ([]common.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, graph_index, name, type, description
		FROM nodes WHERE id = ANY($1)
		ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes by ids: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanNodes(rows rowScanner) ([]common.Node, error) {
	var nodes []common.Node
	for rows.Next() {
		var n common.Node
		if err := rows.Scan(&n.ID, &n.Index, &n.Name, &n.Type, &n.Desc); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
