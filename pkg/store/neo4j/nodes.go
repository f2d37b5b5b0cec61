package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphmesh/graphmesh/pkg/common"
)

// AddNode persists a new node.
func (s *GraphDBStore) AddNode(ctx context.Context, node common.Node) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, `
				MERGE (n:Node {id: $id})
				SET n.graph_index = $graph_index, n.name = $name, n.type = $type, n.description = $description`,
				map[string]any{
					"id":          node.ID,
					"graph_index": node.Index,
					"name":        node.Name,
					"type":        node.Type,
					"description": node.Desc,
				})
		})
		if err != nil {
			return fmt.Errorf("failed to insert node: %w", err)
		}
		return nil
	})
}

// UpdateNodeDescription replaces the description of an existing node.
func (s *GraphDBStore) UpdateNodeDescription(ctx context.Context, index, id, desc string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (n:Node {id: $id, graph_index: $graph_index})
				SET n.description = $description
				RETURN n.id`,
				map[string]any{
					"id":          id,
					"graph_index": index,
					"description": desc,
				})
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			return len(records), nil
		})
		if err != nil {
			return fmt.Errorf("failed to update node description: %w", err)
		}
		if result.(int) == 0 {
			return fmt.Errorf("node %s not found in index %s", id, index)
		}
		return nil
	})
}

// GetNodesByIndex returns every node of the index ordered by id.
func (s *GraphDBStore) GetNodesByIndex(ctx context.Context, index string) ([]common.Node, error) {
	var nodes []common.Node
	err := s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (n:Node {graph_index: $graph_index})
				RETURN n.id AS id, n.graph_index AS graph_index, n.name AS name, n.type AS type, n.description AS description
				ORDER BY n.id`,
				map[string]any{"graph_index": index})
			if err != nil {
				return nil, err
			}
			return collectNodes(ctx, res)
		})
		if err != nil {
			return fmt.Errorf("failed to query nodes: %w", err)
		}
		nodes = result.([]common.Node)
		return nil
	})
	return nodes, err
}

// GetNodesByIDs resolves nodes by id across indices.
func (s *GraphDBStore) GetNodesByIDs(ctx context.Context, ids []string) ([]common.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var nodes []common.Node
	err := s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (n:Node)
				WHERE n.id IN $ids
				RETURN n.id AS id, n.graph_index AS graph_index, n.name AS name, n.type AS type, n.description AS description
				ORDER BY n.id`,
				map[string]any{"ids": ids})
			if err != nil {
				return nil, err
			}
			return collectNodes(ctx, res)
		})
		if err != nil {
			return fmt.Errorf("failed to query nodes by ids: %w", err)
		}
		nodes = result.([]common.Node)
		return nil
	})
	return nodes, err
}

func collectNodes(ctx context.Context, res neo4j.ResultWithContext) ([]common.Node, error) {
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]common.Node, 0, len(records))
	for _, record := range records {
		nodes = append(nodes, common.Node{
			ID:    recordString(record, "id"),
			Index: recordString(record, "graph_index"),
			Name:  recordString(record, "name"),
			Type:  recordString(record, "type"),
			Desc:  recordString(record, "description"),
		})
	}
	return nodes, nil
}
