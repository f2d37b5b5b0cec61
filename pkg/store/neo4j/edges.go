package neo4j

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphmesh/graphmesh/pkg/common"
	"github.com/graphmesh/graphmesh/pkg/store"
)

// normalizedEdgeID derives the deterministic edge id from the
// lexicographically ordered endpoints, the relationship label and the index.
// The returned reversed flag records whether the authored direction runs
// from the larger to the smaller endpoint.
func normalizedEdgeID(source, target, relationship, index string) (id string, reversed bool) {
	a, b := source, target
	if a > b {
		a, b = b, a
		reversed = true
	}
	sum := sha256.Sum256([]byte(a + "|" + b + "|" + relationship + "|" + index))
	return hex.EncodeToString(sum[:]), reversed
}

// AddEdge persists an edge. The stored relationship always runs from the
// lexicographically smaller endpoint; the reversed flag reconstructs the
// authored direction on read. If the pair is already connected, the
// relationship labels are semantically merged instead of creating a second
// edge.
func (s *GraphDBStore) AddEdge(ctx context.Context, edge common.Edge) error {
	if edge.Source == edge.Target {
		return fmt.Errorf("%w: edge %s is a self-loop", store.ErrIntegrity, edge.ID)
	}

	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
				MATCH (a:Node {id: $a, graph_index: $graph_index})-[r:RELATES_TO {graph_index: $graph_index}]-(b:Node {id: $b, graph_index: $graph_index})
				RETURN r.id AS id, r.relationship AS relationship
				LIMIT 1`,
				map[string]any{
					"a":           edge.Source,
					"b":           edge.Target,
					"graph_index": edge.Index,
				})
			if err != nil {
				return nil, err
			}
			existing, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}

			if len(existing) > 0 {
				merged := common.MergeRelationshipLabels(
					recordString(existing[0], "relationship"),
					edge.Relationship,
				)
				return tx.Run(ctx, `
					MATCH (:Node {graph_index: $graph_index})-[r:RELATES_TO {id: $id}]-(:Node)
					SET r.relationship = $relationship`,
					map[string]any{
						"graph_index":  edge.Index,
						"id":           recordString(existing[0], "id"),
						"relationship": merged,
					})
			}

			id, reversed := normalizedEdgeID(edge.Source, edge.Target, edge.Relationship, edge.Index)
			low, high := edge.Source, edge.Target
			if reversed {
				low, high = high, low
			}

			createRes, err := tx.Run(ctx, `
				MATCH (a:Node {id: $low, graph_index: $graph_index}), (b:Node {id: $high, graph_index: $graph_index})
				MERGE (a)-[r:RELATES_TO {id: $id}]->(b)
				SET r.graph_index = $graph_index, r.relationship = $relationship, r.reversed = $reversed
				RETURN r.id`,
				map[string]any{
					"low":          low,
					"high":         high,
					"graph_index":  edge.Index,
					"id":           id,
					"relationship": edge.Relationship,
					"reversed":     reversed,
				})
			if err != nil {
				return nil, err
			}
			created, err := createRes.Collect(ctx)
			if err != nil {
				return nil, err
			}
			if len(created) == 0 {
				return nil, fmt.Errorf("%w: edge %s references a missing endpoint", store.ErrIntegrity, edge.ID)
			}
			return nil, nil
		})
		if err != nil {
			return fmt.Errorf("failed to insert edge: %w", err)
		}
		return nil
	})
}

// UpdateEdgeRelationship replaces the relationship label of an edge.
func (s *GraphDBStore) UpdateEdgeRelationship(ctx context.Context, index, id, relationship string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, `
				MATCH (:Node)-[r:RELATES_TO {id: $id, graph_index: $graph_index}]-(:Node)
				SET r.relationship = $relationship`,
				map[string]any{
					"id":           id,
					"graph_index":  index,
					"relationship": relationship,
				})
		})
		if err != nil {
			return fmt.Errorf("failed to update edge relationship: %w", err)
		}
		return nil
	})
}

// DeleteEdge removes an edge by id.
func (s *GraphDBStore) DeleteEdge(ctx context.Context, index, id string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, `
				MATCH (:Node)-[r:RELATES_TO {id: $id, graph_index: $graph_index}]-(:Node)
				DELETE r`,
				map[string]any{"id": id, "graph_index": index})
		})
		if err != nil {
			return fmt.Errorf("failed to delete edge: %w", err)
		}
		return nil
	})
}

// GetEdgesByIndex returns every edge of the index with the authored
// direction reconstructed from the reversed flag.
func (s *GraphDBStore) GetEdgesByIndex(ctx context.Context, index string) ([]common.Edge, error) {
	return s.queryEdges(ctx, `
		MATCH (a:Node)-[r:RELATES_TO {graph_index: $graph_index}]->(b:Node)
		RETURN r.id AS id, r.graph_index AS graph_index, a.id AS source, b.id AS target, r.relationship AS relationship, r.reversed AS reversed
		ORDER BY r.id`,
		map[string]any{"graph_index": index})
}

// GetEdgesByNodeIDs returns edges incident to any of ids. Subgraph expansion
// relies on edges reaching outside the set to discover new endpoints.
func (s *GraphDBStore) GetEdgesByNodeIDs(ctx context.Context, index string, ids []string) ([]common.Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryEdges(ctx, `
		MATCH (a:Node)-[r:RELATES_TO {graph_index: $graph_index}]->(b:Node)
		WHERE a.id IN $ids OR b.id IN $ids
		RETURN r.id AS id, r.graph_index AS graph_index, a.id AS source, b.id AS target, r.relationship AS relationship, r.reversed AS reversed
		ORDER BY r.id`,
		map[string]any{"graph_index": index, "ids": ids})
}

// EdgeBetween returns the edge connecting a and b in either direction, or nil.
func (s *GraphDBStore) EdgeBetween(ctx context.Context, index, a, b string) (*common.Edge, error) {
	edges, err := s.queryEdges(ctx, `
		MATCH (a:Node {id: $a})-[r:RELATES_TO {graph_index: $graph_index}]-(b:Node {id: $b})
		WITH startNode(r) AS s, endNode(r) AS e, r
		RETURN r.id AS id, r.graph_index AS graph_index, s.id AS source, e.id AS target, r.relationship AS relationship, r.reversed AS reversed
		LIMIT 1`,
		map[string]any{"graph_index": index, "a": a, "b": b})
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}
	return &edges[0], nil
}

func (s *GraphDBStore) queryEdges(ctx context.Context, cypher string, params map[string]any) ([]common.Edge, error) {
	var edges []common.Edge
	err := s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx)
		defer session.Close(ctx)

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}

			collected := make([]common.Edge, 0, len(records))
			for _, record := range records {
				edge := common.Edge{
					ID:           recordString(record, "id"),
					Index:        recordString(record, "graph_index"),
					Source:       recordString(record, "source"),
					Target:       recordString(record, "target"),
					Relationship: recordString(record, "relationship"),
				}
				if recordBool(record, "reversed") {
					edge.Source, edge.Target = edge.Target, edge.Source
				}
				collected = append(collected, edge)
			}
			return collected, nil
		})
		if err != nil {
			return fmt.Errorf("failed to query edges: %w", err)
		}
		edges = result.([]common.Edge)
		return nil
	})
	return edges, err
}
