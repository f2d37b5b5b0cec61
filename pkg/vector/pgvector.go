package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/graphmesh/graphmesh/pkg/logger"
)

// Embedder turns text into an embedding vector. Satisfied by ai.GraphAIClient.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
}

// PgMemory implements Memory on PostgreSQL with pgvector. Entries live in a
// single vector_entries table keyed by (graph_index, entry_id); relevance is
// derived from cosine distance.
type PgMemory struct {
	conn     *pgxpool.Pool
	embedder Embedder
}

func NewPgMemory(conn *pgxpool.Pool, embedder Embedder) *PgMemory {
	return &PgMemory{
		conn:     conn,
		embedder: embedder,
	}
}

// Save upserts the embedding for id in index.
func (m *PgMemory) Save(ctx context.Context, index, id, text string) error {
	embedding, err := m.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	_, err = m.conn.Exec(ctx, `
		INSERT INTO vector_entries (graph_index, entry_id, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (graph_index, entry_id)
		DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
		index, id, text, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vector entry: %w", err)
	}
	return nil
}

// Search returns up to limit entries of index with relevance >= minRelevance,
// ordered by descending relevance.
func (m *PgMemory) Search(ctx context.Context, index, query string, limit int, minRelevance float64) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	embedding, err := m.embedder.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	rows, err := m.conn.Query(ctx, `
		SELECT entry_id, content, embedding <=> $2 AS distance
		FROM vector_entries
		WHERE graph_index = $1 AND 1 - (embedding <=> $2) >= $3
		ORDER BY distance ASC
		LIMIT $4`,
		index, pgvector.NewVector(embedding), minRelevance, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector entries: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			match    Match
			distance float64
		)
		if err := rows.Scan(&match.ID, &match.Text, &distance); err != nil {
			return nil, err
		}
		match.Relevance = relevanceFromDistance(distance)
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.Debug("[Vector] Search", "index", index, "hits", len(matches), "min_relevance", minRelevance)
	return matches, nil
}

// Remove deletes the entry for id in index. Removing a missing entry is not
// an error.
func (m *PgMemory) Remove(ctx context.Context, index, id string) error {
	_, err := m.conn.Exec(ctx, `
		DELETE FROM vector_entries WHERE graph_index = $1 AND entry_id = $2`,
		index, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete vector entry: %w", err)
	}
	return nil
}

// identityEpsilon absorbs float noise on cosine distance so an entry whose
// embedding matches the query exactly reports relevance 1.0.
const identityEpsilon = 1e-6

func relevanceFromDistance(distance float64) float64 {
	relevance := 1 - distance
	if relevance > 1-identityEpsilon {
		return 1
	}
	if relevance < 0 {
		return 0
	}
	return relevance
}
