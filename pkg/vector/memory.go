package vector

import "context"

// Match is a single nearest-neighbour result. Relevance is in [0,1] with 1.0
// reserved for exact semantic identity.
type Match struct {
	ID        string
	Text      string
	Relevance float64
}

// Memory is an embedding-backed nearest-neighbour index over node
// description strings, scoped by index. Search returns matches ordered by
// descending relevance; calling it again restarts the sequence.
type Memory interface {
	Save(ctx context.Context, index, id, text string) error
	Search(ctx context.Context, index, query string, limit int, minRelevance float64) ([]Match, error)
	Remove(ctx context.Context, index, id string) error
}
