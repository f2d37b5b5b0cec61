package store

import (
	"context"
	"errors"

	"github.com/graphmesh/graphmesh/pkg/common"
)

// ErrIntegrity is returned when a write would violate graph integrity, e.g.
// an edge referencing a missing endpoint or a self-loop.
var ErrIntegrity = errors.New("graph integrity violation")

// GraphStore is the persistence contract for the knowledge graph. All reads
// and writes are scoped by index. Two adapters implement it: a relational
// one on PostgreSQL and a property-graph one on Neo4j.
type GraphStore interface {
	AddNode(ctx context.Context, node common.Node) error
	UpdateNodeDescription(ctx context.Context, index, id, desc string) error
	GetNodesByIndex(ctx context.Context, index string) ([]common.Node, error)
	GetNodesByIDs(ctx context.Context, ids []string) ([]common.Node, error)

	AddEdge(ctx context.Context, edge common.Edge) error
	UpdateEdgeRelationship(ctx context.Context, index, id, relationship string) error
	DeleteEdge(ctx context.Context, index, id string) error
	GetEdgesByIndex(ctx context.Context, index string) ([]common.Edge, error)
	// GetEdgesByNodeIDs returns edges incident to any node in ids. Callers
	// that need both endpoints inside a set filter the result themselves.
	GetEdgesByNodeIDs(ctx context.Context, index string, ids []string) ([]common.Edge, error)
	// EdgeBetween returns the edge connecting a and b in either direction, or
	// nil if the pair is not connected.
	EdgeBetween(ctx context.Context, index, a, b string) (*common.Edge, error)

	DeleteCommunityData(ctx context.Context, index string) error
	AddMemberships(ctx context.Context, memberships []common.CommunityNode) error
	AddCommunity(ctx context.Context, community common.Community) error
	GetCommunities(ctx context.Context, index string) ([]common.Community, error)
	GetMemberships(ctx context.Context, index string) ([]common.CommunityNode, error)

	UpsertGlobal(ctx context.Context, global common.Global) error
	GetGlobal(ctx context.Context, index string) (*common.Global, error)

	ListIndices(ctx context.Context) ([]string, error)
	// DeleteIndex removes every row of the index: globals, communities,
	// memberships, edges, nodes, in that order.
	DeleteIndex(ctx context.Context, index string) error
}
