package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/graphmesh/graphmesh/pkg/ai"
	"github.com/graphmesh/graphmesh/pkg/common"
	"github.com/graphmesh/graphmesh/pkg/store"
	"github.com/graphmesh/graphmesh/pkg/vector"
)

// fakeStore is an in-memory GraphStore used by the engine tests.
type fakeStore struct {
	mu    sync.Mutex
	nodes map[string]common.Node
	edges map[string]common.Edge

	communities map[string]common.Community
	memberships []common.CommunityNode
	globals     map[string]common.Global
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:       map[string]common.Node{},
		edges:       map[string]common.Edge{},
		communities: map[string]common.Community{},
		globals:     map[string]common.Global{},
	}
}

func (s *fakeStore) AddNode(ctx context.Context, node common.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = node
	return nil
}

func (s *fakeStore) UpdateNodeDescription(ctx context.Context, index, id, desc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok || node.Index != index {
		return fmt.Errorf("node %s not found in index %s", id, index)
	}
	node.Desc = desc
	s.nodes[id] = node
	return nil
}

func (s *fakeStore) GetNodesByIndex(ctx context.Context, index string) ([]common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var nodes []common.Node
	for _, n := range s.nodes {
		if n.Index == index {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func (s *fakeStore) GetNodesByIDs(ctx context.Context, ids []string) ([]common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var nodes []common.Node
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func (s *fakeStore) AddEdge(ctx context.Context, edge common.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if edge.Source == edge.Target {
		return fmt.Errorf("%w: self-loop", store.ErrIntegrity)
	}
	source, sourceOK := s.nodes[edge.Source]
	target, targetOK := s.nodes[edge.Target]
	if !sourceOK || !targetOK || source.Index != edge.Index || target.Index != edge.Index {
		return fmt.Errorf("%w: missing endpoint", store.ErrIntegrity)
	}
	s.edges[edge.ID] = edge
	return nil
}

func (s *fakeStore) UpdateEdgeRelationship(ctx context.Context, index, id, relationship string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	edge, ok := s.edges[id]
	if !ok || edge.Index != index {
		return fmt.Errorf("edge %s not found in index %s", id, index)
	}
	edge.Relationship = relationship
	s.edges[id] = edge
	return nil
}

func (s *fakeStore) DeleteEdge(ctx context.Context, index, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges, id)
	return nil
}

func (s *fakeStore) GetEdgesByIndex(ctx context.Context, index string) ([]common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var edges []common.Edge
	for _, e := range s.edges {
		if e.Index == index {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

func (s *fakeStore) GetEdgesByNodeIDs(ctx context.Context, index string, ids []string) ([]common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inSet := map[string]bool{}
	for _, id := range ids {
		inSet[id] = true
	}
	var edges []common.Edge
	for _, e := range s.edges {
		if e.Index == index && (inSet[e.Source] || inSet[e.Target]) {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

func (s *fakeStore) EdgeBetween(ctx context.Context, index, a, b string) (*common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.edges {
		if e.Index != index {
			continue
		}
		if (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a) {
			edge := e
			return &edge, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) DeleteCommunityData(ctx context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.communities {
		if c.Index == index {
			delete(s.communities, id)
		}
	}
	var kept []common.CommunityNode
	for _, m := range s.memberships {
		if m.Index != index {
			kept = append(kept, m)
		}
	}
	s.memberships = kept
	return nil
}

func (s *fakeStore) AddMemberships(ctx context.Context, memberships []common.CommunityNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = append(s.memberships, memberships...)
	return nil
}

func (s *fakeStore) AddCommunity(ctx context.Context, community common.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communities[community.Index+"/"+community.CommunityID] = community
	return nil
}

func (s *fakeStore) GetCommunities(ctx context.Context, index string) ([]common.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var communities []common.Community
	for _, c := range s.communities {
		if c.Index == index {
			communities = append(communities, c)
		}
	}
	sort.Slice(communities, func(i, j int) bool { return communities[i].CommunityID < communities[j].CommunityID })
	return communities, nil
}

func (s *fakeStore) GetMemberships(ctx context.Context, index string) ([]common.CommunityNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var memberships []common.CommunityNode
	for _, m := range s.memberships {
		if m.Index == index {
			memberships = append(memberships, m)
		}
	}
	return memberships, nil
}

func (s *fakeStore) UpsertGlobal(ctx context.Context, global common.Global) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[global.Index] = global
	return nil
}

func (s *fakeStore) GetGlobal(ctx context.Context, index string) (*common.Global, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.globals[index]; ok {
		return &g, nil
	}
	return nil, nil
}

func (s *fakeStore) ListIndices(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var indices []string
	for _, n := range s.nodes {
		if !seen[n.Index] {
			seen[n.Index] = true
			indices = append(indices, n.Index)
		}
	}
	sort.Strings(indices)
	return indices, nil
}

func (s *fakeStore) DeleteIndex(ctx context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.nodes {
		if n.Index == index {
			delete(s.nodes, id)
		}
	}
	for id, e := range s.edges {
		if e.Index == index {
			delete(s.edges, id)
		}
	}
	for id, c := range s.communities {
		if c.Index == index {
			delete(s.communities, id)
		}
	}
	var kept []common.CommunityNode
	for _, m := range s.memberships {
		if m.Index != index {
			kept = append(kept, m)
		}
	}
	s.memberships = kept
	delete(s.globals, index)
	return nil
}

// fakeMemory is an in-memory vector.Memory with scripted search results.
// Relevance is simulated by shared-word overlap unless a scripted result
// matches the query.
type fakeMemory struct {
	mu      sync.Mutex
	entries map[string]map[string]string // index -> id -> text

	// scripted maps a query substring to fixed results, checked first.
	scripted map[string][]vector.Match
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		entries:  map[string]map[string]string{},
		scripted: map[string][]vector.Match{},
	}
}

func (m *fakeMemory) Save(ctx context.Context, index, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[index] == nil {
		m.entries[index] = map[string]string{}
	}
	m.entries[index][id] = text
	return nil
}

func (m *fakeMemory) Remove(ctx context.Context, index, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[index], id)
	return nil
}

func (m *fakeMemory) Search(ctx context.Context, index, query string, limit int, minRelevance float64) ([]vector.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for needle, results := range m.scripted {
		if strings.Contains(query, needle) {
			var hits []vector.Match
			for _, r := range results {
				if r.Relevance >= minRelevance && len(hits) < limit {
					hits = append(hits, r)
				}
			}
			return hits, nil
		}
	}

	var hits []vector.Match
	for id, text := range m.entries[index] {
		rel := wordOverlap(query, text)
		if text == query {
			rel = 1.0
		}
		if rel >= minRelevance {
			hits = append(hits, vector.Match{ID: id, Text: text, Relevance: rel})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *fakeMemory) count(index string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[index])
}

func wordOverlap(a, b string) float64 {
	wordsA := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(a)) {
		wordsA[w] = true
	}
	wordsB := strings.Fields(strings.ToLower(b))
	if len(wordsB) == 0 {
		return 0
	}
	shared := 0
	for _, w := range wordsB {
		if wordsA[w] {
			shared++
		}
	}
	overlap := float64(shared) / float64(len(wordsB))
	if overlap > 0.99 {
		overlap = 0.99
	}
	return overlap
}

// fakeSemantic returns scripted extractions and deterministic merges.
type fakeSemantic struct {
	mu sync.Mutex

	extractions map[string]*Extraction // keyed by text
	related     bool
	sourceLabel string

	answerCalls    int
	inferCalls     int
	lastSubgraph   string
	communityCalls []string
}

func newFakeSemantic() *fakeSemantic {
	return &fakeSemantic{
		extractions: map[string]*Extraction{},
		sourceLabel: "node1",
	}
}

func (f *fakeSemantic) ExtractGraph(ctx context.Context, text string) (*Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if extraction, ok := f.extractions[text]; ok {
		return extraction, nil
	}
	return &Extraction{}, nil
}

func (f *fakeSemantic) MergeDescriptions(ctx context.Context, a, b string) (string, error) {
	return a + " | " + b, nil
}

func (f *fakeSemantic) InferRelation(ctx context.Context, descA, descB string) (*RelationInference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inferCalls++
	if !f.related {
		return &RelationInference{Related: false}, nil
	}
	return &RelationInference{
		Related:      true,
		SourceLabel:  f.sourceLabel,
		Relationship: "relates to",
	}, nil
}

func (f *fakeSemantic) SummarizeCommunity(ctx context.Context, members string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.communityCalls = append(f.communityCalls, members)
	return "community summary", nil
}

func (f *fakeSemantic) SummarizeGlobal(ctx context.Context, summaries string) (string, error) {
	return "global summary of: " + summaries, nil
}

func (f *fakeSemantic) Answer(ctx context.Context, subgraphJSON, question string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answerCalls++
	f.lastSubgraph = subgraphJSON
	return "answer", nil
}

func (f *fakeSemantic) AnswerStream(ctx context.Context, subgraphJSON, question string) (<-chan ai.StreamEvent, error) {
	f.mu.Lock()
	f.answerCalls++
	f.lastSubgraph = subgraphJSON
	f.mu.Unlock()

	out := make(chan ai.StreamEvent, 2)
	out <- ai.StreamEvent{Type: "content", Content: "answer"}
	close(out)
	return out, nil
}
