package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/graphmesh/graphmesh/pkg/common"
	"github.com/graphmesh/graphmesh/pkg/vector"
)

func newTestEngine(s *fakeStore, m *fakeMemory, sem *fakeSemantic) *Engine {
	return NewEngine(s, m, sem, Options{
		SearchLimit:        5,
		SearchMinRelevance: 0.6,
		NodeDepth:          3,
		MaxNodes:           10,
		MaxTokens:          1000,
		ExtractRetries:     1,
	})
}

func seedNode(t *testing.T, s *fakeStore, m *fakeMemory, node common.Node) {
	t.Helper()
	ctx := context.Background()
	if err := s.AddNode(ctx, node); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if err := m.Save(ctx, node.Index, node.ID, node.DescText()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestInsertGraphDataValidatesInput(t *testing.T) {
	engine := newTestEngine(newFakeStore(), newFakeMemory(), newFakeSemantic())

	if err := engine.InsertGraphData(context.Background(), "", "text"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("InsertGraphData(empty index) error = %v, want ErrInvalidInput", err)
	}
	if err := engine.InsertGraphData(context.Background(), "idx", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("InsertGraphData(empty text) error = %v, want ErrInvalidInput", err)
	}
}

func TestInsertGraphDataCreatesNodesAndEdges(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	sem.extractions["alice works with bob"] = &Extraction{
		Nodes: []ExtractedNode{
			{LocalID: "n1", Name: "Alice", Type: "PERSON", Description: "A doctor."},
			{LocalID: "n2", Name: "Bob", Type: "PERSON", Description: "A nurse."},
		},
		Edges: []ExtractedEdge{
			{SourceLocalID: "n1", TargetLocalID: "n2", Relationship: "works with"},
		},
	}
	engine := newTestEngine(s, m, sem)

	if err := engine.InsertGraphData(context.Background(), "a", "alice works with bob"); err != nil {
		t.Fatalf("InsertGraphData() error = %v", err)
	}

	nodes, _ := s.GetNodesByIndex(context.Background(), "a")
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	edges, _ := s.GetEdgesByIndex(context.Background(), "a")
	if len(edges) != 1 {
		t.Fatalf("got %d edges, want 1", len(edges))
	}
	if edges[0].Relationship != "works with" {
		t.Errorf("edge relationship = %q, want %q", edges[0].Relationship, "works with")
	}
	if m.count("a") != 2 {
		t.Errorf("got %d vector entries, want 2", m.count("a"))
	}
}

func TestInsertGraphDataIsIdempotentForSameText(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	sem.extractions["alice works with bob"] = &Extraction{
		Nodes: []ExtractedNode{
			{LocalID: "n1", Name: "Alice", Type: "PERSON", Description: "A doctor."},
			{LocalID: "n2", Name: "Bob", Type: "PERSON", Description: "A nurse."},
		},
		Edges: []ExtractedEdge{
			{SourceLocalID: "n1", TargetLocalID: "n2", Relationship: "works with"},
		},
	}
	engine := newTestEngine(s, m, sem)

	for range 2 {
		if err := engine.InsertGraphData(context.Background(), "a", "alice works with bob"); err != nil {
			t.Fatalf("InsertGraphData() error = %v", err)
		}
	}

	nodes, _ := s.GetNodesByIndex(context.Background(), "a")
	if len(nodes) != 2 {
		t.Errorf("got %d nodes after double ingest, want 2", len(nodes))
	}
	edges, _ := s.GetEdgesByIndex(context.Background(), "a")
	if len(edges) != 1 {
		t.Errorf("got %d edges after double ingest, want 1", len(edges))
	}
}

func TestExactNameMergeAccumulatesDescriptions(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	sem.extractions["alice is a doctor"] = &Extraction{
		Nodes: []ExtractedNode{{LocalID: "n1", Name: "Alice", Type: "PERSON", Description: "Alice is a doctor."}},
	}
	sem.extractions["alice works in berlin"] = &Extraction{
		Nodes: []ExtractedNode{{LocalID: "n1", Name: "Alice", Type: "PERSON", Description: "Alice works in Berlin."}},
	}
	engine := newTestEngine(s, m, sem)

	ctx := context.Background()
	if err := engine.InsertGraphData(ctx, "a", "alice is a doctor"); err != nil {
		t.Fatalf("InsertGraphData() error = %v", err)
	}
	if err := engine.InsertGraphData(ctx, "a", "alice works in berlin"); err != nil {
		t.Fatalf("InsertGraphData() error = %v", err)
	}

	nodes, _ := s.GetNodesByIndex(ctx, "a")
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want exactly one Alice", len(nodes))
	}
	desc := nodes[0].Desc
	if !strings.Contains(desc, "doctor") || !strings.Contains(desc, "Berlin") {
		t.Errorf("merged description %q misses a fact", desc)
	}
	if m.count("a") != 1 {
		t.Errorf("got %d vector entries, want 1", m.count("a"))
	}
}

func TestVectorIdentityMergeReusesExistingNode(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()

	seedNode(t, s, m, common.Node{
		ID: "nyc-1", Index: "a", Name: "New York City", Type: "LOCATION", Desc: "The largest city in the USA.",
	})

	sem.extractions["nyc text"] = &Extraction{
		Nodes: []ExtractedNode{{LocalID: "n1", Name: "NYC", Type: "LOCATION", Description: "The big apple."}},
	}
	m.scripted["Name:NYC"] = []vector.Match{
		{ID: "nyc-1", Text: "New York City", Relevance: 1.0},
	}

	engine := newTestEngine(s, m, sem)
	if err := engine.InsertGraphData(context.Background(), "a", "nyc text"); err != nil {
		t.Fatalf("InsertGraphData() error = %v", err)
	}

	nodes, _ := s.GetNodesByIndex(context.Background(), "a")
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1 (identity merge must not create a node)", len(nodes))
	}
	if nodes[0].ID != "nyc-1" {
		t.Errorf("surviving node = %s, want nyc-1", nodes[0].ID)
	}
}

func TestOrphanRepairStopsAfterTwoEdges(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	sem.related = true

	ctx := context.Background()
	// Three neighbours whose stored text overlaps the orphan description at
	// exactly 0.5: meets the orphan-repair threshold, below the 0.7
	// identity-search threshold.
	for _, id := range []string{"c1", "c2", "c3"} {
		if err := s.AddNode(ctx, common.Node{ID: id, Index: "a", Name: id, Type: "CONCEPT", Desc: id}); err != nil {
			t.Fatalf("AddNode() error = %v", err)
		}
		if err := m.Save(ctx, "a", id, "energy "+id); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	sem.extractions["solar text"] = &Extraction{
		Nodes: []ExtractedNode{{LocalID: "n1", Name: "Sun", Type: "CONCEPT", Description: "panel energy"}},
	}

	engine := newTestEngine(s, m, sem)
	if err := engine.InsertGraphData(ctx, "a", "solar text"); err != nil {
		t.Fatalf("InsertGraphData() error = %v", err)
	}

	nodes, _ := s.GetNodesByIndex(ctx, "a")
	var orphanID string
	for _, n := range nodes {
		if n.Name == "Sun" {
			orphanID = n.ID
		}
	}
	if orphanID == "" {
		t.Fatalf("orphan node was not created")
	}

	incident, _ := s.GetEdgesByNodeIDs(ctx, "a", []string{orphanID})
	if len(incident) != 2 {
		t.Errorf("orphan has %d edges, want exactly 2", len(incident))
	}
}

func TestEdgeDedupMergesRelationships(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	sem.extractions["noop"] = &Extraction{}

	ctx := context.Background()
	seedNode(t, s, m, common.Node{ID: "a1", Index: "a", Name: "A", Type: "CONCEPT", Desc: "a"})
	seedNode(t, s, m, common.Node{ID: "b1", Index: "a", Name: "B", Type: "CONCEPT", Desc: "b"})
	s.edges["e1"] = common.Edge{ID: "e1", Index: "a", Source: "a1", Target: "b1", Relationship: "likes"}
	s.edges["e2"] = common.Edge{ID: "e2", Index: "a", Source: "b1", Target: "a1", Relationship: "employs"}

	engine := newTestEngine(s, m, sem)
	if err := engine.InsertGraphData(ctx, "a", "noop"); err != nil {
		t.Fatalf("InsertGraphData() error = %v", err)
	}

	edges, _ := s.GetEdgesByIndex(ctx, "a")
	if len(edges) != 1 {
		t.Fatalf("got %d edges after dedup, want 1", len(edges))
	}
	// The merged relationship must still contain the duplicate's label.
	if !strings.Contains(edges[0].Relationship, "employs") || !strings.Contains(edges[0].Relationship, "likes") {
		t.Errorf("merged relationship %q lost information", edges[0].Relationship)
	}
}

func TestEdgeDedupDeletesIdenticalDuplicates(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	sem.extractions["noop"] = &Extraction{}

	ctx := context.Background()
	seedNode(t, s, m, common.Node{ID: "a1", Index: "a", Name: "A", Type: "CONCEPT", Desc: "a"})
	seedNode(t, s, m, common.Node{ID: "b1", Index: "a", Name: "B", Type: "CONCEPT", Desc: "b"})
	s.edges["e1"] = common.Edge{ID: "e1", Index: "a", Source: "a1", Target: "b1", Relationship: "likes"}
	s.edges["e2"] = common.Edge{ID: "e2", Index: "a", Source: "b1", Target: "a1", Relationship: "likes"}

	engine := newTestEngine(s, m, sem)
	if err := engine.InsertGraphData(ctx, "a", "noop"); err != nil {
		t.Fatalf("InsertGraphData() error = %v", err)
	}

	edges, _ := s.GetEdgesByIndex(ctx, "a")
	if len(edges) != 1 {
		t.Fatalf("got %d edges after dedup, want 1", len(edges))
	}
	if edges[0].Relationship != "likes" {
		t.Errorf("relationship = %q, want unchanged %q", edges[0].Relationship, "likes")
	}
}

func TestSearchGraphEmptyIndexSkipsModel(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	engine := newTestEngine(s, m, sem)

	answer, err := engine.SearchGraph(context.Background(), "empty", "hi")
	if err != nil {
		t.Fatalf("SearchGraph() error = %v", err)
	}
	if answer != "" {
		t.Errorf("answer = %q, want empty", answer)
	}
	if sem.answerCalls != 0 {
		t.Errorf("Answer was called %d times on an empty index", sem.answerCalls)
	}
}

func TestSearchGraphAnswersFromSubgraph(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()

	ctx := context.Background()
	seedNode(t, s, m, common.Node{ID: "a1", Index: "a", Name: "Alice", Type: "PERSON", Desc: "doctor in berlin"})
	seedNode(t, s, m, common.Node{ID: "b1", Index: "a", Name: "Bob", Type: "PERSON", Desc: "nurse"})
	s.edges["e1"] = common.Edge{ID: "e1", Index: "a", Source: "a1", Target: "b1", Relationship: "works with"}

	m.scripted["who is alice"] = []vector.Match{{ID: "a1", Text: "alice", Relevance: 0.9}}

	engine := newTestEngine(s, m, sem)
	answer, err := engine.SearchGraph(ctx, "a", "who is alice")
	if err != nil {
		t.Fatalf("SearchGraph() error = %v", err)
	}
	if answer != "answer" {
		t.Errorf("answer = %q, want %q", answer, "answer")
	}

	var subgraph common.Graph
	if err := json.Unmarshal([]byte(sem.lastSubgraph), &subgraph); err != nil {
		t.Fatalf("subgraph is not valid JSON: %v", err)
	}
	if len(subgraph.Nodes) != 2 || len(subgraph.Edges) != 1 {
		t.Errorf("subgraph has %d nodes / %d edges, want 2 / 1", len(subgraph.Nodes), len(subgraph.Edges))
	}
}

func TestSearchGraphStreamEmptySubgraph(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()
	engine := newTestEngine(s, m, sem)

	stream, err := engine.SearchGraphStream(context.Background(), "empty", "hi")
	if err != nil {
		t.Fatalf("SearchGraphStream() error = %v", err)
	}

	count := 0
	for range stream {
		count++
	}
	if count != 0 {
		t.Errorf("empty-subgraph stream yielded %d events, want 0", count)
	}
	if sem.answerCalls != 0 {
		t.Errorf("AnswerStream was called on an empty subgraph")
	}
}

func TestRebuildCommunitiesAssignsSingleMembership(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()

	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3", "b1", "b2", "iso"} {
		seedNode(t, s, m, common.Node{ID: id, Index: "a", Name: id, Type: "CONCEPT", Desc: id})
	}
	s.edges["e1"] = common.Edge{ID: "e1", Index: "a", Source: "a1", Target: "a2", Relationship: "r"}
	s.edges["e2"] = common.Edge{ID: "e2", Index: "a", Source: "a2", Target: "a3", Relationship: "r"}
	s.edges["e3"] = common.Edge{ID: "e3", Index: "a", Source: "b1", Target: "b2", Relationship: "r"}

	engine := newTestEngine(s, m, sem)
	if err := engine.RebuildCommunities(ctx, "a"); err != nil {
		t.Fatalf("RebuildCommunities() error = %v", err)
	}

	memberships, _ := s.GetMemberships(ctx, "a")
	counts := map[string]int{}
	for _, membership := range memberships {
		counts[membership.NodeID]++
	}
	for _, id := range []string{"a1", "a2", "a3", "b1", "b2"} {
		if counts[id] != 1 {
			t.Errorf("node %s has %d memberships, want 1", id, counts[id])
		}
	}
	if counts["iso"] != 0 {
		t.Errorf("isolated node has %d memberships, want 0", counts["iso"])
	}

	communities, _ := s.GetCommunities(ctx, "a")
	referenced := map[string]bool{}
	for _, membership := range memberships {
		referenced[membership.CommunityID] = true
	}
	summarized := map[string]bool{}
	for _, community := range communities {
		if community.Summaries == "" {
			t.Errorf("community %s has no summary", community.CommunityID)
		}
		summarized[community.CommunityID] = true
	}
	for id := range referenced {
		if !summarized[id] {
			t.Errorf("community %s referenced by a membership has no summary row", id)
		}
	}
}

func TestRebuildCommunitiesWipesPreviousRun(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()

	ctx := context.Background()
	seedNode(t, s, m, common.Node{ID: "a1", Index: "a", Name: "a1", Type: "CONCEPT", Desc: "a1"})
	seedNode(t, s, m, common.Node{ID: "a2", Index: "a", Name: "a2", Type: "CONCEPT", Desc: "a2"})
	s.edges["e1"] = common.Edge{ID: "e1", Index: "a", Source: "a1", Target: "a2", Relationship: "r"}

	engine := newTestEngine(s, m, sem)
	for range 2 {
		if err := engine.RebuildCommunities(ctx, "a"); err != nil {
			t.Fatalf("RebuildCommunities() error = %v", err)
		}
	}

	memberships, _ := s.GetMemberships(ctx, "a")
	if len(memberships) != 2 {
		t.Errorf("got %d memberships after two rebuilds, want 2", len(memberships))
	}
}

func TestRebuildGlobalSummarizesCommunities(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()

	ctx := context.Background()
	_ = s.AddCommunity(ctx, common.Community{CommunityID: "c1", Index: "a", Summaries: "first"})
	_ = s.AddCommunity(ctx, common.Community{CommunityID: "c2", Index: "a", Summaries: "second"})

	engine := newTestEngine(s, m, sem)
	if err := engine.RebuildGlobal(ctx, "a"); err != nil {
		t.Fatalf("RebuildGlobal() error = %v", err)
	}

	global, _ := s.GetGlobal(ctx, "a")
	if global == nil {
		t.Fatalf("no global summary written")
	}
	if !strings.Contains(global.Summaries, "first") || !strings.Contains(global.Summaries, "second") {
		t.Errorf("global summary %q does not cover all communities", global.Summaries)
	}
}

func TestDeleteIndexRemovesEverything(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()

	ctx := context.Background()
	seedNode(t, s, m, common.Node{ID: "a1", Index: "a", Name: "a1", Type: "CONCEPT", Desc: "a1"})
	seedNode(t, s, m, common.Node{ID: "a2", Index: "a", Name: "a2", Type: "CONCEPT", Desc: "a2"})
	seedNode(t, s, m, common.Node{ID: "x1", Index: "other", Name: "x1", Type: "CONCEPT", Desc: "x1"})
	s.edges["e1"] = common.Edge{ID: "e1", Index: "a", Source: "a1", Target: "a2", Relationship: "r"}
	_ = s.AddCommunity(ctx, common.Community{CommunityID: "c1", Index: "a", Summaries: "s"})
	_ = s.AddMemberships(ctx, []common.CommunityNode{{Index: "a", CommunityID: "c1", NodeID: "a1"}})
	_ = s.UpsertGlobal(ctx, common.Global{Index: "a", Summaries: "g"})

	engine := newTestEngine(s, m, sem)
	if err := engine.DeleteIndex(ctx, "a"); err != nil {
		t.Fatalf("DeleteIndex() error = %v", err)
	}

	if nodes, _ := s.GetNodesByIndex(ctx, "a"); len(nodes) != 0 {
		t.Errorf("%d nodes left", len(nodes))
	}
	if edges, _ := s.GetEdgesByIndex(ctx, "a"); len(edges) != 0 {
		t.Errorf("%d edges left", len(edges))
	}
	if communities, _ := s.GetCommunities(ctx, "a"); len(communities) != 0 {
		t.Errorf("%d communities left", len(communities))
	}
	if memberships, _ := s.GetMemberships(ctx, "a"); len(memberships) != 0 {
		t.Errorf("%d memberships left", len(memberships))
	}
	if global, _ := s.GetGlobal(ctx, "a"); global != nil {
		t.Errorf("global summary left")
	}
	if m.count("a") != 0 {
		t.Errorf("%d vector entries left", m.count("a"))
	}

	// The other index is untouched.
	if nodes, _ := s.GetNodesByIndex(ctx, "other"); len(nodes) != 1 {
		t.Errorf("other index lost nodes")
	}
}

func TestRetrieveRelaxesThresholdOnFewHits(t *testing.T) {
	s := newFakeStore()
	m := newFakeMemory()
	sem := newFakeSemantic()

	m.scripted["rare"] = []vector.Match{
		{ID: "a1", Text: "one", Relevance: 0.65},
		{ID: "a2", Text: "two", Relevance: 0.45},
		{ID: "a3", Text: "three", Relevance: 0.41},
	}

	engine := newTestEngine(s, m, sem)
	hits, err := engine.Retrieve(context.Background(), "a", "rare topic")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	// The first pass (>=0.6) returns one hit; the relaxed pass (>=0.4)
	// merges in the remaining ones.
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Relevance > hits[i-1].Relevance {
			t.Errorf("hits are not sorted by descending relevance")
		}
	}
}
