package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/graphmesh/graphmesh/internal/util"
	"github.com/graphmesh/graphmesh/pkg/ai"
	"github.com/graphmesh/graphmesh/pkg/common"
	"github.com/graphmesh/graphmesh/pkg/logger"
	"github.com/graphmesh/graphmesh/pkg/store"
	"github.com/graphmesh/graphmesh/pkg/vector"
)

// ErrInvalidInput is returned for missing index, text or query arguments.
var ErrInvalidInput = errors.New("invalid input")

const (
	// Vector-identity dedup search during ingest.
	identitySearchLimit   = 5
	identityMinRelevance  = 0.7
	// Orphan repair candidate search.
	orphanDescSearchLimit = 10
	orphanDescMinRel      = 0.5
	orphanNameSearchLimit = 5
	orphanNameMinRel      = 0.6
	orphanMinCandidates   = 3
	orphanResolveLimit    = 10
	orphanInferLimit      = 5
	orphanMaxEdges        = 2

	summaryParallelism = 4
)

// Options bounds retrieval and subgraph assembly.
type Options struct {
	SearchLimit        int
	SearchMinRelevance float64
	NodeDepth          int
	MaxNodes           int
	MaxTokens          int
	ExtractRetries     int
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		SearchLimit:        5,
		SearchMinRelevance: 0.6,
		NodeDepth:          3,
		MaxNodes:           100,
		MaxTokens:          4000,
		ExtractRetries:     3,
	}
}

// Engine orchestrates ingest, deduplication, orphan repair, community
// summarization and subgraph retrieval. It holds no graph state of its own;
// all shared state lives behind the store and the vector memory. Ingest is
// serialized per index.
type Engine struct {
	store   store.GraphStore
	vec     vector.Memory
	sem     Semantic
	options Options

	ingestLocks *util.KeyMutex
}

func NewEngine(graphStore store.GraphStore, vec vector.Memory, sem Semantic, options Options) *Engine {
	defaults := DefaultOptions()
	if options.SearchLimit <= 0 {
		options.SearchLimit = defaults.SearchLimit
	}
	if options.SearchMinRelevance <= 0 {
		options.SearchMinRelevance = defaults.SearchMinRelevance
	}
	if options.NodeDepth <= 0 {
		options.NodeDepth = defaults.NodeDepth
	}
	if options.MaxNodes <= 0 {
		options.MaxNodes = defaults.MaxNodes
	}
	if options.MaxTokens <= 0 {
		options.MaxTokens = defaults.MaxTokens
	}
	if options.ExtractRetries <= 0 {
		options.ExtractRetries = defaults.ExtractRetries
	}

	return &Engine{
		store:       graphStore,
		vec:         vec,
		sem:         sem,
		options:     options,
		ingestLocks: util.NewKeyMutex(),
	}
}

// InsertGraphData extracts a knowledge graph from text and merges it into
// the index. Failures other than cancellation are logged and swallowed so a
// bad chunk never aborts ingest of subsequent chunks.
func (e *Engine) InsertGraphData(ctx context.Context, index, text string) error {
	if strings.TrimSpace(index) == "" {
		return fmt.Errorf("%w: index must not be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidInput)
	}

	unlock := e.ingestLocks.Lock(index)
	defer unlock()

	if err := e.insertGraphData(ctx, index, text); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logger.Error("[Engine] Ingest failed, chunk abandoned", "index", index, "err", err)
		return nil
	}
	return nil
}

func (e *Engine) insertGraphData(ctx context.Context, index, text string) error {
	extraction, err := util.RetryWithContext(ctx, e.options.ExtractRetries, func(ctx context.Context) (*Extraction, error) {
		return e.sem.ExtractGraph(ctx, text)
	})
	if err != nil {
		return err
	}

	logger.Debug("[Engine] Extracted graph",
		"index", index, "nodes", len(extraction.Nodes), "edges", len(extraction.Edges))

	existing, err := e.store.GetNodesByIndex(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to load existing nodes: %w", err)
	}

	byName := map[string]*common.Node{}
	byID := map[string]*common.Node{}
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
		byID[existing[i].ID] = &existing[i]
	}

	resolved := map[string]string{}
	var created []*common.Node

	for _, extracted := range extraction.Nodes {
		name := strings.TrimSpace(extracted.Name)
		if name == "" {
			continue
		}

		if match, ok := byName[name]; ok {
			if err := e.mergeIntoExisting(ctx, match, extracted.Description); err != nil {
				return err
			}
			resolved[extracted.LocalID] = match.ID
			continue
		}

		node := common.Node{
			Index: index,
			Name:  name,
			Type:  extracted.Type,
			Desc:  extracted.Description,
		}

		matches, err := e.vec.Search(ctx, index, node.DescText(), identitySearchLimit, identityMinRelevance)
		if err != nil {
			return fmt.Errorf("failed to search vector identity: %w", err)
		}
		if len(matches) > 0 && matches[0].Relevance == 1.0 {
			resolved[extracted.LocalID] = matches[0].ID
			continue
		}

		potentialRelated := make([]string, 0, len(matches))
		for _, m := range matches {
			potentialRelated = append(potentialRelated, m.ID)
		}

		node.ID, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate node id: %w", err)
		}
		if err := e.store.AddNode(ctx, node); err != nil {
			return fmt.Errorf("failed to persist node: %w", err)
		}
		if err := e.vec.Save(ctx, index, node.ID, node.DescText()); err != nil {
			return fmt.Errorf("failed to save node embedding: %w", err)
		}

		fresh := node
		created = append(created, &fresh)
		resolved[extracted.LocalID] = fresh.ID
		byName[fresh.Name] = &fresh
		byID[fresh.ID] = &fresh

		for _, candidateID := range potentialRelated {
			candidate, ok := byID[candidateID]
			if !ok || candidate.ID == fresh.ID {
				continue
			}
			if _, err := e.inferAndConnect(ctx, index, *candidate, fresh); err != nil {
				return err
			}
		}
	}

	for _, extracted := range extraction.Edges {
		sourceID, sourceOK := resolved[extracted.SourceLocalID]
		targetID, targetOK := resolved[extracted.TargetLocalID]
		if !sourceOK || !targetOK {
			logger.Debug("[Engine] Skipping edge with unresolved endpoint",
				"index", index, "source", extracted.SourceLocalID, "target", extracted.TargetLocalID)
			continue
		}
		if _, err := e.insertEdgeIfAbsent(ctx, index, sourceID, targetID, extracted.Relationship); err != nil {
			return err
		}
	}

	for _, node := range created {
		incident, err := e.store.GetEdgesByNodeIDs(ctx, index, []string{node.ID})
		if err != nil {
			return fmt.Errorf("failed to check orphan status: %w", err)
		}
		if len(incident) > 0 {
			continue
		}
		if err := e.AttemptConnectOrphan(ctx, index, *node); err != nil {
			return err
		}
	}

	return e.dedupeEdges(ctx, index)
}

// mergeIntoExisting folds a freshly extracted description into an existing
// node with the same name and refreshes its vector entry.
func (e *Engine) mergeIntoExisting(ctx context.Context, node *common.Node, desc string) error {
	if strings.TrimSpace(desc) == "" {
		return nil
	}

	merged, err := e.sem.MergeDescriptions(ctx, node.Desc, desc)
	if err != nil {
		return err
	}
	if merged == "" {
		merged = node.Desc + "; " + desc
	}

	if err := e.store.UpdateNodeDescription(ctx, node.Index, node.ID, merged); err != nil {
		return fmt.Errorf("failed to update merged description: %w", err)
	}
	node.Desc = merged

	if err := e.vec.Save(ctx, node.Index, node.ID, node.DescText()); err != nil {
		return fmt.Errorf("failed to refresh node embedding: %w", err)
	}
	return nil
}

// inferAndConnect asks the model whether candidate and node are related and
// inserts the oriented edge if the pair is not yet connected. Returns
// whether an edge was inserted.
func (e *Engine) inferAndConnect(ctx context.Context, index string, candidate, node common.Node) (bool, error) {
	inference, err := e.sem.InferRelation(ctx, candidate.DescText(), node.DescText())
	if err != nil {
		return false, err
	}
	if !inference.Related {
		return false, nil
	}

	source, target := candidate.ID, node.ID
	if inference.SourceLabel == "node2" {
		source, target = target, source
	}
	return e.insertEdgeIfAbsent(ctx, index, source, target, inference.Relationship)
}

// insertEdgeIfAbsent creates an edge unless the endpoints are equal or
// already connected in either direction. Integrity violations are dropped
// with a log line.
func (e *Engine) insertEdgeIfAbsent(ctx context.Context, index, source, target, relationship string) (bool, error) {
	if source == target {
		return false, nil
	}

	existing, err := e.store.EdgeBetween(ctx, index, source, target)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing edge: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	id, err := gonanoid.New()
	if err != nil {
		return false, fmt.Errorf("failed to generate edge id: %w", err)
	}

	err = e.store.AddEdge(ctx, common.Edge{
		ID:           id,
		Index:        index,
		Source:       source,
		Target:       target,
		Relationship: relationship,
	})
	if errors.Is(err, store.ErrIntegrity) {
		logger.Warn("[Engine] Dropping edge rejected by store", "index", index, "err", err)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to persist edge: %w", err)
	}
	return true, nil
}

// AttemptConnectOrphan tries to connect a node without incident edges to its
// vector neighbours, stopping after two successful insertions.
func (e *Engine) AttemptConnectOrphan(ctx context.Context, index string, orphan common.Node) error {
	candidateIDs := make([]string, 0, orphanDescSearchLimit)
	seen := map[string]bool{orphan.ID: true}

	matches, err := e.vec.Search(ctx, index, orphan.DescText(), orphanDescSearchLimit, orphanDescMinRel)
	if err != nil {
		return fmt.Errorf("failed to search orphan candidates: %w", err)
	}
	for _, m := range matches {
		if !seen[m.ID] {
			seen[m.ID] = true
			candidateIDs = append(candidateIDs, m.ID)
		}
	}

	if len(candidateIDs) < orphanMinCandidates {
		nameMatches, err := e.vec.Search(ctx, index, orphan.Name, orphanNameSearchLimit, orphanNameMinRel)
		if err != nil {
			return fmt.Errorf("failed to search orphan candidates by name: %w", err)
		}
		for _, m := range nameMatches {
			if !seen[m.ID] {
				seen[m.ID] = true
				candidateIDs = append(candidateIDs, m.ID)
			}
		}
	}

	if len(candidateIDs) > orphanResolveLimit {
		candidateIDs = candidateIDs[:orphanResolveLimit]
	}
	candidates, err := e.store.GetNodesByIDs(ctx, candidateIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve orphan candidates: %w", err)
	}

	inserted := 0
	tried := 0
	for _, candidate := range candidates {
		if candidate.Index != index {
			continue
		}
		if tried >= orphanInferLimit {
			break
		}
		tried++

		ok, err := e.inferAndConnect(ctx, index, candidate, orphan)
		if err != nil {
			return err
		}
		if ok {
			inserted++
			if inserted >= orphanMaxEdges {
				break
			}
		}
	}

	logger.Debug("[Engine] Orphan repair finished", "index", index, "node", orphan.ID, "edges", inserted)
	return nil
}

// dedupeEdges collapses duplicate undirected edges of the index. Matching
// relationship labels delete the duplicate; diverging labels are merged via
// the model with a deterministic join fallback.
func (e *Engine) dedupeEdges(ctx context.Context, index string) error {
	edges, err := e.store.GetEdgesByIndex(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to load edges for dedup: %w", err)
	}

	groups := map[[2]string][]common.Edge{}
	var order [][2]string
	for _, edge := range edges {
		key := pairKey(edge.Source, edge.Target)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], edge)
	}

	for _, key := range order {
		group := groups[key]
		if len(group) <= 1 {
			continue
		}

		primary := group[0]
		for _, extra := range group[1:] {
			if extra.Relationship != primary.Relationship {
				merged, err := e.sem.MergeDescriptions(ctx, primary.Relationship, extra.Relationship)
				if err != nil {
					return err
				}
				if merged == "" {
					merged = primary.Relationship + "; " + extra.Relationship
				}
				if err := e.store.UpdateEdgeRelationship(ctx, index, primary.ID, merged); err != nil {
					return fmt.Errorf("failed to update merged relationship: %w", err)
				}
				primary.Relationship = merged
			}
			if err := e.store.DeleteEdge(ctx, index, extra.ID); err != nil {
				return fmt.Errorf("failed to delete duplicate edge: %w", err)
			}
		}
	}

	return nil
}

// Retrieve runs the relevance search for query, relaxing the threshold once
// when fewer than two hits come back. Hits are ordered by descending
// relevance.
func (e *Engine) Retrieve(ctx context.Context, index, query string) ([]vector.Match, error) {
	hits, err := e.vec.Search(ctx, index, query, e.options.SearchLimit, e.options.SearchMinRelevance)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(hits) < 2 && e.options.SearchMinRelevance > 0.3 {
		relaxed := max(0.3, e.options.SearchMinRelevance-0.2)
		more, err := e.vec.Search(ctx, index, query, e.options.SearchLimit+2, relaxed)
		if err != nil {
			return nil, fmt.Errorf("failed to search with relaxed threshold: %w", err)
		}

		seen := map[string]bool{}
		for _, h := range hits {
			seen[h.ID] = true
		}
		for _, h := range more {
			if !seen[h.ID] {
				seen[h.ID] = true
				hits = append(hits, h)
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// buildQuerySubgraph assembles the truncated subgraph for a query. A nil
// graph means nothing relevant was found.
func (e *Engine) buildQuerySubgraph(ctx context.Context, index, query string) (*common.Graph, error) {
	if strings.TrimSpace(index) == "" {
		return nil, fmt.Errorf("%w: index must not be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}

	hits, err := e.Retrieve(ctx, index, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	weights := map[string]float64{}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		weights[h.ID] = h.Relevance
		ids = append(ids, h.ID)
	}

	resolved, err := e.store.GetNodesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve seed nodes: %w", err)
	}
	seeds := make([]common.Node, 0, len(resolved))
	for _, n := range resolved {
		if n.Index == index {
			seeds = append(seeds, n)
		}
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	graph, err := e.BuildRecursiveSubgraph(ctx, index, seeds, weights)
	if err != nil {
		return nil, err
	}
	graph = e.TruncateToBudget(graph, weights)
	if len(graph.Nodes) == 0 {
		return nil, nil
	}
	return graph, nil
}

func subgraphJSON(graph *common.Graph) (string, error) {
	encoded, err := json.Marshal(graph)
	if err != nil {
		return "", fmt.Errorf("failed to serialize subgraph: %w", err)
	}
	return string(encoded), nil
}

// SearchGraph answers a question from the query-relevant subgraph. An empty
// answer means the index holds nothing relevant; the model is not consulted
// in that case.
func (e *Engine) SearchGraph(ctx context.Context, index, query string) (string, error) {
	graph, err := e.buildQuerySubgraph(ctx, index, query)
	if err != nil {
		return "", err
	}
	if graph == nil {
		return "", nil
	}

	encoded, err := subgraphJSON(graph)
	if err != nil {
		return "", err
	}
	return e.sem.Answer(ctx, encoded, query)
}

// SearchGraphStream is the streaming variant of SearchGraph. It yields an
// empty sequence when the subgraph has no nodes.
func (e *Engine) SearchGraphStream(ctx context.Context, index, query string) (<-chan ai.StreamEvent, error) {
	graph, err := e.buildQuerySubgraph(ctx, index, query)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		empty := make(chan ai.StreamEvent)
		close(empty)
		return empty, nil
	}

	encoded, err := subgraphJSON(graph)
	if err != nil {
		return nil, err
	}
	return e.sem.AnswerStream(ctx, encoded, query)
}

// SearchGraphCommunity answers a question from the subgraph augmented with
// community and global summaries.
func (e *Engine) SearchGraphCommunity(ctx context.Context, index, query string) (string, error) {
	graph, err := e.buildQuerySubgraph(ctx, index, query)
	if err != nil {
		return "", err
	}
	if graph == nil {
		return "", nil
	}

	encoded, err := subgraphJSON(graph)
	if err != nil {
		return "", err
	}

	communities, err := e.store.GetCommunities(ctx, index)
	if err != nil {
		return "", fmt.Errorf("failed to load communities: %w", err)
	}
	summaries := make([]string, 0, len(communities))
	for _, c := range communities {
		summaries = append(summaries, c.Summaries)
	}

	globalSummary := ""
	global, err := e.store.GetGlobal(ctx, index)
	if err != nil {
		return "", fmt.Errorf("failed to load global summary: %w", err)
	}
	if global != nil {
		globalSummary = global.Summaries
	}

	contextBlock := encoded + "\n" + fmt.Sprintf(ai.CommunityContextPrompt, strings.Join(summaries, "\n"), globalSummary)
	return e.sem.Answer(ctx, contextBlock, query)
}

// RebuildCommunities wipes and regenerates the communities of the index:
// label propagation over the current edge set, membership rows, and one
// summary per community. Community summaries are generated in parallel.
func (e *Engine) RebuildCommunities(ctx context.Context, index string) error {
	if strings.TrimSpace(index) == "" {
		return fmt.Errorf("%w: index must not be empty", ErrInvalidInput)
	}

	nodes, err := e.store.GetNodesByIndex(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}
	edges, err := e.store.GetEdgesByIndex(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to load edges: %w", err)
	}

	if err := e.store.DeleteCommunityData(ctx, index); err != nil {
		return fmt.Errorf("failed to clear community data: %w", err)
	}

	labels := DetectCommunities(nodes, edges)
	if len(labels) == 0 {
		logger.Info("[Engine] No communities detected", "index", index)
		return nil
	}

	nodeByID := map[string]common.Node{}
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}

	members := map[string][]string{}
	memberships := make([]common.CommunityNode, 0, len(labels))
	for nodeID, label := range labels {
		members[label] = append(members[label], nodeID)
		memberships = append(memberships, common.CommunityNode{
			Index:       index,
			CommunityID: label,
			NodeID:      nodeID,
		})
	}
	sort.Slice(memberships, func(i, j int) bool {
		if memberships[i].CommunityID != memberships[j].CommunityID {
			return memberships[i].CommunityID < memberships[j].CommunityID
		}
		return memberships[i].NodeID < memberships[j].NodeID
	})

	if err := e.store.AddMemberships(ctx, memberships); err != nil {
		return fmt.Errorf("failed to persist memberships: %w", err)
	}

	communityIDs := make([]string, 0, len(members))
	for id := range members {
		communityIDs = append(communityIDs, id)
	}
	sort.Strings(communityIDs)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(summaryParallelism)
	for _, communityID := range communityIDs {
		memberIDs := members[communityID]
		sort.Strings(memberIDs)

		lines := make([]string, 0, len(memberIDs))
		for _, nodeID := range memberIDs {
			n := nodeByID[nodeID]
			lines = append(lines, fmt.Sprintf("Name:%s; Type:%s; Desc:%s", n.Name, n.Type, n.Desc))
		}
		block := strings.Join(lines, "\n")
		id := communityID

		g.Go(func() error {
			summary, err := e.sem.SummarizeCommunity(gCtx, block)
			if err != nil {
				return fmt.Errorf("failed to summarize community %s: %w", id, err)
			}
			return e.store.AddCommunity(gCtx, common.Community{
				CommunityID: id,
				Index:       index,
				Summaries:   summary,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("[Engine] Communities rebuilt", "index", index, "communities", len(communityIDs))
	return nil
}

// RebuildGlobal regenerates the per-index global summary from the current
// community summaries.
func (e *Engine) RebuildGlobal(ctx context.Context, index string) error {
	if strings.TrimSpace(index) == "" {
		return fmt.Errorf("%w: index must not be empty", ErrInvalidInput)
	}

	communities, err := e.store.GetCommunities(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to load communities: %w", err)
	}
	if len(communities) == 0 {
		logger.Info("[Engine] No community summaries, skipping global rebuild", "index", index)
		return nil
	}

	summaries := make([]string, 0, len(communities))
	for _, c := range communities {
		summaries = append(summaries, c.Summaries)
	}

	summary, err := e.sem.SummarizeGlobal(ctx, strings.Join(summaries, "\n"))
	if err != nil {
		return err
	}

	return e.store.UpsertGlobal(ctx, common.Global{
		Index:     index,
		Summaries: summary,
	})
}

// DeleteIndex removes the vector entries of every node, then all rows of the
// index.
func (e *Engine) DeleteIndex(ctx context.Context, index string) error {
	if strings.TrimSpace(index) == "" {
		return fmt.Errorf("%w: index must not be empty", ErrInvalidInput)
	}

	nodes, err := e.store.GetNodesByIndex(ctx, index)
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}
	for _, n := range nodes {
		if err := e.vec.Remove(ctx, index, n.ID); err != nil {
			return fmt.Errorf("failed to remove vector entry: %w", err)
		}
	}

	if err := e.store.DeleteIndex(ctx, index); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}

	logger.Info("[Engine] Index deleted", "index", index, "nodes", len(nodes))
	return nil
}
