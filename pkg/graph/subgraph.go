package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/graphmesh/graphmesh/pkg/common"
)

const frontierWidth = 5

// weightDecay is applied when a discovered node has no relevance weight of
// its own: it inherits a fraction of the current maximum.
const weightDecay = 0.8

// BuildRecursiveSubgraph expands the seed nodes into a bounded subgraph via
// weighted breadth-first search. Each step keeps only the top-weighted
// frontier nodes, collects the edges incident to them and to every node
// already in the subgraph, and pulls in newly
// discovered endpoints until NodeDepth, MaxNodes or a fixed point is
// reached. Weights is mutated: discovered nodes without a weight receive a
// decayed default.
func (e *Engine) BuildRecursiveSubgraph(ctx context.Context, index string, seeds []common.Node, weights map[string]float64) (*common.Graph, error) {
	graph := &common.Graph{
		Nodes: append([]common.Node(nil), seeds...),
		Edges: []common.Edge{},
	}

	inGraph := map[string]bool{}
	for _, n := range graph.Nodes {
		inGraph[n.ID] = true
	}
	seenPairs := map[[2]string]bool{}

	frontier := append([]common.Node(nil), seeds...)
	depth := 0

	for depth < e.options.NodeDepth && len(graph.Nodes) < e.options.MaxNodes {
		frontier = topWeighted(frontier, weights, frontierWidth)

		candidateIDs := make([]string, 0, len(graph.Nodes)+len(frontier))
		seen := map[string]bool{}
		for _, n := range graph.Nodes {
			if !seen[n.ID] {
				seen[n.ID] = true
				candidateIDs = append(candidateIDs, n.ID)
			}
		}
		for _, n := range frontier {
			if !seen[n.ID] {
				seen[n.ID] = true
				candidateIDs = append(candidateIDs, n.ID)
			}
		}

		incident, err := e.store.GetEdgesByNodeIDs(ctx, index, candidateIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load incident edges: %w", err)
		}

		newIDs := map[string]bool{}
		for _, edge := range incident {
			pair := pairKey(edge.Source, edge.Target)
			if seenPairs[pair] {
				continue
			}
			seenPairs[pair] = true
			graph.Edges = append(graph.Edges, edge)

			for _, endpoint := range []string{edge.Source, edge.Target} {
				if !inGraph[endpoint] {
					newIDs[endpoint] = true
				}
			}
		}

		if len(newIDs) == 0 {
			break
		}

		ids := make([]string, 0, len(newIDs))
		for id := range newIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		newNodes, err := e.store.GetNodesByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load discovered nodes: %w", err)
		}

		defaultWeight := weightDecay * maxWeight(weights)
		frontier = frontier[:0]
		for _, n := range newNodes {
			if n.Index != index {
				continue
			}
			if _, ok := weights[n.ID]; !ok {
				weights[n.ID] = defaultWeight
			}
			graph.Nodes = append(graph.Nodes, n)
			inGraph[n.ID] = true
			frontier = append(frontier, n)
		}
		if len(frontier) == 0 {
			break
		}
		depth++
	}

	if len(graph.Nodes) > e.options.MaxNodes {
		kept := topWeighted(graph.Nodes, weights, e.options.MaxNodes)
		graph.Nodes = kept
	}
	graph.Edges = dropDanglingEdges(graph.Nodes, graph.Edges)

	return graph, nil
}

// TruncateToBudget shrinks the graph until its token estimate fits the
// budget. Nodes are kept greedily by descending weight against ninety
// percent of MaxTokens; edges with a dropped endpoint are removed.
func (e *Engine) TruncateToBudget(graph *common.Graph, weights map[string]float64) *common.Graph {
	if EstimateTokens(graph) <= e.options.MaxTokens {
		return graph
	}

	budgetCap := e.options.MaxTokens * 9 / 10

	ordered := topWeighted(graph.Nodes, weights, len(graph.Nodes))
	budget := graphBaseTokens
	var kept []common.Node
	for _, n := range ordered {
		cost := nodeTokens(n)
		if budget+cost > budgetCap {
			break
		}
		budget += cost
		kept = append(kept, n)
	}

	truncated := &common.Graph{
		Nodes: kept,
		Edges: dropDanglingEdges(kept, graph.Edges),
	}

	// Edge tokens are not part of the greedy selection; shed the lightest
	// nodes until the full estimate honours the budget.
	for EstimateTokens(truncated) > budgetCap && len(truncated.Nodes) > 0 {
		truncated.Nodes = truncated.Nodes[:len(truncated.Nodes)-1]
		truncated.Edges = dropDanglingEdges(truncated.Nodes, truncated.Edges)
	}

	return truncated
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// topWeighted returns the n highest-weighted nodes, ties broken by id so the
// selection is deterministic.
func topWeighted(nodes []common.Node, weights map[string]float64, n int) []common.Node {
	sorted := append([]common.Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := weights[sorted[i].ID], weights[sorted[j].ID]
		if wi != wj {
			return wi > wj
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func maxWeight(weights map[string]float64) float64 {
	max := 0.0
	for _, w := range weights {
		if w > max {
			max = w
		}
	}
	return max
}

func dropDanglingEdges(nodes []common.Node, edges []common.Edge) []common.Edge {
	present := map[string]bool{}
	for _, n := range nodes {
		present[n.ID] = true
	}
	kept := make([]common.Edge, 0, len(edges))
	for _, e := range edges {
		if present[e.Source] && present[e.Target] {
			kept = append(kept, e)
		}
	}
	return kept
}
