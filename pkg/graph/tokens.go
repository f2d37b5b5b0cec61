package graph

import "github.com/graphmesh/graphmesh/pkg/common"

const (
	graphBaseTokens = 200
	nodeBaseTokens  = 15
	edgeTokens      = 10
)

// EstimateTokens approximates the token footprint of a serialized subgraph.
// CJK code points count as one token, everything else as three quarters of
// one. The estimate is an embedding-agnostic heuristic, not a tokenizer.
func EstimateTokens(g *common.Graph) int {
	total := graphBaseTokens
	for _, n := range g.Nodes {
		total += nodeTokens(n)
	}
	total += edgeTokens * len(g.Edges)
	return total
}

func nodeTokens(n common.Node) int {
	return descTokens(n.Desc) + len(n.ID)/3 + len(n.Name)/3 + nodeBaseTokens
}

func descTokens(desc string) int {
	chinese, other := 0, 0
	for _, r := range desc {
		if r >= 0x4E00 && r <= 0x9FFF {
			chinese++
		} else {
			other++
		}
	}
	return chinese + other*3/4
}
