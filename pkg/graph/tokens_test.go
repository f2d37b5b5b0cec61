package graph

import (
	"testing"

	"github.com/graphmesh/graphmesh/pkg/common"
)

func TestEstimateTokensEmptyGraph(t *testing.T) {
	got := EstimateTokens(&common.Graph{})
	if got != graphBaseTokens {
		t.Errorf("EstimateTokens(empty) = %d, want %d", got, graphBaseTokens)
	}
}

func TestEstimateTokensCountsNodesAndEdges(t *testing.T) {
	g := &common.Graph{
		Nodes: []common.Node{
			{ID: "abcdef", Name: "Alice", Desc: "12345678"},
		},
		Edges: []common.Edge{
			{ID: "e1", Source: "a", Target: "b"},
		},
	}

	// desc: 8 non-CJK runes -> 6; id len 6 -> 2; name len 5 -> 1; base 15.
	want := graphBaseTokens + 6 + 2 + 1 + nodeBaseTokens + edgeTokens
	if got := EstimateTokens(g); got != want {
		t.Errorf("EstimateTokens() = %d, want %d", got, want)
	}
}

func TestDescTokensCountsCJKFully(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want int
	}{
		{name: "empty", desc: "", want: 0},
		{name: "ascii only", desc: "abcd", want: 3},
		{name: "cjk only", desc: "知识图谱", want: 4},
		// "graph" -> floor(5*0.75)=3, two CJK runes -> 2.
		{name: "mixed", desc: "graph知识", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := descTokens(tt.desc); got != tt.want {
				t.Errorf("descTokens(%q) = %d, want %d", tt.desc, got, tt.want)
			}
		})
	}
}
