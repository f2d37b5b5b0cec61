package graph

import (
	"sort"

	"github.com/graphmesh/graphmesh/pkg/common"
)

// iterationCapFactor bounds label propagation at factor*(number of nodes with
// at least one neighbour) dequeues so a
// pathological oscillation can never spin forever.
const iterationCapFactor = 50

// DetectCommunities runs fast label propagation over the undirected view of
// the graph and returns nodeID → community label for every node with at
// least one neighbour. Isolated nodes keep their own id as label and are
// excluded from the result.
//
// The algorithm is deterministic: nodes are seeded in ascending id order,
// the active set is a FIFO queue, and label ties are broken by the smallest
// label string.
func DetectCommunities(nodes []common.Node, edges []common.Edge) map[string]string {
	adjacency := map[string]map[string]struct{}{}
	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if adjacency[e.Source] == nil {
			adjacency[e.Source] = map[string]struct{}{}
		}
		if adjacency[e.Target] == nil {
			adjacency[e.Target] = map[string]struct{}{}
		}
		adjacency[e.Source][e.Target] = struct{}{}
		adjacency[e.Target][e.Source] = struct{}{}
	}

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	labels := map[string]string{}
	var queue []string
	queued := map[string]bool{}
	for _, id := range ids {
		if len(adjacency[id]) == 0 {
			continue
		}
		labels[id] = id
		queue = append(queue, id)
		queued[id] = true
	}

	maxIterations := iterationCapFactor * len(labels)
	for iteration := 0; len(queue) > 0 && iteration < maxIterations; iteration++ {
		v := queue[0]
		queue = queue[1:]
		queued[v] = false

		best := dominantNeighbourLabel(v, adjacency, labels)
		if best == "" || best == labels[v] {
			continue
		}
		labels[v] = best

		neighbours := sortedNeighbours(v, adjacency)
		for _, n := range neighbours {
			if labels[n] != best && !queued[n] {
				queue = append(queue, n)
				queued[n] = true
			}
		}
	}

	return labels
}

// dominantNeighbourLabel returns the most frequent label among the
// neighbours of v, ties broken by the smallest label string.
func dominantNeighbourLabel(v string, adjacency map[string]map[string]struct{}, labels map[string]string) string {
	counts := map[string]int{}
	for n := range adjacency[v] {
		counts[labels[n]]++
	}

	best := ""
	bestCount := 0
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < best) {
			best = label
			bestCount = count
		}
	}
	return best
}

func sortedNeighbours(v string, adjacency map[string]map[string]struct{}) []string {
	neighbours := make([]string, 0, len(adjacency[v]))
	for n := range adjacency[v] {
		neighbours = append(neighbours, n)
	}
	sort.Strings(neighbours)
	return neighbours
}
