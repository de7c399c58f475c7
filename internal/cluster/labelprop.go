package cluster

import (
	"math/rand"
	"sort"
)

// labelPropagation spreads labels along weighted edges: each node repeatedly
// adopts the label with the largest incident weight until the labeling is
// stable. Visit order is seeded, so runs are deterministic for a fixed
// random_state; ties break toward the smallest label.
//
// Parameters: min_weight (default 0.0), max_iterations (default 100),
// random_state (default 0).
type labelPropagation struct{}

func init() { register(labelPropagation{}) }

func (labelPropagation) Name() string { return "label_propagation" }

func (labelPropagation) Run(g *Graph, params Params) (*Result, error) {
	minWeight := params.Float("min_weight", 0.0)
	maxIterations := params.Int("max_iterations", 100)
	seed := int64(params.Int("random_state", 0))

	adj := make(map[int64]map[int64]float64, len(g.Nodes))
	for _, node := range g.Nodes {
		adj[node] = make(map[int64]float64)
	}
	for _, edge := range g.Edges {
		if edge.Weight < minWeight || edge.Src == edge.Dst {
			continue
		}
		if _, ok := adj[edge.Src]; !ok {
			continue
		}
		if _, ok := adj[edge.Dst]; !ok {
			continue
		}
		adj[edge.Src][edge.Dst] += edge.Weight
		adj[edge.Dst][edge.Src] += edge.Weight
	}

	labels := make(map[int64]int64, len(g.Nodes))
	for _, node := range g.Nodes {
		labels[node] = node
	}

	order := append([]int64(nil), g.Nodes...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, node := range order {
			neighbors := adj[node]
			if len(neighbors) == 0 {
				continue
			}

			labelWeight := make(map[int64]float64)
			for neighbor, w := range neighbors {
				labelWeight[labels[neighbor]] += w
			}

			best := labels[node]
			bestWeight := labelWeight[best]
			candidates := make([]int64, 0, len(labelWeight))
			for label := range labelWeight {
				candidates = append(candidates, label)
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

			for _, label := range candidates {
				w := labelWeight[label]
				if w > bestWeight || (w == bestWeight && label < best) {
					best = label
					bestWeight = w
				}
			}

			if best != labels[node] {
				labels[node] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	groupsByLabel := make(map[int64][]int64)
	for _, node := range g.Nodes {
		groupsByLabel[labels[node]] = append(groupsByLabel[labels[node]], node)
	}
	groups := make([][]int64, 0, len(groupsByLabel))
	for _, members := range groupsByLabel {
		groups = append(groups, members)
	}

	clusters := finalizeClusters(groups, g.Paths)
	return &Result{
		Algorithm: "label_propagation",
		Parameters: map[string]interface{}{
			"min_weight":     minWeight,
			"max_iterations": maxIterations,
			"random_state":   seed,
		},
		ClusterCount: len(clusters),
		Clusters:     clusters,
	}, nil
}
