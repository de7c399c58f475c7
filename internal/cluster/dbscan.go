package cluster

import (
	"sort"
)

// dbscan is density-based clustering over the distance space d = 1 - w.
// Core points have at least min_samples neighbors (themselves included)
// within eps; clusters grow by expanding from core points. Isolated points
// become noise and are reported separately, never silently folded in.
//
// Parameters: eps (default 0.5), min_samples (default 2).
type dbscan struct{}

func init() { register(dbscan{}) }

func (dbscan) Name() string { return "dbscan" }

const (
	labelUnvisited = 0
	labelNoise     = -1
)

func (dbscan) Run(g *Graph, params Params) (*Result, error) {
	eps := params.Float("eps", 0.5)
	minSamples := params.Int("min_samples", 2)

	nodes := append([]int64(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	idToIdx := make(map[int64]int, len(nodes))
	for i, id := range nodes {
		idToIdx[id] = i
	}

	// Neighborhoods from the edge list: non-edges sit at distance 1, so only
	// edges with 1 - w <= eps contribute.
	neighbors := make([][]int, len(nodes))
	for _, edge := range g.Edges {
		si, okS := idToIdx[edge.Src]
		di, okD := idToIdx[edge.Dst]
		if !okS || !okD || si == di {
			continue
		}
		if 1.0-edge.Weight <= eps {
			neighbors[si] = append(neighbors[si], di)
			neighbors[di] = append(neighbors[di], si)
		}
	}

	labels := make([]int, len(nodes))
	clusterID := 0

	for i := range nodes {
		if labels[i] != labelUnvisited {
			continue
		}
		// Neighborhood size includes the point itself.
		if len(neighbors[i])+1 < minSamples {
			labels[i] = labelNoise
			continue
		}

		clusterID++
		labels[i] = clusterID

		// Expand the cluster breadth-first.
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == labelNoise {
				// Border point reachable from a core point.
				labels[j] = clusterID
			}
			if labels[j] != labelUnvisited {
				continue
			}
			labels[j] = clusterID

			if len(neighbors[j])+1 >= minSamples {
				queue = append(queue, neighbors[j]...)
			}
		}
	}

	groupsByID := make(map[int][]int64)
	var noise []int64
	for i, label := range labels {
		if label == labelNoise {
			noise = append(noise, nodes[i])
		} else {
			groupsByID[label] = append(groupsByID[label], nodes[i])
		}
	}

	groups := make([][]int64, 0, len(groupsByID))
	for _, members := range groupsByID {
		groups = append(groups, members)
	}

	clusters := finalizeClusters(groups, g.Paths)

	noisePaths := make([]string, 0, len(noise))
	for i, id := range noise {
		if i >= 20 {
			break
		}
		noisePaths = append(noisePaths, g.Paths[id])
	}

	return &Result{
		Algorithm: "dbscan",
		Parameters: map[string]interface{}{
			"eps":         eps,
			"min_samples": minSamples,
		},
		ClusterCount: len(clusters),
		Clusters:     clusters,
		Metrics: map[string]interface{}{
			"noise_count":    len(noise),
			"noise_file_ids": noise,
			"noise_files":    noisePaths,
		},
	}, nil
}
