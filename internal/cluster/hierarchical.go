package cluster

import (
	"math"
	"sort"

	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
)

// hierarchical is agglomerative clustering over the distance matrix
// d = 1 - w. Clusters merge bottom-up under the chosen linkage until either
// the target cluster count is reached or the next merge would exceed the
// distance threshold.
//
// Parameters: n_clusters, distance_threshold (one of the two; n_clusters
// defaults to 10 when neither is set), linkage (single | complete | average |
// ward, default average).
type hierarchical struct{}

func init() { register(hierarchical{}) }

func (hierarchical) Name() string { return "hierarchical" }

func (hierarchical) Run(g *Graph, params Params) (*Result, error) {
	linkage := params.String("linkage", "average")
	switch linkage {
	case "single", "complete", "average", "ward":
	default:
		return nil, lfcaerrors.ConfigErrorf("unknown linkage: %q", linkage)
	}

	nClusters := params.Int("n_clusters", 0)
	distanceThreshold := math.NaN()
	if params.Has("distance_threshold") {
		distanceThreshold = params.Float("distance_threshold", math.NaN())
	}
	if nClusters <= 0 && math.IsNaN(distanceThreshold) {
		nClusters = 10
	}

	nodes := append([]int64(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	n := len(nodes)

	if n == 0 {
		return &Result{
			Algorithm:    "hierarchical",
			Parameters:   map[string]interface{}{"n_clusters": nClusters, "linkage": linkage},
			ClusterCount: 0,
			Clusters:     []*Cluster{},
		}, nil
	}

	idToIdx := make(map[int64]int, n)
	for i, id := range nodes {
		idToIdx[id] = i
	}

	// Distance matrix: 1 everywhere, 0 on the diagonal, 1 - w on edges.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			if i != j {
				dist[i][j] = 1.0
			}
		}
	}
	for _, edge := range g.Edges {
		si, okS := idToIdx[edge.Src]
		di, okD := idToIdx[edge.Dst]
		if !okS || !okD || si == di {
			continue
		}
		d := 1.0 - edge.Weight
		dist[si][di] = d
		dist[di][si] = d
	}

	// Active clusters, merged in place with Lance-Williams updates.
	members := make([][]int64, n)
	active := make([]bool, n)
	sizes := make([]int, n)
	for i, id := range nodes {
		members[i] = []int64{id}
		active[i] = true
		sizes[i] = 1
	}
	remaining := n

	target := nClusters
	if target <= 0 {
		target = 1
	}

	for remaining > target {
		// Find the closest active pair.
		best := math.Inf(1)
		bi, bj := -1, -1
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi < 0 {
			break
		}
		if !math.IsNaN(distanceThreshold) && best > distanceThreshold {
			break
		}

		// Merge bj into bi, updating distances via Lance-Williams.
		ni := float64(sizes[bi])
		nj := float64(sizes[bj])
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			dik := dist[bi][k]
			djk := dist[bj][k]
			var merged float64
			switch linkage {
			case "single":
				merged = math.Min(dik, djk)
			case "complete":
				merged = math.Max(dik, djk)
			case "average":
				merged = (ni*dik + nj*djk) / (ni + nj)
			case "ward":
				nk := float64(sizes[k])
				merged = math.Sqrt(
					((ni+nk)*dik*dik + (nj+nk)*djk*djk - nk*best*best) / (ni + nj + nk))
			}
			dist[bi][k] = merged
			dist[k][bi] = merged
		}

		members[bi] = append(members[bi], members[bj]...)
		sizes[bi] += sizes[bj]
		active[bj] = false
		members[bj] = nil
		remaining--
	}

	groups := make([][]int64, 0, remaining)
	for i := 0; i < n; i++ {
		if active[i] {
			groups = append(groups, members[i])
		}
	}

	clusters := finalizeClusters(groups, g.Paths)
	parameters := map[string]interface{}{"linkage": linkage}
	if nClusters > 0 {
		parameters["n_clusters"] = nClusters
	}
	if !math.IsNaN(distanceThreshold) {
		parameters["distance_threshold"] = distanceThreshold
	}

	return &Result{
		Algorithm:    "hierarchical",
		Parameters:   parameters,
		ClusterCount: len(clusters),
		Clusters:     clusters,
	}, nil
}
