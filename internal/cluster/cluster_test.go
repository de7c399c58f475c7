package cluster

import (
	"fmt"
	"testing"
)

// testGraph builds a graph with nodes 1..n and the given weighted edges.
func testGraph(n int, edges ...Edge) *Graph {
	g := &Graph{Paths: make(map[int64]string)}
	for i := 1; i <= n; i++ {
		id := int64(i)
		g.Nodes = append(g.Nodes, id)
		g.Paths[id] = fmt.Sprintf("src/file%d.go", i)
	}
	g.Edges = edges
	return g
}

// assertCoverage checks that the union of cluster members equals the node
// universe, less the reported noise points.
func assertCoverage(t *testing.T, g *Graph, result *Result) {
	t.Helper()

	covered := make(map[int64]bool)
	for _, c := range result.Clusters {
		for _, id := range c.FileIDs {
			if covered[id] {
				t.Errorf("file %d appears in two clusters", id)
			}
			covered[id] = true
		}
	}

	if noiseIDs, ok := result.Metrics["noise_file_ids"].([]int64); ok {
		for _, id := range noiseIDs {
			if covered[id] {
				t.Errorf("noise point %d also appears in a cluster", id)
			}
			covered[id] = true
		}
	}

	for _, id := range g.Nodes {
		if !covered[id] {
			t.Errorf("file %d not covered by any cluster", id)
		}
	}
}

// assertOrdering checks clusters are size-descending with dense 1-based ids.
func assertOrdering(t *testing.T, result *Result) {
	t.Helper()
	for i, c := range result.Clusters {
		if c.ID != i+1 {
			t.Errorf("cluster ids must be a dense 1-based sequence: got %d at index %d", c.ID, i)
		}
		if c.Size != len(c.FileIDs) {
			t.Errorf("cluster %d size %d != member count %d", c.ID, c.Size, len(c.FileIDs))
		}
		if i > 0 && result.Clusters[i-1].Size < c.Size {
			t.Errorf("clusters not sorted by size descending at index %d", i)
		}
	}
	if result.ClusterCount != len(result.Clusters) {
		t.Errorf("cluster_count %d != len(clusters) %d", result.ClusterCount, len(result.Clusters))
	}
}

func TestRegistryDispatch(t *testing.T) {
	for _, name := range []string{"components", "louvain", "label_propagation", "hierarchical", "dbscan"} {
		if _, err := Get(name); err != nil {
			t.Errorf("algorithm %q not registered: %v", name, err)
		}
	}
	if _, err := Get("spectral"); err == nil {
		t.Error("unknown algorithm name must be a configuration error")
	}
}

func TestParamsHelpers(t *testing.T) {
	p := Params{"f": 0.5, "i": 3, "fi": float64(7), "s": "ward"}
	if p.Float("f", 0) != 0.5 || p.Float("missing", 1.5) != 1.5 {
		t.Error("Float helper")
	}
	if p.Int("i", 0) != 3 || p.Int("fi", 0) != 7 || p.Int("missing", 9) != 9 {
		t.Error("Int helper")
	}
	if p.String("s", "x") != "ward" || p.String("missing", "avg") != "avg" {
		t.Error("String helper")
	}
	if !p.Has("f") || p.Has("missing") {
		t.Error("Has helper")
	}
}
