package cluster

import (
	"testing"
)

func TestConnectedComponents(t *testing.T) {
	g := testGraph(6,
		Edge{Src: 1, Dst: 2, Weight: 0.9},
		Edge{Src: 2, Dst: 3, Weight: 0.8},
		Edge{Src: 4, Dst: 5, Weight: 0.7},
	)

	algo, err := Get("components")
	if err != nil {
		t.Fatal(err)
	}
	result, err := algo.Run(g, Params{"min_weight": 0.1})
	if err != nil {
		t.Fatal(err)
	}

	assertCoverage(t, g, result)
	assertOrdering(t, result)

	// {1,2,3}, {4,5}, {6}
	if result.ClusterCount != 3 {
		t.Fatalf("expected 3 components, got %d", result.ClusterCount)
	}
	if result.Clusters[0].Size != 3 || result.Clusters[1].Size != 2 || result.Clusters[2].Size != 1 {
		t.Errorf("sizes = %d/%d/%d", result.Clusters[0].Size, result.Clusters[1].Size, result.Clusters[2].Size)
	}
}

func TestConnectedComponentsMinWeight(t *testing.T) {
	g := testGraph(3,
		Edge{Src: 1, Dst: 2, Weight: 0.9},
		Edge{Src: 2, Dst: 3, Weight: 0.05}, // below min_weight
	)

	algo, _ := Get("components")
	result, err := algo.Run(g, Params{"min_weight": 0.1})
	if err != nil {
		t.Fatal(err)
	}

	if result.ClusterCount != 2 {
		t.Fatalf("weak edge must not union: got %d clusters", result.ClusterCount)
	}
}

func TestUnionFindPathCompression(t *testing.T) {
	items := []int64{1, 2, 3, 4, 5}
	uf := newUnionFind(items)

	uf.union(1, 2)
	uf.union(2, 3)
	uf.union(4, 5)

	if uf.find(1) != uf.find(3) {
		t.Error("1 and 3 must share a root")
	}
	if uf.find(1) == uf.find(4) {
		t.Error("separate sets must have distinct roots")
	}

	// After find, paths are compressed to point at the root.
	root := uf.find(3)
	if uf.parent[3] != root {
		t.Error("path compression did not flatten the chain")
	}
}
