package cluster

import (
	"reflect"
	"testing"
)

// twoCliques is two dense triangles joined by one weak bridge.
func twoCliques() *Graph {
	return testGraph(6,
		Edge{Src: 1, Dst: 2, Weight: 1.0},
		Edge{Src: 2, Dst: 3, Weight: 1.0},
		Edge{Src: 1, Dst: 3, Weight: 1.0},
		Edge{Src: 4, Dst: 5, Weight: 1.0},
		Edge{Src: 5, Dst: 6, Weight: 1.0},
		Edge{Src: 4, Dst: 6, Weight: 1.0},
		Edge{Src: 3, Dst: 4, Weight: 0.05},
	)
}

func TestLouvainFindsCommunities(t *testing.T) {
	g := twoCliques()

	algo, err := Get("louvain")
	if err != nil {
		t.Fatal(err)
	}
	result, err := algo.Run(g, Params{"random_state": 42})
	if err != nil {
		t.Fatal(err)
	}

	assertCoverage(t, g, result)
	assertOrdering(t, result)

	if result.ClusterCount != 2 {
		t.Fatalf("expected the two cliques, got %d clusters", result.ClusterCount)
	}

	modularity, ok := result.Metrics["modularity"].(float64)
	if !ok {
		t.Fatal("modularity metric missing")
	}
	if modularity <= 0 {
		t.Errorf("two well-separated cliques must have positive modularity, got %f", modularity)
	}
}

// Fixed edge set and random_state: two independent runs produce identical
// partitions and identical modularity.
func TestLouvainDeterminism(t *testing.T) {
	algo, _ := Get("louvain")

	first, err := algo.Run(twoCliques(), Params{"random_state": 42})
	if err != nil {
		t.Fatal(err)
	}
	second, err := algo.Run(twoCliques(), Params{"random_state": 42})
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(membership(first), membership(second)) {
		t.Error("identical seeds must produce identical partitions")
	}
	if first.Metrics["modularity"] != second.Metrics["modularity"] {
		t.Errorf("modularity differs: %v vs %v", first.Metrics["modularity"], second.Metrics["modularity"])
	}
}

func membership(result *Result) [][]int64 {
	groups := make([][]int64, 0, len(result.Clusters))
	for _, c := range result.Clusters {
		groups = append(groups, c.FileIDs)
	}
	return groups
}

func TestLouvainEmptyGraph(t *testing.T) {
	g := testGraph(3)

	algo, _ := Get("louvain")
	result, err := algo.Run(g, Params{})
	if err != nil {
		t.Fatal(err)
	}

	// Undefined modularity reports as 0; every node is its own community.
	if result.Metrics["modularity"].(float64) != 0.0 {
		t.Errorf("empty graph modularity = %v", result.Metrics["modularity"])
	}
	if result.ClusterCount != 3 {
		t.Errorf("isolated nodes each form a singleton, got %d", result.ClusterCount)
	}
	assertCoverage(t, g, result)
}

func TestLouvainResolutionGrowsClusters(t *testing.T) {
	algo, _ := Get("louvain")

	low, err := algo.Run(twoCliques(), Params{"resolution": 0.1, "random_state": 1})
	if err != nil {
		t.Fatal(err)
	}
	high, err := algo.Run(twoCliques(), Params{"resolution": 4.0, "random_state": 1})
	if err != nil {
		t.Fatal(err)
	}

	if low.ClusterCount > high.ClusterCount {
		t.Errorf("higher resolution should not merge more: low=%d high=%d",
			low.ClusterCount, high.ClusterCount)
	}
}
