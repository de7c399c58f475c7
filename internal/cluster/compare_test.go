package cluster

import (
	"testing"
)

func clusterOf(id int, fileIDs ...int64) *Cluster {
	return &Cluster{ID: id, Size: len(fileIDs), FileIDs: fileIDs}
}

func resultOf(clusters ...*Cluster) *Result {
	return &Result{
		Algorithm:    "components",
		ClusterCount: len(clusters),
		Clusters:     clusters,
	}
}

// Old {A:[1..5], B:[6,7,8]} vs new {X:[1,2,3], Y:[4,5,8], Z:[9,10]}:
// A drifts to X (3/5), B drifts to Y (1/3), Z is new.
func TestCompareSnapshotDrift(t *testing.T) {
	oldResult := resultOf(
		clusterOf(1, 1, 2, 3, 4, 5), // A
		clusterOf(2, 6, 7, 8),       // B
	)
	newResult := resultOf(
		clusterOf(1, 1, 2, 3),  // X
		clusterOf(2, 4, 5, 8),  // Y
		clusterOf(3, 9, 10),    // Z
	)

	comparison := Compare(oldResult, newResult)

	if comparison.Summary.Stable != 0 || comparison.Summary.Drifted != 2 ||
		comparison.Summary.Dissolved != 0 || comparison.Summary.New != 1 {
		t.Fatalf("summary = %+v", comparison.Summary)
	}

	byOld := map[int]Comparison{}
	for _, c := range comparison.Comparisons {
		if c.OldID != nil {
			byOld[*c.OldID] = c
		}
	}

	a := byOld[1]
	if a.NewID == nil || *a.NewID != 1 || a.OverlapCount != 3 {
		t.Errorf("A best match = %+v", a)
	}
	if a.OverlapRatio < 0.59 || a.OverlapRatio > 0.61 {
		t.Errorf("A overlap ratio = %f, want 0.6", a.OverlapRatio)
	}
	if a.Status != StatusDrifted {
		t.Errorf("A status = %s", a.Status)
	}

	b := byOld[2]
	if b.NewID == nil || *b.NewID != 2 || b.OverlapCount != 1 {
		t.Errorf("B best match = %+v", b)
	}
	if b.Status != StatusDrifted {
		t.Errorf("B status = %s", b.Status)
	}
}

// Every old cluster appears exactly once; every new cluster appears at least
// once.
func TestCompareClosure(t *testing.T) {
	oldResult := resultOf(
		clusterOf(1, 1, 2, 3),
		clusterOf(2, 4, 5),
		clusterOf(3, 99), // dissolved: members vanish
	)
	newResult := resultOf(
		clusterOf(1, 1, 2, 3),
		clusterOf(2, 4, 5),
		clusterOf(3, 6, 7),
	)

	comparison := Compare(oldResult, newResult)

	oldSeen := map[int]int{}
	newSeen := map[int]int{}
	for _, c := range comparison.Comparisons {
		if c.OldID != nil {
			oldSeen[*c.OldID]++
		}
		if c.NewID != nil {
			newSeen[*c.NewID]++
		}
	}

	for _, oc := range oldResult.Clusters {
		if oldSeen[oc.ID] != 1 {
			t.Errorf("old cluster %d appears %d times", oc.ID, oldSeen[oc.ID])
		}
	}
	for _, nc := range newResult.Clusters {
		if newSeen[nc.ID] < 1 {
			t.Errorf("new cluster %d never appears", nc.ID)
		}
	}

	if comparison.Summary.Stable != 2 || comparison.Summary.Dissolved != 1 || comparison.Summary.New != 1 {
		t.Errorf("summary = %+v", comparison.Summary)
	}
}

func TestCompareFlows(t *testing.T) {
	oldResult := resultOf(clusterOf(1, 1, 2, 3, 4))
	newResult := resultOf(clusterOf(1, 1, 2), clusterOf(2, 3, 4))

	comparison := Compare(oldResult, newResult)

	if len(comparison.Flows) != 2 {
		t.Fatalf("expected 2 flows, got %+v", comparison.Flows)
	}
	for _, flow := range comparison.Flows {
		if flow.Source != 1 || flow.Value != 2 {
			t.Errorf("flow = %+v", flow)
		}
	}
}

func TestCompareStableThreshold(t *testing.T) {
	// Identical clusters: overlap ratio 1.0 > 0.8 - stable.
	oldResult := resultOf(clusterOf(1, 1, 2, 3, 4, 5))
	newResult := resultOf(clusterOf(1, 1, 2, 3, 4, 5))

	comparison := Compare(oldResult, newResult)
	if comparison.Summary.Stable != 1 {
		t.Errorf("identical clusters must be stable: %+v", comparison.Summary)
	}

	// 4/5 overlap = 0.8, not > 0.8 - drifted.
	newResult = resultOf(clusterOf(1, 1, 2, 3, 4))
	comparison = Compare(oldResult, newResult)
	if comparison.Summary.Drifted != 1 {
		t.Errorf("boundary overlap must be drifted: %+v", comparison.Summary)
	}
}
