package edges

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/lfca/internal/config"
	"github.com/rohankatakam/lfca/internal/models"
)

func testBuilder(opts *config.Options) *Builder {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return &Builder{opts: opts, logger: logger}
}

func cs(id string, ts int64, fileIDs ...int64) models.Changeset {
	return models.Changeset{ID: id, FileIDs: fileIDs, Weight: 1.0, Timestamp: ts}
}

func TestComputeEdgesPairCanonicalityAndMetrics(t *testing.T) {
	opts := config.Default()
	opts.MinCooccurrence = 1
	opts.MinRevisions = 1

	b := testBuilder(opts)
	// Files given in mixed order: canonicalization must not care.
	edges := b.computeEdges([]models.Changeset{
		cs("c1", 100, 2, 1),
		cs("c2", 200, 1, 2),
		cs("c3", 300, 3, 1),
	})

	seen := map[[2]int64]bool{}
	for _, e := range edges {
		if e.Src >= e.Dst {
			t.Errorf("pair not canonical: %d >= %d", e.Src, e.Dst)
		}
		key := [2]int64{e.Src, e.Dst}
		if seen[key] {
			t.Errorf("pair %v appears twice", key)
		}
		seen[key] = true

		if e.Jaccard < 0 || e.Jaccard > 1 || e.JaccardWeighted < 0 || e.JaccardWeighted > 1 {
			t.Errorf("jaccard out of bounds: %+v", e)
		}
	}

	var pair12 *models.FileEdge
	for i := range edges {
		if edges[i].Src == 1 && edges[i].Dst == 2 {
			pair12 = &edges[i]
		}
	}
	if pair12 == nil {
		t.Fatal("missing edge {1,2}")
	}
	// n1=3, n2=2, n12=2 -> jaccard 2/3, forward 2/3, backward 1.
	if pair12.PairCountRaw != 2 {
		t.Errorf("raw pair count = %d", pair12.PairCountRaw)
	}
	if math.Abs(pair12.Jaccard-2.0/3.0) > 1e-9 {
		t.Errorf("jaccard = %f", pair12.Jaccard)
	}
	if math.Abs(pair12.ProbDstGivenSrc-2.0/3.0) > 1e-9 || math.Abs(pair12.ProbSrcGivenDst-1.0) > 1e-9 {
		t.Errorf("conditionals = %f / %f", pair12.ProbDstGivenSrc, pair12.ProbSrcGivenDst)
	}
}

func TestComputeEdgesCooccurrenceFloor(t *testing.T) {
	opts := config.Default()
	opts.MinCooccurrence = 2
	opts.MinRevisions = 2

	b := testBuilder(opts)
	edges := b.computeEdges([]models.Changeset{
		cs("c1", 1, 1, 2),
		cs("c2", 2, 1, 2),
		cs("c3", 3, 1, 3), // {1,3} co-occurs once; file 3 has one revision
	})

	for _, e := range edges {
		if e.PairCountRaw < 2 {
			t.Errorf("edge below min_cooccurrence survived: %+v", e)
		}
		if e.SrcCount < 2 || e.DstCount < 2 {
			t.Errorf("endpoint below min_revisions survived: %+v", e)
		}
	}
	if len(edges) != 1 {
		t.Fatalf("expected only {1,2}, got %d edges", len(edges))
	}
}

// A single commit touching 100 files under the downweight policy contributes
// weight 1/ln(101) per pair while raw counts stay at 1.
func TestDownweightPolicy(t *testing.T) {
	opts := config.Default()
	opts.MaxChangesetSize = 50
	opts.BulkPolicy = config.BulkDownweight
	opts.MinCooccurrence = 1
	opts.MinRevisions = 1

	fileIDs := make([]int64, 100)
	for i := range fileIDs {
		fileIDs[i] = int64(i + 1)
	}

	b := testBuilder(opts)
	edges := b.computeEdges([]models.Changeset{
		{ID: "bulk", FileIDs: fileIDs, Weight: 1.0, Timestamp: 1},
	})

	if len(edges) != 100*99/2 {
		t.Fatalf("expected %d pairs, got %d", 100*99/2, len(edges))
	}

	want := 1.0 / math.Log(101)
	for _, e := range edges[:5] {
		if math.Abs(e.PairCount-want) > 1e-9 {
			t.Errorf("weighted pair count = %f, want %f", e.PairCount, want)
		}
		if e.PairCountRaw != 1 {
			t.Errorf("raw pair count = %d, want 1", e.PairCountRaw)
		}
	}

	// With min_cooccurrence=3 none of these survive.
	opts.MinCooccurrence = 3
	edges = b.computeEdges([]models.Changeset{
		{ID: "bulk", FileIDs: fileIDs, Weight: 1.0, Timestamp: 1},
	})
	if len(edges) != 0 {
		t.Errorf("raw counts of 1 must not pass min_cooccurrence=3, got %d edges", len(edges))
	}
}

func TestExcludePolicyDropsBulkChangesets(t *testing.T) {
	opts := config.Default()
	opts.MaxChangesetSize = 3
	opts.BulkPolicy = config.BulkExclude
	opts.MinCooccurrence = 1
	opts.MinRevisions = 1

	b := testBuilder(opts)
	edges := b.computeEdges([]models.Changeset{
		cs("small", 1, 1, 2),
		cs("big", 2, 1, 2, 3, 4, 5),
	})

	if len(edges) != 1 {
		t.Fatalf("only the small changeset contributes, got %d edges", len(edges))
	}
	if edges[0].PairCountRaw != 1 {
		t.Errorf("bulk changeset leaked into pair counts: %+v", edges[0])
	}
}

func TestDecayHalfLife(t *testing.T) {
	opts := config.Default()
	opts.MinCooccurrence = 1
	opts.MinRevisions = 1
	opts.DecayHalfLifeDays = 10

	latest := int64(100 * 86400)
	old := latest - 10*86400 // exactly one half-life back

	b := testBuilder(opts)
	edges := b.computeEdges([]models.Changeset{
		cs("old", old, 1, 2),
		cs("new", latest, 3, 4),
	})

	var oldEdge, newEdge *models.FileEdge
	for i := range edges {
		switch edges[i].Src {
		case 1:
			oldEdge = &edges[i]
		case 3:
			newEdge = &edges[i]
		}
	}
	if oldEdge == nil || newEdge == nil {
		t.Fatal("missing edges")
	}
	if math.Abs(newEdge.PairCount-1.0) > 1e-9 {
		t.Errorf("latest changeset must not decay: %f", newEdge.PairCount)
	}
	if math.Abs(oldEdge.PairCount-0.5) > 1e-9 {
		t.Errorf("one half-life back must weigh 0.5: %f", oldEdge.PairCount)
	}
}

func TestApplyTopKUnionSemantics(t *testing.T) {
	// Union of survivors, not intersection: an edge lives when it makes the
	// cut from either endpoint's perspective. {1,4} dies only because both 1
	// and 4 have something better; {1,3} survives through node 3 alone.
	edges := []models.FileEdge{
		{Src: 1, Dst: 2, Jaccard: 0.9},
		{Src: 1, Dst: 3, Jaccard: 0.5},
		{Src: 1, Dst: 4, Jaccard: 0.4},
		{Src: 4, Dst: 5, Jaccard: 0.6},
	}

	kept := applyTopK(edges, 1)

	want := map[[2]int64]bool{
		{1, 2}: true, // best for 1 and 2
		{1, 3}: true, // best for 3
		{4, 5}: true, // best for 4 and 5
	}
	if len(kept) != len(want) {
		t.Fatalf("kept %d edges: %+v", len(kept), kept)
	}
	for _, e := range kept {
		if !want[[2]int64{e.Src, e.Dst}] {
			t.Errorf("unexpected survivor %+v", e)
		}
	}
}

func TestTopKContainment(t *testing.T) {
	// A file with more than K incident edges contributes exactly its top K
	// to the union view.
	edges := []models.FileEdge{
		{Src: 1, Dst: 2, Jaccard: 0.9},
		{Src: 1, Dst: 3, Jaccard: 0.7},
		{Src: 1, Dst: 4, Jaccard: 0.5},
		{Src: 1, Dst: 5, Jaccard: 0.3},
	}

	kept := applyTopK(edges, 2)

	contributed := 0
	for _, e := range kept {
		if e.Jaccard >= 0.7 {
			contributed++
		}
	}
	if contributed != 2 {
		t.Errorf("file 1 must contribute exactly its top 2, got %d", contributed)
	}
	// The weaker edges may still survive through their other endpoint, for
	// which they are the only incident edge.
	if len(kept) != 4 {
		t.Errorf("leaf endpoints keep their only edge: got %d survivors", len(kept))
	}
}

func TestComponentOf(t *testing.T) {
	cases := []struct {
		path  string
		depth int
		want  string
	}{
		{"src/auth/a.py", 2, "src/auth"},
		{"src/api/x.py", 2, "src/api"},
		{"main.go", 2, "main.go"},
		{"a/b/c/d.go", 3, "a/b/c"},
	}
	for _, tc := range cases {
		if got := componentOf(tc.path, tc.depth); got != tc.want {
			t.Errorf("componentOf(%q, %d) = %q, want %q", tc.path, tc.depth, got, tc.want)
		}
	}
}

func TestPathEligible(t *testing.T) {
	opts := config.Default()
	opts.ExcludePaths = []string{"vendor/**"}
	opts.IncludeExtensions = []string{".go", "py"}

	b := testBuilder(opts)

	if !b.pathEligible("src/main.go") {
		t.Error("included extension rejected")
	}
	if !b.pathEligible("tools/run.py") {
		t.Error("extension without leading dot must still match")
	}
	if b.pathEligible("docs/readme.md") {
		t.Error("extension outside the include list accepted")
	}
	if b.pathEligible("vendor/lib/mod.go") {
		t.Error("excluded subtree accepted")
	}
}
