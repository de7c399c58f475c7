package edges

import (
	"context"
	"encoding/json"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/lfca/internal/changeset"
	"github.com/rohankatakam/lfca/internal/config"
	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// Builder consumes changesets and produces file-level coupling edges, then
// aggregates them to component edges.
type Builder struct {
	store    *storage.Store
	columnar *storage.Columnar
	opts     *config.Options
	logger   *logrus.Logger
	runID    string
}

// New builds an edge builder over the artifact store.
func New(store *storage.Store, columnar *storage.Columnar, opts *config.Options, logger *logrus.Logger, runID string) *Builder {
	return &Builder{store: store, columnar: columnar, opts: opts, logger: logger, runID: runID}
}

type pairKey struct {
	a, b int64
}

// Build computes and persists the edge set. Returns the retained edge count.
func (b *Builder) Build(ctx context.Context) (int, error) {
	commitCols, err := b.columnar.ReadCommits()
	if err != nil {
		return 0, lfcaerrors.DatabaseError(err, "read commits table")
	}
	changeCols, err := b.columnar.ReadChanges()
	if err != nil {
		return 0, lfcaerrors.DatabaseError(err, "read changes table")
	}

	commits := make([]models.CommitRecord, 0, commitCols.Len())
	for i := 0; i < commitCols.Len(); i++ {
		record := commitCols.Row(i)
		if record.IsMerge && b.opts.SkipMergeCommits {
			continue
		}
		commits = append(commits, record)
	}

	changes := make([]models.ChangeRecord, 0, changeCols.Len())
	for i := 0; i < changeCols.Len(); i++ {
		record := changeCols.Row(i)
		if !b.pathEligible(record.Path) {
			continue
		}
		changes = append(changes, record)
	}

	b.logger.WithFields(logrus.Fields{
		"commits": len(commits),
		"changes": len(changes),
	}).Info("Building coupling edges")

	changesets, err := changeset.Group(commits, changes, b.opts)
	if err != nil {
		return 0, err
	}

	edges := b.computeEdges(changesets)

	if b.opts.TopKEdgesPerFile > 0 {
		edges = applyTopK(edges, b.opts.TopKEdgesPerFile)
	}

	if err := b.persist(ctx, edges); err != nil {
		return 0, err
	}

	if err := b.buildComponentEdges(ctx, edges); err != nil {
		return 0, err
	}

	b.logger.WithField("edges", len(edges)).Info("Stored coupling edges")
	return len(edges), nil
}

// pathEligible applies the include/exclude glob and extension filters.
func (b *Builder) pathEligible(p string) bool {
	if len(b.opts.IncludeExtensions) > 0 {
		if !matchExtension(p, b.opts.IncludeExtensions) {
			return false
		}
	}
	if matchExtension(p, b.opts.ExcludeExtensions) {
		return false
	}
	if len(b.opts.IncludePaths) > 0 {
		if !matchAnyGlob(p, b.opts.IncludePaths) {
			return false
		}
	}
	if matchAnyGlob(p, b.opts.ExcludePaths) {
		return false
	}
	return true
}

func matchExtension(p string, extensions []string) bool {
	if len(extensions) == 0 {
		return false
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func matchAnyGlob(p string, globs []string) bool {
	for _, g := range globs {
		if ok, err := path.Match(g, p); err == nil && ok {
			return true
		}
		// Directory prefixes double as globs: "src/" or "src/**" covers the
		// whole subtree.
		prefix := strings.TrimSuffix(strings.TrimSuffix(g, "**"), "/")
		if prefix != "" && prefix != g && strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// computeEdges counts pairs across the changesets and derives the metric set
// for every retained pair.
func (b *Builder) computeEdges(changesets []models.Changeset) []models.FileEdge {
	pairWeighted := make(map[pairKey]float64)
	pairRaw := make(map[pairKey]int)
	fileCounts := make(map[int64]int)
	fileWeights := make(map[int64]float64)

	var latestTS int64
	for _, cs := range changesets {
		if cs.Timestamp > latestTS {
			latestTS = cs.Timestamp
		}
	}

	for _, cs := range changesets {
		fileIDs := append([]int64(nil), cs.FileIDs...)
		sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

		if len(fileIDs) < 2 {
			continue
		}

		weight := cs.Weight

		// Oversized changesets either vanished at grouping (exclude) or get
		// downweighted here.
		if b.opts.MaxChangesetSize > 0 && len(fileIDs) > b.opts.MaxChangesetSize {
			if b.opts.BulkPolicy == config.BulkExclude {
				continue
			}
			weight *= 1.0 / math.Log(1.0+float64(len(fileIDs)))
		}

		if b.opts.DecayHalfLifeDays > 0 && latestTS > 0 && cs.Timestamp > 0 {
			ageDays := math.Max(0, float64(latestTS-cs.Timestamp)/86400.0)
			weight *= math.Pow(0.5, ageDays/float64(b.opts.DecayHalfLifeDays))
		}

		for i := 0; i < len(fileIDs); i++ {
			for j := i + 1; j < len(fileIDs); j++ {
				key := pairKey{fileIDs[i], fileIDs[j]}
				pairWeighted[key] += weight
				pairRaw[key]++
			}
		}

		for _, id := range fileIDs {
			fileCounts[id]++
			fileWeights[id] += weight
		}
	}

	b.logger.WithField("pairs", len(pairWeighted)).Info("Counted file pairs")

	minRevisions := b.opts.MinRevisions
	if minRevisions < 1 {
		minRevisions = 1
	}
	minCooc := b.opts.MinCooccurrence

	var edges []models.FileEdge
	for key, weighted := range pairWeighted {
		raw := pairRaw[key]
		if raw < minCooc {
			continue
		}
		if fileCounts[key.a] < minRevisions || fileCounts[key.b] < minRevisions {
			continue
		}

		srcCount := fileCounts[key.a]
		dstCount := fileCounts[key.b]
		srcWeight := fileWeights[key.a]
		dstWeight := fileWeights[key.b]

		// Jaccard and conditional probabilities are computed on raw counts.
		var jaccard float64
		if denom := float64(srcCount + dstCount - raw); denom > 0 {
			jaccard = float64(raw) / denom
		}

		var jaccardWeighted float64
		if denomW := srcWeight + dstWeight - weighted; denomW > 0 {
			jaccardWeighted = weighted / denomW
		}

		var pDstGivenSrc, pSrcGivenDst float64
		if srcCount > 0 {
			pDstGivenSrc = float64(raw) / float64(srcCount)
		}
		if dstCount > 0 {
			pSrcGivenDst = float64(raw) / float64(dstCount)
		}

		edges = append(edges, models.FileEdge{
			Src:             key.a,
			Dst:             key.b,
			PairCount:       weighted,
			PairCountRaw:    raw,
			SrcCount:        srcCount,
			DstCount:        dstCount,
			SrcWeight:       srcWeight,
			DstWeight:       dstWeight,
			Jaccard:         jaccard,
			JaccardWeighted: jaccardWeighted,
			ProbDstGivenSrc: pDstGivenSrc,
			ProbSrcGivenDst: pSrcGivenDst,
		})
	}

	b.logger.WithField("pairs", len(edges)).Info("Pairs after filtering")
	return edges
}

// applyTopK keeps, for each file, its top K incident edges by Jaccard. An
// edge survives when it makes the cut from either endpoint's perspective.
func applyTopK(edges []models.FileEdge, k int) []models.FileEdge {
	byFile := make(map[int64][]models.FileEdge)
	for _, e := range edges {
		byFile[e.Src] = append(byFile[e.Src], e)
		byFile[e.Dst] = append(byFile[e.Dst], e)
	}

	kept := make(map[pairKey]bool)
	for _, fileEdges := range byFile {
		sort.Slice(fileEdges, func(i, j int) bool {
			if fileEdges[i].Jaccard != fileEdges[j].Jaccard {
				return fileEdges[i].Jaccard > fileEdges[j].Jaccard
			}
			// Stable order for equal weights.
			if fileEdges[i].Src != fileEdges[j].Src {
				return fileEdges[i].Src < fileEdges[j].Src
			}
			return fileEdges[i].Dst < fileEdges[j].Dst
		})
		limit := k
		if limit > len(fileEdges) {
			limit = len(fileEdges)
		}
		for _, e := range fileEdges[:limit] {
			kept[pairKey{e.Src, e.Dst}] = true
		}
	}

	result := make([]models.FileEdge, 0, len(kept))
	for _, e := range edges {
		if kept[pairKey{e.Src, e.Dst}] {
			result = append(result, e)
		}
	}
	return result
}

// persist writes the edges into the unified relationship table and the
// detailed edge table.
func (b *Builder) persist(ctx context.Context, edges []models.FileEdge) error {
	rels := make([]models.Relationship, 0, len(edges))
	for _, e := range edges {
		props, err := json.Marshal(map[string]interface{}{
			"pair_count":       e.PairCount,
			"pair_count_raw":   e.PairCountRaw,
			"src_count":        e.SrcCount,
			"dst_count":        e.DstCount,
			"jaccard_weighted": e.JaccardWeighted,
			"p_dst_given_src":  e.ProbDstGivenSrc,
			"p_src_given_dst":  e.ProbSrcGivenDst,
		})
		if err != nil {
			return err
		}
		rels = append(rels, models.Relationship{
			SourceType:     models.SourceGit,
			RelKind:        models.RelCoChanged,
			SrcEntityID:    e.Src,
			DstEntityID:    e.Dst,
			Weight:         e.Jaccard,
			PropertiesJSON: string(props),
			RunID:          b.runID,
		})
	}

	if err := b.store.ReplaceGitRelationships(ctx, rels); err != nil {
		return lfcaerrors.DatabaseError(err, "store relationships")
	}
	if err := b.store.ClearGitEdges(ctx); err != nil {
		return lfcaerrors.DatabaseError(err, "clear edge table")
	}
	if err := b.store.UpsertGitEdges(ctx, edges); err != nil {
		return lfcaerrors.DatabaseError(err, "store detailed edges")
	}
	return nil
}

// componentOf returns the first depth path segments joined by '/'; paths
// shallower than depth are their own component.
func componentOf(p string, depth int) string {
	parts := strings.Split(p, "/")
	if len(parts) > depth {
		return strings.Join(parts[:depth], "/")
	}
	return p
}

// buildComponentEdges aggregates the retained file edges to folder prefixes
// at the configured depth.
func (b *Builder) buildComponentEdges(ctx context.Context, edges []models.FileEdge) error {
	depth := b.opts.ComponentDepth

	idSet := make(map[int64]bool)
	for _, e := range edges {
		idSet[e.Src] = true
		idSet[e.Dst] = true
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	entities, err := b.store.EntitiesByID(ctx, ids)
	if err != nil {
		return lfcaerrors.DatabaseError(err, "load entities for component aggregation")
	}

	fileToComp := make(map[int64]string, len(entities))
	for id, entity := range entities {
		if entity.QualifiedName != "" {
			fileToComp[id] = componentOf(entity.QualifiedName, depth)
		}
	}

	type compAgg struct {
		pairCount  float64
		jaccardSum float64
		filePairs  int
	}
	compEdges := make(map[[2]string]*compAgg)

	for _, e := range edges {
		srcComp, okSrc := fileToComp[e.Src]
		dstComp, okDst := fileToComp[e.Dst]
		if !okSrc || !okDst || srcComp == dstComp {
			continue
		}
		key := [2]string{srcComp, dstComp}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		agg, ok := compEdges[key]
		if !ok {
			agg = &compAgg{}
			compEdges[key] = agg
		}
		agg.pairCount += e.PairCount
		agg.jaccardSum += e.Jaccard
		agg.filePairs++
	}

	minCooc := float64(b.opts.MinComponentCooccurrence)
	if minCooc < 1 {
		minCooc = 1
	}

	var result []models.ComponentEdge
	for key, agg := range compEdges {
		if agg.pairCount < minCooc {
			continue
		}
		avgJaccard := 0.0
		if agg.filePairs > 0 {
			avgJaccard = agg.jaccardSum / float64(agg.filePairs)
		}
		result = append(result, models.ComponentEdge{
			SrcComponent:  key[0],
			DstComponent:  key[1],
			Depth:         depth,
			PairCount:     agg.pairCount,
			AvgJaccard:    avgJaccard,
			FilePairCount: agg.filePairs,
		})
	}

	if err := b.store.UpsertComponentEdges(ctx, result); err != nil {
		return lfcaerrors.DatabaseError(err, "store component edges")
	}
	return nil
}
