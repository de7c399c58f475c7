package cluster

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// Engine runs clustering algorithms over the file edges already persisted by
// the edge builder.
type Engine struct {
	store    *storage.Store
	columnar *storage.Columnar
	logger   *logrus.Logger
}

// NewEngine builds a clustering engine over the artifact store.
func NewEngine(store *storage.Store, columnar *storage.Columnar, logger *logrus.Logger) *Engine {
	return &Engine{store: store, columnar: columnar, logger: logger}
}

// RunOptions scope one clustering run.
type RunOptions struct {
	// Folders restricts the node universe to files under any of the given
	// folder prefixes. Empty means all files at HEAD.
	Folders []string
	// WeightColumn selects the edge weight: jaccard (default),
	// jaccard_weighted, or pair_count.
	WeightColumn string
	// WithInsights enables the insight pass after partitioning.
	WithInsights bool
}

// loadGraph assembles the clustering input from the store.
func (e *Engine) loadGraph(ctx context.Context, opts RunOptions) (*Graph, error) {
	entities, err := e.store.EntitiesAtHead(ctx, models.KindFile)
	if err != nil {
		return nil, lfcaerrors.DatabaseError(err, "load file universe")
	}

	paths := make(map[int64]string)
	var nodes []int64
	for _, entity := range entities {
		if len(opts.Folders) > 0 && !underAnyFolder(entity.QualifiedName, opts.Folders) {
			continue
		}
		nodes = append(nodes, entity.ID)
		paths[entity.ID] = entity.QualifiedName
	}

	fileEdges, err := e.store.GitEdges(ctx)
	if err != nil {
		return nil, lfcaerrors.DatabaseError(err, "load edge table")
	}

	inUniverse := make(map[int64]bool, len(nodes))
	for _, id := range nodes {
		inUniverse[id] = true
	}

	var edges []Edge
	for _, fe := range fileEdges {
		if !inUniverse[fe.Src] || !inUniverse[fe.Dst] {
			continue
		}
		edges = append(edges, Edge{
			Src:    fe.Src,
			Dst:    fe.Dst,
			Weight: edgeWeight(fe, opts.WeightColumn),
		})
	}

	return &Graph{Nodes: nodes, Edges: edges, Paths: paths}, nil
}

func edgeWeight(e models.FileEdge, column string) float64 {
	switch column {
	case "", "jaccard":
		return e.Jaccard
	case "jaccard_weighted":
		return e.JaccardWeighted
	case "pair_count":
		return e.PairCount
	default:
		return e.Jaccard
	}
}

func underAnyFolder(path string, folders []string) bool {
	for _, folder := range folders {
		prefix := strings.TrimSuffix(folder, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// Run executes the named algorithm over the persisted edge set and
// optionally enriches the result with cluster insights.
func (e *Engine) Run(ctx context.Context, algorithm string, params Params, opts RunOptions) (*Result, error) {
	algo, err := Get(algorithm)
	if err != nil {
		return nil, err
	}

	graph, err := e.loadGraph(ctx, opts)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"algorithm": algorithm,
		"nodes":     len(graph.Nodes),
		"edges":     len(graph.Edges),
	}).Info("Running clustering")

	result, err := algo.Run(graph, params)
	if err != nil {
		return nil, err
	}

	if opts.WithInsights {
		// The loaded edge list doubles as the insight cache.
		if err := CalculateInsights(ctx, e.store, e.columnar, result, graph.Edges); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// SaveSnapshot persists a cluster result under a fresh opaque id: the blob in
// the snapshot store, the metadata row in the relational store.
func (e *Engine) SaveSnapshot(ctx context.Context, snapshots *storage.SnapshotStore, name string, tags []string, result *Result) (string, error) {
	id := uuid.NewString()
	if err := snapshots.Save(id, result); err != nil {
		return "", err
	}
	if err := e.store.RecordSnapshot(ctx, id, name, result.Algorithm, tags); err != nil {
		return "", err
	}
	return id, nil
}
