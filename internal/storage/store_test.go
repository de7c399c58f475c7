package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/lfca/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := Open(filepath.Join(t.TempDir(), "code-intel.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetOrCreateEntityIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateEntity(ctx, models.KindFile, "a.go", "src/a.go", nil)
	require.NoError(t, err)
	second, err := store.GetOrCreateEntity(ctx, models.KindFile, "a.go", "src/a.go", nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEntityStatsRoundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.GetOrCreateEntity(ctx, models.KindFile, "a.go", "src/a.go", &models.FileStats{TotalCommits: 3})
	require.NoError(t, err)

	entity, err := store.GetEntityByQualifiedName(ctx, "src/a.go")
	require.NoError(t, err)
	require.Equal(t, 3, FileStatsOf(entity).TotalCommits)

	stats := FileStatsOf(entity)
	stats.TotalCommits = 9
	stats.IsHot = true
	require.NoError(t, store.UpdateEntityStats(ctx, id, &stats))

	entity, err = store.GetEntityByQualifiedName(ctx, "src/a.go")
	require.NoError(t, err)
	reloaded := FileStatsOf(entity)
	require.Equal(t, 9, reloaded.TotalCommits)
	require.True(t, reloaded.IsHot)
}

func TestWithTxRollsBackAsUnit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(txs *Store) error {
		if _, err := txs.GetOrCreateEntity(ctx, models.KindFile, "x.go", "src/x.go", nil); err != nil {
			return err
		}
		return context.Canceled // abort the batch
	})
	require.Error(t, err)

	_, err = store.GetEntityByQualifiedName(ctx, "src/x.go")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGitEdgesUpsertIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	srcID, err := store.GetOrCreateEntity(ctx, models.KindFile, "a.go", "src/a.go", nil)
	require.NoError(t, err)
	dstID, err := store.GetOrCreateEntity(ctx, models.KindFile, "b.go", "src/b.go", nil)
	require.NoError(t, err)

	edge := models.FileEdge{
		Src: srcID, Dst: dstID,
		PairCount: 2.0, PairCountRaw: 2,
		SrcCount: 2, DstCount: 2,
		SrcWeight: 2.0, DstWeight: 2.0,
		Jaccard: 1.0, JaccardWeighted: 1.0,
		ProbDstGivenSrc: 1.0, ProbSrcGivenDst: 1.0,
	}

	require.NoError(t, store.UpsertGitEdges(ctx, []models.FileEdge{edge}))

	// Replace by primary key, not duplicate.
	edge.Jaccard = 0.5
	require.NoError(t, store.UpsertGitEdges(ctx, []models.FileEdge{edge}))

	edges, err := store.GitEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, 0.5, edges[0].Jaccard)
}

func TestReplaceGitRelationships(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	srcID, _ := store.GetOrCreateEntity(ctx, models.KindFile, "a.go", "src/a.go", nil)
	dstID, _ := store.GetOrCreateEntity(ctx, models.KindFile, "b.go", "src/b.go", nil)

	rel := models.Relationship{
		SourceType:  models.SourceGit,
		RelKind:     models.RelCoChanged,
		SrcEntityID: srcID,
		DstEntityID: dstID,
		Weight:      0.8,
	}
	require.NoError(t, store.ReplaceGitRelationships(ctx, []models.Relationship{rel}))
	require.NoError(t, store.ReplaceGitRelationships(ctx, []models.Relationship{rel}))

	rels, err := store.GitRelationships(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1, "replace-by-provenance keeps rebuilds idempotent")
}

func TestComponentEdgesKeyedByDepth(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	edge := models.ComponentEdge{
		SrcComponent: "src/api", DstComponent: "src/auth",
		Depth: 2, PairCount: 3.0, AvgJaccard: 0.3, FilePairCount: 1,
	}
	require.NoError(t, store.UpsertComponentEdges(ctx, []models.ComponentEdge{edge}))

	edge.Depth = 3
	require.NoError(t, store.UpsertComponentEdges(ctx, []models.ComponentEdge{edge}))

	atTwo, err := store.ComponentEdges(ctx, 2)
	require.NoError(t, err)
	require.Len(t, atTwo, 1)

	atThree, err := store.ComponentEdges(ctx, 3)
	require.NoError(t, err)
	require.Len(t, atThree, 1)
}

func TestTaskLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTask(ctx, "task-1", "git", "{}"))

	row, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, models.TaskPending, row.State)

	progress := 0.5
	entities := 42
	require.NoError(t, store.UpdateTask(ctx, "task-1", models.TaskRunning, TaskUpdate{
		Progress:    &progress,
		Stage:       "extracting_history",
		EntityCount: &entities,
		Metrics:     map[string]interface{}{"processed_commits": 100},
	}))

	row, err = store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, models.TaskRunning, row.State)
	require.Equal(t, 0.5, row.Progress)
	require.Equal(t, "extracting_history", row.Stage)
	require.Equal(t, 42, row.EntityCount)
	require.Contains(t, row.MetricsJSON, "processed_commits")

	require.NoError(t, store.UpdateTask(ctx, "task-1", models.TaskFailed, TaskUpdate{
		Error: "cancelled: context canceled",
	}))
	row, err = store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, models.TaskFailed, row.State)
	require.Contains(t, row.Error, "cancelled:")

	latest, err := store.LatestTask(ctx, "git")
	require.NoError(t, err)
	require.Equal(t, "task-1", latest.ID)
}

func TestRepoMetaReplaceByKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetRepoMeta(ctx, "summary_stats", models.RepoSummary{CommitCount: 1}))
	require.NoError(t, store.SetRepoMeta(ctx, "summary_stats", models.RepoSummary{CommitCount: 2}))

	var summary models.RepoSummary
	require.NoError(t, store.GetRepoMeta(ctx, "summary_stats", &summary))
	require.Equal(t, 2, summary.CommitCount)

	require.ErrorIs(t, store.GetRepoMeta(ctx, "missing", &summary), ErrNotFound)
}

func TestValidationLogBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	issues := []models.ValidationIssue{
		{Type: models.IssueInvalidStatus, Severity: models.SeverityWarning, Message: "bad status"},
		{Type: models.IssueInvalidCommitOID, Severity: models.SeverityError, Message: "bad oid"},
	}
	require.NoError(t, store.RecordValidationIssues(ctx, "run-1", issues))

	var count int
	require.NoError(t, store.DB().Get(&count, "SELECT COUNT(*) FROM validation_log WHERE run_id = ?", "run-1"))
	require.Equal(t, 2, count)
}
