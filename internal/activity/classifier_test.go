package activity

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

func testStore(t *testing.T) (*storage.Store, *storage.Columnar) {
	t.Helper()
	dir := t.TempDir()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := storage.Open(filepath.Join(dir, "code-intel.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	columnar, err := storage.NewColumnar(filepath.Join(dir, "columnar"))
	require.NoError(t, err)

	return store, columnar
}

func TestMaterializeHotStableThresholds(t *testing.T) {
	store, columnar := testStore(t)
	ctx := context.Background()
	nowTS := int64(1_750_000_000)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	hotID, err := store.GetOrCreateEntity(ctx, models.KindFile, "hot.py", "src/hot.py", &models.FileStats{
		TotalCommits:  120,
		FirstCommitTS: nowTS - 400*86400,
		LastCommitTS:  nowTS - 2*86400,
	})
	require.NoError(t, err)

	stableID, err := store.GetOrCreateEntity(ctx, models.KindFile, "stable.py", "src/stable.py", &models.FileStats{
		TotalCommits:  10,
		FirstCommitTS: nowTS - 800*86400,
		LastCommitTS:  nowTS - 365*86400,
	})
	require.NoError(t, err)

	unknownID, err := store.GetOrCreateEntity(ctx, models.KindFile, "unknown.py", "src/unknown.py", &models.FileStats{})
	require.NoError(t, err)

	var changes storage.ChangeColumns
	for i := 0; i < 12; i++ {
		changes.Append(models.ChangeRecord{
			CommitOID: fmt.Sprintf("hot-30-%d", i),
			FileID:    hotID,
			Path:      "src/hot.py",
			Status:    "M",
			CommitTS:  nowTS - int64(i)*86400,
		})
	}
	for i := 0; i < 13; i++ {
		changes.Append(models.ChangeRecord{
			CommitOID: fmt.Sprintf("hot-90-%d", i),
			FileID:    hotID,
			Path:      "src/hot.py",
			Status:    "M",
			CommitTS:  nowTS - int64(31+i)*86400,
		})
	}
	changes.Append(models.ChangeRecord{
		CommitOID: "stable-old-0",
		FileID:    stableID,
		Path:      "src/stable.py",
		Status:    "M",
		CommitTS:  nowTS - 300*86400,
	})
	require.NoError(t, columnar.WriteChanges(&changes))

	thresholds, err := Materialize(ctx, store, columnar, logger, nowTS)
	require.NoError(t, err)

	require.GreaterOrEqual(t, thresholds.THot30, 3)
	require.GreaterOrEqual(t, thresholds.THot90, 6)
	require.GreaterOrEqual(t, thresholds.TStableDays, 180)
	require.Equal(t, 3, thresholds.FilesTotal)

	entities, err := store.AllFileEntities(ctx)
	require.NoError(t, err)
	statsByID := map[int64]models.FileStats{}
	for i := range entities {
		statsByID[entities[i].ID] = storage.FileStatsOf(&entities[i])
	}

	hot := statsByID[hotID]
	require.Equal(t, 12, hot.Commits30d)
	require.Equal(t, 25, hot.Commits90d)
	require.True(t, hot.IsHot)
	require.False(t, hot.IsStable)
	require.False(t, hot.IsUnknown)

	stable := statsByID[stableID]
	require.False(t, stable.IsHot)
	require.True(t, stable.IsStable)
	require.False(t, stable.IsUnknown)
	require.Equal(t, 0, stable.Commits90d)

	unknown := statsByID[unknownID]
	require.True(t, unknown.IsUnknown)
	require.False(t, unknown.IsHot)
	require.False(t, unknown.IsStable)

	// Thresholds are persisted as calibration data.
	var stored Thresholds
	require.NoError(t, store.GetRepoMeta(ctx, ThresholdsKey, &stored))
	require.Equal(t, thresholds.THot30, stored.THot30)
	require.Equal(t, 3, stored.FilesTotal)
}

// Exactly-one-classification: a file is hot, stable, unknown, or none.
func TestClassificationIsExclusive(t *testing.T) {
	store, columnar := testStore(t)
	ctx := context.Background()
	nowTS := int64(1_750_000_000)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	// Recently touched but not hot: neither hot nor stable.
	_, err := store.GetOrCreateEntity(ctx, models.KindFile, "warm.py", "src/warm.py", &models.FileStats{
		TotalCommits:  5,
		FirstCommitTS: nowTS - 100*86400,
		LastCommitTS:  nowTS - 5*86400,
	})
	require.NoError(t, err)

	var changes storage.ChangeColumns
	changes.Append(models.ChangeRecord{
		CommitOID: "warm-1", FileID: 1, Path: "src/warm.py", Status: "M", CommitTS: nowTS - 5*86400,
	})
	require.NoError(t, columnar.WriteChanges(&changes))

	_, err = Materialize(ctx, store, columnar, logger, nowTS)
	require.NoError(t, err)

	entities, err := store.AllFileEntities(ctx)
	require.NoError(t, err)
	stats := storage.FileStatsOf(&entities[0])

	flags := 0
	for _, f := range []bool{stats.IsHot, stats.IsStable, stats.IsUnknown} {
		if f {
			flags++
		}
	}
	require.LessOrEqual(t, flags, 1)
	require.False(t, stats.IsHot)
	require.False(t, stats.IsStable)
}

func TestPercentile(t *testing.T) {
	require.Equal(t, 0, percentile(nil, 0.75))
	require.Equal(t, 12, percentile([]int{12}, 0.75))
	require.Equal(t, 3, percentile([]int{1, 2, 3, 4}, 0.75))
	require.Equal(t, 4, percentile([]int{4, 2, 3, 1, 4}, 0.75))
}
