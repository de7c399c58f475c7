package cluster

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

func insightsFixture(t *testing.T) (*storage.Store, *storage.Columnar, []int64) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "code-intel.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	columnar, err := storage.NewColumnar(filepath.Join(dir, "columnar"))
	require.NoError(t, err)

	ctx := context.Background()

	var ids []int64
	for i, churn := range []int{10, 7, 2} {
		path := fmt.Sprintf("src/f%d.go", i+1)
		id, err := store.GetOrCreateEntity(ctx, models.KindFile, filepath.Base(path), path,
			&models.FileStats{TotalCommits: churn})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var commits storage.CommitColumns
	commits.Append(models.CommitRecord{OID: "c1", AuthorName: "Alice", AuthorEmail: "alice@x.com", Subject: "touch all"})
	commits.Append(models.CommitRecord{OID: "c2", AuthorName: "Bob", AuthorEmail: "bob@x.com", Subject: "touch two"})
	require.NoError(t, columnar.WriteCommits(&commits))

	var changes storage.ChangeColumns
	for _, id := range ids {
		changes.Append(models.ChangeRecord{CommitOID: "c1", FileID: id, Status: "M"})
	}
	changes.Append(models.ChangeRecord{CommitOID: "c2", FileID: ids[0], Status: "M"})
	changes.Append(models.ChangeRecord{CommitOID: "c2", FileID: ids[1], Status: "M"})
	require.NoError(t, columnar.WriteChanges(&changes))

	return store, columnar, ids
}

func TestCalculateInsights(t *testing.T) {
	store, columnar, ids := insightsFixture(t)
	ctx := context.Background()

	result := &Result{
		Algorithm:    "components",
		ClusterCount: 1,
		Clusters: []*Cluster{
			{ID: 1, Size: 3, FileIDs: ids},
		},
	}

	edges := []Edge{
		{Src: ids[0], Dst: ids[1], Weight: 0.8},
		{Src: ids[1], Dst: ids[2], Weight: 0.4},
	}

	require.NoError(t, CalculateInsights(ctx, store, columnar, result, edges))

	c := result.Clusters[0]
	require.Equal(t, 19, c.TotalChurn, "sum of member commit counts")
	require.InDelta(t, 0.6, c.AvgCoupling, 1e-9, "mean over intra-cluster edges")

	require.NotEmpty(t, c.HotFiles)
	require.Equal(t, "src/f1.go", c.HotFiles[0].Path, "highest-churn member first")

	require.NotEmpty(t, c.TopCommits)
	require.Equal(t, "c1", c.TopCommits[0].OID, "commit touching most members first")
	require.Equal(t, 3, c.TopCommits[0].FileCount)
	require.Equal(t, "Alice", c.TopCommits[0].Author)

	require.Len(t, c.CommonAuthors, 2)
	// Both authors touch the cluster once; tie broken by email.
	require.Equal(t, "alice@x.com", c.CommonAuthors[0].Email)
}

func TestCalculateInsightsSingleton(t *testing.T) {
	store, columnar, ids := insightsFixture(t)
	ctx := context.Background()

	result := &Result{
		Algorithm:    "components",
		ClusterCount: 1,
		Clusters:     []*Cluster{{ID: 1, Size: 1, FileIDs: ids[:1]}},
	}

	require.NoError(t, CalculateInsights(ctx, store, columnar, result, nil))
	require.Equal(t, 0.0, result.Clusters[0].AvgCoupling, "singletons have zero internal coupling")
}
