package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

const (
	commitC1 = "1111111111111111111111111111111111111111"
	commitC2 = "2222222222222222222222222222222222222222"
	commitC3 = "3333333333333333333333333333333333333333"
)

func testIndex(t *testing.T) (*Index, *storage.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := storage.Open(filepath.Join(t.TempDir(), "code-intel.sqlite"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(store, logger), store
}

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	ix, _ := testIndex(t)
	ctx := context.Background()

	first, err := ix.ResolveOrCreate(ctx, "src/a.py")
	require.NoError(t, err)
	second, err := ix.ResolveOrCreate(ctx, "src/a.py")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := ix.ResolveOrCreate(ctx, "src/b.py")
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

// Newest-first scan of: C1 adds src/a.py; C2 renames it to src/core/a.py.
// One entity spans both paths, with the lineage of the original scenario.
func TestRenameIdentityPreservedAcrossNewestFirstScan(t *testing.T) {
	ix, store := testIndex(t)
	ctx := context.Background()

	// C2 arrives first: rename with no entity at the old path yet.
	renamedID, err := ix.Rename(ctx, "src/a.py", "src/core/a.py", commitC2)
	require.NoError(t, err)

	// C1 arrives later: the add of the old path resolves to the same id.
	addedID, err := ix.ResolveOrCreate(ctx, "src/a.py")
	require.NoError(t, err)
	require.Equal(t, renamedID, addedID, "rename must transfer identity to older commits")
	require.NoError(t, ix.NoteAdd(ctx, addedID, "src/a.py", commitC1))

	entity, err := store.GetEntityByQualifiedName(ctx, "src/core/a.py")
	require.NoError(t, err)
	require.Equal(t, renamedID, entity.ID)

	// No stray entity remains at the historical path.
	_, err = store.GetEntityByQualifiedName(ctx, "src/a.py")
	require.ErrorIs(t, err, storage.ErrNotFound)

	segments, err := store.Lineage(ctx, renamedID)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	byPath := map[string]models.LineageSegment{}
	for _, seg := range segments {
		byPath[seg.Path] = seg
	}
	require.Equal(t, commitC2, byPath["src/core/a.py"].StartOID)
	require.Empty(t, byPath["src/core/a.py"].EndOID, "current segment stays open")
	require.Equal(t, commitC1, byPath["src/a.py"].StartOID)
	require.Equal(t, commitC2, byPath["src/a.py"].EndOID)
}

// Ascending-order rename: entity exists at the old path, target is free.
func TestRenameTransfersInPlace(t *testing.T) {
	ix, store := testIndex(t)
	ctx := context.Background()

	id, err := ix.ResolveOrCreate(ctx, "lib/util.go")
	require.NoError(t, err)

	movedID, err := ix.Rename(ctx, "lib/util.go", "lib/strings/util.go", commitC2)
	require.NoError(t, err)
	require.Equal(t, id, movedID)

	entity, err := store.GetEntityByQualifiedName(ctx, "lib/strings/util.go")
	require.NoError(t, err)
	require.Equal(t, id, entity.ID)
	require.Equal(t, "util.go", entity.Name)
}

// Target path already bound to a different entity: keep the target, mark the
// old entity not-at-head. A collision is a diagnostic, not a failure.
func TestRenameCollisionPrefersExistingTarget(t *testing.T) {
	ix, store := testIndex(t)
	ctx := context.Background()

	oldID, err := ix.ResolveOrCreate(ctx, "src/old.go")
	require.NoError(t, err)
	targetID, err := ix.ResolveOrCreate(ctx, "src/new.go")
	require.NoError(t, err)
	require.NotEqual(t, oldID, targetID)

	keptID, err := ix.Rename(ctx, "src/old.go", "src/new.go", commitC3)
	require.NoError(t, err)
	require.Equal(t, targetID, keptID)

	entity, err := store.GetEntityByQualifiedName(ctx, "src/old.go")
	require.NoError(t, err)
	require.False(t, entity.ExistsAtHead, "collided entity must be marked not-at-head")
}

// Running head sync twice in succession produces identical flags.
func TestMarkHeadIdempotence(t *testing.T) {
	ix, store := testIndex(t)
	ctx := context.Background()

	_, err := ix.ResolveOrCreate(ctx, "src/kept.go")
	require.NoError(t, err)
	_, err = ix.ResolveOrCreate(ctx, "src/deleted.go")
	require.NoError(t, err)

	headPaths := map[string]bool{"src/kept.go": true}

	snapshot := func() map[string]bool {
		entities, err := store.AllFileEntities(ctx)
		require.NoError(t, err)
		flags := map[string]bool{}
		for _, e := range entities {
			flags[e.QualifiedName] = e.ExistsAtHead
		}
		return flags
	}

	require.NoError(t, ix.MarkHead(ctx, headPaths))
	first := snapshot()
	require.True(t, first["src/kept.go"])
	require.False(t, first["src/deleted.go"])

	require.NoError(t, ix.MarkHead(ctx, headPaths))
	require.Equal(t, first, snapshot())
}

// A chain of renames across one scan keeps a single identity.
func TestRenameChain(t *testing.T) {
	ix, _ := testIndex(t)
	ctx := context.Background()

	// Newest first: C3 renames b->c, C2 renames a->b, C1 adds a.
	id3, err := ix.Rename(ctx, "b.go", "c.go", commitC3)
	require.NoError(t, err)
	id2, err := ix.Rename(ctx, "a.go", "b.go", commitC2)
	require.NoError(t, err)
	require.Equal(t, id3, id2)

	id1, err := ix.ResolveOrCreate(ctx, "a.go")
	require.NoError(t, err)
	require.Equal(t, id3, id1)
}
