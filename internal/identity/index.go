package identity

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// Index owns the mapping from file path to stable entity id and the history
// of that mapping. A path currently bound to any entity is bound to exactly
// one.
//
// The extractor walks history newest-first, so a rename R old->new is seen
// before the commits that touched old. The index keeps a per-scan alias map
// (historical path -> id) so those older commits resolve to the transferred
// id instead of minting a duplicate entity; across runs the same resolution
// falls back to the persisted lineage table.
type Index struct {
	store  *storage.Store
	logger *logrus.Logger

	// aliases binds paths consumed as the old side of a rename during this
	// scan. Scoped to the run, never global.
	aliases map[string]int64
}

// New builds an index over the store.
func New(store *storage.Store, logger *logrus.Logger) *Index {
	return &Index{
		store:   store,
		logger:  logger,
		aliases: make(map[string]int64),
	}
}

// Using returns a view of the index bound to a different store handle
// (typically a transaction shadow), sharing the scan's alias state.
func (ix *Index) Using(store *storage.Store) *Index {
	return &Index{store: store, logger: ix.logger, aliases: ix.aliases}
}

// lookupCurrent finds the entity whose qualified name is path right now.
func (ix *Index) lookupCurrent(ctx context.Context, path string) (int64, bool, error) {
	entity, err := ix.store.GetEntityByQualifiedName(ctx, path)
	if err == storage.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return entity.ID, true, nil
}

// ResolveOrCreate returns the id bound to path, creating an entity atomically
// when the path is unknown. Historical aliases recorded by renames resolve to
// the canonical id.
func (ix *Index) ResolveOrCreate(ctx context.Context, path string) (int64, error) {
	if id, ok := ix.aliases[path]; ok {
		return id, nil
	}

	if id, ok, err := ix.lookupCurrent(ctx, path); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}

	// Incremental refresh: the alias map of the previous run survives as
	// lineage rows.
	if id, err := ix.store.LineageByPath(ctx, path); err == nil {
		ix.aliases[path] = id
		return id, nil
	} else if err != storage.ErrNotFound {
		return 0, err
	}

	return ix.store.GetOrCreateEntity(ctx, models.KindFile, filepath.Base(path), path, nil)
}

// Rename transfers the id from oldPath to newPath at commitOID.
//
// When no entity exists at oldPath the rename is treated as a creation at
// newPath, and oldPath is recorded as a historical alias so the (older)
// commits still to come bind to the same entity. When newPath is already
// bound to a different entity, the entity at oldPath is marked not-at-head,
// the existing target keeps its id, and a diagnostic is logged - rename
// collisions are not failures.
func (ix *Index) Rename(ctx context.Context, oldPath, newPath, commitOID string) (int64, error) {
	oldID, oldExists, err := ix.lookupCurrent(ctx, oldPath)
	if err != nil {
		return 0, err
	}

	if !oldExists {
		id, err := ix.ResolveOrCreate(ctx, newPath)
		if err != nil {
			return 0, err
		}
		// newPath became current at this commit; oldPath ceased here. The
		// start of the oldPath segment stays open until its creating commit
		// is reached.
		if err := ix.store.EnsureLineageStart(ctx, id, newPath, commitOID); err != nil {
			return 0, err
		}
		if err := ix.store.OpenLineageSegment(ctx, id, oldPath, "", commitOID); err != nil {
			return 0, err
		}
		ix.aliases[oldPath] = id
		return id, nil
	}

	targetID, targetExists, err := ix.lookupCurrent(ctx, newPath)
	if err != nil {
		return 0, err
	}

	if targetExists && targetID != oldID {
		// Complex rename chain: the target path already belongs to another
		// entity. Prefer it and retire the old one.
		ix.logger.WithFields(logrus.Fields{
			"old_path": oldPath,
			"new_path": newPath,
			"old_id":   oldID,
			"kept_id":  targetID,
			"commit":   commitOID,
		}).Debug("rename collision: target path already bound, keeping existing entity")

		if err := ix.store.MarkNotAtHead(ctx, oldID); err != nil {
			return 0, err
		}
		if err := ix.store.EnsureLineageStart(ctx, targetID, newPath, commitOID); err != nil {
			return 0, err
		}
		return targetID, nil
	}

	// Plain transfer: update the qualified name in place, close the old
	// path's segment, open the new one.
	if err := ix.store.UpdateEntityPath(ctx, oldID, newPath); err != nil {
		return 0, err
	}
	if err := ix.store.CloseLineageSegment(ctx, oldID, oldPath, commitOID); err != nil {
		return 0, err
	}
	if err := ix.store.EnsureLineageStart(ctx, oldID, newPath, commitOID); err != nil {
		return 0, err
	}
	ix.aliases[oldPath] = oldID
	return oldID, nil
}

// NoteAdd records that fileID's path was created at commitOID, filling the
// start of any lineage segment left open by a later rename.
func (ix *Index) NoteAdd(ctx context.Context, fileID int64, path, commitOID string) error {
	return ix.store.SetLineageStart(ctx, fileID, path, commitOID)
}

// MarkHead flips exists_at_head flags in bulk given the set of paths present
// at HEAD. Running it twice in a row produces identical flags.
func (ix *Index) MarkHead(ctx context.Context, currentPaths map[string]bool) error {
	return ix.store.UpdateHeadStatusBulk(ctx, models.KindFile, currentPaths)
}
