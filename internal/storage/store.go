package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/lfca/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = sql.ErrNoRows

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx, letting every store
// method run either on the pool or inside an open transaction.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error)
}

// Store is the relational half of the artifact store: entities,
// relationships, detailed edges, component edges, lineage, tasks, validation
// log, repo metadata. One store per repo; single writer.
type Store struct {
	q      queryer
	db     *sqlx.DB
	logger *logrus.Logger
}

// Open connects to the sqlite file at path, applying the WAL pragmas and
// initializing the schema.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// _txlock=immediate makes every write transaction take the write lock up
	// front, so a commit's changes abort or land as a unit.
	db, err := sqlx.Connect("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL gives readers snapshot semantics against the single writer.
	db.Exec("PRAGMA journal_mode = WAL")
	db.Exec("PRAGMA synchronous = NORMAL")
	db.Exec("PRAGMA foreign_keys = ON")

	store := &Store{q: db, db: db, logger: logger}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	var current int
	var value string
	if err := s.db.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&value); err == nil {
		current, _ = strconv.Atoi(value)
	}

	if current < SchemaVersion {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
		if _, err := s.db.Exec(
			"INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)",
			strconv.Itoa(SchemaVersion)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only queries by sibling packages.
func (s *Store) DB() *sqlx.DB { return s.db }

// WithTx runs fn against a shadow store bound to one immediate transaction.
// Any error rolls the whole batch back.
func (s *Store) WithTx(ctx context.Context, fn func(txStore *Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	shadow := &Store{q: tx, db: s.db, logger: s.logger}
	if err := fn(shadow); err != nil {
		return err
	}
	return tx.Commit()
}

// === Entity operations ===

// GetOrCreateEntity returns the entity id for qualifiedName, creating the
// entity when unknown. Creation is get-or-create by qualified name, which
// makes re-runs idempotent.
func (s *Store) GetOrCreateEntity(ctx context.Context, kind, name, qualifiedName string, metadata *models.FileStats) (int64, error) {
	var id int64
	err := s.q.GetContext(ctx, &id,
		"SELECT entity_id FROM entities WHERE qualified_name = ?", qualifiedName)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	var metaJSON interface{}
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal entity metadata: %w", err)
		}
		metaJSON = string(data)
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO entities (kind, name, qualified_name, metadata_json)
		VALUES (?, ?, ?, ?)
	`, kind, name, qualifiedName, metaJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetEntityByQualifiedName returns the entity bound to qualifiedName, or
// ErrNotFound.
func (s *Store) GetEntityByQualifiedName(ctx context.Context, qualifiedName string) (*models.Entity, error) {
	var e models.Entity
	err := s.q.GetContext(ctx, &e, `
		SELECT entity_id, kind, name, qualified_name, COALESCE(language, '') AS language,
		       parent_id, exists_at_head, COALESCE(metadata_json, '') AS metadata_json,
		       created_at, updated_at
		FROM entities WHERE qualified_name = ? LIMIT 1
	`, qualifiedName)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEntityPath renames an entity in place, preserving its id.
func (s *Store) UpdateEntityPath(ctx context.Context, entityID int64, newPath string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE entities
		SET qualified_name = ?, name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE entity_id = ?
	`, newPath, filepath.Base(newPath), entityID)
	return err
}

// MarkNotAtHead flags a single entity as absent from HEAD.
func (s *Store) MarkNotAtHead(ctx context.Context, entityID int64) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE entities SET exists_at_head = FALSE, updated_at = CURRENT_TIMESTAMP WHERE entity_id = ?",
		entityID)
	return err
}

// UpdateHeadStatusBulk flips exists_at_head for all entities of the kind:
// true for qualified names in currentPaths, false otherwise. Idempotent.
func (s *Store) UpdateHeadStatusBulk(ctx context.Context, kind string, currentPaths map[string]bool) error {
	return s.WithTx(ctx, func(txs *Store) error {
		if _, err := txs.q.ExecContext(ctx,
			"UPDATE entities SET exists_at_head = FALSE WHERE kind = ?", kind); err != nil {
			return err
		}
		stmt, err := txs.q.PreparexContext(ctx,
			"UPDATE entities SET exists_at_head = TRUE WHERE kind = ? AND qualified_name = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for path := range currentPaths {
			if _, err := stmt.ExecContext(ctx, kind, path); err != nil {
				return err
			}
		}
		return nil
	})
}

// EntitiesAtHead returns all entities of the kind that exist at HEAD, ordered
// by qualified name.
func (s *Store) EntitiesAtHead(ctx context.Context, kind string) ([]models.Entity, error) {
	var entities []models.Entity
	err := s.q.SelectContext(ctx, &entities, `
		SELECT entity_id, kind, name, qualified_name, COALESCE(language, '') AS language,
		       parent_id, exists_at_head, COALESCE(metadata_json, '') AS metadata_json,
		       created_at, updated_at
		FROM entities
		WHERE exists_at_head = TRUE AND kind = ?
		ORDER BY qualified_name
	`, kind)
	return entities, err
}

// AllFileEntities returns every file entity regardless of head status.
func (s *Store) AllFileEntities(ctx context.Context) ([]models.Entity, error) {
	var entities []models.Entity
	err := s.q.SelectContext(ctx, &entities, `
		SELECT entity_id, kind, name, qualified_name, COALESCE(language, '') AS language,
		       parent_id, exists_at_head, COALESCE(metadata_json, '') AS metadata_json,
		       created_at, updated_at
		FROM entities WHERE kind = ? ORDER BY entity_id
	`, models.KindFile)
	return entities, err
}

// EntitiesByID returns the requested entities keyed by id.
func (s *Store) EntitiesByID(ctx context.Context, ids []int64) (map[int64]models.Entity, error) {
	result := make(map[int64]models.Entity, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT entity_id, kind, name, qualified_name, COALESCE(language, '') AS language,
		       parent_id, exists_at_head, COALESCE(metadata_json, '') AS metadata_json,
		       created_at, updated_at
		FROM entities WHERE entity_id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}

	var entities []models.Entity
	if err := s.q.SelectContext(ctx, &entities, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, e := range entities {
		result[e.ID] = e
	}
	return result, nil
}

// FileStatsOf decodes an entity's metadata blob. Missing blobs decode to the
// zero value.
func FileStatsOf(e *models.Entity) models.FileStats {
	var stats models.FileStats
	if e.MetadataJSON != "" {
		json.Unmarshal([]byte(e.MetadataJSON), &stats)
	}
	return stats
}

// UpdateEntityStats replaces an entity's metadata blob.
func (s *Store) UpdateEntityStats(ctx context.Context, entityID int64, stats *models.FileStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal entity stats: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		"UPDATE entities SET metadata_json = ?, updated_at = CURRENT_TIMESTAMP WHERE entity_id = ?",
		string(data), entityID)
	return err
}

// === Lineage operations ===

// OpenLineageSegment inserts a segment for (fileID, path). An empty startOID
// means the creating commit has not been reached yet in the newest-first
// scan; SetLineageStart fills it in when the add is seen.
func (s *Store) OpenLineageSegment(ctx context.Context, fileID int64, path, startOID, endOID string) error {
	var end interface{}
	if endOID != "" {
		end = endOID
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO file_lineage (file_id, path, start_commit_oid, end_commit_oid)
		VALUES (?, ?, ?, ?)
	`, fileID, path, startOID, end)
	return err
}

// SetLineageStart fills the start commit of the segment for (fileID, path)
// that has no start recorded yet.
func (s *Store) SetLineageStart(ctx context.Context, fileID int64, path, startOID string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE file_lineage SET start_commit_oid = ?
		WHERE file_id = ? AND path = ? AND start_commit_oid = ''
	`, startOID, fileID, path)
	return err
}

// EnsureLineageStart marks that path became current for fileID at startOID:
// an existing start-unknown segment is filled in, otherwise a fresh open
// segment is inserted.
func (s *Store) EnsureLineageStart(ctx context.Context, fileID int64, path, startOID string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE file_lineage SET start_commit_oid = ?
		WHERE file_id = ? AND path = ? AND start_commit_oid = ''
	`, startOID, fileID, path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.OpenLineageSegment(ctx, fileID, path, startOID, "")
	}
	return nil
}

// CloseLineageSegment ends the open segment for (fileID, path) at endOID.
// When no open segment exists, a closed one is inserted so the alias is still
// recorded.
func (s *Store) CloseLineageSegment(ctx context.Context, fileID int64, path, endOID string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE file_lineage SET end_commit_oid = ?
		WHERE file_id = ? AND path = ? AND (end_commit_oid IS NULL OR end_commit_oid = '')
	`, endOID, fileID, path)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.OpenLineageSegment(ctx, fileID, path, "", endOID)
	}
	return nil
}

// Lineage returns a file's lineage segments, current segment first.
func (s *Store) Lineage(ctx context.Context, fileID int64) ([]models.LineageSegment, error) {
	var segments []models.LineageSegment
	err := s.q.SelectContext(ctx, &segments, `
		SELECT file_id, path, start_commit_oid, COALESCE(end_commit_oid, '') AS end_commit_oid
		FROM file_lineage
		WHERE file_id = ?
		ORDER BY (end_commit_oid IS NULL OR end_commit_oid = '') DESC, rowid DESC
	`, fileID)
	return segments, err
}

// LineageByPath returns the entity id of the most recently opened segment for
// path, or ErrNotFound. This is how historical aliases resolve across runs.
func (s *Store) LineageByPath(ctx context.Context, path string) (int64, error) {
	var id int64
	err := s.q.GetContext(ctx, &id, `
		SELECT file_id FROM file_lineage WHERE path = ? ORDER BY rowid DESC LIMIT 1
	`, path)
	return id, err
}

// === Relationship operations ===

// ReplaceGitRelationships swaps the git-sourced CO_CHANGED rows for the given
// set. Replace-by-provenance keeps edge rebuilds idempotent.
func (s *Store) ReplaceGitRelationships(ctx context.Context, rels []models.Relationship) error {
	return s.WithTx(ctx, func(txs *Store) error {
		if _, err := txs.q.ExecContext(ctx,
			"DELETE FROM relationships WHERE source_type = ? AND rel_kind = ?",
			models.SourceGit, models.RelCoChanged); err != nil {
			return err
		}
		stmt, err := txs.q.PreparexContext(ctx, `
			INSERT INTO relationships
			(source_type, rel_kind, src_entity_id, dst_entity_id, weight, properties_json, run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rels {
			var runID interface{}
			if r.RunID != "" {
				runID = r.RunID
			}
			if _, err := stmt.ExecContext(ctx,
				r.SourceType, r.RelKind, r.SrcEntityID, r.DstEntityID,
				r.Weight, r.PropertiesJSON, runID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GitRelationships returns the git-sourced CO_CHANGED rows.
func (s *Store) GitRelationships(ctx context.Context) ([]models.Relationship, error) {
	var rels []models.Relationship
	err := s.q.SelectContext(ctx, &rels, `
		SELECT source_type, rel_kind, src_entity_id, dst_entity_id, weight,
		       COALESCE(properties_json, '') AS properties_json, COALESCE(run_id, '') AS run_id
		FROM relationships WHERE source_type = ? AND rel_kind = ?
	`, models.SourceGit, models.RelCoChanged)
	return rels, err
}

// === Edge operations ===

// UpsertGitEdges replaces detailed file edges by primary key.
func (s *Store) UpsertGitEdges(ctx context.Context, edges []models.FileEdge) error {
	return s.WithTx(ctx, func(txs *Store) error {
		stmt, err := txs.q.PreparexContext(ctx, `
			INSERT OR REPLACE INTO git_edges (
				src_entity_id, dst_entity_id, pair_count, pair_count_raw,
				src_count, dst_count, src_weight, dst_weight,
				jaccard, jaccard_weighted, p_dst_given_src, p_src_given_dst
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx,
				e.Src, e.Dst, e.PairCount, e.PairCountRaw,
				e.SrcCount, e.DstCount, e.SrcWeight, e.DstWeight,
				e.Jaccard, e.JaccardWeighted, e.ProbDstGivenSrc, e.ProbSrcGivenDst); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearGitEdges removes all detailed file edges before a rebuild.
func (s *Store) ClearGitEdges(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM git_edges")
	return err
}

// GitEdges returns all detailed file edges.
func (s *Store) GitEdges(ctx context.Context) ([]models.FileEdge, error) {
	var edges []models.FileEdge
	err := s.q.SelectContext(ctx, &edges, `
		SELECT src_entity_id, dst_entity_id, pair_count, pair_count_raw,
		       src_count, dst_count, src_weight, dst_weight,
		       jaccard, jaccard_weighted, p_dst_given_src, p_src_given_dst
		FROM git_edges
	`)
	return edges, err
}

// UpsertComponentEdges replaces component edges by (src, dst, depth).
func (s *Store) UpsertComponentEdges(ctx context.Context, edges []models.ComponentEdge) error {
	return s.WithTx(ctx, func(txs *Store) error {
		stmt, err := txs.q.PreparexContext(ctx, `
			INSERT OR REPLACE INTO git_component_edges
			(src_component, dst_component, depth, pair_count, jaccard, file_pair_count)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx,
				e.SrcComponent, e.DstComponent, e.Depth,
				e.PairCount, e.AvgJaccard, e.FilePairCount); err != nil {
				return err
			}
		}
		return nil
	})
}

// ComponentEdges returns component edges at the given depth.
func (s *Store) ComponentEdges(ctx context.Context, depth int) ([]models.ComponentEdge, error) {
	var edges []models.ComponentEdge
	err := s.q.SelectContext(ctx, &edges, `
		SELECT src_component, dst_component, depth, pair_count, jaccard, file_pair_count
		FROM git_component_edges WHERE depth = ?
	`, depth)
	return edges, err
}

// === Task operations ===

// CreateTask records a new analysis task in state pending.
func (s *Store) CreateTask(ctx context.Context, taskID, analyzerType, configJSON string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO analysis_tasks (task_id, analyzer_type, state, config_json)
		VALUES (?, ?, ?, ?)
	`, taskID, analyzerType, string(models.TaskPending), configJSON)
	return err
}

// TaskUpdate carries the optional fields of a task-state transition.
type TaskUpdate struct {
	Progress          *float64
	Stage             string
	EntityCount       *int
	RelationshipCount *int
	Metrics           map[string]interface{}
	StartedAt         string
	FinishedAt        string
	Error             string
}

// UpdateTask transitions a task and merges the provided fields.
func (s *Store) UpdateTask(ctx context.Context, taskID string, state models.TaskState, upd TaskUpdate) error {
	sets := []string{"state = ?"}
	args := []interface{}{string(state)}

	if upd.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *upd.Progress)
	}
	if upd.Stage != "" {
		sets = append(sets, "stage = ?")
		args = append(args, upd.Stage)
	}
	if upd.EntityCount != nil {
		sets = append(sets, "entity_count = ?")
		args = append(args, *upd.EntityCount)
	}
	if upd.RelationshipCount != nil {
		sets = append(sets, "relationship_count = ?")
		args = append(args, *upd.RelationshipCount)
	}
	if upd.Metrics != nil {
		data, err := json.Marshal(upd.Metrics)
		if err != nil {
			return fmt.Errorf("marshal task metrics: %w", err)
		}
		sets = append(sets, "metrics_json = ?")
		args = append(args, string(data))
	}
	if upd.StartedAt != "" {
		sets = append(sets, "started_at = ?")
		args = append(args, upd.StartedAt)
	}
	if upd.FinishedAt != "" {
		sets = append(sets, "finished_at = ?")
		args = append(args, upd.FinishedAt)
	}
	if upd.Error != "" {
		sets = append(sets, "error = ?")
		args = append(args, upd.Error)
	}

	args = append(args, taskID)
	query := fmt.Sprintf("UPDATE analysis_tasks SET %s WHERE task_id = ?", strings.Join(sets, ", "))
	_, err := s.q.ExecContext(ctx, query, args...)
	return err
}

// GetTask returns one task row, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var t models.Task
	err := s.q.GetContext(ctx, &t, `
		SELECT task_id, analyzer_type, state, COALESCE(config_json, '') AS config_json,
		       progress, COALESCE(stage, '') AS stage, entity_count, relationship_count,
		       COALESCE(metrics_json, '') AS metrics_json,
		       COALESCE(started_at, '') AS started_at, COALESCE(finished_at, '') AS finished_at,
		       COALESCE(error, '') AS error, created_at
		FROM analysis_tasks WHERE task_id = ?
	`, taskID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// LatestTask returns the most recently created task for the analyzer type.
func (s *Store) LatestTask(ctx context.Context, analyzerType string) (*models.Task, error) {
	var taskID string
	err := s.q.GetContext(ctx, &taskID, `
		SELECT task_id FROM analysis_tasks WHERE analyzer_type = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, analyzerType)
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, taskID)
}

// === Validation log ===

// RecordValidationIssues appends a batch of issue samples for the run.
func (s *Store) RecordValidationIssues(ctx context.Context, runID string, issues []models.ValidationIssue) error {
	if len(issues) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(txs *Store) error {
		stmt, err := txs.q.PreparexContext(ctx, `
			INSERT INTO validation_log
			(run_id, commit_oid, issue_type, severity, token_value, expected_value,
			 message, author, committed_at, subject, cursor_position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, iss := range issues {
			if _, err := stmt.ExecContext(ctx,
				runID, iss.CommitOID, iss.Type, iss.Severity, iss.Token, iss.Expected,
				iss.Message, iss.Author, iss.CommittedAt, iss.Subject, iss.Cursor); err != nil {
				return err
			}
		}
		return nil
	})
}

// === Repo metadata ===

// SetRepoMeta stores a JSON-encodable value under key, replacing any previous
// value.
func (s *Store) SetRepoMeta(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal repo meta %s: %w", key, err)
	}
	_, err = s.q.ExecContext(ctx,
		"INSERT OR REPLACE INTO repo_meta (key, value) VALUES (?, ?)", key, string(data))
	return err
}

// GetRepoMeta decodes the value stored under key into out. Returns
// ErrNotFound when the key is absent.
func (s *Store) GetRepoMeta(ctx context.Context, key string, out interface{}) error {
	var value string
	if err := s.q.GetContext(ctx, &value, "SELECT value FROM repo_meta WHERE key = ?", key); err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), out)
}

// === Snapshot metadata ===

// RecordSnapshot inserts the relational metadata row for a saved cluster
// snapshot; the result blob lives in the snapshot store.
func (s *Store) RecordSnapshot(ctx context.Context, id, name, algorithm string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO clustering_snapshots (id, name, algorithm, tags_json)
		VALUES (?, ?, ?, ?)
	`, id, name, algorithm, string(tagsJSON))
	return err
}

// SnapshotMeta is one row of the snapshot metadata table.
type SnapshotMeta struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Algorithm string `db:"algorithm" json:"algorithm"`
	TagsJSON  string `db:"tags_json" json:"-"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// ListSnapshots returns snapshot metadata, newest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotMeta, error) {
	var snaps []SnapshotMeta
	err := s.q.SelectContext(ctx, &snaps, `
		SELECT id, name, COALESCE(algorithm, '') AS algorithm,
		       COALESCE(tags_json, '[]') AS tags_json, created_at
		FROM clustering_snapshots ORDER BY created_at DESC
	`)
	return snaps, err
}
