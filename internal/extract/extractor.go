package extract

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/lfca/internal/config"
	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/gitlog"
	"github.com/rohankatakam/lfca/internal/identity"
	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// progressInterval is how many commits pass between progress callbacks.
const progressInterval = 100

// Stats summarizes one extraction pass.
type Stats struct {
	CommitCount           int
	FileCount             int
	ChangeCount           int
	SkippedInvalidStatus  int
	SkippedInvalidPath    int
	SkippedSuspiciousPath int
	SkippedIncomplete     int
	InvalidCommitOIDs     int
	ValidationIssues      int

	// Capped sample of issues for the validation log (avoid memory bloat on
	// pathological streams).
	IssueSamples []models.ValidationIssue
}

// MetricCounts returns the per-type issue tallies for the task metrics blob.
func (s *Stats) MetricCounts() map[string]interface{} {
	return map[string]interface{}{
		"commit_count":            s.CommitCount,
		"skipped_invalid_status":  s.SkippedInvalidStatus,
		"skipped_invalid_path":    s.SkippedInvalidPath,
		"skipped_suspicious_path": s.SkippedSuspiciousPath,
		"skipped_incomplete":      s.SkippedIncomplete,
		"invalid_commit_oid":      s.InvalidCommitOIDs,
		"validation_issues":       s.ValidationIssues,
	}
}

// ProgressFunc receives the running processed-commit count.
type ProgressFunc func(processed int)

// fileAgg accumulates per-file metadata across the pass.
type fileAgg struct {
	commits      int
	authors      map[string]bool
	firstTS      int64
	lastTS       int64
	linesAdded   int64
	linesDeleted int64
}

// Extractor drives a single pass of the log parser and persists the canonical
// commit/change tables plus per-file aggregate metadata.
type Extractor struct {
	store    *storage.Store
	columnar *storage.Columnar
	index    *identity.Index
	opts     *config.Options
	logger   *logrus.Logger

	// Injectable clock for deterministic tests.
	now func() time.Time
}

// New builds an extractor over the artifact store.
func New(store *storage.Store, columnar *storage.Columnar, opts *config.Options, logger *logrus.Logger) *Extractor {
	return &Extractor{
		store:    store,
		columnar: columnar,
		index:    identity.New(store, logger),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// effectiveSince resolves the lower date bound: the explicit since, or one
// derived from window_days when set.
func (e *Extractor) effectiveSince() string {
	if e.opts.Since != "" {
		return e.opts.Since
	}
	if e.opts.WindowDays > 0 {
		return e.now().UTC().AddDate(0, 0, -e.opts.WindowDays).Format("2006-01-02")
	}
	return ""
}

// Run executes the extraction pass against the mirror at mirrorPath.
// Cancellation is cooperative: the context is checked between commits.
func (e *Extractor) Run(ctx context.Context, mirrorPath string, progress ProgressFunc) (*Stats, error) {
	since := e.effectiveSince()
	e.logger.WithFields(logrus.Fields{
		"mirror": mirrorPath,
		"since":  since,
		"until":  e.opts.Until,
		"mode":   e.opts.ValidationMode,
	}).Info("Starting history extraction")

	stats := &Stats{}
	aggs := make(map[int64]*fileAgg)

	var commits storage.CommitColumns
	var changes storage.ChangeColumns

	logOpts := gitlog.LogOptions{
		Since:                since,
		Until:                e.opts.Until,
		Ref:                  e.opts.Ref,
		AllRefs:              e.opts.AllRefs,
		FirstParentOnly:      e.opts.FirstParentOnly,
		FindRenamesThreshold: e.opts.FindRenamesThreshold,
	}

	trailing, err := gitlog.StreamLog(ctx, mirrorPath, logOpts, e.opts.ValidationMode,
		func(header *gitlog.Header, commitChanges []gitlog.Change) error {
			if ctx.Err() != nil {
				return lfcaerrors.Cancelled("extraction cancelled")
			}
			return e.handleCommit(ctx, header, commitChanges, stats, aggs, &commits, &changes, progress)
		})
	// Issues from a trailing malformed header still count against the run.
	e.tallyIssues(&gitlog.Header{Issues: trailing}, stats)
	if err != nil {
		return stats, err
	}

	if err := e.columnar.WriteCommits(&commits); err != nil {
		return stats, lfcaerrors.DatabaseError(err, "write commits table")
	}
	if err := e.columnar.WriteChanges(&changes); err != nil {
		return stats, lfcaerrors.DatabaseError(err, "write changes table")
	}

	if err := e.updateFileStats(ctx, aggs); err != nil {
		return stats, err
	}

	if err := e.saveRepoSummary(ctx, stats, aggs); err != nil {
		return stats, err
	}

	if err := e.syncHead(ctx, mirrorPath); err != nil {
		return stats, err
	}

	stats.FileCount = len(aggs)
	e.logger.WithFields(logrus.Fields{
		"commits": stats.CommitCount,
		"files":   stats.FileCount,
		"issues":  stats.ValidationIssues,
	}).Info("History extraction complete")

	return stats, nil
}

// tallyIssues counts the commit's parser complaints per type, keeping a
// capped sample for the validation log.
func (e *Extractor) tallyIssues(header *gitlog.Header, stats *Stats) {
	for _, issue := range header.Issues {
		stats.ValidationIssues++
		switch issue.Type {
		case models.IssueInvalidStatus:
			stats.SkippedInvalidStatus++
		case models.IssueInvalidPath:
			stats.SkippedInvalidPath++
		case models.IssueIncompleteChange:
			stats.SkippedIncomplete++
		case models.IssueInvalidCommitOID:
			stats.InvalidCommitOIDs++
		}
		if e.opts.MaxValidationIssues == 0 || len(stats.IssueSamples) < e.opts.MaxValidationIssues {
			stats.IssueSamples = append(stats.IssueSamples, issue)
		}
	}
}

// suspiciousPath re-applies the short-token heuristics even in permissive
// mode; desynchronized tokens that slip through the parser are cheaper to
// drop here than to carry into the edge set.
func suspiciousPath(path string) bool {
	if len(path) <= 3 && isAlpha(path) {
		return true
	}
	if !strings.ContainsAny(path, "/.") && len(path) < 10 {
		return true
	}
	return false
}

func isAlpha(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

func (e *Extractor) handleCommit(
	ctx context.Context,
	header *gitlog.Header,
	commitChanges []gitlog.Change,
	stats *Stats,
	aggs map[int64]*fileAgg,
	commits *storage.CommitColumns,
	changes *storage.ChangeColumns,
	progress ProgressFunc,
) error {
	stats.CommitCount++

	e.tallyIssues(header, stats)

	if progress != nil && stats.CommitCount%progressInterval == 0 {
		progress(stats.CommitCount)
	}
	if stats.CommitCount%1000 == 0 {
		e.logger.WithField("commits", stats.CommitCount).Info("Processing commits...")
	}

	// Oversized commits are unrelated bulk touches: under the exclude policy
	// they contribute to neither edges nor file stats.
	if e.opts.MaxChangesetSize > 0 && e.opts.BulkPolicy == config.BulkExclude &&
		len(commitChanges) > e.opts.MaxChangesetSize {
		return nil
	}

	commits.Append(header.Record())

	// Merge commits are recorded but contribute no changes when excluded.
	if header.IsMerge() && e.opts.SkipMergeCommits {
		return nil
	}

	fileIDsInCommit := make(map[int64]bool)

	err := e.store.WithTx(ctx, func(txs *storage.Store) error {
		index := e.index.Using(txs)

		for _, change := range commitChanges {
			if change.Path == "" {
				continue
			}

			if suspiciousPath(change.Path) {
				e.logger.WithField("path", change.Path).Warn("Skipping suspicious path")
				stats.SkippedSuspiciousPath++
				stats.ValidationIssues++
				if e.opts.MaxValidationIssues == 0 || len(stats.IssueSamples) < e.opts.MaxValidationIssues {
					stats.IssueSamples = append(stats.IssueSamples, models.ValidationIssue{
						CommitOID: header.OID,
						Type:      models.IssueSuspiciousPath,
						Severity:  models.SeverityWarning,
						Token:     change.Path,
						Expected:  "plausible file path",
						Message:   "suspicious path dropped during extraction",
					})
				}
				continue
			}

			var fileID int64
			var err error
			if change.OldPath != "" && gitlog.IsRenameStatus(change.Status) {
				fileID, err = index.Rename(ctx, change.OldPath, change.Path, header.OID)
			} else {
				fileID, err = index.ResolveOrCreate(ctx, change.Path)
				if err == nil && change.Status == "A" {
					err = index.NoteAdd(ctx, fileID, change.Path, header.OID)
				}
			}
			if err != nil {
				return err
			}

			fileIDsInCommit[fileID] = true

			changes.Append(models.ChangeRecord{
				CommitOID: header.OID,
				FileID:    fileID,
				Path:      change.Path,
				Status:    change.Status,
				OldPath:   change.OldPath,
				CommitTS:  header.CommitterTS,
			})
			stats.ChangeCount++
		}
		return nil
	})
	if err != nil {
		return lfcaerrors.DatabaseErrorf(err, "persist changes for commit %s", header.OID)
	}

	for fileID := range fileIDsInCommit {
		agg, ok := aggs[fileID]
		if !ok {
			agg = &fileAgg{
				authors: make(map[string]bool),
				firstTS: header.CommitterTS,
				lastTS:  header.CommitterTS,
			}
			aggs[fileID] = agg
		}
		agg.commits++
		agg.authors[header.AuthorEmail] = true
		if header.CommitterTS < agg.firstTS {
			agg.firstTS = header.CommitterTS
		}
		if header.CommitterTS > agg.lastTS {
			agg.lastTS = header.CommitterTS
		}
	}

	return nil
}

// updateFileStats merges the pass's aggregates into each entity's metadata
// blob.
func (e *Extractor) updateFileStats(ctx context.Context, aggs map[int64]*fileAgg) error {
	ids := make([]int64, 0, len(aggs))
	for id := range aggs {
		ids = append(ids, id)
	}
	entities, err := e.store.EntitiesByID(ctx, ids)
	if err != nil {
		return lfcaerrors.DatabaseError(err, "load entities for stats update")
	}

	for id, agg := range aggs {
		entity, ok := entities[id]
		var stats models.FileStats
		if ok {
			stats = storage.FileStatsOf(&entity)
		}

		stats.TotalCommits = agg.commits
		stats.AuthorsCount = len(agg.authors)
		stats.TotalLinesAdded = agg.linesAdded
		stats.TotalLinesDeleted = agg.linesDeleted
		stats.FirstCommitTS = agg.firstTS
		stats.LastCommitTS = agg.lastTS

		if err := e.store.UpdateEntityStats(ctx, id, &stats); err != nil {
			return lfcaerrors.DatabaseErrorf(err, "update stats for entity %d", id)
		}
	}
	return nil
}

// saveRepoSummary persists the repo-level rollup for fast dashboard queries.
func (e *Extractor) saveRepoSummary(ctx context.Context, stats *Stats, aggs map[int64]*fileAgg) error {
	allAuthors := make(map[string]bool)
	var linesAdded, linesDeleted int64
	hotspots := 0

	for _, agg := range aggs {
		for author := range agg.authors {
			allAuthors[author] = true
		}
		linesAdded += agg.linesAdded
		linesDeleted += agg.linesDeleted
		if agg.commits > e.opts.HotspotThreshold {
			hotspots++
		}
	}

	summary := models.RepoSummary{
		FileCount:    len(aggs),
		CommitCount:  stats.CommitCount,
		TotalAuthors: len(allAuthors),
		LinesAdded:   linesAdded,
		LinesDeleted: linesDeleted,
		HotspotCount: hotspots,
	}

	if err := e.store.SetRepoMeta(ctx, "summary_stats", summary); err != nil {
		return lfcaerrors.DatabaseError(err, "save repo summary")
	}
	return nil
}

// syncHead flips exists_at_head flags from the HEAD tree listing.
func (e *Extractor) syncHead(ctx context.Context, mirrorPath string) error {
	paths, err := gitlog.FilesAtHead(ctx, mirrorPath)
	if err != nil {
		return err
	}
	return e.index.MarkHead(ctx, paths)
}
