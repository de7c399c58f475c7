package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/lfca/internal/activity"
	"github.com/rohankatakam/lfca/internal/config"
	"github.com/rohankatakam/lfca/internal/edges"
	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/extract"
	"github.com/rohankatakam/lfca/internal/gitlog"
	"github.com/rohankatakam/lfca/internal/mirror"
	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// AnalyzerType identifies this analyzer's tasks in the shared task table.
const AnalyzerType = "git"

// Stage labels published while a run progresses.
const (
	StageMirroring  = "mirroring"
	StageExtracting = "extracting_history"
	StageEdges      = "building_edges"
	StageCompleted  = "completed"
)

// ProgressSink receives the running processed-commit count. The runner's
// sink updates the task row; tests use an in-memory sink.
type ProgressSink interface {
	Report(processed int)
}

// Runner sequences the pipeline phases for one repo, publishing progress and
// persisting run metadata.
type Runner struct {
	store    *storage.Store
	columnar *storage.Columnar
	paths    config.Paths
	logger   *logrus.Logger
}

// NewRunner builds a task runner over one repo's artifact store.
func NewRunner(store *storage.Store, columnar *storage.Columnar, paths config.Paths, logger *logrus.Logger) *Runner {
	return &Runner{store: store, columnar: columnar, paths: paths, logger: logger}
}

// Result summarizes a completed analysis run.
type Result struct {
	TaskID           string                 `json:"task_id"`
	CommitCount      int                    `json:"commit_count"`
	FileCount        int                    `json:"file_count"`
	EdgeCount        int                    `json:"edge_count"`
	ValidationIssues int                    `json:"validation_issues"`
	Metrics          map[string]interface{} `json:"metrics"`
}

func progressOf(v float64) *float64 { return &v }
func countOf(v int) *int            { return &v }

// RunAnalysis executes the full pipeline: mirror, extract, classify, build
// edges. On failure the task row records the error and partial artifacts stay
// intact for the next run to reuse. Cancellation via ctx is cooperative and
// recorded with a distinguishable marker.
func (r *Runner) RunAnalysis(ctx context.Context, repoPath string, opts *config.Options) (*Result, error) {
	if vr := opts.Validate(); vr.HasErrors() {
		return nil, lfcaerrors.ConfigError(vr.Error())
	}

	taskID := uuid.NewString()
	configJSON, _ := json.Marshal(opts)
	if err := r.store.CreateTask(ctx, taskID, AnalyzerType, string(configJSON)); err != nil {
		return nil, lfcaerrors.DatabaseError(err, "create task row")
	}

	result, err := r.run(ctx, taskID, repoPath, opts)
	if err != nil {
		message := err.Error()
		if lfcaerrors.IsCancelled(err) || ctx.Err() != nil {
			message = "cancelled: " + message
		}
		r.store.UpdateTask(context.Background(), taskID, models.TaskFailed, storage.TaskUpdate{
			Error:      message,
			FinishedAt: time.Now().UTC().Format(time.RFC3339),
		})
		r.logger.WithError(err).Error("Analysis failed")
		return nil, err
	}
	result.TaskID = taskID
	return result, nil
}

func (r *Runner) run(ctx context.Context, taskID, repoPath string, opts *config.Options) (*Result, error) {
	startedAt := time.Now().UTC().Format(time.RFC3339)

	// 1. Mirror
	if err := r.store.UpdateTask(ctx, taskID, models.TaskRunning, storage.TaskUpdate{
		Stage:     StageMirroring,
		Progress:  progressOf(0.05),
		StartedAt: startedAt,
	}); err != nil {
		return nil, lfcaerrors.DatabaseError(err, "update task")
	}

	r.logger.Info("Mirroring repository")
	if err := mirror.Sync(ctx, repoPath, r.paths.MirrorPath()); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	mirrorPath := r.paths.MirrorPath()
	headOID, err := gitlog.HeadOID(ctx, mirrorPath)
	if err != nil {
		return nil, err
	}

	// Remote info is informational: lookups degrade to empty values.
	remoteInfo := gitlog.GetRemoteInfo(ctx, repoPath, "origin")
	if err := r.store.SetRepoMeta(ctx, "remote_info", remoteInfo); err != nil {
		return nil, lfcaerrors.DatabaseError(err, "save remote info")
	}

	totalCommits, err := gitlog.CountCommits(ctx, mirrorPath, opts.Since, opts.Until)
	if err != nil {
		r.logger.WithError(err).Warn("Commit count unavailable, progress will be coarse")
		totalCommits = 0
	}

	// 2. Extract
	metrics := map[string]interface{}{
		"total_commits":     totalCommits,
		"processed_commits": 0,
		"git_head_oid":      headOID,
	}
	if opts.AllRefs {
		if refs, err := gitlog.ListRefs(ctx, mirrorPath); err == nil {
			metrics["ref_count"] = len(refs)
		}
	}
	if err := r.store.UpdateTask(ctx, taskID, models.TaskRunning, storage.TaskUpdate{
		Stage:    StageExtracting,
		Progress: progressOf(0.1),
		Metrics:  metrics,
	}); err != nil {
		return nil, lfcaerrors.DatabaseError(err, "update task")
	}

	r.logger.Info("Extracting history")
	extractor := extract.New(r.store, r.columnar, opts, r.logger)

	sink := &taskSink{
		runner:       r,
		taskID:       taskID,
		totalCommits: totalCommits,
		metrics:      metrics,
	}
	stats, err := extractor.Run(ctx, mirrorPath, sink.Report)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	// Activity classification rides the tail of the extraction stage.
	if _, err := activity.Materialize(ctx, r.store, r.columnar, r.logger, time.Now().Unix()); err != nil {
		return nil, err
	}

	for k, v := range stats.MetricCounts() {
		metrics[k] = v
	}
	metrics["processed_commits"] = stats.CommitCount

	if err := r.store.UpdateTask(ctx, taskID, models.TaskRunning, storage.TaskUpdate{
		Stage:       StageEdges,
		Progress:    progressOf(0.75),
		EntityCount: countOf(stats.FileCount),
		Metrics:     metrics,
	}); err != nil {
		return nil, lfcaerrors.DatabaseError(err, "update task")
	}

	// Validation issue samples are capped upstream for memory safety.
	if len(stats.IssueSamples) > 0 {
		if err := r.store.RecordValidationIssues(ctx, taskID, stats.IssueSamples); err != nil {
			return nil, lfcaerrors.DatabaseError(err, "record validation issues")
		}
	}

	// 3. Build edges
	r.logger.Info("Building coupling edges")
	builder := edges.New(r.store, r.columnar, opts, r.logger, taskID)
	edgeCount, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	metrics["edge_count"] = edgeCount

	if err := r.store.UpdateTask(ctx, taskID, models.TaskCompleted, storage.TaskUpdate{
		Stage:             StageCompleted,
		Progress:          progressOf(1.0),
		EntityCount:       countOf(stats.FileCount),
		RelationshipCount: countOf(edgeCount),
		FinishedAt:        time.Now().UTC().Format(time.RFC3339),
		Metrics:           metrics,
	}); err != nil {
		return nil, lfcaerrors.DatabaseError(err, "update task")
	}

	r.logger.WithFields(logrus.Fields{
		"commits": stats.CommitCount,
		"files":   stats.FileCount,
		"edges":   edgeCount,
	}).Info("Analysis complete")

	return &Result{
		CommitCount:      stats.CommitCount,
		FileCount:        stats.FileCount,
		EdgeCount:        edgeCount,
		ValidationIssues: stats.ValidationIssues,
		Metrics:          metrics,
	}, nil
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return lfcaerrors.Cancelled(ctx.Err().Error())
	}
	return nil
}

// taskSink publishes extraction progress into the task row, scaling the
// processed fraction into the extraction stage's 0.10-0.65 progress band.
type taskSink struct {
	runner       *Runner
	taskID       string
	totalCommits int
	metrics      map[string]interface{}
}

func (s *taskSink) Report(processed int) {
	ratio := 0.1
	if s.totalCommits > 0 {
		frac := float64(processed) / float64(s.totalCommits)
		if frac > 1 {
			frac = 1
		}
		ratio = 0.1 + frac*0.55
	}
	s.metrics["processed_commits"] = processed

	s.runner.store.UpdateTask(context.Background(), s.taskID, models.TaskRunning, storage.TaskUpdate{
		Stage:    StageExtracting,
		Progress: progressOf(ratio),
		Metrics:  s.metrics,
	})
}
