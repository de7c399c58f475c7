package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// minPollInterval bounds how fast external consumers may poll a task row.
const minPollInterval = 500 * time.Millisecond

// Status assembles the stable external status shape from a task row.
func Status(ctx context.Context, store *storage.Store, taskID string) (*models.TaskStatus, error) {
	row, err := store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return statusFromRow(row), nil
}

// LatestStatus returns the status of the most recent git-analysis task.
func LatestStatus(ctx context.Context, store *storage.Store) (*models.TaskStatus, error) {
	row, err := store.LatestTask(ctx, AnalyzerType)
	if err != nil {
		return nil, err
	}
	return statusFromRow(row), nil
}

func statusFromRow(row *models.Task) *models.TaskStatus {
	status := &models.TaskStatus{
		TaskID:            row.ID,
		State:             row.State,
		Stage:             row.Stage,
		Progress:          row.Progress,
		EntityCount:       row.EntityCount,
		RelationshipCount: row.RelationshipCount,
		Error:             row.Error,
	}

	if row.MetricsJSON != "" {
		var metrics map[string]interface{}
		if json.Unmarshal([]byte(row.MetricsJSON), &metrics) == nil {
			if v, ok := metrics["processed_commits"].(float64); ok {
				status.ProcessedCommits = int(v)
			}
			if v, ok := metrics["total_commits"].(float64); ok {
				status.TotalCommits = int(v)
			}
		}
	}

	if start, err := time.Parse(time.RFC3339, row.StartedAt); err == nil {
		end := time.Now().UTC()
		if finish, err := time.Parse(time.RFC3339, row.FinishedAt); err == nil {
			end = finish
		}
		status.ElapsedSeconds = end.Sub(start).Seconds()
	}

	return status
}

// Watch polls the task row at the given interval (bounded below) until the
// task leaves the running states or the context ends. Each observed status is
// passed to fn.
func Watch(ctx context.Context, store *storage.Store, taskID string, interval time.Duration, fn func(*models.TaskStatus)) error {
	if interval < minPollInterval {
		interval = minPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := Status(ctx, store, taskID)
		if err != nil {
			return err
		}
		fn(status)

		if status.State == models.TaskCompleted || status.State == models.TaskFailed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
