package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
	"github.com/rohankatakam/lfca/internal/task"
)

var (
	statusTaskID string
	statusWatch  bool
)

var statusCmd = &cobra.Command{
	Use:   "status <repo-path>",
	Short: "Show the status of the latest (or a specific) analysis task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		paths := repoPaths(args[0])

		store, err := storage.Open(paths.DBPath(), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		var status *models.TaskStatus
		if statusTaskID != "" {
			status, err = task.Status(ctx, store, statusTaskID)
		} else {
			status, err = task.LatestStatus(ctx, store)
		}
		if err == storage.ErrNotFound {
			fmt.Println("No analysis tasks recorded.")
			return nil
		}
		if err != nil {
			return err
		}

		if statusWatch && status.State == models.TaskRunning {
			return task.Watch(ctx, store, status.TaskID, time.Second, printStatus)
		}

		printStatus(status)
		return nil
	},
}

func printStatus(status *models.TaskStatus) {
	fmt.Printf("task %s: %s", status.TaskID, status.State)
	if status.Stage != "" {
		fmt.Printf(" (%s)", status.Stage)
	}
	fmt.Printf(" %.0f%%", status.Progress*100)
	if status.TotalCommits > 0 {
		fmt.Printf("  commits %d/%d", status.ProcessedCommits, status.TotalCommits)
	}
	if status.EntityCount > 0 || status.RelationshipCount > 0 {
		fmt.Printf("  entities %d  relationships %d", status.EntityCount, status.RelationshipCount)
	}
	if status.ElapsedSeconds > 0 {
		fmt.Printf("  elapsed %.1fs", status.ElapsedSeconds)
	}
	if status.Error != "" {
		fmt.Printf("\n  error: %s", status.Error)
	}
	fmt.Println()
}

func init() {
	statusCmd.Flags().StringVar(&statusTaskID, "task", "", "show a specific task id")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "poll until the task finishes")
}
