package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/lfca/internal/config"
	"github.com/rohankatakam/lfca/internal/logging"
	"github.com/rohankatakam/lfca/internal/storage"
	"github.com/rohankatakam/lfca/internal/task"
)

var (
	analyzeSince   string
	analyzeUntil   string
	analyzeAllRefs bool
	analyzeMode    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-path> [<repo-path>...]",
	Short: "Run the full coupling analysis pipeline on one or more repositories",
	Long: `Analyze mirrors each repository, extracts its history into the commit and
change tables, classifies file activity, and builds the coupling edge set.
Repositories run in parallel; each has an isolated artifact store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runOpts := *opts
		if analyzeSince != "" {
			runOpts.Since = analyzeSince
		}
		if analyzeUntil != "" {
			runOpts.Until = analyzeUntil
		}
		if analyzeAllRefs {
			runOpts.AllRefs = true
		}
		if analyzeMode != "" {
			runOpts.ValidationMode = analyzeMode
		}
		if vr := runOpts.Validate(); vr.HasErrors() {
			return fmt.Errorf("%s", vr.Error())
		}

		g, ctx := errgroup.WithContext(ctx)
		for _, repoPath := range args {
			repoPath := repoPath
			g.Go(func() error {
				return analyzeRepo(ctx, repoPath, &runOpts)
			})
		}
		return g.Wait()
	},
}

func analyzeRepo(ctx context.Context, repoPath string, runOpts *config.Options) error {
	paths := repoPaths(repoPath)
	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare artifact directories: %w", err)
	}

	// Per-run log file under the repo's logs directory.
	if err := logging.Initialize(logging.DefaultConfig(verbose, paths.LogsDir())); err != nil {
		logger.WithError(err).Warn("Run log unavailable")
	}
	defer logging.Close()
	logging.Info("analysis run starting", "repo", repoPath, "data_dir", paths.DataDir)

	store, err := storage.Open(paths.DBPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	columnar, err := storage.NewColumnar(paths.ColumnarDir())
	if err != nil {
		return err
	}

	runner := task.NewRunner(store, columnar, paths, logger)
	result, err := runner.RunAnalysis(ctx, repoPath, runOpts)
	if err != nil {
		logging.Error("analysis run failed", "repo", repoPath, "error", err)
		return err
	}
	logging.Info("analysis run complete", "repo", repoPath,
		"commits", result.CommitCount, "files", result.FileCount, "edges", result.EdgeCount)

	fmt.Printf("%s: %d commits, %d files, %d edges", repoPath,
		result.CommitCount, result.FileCount, result.EdgeCount)
	if result.ValidationIssues > 0 {
		fmt.Printf(" (%d validation issues)", result.ValidationIssues)
	}
	fmt.Println()
	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSince, "since", "", "only commits after this date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&analyzeUntil, "until", "", "only commits before this date (YYYY-MM-DD)")
	analyzeCmd.Flags().BoolVar(&analyzeAllRefs, "all", false, "traverse all refs instead of HEAD")
	analyzeCmd.Flags().StringVar(&analyzeMode, "validation-mode", "", "parser strictness: strict, soft, permissive")
}
