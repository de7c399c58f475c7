package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/lfca/internal/cluster"
	"github.com/rohankatakam/lfca/internal/storage"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage saved clustering snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <repo-path>",
	Short: "List saved snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := repoPaths(args[0])

		store, err := storage.Open(paths.DBPath(), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		snaps, err := store.ListSnapshots(context.Background())
		if err != nil {
			return err
		}

		if len(snaps) == 0 {
			fmt.Println("No snapshots saved.")
			return nil
		}
		for _, snap := range snaps {
			fmt.Printf("%s  %-24s %-18s %s\n", snap.ID, snap.Name, snap.Algorithm, snap.CreatedAt)
		}
		return nil
	},
}

var snapshotCompareCmd = &cobra.Command{
	Use:   "compare <repo-path> <old-id> <new-id>",
	Short: "Compare two snapshots for cluster drift",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := repoPaths(args[0])

		snapshots, err := storage.OpenSnapshots(paths.SnapshotPath())
		if err != nil {
			return err
		}
		defer snapshots.Close()

		var oldResult, newResult cluster.Result
		if err := snapshots.Load(args[1], &oldResult); err != nil {
			return fmt.Errorf("load snapshot %s: %w", args[1], err)
		}
		if err := snapshots.Load(args[2], &newResult); err != nil {
			return fmt.Errorf("load snapshot %s: %w", args[2], err)
		}

		comparison := cluster.Compare(&oldResult, &newResult)

		fmt.Printf("stable %d, drifted %d, dissolved %d, new %d\n",
			comparison.Summary.Stable, comparison.Summary.Drifted,
			comparison.Summary.Dissolved, comparison.Summary.New)

		data, err := json.MarshalIndent(comparison, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotCompareCmd)
}
