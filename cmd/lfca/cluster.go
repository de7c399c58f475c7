package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/lfca/internal/cluster"
	"github.com/rohankatakam/lfca/internal/storage"
)

var (
	clusterAlgorithm string
	clusterParams    string
	clusterFolders   []string
	clusterWeight    string
	clusterInsights  bool
	clusterSaveName  string
	clusterTags      []string
	clusterJSON      bool
)

var clusterCmd = &cobra.Command{
	Use:   "cluster <repo-path>",
	Short: "Partition the coupling graph with a clustering algorithm",
	Long: `Cluster runs one of the registered algorithms (` + strings.Join(cluster.Names(), ", ") + `)
over the persisted edge set and prints the partition with insights. Pass
--save to persist the result as a named snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		paths := repoPaths(args[0])

		store, err := storage.Open(paths.DBPath(), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		columnar, err := storage.NewColumnar(paths.ColumnarDir())
		if err != nil {
			return err
		}

		params := cluster.Params{}
		if clusterParams != "" {
			if err := json.Unmarshal([]byte(clusterParams), &params); err != nil {
				return fmt.Errorf("parse --params: %w", err)
			}
		}

		engine := cluster.NewEngine(store, columnar, logger)
		result, err := engine.Run(ctx, clusterAlgorithm, params, cluster.RunOptions{
			Folders:      clusterFolders,
			WeightColumn: clusterWeight,
			WithInsights: clusterInsights,
		})
		if err != nil {
			return err
		}

		if clusterSaveName != "" {
			snapshots, err := storage.OpenSnapshots(paths.SnapshotPath())
			if err != nil {
				return err
			}
			defer snapshots.Close()

			id, err := engine.SaveSnapshot(ctx, snapshots, clusterSaveName, clusterTags, result)
			if err != nil {
				return err
			}
			fmt.Printf("Saved snapshot %s (%s)\n", id, clusterSaveName)
		}

		if clusterJSON {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		printClusterResult(result)
		return nil
	},
}

func printClusterResult(result *cluster.Result) {
	fmt.Printf("%s: %d clusters\n", result.Algorithm, result.ClusterCount)
	if modularity, ok := result.Metrics["modularity"]; ok {
		fmt.Printf("  modularity: %.4f\n", modularity)
	}
	if noise, ok := result.Metrics["noise_count"]; ok {
		fmt.Printf("  noise points: %v\n", noise)
	}
	for _, c := range result.Clusters {
		fmt.Printf("\n#%d (%d files, churn %d, avg coupling %.3f)\n",
			c.ID, c.Size, c.TotalChurn, c.AvgCoupling)
		limit := len(c.Files)
		if limit > 10 {
			limit = 10
		}
		for _, path := range c.Files[:limit] {
			fmt.Printf("  %s\n", path)
		}
		if len(c.Files) > limit {
			fmt.Printf("  ... and %d more\n", len(c.Files)-limit)
		}
	}
}

func init() {
	clusterCmd.Flags().StringVarP(&clusterAlgorithm, "algorithm", "a", "louvain", "clustering algorithm")
	clusterCmd.Flags().StringVar(&clusterParams, "params", "", "algorithm parameters as JSON")
	clusterCmd.Flags().StringSliceVar(&clusterFolders, "folders", nil, "restrict clustering to these folder prefixes")
	clusterCmd.Flags().StringVar(&clusterWeight, "weight", "jaccard", "edge weight column: jaccard, jaccard_weighted, pair_count")
	clusterCmd.Flags().BoolVar(&clusterInsights, "insights", true, "compute cluster insights")
	clusterCmd.Flags().StringVar(&clusterSaveName, "save", "", "save the result as a snapshot with this name")
	clusterCmd.Flags().StringSliceVar(&clusterTags, "tag", nil, "tags for the saved snapshot")
	clusterCmd.Flags().BoolVar(&clusterJSON, "json", false, "print the full result as JSON")
}
