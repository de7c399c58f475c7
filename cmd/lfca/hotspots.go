package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/lfca/internal/activity"
	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

var (
	hotspotsLimit   int
	hotspotsHotOnly bool
	hotspotsStable  bool
	hotspotsDetail  bool
)

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots <repo-path>",
	Short: "Rank files by activity",
	Long: `Hotspots lists files by lifetime commit count, with the trailing-window
activity classification (hot / stable) from the latest analysis run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		paths := repoPaths(args[0])

		store, err := storage.Open(paths.DBPath(), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		entities, err := store.EntitiesAtHead(ctx, models.KindFile)
		if err != nil {
			return err
		}

		type ranked struct {
			path  string
			stats models.FileStats
		}
		var rows []ranked
		for i := range entities {
			stats := storage.FileStatsOf(&entities[i])
			if hotspotsHotOnly && !stats.IsHot {
				continue
			}
			if hotspotsStable && !stats.IsStable {
				continue
			}
			rows = append(rows, ranked{path: entities[i].QualifiedName, stats: stats})
		}

		sort.Slice(rows, func(i, j int) bool {
			if rows[i].stats.TotalCommits != rows[j].stats.TotalCommits {
				return rows[i].stats.TotalCommits > rows[j].stats.TotalCommits
			}
			return rows[i].path < rows[j].path
		})

		var thresholds activity.Thresholds
		if err := store.GetRepoMeta(ctx, activity.ThresholdsKey, &thresholds); err == nil {
			fmt.Printf("thresholds: hot30 >= %d, hot90 >= %d, stable after %d idle days\n\n",
				thresholds.THot30, thresholds.THot90, thresholds.TStableDays)
		}

		var details map[string]fileDetail
		if hotspotsDetail {
			details, err = loadFileDetails(paths.ColumnarDir(), entities)
			if err != nil {
				return err
			}
		}

		limit := hotspotsLimit
		if limit > len(rows) {
			limit = len(rows)
		}
		for _, row := range rows[:limit] {
			label := ""
			switch {
			case row.stats.IsHot:
				label = " [hot]"
			case row.stats.IsStable:
				label = " [stable]"
			case row.stats.IsUnknown:
				label = " [unknown]"
			}
			fmt.Printf("%5d  %s%s  (30d: %d, 90d: %d, authors: %d)\n",
				row.stats.TotalCommits, row.path, label,
				row.stats.Commits30d, row.stats.Commits90d, row.stats.AuthorsCount)

			if detail, ok := details[row.path]; ok {
				fmt.Printf("       bus factor %d, churn %s (recent %.1f/mo vs past %.1f/mo)\n",
					detail.busFactor, detail.trend.Direction,
					detail.trend.RecentRate, detail.trend.PastRate)
			}
		}
		return nil
	},
}

type fileDetail struct {
	busFactor int
	trend     activity.ChurnTrend
}

// loadFileDetails derives per-file author distribution and churn trend from
// the columnar tables.
func loadFileDetails(columnarDir string, entities []models.Entity) (map[string]fileDetail, error) {
	columnar, err := storage.NewColumnar(columnarDir)
	if err != nil {
		return nil, err
	}
	changes, err := columnar.ReadChanges()
	if err != nil {
		return nil, err
	}
	commits, err := columnar.ReadCommits()
	if err != nil {
		return nil, err
	}

	authorByCommit := make(map[string]string, commits.Len())
	for i := 0; i < commits.Len(); i++ {
		authorByCommit[commits.OIDs[i]] = commits.AuthorEmails[i]
	}

	pathByID := make(map[int64]string, len(entities))
	for i := range entities {
		pathByID[entities[i].ID] = entities[i].QualifiedName
	}

	authorCommits := make(map[int64]map[string]int)
	timestamps := make(map[int64][]int64)
	for i := 0; i < changes.Len(); i++ {
		fileID := changes.FileIDs[i]
		if _, ok := pathByID[fileID]; !ok {
			continue
		}
		author := authorByCommit[changes.CommitOIDs[i]]
		if authorCommits[fileID] == nil {
			authorCommits[fileID] = make(map[string]int)
		}
		authorCommits[fileID][author]++
		timestamps[fileID] = append(timestamps[fileID], changes.CommitTS[i])
	}

	now := time.Now().Unix()
	details := make(map[string]fileDetail, len(authorCommits))
	for fileID, authors := range authorCommits {
		busFactor, _ := activity.BusFactor(authors, 0.5)
		details[pathByID[fileID]] = fileDetail{
			busFactor: busFactor,
			trend:     activity.ComputeChurnTrend(timestamps[fileID], now, 3),
		}
	}
	return details, nil
}

func init() {
	hotspotsCmd.Flags().IntVarP(&hotspotsLimit, "limit", "n", 25, "number of files to show")
	hotspotsCmd.Flags().BoolVar(&hotspotsHotOnly, "hot", false, "only hot files")
	hotspotsCmd.Flags().BoolVar(&hotspotsStable, "stable", false, "only stable files")
	hotspotsCmd.Flags().BoolVar(&hotspotsDetail, "detail", false, "include bus factor and churn trend per file")
}
