package activity

import (
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// Threshold floors. The effective hot thresholds are quantile-derived from
// the repo's own distribution, but never drop below these: tiny repos would
// otherwise classify every file as hot. The stable idle cutoff is fixed at
// stableFloorDays.
const (
	hotFloor30      = 3
	hotFloor90      = 6
	stableFloorDays = 180
	quantile        = 0.75
)

// ThresholdsKey is the repo_meta key the derived thresholds persist under.
const ThresholdsKey = "hot_stable_thresholds"

// Thresholds are the repo-wide activity cutoffs, exposed as calibration data
// rather than constants.
type Thresholds struct {
	THot30      int   `json:"T_hot30"`
	THot90      int   `json:"T_hot90"`
	TStableDays int   `json:"T_stableDays"`
	FilesTotal  int   `json:"files_total"`
	ComputedAt  int64 `json:"computed_at"`
}

// percentile returns the q-th percentile of values (nearest-rank). Empty
// input returns 0.
func percentile(values []int, q float64) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Materialize computes trailing-window activity for every file, derives the
// repo-wide thresholds, classifies each file as exactly one of hot, stable,
// or unknown (or none), and persists both the per-file fields and the
// thresholds blob. nowTS anchors the trailing windows.
func Materialize(ctx context.Context, store *storage.Store, columnar *storage.Columnar, logger *logrus.Logger, nowTS int64) (*Thresholds, error) {
	changes, err := columnar.ReadChanges()
	if err != nil {
		return nil, lfcaerrors.DatabaseError(err, "read changes table")
	}

	cutoff30 := nowTS - 30*86400
	cutoff90 := nowTS - 90*86400

	// Distinct commits per file inside each trailing window.
	seen30 := make(map[int64]map[string]bool)
	seen90 := make(map[int64]map[string]bool)
	for i := 0; i < changes.Len(); i++ {
		fileID := changes.FileIDs[i]
		oid := changes.CommitOIDs[i]
		ts := changes.CommitTS[i]
		if ts >= cutoff90 && ts <= nowTS {
			set, ok := seen90[fileID]
			if !ok {
				set = make(map[string]bool)
				seen90[fileID] = set
			}
			set[oid] = true
			if ts >= cutoff30 {
				set30, ok := seen30[fileID]
				if !ok {
					set30 = make(map[string]bool)
					seen30[fileID] = set30
				}
				set30[oid] = true
			}
		}
	}

	entities, err := store.AllFileEntities(ctx)
	if err != nil {
		return nil, lfcaerrors.DatabaseError(err, "load file entities")
	}

	var nonZero30, nonZero90 []int
	for _, entity := range entities {
		if n := len(seen30[entity.ID]); n > 0 {
			nonZero30 = append(nonZero30, n)
		}
		if n := len(seen90[entity.ID]); n > 0 {
			nonZero90 = append(nonZero90, n)
		}
	}

	thresholds := &Thresholds{
		THot30:      max(hotFloor30, percentile(nonZero30, quantile)),
		THot90:      max(hotFloor90, percentile(nonZero90, quantile)),
		TStableDays: stableFloorDays,
		FilesTotal:  len(entities),
		ComputedAt:  nowTS,
	}

	for i := range entities {
		entity := &entities[i]
		stats := storage.FileStatsOf(entity)

		stats.Commits30d = len(seen30[entity.ID])
		stats.Commits90d = len(seen90[entity.ID])

		if stats.LastCommitTS > 0 {
			stats.DaysSinceChange = int((nowTS - stats.LastCommitTS) / 86400)
		}
		stats.CommitsPerMonth = lifetimeRate(stats.TotalCommits, stats.FirstCommitTS, nowTS)

		stats.IsHot = false
		stats.IsStable = false
		stats.IsUnknown = false
		switch {
		case stats.TotalCommits == 0:
			stats.IsUnknown = true
		case stats.Commits30d >= thresholds.THot30 || stats.Commits90d >= thresholds.THot90:
			stats.IsHot = true
		case stats.DaysSinceChange >= thresholds.TStableDays:
			stats.IsStable = true
		}

		if err := store.UpdateEntityStats(ctx, entity.ID, &stats); err != nil {
			return nil, lfcaerrors.DatabaseErrorf(err, "update activity stats for entity %d", entity.ID)
		}
	}

	if err := store.SetRepoMeta(ctx, ThresholdsKey, thresholds); err != nil {
		return nil, lfcaerrors.DatabaseError(err, "persist activity thresholds")
	}

	logger.WithFields(logrus.Fields{
		"t_hot30":       thresholds.THot30,
		"t_hot90":       thresholds.THot90,
		"t_stable_days": thresholds.TStableDays,
		"files":         thresholds.FilesTotal,
	}).Info("Materialized hot/stable activity classification")

	return thresholds, nil
}

// lifetimeRate is the file's lifetime commits per month, measured from its
// first commit to now.
func lifetimeRate(totalCommits int, firstTS, nowTS int64) float64 {
	if totalCommits == 0 || firstTS == 0 || nowTS <= firstTS {
		return 0
	}
	months := float64(nowTS-firstTS) / (30.0 * 86400.0)
	if months < 1 {
		months = 1
	}
	return float64(totalCommits) / months
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
