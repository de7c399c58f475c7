package activity

import (
	"sort"
)

// AuthorShare is one author's slice of a file's commit distribution.
type AuthorShare struct {
	Author          string  `json:"author"`
	Commits         int     `json:"commits"`
	Share           float64 `json:"share"`
	CumulativeShare float64 `json:"cumulative_share"`
}

// BusFactor computes the minimum number of authors whose cumulative commit
// share reaches threshold, plus the full distribution sorted by commits
// descending.
func BusFactor(authorCommits map[string]int, threshold float64) (int, []AuthorShare) {
	if len(authorCommits) == 0 {
		return 0, nil
	}

	total := 0
	for _, n := range authorCommits {
		total += n
	}
	if total == 0 {
		return 0, nil
	}

	type entry struct {
		author  string
		commits int
	}
	entries := make([]entry, 0, len(authorCommits))
	for author, commits := range authorCommits {
		entries = append(entries, entry{author, commits})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].commits != entries[j].commits {
			return entries[i].commits > entries[j].commits
		}
		return entries[i].author < entries[j].author
	})

	distribution := make([]AuthorShare, 0, len(entries))
	cumulative := 0.0
	busFactor := len(entries)
	reached := false

	for i, e := range entries {
		share := float64(e.commits) / float64(total)
		cumulative += share
		distribution = append(distribution, AuthorShare{
			Author:          e.author,
			Commits:         e.commits,
			Share:           share,
			CumulativeShare: cumulative,
		})
		if cumulative >= threshold && !reached {
			busFactor = i + 1
			reached = true
		}
	}

	return busFactor, distribution
}

// TrendDirection labels a churn trend.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// ChurnTrend compares recent activity against older activity for one file.
type ChurnTrend struct {
	Direction  TrendDirection `json:"direction"`
	RecentRate float64        `json:"recent_rate"`
	PastRate   float64        `json:"past_rate"`
	Ratio      float64        `json:"ratio"`
}

// ComputeChurnTrend splits the file's change timestamps at nowTS minus
// recentMonths and compares the per-month rates on each side.
func ComputeChurnTrend(timestamps []int64, nowTS int64, recentMonths int) ChurnTrend {
	if len(timestamps) == 0 || recentMonths <= 0 {
		return ChurnTrend{Direction: TrendStable, Ratio: 1.0}
	}

	cutoff := nowTS - int64(recentMonths)*30*86400

	var recent, past int
	minTS := timestamps[0]
	for _, ts := range timestamps {
		if ts < minTS {
			minTS = ts
		}
		if ts >= cutoff {
			recent++
		} else {
			past++
		}
	}

	pastSpanMonths := float64(cutoff-minTS) / (30.0 * 86400.0)
	if pastSpanMonths < 1 {
		pastSpanMonths = 1
	}

	recentRate := float64(recent) / float64(recentMonths)
	pastRate := float64(past) / pastSpanMonths

	var ratio float64
	switch {
	case pastRate == 0 && recentRate > 0:
		ratio = 2.0
	case pastRate == 0:
		ratio = 1.0
	default:
		ratio = recentRate / pastRate
	}

	direction := TrendStable
	if ratio > 1.3 {
		direction = TrendIncreasing
	} else if ratio < 0.7 {
		direction = TrendDecreasing
	}

	return ChurnTrend{
		Direction:  direction,
		RecentRate: recentRate,
		PastRate:   pastRate,
		Ratio:      ratio,
	}
}
