package cluster

// Comparison statuses.
const (
	StatusStable    = "stable"
	StatusDrifted   = "drifted"
	StatusDissolved = "dissolved"
	StatusNew       = "new"
)

// Flow records how many files moved from one old cluster into one new
// cluster.
type Flow struct {
	Source int `json:"source"`
	Target int `json:"target"`
	Value  int `json:"value"`
}

// Comparison is the verdict for one old cluster (or a tag for an unmatched
// new cluster). NewID is nil for dissolved clusters; OldID is nil for new
// ones.
type Comparison struct {
	OldID        *int    `json:"old_id"`
	NewID        *int    `json:"new_id"`
	OverlapCount int     `json:"overlap_count,omitempty"`
	OverlapRatio float64 `json:"overlap_ratio,omitempty"`
	Status       string  `json:"status"`
	SizeDiff     int     `json:"size_diff,omitempty"`
}

// NodeSummary is one cluster's id and size for the flow diagram.
type NodeSummary struct {
	ID   int `json:"id"`
	Size int `json:"size"`
}

// CompareSummary counts comparisons per status.
type CompareSummary struct {
	Stable    int `json:"stable"`
	Drifted   int `json:"drifted"`
	Dissolved int `json:"dissolved"`
	New       int `json:"new"`
}

// CompareResult is the full snapshot comparison output.
type CompareResult struct {
	Comparisons []Comparison `json:"comparisons"`
	Flows       []Flow       `json:"flows"`
	OldNodes    []NodeSummary `json:"old_nodes"`
	NewNodes    []NodeSummary `json:"new_nodes"`
	Summary     CompareSummary `json:"summary"`
}

// Compare identifies drift and flows between two cluster results. Every old
// cluster appears exactly once in the comparisons; every new cluster appears
// at least once (as a best match or tagged new).
func Compare(oldResult, newResult *Result) *CompareResult {
	result := &CompareResult{}

	for _, c := range oldResult.Clusters {
		result.OldNodes = append(result.OldNodes, NodeSummary{ID: c.ID, Size: c.Size})
	}
	for _, c := range newResult.Clusters {
		result.NewNodes = append(result.NewNodes, NodeSummary{ID: c.ID, Size: c.Size})
	}

	newSets := make(map[int]map[int64]bool, len(newResult.Clusters))
	for _, nc := range newResult.Clusters {
		set := make(map[int64]bool, len(nc.FileIDs))
		for _, id := range nc.FileIDs {
			set[id] = true
		}
		newSets[nc.ID] = set
	}

	matchedNew := make(map[int]bool)

	for _, oc := range oldResult.Clusters {
		ocSize := len(oc.FileIDs)

		var best *Cluster
		maxOverlap := 0

		for _, nc := range newResult.Clusters {
			set := newSets[nc.ID]
			overlap := 0
			for _, id := range oc.FileIDs {
				if set[id] {
					overlap++
				}
			}

			if overlap > 0 {
				result.Flows = append(result.Flows, Flow{
					Source: oc.ID,
					Target: nc.ID,
					Value:  overlap,
				})
			}

			if overlap > maxOverlap {
				maxOverlap = overlap
				best = nc
			}
		}

		oldID := oc.ID
		if best != nil {
			larger := ocSize
			if len(best.FileIDs) > larger {
				larger = len(best.FileIDs)
			}
			ratio := float64(maxOverlap) / float64(larger)

			status := StatusDrifted
			if ratio > 0.8 {
				status = StatusStable
			}

			newID := best.ID
			matchedNew[newID] = true
			result.Comparisons = append(result.Comparisons, Comparison{
				OldID:        &oldID,
				NewID:        &newID,
				OverlapCount: maxOverlap,
				OverlapRatio: ratio,
				Status:       status,
				SizeDiff:     len(best.FileIDs) - ocSize,
			})
		} else {
			result.Comparisons = append(result.Comparisons, Comparison{
				OldID:  &oldID,
				Status: StatusDissolved,
			})
		}
	}

	// New clusters: any that were not the best match for any old cluster.
	for _, nc := range newResult.Clusters {
		if !matchedNew[nc.ID] {
			newID := nc.ID
			result.Comparisons = append(result.Comparisons, Comparison{
				NewID:  &newID,
				Status: StatusNew,
			})
		}
	}

	for _, c := range result.Comparisons {
		switch c.Status {
		case StatusStable:
			result.Summary.Stable++
		case StatusDrifted:
			result.Summary.Drifted++
		case StatusDissolved:
			result.Summary.Dissolved++
		case StatusNew:
			result.Summary.New++
		}
	}

	return result
}
