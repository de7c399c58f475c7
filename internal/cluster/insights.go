package cluster

import (
	"context"
	"sort"

	"github.com/rohankatakam/lfca/internal/models"
	"github.com/rohankatakam/lfca/internal/storage"
)

// CalculateInsights enriches a cluster result in place: per-cluster churn,
// average internal coupling, hot files, top commits, and common authors.
// When edges is non-nil it is used directly for the coupling numbers;
// otherwise the relationship table is queried.
func CalculateInsights(ctx context.Context, store *storage.Store, columnar *storage.Columnar, result *Result, edges []Edge) error {
	if len(result.Clusters) == 0 {
		return nil
	}

	changes, err := columnar.ReadChanges()
	if err != nil {
		return err
	}
	commits, err := columnar.ReadCommits()
	if err != nil {
		return err
	}

	// Author and subject lookups per commit.
	type commitInfo struct {
		authorName  string
		authorEmail string
		subject     string
	}
	commitMeta := make(map[string]commitInfo, commits.Len())
	for i := 0; i < commits.Len(); i++ {
		commitMeta[commits.OIDs[i]] = commitInfo{
			authorName:  commits.AuthorNames[i],
			authorEmail: commits.AuthorEmails[i],
			subject:     commits.Subjects[i],
		}
	}

	// Member info from the entity table.
	var allIDs []int64
	for _, c := range result.Clusters {
		allIDs = append(allIDs, c.FileIDs...)
	}
	entities, err := store.EntitiesByID(ctx, allIDs)
	if err != nil {
		return err
	}

	type fileInfo struct {
		path  string
		churn int
	}
	files := make(map[int64]fileInfo, len(entities))
	for id, entity := range entities {
		stats := storage.FileStatsOf(&entity)
		files[id] = fileInfo{path: entity.QualifiedName, churn: stats.TotalCommits}
	}

	var rels []models.Relationship
	if edges == nil {
		rels, err = store.GitRelationships(ctx)
		if err != nil {
			return err
		}
	}

	for _, c := range result.Clusters {
		memberSet := make(map[int64]bool, len(c.FileIDs))
		for _, id := range c.FileIDs {
			memberSet[id] = true
		}

		// Total churn: sum of member commit counts.
		c.TotalChurn = 0
		for _, id := range c.FileIDs {
			c.TotalChurn += files[id].churn
		}

		// Average internal coupling: mean weight over intra-cluster edges.
		c.AvgCoupling = 0
		if len(c.FileIDs) > 1 {
			var sum float64
			var count int
			if edges != nil {
				for _, e := range edges {
					if memberSet[e.Src] && memberSet[e.Dst] {
						sum += e.Weight
						count++
					}
				}
			} else {
				for _, r := range rels {
					if memberSet[r.SrcEntityID] && memberSet[r.DstEntityID] {
						sum += r.Weight
						count++
					}
				}
			}
			if count > 0 {
				c.AvgCoupling = sum / float64(count)
			}
		}

		// Hot files: top 5 members by churn.
		memberIDs := append([]int64(nil), c.FileIDs...)
		sort.Slice(memberIDs, func(i, j int) bool {
			if files[memberIDs[i]].churn != files[memberIDs[j]].churn {
				return files[memberIDs[i]].churn > files[memberIDs[j]].churn
			}
			return memberIDs[i] < memberIDs[j]
		})
		c.HotFiles = nil
		for i, id := range memberIDs {
			if i >= 5 {
				break
			}
			c.HotFiles = append(c.HotFiles, HotFile{Path: files[id].path, Churn: files[id].churn})
		}

		// Per-commit member touches and per-author distinct commits.
		commitTouches := make(map[string]int)
		authorCommits := make(map[string]map[string]bool)
		authorNames := make(map[string]string)
		for i := 0; i < changes.Len(); i++ {
			if !memberSet[changes.FileIDs[i]] {
				continue
			}
			oid := changes.CommitOIDs[i]
			commitTouches[oid]++
			meta := commitMeta[oid]
			key := meta.authorEmail
			if authorCommits[key] == nil {
				authorCommits[key] = make(map[string]bool)
			}
			authorCommits[key][oid] = true
			authorNames[key] = meta.authorName
		}

		// Top commits: the 5 commits touching the most members.
		type touch struct {
			oid   string
			count int
		}
		touches := make([]touch, 0, len(commitTouches))
		for oid, count := range commitTouches {
			touches = append(touches, touch{oid, count})
		}
		sort.Slice(touches, func(i, j int) bool {
			if touches[i].count != touches[j].count {
				return touches[i].count > touches[j].count
			}
			return touches[i].oid < touches[j].oid
		})
		c.TopCommits = nil
		for i, t := range touches {
			if i >= 5 {
				break
			}
			meta := commitMeta[t.oid]
			c.TopCommits = append(c.TopCommits, TopCommit{
				OID:       t.oid,
				Message:   meta.subject,
				Author:    meta.authorName,
				FileCount: t.count,
			})
		}

		// Common authors: the 5 authors with the most distinct commits
		// touching the cluster.
		type authorStat struct {
			email string
			count int
		}
		stats := make([]authorStat, 0, len(authorCommits))
		for email, oids := range authorCommits {
			stats = append(stats, authorStat{email, len(oids)})
		}
		sort.Slice(stats, func(i, j int) bool {
			if stats[i].count != stats[j].count {
				return stats[i].count > stats[j].count
			}
			return stats[i].email < stats[j].email
		})
		c.CommonAuthors = nil
		for i, s := range stats {
			if i >= 5 {
				break
			}
			c.CommonAuthors = append(c.CommonAuthors, AuthorActivity{
				Name:        authorNames[s.email],
				Email:       s.email,
				CommitCount: s.count,
			})
		}
	}

	return nil
}
