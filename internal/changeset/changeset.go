package changeset

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/rohankatakam/lfca/internal/config"
	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
	"github.com/rohankatakam/lfca/internal/models"
)

// Group bundles the persisted commits and changes into logical changesets
// according to the configured mode. Each changeset carries weight 1.0; the
// edge builder applies downweighting and decay on top.
func Group(commits []models.CommitRecord, changes []models.ChangeRecord, opts *config.Options) ([]models.Changeset, error) {
	switch opts.ChangesetMode {
	case config.ModeByCommit:
		return byCommit(commits, changes, opts), nil
	case config.ModeByAuthorTime:
		return byAuthorTime(commits, changes, opts), nil
	case config.ModeByTicketID:
		return byTicketID(commits, changes, opts)
	default:
		return nil, lfcaerrors.ConfigErrorf("unknown changeset_mode: %q", opts.ChangesetMode)
	}
}

// filesByCommit groups the change table's file ids per commit.
func filesByCommit(changes []models.ChangeRecord) map[string]map[int64]bool {
	files := make(map[string]map[int64]bool)
	for _, ch := range changes {
		set, ok := files[ch.CommitOID]
		if !ok {
			set = make(map[int64]bool)
			files[ch.CommitOID] = set
		}
		set[ch.FileID] = true
	}
	return files
}

func setToSlice(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// byCommit makes one changeset per commit. Oversized commits are dropped here
// only under the exclude policy; the downweight policy keeps them so the edge
// builder can apply the 1/ln(1+size) multiplier.
func byCommit(commits []models.CommitRecord, changes []models.ChangeRecord, opts *config.Options) []models.Changeset {
	commitFiles := filesByCommit(changes)

	var result []models.Changeset
	for _, commit := range commits {
		set, ok := commitFiles[commit.OID]
		if !ok {
			continue
		}
		if opts.MaxChangesetSize > 0 && opts.BulkPolicy == config.BulkExclude && len(set) > opts.MaxChangesetSize {
			continue
		}
		result = append(result, models.Changeset{
			ID:        commit.OID,
			FileIDs:   setToSlice(set),
			Weight:    1.0,
			Timestamp: commit.CommitterTS,
		})
	}
	return result
}

// byAuthorTime groups consecutive commits by the same author within a rolling
// time window. A bundle closes when the author changes or the next commit
// falls past the bundle's start time plus the window.
func byAuthorTime(commits []models.CommitRecord, changes []models.ChangeRecord, opts *config.Options) []models.Changeset {
	windowSeconds := int64(opts.AuthorTimeWindowHours) * 3600
	commitFiles := filesByCommit(changes)

	sorted := make([]models.CommitRecord, len(commits))
	copy(sorted, commits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CommitterTS < sorted[j].CommitterTS })

	var result []models.Changeset
	var current map[int64]bool
	var currentID string
	var currentAuthor string
	var currentStart int64
	var currentEndTime int64

	flush := func() {
		if current == nil {
			return
		}
		if opts.MaxLogicalChangesetSize == 0 || len(current) <= opts.MaxLogicalChangesetSize {
			result = append(result, models.Changeset{
				ID:        currentID,
				FileIDs:   setToSlice(current),
				Weight:    1.0,
				Timestamp: currentStart,
			})
		}
		current = nil
	}

	for _, commit := range sorted {
		author := commit.AuthorEmail
		ts := commit.CommitterTS

		if current == nil || author != currentAuthor || ts > currentEndTime {
			flush()
			current = make(map[int64]bool)
			currentID = fmt.Sprintf("%s:%d", author, ts)
			currentAuthor = author
			currentStart = ts
			currentEndTime = ts + windowSeconds
		}

		for id := range commitFiles[commit.OID] {
			current[id] = true
		}
	}
	flush()

	return result
}

// byTicketID groups commits by a ticket id extracted from the subject line.
// Commits with no match fall back to singleton groups keyed by commit id.
func byTicketID(commits []models.CommitRecord, changes []models.ChangeRecord, opts *config.Options) ([]models.Changeset, error) {
	if opts.TicketIDPattern == "" {
		return nil, lfcaerrors.ConfigError("ticket_id_pattern required for by_ticket_id mode")
	}
	pattern, err := regexp.Compile(opts.TicketIDPattern)
	if err != nil {
		return nil, lfcaerrors.ConfigErrorf("invalid ticket_id_pattern: %v", err)
	}

	commitFiles := filesByCommit(changes)

	ticketFiles := make(map[string]map[int64]bool)
	ticketTS := make(map[string]int64)
	var order []string

	for _, commit := range commits {
		var ticketID string
		if m := pattern.FindStringSubmatch(commit.Subject); m != nil {
			if len(m) > 1 {
				ticketID = m[1]
			} else {
				ticketID = m[0]
			}
		} else {
			ticketID = commit.OID
		}

		set, ok := ticketFiles[ticketID]
		if !ok {
			set = make(map[int64]bool)
			ticketFiles[ticketID] = set
			ticketTS[ticketID] = commit.CommitterTS
			order = append(order, ticketID)
		}
		for id := range commitFiles[commit.OID] {
			set[id] = true
		}
	}

	var result []models.Changeset
	for _, ticketID := range order {
		set := ticketFiles[ticketID]
		if opts.MaxLogicalChangesetSize > 0 && len(set) > opts.MaxLogicalChangesetSize {
			continue
		}
		result = append(result, models.Changeset{
			ID:        ticketID,
			FileIDs:   setToSlice(set),
			Weight:    1.0,
			Timestamp: ticketTS[ticketID],
		})
	}
	return result, nil
}
