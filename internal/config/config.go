package config

import (
	"os"
	"path/filepath"
)

// Validation modes for the log parser.
const (
	ValidationStrict     = "strict"
	ValidationSoft       = "soft"
	ValidationPermissive = "permissive"
)

// Changeset grouping modes.
const (
	ModeByCommit     = "by_commit"
	ModeByAuthorTime = "by_author_time"
	ModeByTicketID   = "by_ticket_id"
)

// Bulk changeset policies.
const (
	BulkExclude    = "exclude"
	BulkDownweight = "downweight"
)

// Options is the single source of truth for git analysis runtime
// configuration. Zero values of the nullable ints mean "unset".
type Options struct {
	// Scope filters
	IncludePaths      []string `yaml:"include_paths" mapstructure:"include_paths"`
	ExcludePaths      []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	IncludeExtensions []string `yaml:"include_extensions" mapstructure:"include_extensions"`
	ExcludeExtensions []string `yaml:"exclude_extensions" mapstructure:"exclude_extensions"`

	// Commit range
	Since      string `yaml:"since" mapstructure:"since"`
	Until      string `yaml:"until" mapstructure:"until"`
	WindowDays int    `yaml:"window_days" mapstructure:"window_days"`

	// Git history traversal
	Ref                  string `yaml:"ref" mapstructure:"ref"`
	AllRefs              bool   `yaml:"all_refs" mapstructure:"all_refs"`
	SkipMergeCommits     bool   `yaml:"skip_merge_commits" mapstructure:"skip_merge_commits"`
	FirstParentOnly      bool   `yaml:"first_parent_only" mapstructure:"first_parent_only"`
	FindRenamesThreshold int    `yaml:"find_renames_threshold" mapstructure:"find_renames_threshold"`

	// Changeset grouping and filtering
	MaxChangesetSize        int    `yaml:"max_changeset_size" mapstructure:"max_changeset_size"`
	MaxLogicalChangesetSize int    `yaml:"max_logical_changeset_size" mapstructure:"max_logical_changeset_size"`
	MinRevisions            int    `yaml:"min_revisions" mapstructure:"min_revisions"`
	MinCooccurrence         int    `yaml:"min_cooccurrence" mapstructure:"min_cooccurrence"`
	ChangesetMode           string `yaml:"changeset_mode" mapstructure:"changeset_mode"`
	AuthorTimeWindowHours   int    `yaml:"author_time_window_hours" mapstructure:"author_time_window_hours"`
	TicketIDPattern         string `yaml:"ticket_id_pattern" mapstructure:"ticket_id_pattern"`
	BulkPolicy              string `yaml:"bulk_policy" mapstructure:"bulk_policy"`

	// Coupling graph controls
	TopKEdgesPerFile         int `yaml:"topk_edges_per_file" mapstructure:"topk_edges_per_file"`
	ComponentDepth           int `yaml:"component_depth" mapstructure:"component_depth"`
	MinComponentCooccurrence int `yaml:"min_component_cooccurrence" mapstructure:"min_component_cooccurrence"`
	DecayHalfLifeDays        int `yaml:"decay_half_life_days" mapstructure:"decay_half_life_days"`

	// Reporting/validation
	HotspotThreshold    int    `yaml:"hotspot_threshold" mapstructure:"hotspot_threshold"`
	ValidationMode      string `yaml:"validation_mode" mapstructure:"validation_mode"`
	MaxValidationIssues int    `yaml:"max_validation_issues" mapstructure:"max_validation_issues"`
}

// Default returns default analysis options.
func Default() *Options {
	return &Options{
		Ref:                      "HEAD",
		SkipMergeCommits:         true,
		FindRenamesThreshold:     60,
		MaxChangesetSize:         50,
		MaxLogicalChangesetSize:  100,
		MinRevisions:             3,
		MinCooccurrence:          3,
		ChangesetMode:            ModeByCommit,
		AuthorTimeWindowHours:    24,
		BulkPolicy:               BulkExclude,
		TopKEdgesPerFile:         50,
		ComponentDepth:           2,
		MinComponentCooccurrence: 3,
		HotspotThreshold:         50,
		ValidationMode:           ValidationSoft,
		MaxValidationIssues:      200,
	}
}

// Normalize resolves empty strings and non-positive nullable ints to their
// unset form, and fills missing fields from defaults.
func (o *Options) Normalize() {
	def := Default()
	if o.Ref == "" {
		o.Ref = def.Ref
	}
	if o.FindRenamesThreshold <= 0 || o.FindRenamesThreshold > 100 {
		o.FindRenamesThreshold = def.FindRenamesThreshold
	}
	if o.MinRevisions < 1 {
		o.MinRevisions = 1
	}
	if o.MinCooccurrence < 1 {
		o.MinCooccurrence = 1
	}
	if o.ChangesetMode == "" {
		o.ChangesetMode = def.ChangesetMode
	}
	if o.AuthorTimeWindowHours <= 0 {
		o.AuthorTimeWindowHours = def.AuthorTimeWindowHours
	}
	if o.BulkPolicy == "" {
		o.BulkPolicy = def.BulkPolicy
	}
	if o.ComponentDepth < 1 {
		o.ComponentDepth = def.ComponentDepth
	}
	if o.MinComponentCooccurrence < 1 {
		o.MinComponentCooccurrence = 1
	}
	if o.HotspotThreshold <= 0 {
		o.HotspotThreshold = def.HotspotThreshold
	}
	if o.ValidationMode == "" {
		o.ValidationMode = def.ValidationMode
	}
	if o.MaxValidationIssues < 0 {
		o.MaxValidationIssues = 0
	}
	// Nullable caps: anything non-positive means "no cap".
	if o.MaxChangesetSize < 0 {
		o.MaxChangesetSize = 0
	}
	if o.MaxLogicalChangesetSize < 0 {
		o.MaxLogicalChangesetSize = 0
	}
	if o.TopKEdgesPerFile < 0 {
		o.TopKEdgesPerFile = 0
	}
	if o.DecayHalfLifeDays < 0 {
		o.DecayHalfLifeDays = 0
	}
	if o.WindowDays < 0 {
		o.WindowDays = 0
	}
}

// Paths describes the on-disk layout of one repo's artifacts.
type Paths struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// DefaultPaths places artifacts under ~/.lfca/<repoName>.
func DefaultPaths(repoName string) Paths {
	homeDir, _ := os.UserHomeDir()
	return Paths{DataDir: filepath.Join(homeDir, ".lfca", repoName)}
}

// DBPath is the relational store file.
func (p Paths) DBPath() string { return filepath.Join(p.DataDir, "code-intel.sqlite") }

// ColumnarDir holds the compressed columnar commit/change tables.
func (p Paths) ColumnarDir() string { return filepath.Join(p.DataDir, "columnar") }

// MirrorPath is the bare mirror clone used as extraction input.
func (p Paths) MirrorPath() string { return filepath.Join(p.DataDir, "mirror.git") }

// LogsDir holds per-run log files.
func (p Paths) LogsDir() string { return filepath.Join(p.DataDir, "logs") }

// SnapshotPath is the bbolt file holding saved cluster results.
func (p Paths) SnapshotPath() string { return filepath.Join(p.DataDir, "snapshots.db") }

// EnsureDirs creates the directory layout.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.DataDir, p.ColumnarDir(), p.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
