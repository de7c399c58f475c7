package models

import (
	"time"
)

// Entity kinds tracked in the store. Files are the only kind the git analyzer
// creates; the other kinds are reserved for sibling analyzers that share the
// same store.
const (
	KindFile     = "file"
	KindClass    = "class"
	KindFunction = "function"
	KindModule   = "module"
	KindPackage  = "package"
)

// Entity is the canonical unit of code identity.
type Entity struct {
	ID            int64     `json:"entity_id" db:"entity_id"`
	Kind          string    `json:"kind" db:"kind"`
	Name          string    `json:"name" db:"name"`
	QualifiedName string    `json:"qualified_name" db:"qualified_name"`
	Language      string    `json:"language,omitempty" db:"language"`
	ParentID      *int64    `json:"parent_id,omitempty" db:"parent_id"`
	ExistsAtHead  bool      `json:"exists_at_head" db:"exists_at_head"`
	MetadataJSON  string    `json:"-" db:"metadata_json"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// FileStats is the extensible metadata blob carried on file entities.
// Extraction fills the lifetime fields; the activity classifier fills the
// trailing-window fields.
type FileStats struct {
	TotalCommits      int     `json:"total_commits"`
	AuthorsCount      int     `json:"authors_count"`
	TotalLinesAdded   int64   `json:"total_lines_added"`
	TotalLinesDeleted int64   `json:"total_lines_deleted"`
	FirstCommitTS     int64   `json:"first_commit_ts,omitempty"`
	LastCommitTS      int64   `json:"last_commit_ts,omitempty"`
	Commits30d        int     `json:"commits_30d"`
	Commits90d        int     `json:"commits_90d"`
	CommitsPerMonth   float64 `json:"lifetime_commits_per_month"`
	DaysSinceChange   int     `json:"days_since_last_change"`
	IsHot             bool    `json:"is_hot"`
	IsStable          bool    `json:"is_stable"`
	IsUnknown         bool    `json:"is_unknown"`
}

// LineageSegment records one path a file entity occupied. StartOID is the
// commit at which the path became current (empty while the segment is open
// at the back of a newest-first scan and the creating commit has not been
// reached yet); EndOID is the commit at which it ceased (empty for the
// current path).
type LineageSegment struct {
	FileID   int64  `json:"file_id" db:"file_id"`
	Path     string `json:"path" db:"path"`
	StartOID string `json:"start_commit_oid" db:"start_commit_oid"`
	EndOID   string `json:"end_commit_oid" db:"end_commit_oid"`
}

// CommitRecord is one row of the columnar commits table. Immutable once
// written.
type CommitRecord struct {
	OID         string `json:"commit_oid"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	AuthoredTS  int64  `json:"authored_ts"`
	CommitterTS int64  `json:"committer_ts"`
	IsMerge     bool   `json:"is_merge"`
	ParentCount int    `json:"parent_count"`
	Subject     string `json:"message_subject"`
}

// ChangeRecord is one row of the columnar changes table. FileID is the
// post-rename canonical id.
type ChangeRecord struct {
	CommitOID    string `json:"commit_oid"`
	FileID       int64  `json:"file_id"`
	Path         string `json:"path"`
	Status       string `json:"status"`
	OldPath      string `json:"old_path,omitempty"`
	CommitTS     int64  `json:"commit_ts"`
	LinesAdded   int64  `json:"lines_added,omitempty"`
	LinesDeleted int64  `json:"lines_deleted,omitempty"`
}

// Changeset is a logical bundle of one or more commits treated as a single
// co-change event.
type Changeset struct {
	ID        string
	FileIDs   []int64
	Weight    float64
	Timestamp int64
}

// FileEdge is a weighted, undirected file-file relation. Src < Dst always.
type FileEdge struct {
	Src             int64   `json:"src_entity_id" db:"src_entity_id"`
	Dst             int64   `json:"dst_entity_id" db:"dst_entity_id"`
	PairCount       float64 `json:"pair_count" db:"pair_count"`
	PairCountRaw    int     `json:"pair_count_raw" db:"pair_count_raw"`
	SrcCount        int     `json:"src_count" db:"src_count"`
	DstCount        int     `json:"dst_count" db:"dst_count"`
	SrcWeight       float64 `json:"src_weight" db:"src_weight"`
	DstWeight       float64 `json:"dst_weight" db:"dst_weight"`
	Jaccard         float64 `json:"jaccard" db:"jaccard"`
	JaccardWeighted float64 `json:"jaccard_weighted" db:"jaccard_weighted"`
	ProbDstGivenSrc float64 `json:"p_dst_given_src" db:"p_dst_given_src"`
	ProbSrcGivenDst float64 `json:"p_src_given_dst" db:"p_src_given_dst"`
}

// ComponentEdge aggregates file edges to a folder prefix at a fixed depth.
type ComponentEdge struct {
	SrcComponent  string  `json:"src_component" db:"src_component"`
	DstComponent  string  `json:"dst_component" db:"dst_component"`
	Depth         int     `json:"depth" db:"depth"`
	PairCount     float64 `json:"pair_count" db:"pair_count"`
	AvgJaccard    float64 `json:"jaccard" db:"jaccard"`
	FilePairCount int     `json:"file_pair_count" db:"file_pair_count"`
}

// Relationship is one row of the unified relationships table shared by all
// analyzer source types.
type Relationship struct {
	SourceType     string  `json:"source_type" db:"source_type"`
	RelKind        string  `json:"rel_kind" db:"rel_kind"`
	SrcEntityID    int64   `json:"src_entity_id" db:"src_entity_id"`
	DstEntityID    int64   `json:"dst_entity_id" db:"dst_entity_id"`
	Weight         float64 `json:"weight" db:"weight"`
	PropertiesJSON string  `json:"-" db:"properties_json"`
	RunID          string  `json:"run_id,omitempty" db:"run_id"`
}

// Relationship provenance emitted by the git analyzer.
const (
	SourceGit    = "git"
	RelCoChanged = "CO_CHANGED"
)

// TaskState is the lifecycle state of an analysis task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Task is one row per invocation of any pipeline phase.
type Task struct {
	ID                string    `json:"task_id" db:"task_id"`
	AnalyzerType      string    `json:"analyzer_type" db:"analyzer_type"`
	State             TaskState `json:"state" db:"state"`
	ConfigJSON        string    `json:"-" db:"config_json"`
	Progress          float64   `json:"progress" db:"progress"`
	Stage             string    `json:"stage" db:"stage"`
	EntityCount       int       `json:"entity_count" db:"entity_count"`
	RelationshipCount int       `json:"relationship_count" db:"relationship_count"`
	MetricsJSON       string    `json:"-" db:"metrics_json"`
	StartedAt         string    `json:"started_at,omitempty" db:"started_at"`
	FinishedAt        string    `json:"finished_at,omitempty" db:"finished_at"`
	Error             string    `json:"error,omitempty" db:"error"`
	CreatedAt         string    `json:"created_at" db:"created_at"`
}

// TaskStatus is the stable shape returned to external consumers polling a
// task.
type TaskStatus struct {
	TaskID            string    `json:"task_id"`
	State             TaskState `json:"state"`
	Stage             string    `json:"stage"`
	Progress          float64   `json:"progress"`
	ProcessedCommits  int       `json:"processed_commits"`
	TotalCommits      int       `json:"total_commits"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	Error             string    `json:"error,omitempty"`
	ElapsedSeconds    float64   `json:"elapsed_seconds"`
}

// ValidationIssue records one parser complaint, with enough commit context to
// debug the offending stream position.
type ValidationIssue struct {
	CommitOID   string `json:"commit_oid,omitempty" db:"commit_oid"`
	Type        string `json:"issue_type" db:"issue_type"`
	Severity    string `json:"severity" db:"severity"`
	Token       string `json:"token_value,omitempty" db:"token_value"`
	Expected    string `json:"expected_value,omitempty" db:"expected_value"`
	Message     string `json:"message" db:"message"`
	Author      string `json:"author,omitempty" db:"author"`
	CommittedAt int64  `json:"committed_at,omitempty" db:"committed_at"`
	Subject     string `json:"subject,omitempty" db:"subject"`
	Cursor      int64  `json:"cursor_position,omitempty" db:"cursor_position"`
}

// Issue types produced by the log parser and extractor.
const (
	IssueInvalidStatus    = "invalid_status"
	IssueInvalidPath      = "invalid_path"
	IssueIncompleteChange = "incomplete_change"
	IssueInvalidCommitOID = "invalid_commit_oid"
	IssueSuspiciousPath   = "suspicious_path"
)

// Issue severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// RepoSummary is the repo-level rollup persisted after extraction for fast
// dashboard queries.
type RepoSummary struct {
	FileCount    int   `json:"file_count"`
	CommitCount  int   `json:"commit_count"`
	TotalAuthors int   `json:"total_authors"`
	LinesAdded   int64 `json:"lines_added"`
	LinesDeleted int64 `json:"lines_deleted"`
	HotspotCount int   `json:"hotspot_count"`
}
