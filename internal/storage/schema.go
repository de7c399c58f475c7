package storage

// SchemaVersion is bumped whenever the table set changes. Creation is
// idempotent; the version row records what the file was last initialized
// with.
const SchemaVersion = 3

const schema = `
CREATE TABLE IF NOT EXISTS repo_meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS schema_info (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT NOT NULL,
	name            TEXT NOT NULL,
	qualified_name  TEXT,
	language        TEXT,
	parent_id       INTEGER REFERENCES entities(entity_id),
	exists_at_head  BOOLEAN DEFAULT TRUE,
	metadata_json   TEXT,
	created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_qualified
	ON entities(qualified_name) WHERE qualified_name IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS relationships (
	rel_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_type     TEXT NOT NULL,
	rel_kind        TEXT NOT NULL,
	src_entity_id   INTEGER NOT NULL REFERENCES entities(entity_id),
	dst_entity_id   INTEGER NOT NULL REFERENCES entities(entity_id),
	weight          REAL DEFAULT 1.0,
	properties_json TEXT,
	run_id          TEXT,
	created_at      TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_type);
CREATE INDEX IF NOT EXISTS idx_rel_kind ON relationships(rel_kind);
CREATE INDEX IF NOT EXISTS idx_rel_src ON relationships(src_entity_id);
CREATE INDEX IF NOT EXISTS idx_rel_dst ON relationships(dst_entity_id);
CREATE INDEX IF NOT EXISTS idx_rel_weight ON relationships(weight DESC);

CREATE TABLE IF NOT EXISTS git_edges (
	src_entity_id   INTEGER NOT NULL REFERENCES entities(entity_id),
	dst_entity_id   INTEGER NOT NULL REFERENCES entities(entity_id),
	pair_count      REAL NOT NULL,
	pair_count_raw  INTEGER NOT NULL,
	src_count       INTEGER NOT NULL,
	dst_count       INTEGER NOT NULL,
	src_weight      REAL NOT NULL,
	dst_weight      REAL NOT NULL,
	jaccard         REAL NOT NULL,
	jaccard_weighted REAL NOT NULL,
	p_dst_given_src REAL NOT NULL,
	p_src_given_dst REAL NOT NULL,
	PRIMARY KEY (src_entity_id, dst_entity_id)
);

CREATE INDEX IF NOT EXISTS idx_git_edges_jaccard ON git_edges(jaccard DESC);

CREATE TABLE IF NOT EXISTS git_component_edges (
	src_component   TEXT NOT NULL,
	dst_component   TEXT NOT NULL,
	depth           INTEGER NOT NULL,
	pair_count      REAL NOT NULL,
	jaccard         REAL NOT NULL,
	file_pair_count INTEGER NOT NULL,
	PRIMARY KEY (src_component, dst_component, depth)
);

CREATE TABLE IF NOT EXISTS file_lineage (
	file_id          INTEGER NOT NULL REFERENCES entities(entity_id),
	path             TEXT NOT NULL,
	start_commit_oid TEXT NOT NULL DEFAULT '',
	end_commit_oid   TEXT,
	PRIMARY KEY (file_id, path, start_commit_oid)
);

CREATE INDEX IF NOT EXISTS idx_lineage_path ON file_lineage(path);

CREATE TABLE IF NOT EXISTS analysis_tasks (
	task_id            TEXT PRIMARY KEY,
	analyzer_type      TEXT NOT NULL,
	state              TEXT NOT NULL DEFAULT 'pending',
	config_json        TEXT,
	progress           REAL DEFAULT 0.0,
	stage              TEXT,
	entity_count       INTEGER DEFAULT 0,
	relationship_count INTEGER DEFAULT 0,
	metrics_json       TEXT,
	started_at         TEXT,
	finished_at        TEXT,
	error              TEXT,
	created_at         TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_type ON analysis_tasks(analyzer_type);
CREATE INDEX IF NOT EXISTS idx_tasks_state ON analysis_tasks(state);

CREATE TABLE IF NOT EXISTS validation_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	commit_oid      TEXT,
	issue_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	token_value     TEXT,
	expected_value  TEXT,
	message         TEXT NOT NULL,
	author          TEXT,
	committed_at    INTEGER,
	subject         TEXT,
	cursor_position INTEGER,
	created_at      TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS clustering_snapshots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	algorithm  TEXT,
	tags_json  TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`
