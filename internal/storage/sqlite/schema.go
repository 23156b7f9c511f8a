package sqlite

// Schema creates the tables and indexes for the sqlite store.
//
// Relations carry a partial unique index over active edges only: closing a
// relation (setting valid_to) frees the (source, target, type) slot so a
// later re-link is possible while history is preserved.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	content           TEXT NOT NULL,
	project           TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	context           TEXT NOT NULL DEFAULT '',
	tags              TEXT,
	detail            TEXT,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL,
	last_accessed     TIMESTAMP NOT NULL,
	tier              TEXT NOT NULL,
	strength          REAL NOT NULL DEFAULT 1.0,
	pinned            INTEGER NOT NULL DEFAULT 0,
	archived          INTEGER NOT NULL DEFAULT 0,
	archived_at       TIMESTAMP,
	access_count      INTEGER NOT NULL DEFAULT 0,
	importance_score  REAL NOT NULL DEFAULT 0,
	recency_score     REAL NOT NULL DEFAULT 0,
	quality_score     REAL NOT NULL DEFAULT 0,
	usefulness_score  REAL NOT NULL DEFAULT 0,
	rating            INTEGER NOT NULL DEFAULT 0,
	low_quality_since TIMESTAMP,
	consolidated_from TEXT,
	content_hash      TEXT NOT NULL DEFAULT '',
	decayed_at        TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(tier);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS relations (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id  TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	valid_from TIMESTAMP NOT NULL,
	valid_to   TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_active_edge
	ON relations(source_id, target_id, type) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);

CREATE TABLE IF NOT EXISTS embeddings (
	memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	dense     TEXT,
	sparse    TEXT
);
`
