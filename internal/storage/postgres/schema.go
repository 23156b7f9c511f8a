package postgres

// Schema creates the tables and indexes for the postgres store. The dense
// column uses pgvector; sparse retrieval rides PostgreSQL's tsvector with a
// trigger keeping content_tsv current.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	content           TEXT NOT NULL,
	project           TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT '',
	context           TEXT NOT NULL DEFAULT '',
	tags              JSONB,
	detail            JSONB,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	last_accessed     TIMESTAMPTZ NOT NULL,
	tier              TEXT NOT NULL,
	strength          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	pinned            BOOLEAN NOT NULL DEFAULT FALSE,
	archived          BOOLEAN NOT NULL DEFAULT FALSE,
	archived_at       TIMESTAMPTZ,
	access_count      INTEGER NOT NULL DEFAULT 0,
	importance_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	recency_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	usefulness_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating            INTEGER NOT NULL DEFAULT 0,
	low_quality_since TIMESTAMPTZ,
	consolidated_from JSONB,
	content_hash      TEXT NOT NULL DEFAULT '',
	decayed_at        TIMESTAMPTZ,
	content_tsv       tsvector
);

CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_content_tsv ON memories USING GIN(content_tsv);

CREATE OR REPLACE FUNCTION memories_tsv_update() RETURNS trigger AS $$
BEGIN
	NEW.content_tsv := to_tsvector('english', COALESCE(NEW.content, ''));
	RETURN NEW;
END
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memories_tsv_trigger ON memories;
CREATE TRIGGER memories_tsv_trigger
	BEFORE INSERT OR UPDATE OF content ON memories
	FOR EACH ROW EXECUTE FUNCTION memories_tsv_update();

CREATE TABLE IF NOT EXISTS relations (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id  TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	valid_from TIMESTAMPTZ NOT NULL,
	valid_to   TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_active_edge
	ON relations(source_id, target_id, type) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);

CREATE TABLE IF NOT EXISTS embeddings (
	memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	sparse    JSONB
);
`

// MigrationPgvector adds the vector column once the extension is confirmed.
// Dimension 768 matches the default embedding model; stores with other
// models should migrate the column accordingly.
const MigrationPgvector = `
ALTER TABLE embeddings ADD COLUMN IF NOT EXISTS dense vector(768);
CREATE INDEX IF NOT EXISTS idx_embeddings_dense
	ON embeddings USING ivfflat (dense vector_cosine_ops) WITH (lists = 100);
`
