// Package postgres implements the storage contracts on PostgreSQL with
// pgvector for dense similarity and tsvector full-text search for sparse
// relevance. It degrades to sparse-only retrieval when the pgvector
// extension is missing.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db *sql.DB

	pgvectorAvailable bool
}

// New connects to PostgreSQL, applies the schema, and probes for pgvector.
// A missing pgvector extension disables dense search but is not fatal.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: db}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available (dense search disabled): %v", err)
	} else {
		s.pgvectorAvailable = true
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	if s.pgvectorAvailable {
		if _, err := db.Exec(MigrationPgvector); err != nil {
			log.Printf("postgres: pgvector migration failed (dense search disabled): %v", err)
			s.pgvectorAvailable = false
		}
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store creates a memory record.
func (s *Store) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory and its ID are required", storage.ErrInvalidInput)
	}
	if err := memory.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	tagsJSON, detailJSON, consolidatedJSON, err := marshalAux(memory)
	if err != nil {
		return err
	}

	now := time.Now()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = now
	}
	if memory.LastAccessed.IsZero() {
		memory.LastAccessed = memory.CreatedAt
	}
	if memory.Tier == "" {
		memory.Tier = types.TierEpisodic
	}
	if memory.ContentHash == "" {
		memory.ContentHash = types.HashContent(memory.Content)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, type, content, project, source, context, tags, detail,
			created_at, updated_at, last_accessed,
			tier, strength, pinned, archived, archived_at,
			access_count, importance_score, recency_score, quality_score,
			usefulness_score, rating, low_quality_since, consolidated_from,
			content_hash, decayed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		memory.ID, string(memory.Type), memory.Content, memory.Project,
		memory.Source, memory.Context, nullableBytes(tagsJSON), nullableBytes(detailJSON),
		memory.CreatedAt, memory.UpdatedAt, memory.LastAccessed,
		string(memory.Tier), memory.Strength, memory.Pinned, memory.Archived,
		nullableTime(memory.ArchivedAt),
		memory.AccessCount, memory.ImportanceScore, memory.RecencyScore,
		memory.QualityScore, memory.UsefulnessScore, memory.Rating,
		nullableTime(memory.LowQualitySince), nullableBytes(consolidatedJSON),
		memory.ContentHash, nullableTime(memory.DecayedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: store memory: %w", err)
	}
	return nil
}

const memoryColumns = `
	id, type, content, project, source, context, tags, detail,
	created_at, updated_at, last_accessed,
	tier, strength, pinned, archived, archived_at,
	access_count, importance_score, recency_score, quality_score,
	usefulness_score, rating, low_quality_since, consolidated_from,
	content_hash, decayed_at`

// Get retrieves a memory by ID, archived included.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+memoryColumns+" FROM memories WHERE id = $1", id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: memory %s", storage.ErrNotFound, id)
	}
	return m, err
}

// List retrieves memories with pagination and filtering.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Type != "" {
		conds = append(conds, "type = "+arg(string(opts.Type)))
	}
	if opts.Project != "" {
		conds = append(conds, "project = "+arg(opts.Project))
	}
	if opts.Tier != "" {
		conds = append(conds, "tier = "+arg(string(opts.Tier)))
	}
	if !opts.IncludeArchived {
		conds = append(conds, "archived = FALSE")
	}
	if opts.Pinned != nil {
		conds = append(conds, "pinned = "+arg(*opts.Pinned))
	}
	if !opts.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < "+arg(opts.CreatedBefore))
	}
	if !opts.CreatedAfter.IsZero() {
		conds = append(conds, "created_at > "+arg(opts.CreatedAfter))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: count memories: %w", err)
	}

	query := fmt.Sprintf("SELECT%s FROM memories%s ORDER BY %s %s LIMIT %s OFFSET %s",
		memoryColumns, where, opts.SortBy, strings.ToUpper(opts.SortOrder),
		arg(opts.Limit), arg(opts.Offset()))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list memories: %w", err)
	}
	defer rows.Close()

	items := make([]types.Memory, 0, opts.Limit)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list memories: %w", err)
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Update modifies an existing memory.
func (s *Store) Update(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory and its ID are required", storage.ErrInvalidInput)
	}
	tagsJSON, detailJSON, consolidatedJSON, err := marshalAux(memory)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			type = $1, content = $2, project = $3, source = $4, context = $5,
			tags = $6, detail = $7,
			updated_at = $8, last_accessed = $9,
			tier = $10, strength = $11, pinned = $12, archived = $13,
			archived_at = $14,
			access_count = $15, importance_score = $16, recency_score = $17,
			quality_score = $18, usefulness_score = $19, rating = $20,
			low_quality_since = $21, consolidated_from = $22, content_hash = $23,
			decayed_at = $24
		WHERE id = $25`,
		string(memory.Type), memory.Content, memory.Project, memory.Source,
		memory.Context, nullableBytes(tagsJSON), nullableBytes(detailJSON),
		memory.UpdatedAt, memory.LastAccessed,
		string(memory.Tier), memory.Strength, memory.Pinned, memory.Archived,
		nullableTime(memory.ArchivedAt),
		memory.AccessCount, memory.ImportanceScore, memory.RecencyScore,
		memory.QualityScore, memory.UsefulnessScore, memory.Rating,
		nullableTime(memory.LowQualitySince), nullableBytes(consolidatedJSON),
		memory.ContentHash, nullableTime(memory.DecayedAt),
		memory.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update memory: %w", err)
	}
	return requireRow(res, memory.ID)
}

// RecordAccess atomically applies access bookkeeping in one statement.
func (s *Store) RecordAccess(ctx context.Context, id string, newStrength float64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			access_count = access_count + 1,
			last_accessed = $1,
			strength = $2
		WHERE id = $3`,
		now, newStrength, id)
	if err != nil {
		return fmt.Errorf("postgres: record access: %w", err)
	}
	return requireRow(res, id)
}

// UpdateTier changes the lifecycle tier after validating the transition.
func (s *Store) UpdateTier(ctx context.Context, id string, tier types.Tier) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !types.IsValidTierTransition(m.Tier, tier) {
		return fmt.Errorf("%w: tier transition %s -> %s", storage.ErrInvalidInput, m.Tier, tier)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE memories SET tier = $1, updated_at = $2 WHERE id = $3",
		string(tier), time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: update tier: %w", err)
	}
	return requireRow(res, id)
}

// FindByContentHash returns ids of memories with the given hash, newest first.
func (s *Store) FindByContentHash(ctx context.Context, hash string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM memories WHERE content_hash = $1 ORDER BY created_at DESC", hash)
	if err != nil {
		return nil, fmt.Errorf("postgres: find by content hash: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Purge hard-deletes a memory; relations and embeddings cascade.
func (s *Store) Purge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: purge memory: %w", err)
	}
	return requireRow(res, id)
}

func marshalAux(m *types.Memory) (tags, detail, consolidated []byte, err error) {
	if len(m.Tags) > 0 {
		if tags, err = json.Marshal(m.Tags); err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: marshal tags: %w", err)
		}
	}
	if m.Detail.Error != nil || m.Detail.Decision != nil || m.Detail.Pattern != nil {
		if detail, err = json.Marshal(m.Detail); err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: marshal detail: %w", err)
		}
	}
	if len(m.ConsolidatedFrom) > 0 {
		if consolidated, err = json.Marshal(m.ConsolidatedFrom); err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: marshal consolidated_from: %w", err)
		}
	}
	return tags, detail, consolidated, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*types.Memory, error) {
	var (
		m                types.Memory
		mType, tier      string
		tagsJSON         sql.NullString
		detailJSON       sql.NullString
		consolidatedJSON sql.NullString
		archivedAt       sql.NullTime
		lowQualitySince  sql.NullTime
		decayedAt        sql.NullTime
	)
	err := row.Scan(
		&m.ID, &mType, &m.Content, &m.Project, &m.Source, &m.Context,
		&tagsJSON, &detailJSON,
		&m.CreatedAt, &m.UpdatedAt, &m.LastAccessed,
		&tier, &m.Strength, &m.Pinned, &m.Archived, &archivedAt,
		&m.AccessCount, &m.ImportanceScore, &m.RecencyScore, &m.QualityScore,
		&m.UsefulnessScore, &m.Rating, &lowQualitySince, &consolidatedJSON,
		&m.ContentHash, &decayedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan memory: %w", err)
	}

	m.Type = types.MemoryType(mType)
	m.Tier = types.Tier(tier)
	if archivedAt.Valid {
		t := archivedAt.Time
		m.ArchivedAt = &t
	}
	if lowQualitySince.Valid {
		t := lowQualitySince.Time
		m.LowQualitySince = &t
	}
	if decayedAt.Valid {
		t := decayedAt.Time
		m.DecayedAt = &t
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &m.Tags); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal tags: %w", err)
		}
	}
	if detailJSON.Valid && detailJSON.String != "" {
		if err := json.Unmarshal([]byte(detailJSON.String), &m.Detail); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal detail: %w", err)
		}
	}
	if consolidatedJSON.Valid && consolidatedJSON.String != "" {
		if err := json.Unmarshal([]byte(consolidatedJSON.String), &m.ConsolidatedFrom); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal consolidated_from: %w", err)
		}
	}
	return &m, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: memory %s", storage.ErrNotFound, id)
	}
	return nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// isUniqueViolation reports whether err is a unique-constraint failure
// (pq error code 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
