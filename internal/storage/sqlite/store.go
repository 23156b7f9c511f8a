// Package sqlite implements the storage contracts on SQLite via
// modernc.org/sqlite. It is the reference store: zero external services,
// vectors held in a side table with similarity computed in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, configures WAL mode, and creates the schema.
// Use ":memory:" as dsn for an in-memory store (tests).
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{db: db}, nil
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		return fmt.Errorf("sqlite: store memory: %w", err)
	}
	return nil
}

// memoryColumns is the select list scanMemory expects, in order.
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
		"SELECT"+memoryColumns+" FROM memories WHERE id = ?", id)
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
	if opts.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(opts.Type))
	}
	if opts.Project != "" {
		conds = append(conds, "project = ?")
		args = append(args, opts.Project)
	}
	if opts.Tier != "" {
		conds = append(conds, "tier = ?")
		args = append(args, string(opts.Tier))
	}
	if !opts.IncludeArchived {
		conds = append(conds, "archived = 0")
	}
	if opts.Pinned != nil {
		conds = append(conds, "pinned = ?")
		args = append(args, *opts.Pinned)
	}
	if !opts.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, opts.CreatedBefore)
	}
	if !opts.CreatedAfter.IsZero() {
		conds = append(conds, "created_at > ?")
		args = append(args, opts.CreatedAfter)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: count memories: %w", err)
	}

	// SortBy comes from the Normalize whitelist, never caller input.
	query := fmt.Sprintf("SELECT%s FROM memories%s ORDER BY %s %s LIMIT ? OFFSET ?",
		memoryColumns, where, opts.SortBy, strings.ToUpper(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list memories: %w", err)
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
		return nil, fmt.Errorf("sqlite: list memories: %w", err)
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
			type = ?, content = ?, project = ?, source = ?, context = ?,
			tags = ?, detail = ?,
			updated_at = ?, last_accessed = ?,
			tier = ?, strength = ?, pinned = ?, archived = ?, archived_at = ?,
			access_count = ?, importance_score = ?, recency_score = ?,
			quality_score = ?, usefulness_score = ?, rating = ?,
			low_quality_since = ?, consolidated_from = ?, content_hash = ?,
			decayed_at = ?
		WHERE id = ?`,
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
		return fmt.Errorf("sqlite: update memory: %w", err)
	}
	return requireRow(res, memory.ID)
}

// RecordAccess atomically applies access bookkeeping in one statement.
func (s *Store) RecordAccess(ctx context.Context, id string, newStrength float64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			access_count = access_count + 1,
			last_accessed = ?,
			strength = ?
		WHERE id = ?`,
		now, newStrength, id)
	if err != nil {
		return fmt.Errorf("sqlite: record access: %w", err)
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
		"UPDATE memories SET tier = ?, updated_at = ? WHERE id = ?",
		string(tier), time.Now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: update tier: %w", err)
	}
	return requireRow(res, id)
}

// FindByContentHash returns ids of memories with the given hash, newest first.
func (s *Store) FindByContentHash(ctx context.Context, hash string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM memories WHERE content_hash = ? ORDER BY created_at DESC", hash)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by content hash: %w", err)
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
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: purge memory: %w", err)
	}
	return requireRow(res, id)
}

// marshalAux serializes the JSON-encoded side fields of a memory.
func marshalAux(m *types.Memory) (tags, detail, consolidated []byte, err error) {
	if len(m.Tags) > 0 {
		if tags, err = json.Marshal(m.Tags); err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: marshal tags: %w", err)
		}
	}
	if m.Detail.Error != nil || m.Detail.Decision != nil || m.Detail.Pattern != nil {
		if detail, err = json.Marshal(m.Detail); err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: marshal detail: %w", err)
		}
	}
	if len(m.ConsolidatedFrom) > 0 {
		if consolidated, err = json.Marshal(m.ConsolidatedFrom); err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: marshal consolidated_from: %w", err)
		}
	}
	return tags, detail, consolidated, nil
}

// scanner covers sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanMemory reads one memoryColumns row.
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
		return nil, fmt.Errorf("sqlite: scan memory: %w", err)
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
			return nil, fmt.Errorf("sqlite: unmarshal tags: %w", err)
		}
	}
	if detailJSON.Valid && detailJSON.String != "" {
		if err := json.Unmarshal([]byte(detailJSON.String), &m.Detail); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal detail: %w", err)
		}
	}
	if consolidatedJSON.Valid && consolidatedJSON.String != "" {
		if err := json.Unmarshal([]byte(consolidatedJSON.String), &m.ConsolidatedFrom); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal consolidated_from: %w", err)
		}
	}
	return &m, nil
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
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
