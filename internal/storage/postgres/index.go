package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/engram/internal/storage"
)

// maxSparseQueryTerms bounds how many query terms feed the tsquery; the
// heaviest terms carry the lexical signal.
const maxSparseQueryTerms = 20

// IndexDense stores the dense embedding in the pgvector column. A no-op
// when pgvector is unavailable.
func (s *Store) IndexDense(ctx context.Context, memoryID string, vector []float32) error {
	if !s.pgvectorAvailable {
		return nil
	}
	vec := pgvector.NewVector(vector)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, dense) VALUES ($1, $2)
		ON CONFLICT (memory_id) DO UPDATE SET dense = EXCLUDED.dense`,
		memoryID, vec)
	if err != nil {
		return fmt.Errorf("postgres: index dense: %w", err)
	}
	return nil
}

// IndexSparse stores the sparse term-weight vector as JSONB. The tsvector
// trigger on memories.content already maintains the searchable index; the
// JSONB copy preserves the exact provider weights.
func (s *Store) IndexSparse(ctx context.Context, memoryID string, terms map[string]float64) error {
	data, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("postgres: marshal sparse vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, sparse) VALUES ($1, $2)
		ON CONFLICT (memory_id) DO UPDATE SET sparse = EXCLUDED.sparse`,
		memoryID, string(data))
	if err != nil {
		return fmt.Errorf("postgres: index sparse: %w", err)
	}
	return nil
}

// RemoveFromIndex drops a memory's vectors.
func (s *Store) RemoveFromIndex(ctx context.Context, memoryID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE memory_id = $1", memoryID); err != nil {
		return fmt.Errorf("postgres: remove from index: %w", err)
	}
	return nil
}

// DenseTopK runs a pgvector cosine-distance query. Without the extension
// it returns an empty list, which the searcher treats as a degraded dense
// leg.
func (s *Store) DenseTopK(ctx context.Context, vector []float32, filters storage.SearchFilters, k int) ([]storage.ScoredID, error) {
	if !s.pgvectorAvailable || k <= 0 || len(vector) == 0 {
		return []storage.ScoredID{}, nil
	}

	where, args := filterClause(filters)
	args = append(args, pgvector.NewVector(vector))
	vecArg := fmt.Sprintf("$%d", len(args))
	args = append(args, k)
	limitArg := fmt.Sprintf("$%d", len(args))

	query := `
		SELECT m.id, 1 - (e.dense <=> ` + vecArg + `::vector) AS score
		FROM memories m JOIN embeddings e ON e.memory_id = m.id
		WHERE e.dense IS NOT NULL` + where + `
		ORDER BY e.dense <=> ` + vecArg + `::vector
		LIMIT ` + limitArg

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: dense top-k: %w", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// SparseTopK ranks candidates with tsvector full-text search. The query is
// built from the heaviest terms joined as an OR tsquery and ranked with
// ts_rank.
func (s *Store) SparseTopK(ctx context.Context, terms map[string]float64, filters storage.SearchFilters, k int) ([]storage.ScoredID, error) {
	if k <= 0 || len(terms) == 0 {
		return []storage.ScoredID{}, nil
	}

	tsquery := buildTsquery(terms)
	if tsquery == "" {
		return []storage.ScoredID{}, nil
	}

	where, args := filterClause(filters)
	args = append(args, tsquery)
	queryArg := fmt.Sprintf("$%d", len(args))
	args = append(args, k)
	limitArg := fmt.Sprintf("$%d", len(args))

	query := `
		SELECT m.id, ts_rank(m.content_tsv, to_tsquery('english', ` + queryArg + `)) AS score
		FROM memories m
		WHERE m.content_tsv @@ to_tsquery('english', ` + queryArg + `)` + where + `
		ORDER BY score DESC
		LIMIT ` + limitArg

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: sparse top-k: %w", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// buildTsquery joins the heaviest terms with OR, sanitized to plain
// lexemes so the tsquery parser cannot be abused.
func buildTsquery(terms map[string]float64) string {
	type weighted struct {
		term   string
		weight float64
	}
	ordered := make([]weighted, 0, len(terms))
	for t, w := range terms {
		ordered = append(ordered, weighted{term: t, weight: w})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].weight > ordered[j].weight })

	var lexemes []string
	for _, w := range ordered {
		lex := sanitizeLexeme(w.term)
		if lex == "" {
			continue
		}
		lexemes = append(lexemes, lex)
		if len(lexemes) >= maxSparseQueryTerms {
			break
		}
	}
	return strings.Join(lexemes, " | ")
}

// sanitizeLexeme keeps only letters and digits.
func sanitizeLexeme(term string) string {
	var b strings.Builder
	for _, r := range term {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// filterClause renders the SQL-expressible filters as AND conditions.
func filterClause(filters storage.SearchFilters) (string, []any) {
	var sb strings.Builder
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Type != "" {
		sb.WriteString(" AND m.type = " + arg(string(filters.Type)))
	}
	if filters.Project != "" {
		sb.WriteString(" AND m.project = " + arg(filters.Project))
	}
	if filters.Tier != "" {
		sb.WriteString(" AND m.tier = " + arg(string(filters.Tier)))
	}
	if !filters.IncludeArchived {
		sb.WriteString(" AND m.archived = FALSE")
	}
	if filters.MinImportance > 0 {
		sb.WriteString(" AND m.importance_score >= " + arg(filters.MinImportance))
	}
	if !filters.After.IsZero() {
		sb.WriteString(" AND m.created_at > " + arg(filters.After))
	}
	if !filters.Before.IsZero() {
		sb.WriteString(" AND m.created_at < " + arg(filters.Before))
	}
	return sb.String(), args
}

// scanScored reads (id, score) rows.
func scanScored(rows *sql.Rows) ([]storage.ScoredID, error) {
	scored := []storage.ScoredID{}
	for rows.Next() {
		var s storage.ScoredID
		if err := rows.Scan(&s.ID, &s.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan scored id: %w", err)
		}
		scored = append(scored, s)
	}
	return scored, rows.Err()
}
