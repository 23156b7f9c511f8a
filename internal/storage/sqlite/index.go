package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/storage"
)

// IndexDense stores the dense embedding for a memory as a JSON array.
func (s *Store) IndexDense(ctx context.Context, memoryID string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("sqlite: marshal dense vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, dense) VALUES (?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET dense = excluded.dense`,
		memoryID, string(data))
	if err != nil {
		return fmt.Errorf("sqlite: index dense: %w", err)
	}
	return nil
}

// IndexSparse stores the sparse term-weight vector for a memory.
func (s *Store) IndexSparse(ctx context.Context, memoryID string, terms map[string]float64) error {
	data, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("sqlite: marshal sparse vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, sparse) VALUES (?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET sparse = excluded.sparse`,
		memoryID, string(data))
	if err != nil {
		return fmt.Errorf("sqlite: index sparse: %w", err)
	}
	return nil
}

// RemoveFromIndex drops a memory's vectors.
func (s *Store) RemoveFromIndex(ctx context.Context, memoryID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE memory_id = ?", memoryID); err != nil {
		return fmt.Errorf("sqlite: remove from index: %w", err)
	}
	return nil
}

// DenseTopK scores every candidate's stored dense vector by cosine
// similarity in process. SQLite has no native vector search; the candidate
// universe is small enough that a filtered scan is the honest approach.
func (s *Store) DenseTopK(ctx context.Context, vector []float32, filters storage.SearchFilters, k int) ([]storage.ScoredID, error) {
	if k <= 0 || len(vector) == 0 {
		return []storage.ScoredID{}, nil
	}

	rows, err := s.candidateRows(ctx, filters, "e.dense")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []storage.ScoredID
	for rows.Next() {
		var id string
		var payload sql.NullString
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan dense candidate: %w", err)
		}
		if !payload.Valid || payload.String == "" {
			continue
		}
		var candidate []float32
		if err := json.Unmarshal([]byte(payload.String), &candidate); err != nil {
			continue
		}
		sim := provider.CosineSimilarity(vector, candidate)
		if sim <= 0 {
			continue
		}
		scored = append(scored, storage.ScoredID{ID: id, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: dense top-k: %w", err)
	}
	return topK(scored, k), nil
}

// SparseTopK scores candidates by sparse dot product against the query
// terms.
func (s *Store) SparseTopK(ctx context.Context, terms map[string]float64, filters storage.SearchFilters, k int) ([]storage.ScoredID, error) {
	if k <= 0 || len(terms) == 0 {
		return []storage.ScoredID{}, nil
	}

	rows, err := s.candidateRows(ctx, filters, "e.sparse")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []storage.ScoredID
	for rows.Next() {
		var id string
		var payload sql.NullString
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan sparse candidate: %w", err)
		}
		if !payload.Valid || payload.String == "" {
			continue
		}
		var candidate map[string]float64
		if err := json.Unmarshal([]byte(payload.String), &candidate); err != nil {
			continue
		}
		score := provider.SparseDot(terms, candidate)
		if score <= 0 {
			continue
		}
		scored = append(scored, storage.ScoredID{ID: id, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: sparse top-k: %w", err)
	}
	return topK(scored, k), nil
}

// candidateRows selects (id, vector payload) for memories passing the
// filters that SQL can express; the searcher post-filters the rest.
func (s *Store) candidateRows(ctx context.Context, filters storage.SearchFilters, payloadCol string) (*sql.Rows, error) {
	query := `SELECT m.id, ` + payloadCol + `
		FROM memories m JOIN embeddings e ON e.memory_id = m.id WHERE 1=1`
	var args []any
	if filters.Type != "" {
		query += " AND m.type = ?"
		args = append(args, string(filters.Type))
	}
	if filters.Project != "" {
		query += " AND m.project = ?"
		args = append(args, filters.Project)
	}
	if filters.Tier != "" {
		query += " AND m.tier = ?"
		args = append(args, string(filters.Tier))
	}
	if !filters.IncludeArchived {
		query += " AND m.archived = 0"
	}
	if filters.MinImportance > 0 {
		query += " AND m.importance_score >= ?"
		args = append(args, filters.MinImportance)
	}
	if !filters.After.IsZero() {
		query += " AND m.created_at > ?"
		args = append(args, filters.After)
	}
	if !filters.Before.IsZero() {
		query += " AND m.created_at < ?"
		args = append(args, filters.Before)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: index candidates: %w", err)
	}
	return rows, nil
}

// topK sorts scored ids descending and truncates to k.
func topK(scored []storage.ScoredID, k int) []storage.ScoredID {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	if scored == nil {
		scored = []storage.ScoredID{}
	}
	return scored
}
