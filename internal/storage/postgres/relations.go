package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// CreateRelation stores a relation. The partial unique index over active
// edges makes concurrent creates of the same (source, target, type)
// converge to one row; losers get ErrDuplicateRelation.
func (s *Store) CreateRelation(ctx context.Context, rel *types.Relation) error {
	if rel == nil || rel.ID == "" {
		return fmt.Errorf("%w: relation and its ID are required", storage.ErrInvalidInput)
	}
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relations (id, source_id, target_id, type, valid_from, valid_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rel.ID, rel.SourceID, rel.TargetID, string(rel.Type),
		rel.ValidFrom, nullableTime(rel.ValidTo), rel.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s -> %s (%s)", storage.ErrDuplicateRelation,
				rel.SourceID, rel.TargetID, rel.Type)
		}
		return fmt.Errorf("postgres: create relation: %w", err)
	}
	return nil
}

// Relations returns every relation where id is source or target, including
// temporally closed ones.
func (s *Store) Relations(ctx context.Context, id string) ([]types.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, valid_from, valid_to, created_at
		FROM relations WHERE source_id = $1 OR target_id = $1
		ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: relations of %s: %w", id, err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

// AllRelations returns every stored relation.
func (s *Store) AllRelations(ctx context.Context) ([]types.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, valid_from, valid_to, created_at
		FROM relations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: all relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

// CloseRelation ends a relation's validity.
func (s *Store) CloseRelation(ctx context.Context, relationID string, validTo time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE relations SET valid_to = $1 WHERE id = $2", validTo, relationID)
	if err != nil {
		return fmt.Errorf("postgres: close relation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: relation %s", storage.ErrNotFound, relationID)
	}
	return nil
}

// DeleteRelation removes a relation outright.
func (s *Store) DeleteRelation(ctx context.Context, relationID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM relations WHERE id = $1", relationID)
	if err != nil {
		return fmt.Errorf("postgres: delete relation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: relation %s", storage.ErrNotFound, relationID)
	}
	return nil
}

func scanRelations(rows *sql.Rows) ([]types.Relation, error) {
	var rels []types.Relation
	for rows.Next() {
		var (
			r       types.Relation
			relType string
			validTo sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &relType,
			&r.ValidFrom, &validTo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan relation: %w", err)
		}
		r.Type = types.RelationType(relType)
		if validTo.Valid {
			t := validTo.Time
			r.ValidTo = &t
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
