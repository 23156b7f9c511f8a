// Package storage provides composable storage interfaces for the Engram system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The engine core only ever
// talks to these contracts; the sqlite and postgres packages supply reference
// implementations.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// MemoryStore provides CRUD operations and pagination for memories.
// It is the single writer-of-record: other components issue read-mostly
// queries and bounded writes through it and never cache writable state.
type MemoryStore interface {
	// Store creates a memory. The record must pass types.Memory.Validate.
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID, including archived ones.
	// Returns ErrNotFound if the memory doesn't exist.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// List retrieves memories with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// Update modifies an existing memory.
	// Returns ErrNotFound if the memory doesn't exist.
	Update(ctx context.Context, memory *types.Memory) error

	// RecordAccess atomically applies access bookkeeping for a search hit or
	// reinforcement: access_count+1, last_accessed=now, strength=newStrength.
	// The three fields are applied as a single record mutation.
	RecordAccess(ctx context.Context, id string, newStrength float64, now time.Time) error

	// UpdateTier changes the lifecycle tier of a memory. Only the scheduler's
	// transition job calls this; the transition must satisfy
	// types.IsValidTierTransition. Returns ErrNotFound for unknown ids.
	UpdateTier(ctx context.Context, id string, tier types.Tier) error

	// FindByContentHash returns the ids of memories whose content hash equals
	// hash, newest first. Used for relational dedup at ingestion.
	FindByContentHash(ctx context.Context, hash string) ([]string, error)

	// Purge hard-deletes a memory and its relations (permanent removal).
	// Returns ErrNotFound if the memory doesn't exist.
	Purge(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// RelationStore manages the central edge list of the knowledge graph.
type RelationStore interface {
	// CreateRelation stores a validated relation. Concurrent attempts to
	// create the same active (source, target, type) edge converge to exactly
	// one stored edge; the losers receive ErrDuplicateRelation.
	CreateRelation(ctx context.Context, rel *types.Relation) error

	// Relations returns all relations where id is source or target,
	// including inactive (temporally closed) ones.
	Relations(ctx context.Context, id string) ([]types.Relation, error)

	// AllRelations returns every stored relation. Used by batch jobs
	// (contradiction detection, inference idempotence checks).
	AllRelations(ctx context.Context) ([]types.Relation, error)

	// CloseRelation sets valid_to on a relation, ending its validity.
	// Returns ErrNotFound for unknown relation ids.
	CloseRelation(ctx context.Context, relationID string, validTo time.Time) error

	// DeleteRelation removes a relation outright.
	// Returns ErrNotFound for unknown relation ids.
	DeleteRelation(ctx context.Context, relationID string) error
}

// VectorIndex provides dense and sparse top-K similarity queries over the
// same candidate universe. Both queries honour the same SearchFilters so
// fusion ranks a consistent set.
type VectorIndex interface {
	// IndexDense stores the dense embedding for a memory.
	IndexDense(ctx context.Context, memoryID string, vector []float32) error

	// IndexSparse stores the sparse term-weight vector for a memory.
	IndexSparse(ctx context.Context, memoryID string, terms map[string]float64) error

	// DenseTopK returns up to k memory ids by embedding similarity.
	// An empty index yields an empty slice, not an error.
	DenseTopK(ctx context.Context, vector []float32, filters SearchFilters, k int) ([]ScoredID, error)

	// SparseTopK returns up to k memory ids by lexical term-weight relevance.
	// An empty index yields an empty slice, not an error.
	SparseTopK(ctx context.Context, terms map[string]float64, filters SearchFilters, k int) ([]ScoredID, error)

	// RemoveFromIndex drops a memory's vectors (called on purge).
	RemoveFromIndex(ctx context.Context, memoryID string) error
}

// Store composes the full storage contract the engine operates against.
type Store interface {
	MemoryStore
	RelationStore
	VectorIndex
}
