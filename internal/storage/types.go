package storage

import (
	"errors"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

var (
	// ErrNotFound indicates that the requested memory or relation was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateRelation indicates an active relation already exists for the
	// same ordered (source, target, type). Idempotent callers treat this as
	// success rather than retrying.
	ErrDuplicateRelation = errors.New("duplicate active relation")

	// ErrStorageUnavailable indicates a transient storage failure. Callers
	// retry with backoff a bounded number of times before surfacing it.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTraversalBoundsExceeded indicates that graph traversal hit a bound.
	ErrTraversalBoundsExceeded = errors.New("traversal bounds exceeded")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 50, max: 1000).
	Limit int

	// SortBy specifies the field to sort by (e.g. "created_at", "quality_score").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// Type filters memories by memory type. Empty means no filter.
	Type types.MemoryType

	// Project filters memories by project. Empty means no filter.
	Project string

	// Tier filters memories by lifecycle tier. Empty means no filter.
	Tier types.Tier

	// IncludeArchived includes archived memories in results.
	// By default (false), archived memories are excluded from all listings.
	IncludeArchived bool

	// Pinned, when non-nil, filters by pinned state.
	Pinned *bool

	// CreatedBefore filters to memories created strictly before this time.
	// Zero value means no upper bound.
	CreatedBefore time.Time

	// CreatedAfter filters to memories created strictly after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at":    true,
		"updated_at":    true,
		"last_accessed": true,
		"id":            true,
		"strength":      true,
		"quality_score": true,
		"access_count":  true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 50
	}

	if o.Limit > 1000 {
		o.Limit = 1000
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// SearchFilters narrows the candidate universe for index queries.
// Both the dense and the sparse index apply the same filters so fusion
// operates over a consistent universe.
type SearchFilters struct {
	// Type filters candidates by memory type. Empty means no filter.
	Type types.MemoryType

	// Project filters candidates by project. Empty means no filter.
	Project string

	// Tag requires candidates to carry the given tag. Empty means no filter.
	Tag string

	// Tier filters candidates by lifecycle tier. Empty means no filter.
	Tier types.Tier

	// IncludeArchived includes archived memories as candidates.
	IncludeArchived bool

	// MinImportance excludes candidates under this importance score.
	MinImportance float64

	// After and Before bound candidate creation time. Zero means unbounded.
	After  time.Time
	Before time.Time
}

// Matches reports whether the given memory passes the filters.
// Backends that cannot push filters into their query use this post-filter.
func (f *SearchFilters) Matches(m *types.Memory) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Project != "" && m.Project != f.Project {
		return false
	}
	if f.Tier != "" && m.Tier != f.Tier {
		return false
	}
	if !f.IncludeArchived && m.Archived {
		return false
	}
	if m.ImportanceScore < f.MinImportance {
		return false
	}
	if !f.After.IsZero() && !m.CreatedAt.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !m.CreatedAt.Before(f.Before) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range m.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ScoredID is a memory id with a backend-native similarity score, as
// returned by the dense and sparse index queries.
type ScoredID struct {
	// ID is the memory ID.
	ID string

	// Score is the backend similarity score (higher is more similar).
	Score float64
}

// TraversalBounds prevents combinatorial explosion during graph traversal.
type TraversalBounds struct {
	// MaxDepth is the maximum number of hops from the starting memory.
	MaxDepth int

	// MaxNodes is the maximum number of nodes to visit.
	MaxNodes int

	// AsOf restricts traversal to relations active at this instant and
	// memories created at or before it. Zero means "now".
	AsOf time.Time
}

// Normalize applies defaults and caps to the TraversalBounds.
func (b *TraversalBounds) Normalize() {
	if b.MaxDepth < 1 {
		b.MaxDepth = 3
	}
	if b.MaxDepth > 10 {
		b.MaxDepth = 10
	}
	if b.MaxNodes < 1 {
		b.MaxNodes = 200
	}
	if b.MaxNodes > 2000 {
		b.MaxNodes = 2000
	}
	if b.AsOf.IsZero() {
		b.AsOf = time.Now()
	}
}
