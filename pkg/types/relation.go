package types

import (
	"errors"
	"time"
)

// RelationType classifies a directed edge between two memories.
type RelationType string

// Relation type constants.
const (
	RelationCauses      RelationType = "CAUSES"      // Source caused the target
	RelationFixes       RelationType = "FIXES"       // Source fixes the target (error)
	RelationContradicts RelationType = "CONTRADICTS" // Source conflicts with target
	RelationSupports    RelationType = "SUPPORTS"    // Source reinforces target
	RelationFollows     RelationType = "FOLLOWS"     // Source occurred after target
	RelationRelated     RelationType = "RELATED"     // Generic semantic relatedness
	RelationSupersedes  RelationType = "SUPERSEDES"  // Source replaces target
	RelationSimilarTo   RelationType = "SIMILAR_TO"  // Near-duplicate content (relational dedup)
)

// ValidRelationTypes contains all valid relation types for validation.
var ValidRelationTypes = []RelationType{
	RelationCauses,
	RelationFixes,
	RelationContradicts,
	RelationSupports,
	RelationFollows,
	RelationRelated,
	RelationSupersedes,
	RelationSimilarTo,
}

// IsValidRelationType checks if the given relation type is valid.
func IsValidRelationType(relType RelationType) bool {
	for _, validType := range ValidRelationTypes {
		if validType == relType {
			return true
		}
	}
	return false
}

// Relation validation errors.
var (
	// ErrSelfLoop indicates a relation whose source and target are the same memory.
	ErrSelfLoop = errors.New("relation: source and target must differ")

	// ErrInvalidValidity indicates valid_to earlier than valid_from.
	ErrInvalidValidity = errors.New("relation: valid_to must not precede valid_from")
)

// Relation represents a directed, typed, temporally-scoped edge between two
// memories. Relations live in a central edge list keyed by stable ids; the
// graph may contain cycles (e.g. mutual CONTRADICTS) and is never treated as
// a tree.
type Relation struct {
	// Core identification fields
	ID       string       `json:"id"`        // Unique identifier (UUID)
	SourceID string       `json:"source_id"` // Source memory ID
	TargetID string       `json:"target_id"` // Target memory ID
	Type     RelationType `json:"type"`      // Relation type

	// Temporal validity window. A nil ValidTo means open-ended.
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`

	CreatedAt time.Time `json:"created_at"` // Creation timestamp
}

// NewRelation constructs a validated relation. validFrom defaults to now
// when zero. It rejects self-loops, unknown types, and inverted windows.
func NewRelation(id, sourceID, targetID string, relType RelationType, validFrom time.Time) (*Relation, error) {
	if sourceID == targetID {
		return nil, ErrSelfLoop
	}
	if !IsValidRelationType(relType) {
		return nil, errors.New("relation: unknown relation type " + string(relType))
	}

	now := time.Now()
	if validFrom.IsZero() {
		validFrom = now
	}

	return &Relation{
		ID:        id,
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      relType,
		ValidFrom: validFrom,
		CreatedAt: now,
	}, nil
}

// Validate checks the relation's structural invariants.
func (r *Relation) Validate() error {
	if r.SourceID == r.TargetID {
		return ErrSelfLoop
	}
	if !IsValidRelationType(r.Type) {
		return errors.New("relation: unknown relation type " + string(r.Type))
	}
	if r.ValidTo != nil && r.ValidTo.Before(r.ValidFrom) {
		return ErrInvalidValidity
	}
	return nil
}

// ActiveAt reports whether the relation is active at time t:
// valid_from <= t and (valid_to unset or valid_to > t).
func (r *Relation) ActiveAt(t time.Time) bool {
	if r.ValidFrom.After(t) {
		return false
	}
	if r.ValidTo != nil && !r.ValidTo.After(t) {
		return false
	}
	return true
}

// Active reports whether the relation is active now.
func (r *Relation) Active() bool {
	return r.ActiveAt(time.Now())
}
