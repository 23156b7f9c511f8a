// Package types defines the core data structures for the Engram memory system.
// These types represent memories, their lifecycle tiers, typed detail payloads,
// and the relations that connect them in the knowledge graph.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MemoryType classifies the purpose/nature of a memory.
type MemoryType string

// Memory type constants.
const (
	MemoryTypeError    MemoryType = "error"    // Errors encountered and their context
	MemoryTypeDecision MemoryType = "decision" // Important choices made and why
	MemoryTypePattern  MemoryType = "pattern"  // Recurring code or process patterns
	MemoryTypeLearning MemoryType = "learning" // Lessons learned from outcomes
	MemoryTypeDocs     MemoryType = "docs"     // Reference documentation snippets
	MemoryTypeContext  MemoryType = "context"  // Ambient session/project context
)

// ValidMemoryTypes is a slice of all valid memory types for validation.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeError,
	MemoryTypeDecision,
	MemoryTypePattern,
	MemoryTypeLearning,
	MemoryTypeDocs,
	MemoryTypeContext,
}

// IsValidMemoryType checks if the given memory type is valid.
func IsValidMemoryType(memoryType MemoryType) bool {
	for _, validType := range ValidMemoryTypes {
		if validType == memoryType {
			return true
		}
	}
	return false
}

// MinContentLength is the minimum accepted content length at ingestion.
// Shorter or empty content is rejected with a validation error.
const MinContentLength = 20

// ErrContentTooShort indicates that memory content is under MinContentLength.
var ErrContentTooShort = fmt.Errorf("content must be at least %d characters", MinContentLength)

// ValidateContent checks memory content against the ingestion rules.
func ValidateContent(content string) error {
	if len(strings.TrimSpace(content)) < MinContentLength {
		return ErrContentTooShort
	}
	return nil
}

// ErrorDetail holds fields specific to error-type memories.
type ErrorDetail struct {
	// Message is the error message as observed.
	Message string `json:"message"`

	// StackTrace is the captured stack trace, if any.
	StackTrace string `json:"stack_trace,omitempty"`

	// Solution describes how the error was fixed, once known.
	Solution string `json:"solution,omitempty"`

	// Resolved indicates whether the error has a confirmed fix.
	Resolved bool `json:"resolved"`
}

// DecisionDetail holds fields specific to decision-type memories.
type DecisionDetail struct {
	// Decision is the choice that was made.
	Decision string `json:"decision"`

	// Rationale explains why the choice was made.
	Rationale string `json:"rationale,omitempty"`

	// Alternatives lists options that were considered and rejected.
	Alternatives []string `json:"alternatives,omitempty"`
}

// PatternDetail holds fields specific to pattern-type memories.
type PatternDetail struct {
	// Name is a short identifier for the pattern.
	Name string `json:"name,omitempty"`

	// Occurrences counts how many times the pattern has been observed.
	Occurrences int `json:"occurrences,omitempty"`
}

// Detail is the tagged union of type-specific memory payloads.
// Exactly the variant matching the memory's Type may be set; Validate
// enforces this so an error memory cannot silently lack its message.
type Detail struct {
	Error    *ErrorDetail    `json:"error,omitempty"`
	Decision *DecisionDetail `json:"decision,omitempty"`
	Pattern  *PatternDetail  `json:"pattern,omitempty"`
}

// Validate checks that the detail variant matches the memory type.
func (d *Detail) Validate(memoryType MemoryType) error {
	set := 0
	if d.Error != nil {
		set++
	}
	if d.Decision != nil {
		set++
	}
	if d.Pattern != nil {
		set++
	}
	if set > 1 {
		return errors.New("detail: multiple variants set")
	}

	switch memoryType {
	case MemoryTypeError:
		if d.Error == nil {
			return errors.New("detail: error memory requires error detail")
		}
		if strings.TrimSpace(d.Error.Message) == "" {
			return errors.New("detail: error detail requires a message")
		}
	case MemoryTypeDecision:
		if d.Decision == nil {
			return errors.New("detail: decision memory requires decision detail")
		}
		if strings.TrimSpace(d.Decision.Decision) == "" {
			return errors.New("detail: decision detail requires the decision text")
		}
	case MemoryTypePattern:
		if d.Error != nil || d.Decision != nil {
			return fmt.Errorf("detail: mismatched variant for %s memory", memoryType)
		}
	default:
		if set != 0 {
			return fmt.Errorf("detail: %s memories carry no detail variant", memoryType)
		}
	}
	return nil
}

// Memory represents a single stored observation with type, content, scores,
// and lifecycle tier. The Memory Store exclusively owns the canonical record;
// other components hold transient read-only copies.
type Memory struct {
	// Core identification fields
	ID        string     `json:"id"`         // Unique identifier (UUID)
	Type      MemoryType `json:"type"`       // Memory type (error, decision, pattern, ...)
	Content   string     `json:"content"`    // Raw memory content (>= 20 chars)
	Project   string     `json:"project"`    // Project the memory belongs to
	Source    string     `json:"source"`     // Source of the memory (e.g. "hook", "manual")
	Context   string     `json:"context,omitempty"` // Free-form surrounding context
	Tags      []string   `json:"tags,omitempty"`    // User-defined tags

	// Type-specific payload (tagged union, validated against Type)
	Detail Detail `json:"detail,omitempty"`

	// Timestamps. LastAccessed is monotonically non-decreasing.
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastAccessed time.Time `json:"last_accessed"`

	// Lifecycle
	Tier       Tier       `json:"tier"`                  // Lifecycle tier (EPISODIC ... PURGED)
	Strength   float64    `json:"strength"`              // Decaying retention scalar in [0, 1]
	Pinned     bool       `json:"pinned"`                // Pinned memories never decay/archive/purge
	Archived   bool       `json:"archived"`              // Excluded from default search when true
	ArchivedAt *time.Time `json:"archived_at,omitempty"` // When the memory was archived

	// Scoring
	AccessCount     int     `json:"access_count"`     // Monotonic access counter
	ImportanceScore float64 `json:"importance_score"` // Baseline + emotional weighting, in [0, 1]
	RecencyScore    float64 `json:"recency_score"`    // Derived from LastAccessed, in [0, 1]
	QualityScore    float64 `json:"quality_score"`    // Batch-recomputed long-term value, in [0, 1]
	UsefulnessScore float64 `json:"usefulness_score"` // Rating + access + relation derived
	Rating          int     `json:"rating,omitempty"` // Optional user rating 1-5, 0 = unrated

	// DecayedAt records when the decay job last applied decay. Decay resumes
	// from the later of DecayedAt and LastAccessed, so every elapsed hour is
	// decayed exactly once no matter how often the job runs.
	DecayedAt *time.Time `json:"decayed_at,omitempty"`

	// LowQualitySince marks when quality first dropped below the archival
	// threshold; cleared when quality recovers. Used to require a sustained
	// low-quality window before archival.
	LowQualitySince *time.Time `json:"low_quality_since,omitempty"`

	// ConsolidatedFrom lists source memory IDs when created by a merge.
	ConsolidatedFrom []string `json:"consolidated_from,omitempty"`

	// ContentHash is the SHA-256 hash of Content, used for relational dedup.
	ContentHash string `json:"content_hash,omitempty"`
}

// HashContent returns the SHA-256 hex digest used for ContentHash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Validate checks the memory's invariants: valid type, content length,
// detail variant, strength range, and rating range.
func (m *Memory) Validate() error {
	if !IsValidMemoryType(m.Type) {
		return fmt.Errorf("invalid memory type %q", m.Type)
	}
	if err := ValidateContent(m.Content); err != nil {
		return err
	}
	if err := m.Detail.Validate(m.Type); err != nil {
		return err
	}
	if m.Strength < 0 || m.Strength > 1 {
		return fmt.Errorf("strength %f outside [0, 1]", m.Strength)
	}
	if m.Rating < 0 || m.Rating > 5 {
		return fmt.Errorf("rating %d outside [0, 5]", m.Rating)
	}
	return nil
}

// Resolved reports whether an error-type memory has a confirmed fix.
// Non-error memories always report false.
func (m *Memory) Resolved() bool {
	return m.Detail.Error != nil && m.Detail.Error.Resolved
}
