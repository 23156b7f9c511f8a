package graph

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// causalMarkers introduce a cause clause in free-form content.
var causalMarkers = []string{
	"caused by",
	"because of",
	"due to",
	"root cause was",
	"resulted from",
}

// RunInference executes every inference pass over a bounded candidate set
// of recent, non-archived memories and returns the number of new relations
// created. Each pass is idempotent: existing edges for the same ordered
// (source, target, type) are skipped, so a second run with no new data
// creates nothing.
func (g *Manager) RunInference(ctx context.Context) (int, error) {
	candidates, err := g.inferenceCandidates(ctx)
	if err != nil {
		return 0, err
	}
	if len(candidates) < 2 {
		return 0, nil
	}

	existing, err := g.existingEdgeSet(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	created += g.inferFixes(ctx, candidates, existing)
	created += g.inferSemantic(ctx, candidates, existing)
	created += g.inferTemporal(ctx, candidates, existing)
	created += g.inferCausal(ctx, candidates, existing)
	return created, nil
}

// InferOver runs the same passes over an explicit candidate set. Dream mode
// uses this to limit inference to its sampled memories.
func (g *Manager) InferOver(ctx context.Context, candidates []*types.Memory) (int, error) {
	if len(candidates) < 2 {
		return 0, nil
	}
	existing, err := g.existingEdgeSet(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	created += g.inferFixes(ctx, candidates, existing)
	created += g.inferSemantic(ctx, candidates, existing)
	created += g.inferTemporal(ctx, candidates, existing)
	created += g.inferCausal(ctx, candidates, existing)
	return created, nil
}

// inferenceCandidates loads the newest non-archived memories up to the
// configured batch size.
func (g *Manager) inferenceCandidates(ctx context.Context) ([]*types.Memory, error) {
	opts := storage.ListOptions{
		Page:      1,
		Limit:     g.cfg.InferenceBatchSize,
		SortBy:    "created_at",
		SortOrder: "desc",
	}
	page, err := g.store.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Memory, len(page.Items))
	for i := range page.Items {
		out[i] = &page.Items[i]
	}
	return out, nil
}

// edgeKey identifies an ordered, typed edge for the idempotence set.
func edgeKey(sourceID, targetID string, relType types.RelationType) string {
	return sourceID + "|" + targetID + "|" + string(relType)
}

// existingEdgeSet loads every stored relation into a lookup set. Closed
// relations count too: re-inferring an edge someone deliberately unlinked
// would resurrect it.
func (g *Manager) existingEdgeSet(ctx context.Context) (map[string]bool, error) {
	rels, err := g.store.AllRelations(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(rels))
	for i := range rels {
		set[edgeKey(rels[i].SourceID, rels[i].TargetID, rels[i].Type)] = true
	}
	return set, nil
}

// createInferred stores an inferred relation, treating a duplicate as
// already-done. Returns 1 when a new edge was created.
func (g *Manager) createInferred(ctx context.Context, sourceID, targetID string, relType types.RelationType, existing map[string]bool) int {
	key := edgeKey(sourceID, targetID, relType)
	if existing[key] {
		return 0
	}
	rel, err := types.NewRelation(uuid.NewString(), sourceID, targetID, relType, g.now())
	if err != nil {
		return 0
	}
	if err := g.store.CreateRelation(ctx, rel); err != nil {
		if errors.Is(err, storage.ErrDuplicateRelation) {
			existing[key] = true
			return 0
		}
		log.Printf("graph: create inferred %s edge %s -> %s: %v", relType, sourceID, targetID, err)
		return 0
	}
	existing[key] = true
	return 1
}

// inferFixes links later memories to unresolved errors they plausibly fix:
// same project, created after the error, and either naming one of the
// error's code identifiers or crossing the lexical fix-match threshold.
// The edge points solution -> error.
func (g *Manager) inferFixes(ctx context.Context, candidates []*types.Memory, existing map[string]bool) int {
	created := 0
	for _, errMem := range candidates {
		if errMem.Type != types.MemoryTypeError || errMem.Resolved() {
			continue
		}
		errText := errMem.Content
		if errMem.Detail.Error != nil {
			errText += " " + errMem.Detail.Error.Message + " " + errMem.Context
		}
		errTerms := provider.SparseTerms(errText)
		errIDs := identifierTerms(errText)

		for _, fix := range candidates {
			if fix.ID == errMem.ID || fix.Type == types.MemoryTypeError {
				continue
			}
			if fix.Project != errMem.Project || !fix.CreatedAt.After(errMem.CreatedAt) {
				continue
			}
			if !mentionsAny(fix.Content, errIDs) &&
				provider.SparseCosine(errTerms, provider.SparseTerms(fix.Content)) < g.cfg.FixMatchThreshold {
				continue
			}
			created += g.createInferred(ctx, fix.ID, errMem.ID, types.RelationFixes, existing)
		}
	}
	return created
}

// identifierTerms extracts code-like tokens (dotted paths, snake_case,
// camelCase) from text, lowercased, including the parts of dotted
// compounds. These anchor error -> fix matching: a fix that names the
// failing symbol is a fix candidate regardless of prose overlap.
func identifierTerms(text string) []string {
	var ids []string
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, `"'.,;:!?()[]`)
		if len(field) < 4 {
			continue
		}
		if !strings.ContainsAny(field, "._") && !hasInnerUpper(field) {
			continue
		}
		lower := strings.ToLower(field)
		ids = append(ids, lower)
		for _, part := range strings.FieldsFunc(lower, func(r rune) bool {
			return r == '.' || r == '_'
		}) {
			if len(part) >= 4 {
				ids = append(ids, part)
			}
		}
	}
	return ids
}

// hasInnerUpper reports an upper-case rune after a lower-case one.
func hasInnerUpper(word string) bool {
	runes := []rune(word)
	for i := 1; i < len(runes); i++ {
		if runes[i] >= 'A' && runes[i] <= 'Z' && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
			return true
		}
	}
	return false
}

// mentionsAny reports whether content contains any of the terms,
// case-insensitively.
func mentionsAny(content string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(content)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// inferSemantic links same-type memory pairs by dense similarity:
// SIMILAR_TO above the high threshold, RELATED above the lower one.
// Edges run newer -> older so re-runs produce a stable direction.
func (g *Manager) inferSemantic(ctx context.Context, candidates []*types.Memory, existing map[string]bool) int {
	if g.embedder == nil {
		return 0
	}

	vectors := make(map[string][]float32, len(candidates))
	for _, m := range candidates {
		vec, err := g.embedder.EmbedDense(ctx, m.Content)
		if err != nil {
			log.Printf("graph: semantic pass skipped, embedder unavailable: %v", err)
			return 0
		}
		vectors[m.ID] = vec
	}

	created := 0
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.Type != b.Type {
				continue
			}
			sim := provider.CosineSimilarity(vectors[a.ID], vectors[b.ID])

			var relType types.RelationType
			switch {
			case sim >= g.cfg.SimilarThreshold:
				relType = types.RelationSimilarTo
			case sim >= g.cfg.RelatedThreshold:
				relType = types.RelationRelated
			default:
				continue
			}

			source, target := a, b
			if b.CreatedAt.After(a.CreatedAt) {
				source, target = b, a
			}
			created += g.createInferred(ctx, source.ID, target.ID, relType, existing)
		}
	}
	return created
}

// inferTemporal links same-project memories created within the follows
// window, later FOLLOWS earlier.
func (g *Manager) inferTemporal(ctx context.Context, candidates []*types.Memory, existing map[string]bool) int {
	created := 0
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.Project == "" || a.Project != b.Project || a.ID == b.ID {
				continue
			}
			earlier, later := a, b
			if a.CreatedAt.After(b.CreatedAt) {
				earlier, later = b, a
			}
			gap := later.CreatedAt.Sub(earlier.CreatedAt)
			if gap <= 0 || gap > g.cfg.FollowsWindow {
				continue
			}
			created += g.createInferred(ctx, later.ID, earlier.ID, types.RelationFollows, existing)
		}
	}
	return created
}

// inferCausal scans content for causal marker phrases. When a memory states
// a cause ("caused by X"), the earlier same-project memory whose content
// best matches the cause clause gets a CAUSES edge towards it.
func (g *Manager) inferCausal(ctx context.Context, candidates []*types.Memory, existing map[string]bool) int {
	created := 0
	for _, effect := range candidates {
		clause := causalClause(effect.Content)
		if clause == "" {
			continue
		}
		clauseTerms := provider.SparseTerms(clause)

		var bestCause *types.Memory
		bestSim := g.cfg.FixMatchThreshold
		for _, cause := range candidates {
			if cause.ID == effect.ID || cause.Project != effect.Project {
				continue
			}
			if cause.CreatedAt.After(effect.CreatedAt) {
				continue
			}
			sim := provider.SparseCosine(clauseTerms, provider.SparseTerms(cause.Content))
			if sim >= bestSim {
				bestSim = sim
				bestCause = cause
			}
		}
		if bestCause != nil {
			created += g.createInferred(ctx, bestCause.ID, effect.ID, types.RelationCauses, existing)
		}
	}
	return created
}

// causalClause extracts the text following the first causal marker, or ""
// when none is present.
func causalClause(content string) string {
	lower := strings.ToLower(content)
	for _, marker := range causalMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			clause := content[idx+len(marker):]
			// Bound the clause to keep the match focused.
			if end := strings.IndexAny(clause, ".;\n"); end > 0 {
				clause = clause[:end]
			}
			return strings.TrimSpace(clause)
		}
	}
	return ""
}
