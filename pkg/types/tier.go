package types

// Tier represents the lifecycle stage of a memory.
type Tier string

// Lifecycle tier constants.
const (
	TierEpisodic   Tier = "EPISODIC"   // Freshly ingested, raw observation
	TierStaging    Tier = "STAGING"    // Quality proven once, candidate for promotion
	TierSemantic   Tier = "SEMANTIC"   // Consolidated, durable knowledge
	TierProcedural Tier = "PROCEDURAL" // Highest tier: reinforced, actionable knowledge
	TierArchived   Tier = "ARCHIVED"   // Excluded from default search, retrievable by id
	TierPurged     Tier = "PURGED"     // Terminal: hard-deleted
)

// ValidTiers contains all valid tier values.
var ValidTiers = []Tier{
	TierEpisodic,
	TierStaging,
	TierSemantic,
	TierProcedural,
	TierArchived,
	TierPurged,
}

// IsValidTier checks if the given tier is a valid lifecycle tier.
func IsValidTier(tier Tier) bool {
	for _, validTier := range ValidTiers {
		if tier == validTier {
			return true
		}
	}
	return false
}

// IsValidTierTransition validates tier transitions according to the lifecycle
// state machine. Only the transition job may change tiers; it uses this to
// reject corrupt moves.
//
// Valid transitions:
//
//	EPISODIC -> STAGING | ARCHIVED
//	STAGING -> SEMANTIC | EPISODIC | ARCHIVED
//	SEMANTIC -> PROCEDURAL | STAGING | ARCHIVED
//	PROCEDURAL -> SEMANTIC | ARCHIVED
//	ARCHIVED -> EPISODIC | PURGED    (restore or hard delete)
//	PURGED -> (terminal, no transitions out)
func IsValidTierTransition(current, next Tier) bool {
	switch current {
	case TierEpisodic:
		return next == TierStaging || next == TierArchived

	case TierStaging:
		return next == TierSemantic || next == TierEpisodic || next == TierArchived

	case TierSemantic:
		return next == TierProcedural || next == TierStaging || next == TierArchived

	case TierProcedural:
		return next == TierSemantic || next == TierArchived

	case TierArchived:
		return next == TierEpisodic || next == TierPurged

	case TierPurged:
		return false // Terminal state, no transitions out

	default:
		return false // Unknown current tier
	}
}
