package expansion

import (
	"github.com/contentforge/kwuniverse/internal/keywords"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

// Deterministic modifier templates per stage. %s is the parent keyword.
// Ordering matters: candidates are emitted template-first, so earlier
// templates win first-seen dedup.
var (
	dream100Prefixes = []string{"best", "top"}
	dream100Suffixes = []string{"software", "tools", "services", "platform"}

	tier2Prefixes = []string{"best", "affordable", "free", "enterprise"}
	tier2Suffixes = []string{
		"for small business", "for startups", "pricing", "alternatives",
		"comparison", "reviews", "examples", "templates",
	}

	tier3Prefixes = []string{
		"how to choose", "how to use", "what is", "why use", "which",
	}
	tier3Suffixes = []string{
		"for beginners", "step by step", "vs spreadsheets", "near me",
		"without coding", "on a budget",
	}
)

// applyModifiers expands one parent keyword through the stage's fixed
// templates. Pure and deterministic; never calls out.
func applyModifiers(parent string, stage scoring.Stage) []string {
	var prefixes, suffixes []string
	switch stage {
	case scoring.StageTier2:
		prefixes, suffixes = tier2Prefixes, tier2Suffixes
	case scoring.StageTier3:
		prefixes, suffixes = tier3Prefixes, tier3Suffixes
	default:
		prefixes, suffixes = dream100Prefixes, dream100Suffixes
	}

	out := make([]string, 0, len(prefixes)+len(suffixes))
	for _, p := range prefixes {
		out = append(out, keywords.Canonicalize(p+" "+parent))
	}
	for _, s := range suffixes {
		out = append(out, keywords.Canonicalize(parent+" "+s))
	}
	valid := out[:0]
	for _, kw := range out {
		if keywords.ValidateSeed(kw) == nil && kw != parent {
			valid = append(valid, kw)
		}
	}
	return valid
}
