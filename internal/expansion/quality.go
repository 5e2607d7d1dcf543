package expansion

import (
	"sort"

	"github.com/contentforge/kwuniverse/internal/scoring"
)

// dedupWithinTier collapses candidates sharing a canonical keyword, keeping
// the higher blended score (tie: the one already first in keyword-sorted
// order, which is stable across runs). Idempotent.
func dedupWithinTier(cands []KeywordCandidate) ([]KeywordCandidate, int) {
	byKeyword := map[string]KeywordCandidate{}
	for _, c := range cands {
		existing, ok := byKeyword[c.Keyword]
		if !ok || c.BlendedScore > existing.BlendedScore {
			byKeyword[c.Keyword] = c
		}
	}
	out := make([]KeywordCandidate, 0, len(byKeyword))
	for _, c := range byKeyword {
		out = append(out, c)
	}
	sortByKeyword(out)
	return out, len(cands) - len(out)
}

// dedupAcrossTiers drops any candidate whose canonical keyword already
// survived an earlier tier's capping.
func dedupAcrossTiers(cands []KeywordCandidate, earlier map[string]struct{}) ([]KeywordCandidate, int) {
	out := make([]KeywordCandidate, 0, len(cands))
	dropped := 0
	for _, c := range cands {
		if _, ok := earlier[c.Keyword]; ok {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}

type filterConfig struct {
	QualityThreshold float64
	VolumeFloor      int
	DifficultyPref   DifficultyPreference
	IntentFocus      scoring.Intent // unknown = mixed, no filter
}

func filterConfigFor(req *ExpansionRequest, stage scoring.Stage) filterConfig {
	floor := Tier1VolumeFloor
	if stage != scoring.StageDream100 {
		floor = DeepTierVolumeFloor
	}
	return filterConfig{
		QualityThreshold: req.QualityThreshold,
		VolumeFloor:      floor,
		DifficultyPref:   req.DifficultyPref,
		IntentFocus:      req.IntentFocus,
	}
}

// applyFilters drops candidates failing the hard quality gates. Output is
// unconstrained by target count; capping runs afterwards.
func applyFilters(cands []KeywordCandidate, cfg filterConfig) (kept []KeywordCandidate, filtered int) {
	kept = make([]KeywordCandidate, 0, len(cands))
	for _, c := range cands {
		if c.BlendedScore < cfg.QualityThreshold {
			filtered++
			continue
		}
		if c.Volume < cfg.VolumeFloor {
			filtered++
			continue
		}
		if cfg.DifficultyPref != DifficultyAny && difficultyBucket(c.Difficulty) != string(cfg.DifficultyPref) {
			filtered++
			continue
		}
		if cfg.IntentFocus != scoring.IntentUnknown && c.Intent != cfg.IntentFocus {
			filtered++
			continue
		}
		kept = append(kept, c)
	}
	return kept, filtered
}

func sortByKeyword(cands []KeywordCandidate) {
	sort.Slice(cands, func(i, j int) bool { return cands[i].Keyword < cands[j].Keyword })
}

// sortByScore orders best-first; ties break on the keyword string so
// concurrent scoring can never reorder equals.
func sortByScore(cands []KeywordCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].BlendedScore != cands[j].BlendedScore {
			return cands[i].BlendedScore > cands[j].BlendedScore
		}
		return cands[i].Keyword < cands[j].Keyword
	})
}
