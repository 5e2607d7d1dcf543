package expansion

import (
	"math"
	"sort"

	"github.com/contentforge/kwuniverse/internal/scoring"
)

// Intent slot ratios used when balancing is enabled. Unknown-intent
// candidates compete in the informational bucket.
var intentRatios = []struct {
	intent scoring.Intent
	ratio  float64
}{
	{scoring.IntentTransactional, 0.40},
	{scoring.IntentCommercial, 0.35},
	{scoring.IntentInformational, 0.20},
	{scoring.IntentNavigational, 0.05},
}

type capConfig struct {
	Target          int
	IntentBalancing bool
	QuickWinQuota   float64 // fraction of target, default QuickWinQuotaRatio
	MaxPerParent    int     // 0 = no per-parent ceiling (head tier)
}

// capCandidates selects at most cfg.Target candidates. With balancing off
// it is plain truncation of the score-sorted list. With balancing on,
// intent buckets are filled to their quotas, shortfall is backfilled
// best-first regardless of intent, and a minimum quick-win quota is
// enforced by swapping out the weakest non-quick-wins. Scores of surviving
// candidates are never touched.
func capCandidates(cands []KeywordCandidate, cfg capConfig) []KeywordCandidate {
	if cfg.Target <= 0 || len(cands) == 0 {
		return nil
	}
	if cfg.QuickWinQuota <= 0 {
		cfg.QuickWinQuota = QuickWinQuotaRatio
	}
	sorted := make([]KeywordCandidate, len(cands))
	copy(sorted, cands)
	sortByScore(sorted)
	if cfg.MaxPerParent > 0 {
		// Every selection below draws from sorted, so trimming each parent
		// group to its ceiling here bounds the final output too.
		sorted = capPerParent(sorted, cfg.MaxPerParent)
	}

	var selected []KeywordCandidate
	if !cfg.IntentBalancing || len(sorted) <= cfg.Target {
		selected = truncate(sorted, cfg.Target)
	} else {
		selected = balanceByIntent(sorted, cfg.Target)
	}
	selected = enforceQuickWinQuota(selected, sorted, cfg)
	sortByScore(selected)
	return selected
}

// capPerParent keeps each parent's top-scoring children, preserving the
// score order of the input.
func capPerParent(sorted []KeywordCandidate, limit int) []KeywordCandidate {
	counts := map[string]int{}
	out := make([]KeywordCandidate, 0, len(sorted))
	for _, c := range sorted {
		if counts[c.ParentKeyword] >= limit {
			continue
		}
		counts[c.ParentKeyword]++
		out = append(out, c)
	}
	return out
}

func truncate(sorted []KeywordCandidate, target int) []KeywordCandidate {
	if len(sorted) > target {
		sorted = sorted[:target]
	}
	out := make([]KeywordCandidate, len(sorted))
	copy(out, sorted)
	return out
}

func bucketIntent(i scoring.Intent) scoring.Intent {
	if i == scoring.IntentUnknown {
		return scoring.IntentInformational
	}
	return i
}

func balanceByIntent(sorted []KeywordCandidate, target int) []KeywordCandidate {
	buckets := map[scoring.Intent][]KeywordCandidate{}
	for _, c := range sorted {
		b := bucketIntent(c.Intent)
		buckets[b] = append(buckets[b], c)
	}

	// Allocate slots by ratio; leftovers from rounding go to the buckets
	// in declared ratio order.
	quotas := map[scoring.Intent]int{}
	allocated := 0
	for _, r := range intentRatios {
		q := int(float64(target) * r.ratio)
		quotas[r.intent] = q
		allocated += q
	}
	for i := 0; allocated < target; i = (i + 1) % len(intentRatios) {
		quotas[intentRatios[i].intent]++
		allocated++
	}

	selected := make([]KeywordCandidate, 0, target)
	taken := map[string]struct{}{}
	for _, r := range intentRatios {
		bucket := buckets[r.intent]
		quota := quotas[r.intent]
		for _, c := range bucket {
			if quota == 0 {
				break
			}
			selected = append(selected, c)
			taken[c.Keyword] = struct{}{}
			quota--
		}
	}

	// Backfill shortfall with the next-best remaining, intent-blind.
	for _, c := range sorted {
		if len(selected) >= target {
			break
		}
		if _, ok := taken[c.Keyword]; ok {
			continue
		}
		selected = append(selected, c)
		taken[c.Keyword] = struct{}{}
	}
	return selected
}

// enforceQuickWinQuota swaps the lowest-scoring non-quick-win selections
// for the highest-scoring unselected quick wins until the quota is met or
// either side runs out.
func enforceQuickWinQuota(selected, sorted []KeywordCandidate, cfg capConfig) []KeywordCandidate {
	quota := int(math.Ceil(float64(min(cfg.Target, len(selected))) * cfg.QuickWinQuota))
	have := 0
	for _, c := range selected {
		if c.QuickWin {
			have++
		}
	}
	if have >= quota {
		return selected
	}

	taken := map[string]struct{}{}
	for _, c := range selected {
		taken[c.Keyword] = struct{}{}
	}
	var available []KeywordCandidate
	for _, c := range sorted {
		if !c.QuickWin {
			continue
		}
		if _, ok := taken[c.Keyword]; ok {
			continue
		}
		available = append(available, c)
	}
	if len(available) == 0 {
		return selected
	}

	// Victims: worst-scoring non-quick-wins first.
	victims := make([]int, 0, len(selected))
	for i, c := range selected {
		if !c.QuickWin {
			victims = append(victims, i)
		}
	}
	sort.Slice(victims, func(a, b int) bool {
		ci, cj := selected[victims[a]], selected[victims[b]]
		if ci.BlendedScore != cj.BlendedScore {
			return ci.BlendedScore < cj.BlendedScore
		}
		return ci.Keyword > cj.Keyword
	})

	swaps := quota - have
	for i := 0; i < swaps && i < len(victims) && i < len(available); i++ {
		selected[victims[i]] = available[i]
	}
	return selected
}
