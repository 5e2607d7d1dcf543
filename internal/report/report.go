// Package report renders an expansion run as markdown, HTML, and PDF for
// the people who act on the keyword universe.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/contentforge/kwuniverse/internal/expansion"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

// Keyword rows per tier table. Full tiers can run to thousands of rows;
// the report shows the head and says how many were cut.
const maxRowsPerTier = 25

// BuildMarkdown renders the run as a GFM document.
func BuildMarkdown(res *expansion.ExpansionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Keyword Universe Report\n\n")
	fmt.Fprintf(&b, "- Run ID: %s\n", res.RunID)
	fmt.Fprintf(&b, "- Seeds: %s\n", sanitize(strings.Join(res.Request.SeedKeywords, ", ")))
	fmt.Fprintf(&b, "- Market: %s\n", sanitize(res.Request.Market))
	fmt.Fprintf(&b, "- Date: %s\n", res.CompletedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Status: %s\n\n", statusLine(res))

	if len(res.Warnings) > 0 {
		fmt.Fprintf(&b, "> DEGRADED: %d condition(s) reduced coverage during this run. Numbers below are complete for the keywords that survived.\n\n", len(res.Warnings))
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "> - %s\n", sanitize(w))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Total keywords | %d |\n", res.TotalKeywords)
	fmt.Fprintf(&b, "| Dream 100 | %d |\n", len(res.Dream100))
	fmt.Fprintf(&b, "| Tier 2 | %d |\n", len(res.Tier2))
	fmt.Fprintf(&b, "| Tier 3 | %d |\n", len(res.Tier3))
	fmt.Fprintf(&b, "| Quick wins | %d |\n", res.Quality.QuickWinCount)
	fmt.Fprintf(&b, "| Duplicates removed | %d |\n", res.Quality.DuplicatesRemoved)
	fmt.Fprintf(&b, "| Filtered out | %d |\n", res.Quality.InvalidFiltered)
	fmt.Fprintf(&b, "| API calls | %d |\n", res.Stats.APICallCount)
	fmt.Fprintf(&b, "| LLM calls | %d |\n\n", res.Stats.LLMCallCount)

	fmt.Fprintf(&b, "## Cost\n\n")
	fmt.Fprintf(&b, "| Provider | Spend |\n|----------|-------|\n")
	for _, provider := range sortedKeys(res.Costs.ByProvider) {
		fmt.Fprintf(&b, "| %s | $%.4f |\n", sanitize(provider), res.Costs.ByProvider[provider])
	}
	fmt.Fprintf(&b, "| **Total** | **$%.4f** |\n\n", res.Costs.TotalCost)
	fmt.Fprintf(&b, "Budget utilization: %.1f%% of $%.2f. Cost per keyword: $%.4f.\n\n",
		res.Costs.BudgetUtilization*100, res.Costs.BudgetLimit, res.Costs.CostPerKeyword)

	writeQuickWins(&b, res)

	writeTier(&b, "Dream 100", res.Dream100)
	writeTier(&b, "Tier 2", res.Tier2)
	writeTier(&b, "Tier 3", res.Tier3)

	writeDistributions(&b, res)

	if len(res.NextStage.SeedCandidates) > 0 {
		fmt.Fprintf(&b, "## Next Expansion\n\n")
		fmt.Fprintf(&b, "Suggested seeds for a follow-up run:\n\n")
		for _, s := range res.NextStage.SeedCandidates {
			fmt.Fprintf(&b, "- %s\n", sanitize(s))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderHTML converts the run's markdown with GFM tables enabled.
func RenderHTML(res *expansion.ExpansionResult) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var out strings.Builder
	if err := md.Convert([]byte(BuildMarkdown(res)), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return out.String(), nil
}

func writeQuickWins(b *strings.Builder, res *expansion.ExpansionResult) {
	var wins []expansion.KeywordCandidate
	for _, tier := range [][]expansion.KeywordCandidate{res.Dream100, res.Tier2, res.Tier3} {
		for _, c := range tier {
			if c.QuickWin {
				wins = append(wins, c)
			}
		}
	}
	if len(wins) == 0 {
		return
	}
	sort.Slice(wins, func(i, j int) bool {
		if wins[i].BlendedScore != wins[j].BlendedScore {
			return wins[i].BlendedScore > wins[j].BlendedScore
		}
		return wins[i].Keyword < wins[j].Keyword
	})

	fmt.Fprintf(b, "## Quick Wins\n\n")
	fmt.Fprintf(b, "Low-difficulty keywords with real volume. These are the fastest path to rankings.\n\n")
	fmt.Fprintf(b, "| Keyword | Tier | Volume | Difficulty | Score |\n|---------|------|--------|------------|-------|\n")
	for _, c := range wins {
		fmt.Fprintf(b, "| %s | %s | %d | %.0f | %.3f |\n",
			sanitize(c.Keyword), c.Stage, c.Volume, c.Difficulty, c.BlendedScore)
	}
	b.WriteString("\n")
}

func writeTier(b *strings.Builder, title string, cands []expansion.KeywordCandidate) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(cands) == 0 {
		fmt.Fprintf(b, "No keywords survived for this tier.\n\n")
		return
	}
	fmt.Fprintf(b, "| # | Keyword | Intent | Volume | Difficulty | Score | Source | Flags |\n")
	fmt.Fprintf(b, "|---|---------|--------|--------|------------|-------|--------|-------|\n")
	for i, c := range cands {
		if i >= maxRowsPerTier {
			fmt.Fprintf(b, "\n_%d more keywords omitted._\n", len(cands)-maxRowsPerTier)
			break
		}
		fmt.Fprintf(b, "| %d | %s | %s | %d | %.0f | %.3f | %s | %s |\n",
			i+1, sanitize(c.Keyword), intentLabel(c.Intent), c.Volume, c.Difficulty,
			c.BlendedScore, c.ExpansionSource, flags(c))
	}
	b.WriteString("\n")
}

func writeDistributions(b *strings.Builder, res *expansion.ExpansionResult) {
	if len(res.Quality.IntentCounts) == 0 {
		return
	}
	fmt.Fprintf(b, "## Distribution\n\n")
	fmt.Fprintf(b, "| Intent | Keywords |\n|--------|----------|\n")
	intents := make([]string, 0, len(res.Quality.IntentCounts))
	for i := range res.Quality.IntentCounts {
		intents = append(intents, string(i))
	}
	sort.Strings(intents)
	for _, i := range intents {
		fmt.Fprintf(b, "| %s | %d |\n", intentLabel(scoring.Intent(i)), res.Quality.IntentCounts[scoring.Intent(i)])
	}
	b.WriteString("\n")

	fmt.Fprintf(b, "| Difficulty | Keywords |\n|------------|----------|\n")
	for _, bucket := range []string{"easy", "medium", "hard"} {
		if n, ok := res.Quality.DifficultyHistogram[bucket]; ok {
			fmt.Fprintf(b, "| %s | %d |\n", bucket, n)
		}
	}
	b.WriteString("\n")
}

func statusLine(res *expansion.ExpansionResult) string {
	if !res.Success {
		if res.ErrorCode != "" {
			return "failed (" + res.ErrorCode + ")"
		}
		return "failed"
	}
	if len(res.Warnings) > 0 {
		return "completed with warnings"
	}
	return "completed"
}

func intentLabel(i scoring.Intent) string {
	if i == scoring.IntentUnknown {
		return "unknown"
	}
	return string(i)
}

func flags(c expansion.KeywordCandidate) string {
	var out []string
	if c.QuickWin {
		out = append(out, "quick win")
	}
	if c.EstimatedMetrics {
		out = append(out, "estimated")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ", ")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sanitize keeps user-influenced strings from breaking table or quote
// structure.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
