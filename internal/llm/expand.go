package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/contentforge/kwuniverse/internal/keywords"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

// ExpandRequest describes one semantic-expansion call.
type ExpandRequest struct {
	Seeds       []string
	TargetCount int
	Industry    string
	Market      string
	IntentFocus scoring.Intent
	Stage       scoring.Stage
}

// Expander produces semantic keyword variants via the model. It is the
// highest-weighted generation strategy.
type Expander struct {
	exec *JSONExecutor
}

func NewExpander(exec *JSONExecutor) *Expander { return &Expander{exec: exec} }

type expandResponse struct {
	Keywords []string `json:"keywords"`
}

// Expand returns up to req.TargetCount canonicalized variants. The caller
// treats a failure here as degraded, not fatal, unless no other strategy
// produced candidates either.
func (e *Expander) Expand(ctx context.Context, req ExpandRequest) ([]string, AttemptMetrics, error) {
	if len(req.Seeds) == 0 {
		return nil, AttemptMetrics{}, fmt.Errorf("expand: no seeds")
	}
	if req.TargetCount <= 0 {
		req.TargetCount = 50
	}
	var out expandResponse
	m, err := e.exec.Run(ctx, "expand_"+string(req.Stage), buildExpandPrompt(req), &out, func() error {
		if len(out.Keywords) == 0 {
			return fmt.Errorf("keywords array empty")
		}
		return nil
	})
	if err != nil {
		return nil, m, err
	}
	vars := keywords.CanonicalizeSet(out.Keywords)
	valid := vars[:0]
	for _, v := range vars {
		if keywords.ValidateSeed(v) == nil {
			valid = append(valid, v)
		}
	}
	if len(valid) > req.TargetCount {
		valid = valid[:req.TargetCount]
	}
	return valid, m, nil
}

func buildExpandPrompt(req ExpandRequest) string {
	var b strings.Builder
	b.WriteString("Return valid JSON only. No markdown fences, no commentary.\n\n")
	switch req.Stage {
	case scoring.StageDream100:
		b.WriteString("Generate head-term keyword variants: broad, high-volume terms a buyer in this space would search. Favor commercially focused phrasings over purely informational ones.\n")
	case scoring.StageTier2:
		b.WriteString("Generate mid-tail keyword variants of the seed terms: 2-4 word phrases that narrow each seed by use case, audience, feature, or comparison.\n")
	default:
		b.WriteString("Generate long-tail keyword variants of the seed terms: specific 4+ word phrases including question forms (how, what, why, which) and qualifier forms (for beginners, near me, step by step).\n")
	}
	fmt.Fprintf(&b, "\nProduce up to %d distinct keywords.\n", req.TargetCount)
	if req.Industry != "" {
		fmt.Fprintf(&b, "Industry context: %s\n", req.Industry)
	}
	if req.Market != "" {
		fmt.Fprintf(&b, "Target market: %s\n", req.Market)
	}
	if req.IntentFocus != scoring.IntentUnknown {
		fmt.Fprintf(&b, "Bias toward %s intent.\n", req.IntentFocus)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Lowercase, plain keywords only, 2-100 characters each.\n")
	b.WriteString("- No duplicates, no near-duplicate plural/singular pairs.\n")
	b.WriteString("- Do not repeat the seeds themselves.\n")
	b.WriteString("\nRequired output schema:\n{\"keywords\": [\"string\"]}\n")
	b.WriteString("\nSEEDS:\n")
	for _, s := range req.Seeds {
		b.WriteString("- " + s + "\n")
	}
	return b.String()
}
