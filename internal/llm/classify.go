package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/contentforge/kwuniverse/internal/keywords"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

// IntentLabel is one classified keyword.
type IntentLabel struct {
	Keyword    string         `json:"keyword"`
	Intent     scoring.Intent `json:"intent"`
	Confidence float64        `json:"confidence"`
}

// IntentClassifier assigns searcher intent to a batch of keywords. The
// orchestrator holds two implementations and falls back from the LLM one
// to the heuristic one when a call fails.
type IntentClassifier interface {
	ClassifyIntents(ctx context.Context, kws []string, industry string) ([]IntentLabel, error)
	Name() string
}

// LLMClassifier classifies with the model in one batched call.
type LLMClassifier struct {
	exec *JSONExecutor
}

func NewLLMClassifier(exec *JSONExecutor) *LLMClassifier { return &LLMClassifier{exec: exec} }

func (c *LLMClassifier) Name() string { return "llm" }

type classifyResponse struct {
	Labels []IntentLabel `json:"labels"`
}

func (c *LLMClassifier) ClassifyIntents(ctx context.Context, kws []string, industry string) ([]IntentLabel, error) {
	if len(kws) == 0 {
		return nil, nil
	}
	var out classifyResponse
	_, err := c.exec.Run(ctx, "classify_intent", buildClassifyPrompt(kws, industry), &out, func() error {
		if len(out.Labels) == 0 {
			return fmt.Errorf("labels array empty")
		}
		for i := range out.Labels {
			l := &out.Labels[i]
			l.Keyword = keywords.Canonicalize(l.Keyword)
			l.Intent = scoring.Intent(strings.ToLower(strings.TrimSpace(string(l.Intent))))
			if !l.Intent.Valid() || l.Intent == scoring.IntentUnknown {
				return fmt.Errorf("invalid intent %q for %q", l.Intent, l.Keyword)
			}
			if l.Confidence < 0 || l.Confidence > 1 {
				return fmt.Errorf("confidence out of range for %q", l.Keyword)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Labels, nil
}

func buildClassifyPrompt(kws []string, industry string) string {
	var b strings.Builder
	b.WriteString("Return valid JSON only. No markdown fences, no commentary.\n\n")
	b.WriteString("Classify the searcher intent of each keyword as one of: transactional, commercial, informational, navigational.\n")
	b.WriteString("transactional = ready to buy or sign up; commercial = researching a purchase (comparisons, reviews, best-of); informational = learning; navigational = looking for a specific site or brand.\n")
	if industry != "" {
		fmt.Fprintf(&b, "Industry context: %s\n", industry)
	}
	b.WriteString("\nRequired output schema:\n{\"labels\": [{\"keyword\": \"string\", \"intent\": \"string\", \"confidence\": 0.0}]}\n")
	b.WriteString("\nKEYWORDS:\n")
	for _, k := range kws {
		b.WriteString("- " + k + "\n")
	}
	return b.String()
}

// HeuristicClassifier is the degraded-mode fallback: keyword-pattern rules
// only, no external calls. Confidence reflects how specific the matched
// pattern is.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier { return &HeuristicClassifier{} }

func (h *HeuristicClassifier) Name() string { return "heuristic" }

var (
	transactionalMarkers = []string{"buy", "price", "pricing", "cost", "discount", "coupon", "deal", "order", "cheap", "subscription", "trial", "demo", "quote"}
	commercialMarkers    = []string{"best", "top", "vs", "versus", "review", "reviews", "compare", "comparison", "alternative", "alternatives", "rated"}
	navigationalMarkers  = []string{"login", "log in", "sign in", "signin", "dashboard", "app", "download", "website", "official"}
	informationalMarkers = []string{"how", "what", "why", "when", "which", "who", "guide", "tutorial", "examples", "tips", "learn", "definition", "meaning", "ideas"}
)

func (h *HeuristicClassifier) ClassifyIntents(_ context.Context, kws []string, _ string) ([]IntentLabel, error) {
	labels := make([]IntentLabel, 0, len(kws))
	for _, kw := range kws {
		intent, conf := classifyByPattern(keywords.Canonicalize(kw))
		labels = append(labels, IntentLabel{Keyword: keywords.Canonicalize(kw), Intent: intent, Confidence: conf})
	}
	return labels, nil
}

func classifyByPattern(kw string) (scoring.Intent, float64) {
	tokens := map[string]struct{}{}
	for _, t := range strings.Fields(kw) {
		tokens[t] = struct{}{}
	}
	has := func(markers []string) bool {
		for _, m := range markers {
			if strings.Contains(m, " ") {
				if strings.Contains(kw, m) {
					return true
				}
				continue
			}
			if _, ok := tokens[m]; ok {
				return true
			}
		}
		return false
	}
	switch {
	case has(transactionalMarkers):
		return scoring.IntentTransactional, 0.7
	case has(commercialMarkers):
		return scoring.IntentCommercial, 0.65
	case has(navigationalMarkers):
		return scoring.IntentNavigational, 0.6
	case has(informationalMarkers):
		return scoring.IntentInformational, 0.6
	default:
		return scoring.IntentInformational, 0.3
	}
}
