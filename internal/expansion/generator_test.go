package expansion

import (
	"context"
	"strings"
	"testing"

	"github.com/contentforge/kwuniverse/internal/scoring"
)

type fakeMiner struct {
	phrases []string
	warns   []string
	calls   int
}

func (f *fakeMiner) Mine(_ context.Context, _ []string, _ int) ([]string, []string) {
	f.calls++
	return f.phrases, f.warns
}

func generatorRequest() *ExpansionRequest {
	return &ExpansionRequest{
		SeedKeywords:   []string{"crm software"},
		Market:         "us",
		EnableSemantic: true,
	}
}

func TestGenerateSemanticWinsSourcePriority(t *testing.T) {
	// "best crm software" is also a template product; the semantic source
	// must claim it.
	exp := &fakeExpander{perStage: map[scoring.Stage][]string{
		scoring.StageDream100: {"best crm software", "crm onboarding"},
	}}
	g := NewGenerator(exp, nil)

	out, err := g.generate(context.Background(), generatorRequest(), scoring.StageDream100, []parentSeed{{Keyword: "crm software"}}, 100)
	if err != nil {
		t.Fatal(err)
	}
	var found *rawCandidate
	for i := range out.Candidates {
		if out.Candidates[i].Keyword == "best crm software" {
			found = &out.Candidates[i]
		}
	}
	if found == nil {
		t.Fatal("candidate missing")
	}
	if found.Source != SourceSemantic {
		t.Errorf("source = %s", found.Source)
	}
	if found.Relevance != sourceRelevance[SourceSemantic] {
		t.Errorf("relevance = %v", found.Relevance)
	}
	if out.LLMCalls == 0 {
		t.Error("llm calls not counted")
	}
}

func TestGenerateExcludesParents(t *testing.T) {
	exp := &fakeExpander{perStage: map[scoring.Stage][]string{
		scoring.StageDream100: {"crm software", "CRM Software", "crm tools"},
	}}
	g := NewGenerator(exp, nil)

	out, err := g.generate(context.Background(), generatorRequest(), scoring.StageDream100, []parentSeed{{Keyword: "crm software"}}, 100)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range out.Candidates {
		if c.Keyword == "crm software" {
			t.Error("parent leaked into candidates")
		}
	}
}

func TestGenerateSERPOverlapUsesParentContext(t *testing.T) {
	req := generatorRequest()
	req.EnableSemantic = false
	req.EnableSERPOverlap = true
	g := NewGenerator(nil, nil)

	parents := []parentSeed{{Keyword: "crm software", SERPKeywords: []string{"crm system requirements"}}}
	out, err := g.generate(context.Background(), req, scoring.StageDream100, parents, 100)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range out.Candidates {
		if c.Keyword == "crm system requirements" {
			if c.Source != SourceSERP {
				t.Errorf("source = %s", c.Source)
			}
			if c.Parent != "crm software" {
				t.Errorf("parent = %q", c.Parent)
			}
			return
		}
	}
	t.Error("serp keyword missing from candidates")
}

func TestGenerateCompetitorMiningOnlyFirstTier(t *testing.T) {
	miner := &fakeMiner{phrases: []string{"pipeline management"}, warns: []string{"fetch example.com: timeout"}}
	req := generatorRequest()
	req.EnableSemantic = false
	req.EnableCompetitors = true
	req.CompetitorDomains = []string{"example.com"}
	g := NewGenerator(nil, miner)

	out, err := g.generate(context.Background(), req, scoring.StageDream100, []parentSeed{{Keyword: "crm software"}}, 100)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range out.Candidates {
		if c.Keyword == "pipeline management" && c.Source == SourceCompetitor {
			found = true
		}
	}
	if !found {
		t.Error("mined phrase missing")
	}
	if len(out.Warnings) != 1 {
		t.Errorf("warnings = %v", out.Warnings)
	}

	if _, err := g.generate(context.Background(), req, scoring.StageTier2, []parentSeed{{Keyword: "crm software"}}, 100); err != nil {
		t.Fatal(err)
	}
	if miner.calls != 1 {
		t.Errorf("miner called %d times; deep tiers must not mine", miner.calls)
	}
}

func TestGenerateSemanticFailureIsWarning(t *testing.T) {
	exp := &fakeExpander{err: context.DeadlineExceeded}
	g := NewGenerator(exp, nil)

	out, err := g.generate(context.Background(), generatorRequest(), scoring.StageDream100, []parentSeed{{Keyword: "crm software"}}, 100)
	if err != nil {
		t.Fatal("strategy failure must not be fatal at this layer")
	}
	if len(out.Warnings) == 0 {
		t.Error("no warning for failed strategy")
	}
	if len(out.Candidates) == 0 {
		t.Error("templates should still produce candidates")
	}
}

func TestGenerateDeterministicTruncation(t *testing.T) {
	req := generatorRequest()
	req.EnableSemantic = false
	g := NewGenerator(nil, nil)
	parents := []parentSeed{{Keyword: "crm software"}, {Keyword: "sales automation"}}

	a, err := g.generate(context.Background(), req, scoring.StageTier2, parents, 5)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.generate(context.Background(), req, scoring.StageTier2, parents, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Candidates) != 5 || len(b.Candidates) != 5 {
		t.Fatalf("lens = %d, %d", len(a.Candidates), len(b.Candidates))
	}
	for i := range a.Candidates {
		if a.Candidates[i].Keyword != b.Candidates[i].Keyword {
			t.Fatalf("position %d differs: %q vs %q", i, a.Candidates[i].Keyword, b.Candidates[i].Keyword)
		}
	}
}

func TestGenerateNoParentsFails(t *testing.T) {
	g := NewGenerator(nil, nil)
	if _, err := g.generate(context.Background(), generatorRequest(), scoring.StageDream100, nil, 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyModifiersStageTemplates(t *testing.T) {
	tier3 := applyModifiers("crm software", scoring.StageTier3)
	hasQuestion := false
	for _, kw := range tier3 {
		if kw == "crm software" {
			t.Error("parent returned as its own variant")
		}
		if strings.HasPrefix(kw, "what is ") || strings.HasPrefix(kw, "how to ") {
			hasQuestion = true
		}
	}
	if !hasQuestion {
		t.Error("tier3 templates missing question forms")
	}

	dream := applyModifiers("crm software", scoring.StageDream100)
	if len(dream) == 0 {
		t.Fatal("no dream100 variants")
	}
	for _, kw := range dream {
		if len(strings.Fields(kw)) < 2 {
			t.Errorf("variant %q too short", kw)
		}
	}
}

func TestAssignParentTokenOverlap(t *testing.T) {
	parents := []string{"crm software", "email marketing"}
	tests := []struct {
		kw   string
		want string
	}{
		{"best email marketing tools", "email marketing"},
		{"crm software pricing", "crm software"},
		{"unrelated phrase", "crm software"}, // deterministic fallback
	}
	for _, tt := range tests {
		if got := assignParent(tt.kw, parents); got != tt.want {
			t.Errorf("assignParent(%q) = %q, want %q", tt.kw, got, tt.want)
		}
	}
}
