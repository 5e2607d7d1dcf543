package expansion

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/contentforge/kwuniverse/internal/keywords"
	"github.com/contentforge/kwuniverse/internal/llm"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

// SemanticExpander is the LLM-backed variant generator.
type SemanticExpander interface {
	Expand(ctx context.Context, req llm.ExpandRequest) ([]string, llm.AttemptMetrics, error)
}

// CompetitorMiner extracts keyword phrases from competitor pages. The
// second return value carries per-domain warnings.
type CompetitorMiner interface {
	Mine(ctx context.Context, domains []string, maxPerDomain int) ([]string, []string)
}

// parentSeed is one stage-(N-1) survivor acting as an expansion root,
// carrying whatever SERP context enrichment attached to it.
type parentSeed struct {
	Keyword      string
	SERPKeywords []string
}

// rawCandidate is a generated keyword before enrichment and scoring.
type rawCandidate struct {
	Keyword   string
	Parent    string
	Source    Source
	Relevance float64
}

// Strategy relevance priors. Semantic expansion is the highest-weighted
// strategy; deterministic templates the lowest.
var sourceRelevance = map[Source]float64{
	SourceSeed:       1.0,
	SourceSemantic:   0.9,
	SourceSERP:       0.8,
	SourceCompetitor: 0.7,
	SourceModifier:   0.6,
}

// sourceRank orders strategies for dedup tie-breaks: when two strategies
// produce the same keyword, the higher-priority source claims it.
var sourceRank = map[Source]int{
	SourceSeed:       0,
	SourceSemantic:   1,
	SourceSERP:       2,
	SourceCompetitor: 3,
	SourceModifier:   4,
}

// Generator fans four strategies into one canonical candidate list.
type Generator struct {
	expander SemanticExpander
	miner    CompetitorMiner
}

func NewGenerator(expander SemanticExpander, miner CompetitorMiner) *Generator {
	return &Generator{expander: expander, miner: miner}
}

type generateOutput struct {
	Candidates []rawCandidate
	Warnings   []string
	LLMCalls   int
}

// generate runs every enabled strategy for one stage. Strategy failures
// are warnings; the insufficiency contract is enforced by the caller
// after it knows the stage target.
func (g *Generator) generate(ctx context.Context, req *ExpansionRequest, stage scoring.Stage, parents []parentSeed, maxCandidates int) (generateOutput, error) {
	if len(parents) == 0 {
		return generateOutput{}, fmt.Errorf("generate %s: no parent seeds", stage)
	}
	out := generateOutput{}
	byKeyword := map[string]rawCandidate{}
	parentKeys := make([]string, 0, len(parents))
	for _, p := range parents {
		parentKeys = append(parentKeys, p.Keyword)
	}

	admit := func(kw string, parent string, source Source) {
		kw = keywords.Canonicalize(kw)
		if kw == "" || keywords.ValidateSeed(kw) != nil {
			return
		}
		existing, ok := byKeyword[kw]
		if !ok {
			byKeyword[kw] = rawCandidate{Keyword: kw, Parent: parent, Source: source, Relevance: sourceRelevance[source]}
			return
		}
		if sourceRank[source] < sourceRank[existing.Source] {
			byKeyword[kw] = rawCandidate{Keyword: kw, Parent: parent, Source: source, Relevance: sourceRelevance[source]}
		}
	}

	if req.EnableSemantic && g.expander != nil {
		vars, m, err := g.expander.Expand(ctx, llm.ExpandRequest{
			Seeds:       parentKeys,
			TargetCount: maxCandidates,
			Industry:    req.Industry,
			Market:      req.Market,
			IntentFocus: req.IntentFocus,
			Stage:       stage,
		})
		out.LLMCalls += m.Attempts
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("semantic expansion failed for %s: %v", stage, err))
			log.Printf("kwuniverse generate_semantic_failed stage=%s err=%v", stage, err)
		} else {
			for _, v := range vars {
				admit(v, assignParent(v, parentKeys), SourceSemantic)
			}
		}
	}

	for _, p := range parents {
		for _, kw := range applyModifiers(p.Keyword, stage) {
			admit(kw, p.Keyword, SourceModifier)
		}
	}

	if req.EnableSERPOverlap {
		for _, p := range parents {
			for _, kw := range p.SERPKeywords {
				admit(kw, p.Keyword, SourceSERP)
			}
		}
	}

	if req.EnableCompetitors && g.miner != nil && len(req.CompetitorDomains) > 0 && stage == scoring.StageDream100 {
		mined, warns := g.miner.Mine(ctx, req.CompetitorDomains, maxCandidates/len(req.CompetitorDomains)+1)
		out.Warnings = append(out.Warnings, warns...)
		for _, kw := range mined {
			admit(kw, assignParent(kw, parentKeys), SourceCompetitor)
		}
	}

	// Parents never compete with their own expansions.
	for _, p := range parents {
		delete(byKeyword, keywords.Canonicalize(p.Keyword))
	}

	cands := make([]rawCandidate, 0, len(byKeyword))
	for _, c := range byKeyword {
		cands = append(cands, c)
	}
	// Deterministic order: source priority, then keyword.
	sort.Slice(cands, func(i, j int) bool {
		if sourceRank[cands[i].Source] != sourceRank[cands[j].Source] {
			return sourceRank[cands[i].Source] < sourceRank[cands[j].Source]
		}
		return cands[i].Keyword < cands[j].Keyword
	})
	if len(cands) > maxCandidates {
		cands = cands[:maxCandidates]
	}
	out.Candidates = cands
	return out, nil
}

// minTier1Candidates is the generator contract floor for the first tier.
func minTier1Candidates(target int) int {
	m := target / 2
	if m > MinTier1CandidatesFloor {
		return MinTier1CandidatesFloor
	}
	return m
}

// assignParent picks the parent sharing the most tokens with the keyword;
// ties and no-overlap fall back to the first parent, keeping attribution
// deterministic.
func assignParent(kw string, parents []string) string {
	if len(parents) == 0 {
		return ""
	}
	kwTokens := map[string]struct{}{}
	for _, t := range strings.Fields(kw) {
		kwTokens[t] = struct{}{}
	}
	best := parents[0]
	bestOverlap := -1
	for _, p := range parents {
		overlap := 0
		for _, t := range strings.Fields(p) {
			if _, ok := kwTokens[t]; ok {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = p
		}
	}
	return best
}
