package expansion

import (
	"testing"

	"github.com/contentforge/kwuniverse/internal/scoring"
)

func TestDedupWithinTierKeepsHigherScore(t *testing.T) {
	cands := []KeywordCandidate{
		{Keyword: "crm pricing", BlendedScore: 0.4, ExpansionSource: SourceModifier},
		{Keyword: "crm pricing", BlendedScore: 0.7, ExpansionSource: SourceSemantic},
		{Keyword: "crm reviews", BlendedScore: 0.5},
	}
	got, removed := dedupWithinTier(cands)
	if removed != 1 {
		t.Errorf("removed = %d", removed)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Keyword != "crm pricing" || got[0].BlendedScore != 0.7 {
		t.Errorf("kept %q score %v", got[0].Keyword, got[0].BlendedScore)
	}
}

func TestDedupAcrossTiersDropsEarlierWinners(t *testing.T) {
	earlier := map[string]struct{}{"crm pricing": {}}
	cands := []KeywordCandidate{
		{Keyword: "crm pricing"},
		{Keyword: "crm reviews"},
	}
	got, dropped := dedupAcrossTiers(cands, earlier)
	if dropped != 1 || len(got) != 1 || got[0].Keyword != "crm reviews" {
		t.Errorf("got %v dropped %d", got, dropped)
	}
}

func TestDedupWithinTierIsIdempotent(t *testing.T) {
	cands := []KeywordCandidate{
		{Keyword: "crm pricing", BlendedScore: 0.4},
		{Keyword: "crm pricing", BlendedScore: 0.7},
		{Keyword: "crm reviews", BlendedScore: 0.5},
		{Keyword: "crm demo", BlendedScore: 0.6},
	}
	once, _ := dedupWithinTier(cands)
	twice, removed := dedupWithinTier(once)
	if removed != 0 {
		t.Errorf("second pass removed %d", removed)
	}
	if len(twice) != len(once) {
		t.Fatalf("len = %d, want %d", len(twice), len(once))
	}
	for i := range once {
		if twice[i].Keyword != once[i].Keyword || twice[i].BlendedScore != once[i].BlendedScore {
			t.Errorf("entry %d changed: %+v vs %+v", i, twice[i], once[i])
		}
	}
}

func TestDedupAcrossTiersIsIdempotent(t *testing.T) {
	earlier := map[string]struct{}{"crm pricing": {}}
	cands := []KeywordCandidate{
		{Keyword: "crm pricing"},
		{Keyword: "crm reviews"},
		{Keyword: "crm demo"},
	}
	once, _ := dedupAcrossTiers(cands, earlier)
	twice, dropped := dedupAcrossTiers(once, earlier)
	if dropped != 0 {
		t.Errorf("second pass dropped %d", dropped)
	}
	if len(twice) != len(once) {
		t.Fatalf("len = %d, want %d", len(twice), len(once))
	}
	for i := range once {
		if twice[i].Keyword != once[i].Keyword {
			t.Errorf("entry %d changed: %q vs %q", i, twice[i].Keyword, once[i].Keyword)
		}
	}
}

func TestApplyFilters(t *testing.T) {
	base := KeywordCandidate{Keyword: "kw", BlendedScore: 0.6, Volume: 500, Difficulty: 50, Intent: scoring.IntentCommercial}

	tests := []struct {
		name   string
		mutate func(*KeywordCandidate)
		cfg    filterConfig
		kept   bool
	}{
		{"passes all gates", func(*KeywordCandidate) {}, filterConfig{QualityThreshold: 0.3, VolumeFloor: 10}, true},
		{"below threshold", func(c *KeywordCandidate) { c.BlendedScore = 0.1 }, filterConfig{QualityThreshold: 0.3, VolumeFloor: 10}, false},
		{"below volume floor", func(c *KeywordCandidate) { c.Volume = 5 }, filterConfig{QualityThreshold: 0.3, VolumeFloor: 10}, false},
		{"difficulty mismatch", func(*KeywordCandidate) {}, filterConfig{VolumeFloor: 10, DifficultyPref: DifficultyEasy}, false},
		{"difficulty match", func(c *KeywordCandidate) { c.Difficulty = 20 }, filterConfig{VolumeFloor: 10, DifficultyPref: DifficultyEasy}, true},
		{"intent mismatch", func(*KeywordCandidate) {}, filterConfig{VolumeFloor: 10, IntentFocus: scoring.IntentTransactional}, false},
		{"mixed focus keeps all intents", func(*KeywordCandidate) {}, filterConfig{VolumeFloor: 10, IntentFocus: scoring.IntentUnknown}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			kept, filtered := applyFilters([]KeywordCandidate{c}, tt.cfg)
			if (len(kept) == 1) != tt.kept {
				t.Errorf("kept = %d, filtered = %d", len(kept), filtered)
			}
		})
	}
}

func TestFilterConfigVolumeFloorsByStage(t *testing.T) {
	req := &ExpansionRequest{QualityThreshold: 0.3}
	if got := filterConfigFor(req, scoring.StageDream100).VolumeFloor; got != Tier1VolumeFloor {
		t.Errorf("dream100 floor = %d", got)
	}
	if got := filterConfigFor(req, scoring.StageTier3).VolumeFloor; got != DeepTierVolumeFloor {
		t.Errorf("tier3 floor = %d", got)
	}
}

func TestSortByScoreBreaksTiesOnKeyword(t *testing.T) {
	cands := []KeywordCandidate{
		{Keyword: "b", BlendedScore: 0.5},
		{Keyword: "a", BlendedScore: 0.5},
		{Keyword: "c", BlendedScore: 0.9},
	}
	sortByScore(cands)
	want := []string{"c", "a", "b"}
	for i, w := range want {
		if cands[i].Keyword != w {
			t.Fatalf("position %d = %q, want %q", i, cands[i].Keyword, w)
		}
	}
}
