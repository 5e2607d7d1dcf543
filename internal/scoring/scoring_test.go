package scoring

import (
	"math"
	"testing"
)

func TestNewStageWeightsValidation(t *testing.T) {
	if _, err := NewStageWeights(0.3, 0.25, 0.2, 0.1, 0.15); err != nil {
		t.Fatalf("valid weights rejected: %v", err)
	}
	if _, err := NewStageWeights(0.3, 0.25, 0.2, 0.1, 0.151); err != nil {
		t.Fatalf("weights within tolerance rejected: %v", err)
	}
	if _, err := NewStageWeights(0.5, 0.25, 0.2, 0.1, 0.15); err == nil {
		t.Fatal("expected sum rejection")
	}
	if _, err := NewStageWeights(-0.1, 0.45, 0.3, 0.2, 0.15); err == nil {
		t.Fatal("expected negative-weight rejection")
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	for _, stage := range []Stage{StageDream100, StageTier2, StageTier3} {
		w := DefaultWeights(stage)
		if math.Abs(w.Sum()-1.0) > WeightSumTolerance {
			t.Errorf("stage %s weights sum %.4f", stage, w.Sum())
		}
	}
}

func TestScoreRanges(t *testing.T) {
	inputs := []Input{
		{Keyword: "a", Stage: StageDream100, Volume: 0, Difficulty: 0, Relevance: 0, Trend: -1},
		{Keyword: "b", Stage: StageDream100, Volume: 5000000, Difficulty: 100, Relevance: 1, Trend: 1, Intent: IntentTransactional},
		{Keyword: "c", Stage: StageTier2, Volume: 2000000, Difficulty: 50, Relevance: 0.5, Trend: 0, Intent: IntentCommercial},
		{Keyword: "d", Stage: StageTier3, Volume: 12, Difficulty: 8, Relevance: 0.9, Trend: 0.4, Intent: IntentInformational},
		{Keyword: "e", Stage: StageTier3, Volume: -5, Difficulty: 120, Relevance: 1.5, Trend: 3},
	}
	for _, in := range inputs {
		res := Score(in, DefaultWeights(in.Stage), nil)
		for name, v := range map[string]float64{
			"volume": res.ComponentScores.Volume, "intent": res.ComponentScores.Intent,
			"relevance": res.ComponentScores.Relevance, "trend": res.ComponentScores.Trend,
			"ease": res.ComponentScores.Ease, "blended": res.BlendedScore,
		} {
			if v < 0 || v > 1 {
				t.Errorf("keyword %s component %s out of range: %v", in.Keyword, name, v)
			}
		}
	}
}

func TestQuickWinNecessaryConditions(t *testing.T) {
	minEase, minVol, _ := QuickWinThresholds(StageDream100)
	w := DefaultWeights(StageDream100)

	// Easy high-volume transactional keyword qualifies.
	win := Score(Input{Keyword: "win", Stage: StageDream100, Volume: 900, Difficulty: 20, Relevance: 0.9, Trend: 0.2, Intent: IntentTransactional}, w, nil)
	if !win.QuickWin {
		t.Fatal("expected quick win")
	}

	// Violating any single condition must disqualify.
	hardDifficulty := (1 - minEase + 0.01) * 100
	noEase := Score(Input{Keyword: "hard", Stage: StageDream100, Volume: 900, Difficulty: hardDifficulty, Relevance: 0.9, Trend: 0.2, Intent: IntentTransactional}, w, nil)
	if noEase.QuickWin {
		t.Fatal("quick win despite ease below threshold")
	}
	noVolume := Score(Input{Keyword: "tiny", Stage: StageDream100, Volume: minVol - 1, Difficulty: 20, Relevance: 0.9, Trend: 0.2, Intent: IntentTransactional}, w, nil)
	if noVolume.QuickWin {
		t.Fatal("quick win despite volume below threshold")
	}
	lowScore := Score(Input{Keyword: "weak", Stage: StageDream100, Volume: minVol, Difficulty: 25, Relevance: 0, Trend: -1, Intent: IntentNavigational}, w, nil)
	if lowScore.QuickWin && lowScore.BlendedScore/QuickWinBoost < 0.5 {
		t.Fatal("quick win despite blended score below threshold")
	}
}

func TestQuickWinClusterMedianGate(t *testing.T) {
	w := DefaultWeights(StageDream100)
	in := Input{Keyword: "k", Stage: StageDream100, Volume: 900, Difficulty: 20, Relevance: 0.9, Trend: 0.2, Intent: IntentTransactional}
	median := 2000.0
	if Score(in, w, &median).QuickWin {
		t.Fatal("quick win despite volume below cluster median")
	}
	median = 500.0
	if !Score(in, w, &median).QuickWin {
		t.Fatal("expected quick win above cluster median")
	}
}

func TestQuickWinBoostAppliedAfterTest(t *testing.T) {
	w := DefaultWeights(StageDream100)
	in := Input{Keyword: "k", Stage: StageDream100, Volume: 900, Difficulty: 20, Relevance: 0.9, Trend: 0.2, Intent: IntentTransactional}
	res := Score(in, w, nil)
	if !res.QuickWin {
		t.Fatal("fixture should quick win")
	}
	raw := res.WeightedScores.Volume + res.WeightedScores.Intent + res.WeightedScores.Relevance +
		res.WeightedScores.Trend + res.WeightedScores.Ease
	wantBoosted := math.Min(raw*QuickWinBoost, 1.0)
	if math.Abs(res.BlendedScore-wantBoosted) > 1e-9 {
		t.Fatalf("blended %.6f, want boosted %.6f", res.BlendedScore, wantBoosted)
	}
}

func TestUnknownIntentDefaultsToInformational(t *testing.T) {
	w := DefaultWeights(StageTier2)
	unknown := Score(Input{Keyword: "k", Stage: StageTier2, Volume: 100, Difficulty: 40, Relevance: 0.5}, w, nil)
	info := Score(Input{Keyword: "k", Stage: StageTier2, Volume: 100, Difficulty: 40, Relevance: 0.5, Intent: IntentInformational}, w, nil)
	if unknown.ComponentScores.Intent != info.ComponentScores.Intent {
		t.Fatalf("unknown intent scalar %v, informational %v", unknown.ComponentScores.Intent, info.ComponentScores.Intent)
	}
}

func TestTierClassification(t *testing.T) {
	if got := classifyTier(0.7); got != TierHigh {
		t.Errorf("0.7 -> %s", got)
	}
	if got := classifyTier(0.69); got != TierMedium {
		t.Errorf("0.69 -> %s", got)
	}
	if got := classifyTier(0.4); got != TierMedium {
		t.Errorf("0.4 -> %s", got)
	}
	if got := classifyTier(0.39); got != TierLow {
		t.Errorf("0.39 -> %s", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	in := Input{Keyword: "content marketing tools", Stage: StageDream100, Volume: 5400, Difficulty: 65, Relevance: 0.8, Trend: 0.1, Intent: IntentCommercial}
	w := DefaultWeights(StageDream100)
	a := Score(in, w, nil)
	b := Score(in, w, nil)
	if a.BlendedScore != b.BlendedScore || a.QuickWin != b.QuickWin || a.Tier != b.Tier {
		t.Fatal("scoring is not deterministic")
	}
}

func TestStageVolumeTransforms(t *testing.T) {
	w := StageWeights{Volume: 1}
	d := Score(Input{Keyword: "k", Stage: StageDream100, Volume: 999999}, w, nil)
	if math.Abs(d.ComponentScores.Volume-1.0) > 0.01 {
		t.Errorf("dream100 log transform near 1M: %v", d.ComponentScores.Volume)
	}
	t2 := Score(Input{Keyword: "k", Stage: StageTier2, Volume: 10000}, w, nil)
	if math.Abs(t2.ComponentScores.Volume-0.1) > 1e-9 {
		t.Errorf("tier2 sqrt transform: %v", t2.ComponentScores.Volume)
	}
	t3 := Score(Input{Keyword: "k", Stage: StageTier3, Volume: 500}, w, nil)
	if math.Abs(t3.ComponentScores.Volume-0.5) > 1e-9 {
		t.Errorf("tier3 linear transform: %v", t3.ComponentScores.Volume)
	}
}
