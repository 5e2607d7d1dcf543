// Package scoring implements the stage-aware weighted blending that turns
// raw keyword metrics into a single quality score per candidate. Score is a
// pure function: identical inputs always produce identical results, and it
// is safe to call concurrently for independent candidates.
package scoring

import (
	"fmt"
	"math"
)

// ScoreTier buckets a blended score for downstream presentation.
type ScoreTier string

const (
	TierHigh   ScoreTier = "high"
	TierMedium ScoreTier = "medium"
	TierLow    ScoreTier = "low"

	tierHighFloor   = 0.7
	tierMediumFloor = 0.4
)

// QuickWinBoost multiplies the blended score of a candidate that passes the
// quick-win test. The test itself runs on the pre-boost score.
const QuickWinBoost = 1.10

// stageConfig carries every stage-specific scoring constant. The transforms
// differ because volume distributions differ across depths: head terms are
// heavy-tailed, long-tail volumes are near-linear and small.
type stageConfig struct {
	volumeTransform  func(volume int) float64
	easeTransform    func(ease float64) float64
	intentScalars    map[Intent]float64
	trendSensitivity float64
	quickWinMinEase  float64
	quickWinMinVol   int
	quickWinMinScore float64
}

const tier3LinearVolumeCeil = 1000.0

var stageConfigs = map[Stage]stageConfig{
	StageDream100: {
		// log10 compresses the heavy tail; 6 decades saturate at 1M searches.
		volumeTransform: func(v int) float64 { return clamp01(math.Log10(float64(v)+1) / 6) },
		// Sigmoid centered at difficulty 50 punishes mid-difficulty head
		// terms harder than linear would.
		easeTransform: func(ease float64) float64 {
			return clamp01(1 / (1 + math.Exp(-10*(ease-0.5))))
		},
		intentScalars: map[Intent]float64{
			IntentTransactional: 1.0,
			IntentCommercial:    0.9,
			IntentInformational: 0.7,
			IntentNavigational:  0.5,
		},
		trendSensitivity: 1.0,
		quickWinMinEase:  0.7,
		quickWinMinVol:   100,
		quickWinMinScore: 0.5,
	},
	StageTier2: {
		volumeTransform: func(v int) float64 { return clamp01(math.Sqrt(float64(v)) / 1000) },
		easeTransform:   func(ease float64) float64 { return clamp01(ease) },
		intentScalars: map[Intent]float64{
			IntentTransactional: 1.0,
			IntentCommercial:    0.8,
			IntentInformational: 0.6,
			IntentNavigational:  0.4,
		},
		trendSensitivity: 1.0,
		quickWinMinEase:  0.75,
		quickWinMinVol:   50,
		quickWinMinScore: 0.45,
	},
	StageTier3: {
		volumeTransform: func(v int) float64 { return clamp01(float64(v) / tier3LinearVolumeCeil) },
		// sqrt rewards easy long-tail wins disproportionately.
		easeTransform: func(ease float64) float64 { return clamp01(math.Sqrt(clamp01(ease))) },
		intentScalars: map[Intent]float64{
			IntentTransactional: 1.0,
			IntentCommercial:    0.8,
			IntentInformational: 0.6,
			IntentNavigational:  0.4,
		},
		trendSensitivity: 1.0,
		quickWinMinEase:  0.8,
		quickWinMinVol:   10,
		quickWinMinScore: 0.4,
	},
}

// Input is one candidate's raw metrics plus pipeline-derived relevance.
type Input struct {
	Keyword    string
	Stage      Stage
	Volume     int     // searches per period, >= 0
	Difficulty float64 // 0-100
	Intent     Intent
	Relevance  float64 // 0-1, from the generation strategy
	Trend      float64 // -1..1, negative means declining
}

// ComponentScores are the normalized 0-1 factor values before weighting.
type ComponentScores struct {
	Volume    float64 `json:"volume"`
	Intent    float64 `json:"intent"`
	Relevance float64 `json:"relevance"`
	Trend     float64 `json:"trend"`
	Ease      float64 `json:"ease"`
}

// Result is the full scoring breakdown for one candidate.
type Result struct {
	Keyword         string          `json:"keyword"`
	ComponentScores ComponentScores `json:"component_scores"`
	WeightedScores  ComponentScores `json:"weighted_scores"`
	BlendedScore    float64         `json:"blended_score"`
	QuickWin        bool            `json:"quick_win"`
	Tier            ScoreTier       `json:"tier"`
	Recommendations []string        `json:"recommendations"`
}

// Score blends one candidate's metrics under the supplied weights. When
// clusterMedianVolume is non-nil the quick-win volume test additionally
// requires the candidate to meet the cluster median.
func Score(in Input, w StageWeights, clusterMedianVolume *float64) Result {
	cfg, ok := stageConfigs[in.Stage]
	if !ok {
		cfg = stageConfigs[StageDream100]
	}

	ease := 1 - clamp(in.Difficulty, 0, 100)/100

	comps := ComponentScores{
		Volume:    cfg.volumeTransform(maxInt(in.Volume, 0)),
		Intent:    intentScalar(cfg, in.Intent),
		Relevance: clamp01(in.Relevance),
		Trend:     clamp01((clamp(in.Trend, -1, 1)*cfg.trendSensitivity + 1) / 2),
		Ease:      cfg.easeTransform(ease),
	}
	weighted := ComponentScores{
		Volume:    comps.Volume * w.Volume,
		Intent:    comps.Intent * w.Intent,
		Relevance: comps.Relevance * w.Relevance,
		Trend:     comps.Trend * w.Trend,
		Ease:      comps.Ease * w.Ease,
	}
	blended := clamp01(weighted.Volume + weighted.Intent + weighted.Relevance + weighted.Trend + weighted.Ease)

	// Quick-win test first, on the pre-boost score; the boost never feeds
	// back into the test. Ease is judged raw (1 - difficulty/100), before
	// any stage reshape.
	quickWin := ease >= cfg.quickWinMinEase &&
		in.Volume >= cfg.quickWinMinVol &&
		(clusterMedianVolume == nil || float64(in.Volume) >= *clusterMedianVolume) &&
		blended >= cfg.quickWinMinScore
	if quickWin {
		blended = clamp01(blended * QuickWinBoost)
	}

	return Result{
		Keyword:         in.Keyword,
		ComponentScores: comps,
		WeightedScores:  weighted,
		BlendedScore:    blended,
		QuickWin:        quickWin,
		Tier:            classifyTier(blended),
		Recommendations: recommendations(in, comps, quickWin),
	}
}

func classifyTier(blended float64) ScoreTier {
	switch {
	case blended >= tierHighFloor:
		return TierHigh
	case blended >= tierMediumFloor:
		return TierMedium
	default:
		return TierLow
	}
}

// recommendations are advisory strings only. Nothing downstream parses them.
func recommendations(in Input, comps ComponentScores, quickWin bool) []string {
	var recs []string
	if quickWin {
		recs = append(recs, "quick win: low difficulty with usable volume, prioritize")
	}
	if comps.Volume >= 0.8 {
		recs = append(recs, "high volume, good pillar candidate")
	}
	if in.Difficulty > 70 {
		recs = append(recs, fmt.Sprintf("difficulty %.0f is high, expect a long ranking horizon", in.Difficulty))
	}
	if in.Trend <= -0.3 {
		recs = append(recs, "declining trend, deprioritize")
	} else if in.Trend >= 0.3 {
		recs = append(recs, "rising trend, consider early coverage")
	}
	if in.Intent == IntentTransactional {
		recs = append(recs, "transactional intent, map to a conversion page")
	}
	return recs
}

func intentScalar(cfg stageConfig, intent Intent) float64 {
	if v, ok := cfg.intentScalars[intent]; ok {
		return v
	}
	// Unknown intent defaults to the informational value for the stage.
	return cfg.intentScalars[IntentInformational]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// QuickWinThresholds exposes the stage thresholds so the capper and tests
// can construct fixtures on the right side of each boundary.
func QuickWinThresholds(stage Stage) (minEase float64, minVolume int, minBlended float64) {
	cfg, ok := stageConfigs[stage]
	if !ok {
		cfg = stageConfigs[StageDream100]
	}
	return cfg.quickWinMinEase, cfg.quickWinMinVol, cfg.quickWinMinScore
}
