package scoring

import (
	"fmt"
	"math"
)

// Stage identifies the expansion depth a candidate belongs to. Scoring
// transforms, intent scalars, and quick-win thresholds are all stage-keyed.
type Stage string

const (
	StageDream100 Stage = "dream100"
	StageTier2    Stage = "tier2"
	StageTier3    Stage = "tier3"
)

func (s Stage) Valid() bool {
	switch s {
	case StageDream100, StageTier2, StageTier3:
		return true
	}
	return false
}

// Intent is the searcher intent bucket attached to a candidate.
type Intent string

const (
	IntentTransactional Intent = "transactional"
	IntentCommercial    Intent = "commercial"
	IntentInformational Intent = "informational"
	IntentNavigational  Intent = "navigational"
	IntentUnknown       Intent = ""
)

func (i Intent) Valid() bool {
	switch i {
	case IntentTransactional, IntentCommercial, IntentInformational, IntentNavigational, IntentUnknown:
		return true
	}
	return false
}

// WeightSumTolerance is how far from 1.0 a weight set may drift before
// construction fails.
const WeightSumTolerance = 0.01

// StageWeights are the blending coefficients for one stage. Validated once
// at construction and immutable afterwards; per-candidate scoring never
// re-validates.
type StageWeights struct {
	Volume    float64
	Intent    float64
	Relevance float64
	Trend     float64
	Ease      float64
}

// NewStageWeights validates that every coefficient is non-negative and the
// set sums to 1.0 within WeightSumTolerance.
func NewStageWeights(volume, intent, relevance, trend, ease float64) (StageWeights, error) {
	w := StageWeights{Volume: volume, Intent: intent, Relevance: relevance, Trend: trend, Ease: ease}
	if err := w.validate(); err != nil {
		return StageWeights{}, err
	}
	return w, nil
}

func (w StageWeights) validate() error {
	for name, v := range map[string]float64{
		"volume": w.Volume, "intent": w.Intent, "relevance": w.Relevance, "trend": w.Trend, "ease": w.Ease,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("weights must sum to 1.0 +/- %.2f, got %.4f", WeightSumTolerance, sum)
	}
	return nil
}

func (w StageWeights) Sum() float64 {
	return w.Volume + w.Intent + w.Relevance + w.Trend + w.Ease
}

// DefaultWeights returns the built-in coefficients for a stage. Head terms
// lean on volume and intent; long-tail leans on ease and relevance.
func DefaultWeights(stage Stage) StageWeights {
	switch stage {
	case StageTier2:
		return StageWeights{Volume: 0.25, Intent: 0.25, Relevance: 0.25, Trend: 0.10, Ease: 0.15}
	case StageTier3:
		return StageWeights{Volume: 0.15, Intent: 0.20, Relevance: 0.30, Trend: 0.10, Ease: 0.25}
	default:
		return StageWeights{Volume: 0.30, Intent: 0.25, Relevance: 0.20, Trend: 0.10, Ease: 0.15}
	}
}
