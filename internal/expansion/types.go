// Package expansion is the keyword-universe pipeline: multi-strategy
// candidate generation, batched metrics enrichment, stage-weighted scoring,
// cross-tier dedup, and budget-aware capping across three expansion depths.
package expansion

import (
	"errors"
	"fmt"
	"time"

	"github.com/contentforge/kwuniverse/internal/keywords"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

const (
	MaxSeeds           = 5
	MaxDream100Target  = 100
	MaxPerParentTarget = 10
	DefaultGlobalCap   = 10000
	DefaultRunTimeout  = 20 * time.Minute

	DefaultQualityThreshold  = 0.3
	Tier1VolumeFloor         = 10
	DeepTierVolumeFloor      = 5
	QuickWinQuotaRatio       = 0.10
	MinTier1CandidatesFloor  = 50
	Tier1MaxRawCandidates    = 300
	tierFanoutFactor         = 2
	classificationBatchLimit = 80
)

// Source identifies the generation strategy that produced a candidate.
type Source string

const (
	SourceSeed       Source = "seed"
	SourceSemantic   Source = "semantic"
	SourceModifier   Source = "modifier"
	SourceSERP       Source = "serp_overlap"
	SourceCompetitor Source = "competitor"
)

// DifficultyPreference buckets an optional hard filter.
type DifficultyPreference string

const (
	DifficultyAny    DifficultyPreference = ""
	DifficultyEasy   DifficultyPreference = "easy"   // <= 30
	DifficultyMedium DifficultyPreference = "medium" // 31-70
	DifficultyHard   DifficultyPreference = "hard"   // > 70
)

// KeywordCandidate is one keyword plus everything the pipeline learned
// about it. Candidates are immutable once their tier's capping completes.
type KeywordCandidate struct {
	Keyword          string            `json:"keyword"`
	Stage            scoring.Stage     `json:"stage"`
	ParentKeyword    string            `json:"parent_keyword,omitempty"`
	Volume           int               `json:"volume"`
	Difficulty       float64           `json:"difficulty"`
	CPC              float64           `json:"cpc"`
	Trend            float64           `json:"trend"`
	Intent           scoring.Intent    `json:"intent,omitempty"`
	IntentConfidence float64           `json:"intent_confidence"`
	RelevanceScore   float64           `json:"relevance_score"`
	QualityScore     float64           `json:"quality_score"`
	BlendedScore     float64           `json:"blended_score"`
	QuickWin         bool              `json:"quick_win"`
	ExpansionSource  Source            `json:"expansion_source"`
	Confidence       float64           `json:"confidence"`
	Enriched         bool              `json:"enriched"`
	EstimatedMetrics bool              `json:"estimated_metrics,omitempty"`
	Recommendations  []string          `json:"recommendations,omitempty"`
	SERPKeywords     []string          `json:"-"`
	ScoreTier        scoring.ScoreTier `json:"score_tier,omitempty"`
}

// ExpansionRequest is validated in full before any external call is made.
type ExpansionRequest struct {
	RunID             string                                 `json:"run_id"`
	SeedKeywords      []string                               `json:"seed_keywords"`
	Market            string                                 `json:"market"`
	Industry          string                                 `json:"industry"`
	IntentFocus       scoring.Intent                         `json:"intent_focus,omitempty"` // unknown = mixed
	TargetDream100    int                                    `json:"target_dream100"`
	MaxPerParentTier2 int                                    `json:"max_per_parent_tier2"`
	MaxPerParentTier3 int                                    `json:"max_per_parent_tier3"`
	MaxTotalKeywords  int                                    `json:"max_total_keywords"`
	BudgetLimit       float64                                `json:"budget_limit"`
	QualityThreshold  float64                                `json:"quality_threshold"`
	DifficultyPref    DifficultyPreference                   `json:"difficulty_preference,omitempty"`
	IntentBalancing   bool                                   `json:"intent_balancing"`
	EnableSemantic    bool                                   `json:"enable_semantic_variations"`
	EnableSERPOverlap bool                                   `json:"enable_serp_analysis"`
	EnableCompetitors bool                                   `json:"enable_competitor_mining"`
	CompetitorDomains []string                               `json:"competitor_domains,omitempty"`
	Weights           map[scoring.Stage]scoring.StageWeights `json:"-"`
	RunTimeout        time.Duration                          `json:"run_timeout"`
}

// Validate canonicalizes seeds in place and applies defaults. All shape
// problems surface here, synchronously, before the pipeline spends budget.
func (r *ExpansionRequest) Validate() error {
	r.SeedKeywords = keywords.CanonicalizeSet(r.SeedKeywords)
	if len(r.SeedKeywords) < 1 || len(r.SeedKeywords) > MaxSeeds {
		return fmt.Errorf("%w: need 1-%d seed keywords, got %d", ErrInvalidRequest, MaxSeeds, len(r.SeedKeywords))
	}
	for _, s := range r.SeedKeywords {
		if err := keywords.ValidateSeed(s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if r.TargetDream100 <= 0 || r.TargetDream100 > MaxDream100Target {
		return fmt.Errorf("%w: target_dream100 must be 1-%d, got %d", ErrInvalidRequest, MaxDream100Target, r.TargetDream100)
	}
	if r.MaxPerParentTier2 < 0 || r.MaxPerParentTier2 > MaxPerParentTarget {
		return fmt.Errorf("%w: max_per_parent_tier2 must be 0-%d", ErrInvalidRequest, MaxPerParentTarget)
	}
	if r.MaxPerParentTier3 < 0 || r.MaxPerParentTier3 > MaxPerParentTarget {
		return fmt.Errorf("%w: max_per_parent_tier3 must be 0-%d", ErrInvalidRequest, MaxPerParentTarget)
	}
	if r.BudgetLimit <= 0 {
		return fmt.Errorf("%w: budget_limit must be positive", ErrInvalidRequest)
	}
	if r.QualityThreshold < 0 || r.QualityThreshold > 1 {
		return fmt.Errorf("%w: quality_threshold must be in [0,1]", ErrInvalidRequest)
	}
	switch r.DifficultyPref {
	case DifficultyAny, DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: unknown difficulty_preference %q", ErrInvalidRequest, r.DifficultyPref)
	}
	if !r.IntentFocus.Valid() {
		return fmt.Errorf("%w: unknown intent_focus %q", ErrInvalidRequest, r.IntentFocus)
	}
	if r.MaxTotalKeywords <= 0 {
		r.MaxTotalKeywords = DefaultGlobalCap
	}
	if r.RunTimeout <= 0 {
		r.RunTimeout = DefaultRunTimeout
	}
	for stage, w := range r.Weights {
		if !stage.Valid() {
			return fmt.Errorf("%w: weights for unknown stage %q", ErrInvalidRequest, stage)
		}
		if _, err := scoring.NewStageWeights(w.Volume, w.Intent, w.Relevance, w.Trend, w.Ease); err != nil {
			return fmt.Errorf("%w: stage %s: %v", ErrInvalidRequest, stage, err)
		}
	}
	return nil
}

// WeightsFor returns the caller-supplied weights for a stage, or defaults.
func (r *ExpansionRequest) WeightsFor(stage scoring.Stage) scoring.StageWeights {
	if w, ok := r.Weights[stage]; ok {
		return w
	}
	return scoring.DefaultWeights(stage)
}

// ProcessingStats aggregates pipeline mechanics for one run.
type ProcessingStats struct {
	StageTimings      map[string]time.Duration `json:"stage_timings"`
	APICallCount      int                      `json:"api_call_count"`
	LLMCallCount      int                      `json:"llm_call_count"`
	BatchCount        int                      `json:"batch_count"`
	BatchFailures     int                      `json:"batch_failures"`
	KeywordsGenerated int                      `json:"keywords_generated"`
	KeywordsPerSecond float64                  `json:"keywords_per_second"`
}

// CostBreakdown is owned by the orchestrator's cost tracker.
type CostBreakdown struct {
	ByProvider        map[string]float64 `json:"by_provider"`
	TotalCost         float64            `json:"total_cost"`
	BudgetLimit       float64            `json:"budget_limit"`
	BudgetUtilization float64            `json:"budget_utilization"`
	CostPerKeyword    float64            `json:"cost_per_keyword"`
}

// QualityMetrics describes the shape of the surviving universe.
type QualityMetrics struct {
	IntentCounts        map[scoring.Intent]int `json:"intent_counts"`
	DifficultyHistogram map[string]int         `json:"difficulty_histogram"`
	VolumeHistogram     map[string]int         `json:"volume_histogram"`
	QuickWinCount       int                    `json:"quick_win_count"`
	DuplicatesRemoved   int                    `json:"duplicates_removed"`
	InvalidFiltered     int                    `json:"invalid_filtered"`
}

// NextStageData is the curated subset handed to downstream consumers.
type NextStageData struct {
	SeedCandidates    []string `json:"seed_candidates"`
	CompetitorDomains []string `json:"competitor_domains"`
}

// ExpansionResult is the run's immutable output.
type ExpansionResult struct {
	RunID         string             `json:"run_id"`
	Request       ExpansionRequest   `json:"request"`
	Dream100      []KeywordCandidate `json:"dream100_keywords"`
	Tier2         []KeywordCandidate `json:"tier2_keywords"`
	Tier3         []KeywordCandidate `json:"tier3_keywords"`
	TotalKeywords int                `json:"total_keywords"`
	Stats         ProcessingStats    `json:"processing_stats"`
	Costs         CostBreakdown      `json:"cost_breakdown"`
	Quality       QualityMetrics     `json:"quality_metrics"`
	Warnings      []string           `json:"warnings,omitempty"`
	Success       bool               `json:"success"`
	ErrorCode     string             `json:"error_code,omitempty"`
	NextStage     NextStageData      `json:"next_stage_data"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// KeywordsByStage returns the capped list for a stage.
func (r *ExpansionResult) KeywordsByStage(stage scoring.Stage) []KeywordCandidate {
	switch stage {
	case scoring.StageTier2:
		return r.Tier2
	case scoring.StageTier3:
		return r.Tier3
	default:
		return r.Dream100
	}
}

// Fatal error taxonomy. Degraded conditions never surface as errors; they
// accumulate in ExpansionResult.Warnings.
var (
	ErrInvalidRequest         = errors.New("invalid expansion request")
	ErrInsufficientCandidates = errors.New("insufficient candidates generated")
	ErrEnrichmentFailed       = errors.New("enrichment produced no usable data")
)

// StageError identifies the pipeline stage a fatal error escaped from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageNameFromError extracts the failing stage, or "pipeline" when the
// error did not come from a stage.
func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

// ErrorCode maps a fatal error to the stable code reported to callers.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInsufficientCandidates):
		return "insufficient_candidates"
	case errors.Is(err, ErrEnrichmentFailed):
		return "enrichment_failed"
	default:
		return "pipeline_error"
	}
}

func difficultyBucket(d float64) string {
	switch {
	case d <= 30:
		return string(DifficultyEasy)
	case d <= 70:
		return string(DifficultyMedium)
	default:
		return string(DifficultyHard)
	}
}

func volumeBucket(v int) string {
	switch {
	case v <= 10:
		return "0-10"
	case v <= 100:
		return "11-100"
	case v <= 1000:
		return "101-1000"
	case v <= 10000:
		return "1001-10000"
	default:
		return "10000+"
	}
}
