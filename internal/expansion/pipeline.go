package expansion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/contentforge/kwuniverse/internal/llm"
	"github.com/contentforge/kwuniverse/internal/metrics"
	"github.com/contentforge/kwuniverse/internal/scoring"
)

// Enricher abstracts the metrics batcher for the orchestrator.
type Enricher interface {
	Enrich(ctx context.Context, kws []string, market string, onBatch func(metrics.BatchProgress)) (map[string]metrics.KeywordMetrics, metrics.BatchStats, error)
}

const (
	providerMetrics = "metrics"
	providerLLM     = "llm"

	phaseGeneration     = "generation"
	phaseEnrichment     = "enrichment"
	phaseClassification = "intent_classification"
	phaseScoring        = "scoring"
	phaseQualityControl = "quality_control"
	phaseCapping        = "capping"
)

var tierPhases = []string{
	phaseGeneration, phaseEnrichment, phaseClassification,
	phaseScoring, phaseQualityControl, phaseCapping,
}

// PipelineConfig tunes orchestration mechanics, not semantics.
type PipelineConfig struct {
	ScoringWorkers      int     // concurrent scoring goroutines, default 4
	ProgressBuffer      int     // progress broker channel depth, default 64
	LLMCostPerCall      float64 // accounted cost per LLM call, default 0.01
	MetricsBatchSize    int     // used for budget math, default metrics.DefaultBatchSize
	MetricsCostPerBatch float64 // default 0.02
}

func (c *PipelineConfig) applyDefaults() {
	if c.ScoringWorkers <= 0 {
		c.ScoringWorkers = 4
	}
	if c.ProgressBuffer <= 0 {
		c.ProgressBuffer = 64
	}
	if c.LLMCostPerCall <= 0 {
		c.LLMCostPerCall = 0.01
	}
	if c.MetricsBatchSize <= 0 {
		c.MetricsBatchSize = metrics.DefaultBatchSize
	}
	if c.MetricsCostPerBatch <= 0 {
		c.MetricsCostPerBatch = 0.02
	}
}

// Pipeline owns one run at a time: it sequences the stages, accumulates
// cost, and is the only component that invokes the progress sink.
type Pipeline struct {
	gen        *Generator
	enricher   Enricher
	classifier llm.IntentClassifier
	fallback   llm.IntentClassifier
	cfg        PipelineConfig
	tracer     trace.Tracer
}

func NewPipeline(gen *Generator, enricher Enricher, classifier, fallback llm.IntentClassifier, cfg PipelineConfig) *Pipeline {
	cfg.applyDefaults()
	if fallback == nil {
		fallback = llm.NewHeuristicClassifier()
	}
	return &Pipeline{
		gen:        gen,
		enricher:   enricher,
		classifier: classifier,
		fallback:   fallback,
		cfg:        cfg,
		tracer:     otel.Tracer("kwuniverse/expansion"),
	}
}

type runState struct {
	req       *ExpansionRequest
	tracker   *costTracker
	broker    *progressBroker
	start     time.Time
	deadline  time.Time
	warnings  []string
	stats     ProcessingStats
	quality   QualityMetrics
	seen      map[string]struct{}
	// processed is read and written from enrichment worker goroutines
	// through the onBatch callback, so it stays atomic.
	processed atomic.Int64
	stepsDone int
	stepsAll  int
	domains   []string
	timedOut  bool
}

func (st *runState) warn(format string, args ...any) {
	w := fmt.Sprintf(format, args...)
	st.warnings = append(st.warnings, w)
	log.Printf("kwuniverse run_warning run=%s msg=%q", st.req.RunID, w)
}

func (st *runState) remaining() time.Duration {
	return time.Until(st.deadline)
}

// Run executes the full three-tier expansion. Fatal errors return a
// non-nil error and a result with Success=false and a stable ErrorCode;
// degraded conditions surface only in the result's warnings.
func (p *Pipeline) Run(ctx context.Context, req ExpansionRequest, sink ProgressSink) (ExpansionResult, error) {
	res := ExpansionResult{StartedAt: time.Now(), Success: false}
	if err := req.Validate(); err != nil {
		wrapped := &StageError{Stage: "initialization", Err: err}
		res.Request = req
		res.CompletedAt = time.Now()
		res.ErrorCode = ErrorCode(err)
		return res, wrapped
	}
	if strings.TrimSpace(req.RunID) == "" {
		req.RunID = uuid.NewString()
	}
	res.RunID = req.RunID
	res.Request = req

	st := &runState{
		req:      &req,
		tracker:  newCostTracker(req.BudgetLimit),
		broker:   newProgressBroker(sink, p.cfg.ProgressBuffer),
		start:    time.Now(),
		deadline: time.Now().Add(req.RunTimeout),
		stats: ProcessingStats{
			StageTimings: map[string]time.Duration{},
		},
		quality: QualityMetrics{
			IntentCounts:        map[scoring.Intent]int{},
			DifficultyHistogram: map[string]int{},
			VolumeHistogram:     map[string]int{},
		},
		seen:     map[string]struct{}{},
		stepsAll: len(tierPhases)*3 + 2,
		domains:  append([]string(nil), req.CompetitorDomains...),
	}
	defer st.broker.Close()

	runCtx, cancel := context.WithDeadline(ctx, st.deadline)
	defer cancel()

	log.Printf("kwuniverse run_start run=%s seeds=%d target=%d budget=%.2f", req.RunID, len(req.SeedKeywords), req.TargetDream100, req.BudgetLimit)

	parents := p.initializeSeeds(runCtx, st)
	st.stepsDone++
	p.emitProgress(st, "initialization", "seed context ready")

	plans := []struct {
		stage  scoring.Stage
		target func(parentCount int) int
	}{
		{scoring.StageDream100, func(int) int { return req.TargetDream100 }},
		{scoring.StageTier2, func(n int) int { return req.MaxPerParentTier2 * n }},
		{scoring.StageTier3, func(n int) int { return req.MaxPerParentTier3 * n }},
	}

	total := 0
	for _, plan := range plans {
		target := plan.target(len(parents))
		if remaining := req.MaxTotalKeywords - total; target > remaining {
			target = remaining
			if target > 0 {
				st.warn("global cap %d limits %s target", req.MaxTotalKeywords, plan.stage)
			}
		}
		if target <= 0 || len(parents) == 0 {
			st.stepsDone += len(tierPhases)
			if plan.stage != scoring.StageDream100 && len(parents) == 0 {
				st.warn("skipping %s: no surviving parents", plan.stage)
			}
			continue
		}
		if err := runCtx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				st.warn("run timeout reached before %s, returning partial results", plan.stage)
				st.timedOut = true
			} else {
				res = p.assemble(res, st, total)
				res.ErrorCode = ErrorCode(err)
				return res, &StageError{Stage: string(plan.stage), Err: err}
			}
		}
		if st.timedOut || !p.timeFor(st, plan.stage) {
			st.stepsDone += len(tierPhases)
			continue
		}

		capped, err := p.runTier(runCtx, st, plan.stage, parents, target)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				st.warn("run timeout reached during %s, returning partial results", plan.stage)
				st.timedOut = true
				continue
			}
			res = p.assemble(res, st, total)
			res.Success = false
			res.ErrorCode = ErrorCode(err)
			return res, err
		}
		res = p.attachTier(res, plan.stage, capped)
		total += len(capped)
		for _, c := range capped {
			st.seen[c.Keyword] = struct{}{}
		}
		parents = parentSeedsFrom(capped)
	}

	res = p.assemble(res, st, total)
	res.Success = true
	st.stepsDone = st.stepsAll
	p.emitProgress(st, "result_preparation", "done")
	log.Printf("kwuniverse run_done run=%s total=%d cost=%.4f warnings=%d", req.RunID, total, st.tracker.Total(), len(st.warnings))
	return res, nil
}

// initializeSeeds enriches the request seeds so SERP-overlap generation and
// competitor mining have context. Failures here degrade those strategies
// but never fail the run.
func (p *Pipeline) initializeSeeds(ctx context.Context, st *runState) []parentSeed {
	req := st.req
	parents := make([]parentSeed, 0, len(req.SeedKeywords))
	for _, s := range req.SeedKeywords {
		parents = append(parents, parentSeed{Keyword: s})
	}
	if !req.EnableSERPOverlap && !req.EnableCompetitors {
		return parents
	}
	if p.enricher == nil {
		return parents
	}
	if !st.tracker.CanAfford(p.cfg.MetricsCostPerBatch) {
		st.warn("budget too small for seed enrichment, SERP and competitor context unavailable")
		return parents
	}

	merged, stats, err := p.enricher.Enrich(ctx, req.SeedKeywords, req.Market, func(bp metrics.BatchProgress) {
		if !bp.Failed {
			st.tracker.Add(providerMetrics, bp.Cost)
		}
	})
	st.stats.APICallCount += stats.APICalls
	if err != nil {
		st.warn("seed enrichment failed: %v", err)
		return parents
	}
	domainSet := map[string]struct{}{}
	for _, d := range st.domains {
		domainSet[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	for i := range parents {
		m, ok := merged[parents[i].Keyword]
		if !ok {
			continue
		}
		parents[i].SERPKeywords = m.SERPKeywords
		for _, d := range m.CompetitorDomains {
			domainSet[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
	}
	delete(domainSet, "")
	st.domains = st.domains[:0]
	for d := range domainSet {
		st.domains = append(st.domains, d)
	}
	sort.Strings(st.domains)
	st.req.CompetitorDomains = st.domains
	return parents
}

// runTier executes the six phases for one stage and returns its capped
// survivors.
func (p *Pipeline) runTier(ctx context.Context, st *runState, stage scoring.Stage, parents []parentSeed, target int) ([]KeywordCandidate, error) {
	raw, err := p.runGeneration(ctx, st, stage, parents, target)
	if err != nil {
		return nil, err
	}

	cands, err := p.runEnrichment(ctx, st, stage, raw)
	if err != nil {
		return nil, err
	}

	p.runClassification(ctx, st, stage, cands)
	p.runScoring(ctx, st, stage, cands)

	filtered := p.runQualityControl(ctx, st, stage, cands)
	capped := p.runCapping(ctx, st, stage, filtered, target)
	return capped, nil
}

func (p *Pipeline) runGeneration(ctx context.Context, st *runState, stage scoring.Stage, parents []parentSeed, target int) ([]rawCandidate, error) {
	defer p.phase(ctx, st, stage, phaseGeneration)()

	maxCandidates := Tier1MaxRawCandidates
	if stage != scoring.StageDream100 {
		maxCandidates = target * tierFanoutFactor
	}
	req := *st.req
	if !st.tracker.CanAfford(p.cfg.LLMCostPerCall) && req.EnableSemantic {
		st.warn("budget exhausted before %s semantic expansion, generating from templates only", stage)
		req.EnableSemantic = false
	}
	out, err := p.gen.generate(ctx, &req, stage, parents, maxCandidates)
	if err != nil {
		return nil, &StageError{Stage: stageKey(stage, phaseGeneration), Err: err}
	}
	st.warnings = append(st.warnings, out.Warnings...)
	st.stats.LLMCallCount += out.LLMCalls
	st.tracker.Add(providerLLM, float64(out.LLMCalls)*p.cfg.LLMCostPerCall)
	st.stats.KeywordsGenerated += len(out.Candidates)

	if stage == scoring.StageDream100 && len(out.Candidates) < minTier1Candidates(st.req.TargetDream100) {
		err := fmt.Errorf("%w: got %d, need %d", ErrInsufficientCandidates, len(out.Candidates), minTier1Candidates(st.req.TargetDream100))
		return nil, &StageError{Stage: stageKey(stage, phaseGeneration), Err: err}
	}
	if stage != scoring.StageDream100 && len(out.Candidates) == 0 {
		st.warn("%s generation produced no candidates", stage)
	}

	st.processed.Add(int64(len(out.Candidates)))
	p.emitProgress(st, stageKey(stage, phaseGeneration), fmt.Sprintf("%d candidates generated", len(out.Candidates)))
	return out.Candidates, nil
}

func (p *Pipeline) runEnrichment(ctx context.Context, st *runState, stage scoring.Stage, raw []rawCandidate) ([]KeywordCandidate, error) {
	defer p.phase(ctx, st, stage, phaseEnrichment)()

	if len(raw) == 0 {
		return nil, nil
	}

	kws := make([]string, 0, len(raw))
	for _, c := range raw {
		kws = append(kws, c.Keyword)
	}

	// Budget-aware truncation: enrich as many whole batches as the budget
	// allows; the remainder falls back to estimated metrics.
	affordableBatches := int(st.tracker.remainingFor(p.cfg.MetricsCostPerBatch))
	totalBatches := (len(kws) + p.cfg.MetricsBatchSize - 1) / p.cfg.MetricsBatchSize
	estimatedFrom := len(kws)
	if affordableBatches < totalBatches {
		estimatedFrom = affordableBatches * p.cfg.MetricsBatchSize
		st.warn("budget limits %s enrichment to %d of %d batches, remaining candidates use estimated metrics", stage, affordableBatches, totalBatches)
	}

	merged := map[string]metrics.KeywordMetrics{}
	if estimatedFrom > 0 && p.enricher != nil {
		var stats metrics.BatchStats
		var err error
		merged, stats, err = p.enricher.Enrich(ctx, kws[:estimatedFrom], st.req.Market, func(bp metrics.BatchProgress) {
			if !bp.Failed {
				st.tracker.Add(providerMetrics, bp.Cost)
			}
			st.processed.Add(int64(bp.Enriched))
			p.emitProgress(st, stageKey(stage, phaseEnrichment), fmt.Sprintf("batch %d/%d", bp.BatchIndex+1, bp.BatchCount))
		})
		st.stats.APICallCount += stats.APICalls
		st.stats.BatchCount += stats.Batches
		st.stats.BatchFailures += stats.BatchesFailed
		st.warnings = append(st.warnings, stats.FailedWarnings...)
		if err != nil {
			if errors.Is(err, metrics.ErrAllBatchesFailed) {
				return nil, &StageError{Stage: stageKey(stage, phaseEnrichment), Err: fmt.Errorf("%w: %v", ErrEnrichmentFailed, err)}
			}
			return nil, &StageError{Stage: stageKey(stage, phaseEnrichment), Err: err}
		}
	}

	out := make([]KeywordCandidate, 0, len(raw))
	for i, c := range raw {
		kc := KeywordCandidate{
			Keyword:         c.Keyword,
			Stage:           stage,
			ParentKeyword:   c.Parent,
			RelevanceScore:  c.Relevance,
			ExpansionSource: c.Source,
		}
		if stage == scoring.StageDream100 {
			kc.ParentKeyword = "" // the first tier is owned by the run, not a parent
		}
		if m, ok := merged[c.Keyword]; ok {
			kc.Volume = m.Volume
			kc.Difficulty = m.Difficulty
			kc.CPC = m.CPC
			kc.Trend = m.Trend
			kc.SERPKeywords = m.SERPKeywords
			kc.Enriched = true
		} else if i >= estimatedFrom {
			est := estimateMetrics(c.Keyword)
			kc.Volume = est.Volume
			kc.Difficulty = est.Difficulty
			kc.CPC = est.CPC
			kc.EstimatedMetrics = true
		} else {
			// Candidate's batch failed: dropped, not retried inline.
			continue
		}
		out = append(out, kc)
	}
	return out, nil
}

// runClassification assigns intent labels. A failing LLM batch flips the
// rest of the stage onto the heuristic classifier with a warning; the run
// continues either way.
func (p *Pipeline) runClassification(ctx context.Context, st *runState, stage scoring.Stage, cands []KeywordCandidate) {
	defer p.phase(ctx, st, stage, phaseClassification)()

	if len(cands) == 0 {
		return
	}
	classifier := p.classifier
	if classifier == nil {
		classifier = p.fallback
	}

	byKeyword := map[string]*KeywordCandidate{}
	kws := make([]string, 0, len(cands))
	for i := range cands {
		byKeyword[cands[i].Keyword] = &cands[i]
		kws = append(kws, cands[i].Keyword)
	}

	degraded := classifier.Name() != "llm"
	for start := 0; start < len(kws); start += classificationBatchLimit {
		end := start + classificationBatchLimit
		if end > len(kws) {
			end = len(kws)
		}
		batch := kws[start:end]

		if !degraded && !st.tracker.CanAfford(p.cfg.LLMCostPerCall) {
			st.warn("budget exhausted before %s intent classification, using heuristic classifier", stage)
			classifier = p.fallback
			degraded = true
		}
		labels, err := classifier.ClassifyIntents(ctx, batch, st.req.Industry)
		if !degraded {
			st.stats.LLMCallCount++
			st.tracker.Add(providerLLM, p.cfg.LLMCostPerCall)
		}
		if err != nil {
			st.warn("intent classification failed for %s (%v), falling back to heuristic patterns", stage, err)
			classifier = p.fallback
			degraded = true
			labels, _ = classifier.ClassifyIntents(ctx, batch, st.req.Industry)
		}
		for _, l := range labels {
			if c, ok := byKeyword[l.Keyword]; ok {
				c.Intent = l.Intent
				c.IntentConfidence = l.Confidence
			}
		}
		p.emitProgress(st, stageKey(stage, phaseClassification), fmt.Sprintf("%d/%d classified", end, len(kws)))
	}
}

// runScoring scores all candidates concurrently. Workers write by index so
// output order never depends on scheduling.
func (p *Pipeline) runScoring(ctx context.Context, st *runState, stage scoring.Stage, cands []KeywordCandidate) {
	defer p.phase(ctx, st, stage, phaseScoring)()

	if len(cands) == 0 {
		return
	}
	medians := clusterMedianVolumes(cands, stage)
	weights := st.req.WeightsFor(stage)

	workers := p.cfg.ScoringWorkers
	if workers > len(cands) {
		workers = len(cands)
	}
	jobs := make(chan int)
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				c := &cands[i]
				var median *float64
				if m, ok := medians[c.ParentKeyword]; ok {
					median = &m
				}
				r := scoring.Score(scoring.Input{
					Keyword:    c.Keyword,
					Stage:      stage,
					Volume:     c.Volume,
					Difficulty: c.Difficulty,
					Intent:     c.Intent,
					Relevance:  c.RelevanceScore,
					Trend:      c.Trend,
				}, weights, median)
				c.BlendedScore = r.BlendedScore
				c.QualityScore = preBoostScore(r)
				c.QuickWin = r.QuickWin
				c.ScoreTier = r.Tier
				c.Recommendations = r.Recommendations
				c.Confidence = (c.RelevanceScore + c.IntentConfidence) / 2
			}
			done <- struct{}{}
		}()
	}
	for i := range cands {
		jobs <- i
	}
	close(jobs)
	for w := 0; w < workers; w++ {
		<-done
	}

	sortByKeyword(cands)
	p.emitProgress(st, stageKey(stage, phaseScoring), fmt.Sprintf("%d candidates scored", len(cands)))
}

func (p *Pipeline) runQualityControl(ctx context.Context, st *runState, stage scoring.Stage, cands []KeywordCandidate) []KeywordCandidate {
	defer p.phase(ctx, st, stage, phaseQualityControl)()

	deduped, dupes := dedupWithinTier(cands)
	st.quality.DuplicatesRemoved += dupes
	crossed, crossDupes := dedupAcrossTiers(deduped, st.seen)
	st.quality.DuplicatesRemoved += crossDupes
	kept, filtered := applyFilters(crossed, filterConfigFor(st.req, stage))
	st.quality.InvalidFiltered += filtered

	p.emitProgress(st, stageKey(stage, phaseQualityControl), fmt.Sprintf("%d survived filters", len(kept)))
	return kept
}

func (p *Pipeline) runCapping(ctx context.Context, st *runState, stage scoring.Stage, cands []KeywordCandidate, target int) []KeywordCandidate {
	defer p.phase(ctx, st, stage, phaseCapping)()

	perParent := 0
	switch stage {
	case scoring.StageTier2:
		perParent = st.req.MaxPerParentTier2
	case scoring.StageTier3:
		perParent = st.req.MaxPerParentTier3
	}
	capped := capCandidates(cands, capConfig{
		Target:          target,
		IntentBalancing: st.req.IntentBalancing,
		QuickWinQuota:   QuickWinQuotaRatio,
		MaxPerParent:    perParent,
	})
	p.emitProgress(st, stageKey(stage, phaseCapping), fmt.Sprintf("%d selected", len(capped)))
	return capped
}

// phase opens a span and times one tier phase; the returned func closes both.
func (p *Pipeline) phase(ctx context.Context, st *runState, stage scoring.Stage, name string) func() {
	key := stageKey(stage, name)
	_, span := p.tracer.Start(ctx, "expansion."+key)
	begin := time.Now()
	return func() {
		st.stats.StageTimings[key] = time.Since(begin)
		st.stepsDone++
		span.End()
	}
}

// timeFor decides whether enough wall clock remains to start a tier. A
// conservative per-tier floor keeps the pipeline from starting work it
// cannot finish; stopping early returns partial results with a warning.
func (p *Pipeline) timeFor(st *runState, stage scoring.Stage) bool {
	const tierFloor = 15 * time.Second
	if st.remaining() > tierFloor {
		return true
	}
	st.warn("insufficient time remaining for %s, returning partial results", stage)
	st.timedOut = true
	return false
}

func (p *Pipeline) attachTier(res ExpansionResult, stage scoring.Stage, capped []KeywordCandidate) ExpansionResult {
	switch stage {
	case scoring.StageTier2:
		res.Tier2 = capped
	case scoring.StageTier3:
		res.Tier3 = capped
	default:
		res.Dream100 = capped
	}
	return res
}

func (p *Pipeline) assemble(res ExpansionResult, st *runState, total int) ExpansionResult {
	res.CompletedAt = time.Now()
	res.TotalKeywords = total
	res.Warnings = st.warnings
	res.Costs = st.tracker.Breakdown(total)
	res.Stats = st.stats
	if elapsed := res.CompletedAt.Sub(st.start).Seconds(); elapsed > 0 {
		res.Stats.KeywordsPerSecond = float64(st.stats.KeywordsGenerated) / elapsed
	}

	for _, tier := range [][]KeywordCandidate{res.Dream100, res.Tier2, res.Tier3} {
		for _, c := range tier {
			st.quality.IntentCounts[bucketIntent(c.Intent)]++
			st.quality.DifficultyHistogram[difficultyBucket(c.Difficulty)]++
			st.quality.VolumeHistogram[volumeBucket(c.Volume)]++
			if c.QuickWin {
				st.quality.QuickWinCount++
			}
		}
	}
	res.Quality = st.quality

	seedCount := len(res.Dream100)
	if seedCount > 10 {
		seedCount = 10
	}
	next := NextStageData{CompetitorDomains: st.domains}
	best := make([]KeywordCandidate, len(res.Dream100))
	copy(best, res.Dream100)
	sortByScore(best)
	for _, c := range best[:seedCount] {
		next.SeedCandidates = append(next.SeedCandidates, c.Keyword)
	}
	res.NextStage = next
	return res
}

func (p *Pipeline) emitProgress(st *runState, stage, step string) {
	percent := float64(st.stepsDone) / float64(st.stepsAll) * 100
	if percent > 100 {
		percent = 100
	}
	var eta time.Duration
	if percent > 0 && percent < 100 {
		elapsed := time.Since(st.start)
		eta = time.Duration(float64(elapsed) * (100 - percent) / percent)
	}
	st.broker.Emit(ProgressEvent{
		RunID:                  st.req.RunID,
		Stage:                  stage,
		CurrentStep:            step,
		ProgressPercent:        percent,
		KeywordsProcessed:      int(st.processed.Load()),
		EstimatedTimeRemaining: eta,
		CurrentCost:            st.tracker.Total(),
	})
}

func stageKey(stage scoring.Stage, phase string) string {
	return string(stage) + "/" + phase
}

func parentSeedsFrom(capped []KeywordCandidate) []parentSeed {
	out := make([]parentSeed, 0, len(capped))
	for _, c := range capped {
		out = append(out, parentSeed{Keyword: c.Keyword, SERPKeywords: c.SERPKeywords})
	}
	return out
}

// preBoostScore recovers the pre-boost blended score from a result: the
// raw weighted sum, clamped the same way Score clamps it.
func preBoostScore(r scoring.Result) float64 {
	sum := r.WeightedScores.Volume + r.WeightedScores.Intent + r.WeightedScores.Relevance +
		r.WeightedScores.Trend + r.WeightedScores.Ease
	if sum > 1 {
		return 1
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// clusterMedianVolumes computes per-parent sibling volume medians for the
// deep tiers; head terms have no cluster, so quick-win volume floors stand
// alone there.
func clusterMedianVolumes(cands []KeywordCandidate, stage scoring.Stage) map[string]float64 {
	if stage == scoring.StageDream100 {
		return nil
	}
	groups := map[string][]int{}
	for _, c := range cands {
		if c.ParentKeyword == "" {
			continue
		}
		groups[c.ParentKeyword] = append(groups[c.ParentKeyword], c.Volume)
	}
	out := make(map[string]float64, len(groups))
	for parent, vols := range groups {
		sort.Ints(vols)
		n := len(vols)
		if n%2 == 1 {
			out[parent] = float64(vols[n/2])
		} else {
			out[parent] = float64(vols[n/2-1]+vols[n/2]) / 2
		}
	}
	return out
}

// estimatedMetrics is the degraded stand-in when real enrichment is not
// available. Deterministic in the keyword alone.
type estimatedKeywordMetrics struct {
	Volume     int
	Difficulty float64
	CPC        float64
}

func estimateMetrics(kw string) estimatedKeywordMetrics {
	words := len(strings.Fields(kw))
	if words < 1 {
		words = 1
	}
	vol := 2000 / (words * words)
	if vol < 10 {
		vol = 10
	}
	diff := 30 + 8*float64(words)
	if diff > 85 {
		diff = 85
	}
	return estimatedKeywordMetrics{Volume: vol, Difficulty: diff, CPC: 0.5}
}
