package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/contentforge/kwuniverse/internal/competitor"
	"github.com/contentforge/kwuniverse/internal/expansion"
	"github.com/contentforge/kwuniverse/internal/llm"
	"github.com/contentforge/kwuniverse/internal/metrics"
	"github.com/contentforge/kwuniverse/internal/runstore"
	"github.com/contentforge/kwuniverse/internal/scoring"
	"github.com/contentforge/kwuniverse/internal/telemetry"
)

func main() {
	seeds := flag.String("seeds", "", "Comma-separated seed keywords (1-5)")
	market := flag.String("market", "us", "Target market code")
	industry := flag.String("industry", "", "Industry context for generation")
	target := flag.Int("target", 100, "Dream 100 target size")
	tier2 := flag.Int("tier2", 10, "Max tier-2 keywords per parent")
	tier3 := flag.Int("tier3", 10, "Max tier-3 keywords per parent")
	budget := flag.Float64("budget", 25, "API budget in dollars")
	timeout := flag.Duration("timeout", expansion.DefaultRunTimeout, "Wall-clock budget for the run")
	threshold := flag.Float64("quality-threshold", expansion.DefaultQualityThreshold, "Minimum blended score")
	difficulty := flag.String("difficulty", "", "Difficulty preference: easy, medium, hard")
	intentFocus := flag.String("intent-focus", "", "Restrict to one intent (empty = mixed)")
	balancing := flag.Bool("intent-balancing", true, "Balance intent mix when capping")
	noSemantic := flag.Bool("no-semantic", false, "Disable LLM semantic expansion")
	serp := flag.Bool("serp", true, "Enable SERP-overlap expansion")
	competitors := flag.Bool("competitors", true, "Enable competitor mining")
	competitorDomains := flag.String("competitor-domains", "", "Comma-separated competitor domains")
	dbPath := flag.String("db", "", "SQLite path for run persistence (empty = none)")
	outPath := flag.String("out", "", "Write result JSON to file (empty = stdout)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "keyword-expand")
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer shutdownTracing(context.Background())

	caller, err := llm.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	exec := llm.NewJSONExecutor(caller)

	provider, err := metrics.NewHTTPProvider(metrics.Config{
		APIKey:             requiredEnv("METRICS_API_KEY"),
		BaseURL:            requiredEnv("METRICS_BASE_URL"),
		BatchSize:          envInt("METRICS_BATCH_SIZE", metrics.DefaultBatchSize),
		RateLimitPerMinute: envInt("METRICS_RATE_LIMIT", metrics.DefaultRateLimitPerMinute),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer provider.Close()
	batcher := metrics.NewBatcher(provider, envInt("KWUNIVERSE_ENRICH_WORKERS", 2), time.Second)

	miner := competitor.NewMiner(&http.Client{Timeout: 20 * time.Second})
	gen := expansion.NewGenerator(llm.NewExpander(exec), miner)
	pipeline := expansion.NewPipeline(gen, batcher, llm.NewLLMClassifier(exec), llm.NewHeuristicClassifier(), expansion.PipelineConfig{
		ScoringWorkers:      envInt("KWUNIVERSE_SCORING_WORKERS", 4),
		MetricsBatchSize:    provider.BatchSize(),
		MetricsCostPerBatch: provider.CostPerCall(),
	})

	req := expansion.ExpansionRequest{
		RunID:             uuid.NewString(),
		SeedKeywords:      splitList(*seeds),
		Market:            *market,
		Industry:          *industry,
		IntentFocus:       scoring.Intent(*intentFocus),
		TargetDream100:    *target,
		MaxPerParentTier2: *tier2,
		MaxPerParentTier3: *tier3,
		BudgetLimit:       *budget,
		QualityThreshold:  *threshold,
		DifficultyPref:    expansion.DifficultyPreference(*difficulty),
		IntentBalancing:   *balancing,
		EnableSemantic:    !*noSemantic,
		EnableSERPOverlap: *serp,
		EnableCompetitors: *competitors,
		CompetitorDomains: splitList(*competitorDomains),
		RunTimeout:        *timeout,
	}

	var store *runstore.Store
	sink := logSink
	if *dbPath != "" {
		store, err = runstore.Open(*dbPath)
		if err != nil {
			log.Fatalf("runstore: %v", err)
		}
		defer store.Close()
		storeSink := store.ProgressSink()
		sink = func(evt expansion.ProgressEvent) {
			logSink(evt)
			storeSink(evt)
		}
	}

	res, err := pipeline.Run(ctx, req, sink)
	if store != nil {
		if saveErr := store.SaveResult(&res); saveErr != nil {
			log.Printf("kwuniverse save_failed run=%s err=%v", res.RunID, saveErr)
		}
	}
	if err != nil {
		log.Fatalf("expansion failed at %s: %v", expansion.StageNameFromError(err), err)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}

func logSink(evt expansion.ProgressEvent) {
	log.Printf("kwuniverse progress run=%s stage=%s step=%q pct=%.0f processed=%d cost=%.4f",
		evt.RunID, evt.Stage, evt.CurrentStep, evt.ProgressPercent, evt.KeywordsProcessed, evt.CurrentCost)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requiredEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required env var %s", key)
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}
