package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// BatchProgress is emitted after every batch settles, success or failure.
type BatchProgress struct {
	BatchIndex   int
	BatchCount   int
	Enriched     int
	Failed       bool
	Cost         float64
	ElapsedTotal time.Duration
}

// BatchStats summarizes one enrichment pass.
type BatchStats struct {
	Batches        int
	BatchesFailed  int
	APICalls       int
	KeywordsSent   int
	KeywordsHit    int
	Cost           float64
	FailedWarnings []string
}

// ErrAllBatchesFailed means no usable metrics exist for the stage; the
// pipeline treats this as fatal.
var ErrAllBatchesFailed = errors.New("all enrichment batches failed")

// Batcher splits keywords into provider-sized batches and runs them with
// bounded concurrency behind the provider's shared rate limiter. A failed
// batch drops its keywords and records a warning; only total failure is an
// error.
type Batcher struct {
	provider   Provider
	workers    int
	batchDelay time.Duration
}

func NewBatcher(provider Provider, workers int, batchDelay time.Duration) *Batcher {
	if workers <= 0 {
		workers = 2
	}
	if batchDelay < 0 {
		batchDelay = 0
	}
	return &Batcher{provider: provider, workers: workers, batchDelay: batchDelay}
}

// Enrich looks up metrics for kws and returns them keyed by exact keyword.
// onBatch may be nil. Results are independent of worker scheduling: the
// returned map is keyed, and stats are aggregated after all batches settle
// in batch-index order.
func (b *Batcher) Enrich(ctx context.Context, kws []string, market string, onBatch func(BatchProgress)) (map[string]KeywordMetrics, BatchStats, error) {
	stats := BatchStats{KeywordsSent: len(kws)}
	if len(kws) == 0 {
		return map[string]KeywordMetrics{}, stats, nil
	}

	size := b.provider.BatchSize()
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := chunk(kws, size)
	stats.Batches = len(batches)

	type batchOutcome struct {
		index   int
		done    bool
		metrics []KeywordMetrics
		err     error
	}

	start := time.Now()
	jobs := make(chan int)
	outcomes := make([]batchOutcome, len(batches))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		cancelled bool
	)

	workers := b.workers
	if workers > len(batches) {
		workers = len(batches)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				ms, err := b.provider.GetMetrics(ctx, batches[idx], market)
				if err == nil && b.batchDelay > 0 {
					_ = sleepCtx(ctx, b.batchDelay)
				}
				mu.Lock()
				outcomes[idx] = batchOutcome{index: idx, done: true, metrics: ms, err: err}
				mu.Unlock()
				if onBatch != nil {
					onBatch(BatchProgress{
						BatchIndex:   idx,
						BatchCount:   len(batches),
						Enriched:     len(ms),
						Failed:       err != nil,
						Cost:         b.provider.CostPerCall(),
						ElapsedTotal: time.Since(start),
					})
				}
			}
		}()
	}

dispatch:
	for idx := range batches {
		// Cancellation is checked before each batch is issued; in-flight
		// batches finish and their results are discarded by the caller.
		if ctx.Err() != nil {
			cancelled = true
			break dispatch
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	merged := map[string]KeywordMetrics{}
	for _, out := range outcomes {
		if !out.done {
			continue // never dispatched before cancellation
		}
		stats.APICalls++
		if out.err != nil {
			stats.BatchesFailed++
			warn := fmt.Sprintf("enrichment batch %d/%d failed: %v", out.index+1, len(batches), out.err)
			stats.FailedWarnings = append(stats.FailedWarnings, warn)
			log.Printf("kwuniverse enrich_batch_failed batch=%d err=%v", out.index+1, out.err)
			continue
		}
		stats.Cost += b.provider.CostPerCall()
		for _, m := range out.metrics {
			merged[m.Keyword] = m
		}
	}
	stats.KeywordsHit = len(merged)
	sort.Strings(stats.FailedWarnings)

	if cancelled {
		return merged, stats, ctx.Err()
	}
	if stats.APICalls > 0 && stats.BatchesFailed == stats.APICalls {
		return nil, stats, ErrAllBatchesFailed
	}
	return merged, stats, nil
}

func chunk(kws []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(kws); start += size {
		end := start + size
		if end > len(kws) {
			end = len(kws)
		}
		out = append(out, kws[start:end])
	}
	return out
}
