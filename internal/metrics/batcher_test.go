package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type fakeProvider struct {
	mu        sync.Mutex
	batchSize int
	failOn    map[int]bool // keyed by call order, 1-based
	calls     int
	perCall   float64
}

func (f *fakeProvider) BatchSize() int { return f.batchSize }

func (f *fakeProvider) CostPerCall() float64 {
	if f.perCall > 0 {
		return f.perCall
	}
	return 0.02
}

func (f *fakeProvider) GetMetrics(_ context.Context, kws []string, _ string) ([]KeywordMetrics, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.failOn[call] {
		return nil, errors.New("boom")
	}
	out := make([]KeywordMetrics, 0, len(kws))
	for _, k := range kws {
		out = append(out, KeywordMetrics{Keyword: k, Volume: 100, Difficulty: 25})
	}
	return out, nil
}

func kwFixture(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("keyword %03d", i)
	}
	return out
}

func TestEnrichMergesAllBatches(t *testing.T) {
	b := NewBatcher(&fakeProvider{batchSize: 10}, 2, 0)
	var progress []BatchProgress
	var mu sync.Mutex
	merged, stats, err := b.Enrich(context.Background(), kwFixture(25), "us", func(p BatchProgress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 25 {
		t.Fatalf("merged %d", len(merged))
	}
	if stats.Batches != 3 || stats.APICalls != 3 || stats.BatchesFailed != 0 {
		t.Fatalf("stats %+v", stats)
	}
	if len(progress) != 3 {
		t.Fatalf("progress events %d", len(progress))
	}
}

func TestEnrichPartialFailureIsWarning(t *testing.T) {
	// Sequential worker so call order maps to batch order.
	b := NewBatcher(&fakeProvider{batchSize: 10, failOn: map[int]bool{2: true}}, 1, 0)
	merged, stats, err := b.Enrich(context.Background(), kwFixture(20), "us", nil)
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(merged) != 10 {
		t.Fatalf("merged %d, want only batch-1 keywords", len(merged))
	}
	if stats.BatchesFailed != 1 || len(stats.FailedWarnings) != 1 {
		t.Fatalf("stats %+v", stats)
	}
	if !strings.Contains(stats.FailedWarnings[0], "batch 2/2 failed") {
		t.Fatalf("warning %q", stats.FailedWarnings[0])
	}
}

func TestEnrichAllBatchesFailedIsFatal(t *testing.T) {
	b := NewBatcher(&fakeProvider{batchSize: 10, failOn: map[int]bool{1: true, 2: true}}, 1, 0)
	_, _, err := b.Enrich(context.Background(), kwFixture(20), "us", nil)
	if !errors.Is(err, ErrAllBatchesFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnrichCancellationBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{batchSize: 5}
	b := NewBatcher(p, 1, 0)
	fired := false
	_, stats, err := b.Enrich(ctx, kwFixture(50), "us", func(BatchProgress) {
		if !fired {
			fired = true
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if stats.APICalls >= 10 {
		t.Fatalf("cancellation ignored, %d calls issued", stats.APICalls)
	}
}

func TestEnrichCostAccumulates(t *testing.T) {
	b := NewBatcher(&fakeProvider{batchSize: 10, perCall: 0.05}, 2, 0)
	_, stats, err := b.Enrich(context.Background(), kwFixture(30), "us", nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cost < 0.149 || stats.Cost > 0.151 {
		t.Fatalf("cost %v", stats.Cost)
	}
}

func TestEnrichEmptyInput(t *testing.T) {
	b := NewBatcher(&fakeProvider{batchSize: 10}, 2, 0)
	merged, stats, err := b.Enrich(context.Background(), nil, "us", nil)
	if err != nil || len(merged) != 0 || stats.Batches != 0 {
		t.Fatalf("merged=%v stats=%+v err=%v", merged, stats, err)
	}
}
