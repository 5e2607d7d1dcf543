package expansion

import "time"

// ProgressEvent is one fire-and-forget progress report. Events are emitted
// after every batch within every stage, not just at stage boundaries.
type ProgressEvent struct {
	RunID                  string        `json:"run_id"`
	Stage                  string        `json:"stage"`
	CurrentStep            string        `json:"current_step"`
	ProgressPercent        float64       `json:"progress_percent"`
	KeywordsProcessed      int           `json:"keywords_processed"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	CurrentCost            float64       `json:"current_cost"`
}

// ProgressSink receives progress events. It runs on the broker's drain
// goroutine and may be as slow as it likes without stalling the pipeline.
type ProgressSink func(ProgressEvent)

// progressBroker decouples pipeline throughput from sink speed: emits are
// non-blocking (events are dropped when the buffer is full), and a single
// goroutine drains to the sink.
type progressBroker struct {
	ch   chan ProgressEvent
	done chan struct{}
}

func newProgressBroker(sink ProgressSink, buffer int) *progressBroker {
	if buffer <= 0 {
		buffer = 64
	}
	b := &progressBroker{ch: make(chan ProgressEvent, buffer), done: make(chan struct{})}
	go func() {
		defer close(b.done)
		for evt := range b.ch {
			if sink != nil {
				sink(evt)
			}
		}
	}()
	return b
}

// Emit never blocks. A full buffer means the sink is far behind; losing an
// intermediate progress event is preferable to stalling enrichment.
func (b *progressBroker) Emit(evt ProgressEvent) {
	select {
	case b.ch <- evt:
	default:
	}
}

// Close flushes buffered events and waits for the drainer to finish.
func (b *progressBroker) Close() {
	close(b.ch)
	<-b.done
}
