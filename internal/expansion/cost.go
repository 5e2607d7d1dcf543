package expansion

import "sync"

// costTracker is the single budget authority for one run, shared by every
// concurrent batch worker. All updates go through the mutex so readings
// are always consistent with the per-provider breakdown.
type costTracker struct {
	mu     sync.Mutex
	budget float64
	spent  map[string]float64
}

func newCostTracker(budget float64) *costTracker {
	return &costTracker{budget: budget, spent: map[string]float64{}}
}

func (t *costTracker) Add(provider string, amount float64) {
	if amount <= 0 {
		return
	}
	t.mu.Lock()
	t.spent[provider] += amount
	t.mu.Unlock()
}

func (t *costTracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0.0
	for _, v := range t.spent {
		total += v
	}
	return total
}

// CanAfford reports whether another spend of amount stays within budget.
func (t *costTracker) CanAfford(amount float64) bool {
	return t.Total()+amount <= t.budget
}

// remainingFor returns how many whole spends of unitCost the remaining
// budget covers.
func (t *costTracker) remainingFor(unitCost float64) float64 {
	if unitCost <= 0 {
		return 0
	}
	left := t.budget - t.Total()
	if left <= 0 {
		return 0
	}
	units := left / unitCost
	return float64(int(units))
}

func (t *costTracker) Breakdown(totalKeywords int) CostBreakdown {
	t.mu.Lock()
	by := make(map[string]float64, len(t.spent))
	for k, v := range t.spent {
		by[k] = v
	}
	t.mu.Unlock()

	total := 0.0
	for _, v := range by {
		total += v
	}
	cb := CostBreakdown{
		ByProvider:  by,
		TotalCost:   total,
		BudgetLimit: t.budget,
	}
	if t.budget > 0 {
		cb.BudgetUtilization = total / t.budget
	}
	if totalKeywords > 0 {
		cb.CostPerKeyword = total / float64(totalKeywords)
	}
	return cb
}
