package delegate

import (
	"sync"

	"github.com/perch-systems/offload/pkg/config"
)

// Snapshot is a read-only view of accumulated execution statistics.
type Snapshot struct {
	TotalTasks    int                  `json:"total_tasks"`
	ByExecutor    map[ExecutorType]int `json:"by_executor"`
	Fallbacks     int                  `json:"fallbacks"`
	Failures      int                  `json:"failures"`
	LocalTokens   int                  `json:"local_tokens"`
	HostedTokens  int                  `json:"hosted_tokens"`
	HostedCostUSD float64              `json:"hosted_cost_usd"`
}

// statTracker accumulates per-channel counters and estimates hosted
// spend from the pricing table. Single critical section per update.
type statTracker struct {
	mu            sync.Mutex
	total         int
	byExecutor    map[ExecutorType]int
	fallbacks     int
	failures      int
	localTokens   int
	hostedTokens  int
	hostedCostUSD float64

	pricing config.PricingConfig
	model   string
}

func newStatTracker(pricing config.PricingConfig, hostedModel string) *statTracker {
	return &statTracker{
		byExecutor: make(map[ExecutorType]int),
		pricing:    pricing,
		model:      hostedModel,
	}
}

// record accounts one completed execution attempt. hostedTokens
// feeds the cost estimate; failed reports the failure counter.
func (t *statTracker) record(executor ExecutorType, localTokens, hostedTokens int, fellBack, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.byExecutor[executor]++
	t.localTokens += localTokens
	t.hostedTokens += hostedTokens
	if fellBack {
		t.fallbacks++
	}
	if failed {
		t.failures++
	}
	if entry, ok := t.pricing[t.model]; ok {
		// Completion/prompt split is not tracked per call; the
		// blended completion rate gives a conservative estimate.
		t.hostedCostUSD += (float64(hostedTokens) / 1000.0) * entry.CompletionPer1K
	}
}

func (t *statTracker) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	by := make(map[ExecutorType]int, len(t.byExecutor))
	for k, v := range t.byExecutor {
		by[k] = v
	}
	return Snapshot{
		TotalTasks:    t.total,
		ByExecutor:    by,
		Fallbacks:     t.fallbacks,
		Failures:      t.failures,
		LocalTokens:   t.localTokens,
		HostedTokens:  t.hostedTokens,
		HostedCostUSD: t.hostedCostUSD,
	}
}

func (t *statTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = 0
	t.byExecutor = make(map[ExecutorType]int)
	t.fallbacks = 0
	t.failures = 0
	t.localTokens = 0
	t.hostedTokens = 0
	t.hostedCostUSD = 0
}
