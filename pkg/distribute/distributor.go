// Package distribute implements the secondary gate on the local
// execution channel: it scores tasks by keyword bucket and
// importance, then admits them against a fixed-size slot pool.
// Overflow routes to the main channel; nothing queues.
package distribute

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/perch-systems/offload/pkg/config"
	"github.com/perch-systems/offload/pkg/task"
)

// Importance adjustments applied from context flags, clamped to
// [0,1] after each step.
const (
	urgentBoost        = 0.3
	userRequestedBoost = 0.2
	automatedPenalty   = 0.2
)

// Context carries the caller-supplied flags that adjust a task's
// importance score.
type Context struct {
	TaskID        string
	Urgent        bool
	UserRequested bool
	Automated     bool
}

// Distribution is the distributor's decision record for one task.
// Independent of the delegation engine's Decision.
type Distribution struct {
	TaskID            string            `json:"task_id"`
	SendToLocal       bool              `json:"send_to_local"`
	Reason            string            `json:"reason"`
	Priority          float64           `json:"priority"`
	EstimatedTokens   int               `json:"estimated_tokens"`
	AssignedProcessor string            `json:"assigned_processor"` // "main" or "local"
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Distributor gates how many tasks run concurrently on the local
// channel. The active set is a single-writer-at-a-time structure.
type Distributor struct {
	cfg config.DistributionConfig

	enabled   bool
	whitelist map[string]bool

	mu     sync.Mutex
	active map[string]struct{}

	// Pool provides per-category throttling beyond the slot count.
	Pool *ResourcePool
}

// New creates a distributor from configuration.
func New(cfg *config.Config) *Distributor {
	whitelist := make(map[string]bool, len(cfg.Distribution.LocalTaskTypes))
	for _, t := range cfg.Distribution.LocalTaskTypes {
		whitelist[t] = true
	}
	return &Distributor{
		cfg:       cfg.Distribution,
		enabled:   cfg.DistributionEnabled(),
		whitelist: whitelist,
		active:    make(map[string]struct{}),
		Pool:      NewResourcePool(cfg.Distribution.ResourcePools),
	}
}

// Evaluate decides whether a task may run on the local channel.
// Routing away from local is a normal outcome, never an error. When
// the task is admitted its slot is acquired; the caller must Release
// it when the task finishes, including on failure.
func (d *Distributor) Evaluate(text string, tctx Context) *Distribution {
	taskID := tctx.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	dist := &Distribution{
		TaskID:            taskID,
		EstimatedTokens:   task.EstimateTokens(text),
		AssignedProcessor: "main",
		Metadata:          make(map[string]string),
	}

	if !d.enabled {
		dist.Priority = 1.0
		dist.Reason = "local processing disabled"
		return dist
	}

	bucket := classifyBucket(text)
	dist.Metadata["bucket"] = bucket

	importance := baseImportance[bucket]
	if importance == 0 {
		importance = baseImportance["general"]
	}
	if tctx.Urgent {
		importance = clamp01(importance + urgentBoost)
	}
	if tctx.UserRequested {
		importance = clamp01(importance + userRequestedBoost)
	}
	if tctx.Automated {
		importance = clamp01(importance - automatedPenalty)
	}
	dist.Priority = importance

	if importance >= d.cfg.ImportanceThreshold {
		dist.Reason = fmt.Sprintf("importance %.2f >= threshold %.2f: too important for the local channel", importance, d.cfg.ImportanceThreshold)
		return dist
	}

	if !d.whitelist[bucket] {
		dist.Reason = fmt.Sprintf("task type %q not suitable for local processing", bucket)
		return dist
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.active) >= d.cfg.MaxConcurrent {
		dist.Reason = fmt.Sprintf("local task pool full (%d/%d)", len(d.active), d.cfg.MaxConcurrent)
		return dist
	}

	d.active[taskID] = struct{}{}
	dist.SendToLocal = true
	dist.AssignedProcessor = "local"
	dist.Reason = fmt.Sprintf("importance %.2f below threshold %.2f and local capacity available (%d/%d)",
		importance, d.cfg.ImportanceThreshold, len(d.active), d.cfg.MaxConcurrent)
	return dist
}

// Release frees a task's local slot. Idempotent: releasing an id
// that is not active is a no-op.
func (d *Distributor) Release(taskID string) {
	d.mu.Lock()
	delete(d.active, taskID)
	d.mu.Unlock()
}

// ActiveCount returns the number of tasks currently holding local
// slots.
func (d *Distributor) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
