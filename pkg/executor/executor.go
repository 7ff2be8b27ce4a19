// Package executor defines the execution channel abstraction and its
// implementations: a locally reachable model endpoint and hosted
// provider-backed executors.
package executor

import (
	"context"

	"github.com/perch-systems/offload/pkg/task"
)

// Executor runs tasks on one execution channel. The delegation core
// depends only on this shape; the caller owns lifecycle ordering
// (Initialize before Execute, Cleanup on shutdown).
type Executor interface {
	// Initialize prepares the executor for use.
	Initialize(ctx context.Context) error

	// CheckHealth probes availability. It must respect ctx deadlines;
	// a timeout counts as unhealthy, never as a fault.
	CheckHealth(ctx context.Context) bool

	// Execute runs a task and reports token usage, duration, and
	// confidence.
	Execute(ctx context.Context, req *task.Request) (*task.Response, error)

	// Cleanup releases any held resources.
	Cleanup() error

	// Name returns the executor's identifier.
	Name() string
}

// Usage captures normalized token usage from a provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Total returns the total token count, deriving it from the parts
// when the provider omits it.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}
