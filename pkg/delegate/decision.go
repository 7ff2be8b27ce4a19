// Package delegate implements the delegation engine: it classifies
// task complexity, weighs hosted-context pressure, and decides which
// execution channel should run each task.
package delegate

import "strings"

// ExecutorType names an execution channel.
type ExecutorType string

const (
	// ExecutorLocal runs the task on the locally reachable model.
	ExecutorLocal ExecutorType = "local"
	// ExecutorHosted runs the task on the hosted assistant.
	ExecutorHosted ExecutorType = "hosted"
	// ExecutorHybrid splits the task: local bulk pass, hosted
	// synthesis over the local output.
	ExecutorHybrid ExecutorType = "hybrid"
)

// ParseExecutorType converts a case-insensitive name to an
// ExecutorType. Unrecognized names return false.
func ParseExecutorType(s string) (ExecutorType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return ExecutorLocal, true
	case "hosted":
		return ExecutorHosted, true
	case "hybrid":
		return ExecutorHybrid, true
	default:
		return "", false
	}
}

// Decision is the engine's routing verdict for one task. Produced
// once, never mutated. Confidence is in (0,1]; Reason names the
// dominant factor so callers and tests can assert rationale.
type Decision struct {
	Executor   ExecutorType `json:"executor"`
	Reason     string       `json:"reason"`
	Confidence float64      `json:"confidence"`
}
