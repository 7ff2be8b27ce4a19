package executor

import (
	"context"
	"fmt"

	"github.com/perch-systems/offload/pkg/task"
)

// MockExecutor returns deterministic responses for local runs and
// tests. Health and failure behavior are scripted through fields.
type MockExecutor struct {
	ExecName   string
	Healthy    bool
	FailWith   error
	TokensUsed int
	Confidence float64
	responses  map[string]string

	// Calls counts Execute invocations, HealthChecks counts probes.
	Calls        int
	HealthChecks int
}

// NewMockExecutor creates a healthy mock executor.
func NewMockExecutor(name string) *MockExecutor {
	return &MockExecutor{
		ExecName:   name,
		Healthy:    true,
		TokensUsed: 100,
		Confidence: 0.8,
		responses:  make(map[string]string),
	}
}

// SetResponse pins the result returned for a task type.
func (m *MockExecutor) SetResponse(taskType, result string) {
	m.responses[taskType] = result
}

// Name returns the scripted executor identifier.
func (m *MockExecutor) Name() string {
	return m.ExecName
}

// Initialize is a no-op.
func (m *MockExecutor) Initialize(_ context.Context) error {
	return nil
}

// CheckHealth reports the scripted health state.
func (m *MockExecutor) CheckHealth(_ context.Context) bool {
	m.HealthChecks++
	return m.Healthy
}

// Execute returns a deterministic response, or the scripted failure.
func (m *MockExecutor) Execute(_ context.Context, t *task.Request) (*task.Response, error) {
	m.Calls++
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	result, ok := m.responses[t.Type]
	if !ok {
		result = fmt.Sprintf("%s result: %s", m.ExecName, t.Type)
	}
	return &task.Response{
		Result:     result,
		TokensUsed: m.TokensUsed,
		Duration:   0.01,
		Confidence: m.Confidence,
		Errors:     []string{},
	}, nil
}

// Cleanup is a no-op.
func (m *MockExecutor) Cleanup() error {
	return nil
}
