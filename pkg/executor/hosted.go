package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/perch-systems/offload/pkg/config"
	"github.com/perch-systems/offload/pkg/task"
)

// hostedConfidence is reported for successful hosted completions.
const hostedConfidence = 0.9

// Provider is a hosted model backend. Implementations normalize the
// provider SDK's response into content plus token usage.
type Provider interface {
	// Generate sends a prompt to the model and returns the content
	// and token usage.
	Generate(ctx context.Context, model string, prompt string) (string, Usage, error)

	// Name returns the provider's identifier.
	Name() string
}

// HostedExecutor runs tasks against a hosted provider.
type HostedExecutor struct {
	provider Provider
	model    string
}

// NewHostedExecutor creates a hosted executor for the configured
// provider.
func NewHostedExecutor(cfg config.HostedConfig) (*HostedExecutor, error) {
	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case "anthropic":
		provider, err = NewAnthropicProvider(cfg.AnthropicAPIKey)
	case "openai":
		provider, err = NewOpenAIProvider(cfg.OpenAIAPIKey)
	case "google":
		provider, err = NewGoogleProvider(cfg.GoogleAPIKey)
	default:
		return nil, fmt.Errorf("unknown hosted provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewHostedExecutorWithProvider(provider, cfg.Model), nil
}

// NewHostedExecutorWithProvider creates a hosted executor around an
// existing provider.
func NewHostedExecutorWithProvider(provider Provider, model string) *HostedExecutor {
	return &HostedExecutor{provider: provider, model: model}
}

// Name returns the executor identifier.
func (e *HostedExecutor) Name() string {
	return "hosted"
}

// Initialize is a no-op; hosted providers hold no local state.
func (e *HostedExecutor) Initialize(ctx context.Context) error {
	if e.provider == nil {
		return fmt.Errorf("hosted executor has no provider")
	}
	return nil
}

// CheckHealth reports whether a provider is configured. Hosted
// reachability problems surface as execution errors instead, where
// the caller can see them.
func (e *HostedExecutor) CheckHealth(_ context.Context) bool {
	return e.provider != nil
}

// Execute sends the task description to the hosted provider.
func (e *HostedExecutor) Execute(ctx context.Context, t *task.Request) (*task.Response, error) {
	start := time.Now()

	content, usage, err := e.provider.Generate(ctx, e.model, t.Description)
	if err != nil {
		return nil, fmt.Errorf("hosted execution failed: %w", err)
	}

	tokens := usage.Total()
	if tokens == 0 {
		tokens = task.EstimateTokens(t.Description) + task.EstimateTokens(content)
	}

	return &task.Response{
		Result:     content,
		TokensUsed: tokens,
		Duration:   time.Since(start).Seconds(),
		Confidence: hostedConfidence,
		Errors:     []string{},
	}, nil
}

// Cleanup is a no-op for hosted providers.
func (e *HostedExecutor) Cleanup() error {
	return nil
}
