package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/perch-systems/offload/pkg/task"
)

// localConfidence is reported for successful local completions. The
// local channel handles bulk mechanical work; its outputs are not
// trusted as highly as hosted synthesis.
const localConfidence = 0.7

// LocalExecutor talks to a locally running model behind an
// OpenAI-compatible endpoint (Ollama, llama.cpp server, vLLM).
type LocalExecutor struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// localRequest is the OpenAI-compatible chat completion request.
type localRequest struct {
	Model       string         `json:"model"`
	Messages    []localMessage `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
}

type localMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// localResponse is the OpenAI-compatible chat completion response.
type localResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewLocalExecutor creates an executor for a local model endpoint.
func NewLocalExecutor(baseURL, model string, requestTimeout time.Duration) (*LocalExecutor, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("local endpoint is required")
	}
	if model == "" {
		return nil, fmt.Errorf("local model is required")
	}
	return &LocalExecutor{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Name returns the executor identifier.
func (e *LocalExecutor) Name() string {
	return "local"
}

// Initialize verifies the endpoint is reachable.
func (e *LocalExecutor) Initialize(ctx context.Context) error {
	if !e.CheckHealth(ctx) {
		return &ExecError{Temporary: true, Err: fmt.Errorf("local endpoint %s unreachable", e.baseURL)}
	}
	return nil
}

// CheckHealth probes the models listing endpoint. Any transport
// error, timeout, or non-2xx status counts as unhealthy.
func (e *LocalExecutor) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Execute sends the task description as a chat completion and
// normalizes the result.
func (e *LocalExecutor) Execute(ctx context.Context, t *task.Request) (*task.Response, error) {
	start := time.Now()

	reqBody := localRequest{
		Model: e.model,
		Messages: []localMessage{
			{Role: "user", Content: t.Description},
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &ExecError{Temporary: true, Err: fmt.Errorf("local request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var localResp localResponse
	if err := json.Unmarshal(body, &localResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if localResp.Error != nil {
		return nil, &ExecError{Status: resp.StatusCode, Err: fmt.Errorf("local model error: %s", localResp.Error.Message)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ExecError{Status: resp.StatusCode, Err: fmt.Errorf("local endpoint returned status %d", resp.StatusCode)}
	}
	if len(localResp.Choices) == 0 {
		return nil, fmt.Errorf("local model returned no choices")
	}

	tokens := localResp.Usage.Total()
	if tokens == 0 {
		tokens = task.EstimateTokens(t.Description) + task.EstimateTokens(localResp.Choices[0].Message.Content)
	}

	return &task.Response{
		Result:     localResp.Choices[0].Message.Content,
		TokensUsed: tokens,
		Duration:   time.Since(start).Seconds(),
		Confidence: localConfidence,
		Errors:     []string{},
	}, nil
}

// Cleanup releases the HTTP client's idle connections.
func (e *LocalExecutor) Cleanup() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
