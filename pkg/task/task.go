// Package task defines the data contracts that flow through the
// delegation core: requests, responses, and complexity classes.
package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTask marks requests rejected before classification.
var ErrInvalidTask = errors.New("invalid task")

// Complexity is a coarse, ordered classification of how much judgment
// a task requires. Ordering matters: threshold comparisons rely on
// Mechanical < Analytical < Creative < Strategic.
type Complexity int

const (
	// ComplexityUnknown means the caller did not pre-assign a class;
	// the classifier derives one.
	ComplexityUnknown Complexity = iota
	Mechanical
	Analytical
	Creative
	Strategic
)

// String returns the lowercase name of the complexity class.
func (c Complexity) String() string {
	switch c {
	case Mechanical:
		return "mechanical"
	case Analytical:
		return "analytical"
	case Creative:
		return "creative"
	case Strategic:
		return "strategic"
	default:
		return "unknown"
	}
}

// ParseComplexity converts a case-insensitive name to a Complexity.
func ParseComplexity(s string) (Complexity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mechanical":
		return Mechanical, nil
	case "analytical":
		return Analytical, nil
	case "creative":
		return Creative, nil
	case "strategic":
		return Strategic, nil
	case "":
		return ComplexityUnknown, nil
	default:
		return ComplexityUnknown, fmt.Errorf("unknown complexity %q", s)
	}
}

// Escalate returns the class one step up, saturating at Strategic.
func (c Complexity) Escalate() Complexity {
	if c >= Strategic {
		return Strategic
	}
	if c == ComplexityUnknown {
		return Analytical
	}
	return c + 1
}

// Request describes one unit of work submitted to the engine.
// Immutable once submitted.
type Request struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Description     string     `json:"description"`
	EstimatedTokens int        `json:"estimated_tokens"`
	RequiredTools   []string   `json:"required_tools,omitempty"`
	Complexity      Complexity `json:"complexity,omitempty"`
}

// NewRequest creates a request with a generated ID.
func NewRequest(taskType, description string) *Request {
	return &Request{
		ID:          uuid.NewString(),
		Type:        taskType,
		Description: description,
	}
}

// Validate rejects requests with missing required fields. Invalid
// tasks are refused before classification, never silently coerced.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidTask)
	}
	if strings.TrimSpace(r.Type) == "" {
		return fmt.Errorf("%w: empty type", ErrInvalidTask)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: empty description", ErrInvalidTask)
	}
	if r.EstimatedTokens < 0 {
		return fmt.Errorf("%w: negative estimated_tokens %d", ErrInvalidTask, r.EstimatedTokens)
	}
	return nil
}

// Response is the outcome of one executed task.
type Response struct {
	Result     string            `json:"result"`
	TokensUsed int               `json:"tokens_used"`
	Duration   float64           `json:"duration_seconds"`
	Confidence float64           `json:"confidence"`
	Errors     []string          `json:"errors"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OK reports whether the execution completed without errors.
func (r *Response) OK() bool {
	return r != nil && len(r.Errors) == 0
}

// AddMeta records a metadata entry, allocating the map on first use.
func (r *Response) AddMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}
