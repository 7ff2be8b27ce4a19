package delegate

import "sync"

// ContextState tracks hosted-assistant token consumption against a
// capacity ceiling. It is explicitly owned and passed into the
// engine, never a package-level singleton; all mutations are atomic
// relative to the reads used for pressure computation.
type ContextState struct {
	mu       sync.Mutex
	usage    int
	capacity int
}

// NewContextState creates a state with the given capacity ceiling.
// The engine constructor validates capacity > 0.
func NewContextState(capacity int) *ContextState {
	return &ContextState{capacity: capacity}
}

// Add accounts tokens consumed by a hosted execution. Usage only
// grows; negative deltas are ignored.
func (s *ContextState) Add(tokens int) {
	if tokens <= 0 {
		return
	}
	s.mu.Lock()
	s.usage += tokens
	s.mu.Unlock()
}

// Usage returns the accumulated hosted token count.
func (s *ContextState) Usage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Capacity returns the configured ceiling.
func (s *ContextState) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Pressure returns usage/capacity clamped to [0,1].
func (s *ContextState) Pressure() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity <= 0 {
		return 1
	}
	p := float64(s.usage) / float64(s.capacity)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Reset clears accumulated usage. Intended for test isolation and
// session boundaries.
func (s *ContextState) Reset() {
	s.mu.Lock()
	s.usage = 0
	s.mu.Unlock()
}
