package distribute

import "sync"

// ResourcePool tracks per-category acquisitions against fixed caps.
// It offers finer-grained throttling than the distributor's single
// slot count: callers acquire a category, do the work, and release.
type ResourcePool struct {
	mu   sync.Mutex
	caps map[string]int
	used map[string]int
}

// NewResourcePool creates a pool with the given per-category caps.
// Unknown categories are always rejected.
func NewResourcePool(caps map[string]int) *ResourcePool {
	c := make(map[string]int, len(caps))
	for k, v := range caps {
		c[k] = v
	}
	return &ResourcePool{
		caps: c,
		used: make(map[string]int),
	}
}

// Acquire takes one unit of a category. It never blocks: when the
// category is at its cap (or unknown) it returns false.
func (p *ResourcePool) Acquire(category string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cap, ok := p.caps[category]
	if !ok || p.used[category] >= cap {
		return false
	}
	p.used[category]++
	return true
}

// Release returns one unit of a category. Idempotent with respect to
// over-release: the count never goes negative.
func (p *ResourcePool) Release(category string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.used[category] > 0 {
		p.used[category]--
	}
}

// Used returns the current acquisition count for a category.
func (p *ResourcePool) Used(category string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used[category]
}

// Available returns remaining capacity for a category; unknown
// categories have none.
func (p *ResourcePool) Available(category string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cap, ok := p.caps[category]
	if !ok {
		return 0
	}
	n := cap - p.used[category]
	if n < 0 {
		return 0
	}
	return n
}
