package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), ttl)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKey_OrderIndependent(t *testing.T) {
	a := Key("search", map[string]string{"lang": "go", "scope": "repo"})
	b := Key("search", map[string]string{"scope": "repo", "lang": "go"})
	if a != b {
		t.Errorf("Key() order-dependent: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("Key() length = %d, want 16", len(a))
	}

	if a == Key("lookup", map[string]string{"lang": "go", "scope": "repo"}) {
		t.Error("Key() should differ across query types")
	}
	if a == Key("search", map[string]string{"lang": "go", "scope": "all"}) {
		t.Error("Key() should differ across param values")
	}
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour)
	params := map[string]string{"lang": "go"}

	if _, ok, err := c.Get("search", params); err != nil || ok {
		t.Fatalf("Get() before Set = ok=%v err=%v, want miss", ok, err)
	}

	if err := c.Set("search", params, `{"results": 3}`); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok, err := c.Get("search", params)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !ok || got != `{"results": 3}` {
		t.Errorf("Get() = %q, ok=%v, want the stored value", got, ok)
	}
}

func TestCache_SetReplaces(t *testing.T) {
	c := newTestCache(t, time.Hour)
	params := map[string]string{"lang": "go"}

	if err := c.Set("search", params, "old"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := c.Set("search", params, "new"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok, _ := c.Get("search", params)
	if !ok || got != "new" {
		t.Errorf("Get() = %q, want replacement value", got)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1 (replace, not append)", stats.Entries)
	}
}

func TestCache_LazyExpiry(t *testing.T) {
	c := newTestCache(t, time.Hour)
	params := map[string]string{"lang": "go"}

	base := time.Now()
	c.now = func() time.Time { return base }
	if err := c.Set("search", params, "value"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	// Simulated clock past the TTL: the entry reads as absent and
	// is evicted as a side effect.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, ok, err := c.Get("search", params); err != nil || ok {
		t.Fatalf("Get() after TTL = ok=%v err=%v, want miss", ok, err)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d after lazy expiry, want 0", stats.Entries)
	}
	if stats.ExpiredRemoved != 1 {
		t.Errorf("ExpiredRemoved = %d, want 1", stats.ExpiredRemoved)
	}
}

func TestCache_ClearExpired(t *testing.T) {
	c := newTestCache(t, time.Hour)

	base := time.Now()
	c.now = func() time.Time { return base }
	for i, q := range []string{"a", "b", "c"} {
		if err := c.Set("search", map[string]string{"q": q}, "v"); err != nil {
			t.Fatalf("Set(%d) error: %v", i, err)
		}
	}

	c.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := c.Set("search", map[string]string{"q": "fresh"}, "v"); err != nil {
		t.Fatalf("Set(fresh) error: %v", err)
	}

	c.now = func() time.Time { return base.Add(80 * time.Minute) }
	n, err := c.ClearExpired()
	if err != nil {
		t.Fatalf("ClearExpired() error: %v", err)
	}
	if n != 3 {
		t.Errorf("ClearExpired() = %d, want 3", n)
	}

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want the fresh entry only", stats.Entries)
	}
}

func TestCache_HitMissCounters(t *testing.T) {
	c := newTestCache(t, time.Hour)
	params := map[string]string{"q": "a"}

	c.Get("search", params)
	c.Set("search", params, "v")
	c.Get("search", params)
	c.Get("search", params)

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 2/1", stats.Hits, stats.Misses)
	}
}

func TestOpen_RejectsBadTTL(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "cache.db"), 0); err == nil {
		t.Error("Open() should reject ttl 0")
	}
}
