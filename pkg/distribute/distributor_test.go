package distribute

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/perch-systems/offload/pkg/config"
)

func testConfig() *config.Config {
	return config.Default()
}

func TestEvaluate_Disabled(t *testing.T) {
	cfg := testConfig()
	disabled := false
	cfg.Distribution.Enabled = &disabled
	d := New(cfg)

	// Any input routes to main when local processing is off, even
	// trivially local-suitable work.
	for _, text := range []string{
		"format the readme",
		"fix the docstring",
		"security audit of the auth flow",
	} {
		dist := d.Evaluate(text, Context{})
		if dist.AssignedProcessor != "main" {
			t.Errorf("Evaluate(%q) processor = %q, want main", text, dist.AssignedProcessor)
		}
		if dist.Reason != "local processing disabled" {
			t.Errorf("Evaluate(%q) reason = %q", text, dist.Reason)
		}
	}
	if d.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", d.ActiveCount())
	}
}

func TestEvaluate_Buckets(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantBucket string
	}{
		{"security keyword", "check for security vulnerabilities", "security"},
		{"optimization keyword", "optimize the hot loop", "optimization"},
		{"documentation keyword", "update the readme", "documentation"},
		{"formatting keyword", "reformat with the linter, fix indent", "formatting"},
		{"transformation keyword", "convert the config to yaml", "data_transformation"},
		{"analysis keyword", "summarize the error statistics", "simple_analysis"},
		{"no keyword defaults to general", "do something else entirely", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyBucket(tt.text); got != tt.wantBucket {
				t.Errorf("classifyBucket() = %q, want %q", got, tt.wantBucket)
			}
		})
	}
}

func TestEvaluate_SecurityAlwaysMain(t *testing.T) {
	d := New(testConfig())

	// Base importance 0.9 is far above the 0.3 threshold; slot
	// availability is irrelevant.
	dist := d.Evaluate("review this for security vulnerabilities", Context{})
	if dist.AssignedProcessor != "main" {
		t.Errorf("processor = %q, want main", dist.AssignedProcessor)
	}
	if dist.Priority != 0.9 {
		t.Errorf("priority = %v, want 0.9", dist.Priority)
	}
	if !strings.Contains(dist.Reason, "threshold") {
		t.Errorf("reason = %q, want the threshold comparison named", dist.Reason)
	}
}

func TestEvaluate_ImportanceAdjustments(t *testing.T) {
	tests := []struct {
		name string
		tctx Context
		want float64
	}{
		{"base documentation", Context{}, 0.2},
		{"urgent adds 0.3", Context{Urgent: true}, 0.5},
		{"user requested adds 0.2", Context{UserRequested: true}, 0.4},
		{"automated subtracts 0.2", Context{Automated: true}, 0.0},
		{"urgent and user requested cap below 1", Context{Urgent: true, UserRequested: true}, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(testConfig())
			dist := d.Evaluate("update the readme", tt.tctx)
			if diff := dist.Priority - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("priority = %v, want %v", dist.Priority, tt.want)
			}
			if dist.Priority < 0 || dist.Priority > 1 {
				t.Errorf("priority %v out of [0,1]", dist.Priority)
			}
		})
	}
}

func TestEvaluate_WhitelistGate(t *testing.T) {
	cfg := testConfig()
	cfg.Distribution.LocalTaskTypes = []string{"formatting"}
	d := New(cfg)

	// Documentation at automated importance 0.0 is below threshold
	// but not whitelisted.
	dist := d.Evaluate("update the readme", Context{Automated: true})
	if dist.AssignedProcessor != "main" {
		t.Errorf("processor = %q, want main", dist.AssignedProcessor)
	}
	if !strings.Contains(dist.Reason, "not suitable") {
		t.Errorf("reason = %q, want type mismatch named", dist.Reason)
	}
}

func TestEvaluate_SlotPool(t *testing.T) {
	cfg := testConfig()
	cfg.Distribution.MaxConcurrent = 2
	d := New(cfg)

	admit := func(id string) *Distribution {
		return d.Evaluate("update the readme", Context{TaskID: id, Automated: true})
	}

	first := admit("a")
	second := admit("b")
	if !first.SendToLocal || !second.SendToLocal {
		t.Fatalf("first two tasks should go local: %q / %q", first.Reason, second.Reason)
	}
	if d.ActiveCount() != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", d.ActiveCount())
	}

	third := admit("c")
	if third.SendToLocal {
		t.Error("third task admitted past the pool cap")
	}
	if !strings.Contains(third.Reason, "2/2") {
		t.Errorf("reason = %q, want current/max in the message", third.Reason)
	}

	// Releasing frees a slot for the next task; no queueing, the
	// rejected task does not get unblocked retroactively.
	d.Release("a")
	if d.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d after release, want 1", d.ActiveCount())
	}
	fourth := admit("d")
	if !fourth.SendToLocal {
		t.Errorf("fourth task rejected with a free slot: %q", fourth.Reason)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	d := New(testConfig())

	dist := d.Evaluate("update the readme", Context{TaskID: "a", Automated: true})
	if !dist.SendToLocal {
		t.Fatalf("task not admitted: %q", dist.Reason)
	}

	d.Release("a")
	d.Release("a")
	d.Release("never-acquired")
	if got := d.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0 (release must not go negative)", got)
	}
}

func TestEvaluate_PoolInvariantUnderConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Distribution.MaxConcurrent = 3
	d := New(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dist := d.Evaluate("update the readme", Context{
				TaskID:    fmt.Sprintf("task-%d", i),
				Automated: true,
			})
			if dist.SendToLocal {
				if n := d.ActiveCount(); n > 3 {
					t.Errorf("active count %d exceeds max 3", n)
				}
				d.Release(dist.TaskID)
			}
		}(i)
	}
	wg.Wait()

	if got := d.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d after all releases, want 0", got)
	}
}

func TestEvaluate_TokenEstimateDeterministic(t *testing.T) {
	d := New(testConfig())

	a := d.Evaluate("convert the config to yaml", Context{TaskID: "a", Automated: true})
	d.Release("a")
	b := d.Evaluate("convert the config to yaml", Context{TaskID: "b", Automated: true})
	d.Release("b")

	if a.EstimatedTokens != b.EstimatedTokens {
		t.Errorf("estimates differ for identical text: %d vs %d", a.EstimatedTokens, b.EstimatedTokens)
	}
	if a.EstimatedTokens <= 0 {
		t.Errorf("estimate = %d, want > 0", a.EstimatedTokens)
	}
}

func TestResourcePool(t *testing.T) {
	p := NewResourcePool(map[string]int{"analysis": 2, "memory_ops": 1})

	if !p.Acquire("analysis") || !p.Acquire("analysis") {
		t.Fatal("Acquire() should succeed up to the cap")
	}
	if p.Acquire("analysis") {
		t.Error("Acquire() succeeded past the cap")
	}
	if p.Acquire("unknown") {
		t.Error("Acquire() should reject unknown categories")
	}

	p.Release("analysis")
	if !p.Acquire("analysis") {
		t.Error("Acquire() should succeed after a release")
	}

	// Over-release never goes negative.
	p.Release("memory_ops")
	p.Release("memory_ops")
	if got := p.Used("memory_ops"); got != 0 {
		t.Errorf("Used(memory_ops) = %d, want 0", got)
	}
	if got := p.Available("memory_ops"); got != 1 {
		t.Errorf("Available(memory_ops) = %d, want 1", got)
	}
}
