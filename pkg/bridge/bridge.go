// Package bridge exposes the delegation core over MCP (stdio). It is
// a composition root: it wires the engine, distributor, and cache
// into tool handlers and holds no decision logic of its own. Any
// transport invokes the core as plain function calls; this is just
// the one we ship.
package bridge

import (
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/perch-systems/offload/pkg/cache"
	"github.com/perch-systems/offload/pkg/config"
	"github.com/perch-systems/offload/pkg/delegate"
	"github.com/perch-systems/offload/pkg/distribute"
	"github.com/perch-systems/offload/pkg/executor"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with all offload tools registered. The
// returned cleanup closes the cache database and executor resources;
// it is always non-nil and safe to call.
func New(cfg *config.Config) (*server.MCPServer, func(), error) {
	local, err := executor.NewLocalExecutor(
		cfg.Local.Endpoint,
		cfg.Local.Model,
		time.Duration(cfg.Local.RequestTimeoutMS)*time.Millisecond,
	)
	if err != nil {
		return nil, noop, fmt.Errorf("creating local executor: %w", err)
	}

	hosted, err := executor.NewHostedExecutor(cfg.Hosted)
	if err != nil {
		return nil, noop, fmt.Errorf("creating hosted executor: %w", err)
	}

	state := delegate.NewContextState(cfg.Delegation.CapacityTokens)
	engine, err := delegate.NewEngine(cfg, state, local, hosted)
	if err != nil {
		return nil, noop, fmt.Errorf("creating delegation engine: %w", err)
	}

	dist := distribute.New(cfg)

	cachePath, err := cfg.CachePath()
	if err != nil {
		return nil, noop, fmt.Errorf("resolving cache path: %w", err)
	}
	store, err := cache.Open(cachePath, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	if err != nil {
		return nil, noop, fmt.Errorf("opening result cache: %w", err)
	}

	s := server.NewMCPServer(
		"offload",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	tools := &Tools{Engine: engine, Distributor: dist, Cache: store}
	tools.Register(s)

	cleanup := func() {
		_ = store.Close()
		_ = local.Cleanup()
		_ = hosted.Cleanup()
	}
	return s, cleanup, nil
}

func noop() {}
