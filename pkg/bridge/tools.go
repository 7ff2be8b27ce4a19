package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/perch-systems/offload/pkg/cache"
	"github.com/perch-systems/offload/pkg/delegate"
	"github.com/perch-systems/offload/pkg/distribute"
	"github.com/perch-systems/offload/pkg/task"
)

// Tools holds the core collaborators the MCP handlers call into.
type Tools struct {
	Engine      *delegate.Engine
	Distributor *distribute.Distributor
	Cache       *cache.Cache
}

// Register adds all offload tools to the server.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(t.decideDefinition(), t.handleDecide)
	s.AddTool(t.runDefinition(), t.handleRun)
	s.AddTool(t.distributeDefinition(), t.handleDistribute)
	s.AddTool(t.releaseDefinition(), t.handleRelease)
	s.AddTool(t.statsDefinition(), t.handleStats)
	s.AddTool(t.cacheStatsDefinition(), t.handleCacheStats)
}

func (t *Tools) decideDefinition() mcp.Tool {
	return mcp.NewTool("offload_decide",
		mcp.WithDescription(
			"Decide which execution channel (local, hosted, hybrid) should run a task, "+
				"without executing it. Returns the decision with its reason and confidence.",
		),
		mcp.WithString("type", mcp.Required(),
			mcp.Description("Task category, e.g. file_search, code_review, architecture_design.")),
		mcp.WithString("description", mcp.Required(),
			mcp.Description("What the task should accomplish.")),
		mcp.WithNumber("estimated_tokens",
			mcp.Description("Estimated token volume. Derived from the description when omitted.")),
		mcp.WithString("required_tools",
			mcp.Description("Comma-separated capability tags the task needs, e.g. file_operations,mcp_server.")),
		mcp.WithString("complexity",
			mcp.Description("Optional pre-assigned complexity: mechanical, analytical, creative, or strategic.")),
	)
}

func (t *Tools) handleDecide(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskReq, errResult := t.taskFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}

	decision, err := t.Engine.Decide(taskReq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(struct {
		TaskID   string             `json:"task_id"`
		Decision *delegate.Decision `json:"decision"`
	}{taskReq.ID, decision})
}

func (t *Tools) runDefinition() mcp.Tool {
	return mcp.NewTool("offload_run",
		mcp.WithDescription(
			"Decide and execute a task. The local channel is health-checked before dispatch "+
				"and falls back to hosted when unavailable; the fallback is recorded in the result.",
		),
		mcp.WithString("type", mcp.Required(), mcp.Description("Task category.")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the task should accomplish.")),
		mcp.WithNumber("estimated_tokens", mcp.Description("Estimated token volume.")),
		mcp.WithString("required_tools", mcp.Description("Comma-separated capability tags.")),
		mcp.WithString("complexity", mcp.Description("Optional pre-assigned complexity.")),
	)
}

func (t *Tools) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskReq, errResult := t.taskFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}

	decision, err := t.Engine.Decide(taskReq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, execErr := t.Engine.Execute(ctx, taskReq, decision)
	out := struct {
		TaskID   string             `json:"task_id"`
		Decision *delegate.Decision `json:"decision"`
		Response *task.Response     `json:"response"`
		Failed   bool               `json:"failed"`
	}{taskReq.ID, decision, resp, execErr != nil}

	// A failed execution still reports the decision that was made.
	return jsonResult(out)
}

func (t *Tools) distributeDefinition() mcp.Tool {
	return mcp.NewTool("offload_distribute",
		mcp.WithDescription(
			"Evaluate whether a task may run on the local background channel. Admitted tasks "+
				"hold a concurrency slot until offload_release is called with their task_id.",
		),
		mcp.WithString("text", mcp.Required(), mcp.Description("The task text to classify and score.")),
		mcp.WithString("task_id", mcp.Description("Stable task id; generated when omitted.")),
		mcp.WithBoolean("urgent", mcp.Description("Raises importance by 0.3.")),
		mcp.WithBoolean("user_requested", mcp.Description("Raises importance by 0.2.")),
		mcp.WithBoolean("automated", mcp.Description("Lowers importance by 0.2.")),
	)
}

func (t *Tools) handleDistribute(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := strings.TrimSpace(req.GetString("text", ""))
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	dist := t.Distributor.Evaluate(text, distribute.Context{
		TaskID:        req.GetString("task_id", ""),
		Urgent:        req.GetBool("urgent", false),
		UserRequested: req.GetBool("user_requested", false),
		Automated:     req.GetBool("automated", false),
	})
	return jsonResult(dist)
}

func (t *Tools) releaseDefinition() mcp.Tool {
	return mcp.NewTool("offload_release",
		mcp.WithDescription("Release a task's local concurrency slot. Idempotent."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("The task id to release.")),
	)
}

func (t *Tools) handleRelease(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := strings.TrimSpace(req.GetString("task_id", ""))
	if taskID == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}
	t.Distributor.Release(taskID)
	return mcp.NewToolResultText(fmt.Sprintf("released %s (active: %d)", taskID, t.Distributor.ActiveCount())), nil
}

func (t *Tools) statsDefinition() mcp.Tool {
	return mcp.NewTool("offload_stats",
		mcp.WithDescription("Execution statistics: task counts per channel, token totals, hosted pressure."),
	)
}

func (t *Tools) handleStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := t.Engine.State()
	return jsonResult(struct {
		Stats    delegate.Snapshot `json:"stats"`
		Usage    int               `json:"hosted_usage"`
		Capacity int               `json:"capacity"`
		Pressure float64           `json:"pressure"`
	}{t.Engine.Stats(), state.Usage(), state.Capacity(), state.Pressure()})
}

func (t *Tools) cacheStatsDefinition() mcp.Tool {
	return mcp.NewTool("offload_cache_stats",
		mcp.WithDescription("Result cache statistics: entries, hits, misses, expired removals."),
	)
}

func (t *Tools) handleCacheStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.Cache.GetStats()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats)
}

// taskFromRequest builds a validated task.Request from tool
// arguments. Returns a ready tool error result on bad input.
func (t *Tools) taskFromRequest(req mcp.CallToolRequest) (*task.Request, *mcp.CallToolResult) {
	taskReq := task.NewRequest(req.GetString("type", ""), req.GetString("description", ""))
	taskReq.EstimatedTokens = int(req.GetFloat("estimated_tokens", 0))
	if taskReq.EstimatedTokens == 0 {
		taskReq.EstimatedTokens = task.EstimateTokens(taskReq.Description)
	}

	if tools := req.GetString("required_tools", ""); tools != "" {
		for _, tool := range strings.Split(tools, ",") {
			if tool = strings.TrimSpace(tool); tool != "" {
				taskReq.RequiredTools = append(taskReq.RequiredTools, tool)
			}
		}
	}

	if raw := req.GetString("complexity", ""); raw != "" {
		class, err := task.ParseComplexity(raw)
		if err != nil {
			return nil, mcp.NewToolResultError(err.Error())
		}
		taskReq.Complexity = class
	}

	if err := taskReq.Validate(); err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return taskReq, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
