package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/perch-systems/offload/pkg/bridge"
	"github.com/perch-systems/offload/pkg/cache"
	"github.com/perch-systems/offload/pkg/config"
	"github.com/perch-systems/offload/pkg/delegate"
	"github.com/perch-systems/offload/pkg/distribute"
	"github.com/perch-systems/offload/pkg/executor"
	"github.com/perch-systems/offload/pkg/task"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "offload",
		Short: "Route LLM coding-assistant work between a hosted assistant and a local model",
		Long: `Offload decides, per task, whether work should run on a locally
	reachable model or the hosted assistant, based on task complexity,
	hosted-context pressure, and tool availability. A secondary
	distributor gates how many tasks run concurrently on the local channel.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(distributeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

// buildEngine wires executors from config. When requireHosted is
// false and no hosted API key is configured, a mock stands in so
// decision-only commands work offline.
func buildEngine(cfg *config.Config, requireHosted bool) (*delegate.Engine, error) {
	local, err := executor.NewLocalExecutor(
		cfg.Local.Endpoint,
		cfg.Local.Model,
		time.Duration(cfg.Local.RequestTimeoutMS)*time.Millisecond,
	)
	if err != nil {
		return nil, err
	}

	var hosted executor.Executor
	hosted, err = executor.NewHostedExecutor(cfg.Hosted)
	if err != nil {
		if requireHosted {
			return nil, err
		}
		hosted = executor.NewMockExecutor("hosted")
	}

	state := delegate.NewContextState(cfg.Delegation.CapacityTokens)
	return delegate.NewEngine(cfg, state, local, hosted)
}

func taskFlags(cmd *cobra.Command, taskType, tokens, tools, complexity *string) {
	cmd.Flags().StringVar(taskType, "type", "", "task category (required)")
	cmd.Flags().StringVar(tokens, "tokens", "", "estimated token volume")
	cmd.Flags().StringVar(tools, "tools", "", "comma-separated required capability tags")
	cmd.Flags().StringVar(complexity, "complexity", "", "pre-assigned complexity (mechanical|analytical|creative|strategic)")
	_ = cmd.MarkFlagRequired("type")
}

func buildTask(taskType, description, tokens, tools, complexity string) (*task.Request, error) {
	req := task.NewRequest(taskType, description)
	if tokens != "" {
		if _, err := fmt.Sscanf(tokens, "%d", &req.EstimatedTokens); err != nil {
			return nil, fmt.Errorf("invalid --tokens value %q", tokens)
		}
	} else {
		req.EstimatedTokens = task.EstimateTokens(description)
	}
	if tools != "" {
		for _, tool := range strings.Split(tools, ",") {
			if tool = strings.TrimSpace(tool); tool != "" {
				req.RequiredTools = append(req.RequiredTools, tool)
			}
		}
	}
	if complexity != "" {
		class, err := task.ParseComplexity(complexity)
		if err != nil {
			return nil, err
		}
		req.Complexity = class
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func decideCmd() *cobra.Command {
	var taskType, tokens, tools, complexity string

	cmd := &cobra.Command{
		Use:   "decide [description]",
		Short: "Show the routing decision for a task without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg, false)
			if err != nil {
				return err
			}

			req, err := buildTask(taskType, strings.Join(args, " "), tokens, tools, complexity)
			if err != nil {
				return err
			}

			decision, err := engine.Decide(req)
			if err != nil {
				return err
			}

			fmt.Printf("executor:   %s\n", decision.Executor)
			fmt.Printf("reason:     %s\n", decision.Reason)
			fmt.Printf("confidence: %.2f\n", decision.Confidence)
			return nil
		},
	}
	taskFlags(cmd, &taskType, &tokens, &tools, &complexity)
	return cmd
}

func runCmd() *cobra.Command {
	var taskType, tokens, tools, complexity string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run [description]",
		Short: "Decide and execute a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg, true)
			if err != nil {
				return err
			}

			req, err := buildTask(taskType, strings.Join(args, " "), tokens, tools, complexity)
			if err != nil {
				return err
			}

			decision, err := engine.Decide(req)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "[offload] %s: %s (confidence %.2f)\n",
				decision.Executor, decision.Reason, decision.Confidence)

			resp, execErr := engine.Execute(cmd.Context(), req, decision)
			if jsonOut {
				out := struct {
					Decision *delegate.Decision `json:"decision"`
					Response *task.Response     `json:"response"`
				}{decision, resp}
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else if resp != nil {
				fmt.Println(resp.Result)
				for _, e := range resp.Errors {
					fmt.Fprintf(os.Stderr, "[offload] note: %s\n", e)
				}
			}

			// The decision has already been reported; a failed
			// execution is its own, separate failure.
			if execErr != nil {
				return fmt.Errorf("execution failed: %w", execErr)
			}
			return nil
		},
	}
	taskFlags(cmd, &taskType, &tokens, &tools, &complexity)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print decision and response as JSON")
	return cmd
}

func distributeCmd() *cobra.Command {
	var urgent, userRequested, automated bool

	cmd := &cobra.Command{
		Use:   "distribute [task text]",
		Short: "Evaluate a task against the local-channel gate",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dist := distribute.New(cfg).Evaluate(strings.Join(args, " "), distribute.Context{
				Urgent:        urgent,
				UserRequested: userRequested,
				Automated:     automated,
			})

			data, err := json.MarshalIndent(dist, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&urgent, "urgent", false, "mark the task urgent (+0.3 importance)")
	cmd.Flags().BoolVar(&userRequested, "user-requested", false, "mark the task user-requested (+0.2 importance)")
	cmd.Flags().BoolVar(&automated, "automated", false, "mark the task automated (-0.2 importance)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show configured thresholds and current context capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "capacity_tokens\t%d\n", cfg.Delegation.CapacityTokens)
			fmt.Fprintf(w, "escalation_tokens\t%d\n", cfg.Delegation.EscalationTokens)
			fmt.Fprintf(w, "large_task_tokens\t%d\n", cfg.Delegation.LargeTaskTokens)
			fmt.Fprintf(w, "hybrid_min_tokens\t%d\n", cfg.Delegation.HybridMinTokens)
			fmt.Fprintf(w, "pressure_threshold\t%.2f\n", cfg.Delegation.PressureThreshold)
			fmt.Fprintf(w, "importance_threshold\t%.2f\n", cfg.Distribution.ImportanceThreshold)
			fmt.Fprintf(w, "max_concurrent_local\t%d\n", cfg.Distribution.MaxConcurrent)
			fmt.Fprintf(w, "distribution_enabled\t%v\n", cfg.DistributionEnabled())
			fmt.Fprintf(w, "cache_ttl_hours\t%d\n", cfg.Cache.TTLHours)
			return w.Flush()
		},
	}
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Show the complexity and distribution rule tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPLEXITY\tROUTE")
			fmt.Fprintln(w, "mechanical\tlocal (hosted when required tools are unavailable locally)")
			fmt.Fprintln(w, "analytical\tlocal when large or under pressure, hosted otherwise")
			fmt.Fprintln(w, "creative\thosted")
			fmt.Fprintln(w, "strategic\thosted")
			fmt.Fprintln(w, "any non-mechanical\thybrid at very high token volume")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "LOCAL TOOLS\t"+strings.Join(cfg.Delegation.LocalTools, ", "))
			fmt.Fprintln(w, "LOCAL TASK TYPES\t"+strings.Join(cfg.Distribution.LocalTaskTypes, ", "))
			return w.Flush()
		},
	}
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count and hit/miss counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.GetStats()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ClearExpired()
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired entries\n", n)
			return nil
		},
	})

	return cmd
}

func openCache() (*cache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	return cache.Open(path, time.Duration(cfg.Cache.TTLHours)*time.Hour)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			s, cleanup, err := bridge.New(cfg)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			return server.ServeStdio(s)
		},
	}
}
