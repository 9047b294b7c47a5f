package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/prdflow/internal/agent"
	"github.com/mark3labs/prdflow/internal/backlog"
	"github.com/mark3labs/prdflow/internal/config"
	"github.com/mark3labs/prdflow/internal/delta"
	ierr "github.com/mark3labs/prdflow/internal/errors"
	"github.com/mark3labs/prdflow/internal/hooks"
	"github.com/mark3labs/prdflow/internal/logger"
	"github.com/mark3labs/prdflow/internal/mcpserver"
	"github.com/mark3labs/prdflow/internal/orchestrator"
	"github.com/mark3labs/prdflow/internal/prddiff"
	"github.com/mark3labs/prdflow/internal/prp"
	"github.com/mark3labs/prdflow/internal/store"
	"github.com/spf13/cobra"
)

var runFlags struct {
	prd          string
	planDir      string
	agentCommand string
	analysis     string
	maxSteps     int
	waitTimeout  time.Duration
	pollInterval time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process backlog items until none remain",
	Long: `Initialize (or resume) the session for the current PRD, reconcile a
changed PRD against the previous session's backlog, then repeatedly process
the next schedulable item until the backlog is exhausted.

Each subtask is delegated to the external agent command; its brief is
written to the session's prps/ directory and backlog tools are exposed to
the agent over MCP (PRDFLOW_MCP_URL in its environment).`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.prd, "prd", "p", "", "PRD file path")
	runCmd.Flags().StringVar(&runFlags.planDir, "plan-dir", "", "Directory holding session state (default: plan)")
	runCmd.Flags().StringVar(&runFlags.agentCommand, "agent", "", "External agent command (default: opencode)")
	runCmd.Flags().StringVar(&runFlags.analysis, "analysis", "", "Path to a DeltaAnalysis JSON file for a changed PRD")
	runCmd.Flags().IntVar(&runFlags.maxSteps, "max-steps", 0, "Max scheduling steps, 0=until exhausted")
	runCmd.Flags().DurationVar(&runFlags.waitTimeout, "wait-timeout", 0, "Dependency wait timeout")
	runCmd.Flags().DurationVar(&runFlags.pollInterval, "poll-interval", 0, "Dependency poll interval")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.PRDPath == "" {
		return fmt.Errorf("no PRD file configured, use --prd or set prd in prdflow.yml")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.PRDPath, cfg.PlanDir)
	if err := st.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	meta := st.Metadata()
	fmt.Printf("Session %s (%s)\n", meta.ID, meta.Path)

	// A freshly created delta session starts empty; reconcile the parent
	// backlog against the changed PRD before scheduling anything.
	if err := reconcileDelta(st); err != nil {
		return err
	}

	// Expose backlog tools to the agent over MCP. Stopped explicitly in
	// the teardown below so its error is reported, not swallowed.
	mcp := mcpserver.New(st)
	if _, err := mcp.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}

	runner := agent.NewRunner(agent.RunnerConfig{
		Command: cfg.AgentCommand,
		Env:     []string{"PRDFLOW_MCP_URL=" + mcp.URL()},
		OnText: func(line string) {
			fmt.Println(line)
		},
	})

	workDir, _ := os.Getwd()
	hookCfg, err := hooks.LoadConfig(workDir)
	if err != nil {
		return err
	}
	var executor orchestrator.Executor = runner
	if hookCfg != nil {
		executor = &hookedExecutor{
			inner:   runner,
			cfg:     hookCfg,
			session: meta.ID,
			workDir: workDir,
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:    st,
		Executor: executor,
		Briefs:   prp.NewWriter(st.PRPDir()),
		Wait: orchestrator.WaitOptions{
			Timeout:  cfg.WaitTimeout,
			Interval: cfg.PollInterval,
		},
	})
	if err != nil {
		var merr ierr.MultiError
		merr.Append(fmt.Errorf("failed to create orchestrator: %w", err))
		merr.Append(mcp.Stop())
		return merr.ErrorOrNil()
	}

	// Teardown runs every step regardless of what failed: persist
	// whatever state we have, then stop the MCP server. A lone loop
	// error surfaces unchanged.
	var merr ierr.MultiError
	merr.Append(processAll(ctx, orch, st))
	if _, err := st.FlushUpdates(); err != nil {
		merr.Append(fmt.Errorf("final flush: %w", err))
	}
	if err := mcp.Stop(); err != nil {
		merr.Append(fmt.Errorf("failed to stop MCP server: %w", err))
	}
	if err := merr.ErrorOrNil(); err != nil {
		return err
	}

	printSummary(st)
	return nil
}

// processAll drains the backlog: process the next schedulable item and
// flush after each step, until nothing remains or the step limit is hit.
func processAll(ctx context.Context, orch *orchestrator.Orchestrator, st *store.Store) error {
	steps := 0
	for runFlags.maxSteps == 0 || steps < runFlags.maxSteps {
		processed, err := orch.ProcessNextItem(ctx)
		if err != nil {
			return err
		}
		if !processed {
			return nil
		}
		if _, err := st.FlushUpdates(); err != nil {
			return err
		}
		steps++
	}
	return nil
}

// reconcileDelta patches the parent session's backlog into a newly created
// delta session: it stores the PRD diff as an audit artifact, applies the
// externally supplied DeltaAnalysis, and persists the patched backlog.
// Sessions without a parent, and resumed sessions that already have items,
// are left alone.
func reconcileDelta(st *store.Store) error {
	meta := st.Metadata()
	b, err := st.LoadBacklog()
	if err != nil {
		return err
	}
	if meta.ParentSession == "" || len(b.Phases) > 0 {
		return nil
	}

	prev, err := st.ParentSnapshot()
	if err != nil {
		return err
	}
	diff := prddiff.Unified(meta.ParentSession+"/prd.md", st.PRDPath(), prev, st.PRDSnapshot())
	if diff != "" {
		path, err := prddiff.WriteArtifact(st.ArtifactsDir(), diff)
		if err != nil {
			return err
		}
		fmt.Printf("PRD diff saved to %s\n", path)
	}

	parent, err := st.ParentBacklog()
	if err != nil {
		return err
	}

	if runFlags.analysis == "" {
		// No classification supplied: carry the parent backlog over
		// unchanged so completed work is preserved.
		logger.Warn("PRD changed but no --analysis given; carrying parent backlog over unpatched")
		if err := st.StageBacklog(parent); err != nil {
			return err
		}
		_, err := st.FlushUpdates()
		return err
	}

	analysis, err := loadAnalysis(runFlags.analysis)
	if err != nil {
		return err
	}
	patched := delta.PatchBacklog(parent, analysis)
	if err := st.StageBacklog(patched); err != nil {
		return err
	}
	if _, err := st.FlushUpdates(); err != nil {
		return err
	}
	fmt.Printf("Backlog patched from %s (%d changes)\n", meta.ParentSession, len(analysis.Changes))
	return nil
}

// hookedExecutor wraps the agent runner with the user's pre/post subtask
// shell hooks. Hook failures are surfaced in their output, never as subtask
// failures; only context cancellation aborts.
type hookedExecutor struct {
	inner   orchestrator.Executor
	cfg     *hooks.Config
	session string
	workDir string
}

func (h *hookedExecutor) ExecuteSubtask(ctx context.Context, s *backlog.Subtask) error {
	vars := hooks.Variables{Session: h.session, Subtask: s.ID}

	out, err := hooks.Execute(ctx, h.cfg.Hooks.PreSubtask, h.workDir, vars)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Print(out)
	}

	if err := h.inner.ExecuteSubtask(ctx, s); err != nil {
		return err
	}

	out, err = hooks.Execute(ctx, h.cfg.Hooks.PostSubtask, h.workDir, vars)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Print(out)
	}
	return nil
}

// loadAnalysis reads an externally produced DeltaAnalysis JSON file.
func loadAnalysis(path string) (*delta.DeltaAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis file: %w", err)
	}
	var analysis delta.DeltaAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("malformed analysis file %s: %w", path, err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return &analysis, nil
}

func printSummary(st *store.Store) {
	b, err := st.LoadBacklog()
	if err != nil {
		return
	}
	counts := map[backlog.Status]int{}
	backlog.Walk(b, func(it backlog.Item) bool {
		counts[it.ItemStatus()]++
		return true
	})
	fmt.Printf("Done: %d complete, %d failed, %d obsolete, %d still planned\n",
		counts[backlog.StatusComplete], counts[backlog.StatusFailed],
		counts[backlog.StatusObsolete], counts[backlog.StatusPlanned])
}

// loadConfig merges the viper config with any explicitly set CLI flags.
// Flags a command does not define are simply never marked as changed.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("prd") {
		cfg.PRDPath, _ = f.GetString("prd")
	}
	if f.Changed("plan-dir") {
		cfg.PlanDir, _ = f.GetString("plan-dir")
	}
	if f.Changed("agent") {
		cfg.AgentCommand, _ = f.GetString("agent")
	}
	if f.Changed("wait-timeout") {
		cfg.WaitTimeout, _ = f.GetDuration("wait-timeout")
	}
	if f.Changed("poll-interval") {
		cfg.PollInterval, _ = f.GetDuration("poll-interval")
	}
	return cfg, nil
}
