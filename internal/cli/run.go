package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/herdhq/herd/internal/beads"
	"github.com/herdhq/herd/internal/checkpoint"
	"github.com/herdhq/herd/internal/config"
	"github.com/herdhq/herd/internal/dashboard"
	"github.com/herdhq/herd/internal/git"
	"github.com/herdhq/herd/internal/logging"
	"github.com/herdhq/herd/internal/orchestrator"
	"github.com/herdhq/herd/internal/runlock"
	"github.com/herdhq/herd/internal/runner"
	"github.com/herdhq/herd/internal/work"
)

var (
	runEpic       string
	runWorkers    int
	runTimeout    int
	runRetries    int
	runLimit      int
	runDryRun     bool
	runDashboard  bool
	runAllowDirty bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute every ready task",
	Long:  `Discovers open work, then drives the worker pool until all tasks are completed, failed, or blocked. Fails with a non-zero exit code when any task ends in failure or remains blocked.`,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runEpic, "epic", "", "run only the tasks of one epic")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "override the worker count")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "override the per-task timeout in seconds")
	runCmd.Flags().IntVar(&runRetries, "retries", 0, "override the retry budget per task")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "stop after this many task outcomes")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the discovered work and exit")
	runCmd.Flags().BoolVar(&runDashboard, "dashboard", false, "show the live dashboard")
	runCmd.Flags().BoolVar(&runAllowDirty, "allow-dirty", false, "run even when the workspace has uncommitted changes")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.New(verbose)

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	if !beads.IsAvailable() {
		return fmt.Errorf("bd is not installed or not on PATH")
	}
	if !runner.IsClaudeAvailable() {
		return fmt.Errorf("claude is not installed or not on PATH")
	}

	source := beads.NewClient(cfg.ProjectDir, logger)
	manifest, err := discover(ctx, source, cfg.Epic)
	if err != nil {
		return err
	}
	if manifest.TotalTasks == 0 {
		fmt.Println("No open tasks.")
		return nil
	}

	if runDryRun {
		printManifest(manifest)
		return nil
	}

	if !runAllowDirty {
		clean, err := git.IsClean(ctx, cfg.ProjectDir)
		if err != nil {
			return fmt.Errorf("failed to check workspace state: %w", err)
		}
		if !clean {
			return fmt.Errorf("workspace has uncommitted changes; commit them or pass --allow-dirty")
		}
	}

	lock := runlock.New(cfg.ProjectDir)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	store, err := checkpoint.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()

	orch, err := orchestrator.New(ctx, manifest, cfg, store, source,
		runner.NewClaudeRunner(cfg.ProjectDir), logger)
	if err != nil {
		return err
	}

	var result *orchestrator.Result
	if runDashboard {
		result, err = runWithDashboard(ctx, orch, manifest)
	} else {
		result, err = orch.Run(ctx)
	}
	if err != nil {
		return err
	}

	printResult(result)
	if !result.Success {
		return ErrRunFailed
	}
	return nil
}

// resolveConfig loads .herd.toml and applies command-line overrides.
func resolveConfig() (config.RunConfig, error) {
	fileCfg, err := config.Load(projectDir)
	if err != nil {
		return config.RunConfig{}, err
	}

	cfg := fileCfg.Resolve(projectDir)
	if runWorkers > 0 {
		cfg.Workers = runWorkers
	}
	if runTimeout > 0 {
		cfg.TaskTimeout = time.Duration(runTimeout) * time.Second
	}
	if runRetries > 0 {
		cfg.MaxTaskAttempts = runRetries
	}
	if runLimit > 0 {
		cfg.TaskLimit = runLimit
	}
	cfg.Epic = runEpic
	return cfg, nil
}

func discover(ctx context.Context, source *beads.Client, epic string) (*work.Manifest, error) {
	if epic != "" {
		m, err := source.DiscoverEpic(ctx, epic)
		if err != nil {
			return nil, fmt.Errorf("failed to discover epic %s: %w", epic, err)
		}
		return m, nil
	}
	m, err := source.DiscoverAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover work: %w", err)
	}
	return m, nil
}

// runWithDashboard executes the run in a background goroutine while the
// dashboard owns the terminal. Quitting the dashboard with q detaches the
// view; the run continues and its summary is printed on completion.
func runWithDashboard(ctx context.Context, orch *orchestrator.Orchestrator, manifest *work.Manifest) (*orchestrator.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := dashboard.New(fmt.Sprintf("herd: %s", manifest.TargetDescription()), orch, cancel)
	program := tea.NewProgram(model)

	type runOutcome struct {
		result *orchestrator.Result
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		result, err := orch.Run(runCtx)
		done <- runOutcome{result, err}
		program.Send(dashboard.DoneMsg{Result: result})
	}()

	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("dashboard failed: %w", err)
	}

	outcome := <-done
	return outcome.result, outcome.err
}

func printManifest(m *work.Manifest) {
	fmt.Printf("%s\n\n", m.TargetDescription())
	for _, e := range m.Epics {
		fmt.Printf("%s  %s (%.0f%%)\n", e.ID, e.Title, e.Progress)
		for _, t := range e.Tasks {
			printTask(t, "  ")
		}
	}
	for _, t := range m.StandaloneTasks {
		printTask(t, "")
	}
	fmt.Printf("\n%d tasks: %d ready, %d blocked\n", m.TotalTasks, m.ReadyTasks, m.BlockedTasks)
}

func printTask(t work.Task, indent string) {
	line := fmt.Sprintf("%s%s  [%s] %s", indent, t.ID, t.Status, t.Title)
	if len(t.BlockedBy) > 0 {
		line += fmt.Sprintf(" (blocked by %s)", strings.Join(t.BlockedBy, ", "))
	}
	fmt.Println(line)
}

func printResult(r *orchestrator.Result) {
	fmt.Println()
	if r.Success {
		fmt.Println("Run succeeded.")
	} else {
		fmt.Println("Run finished with problems.")
	}
	fmt.Printf("  Completed: %d\n", r.TasksCompleted)
	fmt.Printf("  Failed:    %d\n", r.TasksFailed)
	fmt.Printf("  Duration:  %s\n", work.FormatDuration(r.Duration))
	fmt.Printf("  Success rate: %.0f%%\n", r.SuccessRate*100)
	if len(r.Blockers) > 0 {
		fmt.Printf("  Blockers:  %s\n", strings.Join(r.Blockers, ", "))
	}
}
