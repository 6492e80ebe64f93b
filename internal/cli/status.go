package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herdhq/herd/internal/beads"
	"github.com/herdhq/herd/internal/logging"
	"github.com/herdhq/herd/internal/runlock"
	"github.com/herdhq/herd/internal/work"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backlog progress and whether a run is active",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	if !beads.IsAvailable() {
		return fmt.Errorf("bd is not installed or not on PATH")
	}

	locked, err := runlock.New(projectDir).IsLocked()
	if err != nil {
		return err
	}

	source := beads.NewClient(projectDir, logging.New(verbose))
	manifest, err := source.DiscoverAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to discover work: %w", err)
	}

	tasks := manifest.AllTasks()
	stats := work.CalculateStats(tasks)

	if locked {
		fmt.Println("A run is active in this project.")
	}
	fmt.Printf("%s\n", manifest.TargetDescription())
	fmt.Printf("  Total:     %d\n", len(tasks))
	fmt.Printf("  Ready:     %d\n", stats.Ready)
	fmt.Printf("  Blocked:   %d\n", stats.Blocked)
	fmt.Printf("  Completed: %d\n", stats.Completed)
	fmt.Printf("  Progress:  %.0f%%\n", work.Progress(tasks))
	return nil
}
