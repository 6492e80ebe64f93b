package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/herdhq/herd/internal/checkpoint"
	"github.com/herdhq/herd/internal/config"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs from the checkpoint store",
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	cfg := fileCfg.Resolve(projectDir)

	store, err := checkpoint.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()

	records, err := store.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tRESULT\tCOMPLETED\tFAILED\tTOTAL")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, formatAge(r.StartedAt), formatOutcome(r), r.TasksCompleted, r.TasksFailed, r.TasksTotal)
	}
	return w.Flush()
}

func formatOutcome(r checkpoint.RunRecord) string {
	switch {
	case r.Success == nil:
		return "running"
	case *r.Success:
		return "success"
	default:
		return "failed"
	}
}

// formatAge returns a human-readable relative time string.
func formatAge(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	}
	minutes := int(duration.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	hours := int(duration.Hours())
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dd ago", hours/24)
}
