package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/herdhq/herd/internal/beads"
	"github.com/herdhq/herd/internal/logging"
	"github.com/herdhq/herd/internal/work"
)

var (
	musterEpic    string
	musterReady   bool
	musterBlocked bool
	musterDeps    bool
	musterJSON    bool
)

var musterCmd = &cobra.Command{
	Use:   "muster",
	Short: "Discover and list open work without executing it",
	RunE:  runMuster,
}

func init() {
	musterCmd.Flags().StringVar(&musterEpic, "epic", "", "list only the tasks of one epic")
	musterCmd.Flags().BoolVar(&musterReady, "ready", false, "show only ready tasks")
	musterCmd.Flags().BoolVar(&musterBlocked, "blocked", false, "show only blocked tasks")
	musterCmd.Flags().BoolVar(&musterDeps, "deps", false, "show the dependency edges between tasks")
	musterCmd.Flags().BoolVar(&musterJSON, "json", false, "print the manifest as JSON")
}

func runMuster(cmd *cobra.Command, args []string) error {
	if !beads.IsAvailable() {
		return fmt.Errorf("bd is not installed or not on PATH")
	}

	source := beads.NewClient(projectDir, logging.New(verbose))

	var (
		manifest *work.Manifest
		err      error
	)
	if musterEpic != "" {
		manifest, err = source.DiscoverEpic(cmd.Context(), musterEpic)
		if err != nil {
			return fmt.Errorf("failed to discover epic %s: %w", musterEpic, err)
		}
	} else {
		manifest, err = source.DiscoverAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to discover work: %w", err)
		}
	}

	if musterJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	}

	if manifest.TotalTasks == 0 {
		fmt.Println("No open tasks.")
		return nil
	}

	if musterDeps {
		printDeps(manifest)
		return nil
	}

	if musterReady || musterBlocked {
		printFiltered(manifest)
		return nil
	}
	printManifest(manifest)
	return nil
}

// depsLines renders one "task <- blocker" line per dependency edge, in
// manifest order.
func depsLines(m *work.Manifest) []string {
	var lines []string
	for _, t := range m.AllTasks() {
		for _, blocker := range t.BlockedBy {
			lines = append(lines, fmt.Sprintf("%s <- %s", t.ID, blocker))
		}
	}
	return lines
}

func printDeps(m *work.Manifest) {
	lines := depsLines(m)
	if len(lines) == 0 {
		fmt.Println("No dependencies between open tasks.")
		return
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

func printFiltered(m *work.Manifest) {
	shown := 0
	for _, t := range m.AllTasks() {
		if musterReady && t.Status != work.StatusReady {
			continue
		}
		if musterBlocked && t.Status != work.StatusBlocked {
			continue
		}
		printTask(t, "")
		shown++
	}
	if shown == 0 {
		fmt.Println("No matching tasks.")
	}
}
