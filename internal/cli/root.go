// Package cli wires the herd commands.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/herdhq/herd/internal/version"
)

// ErrRunFailed marks a run that finished with failures or unresolved
// blockers. main translates it into a non-zero exit code.
var ErrRunFailed = errors.New("run finished with failures or unresolved blockers")

var (
	verbose    bool
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:     "herd",
	Short:   "Drive a pool of coding agents through your backlog",
	Long:    `Herd discovers open tasks from the bd issue tracker and drives a pool of Claude workers through them until every task is completed, retried out, or blocked.`,
	Version: version.String(),

	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", ".", "project directory containing .herd.toml")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(musterCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
