// Package runner defines the task execution port and its Claude Code
// implementation. A runner performs exactly one execution attempt; retry,
// blocking and failure policy live in the orchestrator.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/herdhq/herd/internal/work"
)

// Runner executes a single task attempt. On success it returns the elapsed
// duration. Failure text is the channel for blocking signals: an error
// containing a "blocked by <ids>" phrase marks the task blocked on those ids.
type Runner interface {
	Execute(ctx context.Context, task work.Task) (time.Duration, error)
}

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// IsClaudeAvailable checks if the claude command exists in PATH.
func IsClaudeAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

// ClaudeRunner executes tasks via the Claude Code CLI.
type ClaudeRunner struct {
	projectDir string
}

// NewClaudeRunner creates a runner operating in projectDir.
func NewClaudeRunner(projectDir string) *ClaudeRunner {
	return &ClaudeRunner{projectDir: projectDir}
}

// Execute runs a single task via the Claude Code CLI. The agent's stderr is
// folded into the returned error so blocking phrases reach the classifier.
func (r *ClaudeRunner) Execute(ctx context.Context, task work.Task) (time.Duration, error) {
	start := time.Now()

	cmd := CommandContext(ctx, "claude",
		"-p", buildPrompt(task),
		"--dangerously-skip-permissions",
	)
	cmd.Dir = r.projectDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return 0, fmt.Errorf("claude exited with error: %w", err)
		}
		return 0, fmt.Errorf("claude exited with error: %s", msg)
	}

	return time.Since(start), nil
}

// buildPrompt constructs the agent prompt for a task.
func buildPrompt(task work.Task) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Task: %s\n", task.Title))
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("Description: %s\n", task.Description))
	}
	if task.Attempts > 0 {
		sb.WriteString(fmt.Sprintf("Attempt: %d. Previous attempts failed", task.Attempts+1))
		if task.LastError != "" {
			sb.WriteString(fmt.Sprintf(" with: %s", task.LastError))
		}
		sb.WriteString(". Consider an alternative approach.\n")
	}

	sb.WriteString("\nPlease implement this task completely.")

	if len(task.BlockedBy) > 0 {
		sb.WriteString(fmt.Sprintf(
			"\n\nNote: This task was previously blocked by: %s. These should now be resolved.",
			strings.Join(task.BlockedBy, ", ")))
	}

	return sb.String()
}
