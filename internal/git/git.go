// Package git inspects the project workspace before a run. Agents commit
// their own work, so starting from a dirty tree mixes unrelated changes into
// task commits.
package git

import (
	"context"
	"os/exec"
	"strings"
)

// CommandContext is swapped in tests to avoid invoking the real git binary.
var CommandContext = exec.CommandContext

// Status describes the workspace state of a project directory.
type Status struct {
	Clean bool
	Files []string
}

// GetStatus reports uncommitted changes in dir, staged, unstaged and
// untracked alike.
func GetStatus(ctx context.Context, dir string) (*Status, error) {
	cmd := CommandContext(ctx, "git", "status", "--porcelain")
	if dir != "" {
		cmd.Dir = dir
	}

	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// Porcelain format: two status chars, a space, then the path.
		if len(line) > 3 {
			files = append(files, line[3:])
		} else {
			files = append(files, strings.TrimSpace(line))
		}
	}

	return &Status{Clean: len(files) == 0, Files: files}, nil
}

// IsClean reports whether dir has no uncommitted changes.
func IsClean(ctx context.Context, dir string) (bool, error) {
	status, err := GetStatus(ctx, dir)
	if err != nil {
		return false, err
	}
	return status.Clean, nil
}
