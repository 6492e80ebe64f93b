// Package beads talks to the bd CLI, the external work source that tracks
// tasks and epics. Discovery builds the run manifest; CreateTask and
// CloseTask mirror orchestrator decisions back into the tracker.
package beads

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/herdhq/herd/internal/work"
)

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// IsAvailable checks if the bd command exists in PATH.
func IsAvailable() bool {
	_, err := exec.LookPath("bd")
	return err == nil
}

// Client runs bd commands in a project directory.
type Client struct {
	projectDir string
	logger     *slog.Logger
}

// NewClient creates a bd client rooted at projectDir.
func NewClient(projectDir string, logger *slog.Logger) *Client {
	return &Client{projectDir: projectDir, logger: logger}
}

// item is the JSON shape bd emits for a tracked work item.
type item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	Status      string   `json:"status"`
	Parent      string   `json:"parent"`
	BlockedBy   []string `json:"blocked_by"`
	Labels      []string `json:"labels"`
	IsEpic      bool     `json:"is_epic"`
}

// toTask converts a bd item into an internal task. parentOverride, when
// non-empty, wins over the item's own parent field.
func (it item) toTask(parentOverride string) work.Task {
	parent := it.Parent
	if parentOverride != "" {
		parent = parentOverride
	}
	return work.Task{
		ID:          it.ID,
		Title:       it.Title,
		Description: it.Description,
		Priority:    it.Priority,
		Status:      work.ParseStatus(it.Status),
		ParentEpic:  parent,
		BlockedBy:   work.NormalizeBlockers(it.BlockedBy),
		Labels:      it.Labels,
	}
}

func (it item) isEpic() bool {
	if it.IsEpic {
		return true
	}
	for _, l := range it.Labels {
		if l == "epic" {
			return true
		}
	}
	return false
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := CommandContext(ctx, "bd", args...)
	cmd.Dir = c.projectDir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("bd %s: %s", args[0], ee.Stderr)
		}
		return nil, fmt.Errorf("bd %s: %w", args[0], err)
	}
	return out, nil
}

// DiscoverAll loads every open item and assembles the full-project manifest.
// Completed epics and completed standalone tasks are dropped from the
// snapshot.
func (c *Client) DiscoverAll(ctx context.Context) (*work.Manifest, error) {
	out, err := c.run(ctx, "ls", "--json", "--all")
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var items []item
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("failed to parse bd output: %w", err)
	}

	// First pass: identify epics.
	epics := make(map[string]*work.Epic)
	for _, it := range items {
		if it.isEpic() {
			epics[it.ID] = &work.Epic{ID: it.ID, Title: it.Title}
		}
	}

	// Second pass: assign tasks to epics or standalone.
	var standalone []work.Task
	for _, it := range items {
		if _, ok := epics[it.ID]; ok {
			continue
		}
		task := it.toTask("")
		if parent, ok := epics[task.ParentEpic]; ok {
			parent.Tasks = append(parent.Tasks, task)
		} else {
			standalone = append(standalone, task)
		}
	}

	var activeEpics []work.Epic
	for _, e := range epics {
		e.Progress = work.Progress(e.Tasks)
		if e.Progress < 100.0 || anyOpen(e.Tasks) {
			activeEpics = append(activeEpics, *e)
		}
	}

	var activeStandalone []work.Task
	for _, t := range standalone {
		if t.Status != work.StatusCompleted {
			activeStandalone = append(activeStandalone, t)
		}
	}

	return buildManifest(activeEpics, activeStandalone), nil
}

// DiscoverEpic loads a single epic and its tasks.
func (c *Client) DiscoverEpic(ctx context.Context, epicID string) (*work.Manifest, error) {
	out, err := c.run(ctx, "show", epicID, "--json", "--recursive")
	if err != nil {
		return nil, fmt.Errorf("failed to load epic: %w", err)
	}

	var epicItem item
	if err := json.Unmarshal(out, &epicItem); err != nil {
		return nil, fmt.Errorf("failed to parse bd output: %w", err)
	}

	tasks, err := c.epicTasks(ctx, epicID)
	if err != nil {
		return nil, err
	}

	epic := work.Epic{
		ID:       epicItem.ID,
		Title:    epicItem.Title,
		Tasks:    tasks,
		Progress: work.Progress(tasks),
	}
	return buildManifest([]work.Epic{epic}, nil), nil
}

func (c *Client) epicTasks(ctx context.Context, epicID string) ([]work.Task, error) {
	out, err := c.run(ctx, "ls", "--parent", epicID, "--json", "--all")
	if err != nil {
		// An epic without listable children is treated as empty.
		c.logger.Debug("no tasks for epic", "epic", epicID, "error", err)
		return nil, nil
	}

	var items []item
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("failed to parse bd output: %w", err)
	}

	tasks := make([]work.Task, 0, len(items))
	for _, it := range items {
		tasks = append(tasks, it.toTask(epicID))
	}
	return tasks, nil
}

// CreateTask creates a new tracked task and returns its id. An empty id with
// nil error means bd did not report one.
func (c *Client) CreateTask(ctx context.Context, title string) (string, error) {
	out, err := c.run(ctx, "create", title, "--json")
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(out, &created); err != nil {
		c.logger.Debug("unparseable bd create output", "error", err)
		return "", nil
	}
	return created.ID, nil
}

// CloseTask closes a tracked task with a reason.
func (c *Client) CloseTask(ctx context.Context, id, reason string) error {
	if _, err := c.run(ctx, "close", id, "--reason", reason); err != nil {
		return fmt.Errorf("failed to close task %s: %w", id, err)
	}
	return nil
}

func anyOpen(tasks []work.Task) bool {
	for i := range tasks {
		if tasks[i].Status != work.StatusCompleted {
			return true
		}
	}
	return false
}

func buildManifest(epics []work.Epic, standalone []work.Task) *work.Manifest {
	m := &work.Manifest{
		Epics:           epics,
		StandaloneTasks: standalone,
	}
	all := m.AllTasks()
	stats := work.CalculateStats(all)
	m.TotalTasks = len(all)
	m.ReadyTasks = stats.Ready
	m.BlockedTasks = stats.Blocked
	m.CompletedTasks = stats.Completed
	return m
}
